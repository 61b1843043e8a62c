package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/chunkwise/internal/config"
	"github.com/hpungsan/chunkwise/internal/errors"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("12/03/2024, 09:16 - Alice: hi\n"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
}

func TestValidateExportPath_TraversalRejected(t *testing.T) {
	cfg := config.DefaultConfig()

	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../chat.txt"},
		{"deep traversal", "../../etc/chat.txt"},
		{"mid-path traversal", "/tmp/../etc/chat.txt"},
		{"hidden in path", "/tmp/safe/../../../etc/shadow.zip"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateExportPath(tc.path, t.TempDir(), cfg)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidateExportPath_ExtensionRequired(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	tests := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"no extension", "/tmp/chat"},
		{"json", "/tmp/chat.json"},
		{"jsonl", "/tmp/chat.jsonl"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateExportPath(tc.path, t.TempDir(), cfg)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidateExportPath_ExportsDir(t *testing.T) {
	dataDir := t.TempDir()
	cfg := config.DefaultConfig()

	exports := filepath.Join(dataDir, ExportsDirName)
	if err := os.MkdirAll(exports, 0700); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}

	for _, name := range []string{"chat.txt", "chat.ZIP"} {
		path := filepath.Join(exports, name)
		writeFile(t, path)
		if err := ValidateExportPath(path, dataDir, cfg); err != nil {
			t.Errorf("ValidateExportPath(%s) = %v, want nil", name, err)
		}
	}
}

func TestValidateExportPath_DirectoryRestriction(t *testing.T) {
	cfg := config.DefaultConfig()
	path := filepath.Join(t.TempDir(), "chat.txt")
	writeFile(t, path)

	err := ValidateExportPath(path, t.TempDir(), cfg)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestValidateExportPath_AllowUnsafePaths(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true
	path := filepath.Join(t.TempDir(), "chat.txt")
	writeFile(t, path)

	if err := ValidateExportPath(path, t.TempDir(), cfg); err != nil {
		t.Errorf("expected success with AllowUnsafePaths=true, got: %v", err)
	}
}

func TestValidateExportPath_AllowedPaths(t *testing.T) {
	allowed := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowed, "relative/ignored"}

	path := filepath.Join(allowed, "chat.txt")
	writeFile(t, path)
	if err := ValidateExportPath(path, t.TempDir(), cfg); err != nil {
		t.Errorf("expected success for path in AllowedPaths, got: %v", err)
	}

	other := filepath.Join(t.TempDir(), "other.txt")
	writeFile(t, other)
	if err := ValidateExportPath(other, t.TempDir(), cfg); err == nil {
		t.Error("expected error for path outside AllowedPaths, got nil")
	}
}

func TestValidateExportPath_FileNotFound(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	err := ValidateExportPath(filepath.Join(t.TempDir(), "missing.txt"), t.TempDir(), cfg)
	if !errors.Is(err, errors.ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound, got: %v", err)
	}
}

func TestValidateExportPath_NestedPathRejected(t *testing.T) {
	allowed := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowed}

	subDir := filepath.Join(allowed, "subdir")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}
	path := filepath.Join(subDir, "chat.txt")
	writeFile(t, path)

	err := ValidateExportPath(path, t.TempDir(), cfg)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestValidateExportPath_SymlinkRejected(t *testing.T) {
	for _, unsafe := range []bool{false, true} {
		allowed := t.TempDir()
		cfg := config.DefaultConfig()
		cfg.AllowedPaths = []string{allowed}
		cfg.AllowUnsafePaths = unsafe

		target := filepath.Join(t.TempDir(), "secret.txt")
		writeFile(t, target)
		link := filepath.Join(allowed, "link.txt")
		if err := os.Symlink(target, link); err != nil {
			t.Skipf("cannot create symlink: %v", err)
		}

		err := ValidateExportPath(link, t.TempDir(), cfg)
		if !errors.Is(err, errors.ErrInvalidRequest) {
			t.Errorf("unsafe=%v: expected ErrInvalidRequest, got: %v", unsafe, err)
		}
	}
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path     string
		contains bool
	}{
		{"/home/user/chat.txt", false},
		{"../chat.txt", true},
		{"/home/../etc/passwd", true},
		{"./chat.txt", false},
		{"/home/user/.hidden/chat.txt", false},
		{"chat..name.txt", false}, // .. not as path component
		{"/tmp/a/b/../c.zip", true},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			if got := containsTraversal(tc.path); got != tc.contains {
				t.Errorf("containsTraversal(%q) = %v, want %v", tc.path, got, tc.contains)
			}
		})
	}
}
