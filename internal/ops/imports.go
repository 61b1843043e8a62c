package ops

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hpungsan/chunkwise/internal/chat"
	"github.com/hpungsan/chunkwise/internal/errors"
	"go.uber.org/zap"
)

// LoadImportsOutput holds the saved import list.
type LoadImportsOutput struct {
	Imports []chat.Import `json:"imports"`
}

// LoadImports returns the saved imports.
func LoadImports(d *Deps) (*LoadImportsOutput, error) {
	imports, err := d.Library.LoadImports()
	if err != nil {
		return nil, err
	}
	return &LoadImportsOutput{Imports: imports}, nil
}

// SaveImportsInput replaces the whole import list.
type SaveImportsInput struct {
	Imports []chat.Import `json:"imports"`
}

// SaveImportsOutput reports how many imports were saved.
type SaveImportsOutput struct {
	Saved int `json:"saved"`
}

// SaveImports validates and saves the import list. Names must be present and unique.
func SaveImports(d *Deps, input SaveImportsInput) (*SaveImportsOutput, error) {
	seen := make(map[string]bool, len(input.Imports))
	for i, imp := range input.Imports {
		if strings.TrimSpace(imp.Name) == "" {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("imports[%d]: name is required", i))
		}
		if seen[imp.Name] {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("imports[%d]: duplicate name %q", i, imp.Name))
		}
		seen[imp.Name] = true
	}
	if err := d.Library.SaveImports(input.Imports); err != nil {
		return nil, err
	}
	return &SaveImportsOutput{Saved: len(input.Imports)}, nil
}

// AddImportInput names an export file to parse and save.
type AddImportInput struct {
	Path string `json:"path"`

	// Name overrides the conversation name derived from the file name.
	Name string `json:"name,omitempty"`

	// Mode decides what happens when the name is already imported: error (default) or replace.
	Mode string `json:"mode,omitempty"`
}

// AddImportOutput describes the saved import.
type AddImportOutput struct {
	Name     string `json:"name"`
	Chunks   int    `json:"chunks"`
	Messages int    `json:"messages"`
	Replaced bool   `json:"replaced"`
}

// AddImport parses a chat export, groups it by day and saves it as an import.
// Replacing an import keeps its cached results; DeleteChat discards them.
func AddImport(d *Deps, input AddImportInput) (*AddImportOutput, error) {
	mode := input.Mode
	if mode == "" {
		mode = ModeError
	}
	if mode != ModeError && mode != ModeReplace {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("mode must be %q or %q", ModeError, ModeReplace))
	}

	if err := ValidateExportPath(input.Path, d.DataDir, d.Config); err != nil {
		return nil, err
	}
	path := filepath.Clean(input.Path)

	f, err := openExport(path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot open export: %v", err))
	}
	defer f.Close()

	msgs, err := chat.ReadExport(f)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot read export: %v", err))
	}
	if len(msgs) == 0 {
		return nil, errors.NewInvalidRequest("export contains no messages")
	}

	name := input.Name
	if strings.TrimSpace(name) == "" {
		name = chat.ImportName(path)
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.NewInvalidRequest("name is required")
	}

	replaced := false
	if _, err := d.Library.FindImport(name); err == nil {
		replaced = true
	} else if !errors.Is(err, errors.ErrNotFound) {
		return nil, err
	}

	imp := chat.Import{Name: name, Chunks: chat.GroupByDay(msgs)}
	if err := d.Library.UpsertImport(imp, mode == ModeReplace); err != nil {
		return nil, err
	}

	d.Logger.Info("chat imported",
		zap.String("conversation", name),
		zap.Int("chunks", len(imp.Chunks)),
		zap.Int("messages", len(msgs)),
		zap.Bool("replaced", replaced),
	)
	return &AddImportOutput{
		Name:     name,
		Chunks:   len(imp.Chunks),
		Messages: len(msgs),
		Replaced: replaced,
	}, nil
}
