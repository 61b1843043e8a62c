package library

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/chunkwise/internal/chat"
	"github.com/hpungsan/chunkwise/internal/errors"
)

// DefaultAnalysis is the analysis document before anything has been saved.
const DefaultAnalysis = `{"saved_memories":{}}`

// Library persists the import list and the recall analysis document:
//
//	<dir>/imports/chat_imports.json
//	<dir>/analysis.json
type Library struct {
	dir string
}

// New returns a library rooted at dir.
func New(dir string) *Library {
	return &Library{dir: dir}
}

func (l *Library) importsPath() string {
	return filepath.Join(l.dir, "imports", "chat_imports.json")
}

func (l *Library) analysisPath() string {
	return filepath.Join(l.dir, "analysis.json")
}

// LoadImports returns the saved imports, or none if nothing was saved yet.
// A file holding a single import object instead of a list is accepted.
func (l *Library) LoadImports() ([]chat.Import, error) {
	data, err := os.ReadFile(l.importsPath())
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return []chat.Import{}, nil
		}
		return nil, errors.NewStorage("imports", -1, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var one chat.Import
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, errors.NewStorage("imports", -1, fmt.Errorf("corrupt import list: %w", err))
		}
		return []chat.Import{one}, nil
	}

	var imports []chat.Import
	if err := json.Unmarshal(trimmed, &imports); err != nil {
		return nil, errors.NewStorage("imports", -1, fmt.Errorf("corrupt import list: %w", err))
	}
	if imports == nil {
		imports = []chat.Import{}
	}
	return imports, nil
}

// SaveImports replaces the saved import list.
func (l *Library) SaveImports(imports []chat.Import) error {
	if imports == nil {
		imports = []chat.Import{}
	}
	data, err := json.MarshalIndent(imports, "", "  ")
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := writeAtomic(l.importsPath(), data); err != nil {
		return errors.NewStorage("imports", -1, err)
	}
	return nil
}

// FindImport returns the import called name.
func (l *Library) FindImport(name string) (*chat.Import, error) {
	imports, err := l.LoadImports()
	if err != nil {
		return nil, err
	}
	for i := range imports {
		if imports[i].Name == name {
			return &imports[i], nil
		}
	}
	return nil, errors.NewNotFound(name)
}

// UpsertImport adds imp, or replaces an import of the same name when replace is set.
// Without replace, an existing name is ALREADY_EXISTS.
func (l *Library) UpsertImport(imp chat.Import, replace bool) error {
	imports, err := l.LoadImports()
	if err != nil {
		return err
	}
	for i := range imports {
		if imports[i].Name == imp.Name {
			if !replace {
				return errors.NewAlreadyExists(imp.Name)
			}
			imports[i] = imp
			return l.SaveImports(imports)
		}
	}
	return l.SaveImports(append(imports, imp))
}

// RemoveImport drops the import called name. It reports whether one was removed.
func (l *Library) RemoveImport(name string) (bool, error) {
	imports, err := l.LoadImports()
	if err != nil {
		return false, err
	}
	kept := imports[:0]
	removed := false
	for _, imp := range imports {
		if imp.Name == name {
			removed = true
			continue
		}
		kept = append(kept, imp)
	}
	if !removed {
		return false, nil
	}
	return true, l.SaveImports(kept)
}

// LoadAnalysis returns the analysis document, or DefaultAnalysis if none was saved.
func (l *Library) LoadAnalysis() (json.RawMessage, error) {
	data, err := os.ReadFile(l.analysisPath())
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return json.RawMessage(DefaultAnalysis), nil
		}
		return nil, errors.NewStorage("analysis", -1, err)
	}
	if !json.Valid(data) {
		return nil, errors.NewStorage("analysis", -1, fmt.Errorf("corrupt analysis document"))
	}
	return json.RawMessage(bytes.TrimSpace(data)), nil
}

// SaveAnalysis replaces the analysis document. Any JSON value is accepted.
func (l *Library) SaveAnalysis(doc json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, doc, "", "  "); err != nil {
		return errors.NewInvalidRequest("analysis document is not valid JSON")
	}
	if err := writeAtomic(l.analysisPath(), buf.Bytes()); err != nil {
		return errors.NewStorage("analysis", -1, err)
	}
	return nil
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
