package workflow

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Parse reads one workflow from r. The format is JSONL: the first non-empty
// line must be a complete workflow object. The result is validated; a
// workflow that fails validation is not returned partially.
func Parse(r io.Reader) (*Workflow, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var w Workflow
		if err := json.Unmarshal(line, &w); err != nil {
			return nil, fmt.Errorf("workflow: parse: %w", err)
		}
		if err := w.Validate(); err != nil {
			return nil, err
		}
		return &w, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("workflow: read: %w", err)
	}
	return nil, fmt.Errorf("workflow: empty document")
}

// LoadFile reads and validates the workflow stored at path.
func LoadFile(path string) (*Workflow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("workflow: open %s: %w", path, err)
	}
	defer f.Close()
	w, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("workflow: load %s: %w", path, err)
	}
	return w, nil
}

// SaveFile serialises w as a single JSON line at path, creating parent
// directories as needed. The write goes through a temp file and rename so a
// crash never leaves a truncated workflow on disk.
func SaveFile(w *Workflow, path string) error {
	if err := w.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("workflow: marshal %s: %w", w.ID, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("workflow: create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("workflow: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("workflow: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("workflow: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("workflow: rename into place: %w", err)
	}
	return nil
}
