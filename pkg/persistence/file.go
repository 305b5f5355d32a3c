package persistence

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// File persists a single JSON document of type T.
type File[T any] struct {
	mu   sync.Mutex
	path string
	perm os.FileMode
}

// NewFile creates a snapshot file handle. The file is created lazily on the
// first write that changes content.
func NewFile[T any](path string) *File[T] {
	return &File[T]{path: path, perm: 0600}
}

// Load reads the snapshot from disk.
// Returns nil, nil if the file doesn't exist.
func (f *File[T]) Load() (*T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, _, err := f.load()
	return v, err
}

// Update loads the snapshot (or a zero T when the file is missing), applies
// fn and writes the result back only if its content changed. If fn returns an
// error nothing is written and the error is returned unchanged.
func (f *File[T]) Update(fn func(v *T) error) (*T, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v, before, err := f.load()
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		v = new(T)
		if before, err = encode(v); err != nil {
			return nil, false, err
		}
	}

	if err := fn(v); err != nil {
		return nil, false, err
	}

	after, err := encode(v)
	if err != nil {
		return nil, false, err
	}
	if sha256.Sum256(before) == sha256.Sum256(after) {
		return v, false, nil
	}
	if err := f.write(after); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// load returns the decoded value and its normalized encoding.
func (f *File[T]) load() (*T, []byte, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	norm, err := encode(v)
	if err != nil {
		return nil, nil, err
	}
	return v, norm, nil
}

func (f *File[T]) write(data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, f.perm); err != nil {
		return err
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return err
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
