package overlay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unicode/utf8"
)

const fileExtension = ".json"

// File is an overlay kept as a single JSON document.
//
// Every operation loads the whole document; every mutation rewrites it.
// Rewrites go through a temporary file and a rename so a reader never sees
// a torn document, but a crash between load and rewrite still loses the
// update.
type File struct {
	path   string
	sealer *Sealer
	closed atomic.Bool
}

func createFile(cfg Config, name string, seed map[string]string) (*File, error) {
	f := &File{
		path:   filepath.Join(cfg.Dir, name+fileExtension),
		sealer: cfg.Sealer,
	}
	if seed == nil {
		seed = map[string]string{}
	}
	if err := f.store(seed); err != nil {
		return nil, err
	}
	return f, nil
}

// Name returns the file name.
func (f *File) Name() string {
	return filepath.Base(f.path)
}

// Path returns the full path of the document.
func (f *File) Path() string {
	return f.path
}

// Get returns the value for key.
func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	m, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

// Put stores key=value.
func (f *File) Put(_ context.Context, key, value string) error {
	m, err := f.load()
	if err != nil {
		return err
	}
	m[key] = value
	return f.store(m)
}

// Delete removes key.
func (f *File) Delete(_ context.Context, key string) (bool, error) {
	m, err := f.load()
	if err != nil {
		return false, err
	}
	if _, ok := m[key]; !ok {
		return false, nil
	}
	delete(m, key)
	return true, f.store(m)
}

// All returns the whole mapping.
func (f *File) All(_ context.Context) (map[string]string, error) {
	return f.load()
}

// Remove deletes the document.
func (f *File) Remove() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("overlay: remove %s: %w", f.Name(), err)
	}
	return nil
}

func (f *File) load() (map[string]string, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("overlay: read %s: %w", f.Name(), err)
	}
	if f.sealer != nil {
		data, err = f.sealer.Open(data, []byte(f.Name()))
		if err != nil {
			return nil, fmt.Errorf("overlay: open %s: %w", f.Name(), err)
		}
	}
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("overlay: decode %s: %w", f.Name(), err)
	}
	return m, nil
}

func (f *File) store(m map[string]string) error {
	if f.closed.Load() {
		return ErrClosed
	}
	// encoding/json replaces invalid UTF-8 with U+FFFD.
	for k, v := range m {
		if !utf8.ValidString(k) || !utf8.ValidString(v) {
			return fmt.Errorf("%w: %q", ErrInvalidUTF8, k)
		}
	}
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return fmt.Errorf("overlay: encode %s: %w", f.Name(), err)
	}
	if f.sealer != nil {
		data, err = f.sealer.Seal(data, []byte(f.Name()))
		if err != nil {
			return fmt.Errorf("overlay: seal %s: %w", f.Name(), err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("overlay: write %s: %w", f.Name(), err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("overlay: rename %s: %w", f.Name(), err)
	}
	return nil
}
