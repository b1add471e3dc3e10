package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// Preview is a temporary on-disk copy of an artifact that a player can open
type Preview struct {
	path string
	once sync.Once
	err  error
}

// NewPreview writes a to a temporary file in dir (os.TempDir when empty)
func NewPreview(dir string, a *Artifact) (*Preview, error) {
	f, err := os.CreateTemp(dir, "spese-preview-*"+ExtensionFor(a.MIMEType()))
	if err != nil {
		return nil, fmt.Errorf("failed to create preview file: %w", err)
	}
	if _, err := f.Write(a.data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write preview file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to close preview file: %w", err)
	}
	return &Preview{path: f.Name()}, nil
}

func (p *Preview) Path() string { return p.path }

// Release removes the file. Safe to call more than once.
func (p *Preview) Release() error {
	p.once.Do(func() {
		if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			p.err = err
		}
	})
	return p.err
}
