// Package logos maintains the on-disk logo library that certificate and
// soft-copy requests can reference by file name.
package logos

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/starford/tenantdesk/internal/apperr"
	"github.com/starford/tenantdesk/internal/checksum"
)

// Extensions accepted in the library.
var Extensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".svg": true, ".pdf": true}

// Entry describes one library file.
type Entry struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Checksum string    `json:"checksum"`
	ModTime  time.Time `json:"mod_time"`
}

// Library is a flat directory of logo files with an in-memory index.
type Library struct {
	root string

	mu      sync.RWMutex
	entries map[string]Entry
}

// Open indexes every logo file directly under root, creating root if needed.
func Open(root string) (*Library, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("logos: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("logos: create root: %w", err)
	}
	l := &Library{root: abs, entries: make(map[string]Entry)}
	if err := l.Rescan(); err != nil {
		return nil, err
	}
	return l, nil
}

// Root returns the absolute library directory.
func (l *Library) Root() string { return l.root }

// Rescan rebuilds the index from disk.
func (l *Library) Rescan() error {
	dirents, err := os.ReadDir(l.root)
	if err != nil {
		return fmt.Errorf("logos: read dir: %w", err)
	}
	fresh := make(map[string]Entry, len(dirents))
	for _, d := range dirents {
		if d.IsDir() || !IsLogoName(d.Name()) {
			continue
		}
		e, err := l.stat(d.Name())
		if err != nil {
			continue
		}
		fresh[e.Name] = e
	}

	l.mu.Lock()
	l.entries = fresh
	l.mu.Unlock()
	return nil
}

// List returns all entries sorted by name.
func (l *Library) List() []Entry {
	l.mu.RLock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the content of the named logo.
func (l *Library) Lookup(name string) ([]byte, bool) {
	l.mu.RLock()
	_, ok := l.entries[name]
	l.mu.RUnlock()
	if !ok {
		return nil, false
	}
	data, err := os.ReadFile(filepath.Join(l.root, name))
	if err != nil {
		return nil, false
	}
	return data, true
}

// Save writes a new logo. Existing names are not overwritten.
func (l *Library) Save(name string, data []byte) (Entry, error) {
	if !IsLogoName(name) || filepath.Base(name) != name {
		return Entry{}, fmt.Errorf("logos: %q: %w", name, apperr.ErrInvalidInput)
	}
	path := filepath.Join(l.root, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Entry{}, fmt.Errorf("logos: %q: %w", name, apperr.ErrAlreadyExists)
		}
		return Entry{}, fmt.Errorf("logos: create %q: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return Entry{}, fmt.Errorf("logos: write %q: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return Entry{}, fmt.Errorf("logos: close %q: %w", name, err)
	}
	return l.refresh(name)
}

// refresh re-indexes one file; a missing file is dropped from the index.
func (l *Library) refresh(name string) (Entry, error) {
	e, err := l.stat(name)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		delete(l.entries, name)
		return Entry{}, err
	}
	l.entries[name] = e
	return e, nil
}

func (l *Library) forget(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[name]
	delete(l.entries, name)
	return ok
}

func (l *Library) stat(name string) (Entry, error) {
	path := filepath.Join(l.root, name)
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Name:     name,
		Size:     info.Size(),
		Checksum: checksum.Sum(data),
		ModTime:  info.ModTime().UTC(),
	}, nil
}

// IsLogoName reports whether name has an accepted logo extension.
func IsLogoName(name string) bool {
	return Extensions[strings.ToLower(filepath.Ext(name))]
}
