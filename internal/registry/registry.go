// Package registry remembers the printers the bridge has seen, together with
// the names users gave them, so they can be printed on by id later.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Registry stores printer entries keyed by printer id. With a file path the
// entries survive restarts.
type Registry struct {
	filePath string
	data     map[string]*Entry
	mu       sync.RWMutex
}

// Entry is what is known about one printer.
type Entry struct {
	ID           string `json:"id"`
	Manufacturer string `json:"manufacturer"`
	Connection   string `json:"connection_type"`
	Description  string `json:"description"`
	// Name is set by the user.
	Name string `json:"name,omitempty"`
	// Descriptor is the printer's encoded descriptor.
	Descriptor json.RawMessage `json:"descriptor"`
	LastSeen   time.Time       `json:"last_seen"`
}

// New creates a registry backed by filePath. An empty path keeps everything
// in memory.
func New(filePath string) (*Registry, error) {
	r := &Registry{
		filePath: filePath,
		data:     make(map[string]*Entry),
	}

	if filePath == "" {
		return r, nil
	}
	if err := r.load(); err != nil {
		// A missing file is created on first save.
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load registry: %w", err)
		}
	}

	return r, nil
}

// Put adds or refreshes an entry. A custom name already stored is kept
// unless e sets a new one.
func (r *Registry) Put(e Entry) (Entry, error) {
	if e.ID == "" {
		return Entry{}, fmt.Errorf("registry entry without id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.data[e.ID]; ok && e.Name == "" {
		e.Name = old.Name
	}
	if e.LastSeen.IsZero() {
		e.LastSeen = time.Now()
	}
	stored := e
	r.data[e.ID] = &stored

	return stored, r.save()
}

// Get returns the entry with id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.data[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// GetName returns the custom name of id, or "".
func (r *Registry) GetName(id string) string {
	e, _ := r.Get(id)
	return e.Name
}

// SetName sets the custom name of id. It reports whether id is known.
func (r *Registry) SetName(id, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.data[id]
	if !ok {
		return false, nil
	}
	e.Name = name
	return true, r.save()
}

// Remove forgets id. It reports whether id was known.
func (r *Registry) Remove(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[id]; !ok {
		return false, nil
	}
	delete(r.data, id)
	return true, r.save()
}

// All returns copies of every entry ordered by id.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.data))
	for _, e := range r.data {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.filePath)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &r.data)
}

func (r *Registry) save() error {
	if r.filePath == "" {
		return nil
	}

	data, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(r.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create registry directory: %w", err)
		}
	}

	return os.WriteFile(r.filePath, data, 0644)
}
