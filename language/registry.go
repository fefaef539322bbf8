package language

import (
	"fmt"
	"sort"
	"sync"
)

// Registry hands out shared Language handles by name. Each entry is loaded
// at most once; later lookups return the same handle or the same error.
//
// Concurrency: safe for use by multiple goroutines.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	once sync.Once
	load func() (*Language, error)
	lang *Language
	err  error
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Register adds a language under name. load runs on the first Get.
func (r *Registry) Register(name string, load func() (*Language, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &registryEntry{load: load}
}

// AddManifest registers every entry of m. opts are passed to Decode, for
// external scanners.
func (r *Registry) AddManifest(m Manifest, opts ...Option) {
	for _, entry := range m.Languages {
		entry := entry
		r.Register(entry.Name, func() (*Language, error) {
			return entry.Load(opts...)
		})
	}
}

func (r *Registry) Get(name string) (*Language, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown language %q", name)
	}
	entry.once.Do(func() {
		entry.lang, entry.err = entry.load()
		if entry.err == nil {
			log.Infof("loaded language %s", name)
		}
	})
	return entry.lang, entry.err
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
