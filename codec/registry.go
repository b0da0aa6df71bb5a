package codec

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the available codecs, addressable by identifier and by
// wire tag. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Codec
	byTag  map[uint16]Codec
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Codec),
		byTag:  make(map[uint16]Codec),
	}
}

var defaultRegistry = NewRegistry()

// Register registers a codec in the default registry
func Register(c Codec) {
	defaultRegistry.Register(c)
}

// Get retrieves a codec from the default registry by identifier
func Get(name string) (Codec, error) {
	return defaultRegistry.Get(name)
}

// GetByTag retrieves a codec from the default registry by wire tag
func GetByTag(tag uint16) (Codec, error) {
	return defaultRegistry.GetByTag(tag)
}

// Names returns the identifiers registered in the default registry
func Names() []string {
	return defaultRegistry.Names()
}

// List returns all codecs registered in the default registry
func List() []Codec {
	return defaultRegistry.List()
}

// Register registers a codec under both its identifier and its wire tag,
// replacing any earlier registration of either
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byName[c.Name()] = c
	r.byTag[c.Tag()] = c
}

// Get retrieves a codec by identifier
func (r *Registry) Get(name string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCodecNotFound, name)
	}
	return c, nil
}

// GetByTag retrieves a codec by wire tag
func (r *Registry) GetByTag(tag uint16) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byTag[tag]
	if !ok {
		return nil, fmt.Errorf("%w: tag %d", ErrCodecNotFound, tag)
	}
	return c, nil
}

// Names returns all registered identifiers, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all registered codecs ordered by identifier
func (r *Registry) List() []Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	codecs := make([]Codec, 0, len(names))
	for _, name := range names {
		codecs = append(codecs, r.byName[name])
	}
	return codecs
}
