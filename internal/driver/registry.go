package driver

import (
	"fmt"
	"sort"
)

// Registry holds the enabled drivers of one category, keyed by type name.
type Registry[T any] struct {
	category string
	drivers  map[string]T
}

func NewRegistry[T any](category string) *Registry[T] {
	return &Registry[T]{
		category: category,
		drivers:  make(map[string]T),
	}
}

func (r *Registry[T]) Register(name string, d T) {
	r.drivers[name] = d
}

// Get resolves a driver by name. Unknown names are configuration errors and
// are reported, never silently skipped.
func (r *Registry[T]) Get(name string) (T, error) {
	d, ok := r.drivers[name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown %s driver %q", r.category, name)
	}
	return d, nil
}

// Names returns the registered driver names, sorted.
func (r *Registry[T]) Names() []string {
	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
