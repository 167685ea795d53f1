package macro

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry holds validated macro definitions by name.
type Registry struct {
	mu     sync.RWMutex
	macros map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{macros: make(map[string]Definition)}
}

// Register validates and stores a definition. Zero-stage macros are
// rejected here, before anything can reference them.
func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.macros[def.Name]; exists {
		return fmt.Errorf("%w: macro %q already registered", ErrInvalidDefinition, def.Name)
	}
	r.macros[def.Name] = def
	return nil
}

// Get returns the definition for name.
func (r *Registry) Get(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.macros[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownMacro, name)
	}
	return def, nil
}

// Names returns registered macro names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.macros))
	for name := range r.macros {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Finalize checks cross-macro references once all registrations are
// done: every fallback must resolve to a registered macro.
func (r *Registry) Finalize() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, def := range r.macros {
		if def.FallbackMacro == "" {
			continue
		}
		if _, ok := r.macros[def.FallbackMacro]; !ok {
			return fmt.Errorf("%w: macro %q falls back to unregistered macro %q",
				ErrInvalidDefinition, name, def.FallbackMacro)
		}
	}
	return nil
}

// File is the on-disk macros document.
type File struct {
	Version string       `yaml:"version"`
	Macros  []Definition `yaml:"macros"`
}

// LoadFile reads macro definitions from a YAML file into the registry
// and finalizes it.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read macros file: %w", err)
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse macros file: %w", err)
	}
	for _, def := range file.Macros {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return r.Finalize()
}
