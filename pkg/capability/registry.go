package capability

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry errors.
var (
	ErrDuplicateCapability = errors.New("capability already registered")
	ErrUnknownCapability   = errors.New("unknown capability")
	ErrUnknownModule       = errors.New("unknown module")
)

// Registry holds the installed modules and the capabilities they expose.
// Registration is atomic with respect to concurrent resolves: readers
// never observe a half-registered module.
type Registry struct {
	mu       sync.RWMutex
	modules  map[string]Module
	caps     map[string]Capability
	disabled map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modules:  make(map[string]Module),
		caps:     make(map[string]Capability),
		disabled: make(map[string]bool),
	}
}

// Register adds a module and all of its declared capabilities. The whole
// module is rejected if any capability ID collides with an existing one
// or does not match the module's own name.
func (r *Registry) Register(m Module) error {
	caps := m.Capabilities()
	for i := range caps {
		modName, _, err := SplitID(caps[i].ID)
		if err != nil {
			return err
		}
		if modName != m.Name() {
			return fmt.Errorf("capability %s does not belong to module %s", caps[i].ID, m.Name())
		}
		if err := caps[i].CompileSchema(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[m.Name()]; exists {
		return fmt.Errorf("%w: module %s", ErrDuplicateCapability, m.Name())
	}
	for i := range caps {
		if _, exists := r.caps[caps[i].ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateCapability, caps[i].ID)
		}
	}

	r.modules[m.Name()] = m
	for i := range caps {
		r.caps[caps[i].ID] = caps[i]
	}
	return nil
}

// Resolve looks up a capability ID and returns its owning module and
// declaration. Capabilities of disabled modules resolve as unknown.
func (r *Registry) Resolve(id string) (Module, Capability, error) {
	modName, _, err := SplitID(id)
	if err != nil {
		return nil, Capability{}, fmt.Errorf("%w: %s", ErrUnknownCapability, id)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	cap, ok := r.caps[id]
	if !ok {
		return nil, Capability{}, fmt.Errorf("%w: %s", ErrUnknownCapability, id)
	}
	if r.disabled[modName] {
		return nil, Capability{}, fmt.Errorf("%w: %s (module disabled)", ErrUnknownCapability, id)
	}
	return r.modules[modName], cap, nil
}

// List returns a snapshot of all capabilities of enabled modules,
// sorted by ID.
func (r *Registry) List() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Capability, 0, len(r.caps))
	for id, cap := range r.caps {
		modName, _, _ := SplitID(id)
		if r.disabled[modName] {
			continue
		}
		out = append(out, cap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Modules returns a snapshot of all registered modules, sorted by name.
func (r *Registry) Modules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Module returns a registered module by name.
func (r *Registry) Module(name string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return m, nil
}

// Enabled reports whether a module is currently enabled.
func (r *Registry) Enabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.disabled[name]
}

// SetEnabled enables or disables a module at runtime. Disabled modules
// keep their registrations but their capabilities resolve as unknown.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.modules[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	if enabled {
		delete(r.disabled, name)
	} else {
		r.disabled[name] = true
	}
	return nil
}
