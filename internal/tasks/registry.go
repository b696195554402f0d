package tasks

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bioagent/molft/internal/logger"
)

// ErrTaskNotFound is returned when no task with the requested ID exists.
var ErrTaskNotFound = errors.New("task not found")

// Registry holds task presets indexed by ID.
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*TaskSpec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*TaskSpec)}
}

// Register adds or replaces a task preset.
//
// Later registrations win, which is how user presets override built-ins.
func (r *Registry) Register(spec *TaskSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.ID]; exists {
		logger.Debug("Overriding task preset: %s", spec.ID)
	}
	r.specs[spec.ID] = spec
}

// Get returns a copy of the preset with the given ID.
func (r *Registry) Get(id string) (*TaskSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return spec.Clone(), nil
}

// List returns copies of all presets sorted by ID.
func (r *Registry) List() []*TaskSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TaskSpec, 0, len(r.specs))
	for _, spec := range r.specs {
		out = append(out, spec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var defaultRegistry = NewRegistry()

// RegisterTaskSpec registers a preset with the global registry.
// Built-in preset packages call it from init().
func RegisterTaskSpec(spec *TaskSpec) {
	if spec.Source == "" {
		spec.Source = "builtin"
	}
	defaultRegistry.Register(spec)
}

// GetTaskSpec returns a copy of a globally registered preset.
func GetTaskSpec(id string) (*TaskSpec, error) {
	return defaultRegistry.Get(id)
}

// ListTaskSpecs returns all globally registered presets sorted by ID.
func ListTaskSpecs() []*TaskSpec {
	return defaultRegistry.List()
}

// DefaultRegistry exposes the global registry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}
