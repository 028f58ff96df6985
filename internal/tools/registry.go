package tools

import "openworker/internal/models"

// Registry maps tool names to the provider that owns them. A name registered
// twice is routed to the later provider.
type Registry struct {
	owner map[string]string
	defs  []models.ToolDefinition
	index map[string]int
}

func NewRegistry() *Registry {
	return &Registry{owner: map[string]string{}, index: map[string]int{}}
}

// Register adds provider's tools. Descriptions are prefixed with the
// provider name.
func (r *Registry) Register(provider string, defs []models.ToolDefinition) {
	for _, d := range defs {
		d.Provider = provider
		d.Description = "[" + provider + "] " + d.Description
		r.owner[d.Name] = provider
		if i, ok := r.index[d.Name]; ok {
			r.defs[i] = d
			continue
		}
		r.index[d.Name] = len(r.defs)
		r.defs = append(r.defs, d)
	}
}

// Lookup returns the owning provider of name.
func (r *Registry) Lookup(name string) (string, bool) {
	p, ok := r.owner[name]
	return p, ok
}

// Definition returns the advertised definition of name.
func (r *Registry) Definition(name string) (models.ToolDefinition, bool) {
	i, ok := r.index[name]
	if !ok {
		return models.ToolDefinition{}, false
	}
	return r.defs[i], true
}

// Definitions returns every tool in registration order.
func (r *Registry) Definitions() []models.ToolDefinition {
	out := make([]models.ToolDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Count returns how many tools provider currently owns.
func (r *Registry) Count(provider string) int {
	n := 0
	for _, p := range r.owner {
		if p == provider {
			n++
		}
	}
	return n
}
