package tool

import (
	"github.com/kestrelrun/conductor/pkg/apperrors"
	"github.com/kestrelrun/conductor/pkg/registry"
)

// Registry holds every tool available to an agent — local built-ins,
// MCP-backed tools, and plugin-hosted tools alike — keyed by name, and
// resolves the visible subset for a call via a Predicate. Built on the
// a generic registry rather than a bespoke map,
// the same way a provider registry would.
type Registry struct {
	base *registry.BaseRegistry[Tool]
}

func NewRegistry() *Registry {
	return &Registry{base: registry.NewBaseRegistry[Tool]()}
}

func (r *Registry) Register(t Tool) error {
	if err := r.base.Register(t.Name(), t); err != nil {
		return apperrors.Wrap(apperrors.KindConflict, "register tool", err)
	}
	return nil
}

func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.base.Get(name)
	if !ok {
		return nil, apperrors.NotFound("tool " + name)
	}
	return t, nil
}

// Visible returns every registered tool for which predicate holds,
// the set an agent's LLM request is actually built with.
func (r *Registry) Visible(predicate Predicate) []Tool {
	if predicate == nil {
		predicate = AllowAll()
	}
	var out []Tool
	for _, t := range r.base.List() {
		if predicate(t) {
			out = append(out, t)
		}
	}
	return out
}

func (r *Registry) Count() int { return r.base.Count() }
