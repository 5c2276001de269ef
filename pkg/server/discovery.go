package server

import (
	"net/http"
	"strings"
)

// agentCard is the discovery-response shape for one agent — enough
// for a desktop shell to list and address agents without exposing
// full configuration.
type agentCard struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Visibility  string `json:"visibility"`
}

// handleDiscovery lists agents visible to the caller: public agents
// always, internal agents only once authenticated, private agents
// never.
func (s *HTTPServer) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	authed := s.authenticated(r)

	cards := make([]agentCard, 0, len(s.cfg.Agents))
	for name, cfg := range s.cfg.Agents {
		visibility := cfg.Visibility
		if visibility == "" {
			visibility = "public"
		}
		switch visibility {
		case "private":
			continue
		case "internal":
			if !authed {
				continue
			}
		}
		cards = append(cards, agentCard{Name: name, Description: cfg.Description, Visibility: visibility})
	}

	writeJSON(w, http.StatusOK, map[string]any{"agents": cards, "total": len(cards)})
}

// handleAgentRoutes implements direct per-agent access control: public
// agents are always reachable, internal agents require a valid bearer
// token, private agents report 404 regardless of authentication so
// their existence is never leaked.
func (s *HTTPServer) handleAgentRoutes(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/agents/")
	if i := strings.Index(name, "/"); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		http.Error(w, "agent name required", http.StatusBadRequest)
		return
	}

	cfg, ok := s.cfg.Agents[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	visibility := cfg.Visibility
	if visibility == "" {
		visibility = "public"
	}

	switch visibility {
	case "private":
		http.NotFound(w, r)
		return
	case "internal":
		if !s.authenticated(r) {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
	}

	writeJSON(w, http.StatusOK, agentCard{Name: name, Description: cfg.Description, Visibility: visibility})
}
