package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kestrelrun/conductor/pkg/stream"
)

// handleWorkflowStream serves GET /workflows/{id}/stream as a
// Server-Sent Events connection over the shared stream.Bus — the
// streaming fabric's one subscriber-facing endpoint. Grounded on the
// the sendSSEEvent pattern (event:/data: framing, explicit
// http.Flusher check, no-buffering headers).
func (s *HTTPServer) handleWorkflowStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	workflowID, ok := workflowIDFromStreamPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if s.bus == nil {
		http.Error(w, "stream bus not wired", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, unsubscribe := s.bus.Subscribe(workflowID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case evt, open := <-ch:
			if !open {
				return
			}
			sendSSEEvent(w, flusher, evt)
			if evt.Type == stream.EventDone || evt.Type == stream.EventError {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// workflowIDFromStreamPath extracts {id} from "/workflows/{id}/stream".
func workflowIDFromStreamPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "workflows" || parts[2] != "stream" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, evt stream.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", evt.Type)
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
