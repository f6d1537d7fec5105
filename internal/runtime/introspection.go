package runtime

import (
	"fmt"
	"net/http"

	"github.com/drblury/parcelflow/internal/runtime/jsoncodec"
)

// BindingInfo describes one registry binding for the introspection API.
type BindingInfo struct {
	Runner   string `json:"runner"`
	Matchers int    `json:"matchers"`
}

// Bindings describes the registered bindings in dispatch order.
func (s *Service) Bindings() []BindingInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]BindingInfo, 0, len(s.bindings))
	for _, b := range s.bindings {
		out = append(out, BindingInfo{Runner: fmt.Sprintf("%T", b.Runner), Matchers: b.Registry.Size()})
	}
	return out
}

// registerIntrospection exposes the bindings and the metrics snapshot next
// to the Prometheus endpoint.
func (s *Service) registerIntrospection(port int) {
	s.RegisterHTTPHandler(port, "/api/bindings", http.HandlerFunc(s.handleGetBindings))
	s.RegisterHTTPHandler(port, "/api/stats", http.HandlerFunc(s.handleGetStats))
}

func (s *Service) handleGetBindings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, s.Bindings())
}

func (s *Service) handleGetStats(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics disabled", http.StatusNotFound)
		return
	}
	s.writeJSON(w, r, s.metrics.GetSnapshot())
}

func (s *Service) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := jsoncodec.Marshal(v)
	if err != nil {
		s.Logger.Error("Failed to encode introspection response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
