package wsbridge

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tonimelisma/appdist/internal/payload"
)

// FormInfo describes one form kind for UI discovery.
type FormInfo struct {
	Kind    string   `json:"kind"`
	Segment string   `json:"segment"`
	Fields  []string `json:"fields"`
}

// RouterOptions selects the optional routes.
type RouterOptions struct {
	// Metrics, when set, is served at /metrics.
	Metrics http.Handler
	// Instrument, when set, wraps every route.
	Instrument func(http.Handler) http.Handler
}

// NewRouter mounts the bridge:
//
//	GET /healthz     liveness
//	GET /api/forms   form kinds and their payload fields
//	GET /ws          websocket form sessions
//	GET /metrics     Prometheus metrics (optional)
func NewRouter(h *Handler, opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if opts.Instrument != nil {
		r.Use(opts.Instrument)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/api/forms", func(w http.ResponseWriter, _ *http.Request) {
		kinds := payload.Kinds()
		out := make([]FormInfo, 0, len(kinds))

		for _, k := range kinds {
			out = append(out, FormInfo{Kind: string(k), Segment: k.Segment(), Fields: k.Fields()})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})

	r.Get("/ws", h.ServeHTTP)

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	return r
}
