// Package httpapi provides the optional, read-only debug HTTP surface
//: health check, Prometheus metrics,
// and JSON introspection endpoints over seed/peer state. It never
// participates in the wire protocol. Middleware stack and handler
// shape are grounded on the reference repo's internal/api server.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meshgossip/overlay/internal/domain"
)

// SeedView exposes read-only seed state for the debug surface.
type SeedView interface {
	PL() [][2]any
}

// PeerView exposes read-only peer state for the debug surface.
type PeerView interface {
	Neighbors() []domain.NodeID
	Suspects() map[domain.NodeID]int
	DeadNodes() []domain.NodeID
}

// NewSeedServer builds the debug HTTP handler for a seed process.
func NewSeedServer(view SeedView) http.Handler {
	r := chi.NewRouter()
	mountCommon(r)

	r.Get("/debug/pl", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"PL": view.PL()})
	})

	return r
}

// NewPeerServer builds the debug HTTP handler for a peer process.
func NewPeerServer(view PeerView) http.Handler {
	r := chi.NewRouter()
	mountCommon(r)

	r.Get("/debug/neighbors", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"neighbors": nodeIDStrings(view.Neighbors())})
	})
	r.Get("/debug/suspects", func(w http.ResponseWriter, req *http.Request) {
		suspects := view.Suspects()
		out := make(map[string]int, len(suspects))
		for id, votes := range suspects {
			out[id.String()] = votes
		}
		writeJSON(w, http.StatusOK, map[string]any{"suspects": out})
	})
	r.Get("/debug/dead", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"dead_nodes": nodeIDStrings(view.DeadNodes())})
	})

	return r
}

func mountCommon(r chi.Router) {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
}

func nodeIDStrings(ids []domain.NodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
