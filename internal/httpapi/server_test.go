package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meshgossip/overlay/internal/domain"
)

type fakeSeedView struct{ pl [][2]any }

func (f fakeSeedView) PL() [][2]any { return f.pl }

type fakePeerView struct {
	neighbors []domain.NodeID
	suspects  map[domain.NodeID]int
	dead      []domain.NodeID
}

func (f fakePeerView) Neighbors() []domain.NodeID        { return f.neighbors }
func (f fakePeerView) Suspects() map[domain.NodeID]int   { return f.suspects }
func (f fakePeerView) DeadNodes() []domain.NodeID        { return f.dead }

func TestSeedServer_Healthz(t *testing.T) {
	srv := NewSeedServer(fakeSeedView{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GET /healthz status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestSeedServer_DebugPL(t *testing.T) {
	pl := [][2]any{{"127.0.0.1", uint16(6000)}}
	srv := NewSeedServer(fakeSeedView{pl: pl})
	req := httptest.NewRequest(http.MethodGet, "/debug/pl", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GET /debug/pl status = %d, want 200", w.Code)
	}
}

func TestPeerServer_DebugNeighbors(t *testing.T) {
	view := fakePeerView{
		neighbors: []domain.NodeID{domain.NewNodeID("127.0.0.1", 6001)},
		suspects:  map[domain.NodeID]int{domain.NewNodeID("127.0.0.1", 6002): 1},
		dead:      []domain.NodeID{domain.NewNodeID("127.0.0.1", 6003)},
	}
	srv := NewPeerServer(view)

	for _, path := range []string{"/debug/neighbors", "/debug/suspects", "/debug/dead"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, w.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewSeedServer(fakeSeedView{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", w.Code)
	}
}
