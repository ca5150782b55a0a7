package liveness

import (
	"context"
	"testing"

	"github.com/meshgossip/overlay/internal/domain"
	"github.com/meshgossip/overlay/internal/logging"
	"github.com/meshgossip/overlay/internal/peer"
	"github.com/meshgossip/overlay/internal/protocol"
)

type fakeReacher struct{ reachable bool }

func (f fakeReacher) HostReachable(_ context.Context, _ string) bool { return f.reachable }

func newTestDetector(t *testing.T, self domain.NodeID, neighbors ...domain.NodeID) (*Detector, *peer.State) {
	t.Helper()
	log, err := logging.New("Peer", self.String(), "")
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	state := peer.NewState(self)
	for _, n := range neighbors {
		state.AddNeighbor(n)
	}
	seeds := []domain.NodeID{domain.NewNodeID("127.0.0.1", 5000)}
	return New(self, seeds, state, fakeReacher{reachable: true}, log, nil), state
}

func TestHandleSuspicion_CommitsAtThresholdTwo(t *testing.T) {
	self := domain.NewNodeID("127.0.0.1", 6000)
	suspect := domain.NewNodeID("127.0.0.1", 6001)
	d, state := newTestDetector(t, self, suspect, domain.NewNodeID("127.0.0.1", 6002))

	r1 := domain.NewNodeID("127.0.0.1", 7001)
	r2 := domain.NewNodeID("127.0.0.1", 7002)

	if committed := d.HandleSuspicion(suspect, r1); committed {
		t.Fatal("single vote should not commit with threshold 2")
	}
	if committed := d.HandleSuspicion(suspect, r2); !committed {
		t.Fatal("second independent vote should commit")
	}
	if state.HasNeighbor(suspect) {
		t.Error("suspect should be removed from neighbors after commit")
	}
}

func TestHandleSuspicion_RelaxedThresholdWithOneNeighbor(t *testing.T) {
	self := domain.NewNodeID("127.0.0.1", 6000)
	suspect := domain.NewNodeID("127.0.0.1", 6001)
	d, _ := newTestDetector(t, self, suspect) // only 1 neighbor total

	reporter := domain.NewNodeID("127.0.0.1", 7001)
	if committed := d.HandleSuspicion(suspect, reporter); !committed {
		t.Fatal("single vote should commit when neighbor count <= 1")
	}
}

func TestHandleSuspicion_TerminalAfterDead(t *testing.T) {
	self := domain.NewNodeID("127.0.0.1", 6000)
	suspect := domain.NewNodeID("127.0.0.1", 6001)
	d, _ := newTestDetector(t, self, suspect, domain.NewNodeID("127.0.0.1", 6002))

	d.HandleSuspicion(suspect, domain.NewNodeID("127.0.0.1", 7001))
	d.HandleSuspicion(suspect, domain.NewNodeID("127.0.0.1", 7002))

	// Once dead, further votes are a no-op (terminal state).
	committed := d.HandleSuspicion(suspect, domain.NewNodeID("127.0.0.1", 7003))
	if committed {
		t.Error("vote after terminal dead state should not re-commit")
	}
	dead := d.DeadNodes()
	if len(dead) != 1 || dead[0] != suspect {
		t.Errorf("DeadNodes() = %v, want [%v]", dead, suspect)
	}
}

func TestDispatch_RecordsReporterVote(t *testing.T) {
	self := domain.NewNodeID("127.0.0.1", 6000)
	suspect := domain.NewNodeID("127.0.0.1", 6001)
	reporter := domain.NewNodeID("127.0.0.1", 7001)
	origin := domain.NewNodeID("127.0.0.1", 7000)
	d, state := newTestDetector(t, self, suspect, domain.NewNodeID("127.0.0.1", 6002))
	_ = state

	reply := d.Dispatch(nil, protocol.Envelope{
		Type:         protocol.TypeSuspect,
		SuspectIP:    suspect.IP,
		SuspectPort:  suspect.Port,
		ReporterIP:   reporter.IP,
		ReporterPort: reporter.Port,
		OriginIP:     origin.IP,
		OriginPort:   origin.Port,
		TTL:          2,
	})
	if reply != nil {
		t.Errorf("Dispatch(SUSPECT) = %+v, want nil", reply)
	}

	suspects := d.Suspects()
	if suspects[suspect] != 1 {
		t.Errorf("Suspects()[suspect] = %d, want 1", suspects[suspect])
	}
}

func TestDispatch_IgnoresOtherTypes(t *testing.T) {
	self := domain.NewNodeID("127.0.0.1", 6000)
	d, _ := newTestDetector(t, self)

	if reply := d.Dispatch(nil, protocol.Envelope{Type: protocol.TypePing}); reply != nil {
		t.Errorf("Dispatch(PING) = %+v, want nil", reply)
	}
}
