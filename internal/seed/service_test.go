package seed

import (
	"fmt"
	"testing"

	"github.com/meshgossip/overlay/internal/domain"
	"github.com/meshgossip/overlay/internal/logging"
	"github.com/meshgossip/overlay/internal/protocol"
)

func newTestService(t *testing.T, self domain.NodeID, seeds []domain.NodeID) *Service {
	t.Helper()
	log, err := logging.New("Seed", self.String(), "")
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	return New(self, seeds, log, nil)
}

func threeSeeds() (domain.NodeID, domain.NodeID, domain.NodeID) {
	return domain.NewNodeID("127.0.0.1", 5000),
		domain.NewNodeID("127.0.0.1", 5001),
		domain.NewNodeID("127.0.0.1", 5002)
}

func TestMajority(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{5, 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.n), func(t *testing.T) {
			seeds := make([]domain.NodeID, tt.n)
			for i := range seeds {
				seeds[i] = domain.NewNodeID("127.0.0.1", uint16(5000+i))
			}
			svc := newTestService(t, seeds[0], seeds)
			if got := svc.majority(); got != tt.want {
				t.Errorf("majority() with n=%d = %d, want %d", tt.n, got, tt.want)
			}
		})
	}
}

// TestHandleRegister_NoCommitBelowMajority checks that a seed with 2
// other seeds needs its own self-vote plus one more to commit. With
// self alone voting (no peer seeds reachable in this unit test) a
// 3-seed cluster should NOT yet commit.
func TestHandleRegister_NoCommitBelowMajority(t *testing.T) {
	s0, s1, s2 := threeSeeds()
	svc := newTestService(t, s0, []domain.NodeID{s0, s1, s2})

	peer := domain.NewNodeID("127.0.0.1", 6000)
	status := svc.HandleRegister(peer)
	if status != "PROPOSAL_STARTED" {
		t.Fatalf("HandleRegister status = %q, want PROPOSAL_STARTED", status)
	}

	pl := svc.PL()
	if len(pl) != 0 {
		t.Fatalf("PL should be empty before majority reached, got %v", pl)
	}
}

func TestHandleRegister_AlreadyRegistered(t *testing.T) {
	s0, s1, s2 := threeSeeds()
	svc := newTestService(t, s0, []domain.NodeID{s0, s1, s2})

	peer := domain.NewNodeID("127.0.0.1", 6000)
	svc.HandleVoteAdd(peer, s1)
	svc.HandleVoteAdd(peer, s2) // second vote reaches majority (2 of 3) and commits
	svc.HandleRegister(peer)    // peer already in PL: no self-vote is recorded

	pl := svc.PL()
	if len(pl) != 1 {
		t.Fatalf("expected peer committed to PL, got %v", pl)
	}

	status := svc.HandleRegister(peer)
	if status != "ALREADY_REGISTERED" {
		t.Errorf("second HandleRegister status = %q, want ALREADY_REGISTERED", status)
	}
}

func TestCheckConsensusAdd_CommitsAtMajority(t *testing.T) {
	s0, s1, s2 := threeSeeds()
	svc := newTestService(t, s0, []domain.NodeID{s0, s1, s2})
	peer := domain.NewNodeID("127.0.0.1", 6000)

	svc.HandleRegister(peer) // self-vote: 1/3

	if len(svc.PL()) != 0 {
		t.Fatal("should not have committed with only 1 of 3 votes")
	}

	svc.HandleVoteAdd(peer, s1) // 2/3 reaches majority

	pl := svc.PL()
	if len(pl) != 1 || pl[0] != peer.Pair() {
		t.Fatalf("PL after majority vote = %v, want [%v]", pl, peer.Pair())
	}

	// A further vote from s2 must not double-add or error.
	svc.HandleVoteAdd(peer, s2)
	if len(svc.PL()) != 1 {
		t.Errorf("PL size changed after already-committed vote: %v", svc.PL())
	}
}

func TestHandleCommitAdd_Idempotent(t *testing.T) {
	s0, s1, s2 := threeSeeds()
	svc := newTestService(t, s0, []domain.NodeID{s0, s1, s2})
	peer := domain.NewNodeID("127.0.0.1", 6000)

	svc.HandleCommitAdd(peer)
	svc.HandleCommitAdd(peer)

	pl := svc.PL()
	if len(pl) != 1 {
		t.Fatalf("PL after repeated COMMIT_ADD = %v, want exactly one entry", pl)
	}
}

func TestDeadNodeRemoveProtocol(t *testing.T) {
	s0, s1, s2 := threeSeeds()
	svc := newTestService(t, s0, []domain.NodeID{s0, s1, s2})
	peer := domain.NewNodeID("127.0.0.1", 6000)

	svc.HandleCommitAdd(peer) // seed with peer already present

	reporter := domain.NewNodeID("127.0.0.1", 6001)
	svc.HandleDeadNode(peer, reporter) // self-vote: 1/3
	if len(svc.PL()) != 1 {
		t.Fatal("peer should still be present before REMOVE quorum")
	}

	svc.HandleVoteRemove(peer, s1) // 2/3 commits

	pl := svc.PL()
	if len(pl) != 0 {
		t.Fatalf("PL after REMOVE commit = %v, want empty", pl)
	}
}

func TestDeadNodeCommitRemove_NoOpIfAbsent(t *testing.T) {
	s0, s1, s2 := threeSeeds()
	svc := newTestService(t, s0, []domain.NodeID{s0, s1, s2})
	peer := domain.NewNodeID("127.0.0.1", 6000)

	svc.HandleCommitRemove(peer) // never added; must not panic or misbehave
	if len(svc.PL()) != 0 {
		t.Fatalf("PL = %v, want empty", svc.PL())
	}
}

func TestDispatch_GetPL(t *testing.T) {
	s0, s1, s2 := threeSeeds()
	svc := newTestService(t, s0, []domain.NodeID{s0, s1, s2})
	peer := domain.NewNodeID("127.0.0.1", 6000)
	svc.HandleCommitAdd(peer)

	reply := svc.Dispatch(nil, protocol.Envelope{Type: protocol.TypeGetPL})
	if reply == nil {
		t.Fatal("Dispatch(GET_PL) returned nil reply")
	}
	if reply.Status != "SUCCESS" {
		t.Errorf("Dispatch(GET_PL).Status = %q, want SUCCESS", reply.Status)
	}
	if len(reply.PL) != 1 {
		t.Errorf("Dispatch(GET_PL).PL = %v, want one entry", reply.PL)
	}
}
