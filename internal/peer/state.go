// Package peer implements peer-side node state: the neighbor set built
// by the topology builder and the handlers for the two
// peer-to-peer messages that query/mutate it (GET_DEGREE, ADD_NEIGHBOR).
// Mutex shape follows the reference repo's swim.go Node: one coarse
// mutex guarding a map, snapshotted before any network call so the
// lock is never held across I/O.
package peer

import (
	"net"
	"sync"

	"github.com/meshgossip/overlay/internal/domain"
	"github.com/meshgossip/overlay/internal/infra/observability"
	"github.com/meshgossip/overlay/internal/protocol"
)

// State holds one peer's overlay view: its current neighbor set.
// Suspicion and dead-node bookkeeping live in internal/liveness, which
// holds a *State to remove neighbors on commit.
type State struct {
	mu        sync.Mutex
	self      domain.NodeID
	neighbors map[domain.NodeID]struct{}
}

// NewState creates an empty peer State for self.
func NewState(self domain.NodeID) *State {
	return &State{
		self:      self,
		neighbors: make(map[domain.NodeID]struct{}),
	}
}

// Self returns this peer's own identity.
func (s *State) Self() domain.NodeID { return s.self }

// AddNeighbor adds id to the neighbor set. Idempotent.
func (s *State) AddNeighbor(id domain.NodeID) {
	s.mu.Lock()
	s.neighbors[id] = struct{}{}
	n := len(s.neighbors)
	s.mu.Unlock()
	observability.NeighborCount.Set(float64(n))
}

// RemoveNeighbor drops id from the neighbor set, if present.
func (s *State) RemoveNeighbor(id domain.NodeID) {
	s.mu.Lock()
	delete(s.neighbors, id)
	n := len(s.neighbors)
	s.mu.Unlock()
	observability.NeighborCount.Set(float64(n))
}

// Neighbors returns a snapshot of the current neighbor set.
func (s *State) Neighbors() []domain.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.NodeID, 0, len(s.neighbors))
	for n := range s.neighbors {
		out = append(out, n)
	}
	return out
}

// NeighborsExcept returns a snapshot of the neighbor set excluding one
// node — used by the gossip and suspicion broadcast paths, which must
// not echo a message straight back to whoever just sent it.
func (s *State) NeighborsExcept(exclude domain.NodeID) []domain.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.NodeID, 0, len(s.neighbors))
	for n := range s.neighbors {
		if n != exclude {
			out = append(out, n)
		}
	}
	return out
}

// Degree returns the current neighbor count.
func (s *State) Degree() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.neighbors)
}

// HasNeighbor reports whether id is currently a neighbor.
func (s *State) HasNeighbor(id domain.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.neighbors[id]
	return ok
}

// Dispatch implements transport.Handler for the peer-local, neighbor-set
// messages GET_DEGREE and ADD_NEIGHBOR, and also answers PING with PONG
// (which needs no state).
func (s *State) Dispatch(_ net.Addr, msg protocol.Envelope) *protocol.Envelope {
	switch msg.Type {
	case protocol.TypeGetDegree:
		return &protocol.Envelope{Status: protocol.StatusSuccess, Degree: s.Degree()}

	case protocol.TypeAddNeighbor:
		s.AddNeighbor(domain.NewNodeID(msg.PeerIP, msg.PeerPort))
		return &protocol.Envelope{Status: protocol.StatusSuccess}

	case protocol.TypePing:
		return &protocol.Envelope{Status: protocol.StatusPong}

	default:
		return nil
	}
}
