// Package seed implements the seed membership service: a replicated peer
// list (PL) kept consistent across the static seed set via majority
// quorum voting over ADD/REMOVE proposals. Adapted in
// shape from the reference repo's federation.Registry — a mutex-guarded
// map of structs with lifecycle transitions and fmt.Errorf-wrapped
// lookups — with the federation domain fully replaced by proposal
// tracking.
package seed

import (
	"net"
	"sync"

	"github.com/meshgossip/overlay/internal/domain"
	"github.com/meshgossip/overlay/internal/infra/observability"
	"github.com/meshgossip/overlay/internal/logging"
	"github.com/meshgossip/overlay/internal/protocol"
	"github.com/meshgossip/overlay/internal/transport"
)

// Kind distinguishes the two proposal flavors a ProposalKey can carry.
type Kind string

const (
	KindAdd    Kind = "ADD"
	KindRemove Kind = "REMOVE"
)

// proposalKey identifies one proposal lifecycle: a (peer, kind) pair.
type proposalKey struct {
	peer domain.NodeID
	kind Kind
}

// AuditSink receives a notification for every committed proposal. Seed
// passes nil when no audit sink is configured — strictly optional,
// write-only.
type AuditSink interface {
	RecordCommit(kind, peerIP string, peerPort uint16)
}

// Service holds one seed's replicated membership state: PL, the
// in-flight proposal vote tallies, and the idempotency guard over
// already-committed proposals.
type Service struct {
	mu sync.Mutex

	self  domain.NodeID
	seeds []domain.NodeID // static, identical across all seeds

	pl         map[domain.NodeID]struct{}
	proposals  map[proposalKey]map[domain.NodeID]struct{}
	committed  map[proposalKey]struct{}

	log   *logging.Logger
	audit AuditSink
}

// New creates a seed Service. seeds must include self.
func New(self domain.NodeID, seeds []domain.NodeID, log *logging.Logger, audit AuditSink) *Service {
	return &Service{
		self:      self,
		seeds:     seeds,
		pl:        make(map[domain.NodeID]struct{}),
		proposals: make(map[proposalKey]map[domain.NodeID]struct{}),
		committed: make(map[proposalKey]struct{}),
		log:       log,
		audit:     audit,
	}
}

// majority returns floor(N/2)+1 where N is the number of seeds
//, including self.
func (s *Service) majority() int {
	return len(s.seeds)/2 + 1
}

// PL returns a snapshot of the committed peer list, in the
// [[ip,port],...] wire shape GET_PL replies use.
func (s *Service) PL() [][2]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][2]any, 0, len(s.pl))
	for p := range s.pl {
		out = append(out, p.Pair())
	}
	return out
}

// otherSeeds returns the static seed list excluding self, for
// broadcast fan-out. Broadcasting must never happen while s.mu is held
//, so callers
// copy the peers to contact first and dispatch sends afterward.
func (s *Service) otherSeeds() []domain.NodeID {
	out := make([]domain.NodeID, 0, len(s.seeds))
	for _, sd := range s.seeds {
		if sd != s.self {
			out = append(out, sd)
		}
	}
	return out
}

func (s *Service) broadcastToSeeds(msg protocol.Envelope) {
	for _, sd := range s.otherSeeds() {
		go transport.Send(sd, msg)
	}
}

// ─── REGISTER / ADD protocol ────────────────────────────────

// HandleRegister processes an inbound REGISTER from a peer. Returns the
// status to send back on the same connection.
func (s *Service) HandleRegister(peer domain.NodeID) string {
	s.mu.Lock()
	if _, ok := s.pl[peer]; ok {
		s.mu.Unlock()
		return protocol.StatusAlreadyRegistered
	}
	key := proposalKey{peer: peer, kind: KindAdd}
	if s.proposals[key] == nil {
		s.proposals[key] = make(map[domain.NodeID]struct{})
	}
	s.proposals[key][s.self] = struct{}{}
	s.mu.Unlock()

	s.log.Logf("Received REGISTER from peer %s", peer)
	s.log.Logf("Proposing ADD for %s", peer)
	observability.ProposalsStarted.WithLabelValues("ADD").Inc()

	s.broadcastToSeeds(protocol.Envelope{
		Type:       protocol.TypeProposeAdd,
		PeerIP:     peer.IP,
		PeerPort:   peer.Port,
		SenderIP:   s.self.IP,
		SenderPort: s.self.Port,
	})
	s.checkConsensusAdd(peer, key)
	return protocol.StatusProposalStarted
}

// HandleProposeAdd handles PROPOSE_ADD from another seed: unicast our
// vote back to the proposer.
func (s *Service) HandleProposeAdd(peer, sender domain.NodeID) {
	s.log.Logf("Received PROPOSE_ADD for %s from %s", peer, sender)
	go transport.Send(sender, protocol.Envelope{
		Type:      protocol.TypeVoteAdd,
		PeerIP:    peer.IP,
		PeerPort:  peer.Port,
		VoterIP:   s.self.IP,
		VoterPort: s.self.Port,
	})
}

// HandleVoteAdd records an incoming vote and checks for consensus.
func (s *Service) HandleVoteAdd(peer, voter domain.NodeID) {
	key := proposalKey{peer: peer, kind: KindAdd}
	s.mu.Lock()
	if _, done := s.committed[key]; done {
		s.mu.Unlock()
		return
	}
	if s.proposals[key] == nil {
		s.proposals[key] = make(map[domain.NodeID]struct{})
	}
	s.proposals[key][voter] = struct{}{}
	s.mu.Unlock()

	observability.VotesCast.WithLabelValues("ADD").Inc()
	s.checkConsensusAdd(peer, key)
}

// checkConsensusAdd commits the ADD proposal once votes reach majority.
func (s *Service) checkConsensusAdd(peer domain.NodeID, key proposalKey) {
	s.mu.Lock()
	if _, done := s.committed[key]; done {
		s.mu.Unlock()
		return
	}
	if len(s.proposals[key]) < s.majority() {
		s.mu.Unlock()
		return
	}
	s.pl[peer] = struct{}{}
	s.committed[key] = struct{}{}
	plSize := len(s.pl)
	s.mu.Unlock()

	s.log.Logf("Consensus reached (ADD): %s added to PL.", peer)
	observability.ProposalsCommitted.WithLabelValues("ADD").Inc()
	observability.PeerListSize.Set(float64(plSize))
	if s.audit != nil {
		s.audit.RecordCommit("ADD", peer.IP, peer.Port)
	}

	s.broadcastToSeeds(protocol.Envelope{
		Type:     protocol.TypeCommitAdd,
		PeerIP:   peer.IP,
		PeerPort: peer.Port,
	})
}

// HandleCommitAdd unconditionally adds peer to PL — COMMIT fan-out is
// the convergence mechanism for seeds that didn't see enough votes
// directly.
func (s *Service) HandleCommitAdd(peer domain.NodeID) {
	s.mu.Lock()
	s.pl[peer] = struct{}{}
	plSize := len(s.pl)
	s.mu.Unlock()

	s.log.Logf("Received COMMIT_ADD: %s added to PL.", peer)
	observability.PeerListSize.Set(float64(plSize))
}

// ─── DEAD_NODE / REMOVE protocol ─────────

// HandleDeadNode processes a DEAD_NODE report from a peer.
func (s *Service) HandleDeadNode(dead, reporter domain.NodeID) string {
	key := proposalKey{peer: dead, kind: KindRemove}
	s.mu.Lock()
	if s.proposals[key] == nil {
		s.proposals[key] = make(map[domain.NodeID]struct{})
	}
	s.proposals[key][s.self] = struct{}{}
	s.mu.Unlock()

	s.log.Logf("Received DEAD_NODE report for %s from %s", dead, reporter)
	s.log.Logf("Proposing REMOVE for %s", dead)
	observability.ProposalsStarted.WithLabelValues("REMOVE").Inc()

	s.broadcastToSeeds(protocol.Envelope{
		Type:       protocol.TypeProposeRemove,
		DeadIP:     dead.IP,
		DeadPort:   dead.Port,
		SenderIP:   s.self.IP,
		SenderPort: s.self.Port,
	})
	s.checkConsensusRemove(dead, key)
	return protocol.StatusProposalStarted
}

// HandleProposeRemove handles PROPOSE_REMOVE from another seed.
func (s *Service) HandleProposeRemove(dead, sender domain.NodeID) {
	s.log.Logf("Received PROPOSE_REMOVE for %s from %s", dead, sender)
	go transport.Send(sender, protocol.Envelope{
		Type:      protocol.TypeVoteRemove,
		DeadIP:    dead.IP,
		DeadPort:  dead.Port,
		VoterIP:   s.self.IP,
		VoterPort: s.self.Port,
	})
}

// HandleVoteRemove records an incoming vote and checks for consensus.
func (s *Service) HandleVoteRemove(dead, voter domain.NodeID) {
	key := proposalKey{peer: dead, kind: KindRemove}
	s.mu.Lock()
	if _, done := s.committed[key]; done {
		s.mu.Unlock()
		return
	}
	if s.proposals[key] == nil {
		s.proposals[key] = make(map[domain.NodeID]struct{})
	}
	s.proposals[key][voter] = struct{}{}
	s.mu.Unlock()

	observability.VotesCast.WithLabelValues("REMOVE").Inc()
	s.checkConsensusRemove(dead, key)
}

func (s *Service) checkConsensusRemove(dead domain.NodeID, key proposalKey) {
	s.mu.Lock()
	if _, done := s.committed[key]; done {
		s.mu.Unlock()
		return
	}
	if len(s.proposals[key]) < s.majority() {
		s.mu.Unlock()
		return
	}
	delete(s.pl, dead)
	s.committed[key] = struct{}{}
	plSize := len(s.pl)
	s.mu.Unlock()

	s.log.Logf("Consensus reached (REMOVE): %s removed from PL.", dead)
	observability.ProposalsCommitted.WithLabelValues("REMOVE").Inc()
	observability.PeerListSize.Set(float64(plSize))
	if s.audit != nil {
		s.audit.RecordCommit("REMOVE", dead.IP, dead.Port)
	}

	s.broadcastToSeeds(protocol.Envelope{
		Type:     protocol.TypeCommitRemove,
		DeadIP:   dead.IP,
		DeadPort: dead.Port,
	})
}

// HandleCommitRemove unconditionally removes dead from PL if present.
func (s *Service) HandleCommitRemove(dead domain.NodeID) {
	s.mu.Lock()
	delete(s.pl, dead)
	plSize := len(s.pl)
	s.mu.Unlock()

	s.log.Logf("Received COMMIT_REMOVE: %s removed from PL.", dead)
	observability.PeerListSize.Set(float64(plSize))
}

// Dispatch implements transport.Handler: one exhaustive switch over the
// message types a seed accepts. Unknown types are ignored.
func (s *Service) Dispatch(_ net.Addr, msg protocol.Envelope) *protocol.Envelope {
	switch msg.Type {
	case protocol.TypeRegister:
		status := s.HandleRegister(domain.NewNodeID(msg.PeerIP, msg.PeerPort))
		return &protocol.Envelope{Status: status}

	case protocol.TypeProposeAdd:
		s.HandleProposeAdd(
			domain.NewNodeID(msg.PeerIP, msg.PeerPort),
			domain.NewNodeID(msg.SenderIP, msg.SenderPort),
		)
		return nil

	case protocol.TypeVoteAdd:
		s.HandleVoteAdd(
			domain.NewNodeID(msg.PeerIP, msg.PeerPort),
			domain.NewNodeID(msg.VoterIP, msg.VoterPort),
		)
		return nil

	case protocol.TypeCommitAdd:
		s.HandleCommitAdd(domain.NewNodeID(msg.PeerIP, msg.PeerPort))
		return nil

	case protocol.TypeGetPL:
		return &protocol.Envelope{Status: protocol.StatusSuccess, PL: s.PL()}

	case protocol.TypeDeadNode:
		status := s.HandleDeadNode(
			domain.NewNodeID(msg.DeadIP, msg.DeadPort),
			domain.NewNodeID(msg.ReporterIP, msg.ReporterPort),
		)
		return &protocol.Envelope{Status: status}

	case protocol.TypeProposeRemove:
		s.HandleProposeRemove(
			domain.NewNodeID(msg.DeadIP, msg.DeadPort),
			domain.NewNodeID(msg.SenderIP, msg.SenderPort),
		)
		return nil

	case protocol.TypeVoteRemove:
		s.HandleVoteRemove(
			domain.NewNodeID(msg.DeadIP, msg.DeadPort),
			domain.NewNodeID(msg.VoterIP, msg.VoterPort),
		)
		return nil

	case protocol.TypeCommitRemove:
		s.HandleCommitRemove(domain.NewNodeID(msg.DeadIP, msg.DeadPort))
		return nil

	default:
		return nil
	}
}
