// Package liveness implements the two-stage liveness detector and
// suspicion engine. Adapted in shape from the reference
// repo's swim.go probe cycle — a ticker-driven loop snapshotting
// members under a short-held lock, probing outside it — with the UDP
// piggyback/incarnation machinery replaced by this protocol's TCP
// PING/PONG and TTL-bounded SUSPECT re-broadcast.
package liveness

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/meshgossip/overlay/internal/domain"
	"github.com/meshgossip/overlay/internal/infra/observability"
	"github.com/meshgossip/overlay/internal/logging"
	"github.com/meshgossip/overlay/internal/peer"
	"github.com/meshgossip/overlay/internal/protocol"
	"github.com/meshgossip/overlay/internal/transport"
)

// Probe cadence.
const (
	ProbeWarmup   = 10 * time.Second
	ProbeInterval = 13 * time.Second
)

// Threshold is the default number of independent reporters required
// to commit a suspicion.
const Threshold = 2

// SuspectTTL bounds SUSPECT re-broadcast hops.
const SuspectTTL = 2

// AuditSink receives a notification for every committed dead-node
// declaration. nil disables the optional audit trail.
type AuditSink interface {
	RecordDead(ip string, port uint16)
}

// Detector tracks per-neighbor suspicion votes and declared-dead nodes
// for one peer.
type Detector struct {
	mu        sync.Mutex
	suspects  map[domain.NodeID]map[domain.NodeID]struct{}
	deadNodes map[domain.NodeID]struct{}

	self      domain.NodeID
	seeds     []domain.NodeID
	state     *peer.State
	reacher   Reacher
	log       *logging.Logger
	audit     AuditSink
	threshold int
	warmup    time.Duration
	interval  time.Duration
}

// New creates a Detector for self, reporting to seeds and mutating
// state's neighbor set on commit. Uses the default probe cadence and
// threshold; override with SetIntervals/SetThreshold from a tunables
// file.
func New(self domain.NodeID, seeds []domain.NodeID, state *peer.State, reacher Reacher, log *logging.Logger, audit AuditSink) *Detector {
	if reacher == nil {
		reacher = ICMPReacher{}
	}
	return &Detector{
		suspects:  make(map[domain.NodeID]map[domain.NodeID]struct{}),
		deadNodes: make(map[domain.NodeID]struct{}),
		self:      self,
		seeds:     seeds,
		state:     state,
		threshold: Threshold,
		warmup:    ProbeWarmup,
		interval:  ProbeInterval,
		reacher:   reacher,
		log:       log,
		audit:     audit,
	}
}

// SetIntervals overrides the probe warmup/interval.
func (d *Detector) SetIntervals(warmup, interval time.Duration) {
	d.warmup = warmup
	d.interval = interval
}

// SetThreshold overrides the default suspicion quorum threshold.
func (d *Detector) SetThreshold(threshold int) {
	d.threshold = threshold
}

// DeadNodes returns a snapshot of nodes this peer has declared dead.
func (d *Detector) DeadNodes() []domain.NodeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.NodeID, 0, len(d.deadNodes))
	for n := range d.deadNodes {
		out = append(out, n)
	}
	return out
}

// Suspects returns a snapshot of {suspect: reporter count} for debug
// introspection.
func (d *Detector) Suspects() map[domain.NodeID]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[domain.NodeID]int, len(d.suspects))
	for s, reporters := range d.suspects {
		out[s] = len(reporters)
	}
	return out
}

// probeOne runs the two-stage check: host_reachable(ip) ∧
// ping_ack(ip,port).
func (d *Detector) probeOne(ctx context.Context, n domain.NodeID) bool {
	if !d.reacher.HostReachable(ctx, n.IP) {
		return false
	}
	reply, ok := transport.SendRecv(n, protocol.Envelope{Type: protocol.TypePing})
	return ok && reply.Status == protocol.StatusPong
}

// HandleSuspicion records reporter's vote for suspect and commits to
// dead_nodes once the vote count reaches threshold. Returns true iff
// this call caused the commit.
func (d *Detector) HandleSuspicion(suspect, reporter domain.NodeID) bool {
	d.mu.Lock()
	if _, dead := d.deadNodes[suspect]; dead {
		d.mu.Unlock()
		return false
	}
	if d.suspects[suspect] == nil {
		d.suspects[suspect] = make(map[domain.NodeID]struct{})
	}
	d.suspects[suspect][reporter] = struct{}{}
	votes := len(d.suspects[suspect])

	threshold := d.threshold
	if d.state.Degree() <= 1 {
		threshold = 1 // acknowledged trade-off: no second witness can exist
	}

	commit := votes >= threshold
	if commit {
		d.deadNodes[suspect] = struct{}{}
	}
	d.mu.Unlock()

	observability.SuspicionVotes.Inc()

	if !commit {
		return false
	}

	d.state.RemoveNeighbor(suspect)
	d.log.Logf("Suspicion quorum reached for %s; declaring dead", suspect)
	observability.DeadNodesDeclared.Inc()
	if d.audit != nil {
		d.audit.RecordDead(suspect.IP, suspect.Port)
	}
	go d.reportDeadNodeToSeeds(suspect)
	return true
}

// reportDeadNodeToSeeds sends DEAD_NODE to every seed, not just a
// majority subset.
func (d *Detector) reportDeadNodeToSeeds(dead domain.NodeID) {
	msg := protocol.Envelope{
		Type:         protocol.TypeDeadNode,
		DeadIP:       dead.IP,
		DeadPort:     dead.Port,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		ReporterIP:   d.self.IP,
		ReporterPort: d.self.Port,
	}
	for _, sd := range d.seeds {
		go transport.Send(sd, msg)
	}
}

// broadcastSuspect sends SUSPECT{suspect, reporter=self, origin,
// ttl} to every current neighbor except exclude.
func (d *Detector) broadcastSuspect(suspect, origin, exclude domain.NodeID, ttl int) {
	msg := protocol.Envelope{
		Type:        protocol.TypeSuspect,
		SuspectIP:   suspect.IP,
		SuspectPort: suspect.Port,
		ReporterIP:  d.self.IP,
		ReporterPort: d.self.Port,
		OriginIP:    origin.IP,
		OriginPort:  origin.Port,
		TTL:         ttl,
	}
	for _, n := range d.state.NeighborsExcept(exclude) {
		go transport.Send(n, msg)
	}
}

// Dispatch implements transport.Handler for SUSPECT. The reporter
// field is rewritten to self before re-forwarding, mirroring GOSSIP's
// sender-rewrite rule; origin is left untouched end to end.
func (d *Detector) Dispatch(_ net.Addr, msg protocol.Envelope) *protocol.Envelope {
	if msg.Type != protocol.TypeSuspect {
		return nil
	}

	suspect := domain.NewNodeID(msg.SuspectIP, msg.SuspectPort)
	reporter := domain.NewNodeID(msg.ReporterIP, msg.ReporterPort)
	origin := domain.NewNodeID(msg.OriginIP, msg.OriginPort)

	d.HandleSuspicion(suspect, reporter)

	if msg.TTL > 0 {
		d.broadcastSuspect(suspect, origin, reporter, msg.TTL-1)
	}
	return nil
}

// Run drives the probe cycle: after ProbeWarmup, every ProbeInterval,
// snapshot neighbors and probe each one.
// A neighbor that fails either probe stage is recorded as a local
// suspicion and broadcast to the rest of the neighborhood.
func (d *Detector) Run(ctx context.Context) {
	timer := time.NewTimer(d.warmup)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			d.probeCycle(ctx)
			timer.Reset(d.interval)
		}
	}
}

func (d *Detector) probeCycle(ctx context.Context) {
	for _, n := range d.state.Neighbors() {
		if d.probeOne(ctx, n) {
			continue
		}
		observability.ProbesFailed.Inc()
		d.log.Logf("Probe failed for neighbor %s; registering local suspicion", n)
		d.HandleSuspicion(n, d.self)
		d.broadcastSuspect(n, d.self, d.self, SuspectTTL)
	}
}
