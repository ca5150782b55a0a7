// Package gossip implements the epidemic dissemination engine: message
// generation, exact-fingerprint dedup backed by a bounded FIFO message
// log (ML), a Bloom filter fast-reject pre-check in front of it, and
// forward-to-neighbors-except-sender relay.
package gossip

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/meshgossip/overlay/internal/domain"
	"github.com/meshgossip/overlay/internal/infra/dsa"
	"github.com/meshgossip/overlay/internal/infra/observability"
	"github.com/meshgossip/overlay/internal/logging"
	"github.com/meshgossip/overlay/internal/peer"
	"github.com/meshgossip/overlay/internal/protocol"
	"github.com/meshgossip/overlay/internal/transport"
)

// MLCap bounds the message log at 5000 fingerprints, evicted
// deterministically FIFO rather than relying on Go's nondeterministic
// map iteration order.
const MLCap = 5000

// GenerationWarmup and GenerationInterval are the default generation
// cadence.
const (
	GenerationWarmup   = 5 * time.Second
	GenerationInterval = 5 * time.Second
)

// DefaultMaxMsg caps the number of self-originated gossip messages a
// peer generates before falling silent.
const DefaultMaxMsg = 10

// Engine holds the message log and drives both generation and relay.
type Engine struct {
	mu    sync.Mutex
	order []string // ring buffer of fingerprints, oldest-first
	set   map[string]struct{}
	next  int
	size  int

	bloom *dsa.BloomFilter

	state  *peer.State
	log    *logging.Logger
	maxMsg int

	warmup   time.Duration
	interval time.Duration
}

// New creates a gossip Engine bound to state, generating at most maxMsg
// messages (DefaultMaxMsg if <= 0) on the default cadence. Use
// SetIntervals to override the cadence from a tunables file.
func New(state *peer.State, log *logging.Logger, maxMsg int) *Engine {
	if maxMsg <= 0 {
		maxMsg = DefaultMaxMsg
	}
	return &Engine{
		order:    make([]string, MLCap),
		set:      make(map[string]struct{}, MLCap),
		bloom:    dsa.NewBloomFilter(dsa.DefaultBloomConfig()),
		state:    state,
		log:      log,
		maxMsg:   maxMsg,
		warmup:   GenerationWarmup,
		interval: GenerationInterval,
	}
}

// SetIntervals overrides the generation warmup/interval, e.g. from an
// operator-supplied tunables file (SPEC_FULL.md §2).
func (e *Engine) SetIntervals(warmup, interval time.Duration) {
	e.warmup = warmup
	e.interval = interval
}

// seen reports whether fingerprint is already in the message log. The
// Bloom filter answers "definitely not" in O(1) without taking the
// exact-set lock's contention; a Bloom hit falls through to the exact
// check, which is authoritative.
func (e *Engine) seen(fingerprint string) bool {
	if !e.bloom.Contains(fingerprint) {
		return false
	}
	e.mu.Lock()
	_, ok := e.set[fingerprint]
	e.mu.Unlock()
	return ok
}

// insertLocked inserts fingerprint into the message log, evicting the
// oldest entry first if the log is at capacity. Caller must hold e.mu.
func (e *Engine) insertLocked(fingerprint string) int {
	if e.size == len(e.order) {
		evicted := e.order[e.next]
		delete(e.set, evicted)
	} else {
		e.size++
	}
	e.order[e.next] = fingerprint
	e.set[fingerprint] = struct{}{}
	e.next = (e.next + 1) % len(e.order)
	return e.size
}

// record unconditionally inserts fingerprint into the message log,
// e.g. for a self-generated message that is always new.
func (e *Engine) record(fingerprint string) {
	e.mu.Lock()
	mlSize := e.insertLocked(fingerprint)
	e.mu.Unlock()

	e.bloom.Add(fingerprint)
	observability.MessageLogSize.Set(float64(mlSize))
}

// checkAndRecord reports whether fingerprint is new, inserting it into
// the message log in the same critical section as the check. This
// keeps the two concurrent deliveries of the same fingerprint (the
// normal case in epidemic gossip) from both observing "not seen": only
// one of them can win the insert. The Bloom filter is consulted before
// the lock, but both a Bloom miss and a Bloom hit are confirmed against
// the exact set under the lock, since a concurrent delivery can insert
// the fingerprint between the Bloom check and the lock.
func (e *Engine) checkAndRecord(fingerprint string) bool {
	if !e.bloom.Contains(fingerprint) {
		e.mu.Lock()
		if _, ok := e.set[fingerprint]; ok {
			e.mu.Unlock()
			return false
		}
		mlSize := e.insertLocked(fingerprint)
		e.mu.Unlock()
		e.bloom.Add(fingerprint)
		observability.MessageLogSize.Set(float64(mlSize))
		return true
	}

	e.mu.Lock()
	if _, ok := e.set[fingerprint]; ok {
		e.mu.Unlock()
		return false
	}
	mlSize := e.insertLocked(fingerprint)
	e.mu.Unlock()
	e.bloom.Add(fingerprint)
	observability.MessageLogSize.Set(float64(mlSize))
	return true
}

// Dispatch implements transport.Handler for GOSSIP. Duplicate
// fingerprints are silently dropped; new ones are recorded and
// relayed to every neighbor except whoever sent this hop.
func (e *Engine) Dispatch(_ net.Addr, msg protocol.Envelope) *protocol.Envelope {
	if msg.Type != protocol.TypeGossip {
		return nil
	}

	fingerprint := domain.SHA256Hex([]byte(msg.Message))
	if !e.checkAndRecord(fingerprint) {
		observability.GossipDropped.Inc()
		return nil
	}
	e.log.Logf("Received gossip %q from %s:%d", msg.Message, msg.SenderIP, msg.SenderPort)

	sender := domain.NewNodeID(msg.SenderIP, msg.SenderPort)
	self := e.state.Self()
	forward := protocol.Envelope{
		Type:       protocol.TypeGossip,
		Message:    msg.Message,
		SenderIP:   self.IP, // sender-rewrite rule: next hop excludes us, not the origin
		SenderPort: self.Port,
	}
	for _, n := range e.state.NeighborsExcept(sender) {
		go transport.Send(n, forward)
	}
	observability.GossipForwarded.Inc()
	return nil
}

// Run drives the generation loop: after GenerationWarmup, every
// GenerationInterval, produce one gossip message until maxMsg is
// reached. Returns when ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	self := e.state.Self()

	timer := time.NewTimer(e.warmup)
	defer timer.Stop()

	count := 0
	for count < e.maxMsg {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			count++
			payload := fmt.Sprintf("%d:%s:%d", time.Now().Unix(), self.IP, count)
			fingerprint := domain.SHA256Hex([]byte(payload))
			e.record(fingerprint)

			e.log.Logf("Generated gossip message %d: %q", count, payload)
			observability.GossipGenerated.Inc()

			msg := protocol.Envelope{
				Type:       protocol.TypeGossip,
				Message:    payload,
				SenderIP:   self.IP,
				SenderPort: self.Port,
			}
			for _, n := range e.state.Neighbors() {
				go transport.Send(n, msg)
			}
			timer.Reset(e.interval)
		}
	}
}
