// Package router implements the Message Router: an
// exhaustive switch over the inbound Envelope's type field, dispatching
// to whichever component owns that message. Unknown types are dropped
// silently, matching every per-message handler's own default case.
package router

import (
	"net"

	"github.com/meshgossip/overlay/internal/gossip"
	"github.com/meshgossip/overlay/internal/liveness"
	"github.com/meshgossip/overlay/internal/peer"
	"github.com/meshgossip/overlay/internal/protocol"
	"github.com/meshgossip/overlay/internal/seed"
)

// SeedRouter wraps a seed.Service as a transport.Handler. Seeds only
// ever see the seed-facing message set (REGISTER, PROPOSE/VOTE/COMMIT
// ADD and REMOVE, GET_PL, DEAD_NODE), all of which seed.Service.Dispatch
// already handles directly — this wrapper exists so cmd/gossipd wires
// both roles through the same router package.
type SeedRouter struct {
	svc *seed.Service
}

// NewSeedRouter wraps svc.
func NewSeedRouter(svc *seed.Service) *SeedRouter {
	return &SeedRouter{svc: svc}
}

// Dispatch implements transport.Handler.
func (r *SeedRouter) Dispatch(from net.Addr, msg protocol.Envelope) *protocol.Envelope {
	return r.svc.Dispatch(from, msg)
}

// PeerRouter fans inbound messages out across the three components
// that together own a peer's message set: neighbor-set queries
// (peer.State), gossip relay (gossip.Engine), and suspicion
// (liveness.Detector).
type PeerRouter struct {
	state    *peer.State
	gossip   *gossip.Engine
	liveness *liveness.Detector
}

// NewPeerRouter composes the three peer-side handlers into one router.
func NewPeerRouter(state *peer.State, g *gossip.Engine, l *liveness.Detector) *PeerRouter {
	return &PeerRouter{state: state, gossip: g, liveness: l}
}

// Dispatch implements transport.Handler, routing by Envelope.Type.
func (r *PeerRouter) Dispatch(from net.Addr, msg protocol.Envelope) *protocol.Envelope {
	switch msg.Type {
	case protocol.TypeGetDegree, protocol.TypeAddNeighbor, protocol.TypePing:
		return r.state.Dispatch(from, msg)
	case protocol.TypeGossip:
		return r.gossip.Dispatch(from, msg)
	case protocol.TypeSuspect:
		return r.liveness.Dispatch(from, msg)
	default:
		return nil
	}
}
