package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Seed membership errors
	ErrAlreadyRegistered = errors.New("peer already registered")
	ErrProposalCommitted = errors.New("proposal already committed")
	ErrNotMajority       = errors.New("too few seeds reachable for quorum")

	// Transport errors
	ErrFrameTooLarge  = errors.New("message exceeds frame size limit")
	ErrUnknownMessage = errors.New("unknown message type")

	// Peer topology errors
	ErrNoCandidatePeers = errors.New("no candidate peers available for attachment")
)
