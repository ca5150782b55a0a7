package liveness

import (
	"context"
	"os/exec"
)

// Reacher answers the "is this host up at the network layer" half of
// the host_reachable(ip) ∧ ping_ack(ip,port) probe. Split out as an
// interface so tests can inject a fake instead of shelling out to a
// real ping binary.
type Reacher interface {
	HostReachable(ctx context.Context, ip string) bool
}

// ICMPReacher shells out to the system ping binary, one packet, a
// short deadline.
type ICMPReacher struct{}

// HostReachable runs "ping -c 1 -W 1 <ip>" and reports whether it
// exited zero.
func (ICMPReacher) HostReachable(ctx context.Context, ip string) bool {
	cmd := exec.CommandContext(ctx, "ping", "-c", "1", "-W", "1", ip)
	return cmd.Run() == nil
}
