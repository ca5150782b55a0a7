// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// NodeID identifies a seed or peer by its (ip, port) pair. Equality is
// structural — two NodeIDs are the same node iff both fields match.
type NodeID struct {
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
}

// NewNodeID constructs a NodeID from an ip and a port.
func NewNodeID(ip string, port uint16) NodeID {
	return NodeID{IP: ip, Port: port}
}

// String renders the NodeID as "ip:port", its canonical map-key form.
func (n NodeID) String() string {
	return n.IP + ":" + strconv.Itoa(int(n.Port))
}

// Pair renders the NodeID as the ["ip", port] list the wire protocol
// uses for PL entries.
func (n NodeID) Pair() [2]any {
	return [2]any{n.IP, n.Port}
}

// Zero reports whether this is the unset NodeID.
func (n NodeID) Zero() bool {
	return n.IP == "" && n.Port == 0
}

// SHA256Hex computes the SHA-256 hash of data and returns it hex-encoded.
// Used to fingerprint gossip payloads for epidemic deduplication.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HumanSize formats a byte count for log and debug output.
func HumanSize(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
