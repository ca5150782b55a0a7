// Package daemon loads the two config inputs a gossipd process needs:
// a CSV seed list shared by every node, and an optional TOML file of
// runtime tunables layered over literal defaults — the same
// DefaultConfig() pattern the reference repo's daemon config uses.
package daemon

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/meshgossip/overlay/internal/domain"
)

// Tunables holds the runtime parameters left as implementation-chosen
// constants: gossip/probe cadence, suspicion threshold, message caps.
type Tunables struct {
	GossipInterval  time.Duration `toml:"-"`
	ProbeInterval   time.Duration `toml:"-"`
	DialTimeout     time.Duration `toml:"-"`
	SuspicionThresh int           `toml:"suspicion_threshold"`
	MaxGossipMsgs   int           `toml:"max_gossip_messages"`
	MessageLogCap   int           `toml:"message_log_cap"`

	// Durations are expressed in seconds in the TOML file since
	// BurntSushi/toml has no native time.Duration decoding.
	GossipIntervalSec int `toml:"gossip_interval_seconds"`
	ProbeIntervalSec  int `toml:"probe_interval_seconds"`
	DialTimeoutSec    int `toml:"dial_timeout_seconds"`
}

// DefaultTunables returns the baseline defaults: 5s gossip interval,
// 13s probe interval, 2s dial timeout, threshold=2, max_msg=10, ML
// cap 5000.
func DefaultTunables() Tunables {
	return Tunables{
		GossipInterval:    5 * time.Second,
		ProbeInterval:     13 * time.Second,
		DialTimeout:       2 * time.Second,
		SuspicionThresh:   2,
		MaxGossipMsgs:     10,
		MessageLogCap:     5000,
		GossipIntervalSec: 5,
		ProbeIntervalSec:  13,
		DialTimeoutSec:    2,
	}
}

// LoadTunables reads an optional TOML overrides file at path, merging
// over DefaultTunables(). An empty path returns the defaults unchanged.
func LoadTunables(path string) (Tunables, error) {
	cfg := DefaultTunables()
	if path == "" {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Tunables{}, fmt.Errorf("decode tunables %s: %w", path, err)
	}

	if cfg.GossipIntervalSec > 0 {
		cfg.GossipInterval = time.Duration(cfg.GossipIntervalSec) * time.Second
	}
	if cfg.ProbeIntervalSec > 0 {
		cfg.ProbeInterval = time.Duration(cfg.ProbeIntervalSec) * time.Second
	}
	if cfg.DialTimeoutSec > 0 {
		cfg.DialTimeout = time.Duration(cfg.DialTimeoutSec) * time.Second
	}
	return cfg, nil
}

// LoadSeeds parses the CSV seed list from path: one "ip,port" pair per
// line, identical across all nodes.
func LoadSeeds(path string) ([]domain.NodeID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed config %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	r.TrimLeadingSpace = true

	var seeds []domain.NodeID
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse seed config %s: %w", path, err)
		}
		port, err := strconv.ParseUint(record[1], 10, 16)
		if err != nil {
			return nil, fmt.Errorf("parse seed config %s: invalid port %q: %w", path, record[1], err)
		}
		seeds = append(seeds, domain.NewNodeID(record[0], uint16(port)))
	}
	return seeds, nil
}
