// Package audit provides a strictly write-only SQLite diagnostic trail
// for quorum commits and suspicion/dead-node events. It is never read
// back at startup — a fresh process always starts with empty
// membership state regardless of what a prior run's audit database
// contains, preserving the no-persistence lifecycle invariant. Schema
// and migrations follow a `DB` wrapping `*sql.DB`, with a slice of raw
// SQL migration strings run in order at Open time.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/meshgossip/overlay/internal/logging"
)

// DB wraps a SQLite connection used purely as a write sink.
type DB struct {
	db  *sql.DB
	log *logging.Logger
}

// migrations returns the audit schema: one row per committed ADD/REMOVE
// proposal, one row per declared-dead neighbor.
func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS quorum_commits (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			kind       TEXT NOT NULL,
			peer_ip    TEXT NOT NULL,
			peer_port  INTEGER NOT NULL,
			committed_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS dead_node_reports (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			node_ip    TEXT NOT NULL,
			node_port  INTEGER NOT NULL,
			declared_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
}

// Open creates or opens a SQLite database at path and applies the
// audit schema migrations. log may be nil to discard failure logs.
func Open(path string, log *logging.Logger) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db %s: %w", path, err)
	}
	db := &DB{db: sqlDB, log: log}
	for _, stmt := range migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			db.db.Close()
			return nil, fmt.Errorf("migrate audit db %s: %w", path, err)
		}
	}
	return db, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error { return db.db.Close() }

func (db *DB) warn(format string, args ...any) {
	if db.log != nil {
		db.log.Logf(format, args...)
	}
}

// RecordCommit writes one row for a seed's committed ADD/REMOVE
// proposal. Implements seed.AuditSink. A write failure is logged and
// otherwise ignored.
func (db *DB) RecordCommit(kind, peerIP string, peerPort uint16) {
	_, err := db.db.Exec(
		`INSERT INTO quorum_commits (kind, peer_ip, peer_port, committed_at) VALUES (?, ?, ?, ?)`,
		kind, peerIP, peerPort, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		db.warn("audit: failed to record commit %s %s:%d: %v", kind, peerIP, peerPort, err)
	}
}

// RecordDead writes one row for a peer's declared-dead neighbor.
// Implements liveness.AuditSink.
func (db *DB) RecordDead(ip string, port uint16) {
	_, err := db.db.Exec(
		`INSERT INTO dead_node_reports (node_ip, node_port, declared_at) VALUES (?, ?, ?)`,
		ip, port, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		db.warn("audit: failed to record dead node %s:%d: %v", ip, port, err)
	}
}
