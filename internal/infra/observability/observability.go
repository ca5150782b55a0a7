// Package observability provides lightweight request tracing and
// Prometheus metrics for seed and peer nodes. Adapted from the
// reference repo's Phase 3 observability package: the in-memory ring
// buffer Tracer is kept in shape (span ids now minted with google/uuid
// instead of a process counter), and the Prometheus gauge/counter set
// is replaced with the quorum, gossip and liveness metrics this system
// actually emits.
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Trace Spans — Lightweight span tracking without external OTel SDK dependency
// ═══════════════════════════════════════════════════════════════════════════

// SpanKind classifies a span.
type SpanKind int

const (
	SpanInternal SpanKind = iota
	SpanServer
	SpanClient
)

// Span represents a unit of work within a distributed trace.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	Kind      SpanKind          `json:"kind"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// Tracer provides lightweight distributed tracing, storing spans
// in-memory for inspection via Spans. The debug HTTP surface does not
// expose them.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 10_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 10_000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a new span with the given operation name.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if !t.enabled {
		return &Span{Operation: operation}
	}

	return &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    generateID(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		Kind:      SpanInternal,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the recent spans, most recent last.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}

	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// Reset clears all recorded spans.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = t.spans[:0]
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "overlay-trace-id"
	spanIDKey  contextKey = "overlay-span-id"
)

// WithTraceID returns a context with the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSpanID returns a context with the given span ID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return generateID()
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

// generateID mints a unique span/trace ID. Not cryptographically
// meaningful — just needs to be unique enough for trace correlation.
func generateID() string {
	return uuid.NewString()
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Seed quorum metrics ────────────────────────────────────────────────────

var ProposalsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "overlay",
	Subsystem: "quorum",
	Name:      "proposals_started_total",
	Help:      "Total ADD/REMOVE proposals this seed initiated.",
}, []string{"kind"})

var VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "overlay",
	Subsystem: "quorum",
	Name:      "votes_cast_total",
	Help:      "Total votes this seed received for proposals it initiated.",
}, []string{"kind"})

var ProposalsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "overlay",
	Subsystem: "quorum",
	Name:      "proposals_committed_total",
	Help:      "Total proposals committed by this seed.",
}, []string{"kind"})

var PeerListSize = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "overlay",
	Subsystem: "quorum",
	Name:      "peer_list_size",
	Help:      "Current size of this seed's committed peer list (PL).",
})

// ─── Gossip metrics ─────────────────────────────────────────────────────────

var GossipGenerated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "overlay",
	Subsystem: "gossip",
	Name:      "generated_total",
	Help:      "Total gossip messages generated by this peer.",
})

var GossipForwarded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "overlay",
	Subsystem: "gossip",
	Name:      "forwarded_total",
	Help:      "Total gossip messages forwarded after first sight.",
})

var GossipDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "overlay",
	Subsystem: "gossip",
	Name:      "dropped_duplicate_total",
	Help:      "Total gossip messages dropped as already-seen duplicates.",
})

var MessageLogSize = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "overlay",
	Subsystem: "gossip",
	Name:      "message_log_size",
	Help:      "Current number of fingerprints held in the message log (ML).",
})

// ─── Liveness & suspicion metrics ───────────────────────────────────────────

var ProbesFailed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "overlay",
	Subsystem: "liveness",
	Name:      "probes_failed_total",
	Help:      "Total liveness probes that failed (host unreachable or no PONG).",
})

var SuspicionVotes = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "overlay",
	Subsystem: "liveness",
	Name:      "suspicion_votes_total",
	Help:      "Total suspicion votes recorded across all suspects.",
})

var DeadNodesDeclared = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "overlay",
	Subsystem: "liveness",
	Name:      "dead_nodes_total",
	Help:      "Total neighbors this peer has declared dead after quorum.",
})

var NeighborCount = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "overlay",
	Subsystem: "topology",
	Name:      "neighbor_count",
	Help:      "Current number of neighbors in this peer's overlay view.",
})
