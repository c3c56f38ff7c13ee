// Package audit maintains the causal trace tree for a session, detects and
// persists data transformations, and reconstructs lineage from the tree.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/polyglot-flight-recorder/internal/domain"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/recordstore"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/redact"
)

// Builder maintains the in-memory trace arena for one session and persists
// every trace, transformation, and lineage snapshot to the record store.
// Concurrent recording of different traces is safe; the trace map is the
// only shared mutable structure and is guarded by the mutex.
type Builder struct {
	mu        sync.Mutex
	store     *recordstore.Store
	sanitizer *redact.Sanitizer
	logger    *slog.Logger

	sessionID string
	startTime time.Time

	traces   map[string]*domain.Trace
	sequence []string // trace ids in start order, for chronological reconstruction

	transformationCount int
	transformationIndex map[string]string // transformation id -> trace id
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the builder's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// WithSessionID makes the builder join an existing session (typically the
// recorder's) instead of minting its own.
func WithSessionID(sessionID string) Option {
	return func(b *Builder) { b.sessionID = sessionID }
}

// WithSanitizer overrides the default redaction rule.
func WithSanitizer(s *redact.Sanitizer) Option {
	return func(b *Builder) { b.sanitizer = s }
}

// New creates a Builder and ensures the storage namespaces exist.
func New(store *recordstore.Store, opts ...Option) (*Builder, error) {
	b := &Builder{
		store:               store,
		sanitizer:           redact.New(),
		logger:              slog.Default(),
		sessionID:           "session_" + uuid.New().String(),
		startTime:           time.Now(),
		traces:              make(map[string]*domain.Trace),
		transformationIndex: make(map[string]string),
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := store.EnsureNamespaces(); err != nil {
		return nil, err
	}
	return b, nil
}

// SessionID returns the session this builder tracks.
func (b *Builder) SessionID() string {
	return b.sessionID
}

// StartLayerTrace creates and persists a new trace in started state. When a
// parent id is supplied the new trace is linked into the parent's children
// list; an unknown parent is surfaced as a not-found error.
func (b *Builder) StartLayerTrace(ctx context.Context, layer, operation string, input any, parentTraceID string) (string, error) {
	traceID := "trace_" + uuid.New().String()

	trace := &domain.Trace{
		ID:            traceID,
		SessionID:     b.sessionID,
		Layer:         layer,
		Operation:     operation,
		StartTime:     time.Now(),
		ParentTraceID: parentTraceID,
		Input:         b.sanitizer.Sanitize(input),
		Status:        domain.TraceStatusStarted,
	}

	b.mu.Lock()
	if parentTraceID != "" {
		parent, ok := b.traces[parentTraceID]
		if !ok {
			b.mu.Unlock()
			return "", domain.ErrTraceNotFound(parentTraceID)
		}
		parent.Children = append(parent.Children, traceID)
	}
	b.traces[traceID] = trace
	b.sequence = append(b.sequence, traceID)
	snapshot := *trace
	b.mu.Unlock()

	if err := b.persistTrace(&snapshot); err != nil {
		return "", err
	}
	return traceID, nil
}

// CompleteLayerTrace finalizes a trace exactly once: it sets output, status,
// end time, duration, and output size, re-persists the trace, and records a
// transformation when input and output differ.
func (b *Builder) CompleteLayerTrace(ctx context.Context, traceID string, output any, status domain.TraceStatus, metrics map[string]any) (*domain.Trace, error) {
	if !status.Terminal() {
		return nil, domain.ErrInvalid("completion status must be success, error, or warning").WithEntity(string(status))
	}

	sanitized := b.sanitizer.Sanitize(output)
	now := time.Now()

	b.mu.Lock()
	trace, ok := b.traces[traceID]
	if !ok {
		b.mu.Unlock()
		return nil, domain.ErrTraceNotFound(traceID)
	}
	if trace.Status != domain.TraceStatusStarted {
		b.mu.Unlock()
		return nil, domain.ErrInvalid("trace already completed").WithEntity(traceID)
	}

	trace.Output = sanitized
	trace.Status = status
	trace.EndTime = &now
	trace.Duration = now.Sub(trace.StartTime)
	trace.OutputSize = serializedSize(sanitized)
	trace.Metrics = metrics
	snapshot := *trace
	input := trace.Input
	layer := trace.Layer
	b.mu.Unlock()

	if err := b.persistTrace(&snapshot); err != nil {
		return nil, err
	}

	if !payloadsEqual(input, sanitized) {
		if _, err := b.RecordTransformation(ctx, traceID, input, sanitized, layer); err != nil {
			return nil, err
		}
	}

	return &snapshot, nil
}

// RecordTransformation classifies and persists evidence that a trace's
// output differs from its input, then updates the session's transformation
// counter and index.
func (b *Builder) RecordTransformation(ctx context.Context, traceID string, input, output any, layer string) (string, error) {
	tfType, added, removed, modified := classify(input, output)

	record := domain.TransformationRecord{
		ID:             "tf_" + uuid.New().String(),
		TraceID:        traceID,
		SessionID:      b.sessionID,
		Timestamp:      time.Now(),
		Layer:          layer,
		Input:          b.sanitizer.Sanitize(input),
		Output:         b.sanitizer.Sanitize(output),
		Type:           tfType,
		AddedFields:    added,
		RemovedFields:  removed,
		ModifiedFields: modified,
	}

	hint := fmt.Sprintf("transformation-%s-%d", record.ID, record.Timestamp.UnixMilli())
	if _, err := b.store.WriteRecord(recordstore.NamespaceTransformations, hint, record); err != nil {
		return "", err
	}

	b.mu.Lock()
	b.transformationCount++
	b.transformationIndex[record.ID] = traceID
	b.mu.Unlock()

	b.updateSessionSummary(ctx)
	return record.ID, nil
}

// updateSessionSummary folds the transformation bookkeeping into the
// session summary file. Best effort: the transformation record itself is
// already durable, so a summary refresh failure is only logged.
func (b *Builder) updateSessionSummary(ctx context.Context) {
	hint := "session-" + b.sessionID
	path := filepath.Join(b.store.NamespacePath(recordstore.NamespaceSessions), hint+".json")

	var summary domain.SessionSummary
	if err := b.store.ReadRecord(path, &summary); err != nil {
		if !domain.IsNotFound(err) {
			b.logger.Warn("failed to read session summary",
				slog.String("session_id", b.sessionID),
				slog.String("error", err.Error()),
			)
			return
		}
		// no recorder wrote a summary yet; start one
		summary = domain.SessionSummary{
			SessionID: b.sessionID,
			StartTime: b.startTime,
		}
	}

	b.mu.Lock()
	summary.TransformationCount = b.transformationCount
	summary.TransformationIndex = make(map[string]string, len(b.transformationIndex))
	for k, v := range b.transformationIndex {
		summary.TransformationIndex[k] = v
	}
	b.mu.Unlock()

	if _, err := b.store.WriteRecord(recordstore.NamespaceSessions, hint, summary); err != nil {
		b.logger.Warn("failed to update session summary",
			slog.String("session_id", b.sessionID),
			slog.String("error", err.Error()),
		)
	}
}

func (b *Builder) persistTrace(trace *domain.Trace) error {
	hint := fmt.Sprintf("trace-%s-%d", trace.ID, trace.StartTime.UnixMilli())
	_, err := b.store.WriteRecord(recordstore.NamespaceTraces, hint, trace)
	return err
}

// AuditQuery filters and orders the traces returned by QueryAuditTrail.
type AuditQuery struct {
	Layer     string
	Operation string
	Status    domain.TraceStatus
	Since     time.Time
	Until     time.Time

	// SortBy is "timestamp" (default) or "duration"
	SortBy     string
	Descending bool

	// IncludeLineage attaches a freshly built lineage to every match
	IncludeLineage bool
}

// QueryAuditTrail filters the in-memory trace map and returns matching
// trace snapshots in the requested order.
func (b *Builder) QueryAuditTrail(ctx context.Context, query AuditQuery) ([]*domain.Trace, error) {
	b.mu.Lock()
	matches := make([]*domain.Trace, 0, len(b.traces))
	for _, id := range b.sequence {
		trace := b.traces[id]
		if query.Layer != "" && trace.Layer != query.Layer {
			continue
		}
		if query.Operation != "" && trace.Operation != query.Operation {
			continue
		}
		if query.Status != "" && trace.Status != query.Status {
			continue
		}
		if !query.Since.IsZero() && trace.StartTime.Before(query.Since) {
			continue
		}
		if !query.Until.IsZero() && trace.StartTime.After(query.Until) {
			continue
		}
		snapshot := *trace
		matches = append(matches, &snapshot)
	}
	b.mu.Unlock()

	less := func(i, j int) bool {
		return matches[i].StartTime.Before(matches[j].StartTime)
	}
	if query.SortBy == "duration" {
		less = func(i, j int) bool {
			return matches[i].Duration < matches[j].Duration
		}
	}
	if query.Descending {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(matches, less)

	if query.IncludeLineage {
		for _, trace := range matches {
			lineage, err := b.BuildDataLineage(ctx, trace.ID)
			if err != nil {
				return nil, err
			}
			trace.Lineage = lineage
		}
	}

	return matches, nil
}

// serializedSize is the JSON size of a payload in bytes.
func serializedSize(v any) int {
	raw, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(raw)
}

// payloadsEqual compares two payloads by their serialized form. A payload
// with no serialized form cannot differ textually, so it compares equal.
func payloadsEqual(a, b any) bool {
	rawA, errA := json.Marshal(a)
	rawB, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return true
	}
	return bytes.Equal(rawA, rawB)
}
