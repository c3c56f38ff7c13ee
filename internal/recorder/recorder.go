// Package recorder captures layer I/O and performance data for one request
// lifecycle and assembles replay scenarios from the retained records.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/polyglot-flight-recorder/internal/domain"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/recordstore"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/recordstore/sqlindex"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/redact"
)

// Recorder captures the inputs and outputs of every pipeline layer for a
// single session. One Recorder owns one session; all records it writes
// carry the session id assigned at construction.
type Recorder struct {
	mu        sync.Mutex
	store     *recordstore.Store
	index     *sqlindex.Index
	sanitizer *redact.Sanitizer
	logger    *slog.Logger

	sessionID string
	startTime time.Time
	ledger    []domain.IndexEntry
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the recorder's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// WithIndex mirrors the session ledger into a sqlite index.
func WithIndex(index *sqlindex.Index) Option {
	return func(r *Recorder) { r.index = index }
}

// WithSanitizer overrides the default redaction rule (extra terms from config).
func WithSanitizer(s *redact.Sanitizer) Option {
	return func(r *Recorder) { r.sanitizer = s }
}

// New creates a Recorder with a fresh session id, ensures the storage
// namespaces exist, and persists the initial session summary.
func New(store *recordstore.Store, opts ...Option) (*Recorder, error) {
	r := &Recorder{
		store:     store,
		sanitizer: redact.New(),
		logger:    slog.Default(),
		sessionID: "session_" + uuid.New().String(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := store.EnsureNamespaces(); err != nil {
		return nil, err
	}
	if err := r.persistSummaryLocked(); err != nil {
		return nil, err
	}

	r.logger.Info("recording session started",
		slog.String("session_id", r.sessionID),
		slog.String("root", store.Root()),
	)
	return r, nil
}

// SessionID returns the session identifier assigned at construction.
func (r *Recorder) SessionID() string {
	return r.sessionID
}

// RecordLayerIO sanitizes data, persists it as a layer I/O record, appends a
// ledger entry, and returns the new record id. Sanitization never fails:
// payloads that cannot be normalized are stored as-is (field names of nested
// structures are still walked).
func (r *Recorder) RecordLayerIO(ctx context.Context, layer string, operation domain.Operation, data any, metadata map[string]any) (string, error) {
	now := time.Now()
	recordID := "rec_" + uuid.New().String()

	sanitized := r.sanitizer.Sanitize(data)

	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["payload_size"] = payloadSize(sanitized)
	if tokens := EstimateTokens(sanitized); tokens > 0 {
		meta["payload_tokens"] = tokens
	}

	record := domain.LayerRecord{
		ID:        recordID,
		SessionID: r.sessionID,
		Timestamp: now,
		Layer:     layer,
		Operation: operation,
		Data:      sanitized,
		Metadata:  meta,
	}

	hint := fmt.Sprintf("layer-%s-%s-%s-%d", layer, operation, recordID, now.UnixMilli())
	path, err := r.store.WriteRecord(recordstore.NamespaceLayers, hint, record)
	if err != nil {
		return "", err
	}

	entry := domain.IndexEntry{
		RecordID:  recordID,
		SessionID: r.sessionID,
		Layer:     layer,
		Operation: operation,
		Timestamp: now,
		FilePath:  path,
	}

	r.mu.Lock()
	r.ledger = append(r.ledger, entry)
	r.mu.Unlock()

	if r.index != nil {
		if err := r.index.Append(ctx, &entry); err != nil {
			// the ledger is authoritative; a failed index append only
			// degrades later lookup speed
			r.logger.Warn("failed to append record index entry",
				slog.String("record_id", recordID),
				slog.String("error", err.Error()),
			)
		}
	}

	return recordID, nil
}

// RecordPerformanceMetrics persists a performance record for one layer
// operation, including a process resource snapshot and caller metrics.
func (r *Recorder) RecordPerformanceMetrics(ctx context.Context, layer, operation string, start, end time.Time, metrics map[string]float64) (string, error) {
	recordID := "perf_" + uuid.New().String()

	record := domain.PerformanceRecord{
		ID:        recordID,
		SessionID: r.sessionID,
		Layer:     layer,
		Operation: operation,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Resources: snapshotResources(),
		Metrics:   metrics,
	}

	hint := fmt.Sprintf("perf-%s-%s-%s-%d", layer, operation, recordID, record.EndTime.UnixMilli())
	if _, err := r.store.WriteRecord(recordstore.NamespacePerformance, hint, record); err != nil {
		return "", err
	}
	return recordID, nil
}

// CreateReplayScenario resolves recordIDs against the session ledger and
// persists a named scenario referencing their layer, operation, and file
// path. An unknown record id fails the whole call.
func (r *Recorder) CreateReplayScenario(ctx context.Context, name string, recordIDs []string) (*domain.ReplayScenario, error) {
	if name == "" {
		return nil, domain.ErrInvalid("scenario name required")
	}

	r.mu.Lock()
	byID := make(map[string]domain.IndexEntry, len(r.ledger))
	for _, entry := range r.ledger {
		byID[entry.RecordID] = entry
	}
	r.mu.Unlock()

	refs := make([]domain.RecordRef, 0, len(recordIDs))
	for _, id := range recordIDs {
		entry, ok := byID[id]
		if !ok {
			return nil, domain.ErrRecordNotFound(id)
		}
		refs = append(refs, domain.RecordRef{
			RecordID:  entry.RecordID,
			Layer:     entry.Layer,
			Operation: entry.Operation,
			Timestamp: entry.Timestamp,
			FilePath:  entry.FilePath,
		})
	}

	scenario := domain.ReplayScenario{
		ID:        "scn_" + uuid.New().String(),
		Name:      name,
		SessionID: r.sessionID,
		CreatedAt: time.Now(),
		Records:   refs,
	}

	hint := fmt.Sprintf("scenario-%s-%s", name, scenario.ID)
	if _, err := r.store.WriteRecord(recordstore.NamespaceReplay, hint, scenario); err != nil {
		return nil, err
	}

	r.logger.Info("replay scenario created",
		slog.String("session_id", r.sessionID),
		slog.String("scenario", name),
		slog.Int("records", len(refs)),
	)
	return &scenario, nil
}

// GetSessionSummary closes the session (sets its end time), persists the
// summary file, and returns it. This is the handoff object for the audit
// trail builder and the replay engine. The audit trail folds transformation
// bookkeeping into the same file; the rewrite carries it forward.
func (r *Recorder) GetSessionSummary(ctx context.Context) (*domain.SessionSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	summary := r.summaryLocked()
	summary.EndTime = &now

	hint := "session-" + r.sessionID
	path := filepath.Join(r.store.NamespacePath(recordstore.NamespaceSessions), hint+".json")
	var existing domain.SessionSummary
	if err := r.store.ReadRecord(path, &existing); err == nil {
		summary.TransformationCount = existing.TransformationCount
		summary.TransformationIndex = existing.TransformationIndex
	}

	if _, err := r.store.WriteRecord(recordstore.NamespaceSessions, hint, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func (r *Recorder) summaryLocked() *domain.SessionSummary {
	records := make([]domain.IndexEntry, len(r.ledger))
	copy(records, r.ledger)
	return &domain.SessionSummary{
		SessionID:   r.sessionID,
		StartTime:   r.startTime,
		Records:     records,
		RecordCount: len(records),
	}
}

func (r *Recorder) persistSummaryLocked() error {
	hint := "session-" + r.sessionID
	_, err := r.store.WriteRecord(recordstore.NamespaceSessions, hint, r.summaryLocked())
	return err
}

// payloadSize is the serialized size of a sanitized payload in bytes.
func payloadSize(v any) int {
	raw, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(raw)
}
