package recorder

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-flight-recorder/internal/audit"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/domain"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/recordstore"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/redact"
)

func newTestRecorder(t *testing.T) (*Recorder, *recordstore.Store) {
	t.Helper()
	store := recordstore.New(t.TempDir(), nil)
	rec, err := New(store)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return rec, store
}

func TestRecordLayerIORedactsBeforeStorage(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()

	recordID, err := rec.RecordLayerIO(ctx, "preprocessing", domain.OperationInput, map[string]any{
		"apiKey": "sk-123",
		"prompt": "hi",
	}, nil)
	if err != nil {
		t.Fatalf("RecordLayerIO failed: %v", err)
	}
	if !strings.HasPrefix(recordID, "rec_") {
		t.Errorf("unexpected record id: %s", recordID)
	}

	paths, err := store.ListRecords(recordstore.NamespaceLayers, nil)
	if err != nil || len(paths) != 1 {
		t.Fatalf("expected 1 persisted record, got %d (err %v)", len(paths), err)
	}

	var persisted domain.LayerRecord
	if err := store.ReadRecord(paths[0], &persisted); err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}

	data := persisted.Data.(map[string]any)
	if data["apiKey"] != redact.Marker {
		t.Errorf("expected apiKey redacted in persisted form, got %v", data["apiKey"])
	}
	if data["prompt"] != "hi" {
		t.Errorf("expected prompt intact, got %v", data["prompt"])
	}
	if persisted.SessionID != rec.SessionID() {
		t.Errorf("record carries wrong session id: %s", persisted.SessionID)
	}
	if _, ok := persisted.Metadata["payload_size"]; !ok {
		t.Error("expected payload_size metadata")
	}
}

func TestRecordLayerIONeverFailsOnMalformedData(t *testing.T) {
	rec, _ := newTestRecorder(t)

	// a raw scalar and a nil payload must both record cleanly
	if _, err := rec.RecordLayerIO(context.Background(), "router", domain.OperationOutput, "bare string", nil); err != nil {
		t.Fatalf("scalar payload failed: %v", err)
	}
	if _, err := rec.RecordLayerIO(context.Background(), "router", domain.OperationError, nil, nil); err != nil {
		t.Fatalf("nil payload failed: %v", err)
	}
}

func TestRecordPerformanceMetrics(t *testing.T) {
	rec, store := newTestRecorder(t)

	start := time.Now().Add(-120 * time.Millisecond)
	end := time.Now()
	if _, err := rec.RecordPerformanceMetrics(context.Background(), "provider", "call", start, end, map[string]float64{
		"tokens_out": 42,
	}); err != nil {
		t.Fatalf("RecordPerformanceMetrics failed: %v", err)
	}

	paths, err := store.ListRecords(recordstore.NamespacePerformance, recordstore.HasPrefix("perf-"))
	if err != nil || len(paths) != 1 {
		t.Fatalf("expected 1 performance record, got %d (err %v)", len(paths), err)
	}

	var perf domain.PerformanceRecord
	if err := store.ReadRecord(paths[0], &perf); err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if perf.Duration != end.Sub(start) {
		t.Errorf("duration mismatch: %v", perf.Duration)
	}
	if perf.Metrics["tokens_out"] != 42 {
		t.Errorf("caller metrics lost: %v", perf.Metrics)
	}
	if perf.Resources.NumGoroutine == 0 {
		t.Error("expected a resource snapshot")
	}
}

func TestCreateReplayScenario(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()

	var ids []string
	for _, op := range []domain.Operation{domain.OperationInput, domain.OperationOutput} {
		id, err := rec.RecordLayerIO(ctx, "router", op, map[string]any{"step": string(op)}, nil)
		if err != nil {
			t.Fatalf("RecordLayerIO failed: %v", err)
		}
		ids = append(ids, id)
	}

	scenario, err := rec.CreateReplayScenario(ctx, "smoke", ids)
	if err != nil {
		t.Fatalf("CreateReplayScenario failed: %v", err)
	}
	if scenario.SessionID != rec.SessionID() {
		t.Errorf("scenario has wrong session id: %s", scenario.SessionID)
	}
	if len(scenario.Records) != 2 {
		t.Fatalf("expected 2 record refs, got %d", len(scenario.Records))
	}
	for i, ref := range scenario.Records {
		if ref.RecordID != ids[i] {
			t.Errorf("ref %d: got %s, want %s", i, ref.RecordID, ids[i])
		}
		if ref.FilePath == "" {
			t.Errorf("ref %d missing file path", i)
		}
	}

	paths, err := store.ListRecords(recordstore.NamespaceReplay, recordstore.HasPrefix("scenario-"))
	if err != nil || len(paths) != 1 {
		t.Fatalf("expected persisted scenario, got %d (err %v)", len(paths), err)
	}
}

func TestCreateReplayScenarioUnknownRecord(t *testing.T) {
	rec, _ := newTestRecorder(t)

	_, err := rec.CreateReplayScenario(context.Background(), "bad", []string{"rec_unknown"})
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestGetSessionSummary(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()

	if _, err := rec.RecordLayerIO(ctx, "postprocessing", domain.OperationOutput, map[string]any{"done": true}, nil); err != nil {
		t.Fatalf("RecordLayerIO failed: %v", err)
	}

	summary, err := rec.GetSessionSummary(ctx)
	if err != nil {
		t.Fatalf("GetSessionSummary failed: %v", err)
	}
	if summary.SessionID != rec.SessionID() {
		t.Errorf("summary session mismatch: %s", summary.SessionID)
	}
	if summary.RecordCount != 1 || len(summary.Records) != 1 {
		t.Errorf("expected 1 ledger entry, got %d", summary.RecordCount)
	}
	if summary.EndTime == nil {
		t.Error("expected end time to be set")
	}

	// the summary file is rewritten in place
	paths, err := store.ListRecords(recordstore.NamespaceSessions, recordstore.HasPrefix("session-"))
	if err != nil || len(paths) != 1 {
		t.Fatalf("expected 1 session file, got %d (err %v)", len(paths), err)
	}
}

func TestGetSessionSummaryKeepsAuditBookkeeping(t *testing.T) {
	rec, store := newTestRecorder(t)
	ctx := context.Background()

	// the audit trail shares the recorder's session and folds its
	// transformation bookkeeping into the same summary file
	builder, err := audit.New(store, audit.WithSessionID(rec.SessionID()))
	if err != nil {
		t.Fatalf("audit.New failed: %v", err)
	}

	traceID, err := builder.StartLayerTrace(ctx, "router", "route", map[string]any{"model": "gpt-4"}, "")
	if err != nil {
		t.Fatalf("StartLayerTrace failed: %v", err)
	}
	if _, err := builder.CompleteLayerTrace(ctx, traceID, map[string]any{
		"model":    "gpt-4",
		"provider": "openai",
	}, domain.TraceStatusSuccess, nil); err != nil {
		t.Fatalf("CompleteLayerTrace failed: %v", err)
	}

	summary, err := rec.GetSessionSummary(ctx)
	if err != nil {
		t.Fatalf("GetSessionSummary failed: %v", err)
	}
	if summary.TransformationCount != 1 {
		t.Errorf("transformation count = %d, want 1", summary.TransformationCount)
	}
	if len(summary.TransformationIndex) != 1 {
		t.Errorf("transformation index = %v", summary.TransformationIndex)
	}

	// closing the session must not erase the bookkeeping from disk
	paths, err := store.ListRecords(recordstore.NamespaceSessions, recordstore.HasPrefix("session-"))
	if err != nil || len(paths) != 1 {
		t.Fatalf("expected 1 session file, got %d (err %v)", len(paths), err)
	}
	var persisted domain.SessionSummary
	if err := store.ReadRecord(paths[0], &persisted); err != nil {
		t.Fatalf("ReadRecord failed: %v", err)
	}
	if persisted.TransformationCount != 1 {
		t.Errorf("persisted transformation count = %d, want 1", persisted.TransformationCount)
	}
	for _, tID := range persisted.TransformationIndex {
		if tID != traceID {
			t.Errorf("index points at %s, want %s", tID, traceID)
		}
	}
	if persisted.EndTime == nil {
		t.Error("expected end time set alongside the preserved bookkeeping")
	}
}
