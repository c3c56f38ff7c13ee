// Package replay reconstructs a recorded session strictly from persisted
// data and plays it back, matching tool calls to their recorded results.
// Nothing is fabricated: an interaction with no recorded payload simply
// lowers the coverage rate.
package replay

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/polyglot-flight-recorder/internal/domain"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/recordstore"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/recordstore/sqlindex"
)

// detailLoadParallelism bounds concurrent record-detail reads.
const detailLoadParallelism = 4

// DataLoader resolves scenarios and record details from the record store.
// A single unreadable record is logged and skipped so one corrupt file
// cannot abort an entire replay.
type DataLoader struct {
	store  *recordstore.Store
	index  *sqlindex.Index
	logger *slog.Logger
}

// NewDataLoader creates a DataLoader. index may be nil; it only accelerates
// record-id resolution.
func NewDataLoader(store *recordstore.Store, index *sqlindex.Index, logger *slog.Logger) *DataLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataLoader{store: store, index: index, logger: logger}
}

// LoadSessionData finds a replay scenario for sessionID, optionally by
// name. Returns a session not-found error when no scenario matches.
func (l *DataLoader) LoadSessionData(ctx context.Context, sessionID, scenarioName string) (*domain.ReplayScenario, error) {
	paths, err := l.store.ListRecords(recordstore.NamespaceReplay, recordstore.HasPrefix("scenario-"))
	if err != nil {
		return nil, err
	}

	for _, path := range paths {
		var scenario domain.ReplayScenario
		if err := l.store.ReadRecord(path, &scenario); err != nil {
			l.logger.Warn("skipping unreadable scenario file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		if scenario.SessionID != sessionID {
			continue
		}
		if scenarioName != "" && scenario.Name != scenarioName {
			continue
		}
		return &scenario, nil
	}

	return nil, domain.ErrSessionNotFound(sessionID)
}

// LoadRecordDetail reads the full layer record behind a scenario reference.
// Missing or unparsable files return nil after a log line.
func (l *DataLoader) LoadRecordDetail(ctx context.Context, ref domain.RecordRef) *domain.LayerRecord {
	path := ref.FilePath
	if path == "" && l.index != nil {
		if entry, err := l.index.Lookup(ctx, ref.RecordID); err == nil {
			path = entry.FilePath
		}
	}
	if path == "" {
		l.logger.Warn("record reference has no file path",
			slog.String("record_id", ref.RecordID),
		)
		return nil
	}

	var record domain.LayerRecord
	if err := l.store.ReadRecord(path, &record); err != nil {
		l.logger.Warn("skipping unreadable record detail",
			slog.String("record_id", ref.RecordID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return &record
}

// LoadRecordDetails loads all referenced records with bounded parallelism,
// preserving reference order. Unreadable records leave nil slots.
func (l *DataLoader) LoadRecordDetails(ctx context.Context, refs []domain.RecordRef) []*domain.LayerRecord {
	records := make([]*domain.LayerRecord, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailLoadParallelism)
	var mu sync.Mutex

	for i, ref := range refs {
		g.Go(func() error {
			record := l.LoadRecordDetail(gctx, ref)
			mu.Lock()
			records[i] = record
			mu.Unlock()
			return nil
		})
	}
	// workers never return errors; corrupt records are logged and skipped
	_ = g.Wait()

	return records
}

// FindToolCallResult linearly scans the layers namespace for a recorded
// result matching the call id, falling back to the call name. The first hit
// wins, with its source record and timestamp attached.
func (l *DataLoader) FindToolCallResult(ctx context.Context, callID, name string) *domain.ToolCallResult {
	paths, err := l.store.ListRecords(recordstore.NamespaceLayers, nil)
	if err != nil {
		l.logger.Warn("tool call result scan failed",
			slog.String("call_id", callID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	for _, path := range paths {
		var record domain.LayerRecord
		if err := l.store.ReadRecord(path, &record); err != nil {
			continue
		}
		if value, ok := findResultValue(record.Data, callID, name); ok {
			return &domain.ToolCallResult{
				Value:          value,
				SourceRecordID: record.ID,
				SourcePath:     path,
				Timestamp:      record.Timestamp,
			}
		}
	}
	return nil
}
