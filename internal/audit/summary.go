package audit

import (
	"context"
	"time"

	"github.com/tjfontaine/polyglot-flight-recorder/internal/domain"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/recordstore"
)

// LayerStats aggregates trace outcomes for one layer.
type LayerStats struct {
	Operations    int           `json:"operations"`
	Successes     int           `json:"successes"`
	Errors        int           `json:"errors"`
	Warnings      int           `json:"warnings"`
	TotalDuration time.Duration `json:"total_duration_ns"`
	AvgDuration   time.Duration `json:"avg_duration_ns"`
}

// TransformationStats aggregates the session's recorded transformations.
type TransformationStats struct {
	Total  int                               `json:"total"`
	ByType map[domain.TransformationType]int `json:"by_type,omitempty"`
}

// SessionAuditSummary is the aggregate view over a session's audit trail.
type SessionAuditSummary struct {
	SessionID       string                           `json:"session_id"`
	GeneratedAt     time.Time                        `json:"generated_at"`
	TraceCount      int                              `json:"trace_count"`
	Layers          map[string]*LayerStats           `json:"layers"`
	Transformations TransformationStats              `json:"transformations"`
	DataFlow        map[string][]domain.DataFlowNode `json:"data_flow"`
}

// GetAuditSummary aggregates per-layer statistics, transformation
// statistics, and the full data-flow map keyed by layer, and persists the
// result under audit/.
func (b *Builder) GetAuditSummary(ctx context.Context) (*SessionAuditSummary, error) {
	b.mu.Lock()
	summary := &SessionAuditSummary{
		SessionID:   b.sessionID,
		GeneratedAt: time.Now(),
		TraceCount:  len(b.traces),
		Layers:      make(map[string]*LayerStats),
		DataFlow:    make(map[string][]domain.DataFlowNode),
	}

	completed := make(map[string]int)
	for _, id := range b.sequence {
		trace := b.traces[id]
		stats, ok := summary.Layers[trace.Layer]
		if !ok {
			stats = &LayerStats{}
			summary.Layers[trace.Layer] = stats
		}
		stats.Operations++
		switch trace.Status {
		case domain.TraceStatusSuccess:
			stats.Successes++
		case domain.TraceStatusError:
			stats.Errors++
		case domain.TraceStatusWarning:
			stats.Warnings++
		}
		if trace.EndTime != nil {
			stats.TotalDuration += trace.Duration
			completed[trace.Layer]++
		}

		summary.DataFlow[trace.Layer] = append(summary.DataFlow[trace.Layer], domain.DataFlowNode{
			TraceID:   trace.ID,
			Layer:     trace.Layer,
			Operation: trace.Operation,
			Timestamp: trace.StartTime,
			Status:    trace.Status,
		})
	}

	summary.Transformations.Total = b.transformationCount
	transformIndex := make(map[string]string, len(b.transformationIndex))
	for k, v := range b.transformationIndex {
		transformIndex[k] = v
	}
	b.mu.Unlock()

	for layer, stats := range summary.Layers {
		if n := completed[layer]; n > 0 {
			stats.AvgDuration = stats.TotalDuration / time.Duration(n)
		}
	}

	byType, err := b.countTransformationTypes(transformIndex)
	if err != nil {
		return nil, err
	}
	summary.Transformations.ByType = byType

	hint := "audit-summary-" + b.sessionID
	if _, err := b.store.WriteRecord(recordstore.NamespaceAudit, hint, summary); err != nil {
		return nil, err
	}

	return summary, nil
}

func (b *Builder) countTransformationTypes(index map[string]string) (map[domain.TransformationType]int, error) {
	if len(index) == 0 {
		return nil, nil
	}

	paths, err := b.store.ListRecords(recordstore.NamespaceTransformations, recordstore.HasPrefix("transformation-"))
	if err != nil {
		return nil, err
	}

	byType := make(map[domain.TransformationType]int)
	for _, path := range paths {
		var record domain.TransformationRecord
		if err := b.store.ReadRecord(path, &record); err != nil {
			return nil, err
		}
		if _, ok := index[record.ID]; ok {
			byType[record.Type]++
		}
	}
	return byType, nil
}
