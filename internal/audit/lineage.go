package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tjfontaine/polyglot-flight-recorder/internal/domain"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/recordstore"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/telemetry"
)

// BuildDataLineage reconstructs the causal chain rooted at traceID: the
// trace and all transitive descendants in walk order, every transformation
// touching that subtree, and aggregate statistics. The walk is guarded by a
// visited set so malformed parent/child data cannot loop it. Each call
// persists a fresh snapshot under lineage/.
func (b *Builder) BuildDataLineage(ctx context.Context, traceID string) (*domain.Lineage, error) {
	ctx, span := telemetry.Audit().Start(ctx, "BuildDataLineage")
	defer span.End()
	span.SetAttributes(attribute.String("trace_id", traceID))

	b.mu.Lock()
	root, ok := b.traces[traceID]
	if !ok {
		b.mu.Unlock()
		return nil, domain.ErrTraceNotFound(traceID)
	}

	visited := make(map[string]bool)
	var flow []domain.DataFlowNode
	var totalDuration time.Duration
	layers := make(map[string]bool)
	subtree := make(map[string]bool)

	var walk func(*domain.Trace)
	walk = func(trace *domain.Trace) {
		if visited[trace.ID] {
			return
		}
		visited[trace.ID] = true
		subtree[trace.ID] = true
		layers[trace.Layer] = true
		totalDuration += trace.Duration

		flow = append(flow, domain.DataFlowNode{
			TraceID:   trace.ID,
			Layer:     trace.Layer,
			Operation: trace.Operation,
			Timestamp: trace.StartTime,
			Status:    trace.Status,
		})

		for _, childID := range trace.Children {
			child, ok := b.traces[childID]
			if !ok {
				continue
			}
			walk(child)
		}
	}
	walk(root)

	transformIndex := make(map[string]string, len(b.transformationIndex))
	for tfID, tID := range b.transformationIndex {
		transformIndex[tfID] = tID
	}
	sessionID := b.sessionID
	b.mu.Unlock()

	transforms, err := b.loadSubtreeTransformations(transformIndex, subtree)
	if err != nil {
		return nil, err
	}

	lineage := &domain.Lineage{
		ID:          "lin_" + uuid.New().String(),
		RootTraceID: traceID,
		SessionID:   sessionID,
		BuiltAt:     time.Now(),
		DataFlow:    flow,
		Transforms:  transforms,
		Metadata: domain.LineageMetadata{
			LayerCount:          len(layers),
			TransformationCount: len(transforms),
			TotalDuration:       totalDuration,
		},
	}

	hint := fmt.Sprintf("lineage-%s-%d", traceID, lineage.BuiltAt.UnixMilli())
	if _, err := b.store.WriteRecord(recordstore.NamespaceLineage, hint, lineage); err != nil {
		return nil, err
	}

	return lineage, nil
}

// loadSubtreeTransformations reads back the persisted transformation
// records belonging to the given subtree.
func (b *Builder) loadSubtreeTransformations(index map[string]string, subtree map[string]bool) ([]domain.TransformationRecord, error) {
	wanted := make(map[string]bool)
	for tfID, traceID := range index {
		if subtree[traceID] {
			wanted[tfID] = true
		}
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	paths, err := b.store.ListRecords(recordstore.NamespaceTransformations, recordstore.HasPrefix("transformation-"))
	if err != nil {
		return nil, err
	}

	var transforms []domain.TransformationRecord
	for _, path := range paths {
		var record domain.TransformationRecord
		if err := b.store.ReadRecord(path, &record); err != nil {
			return nil, err
		}
		if wanted[record.ID] {
			transforms = append(transforms, record)
		}
	}
	return transforms, nil
}
