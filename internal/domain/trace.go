package domain

import (
	"time"
)

// TraceStatus represents the lifecycle state of a trace.
// A trace starts in TraceStatusStarted and is finalized exactly once into
// one of the terminal states.
type TraceStatus string

const (
	TraceStatusStarted TraceStatus = "started"
	TraceStatusSuccess TraceStatus = "success"
	TraceStatusError   TraceStatus = "error"
	TraceStatusWarning TraceStatus = "warning"
)

// Terminal reports whether the status is a completion state.
func (s TraceStatus) Terminal() bool {
	return s == TraceStatusSuccess || s == TraceStatusError || s == TraceStatusWarning
}

// Trace is a node in a session's causal tree. Parent/child links are stored
// as identifiers, not embedded values, so the tree is an arena keyed by id.
type Trace struct {
	// ID uniquely identifies this trace
	ID string `json:"id"`

	// SessionID identifies the session this trace belongs to
	SessionID string `json:"session_id"`

	// Layer is the architectural layer that executed the operation
	Layer string `json:"layer"`

	// Operation is the operation the layer performed (e.g. "route")
	Operation string `json:"operation"`

	// StartTime is when the operation began
	StartTime time.Time `json:"start_time"`

	// ParentTraceID links to the causing trace; empty for roots
	ParentTraceID string `json:"parent_trace_id,omitempty"`

	// Children holds the ids of traces caused by this one, in creation order
	Children []string `json:"children,omitempty"`

	// Input is the sanitized data that entered the layer
	Input any `json:"input"`

	// Status is the trace lifecycle state
	Status TraceStatus `json:"status"`

	// Fields below are set by CompleteLayerTrace

	// Output is the sanitized data that left the layer
	Output any `json:"output,omitempty"`

	// EndTime is when the operation finished
	EndTime *time.Time `json:"end_time,omitempty"`

	// Duration is EndTime - StartTime
	Duration time.Duration `json:"duration_ns,omitempty"`

	// OutputSize is the serialized size of Output in bytes
	OutputSize int `json:"output_size,omitempty"`

	// Metrics holds arbitrary completion measurements
	Metrics map[string]any `json:"metrics,omitempty"`

	// Lineage is attached on demand by audit queries; never persisted with
	// the trace itself
	Lineage *Lineage `json:"lineage,omitempty"`
}

// TransformationType classifies how a trace's output differs from its input.
type TransformationType string

const (
	TransformationCreation        TransformationType = "creation"
	TransformationDeletion        TransformationType = "deletion"
	TransformationTypeConversion  TransformationType = "type-conversion"
	TransformationStructureChange TransformationType = "structure-change"
	TransformationModification    TransformationType = "modification"
)

// TransformationRecord is persisted evidence that a trace's output differs
// from its input. At most one exists per completed trace.
type TransformationRecord struct {
	ID        string    `json:"id"`
	TraceID   string    `json:"trace_id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Layer     string    `json:"layer"`

	// Input and Output are the sanitized payloads being compared
	Input  any `json:"input"`
	Output any `json:"output"`

	// Type is the heuristic classification of the change
	Type TransformationType `json:"type"`

	// Field-level diff. Populated for structure changes and modifications;
	// best-effort for anything else.
	AddedFields    []string `json:"added_fields,omitempty"`
	RemovedFields  []string `json:"removed_fields,omitempty"`
	ModifiedFields []string `json:"modified_fields,omitempty"`
}

// DataFlowNode is one step of a lineage's ordered data-flow chain.
type DataFlowNode struct {
	TraceID   string      `json:"trace_id"`
	Layer     string      `json:"layer"`
	Operation string      `json:"operation"`
	Timestamp time.Time   `json:"timestamp"`
	Status    TraceStatus `json:"status"`
}

// LineageMetadata aggregates statistics over a lineage subtree.
type LineageMetadata struct {
	LayerCount          int           `json:"layer_count"`
	TransformationCount int           `json:"transformation_count"`
	TotalDuration       time.Duration `json:"total_duration_ns"`
}

// Lineage is the reconstructed causal chain rooted at one trace: the trace
// and all its descendants in walk order, the transformations touching that
// subtree, and aggregate statistics. Each build produces a fresh snapshot.
type Lineage struct {
	ID          string                 `json:"id"`
	RootTraceID string                 `json:"root_trace_id"`
	SessionID   string                 `json:"session_id"`
	BuiltAt     time.Time              `json:"built_at"`
	DataFlow    []DataFlowNode         `json:"data_flow"`
	Transforms  []TransformationRecord `json:"transformations,omitempty"`
	Metadata    LineageMetadata        `json:"metadata"`
}
