package domain

import (
	"time"
)

// Operation identifies the direction of a captured layer event.
type Operation string

const (
	OperationInput  Operation = "input"
	OperationOutput Operation = "output"
	OperationError  Operation = "error"
)

// LayerRecord is one capture of data entering or leaving one architectural
// layer of the gateway pipeline. Records are immutable once written.
type LayerRecord struct {
	// ID uniquely identifies this record
	ID string `json:"id"`

	// SessionID identifies the request lifecycle this record belongs to
	SessionID string `json:"session_id"`

	// Timestamp is when the capture happened
	Timestamp time.Time `json:"timestamp"`

	// Layer is the architectural layer name (e.g. "router", "preprocessing")
	Layer string `json:"layer"`

	// Operation is the capture direction: input, output, or error
	Operation Operation `json:"operation"`

	// Data is the sanitized payload as seen at the layer boundary
	Data any `json:"data"`

	// Metadata holds method name, payload size, and caller-supplied fields
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IndexEntry is a lightweight ledger entry pointing at a persisted record.
// The Recorder keeps these in memory per session and mirrors them into the
// sqlite index so a later process can resolve record ids without a scan.
type IndexEntry struct {
	RecordID  string    `json:"record_id"`
	SessionID string    `json:"session_id"`
	Layer     string    `json:"layer"`
	Operation Operation `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
	FilePath  string    `json:"file_path"`
}

// ResourceUsage is a snapshot of process resource consumption taken when a
// performance record is captured.
type ResourceUsage struct {
	HeapAllocBytes uint64 `json:"heap_alloc_bytes"`
	HeapObjects    uint64 `json:"heap_objects"`
	NumGC          uint32 `json:"num_gc"`
	NumGoroutine   int    `json:"num_goroutine"`
}

// PerformanceRecord captures timing and resource usage for one layer operation.
type PerformanceRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Layer     string    `json:"layer"`
	Operation string    `json:"operation"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// Duration is EndTime - StartTime
	Duration time.Duration `json:"duration_ns"`

	// Resources is a snapshot of process resource usage at capture time
	Resources ResourceUsage `json:"resources"`

	// Metrics holds caller-supplied measurements
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// RecordRef is one entry of a replay scenario: enough to locate and order a
// persisted record without copying it.
type RecordRef struct {
	RecordID  string    `json:"record_id"`
	Layer     string    `json:"layer"`
	Operation Operation `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
	FilePath  string    `json:"file_path"`
}

// ReplayScenario is a named, ordered set of record references selected from
// one session. It is the unit the replay engine loads.
type ReplayScenario struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	SessionID string      `json:"session_id"`
	CreatedAt time.Time   `json:"created_at"`
	Records   []RecordRef `json:"records"`
}

// SessionSummary is the per-session handoff object: the full record ledger
// plus the transformation bookkeeping maintained by the audit trail builder.
type SessionSummary struct {
	SessionID string     `json:"session_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Records is the session ledger in capture order
	Records []IndexEntry `json:"records"`

	// RecordCount is len(Records), persisted for quick inspection
	RecordCount int `json:"record_count"`

	// TransformationCount tracks transformations recorded by the audit trail
	TransformationCount int `json:"transformation_count"`

	// TransformationIndex maps transformation id -> trace id
	TransformationIndex map[string]string `json:"transformation_index,omitempty"`
}
