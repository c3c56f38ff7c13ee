package domain

import (
	"time"
)

// ReplayState represents the replay engine lifecycle.
// idle -> running -> {completed, error, stopped}, with running <-> paused.
type ReplayState string

const (
	ReplayStateIdle      ReplayState = "idle"
	ReplayStateRunning   ReplayState = "running"
	ReplayStatePaused    ReplayState = "paused"
	ReplayStateCompleted ReplayState = "completed"
	ReplayStateError     ReplayState = "error"
	ReplayStateStopped   ReplayState = "stopped"
)

// Terminal reports whether the state ends a replay run.
func (s ReplayState) Terminal() bool {
	return s == ReplayStateCompleted || s == ReplayStateError || s == ReplayStateStopped
}

// ReplayOptions controls a single replay run.
type ReplayOptions struct {
	// ScenarioName selects a specific scenario by name; empty means the
	// first scenario found for the session.
	ScenarioName string `json:"scenario_name,omitempty"`

	// PreserveTimestamp replays the recorded inter-event gaps, scaled by
	// the current speed, instead of running back-to-back.
	PreserveTimestamp bool `json:"preserve_timestamp"`

	// ReplayFromStep skips timeline entries before this index (default 0).
	ReplayFromStep int `json:"replay_from_step,omitempty"`

	// OnlyReplayLayers restricts replay to the named layers when non-empty.
	OnlyReplayLayers []string `json:"only_replay_layers,omitempty"`

	// Speed is the initial playback speed multiplier, clamped to [0.1, 10].
	Speed float64 `json:"speed,omitempty"`
}

// Interaction is one timeline entry reconstructed from a scenario's records.
// The engine sorts all interactions of a session by timestamp; that order is
// the authoritative replay order.
type Interaction struct {
	Timestamp time.Time      `json:"timestamp"`
	RecordID  string         `json:"record_id"`
	Layer     string         `json:"layer"`
	Operation Operation      `json:"operation"`
	Data      any            `json:"data"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ToolCall is a tool invocation shape detected inside a recorded payload.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
}

// ToolCallResult is a recorded result matched to a tool call, with its
// provenance attached.
type ToolCallResult struct {
	Value          any       `json:"value"`
	SourceRecordID string    `json:"source_record_id"`
	SourcePath     string    `json:"source_path"`
	Timestamp      time.Time `json:"timestamp"`
}

// ToolCallMapping associates a detected tool call with its recorded result.
// Built per replay run, never persisted.
type ToolCallMapping struct {
	Call          ToolCall        `json:"call"`
	Result        *ToolCallResult `json:"result,omitempty"`
	RecordID      string          `json:"record_id"`
	Timestamp     time.Time       `json:"timestamp"`
	HasRealResult bool            `json:"has_real_result"`
}

// ReplayResult summarizes a finished replay run.
type ReplayResult struct {
	SessionID    string      `json:"session_id"`
	ScenarioName string      `json:"scenario_name"`
	State        ReplayState `json:"state"`

	TotalInteractions     int `json:"total_interactions"`
	CompletedInteractions int `json:"completed_interactions"`
	ToolCallsReplayed     int `json:"tool_calls_replayed"`
	ToolCallsMissing      int `json:"tool_calls_missing"`

	// DataCoverageRate is the percentage of completed interactions that
	// carried a non-empty recorded payload.
	DataCoverageRate float64 `json:"data_coverage_rate"`

	Errors    []string      `json:"errors,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// ReplayStatus is a read-only snapshot of the engine.
type ReplayStatus struct {
	State            ReplayState   `json:"state"`
	CurrentStep      int           `json:"current_step"`
	TotalSteps       int           `json:"total_steps"`
	Progress         float64       `json:"progress"`
	Speed            float64       `json:"speed"`
	RecordGroupCount int           `json:"record_group_count"`
	ToolCallCount    int           `json:"tool_call_count"`
	Options          ReplayOptions `json:"options"`
}

// ReplayEventType identifies the type of replay lifecycle event.
type ReplayEventType string

const (
	ReplayEventStarted             ReplayEventType = "replayStarted"
	ReplayEventInteractionReplayed ReplayEventType = "interactionReplayed"
	ReplayEventPaused              ReplayEventType = "replayPaused"
	ReplayEventResumed             ReplayEventType = "replayResumed"
	ReplayEventStopped             ReplayEventType = "replayStopped"
	ReplayEventCompleted           ReplayEventType = "replayCompleted"
	ReplayEventError               ReplayEventType = "replayError"
	ReplayEventSpeedChanged        ReplayEventType = "replaySpeedChanged"
)

// ReplayEvent is published to registered sinks for decoupled consumers.
// Events are emitted strictly in the order interactions are replayed.
type ReplayEvent struct {
	Type      ReplayEventType `json:"type"`
	SessionID string          `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      any             `json:"data,omitempty"`
}

// InteractionReplayedData is the payload of interactionReplayed events.
type InteractionReplayedData struct {
	Step              int       `json:"step"`
	TotalSteps        int       `json:"total_steps"`
	Progress          float64   `json:"progress"`
	RecordID          string    `json:"record_id"`
	Layer             string    `json:"layer"`
	Operation         Operation `json:"operation"`
	ToolCallsReplayed int       `json:"tool_calls_replayed"`
}
