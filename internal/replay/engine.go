package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tjfontaine/polyglot-flight-recorder/internal/domain"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/recordstore"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/recordstore/sqlindex"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/telemetry"
)

const (
	minSpeed     = 0.1
	maxSpeed     = 10.0
	defaultSpeed = 1.0
)

// Engine replays a recorded session from persisted data. One replay runs at
// a time; Pause, Resume, Stop, and SetSpeed may be called from any
// goroutine and take effect between interaction steps.
type Engine struct {
	store  *recordstore.Store
	loader *DataLoader
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	state   domain.ReplayState
	speed   float64
	options domain.ReplayOptions
	session string
	sinks   []EventSink

	timeline     []domain.Interaction
	recordGroups map[string][]*domain.LayerRecord
	toolCalls    map[string]*domain.ToolCallMapping
	currentStep  int
	stopCh       chan struct{}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithIndex lets the data loader resolve record ids through the sqlite
// index when a scenario reference is missing its file path.
func WithIndex(index *sqlindex.Index) EngineOption {
	return func(e *Engine) { e.loader = NewDataLoader(e.store, index, e.logger) }
}

// NewEngine creates an idle replay engine backed by the record store.
func NewEngine(store *recordstore.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  store,
		logger: slog.Default(),
		state:  domain.ReplayStateIdle,
		speed:  defaultSpeed,
	}
	e.cond = sync.NewCond(&e.mu)
	for _, opt := range opts {
		opt(e)
	}
	if e.loader == nil {
		e.loader = NewDataLoader(store, nil, e.logger)
	}
	return e
}

// AddSink registers an event sink. Sinks receive events in registration
// order, in the order interactions are replayed.
func (e *Engine) AddSink(sink EventSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
}

// StartDynamicReplay loads the replay scenario for sessionID, builds the
// data mappings, and runs the replay loop to completion (or until stopped).
// It blocks for the duration of the run; control calls come from other
// goroutines.
func (e *Engine) StartDynamicReplay(ctx context.Context, sessionID string, opts domain.ReplayOptions) (*domain.ReplayResult, error) {
	ctx, span := telemetry.Replay().Start(ctx, "StartDynamicReplay")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	if opts.Speed == 0 {
		opts.Speed = defaultSpeed
	}

	e.mu.Lock()
	if e.state == domain.ReplayStateRunning || e.state == domain.ReplayStatePaused {
		e.mu.Unlock()
		return nil, domain.ErrInvalid("replay already in progress")
	}
	e.state = domain.ReplayStateRunning
	e.speed = clampSpeed(opts.Speed)
	e.options = opts
	e.session = sessionID
	e.currentStep = 0
	e.timeline = nil
	e.recordGroups = nil
	e.toolCalls = nil
	e.stopCh = make(chan struct{})
	e.mu.Unlock()

	startedAt := time.Now()
	e.emit(ctx, domain.ReplayEventStarted, sessionID, opts)

	scenario, err := e.loader.LoadSessionData(ctx, sessionID, opts.ScenarioName)
	if err != nil {
		e.setState(domain.ReplayStateError)
		e.emit(ctx, domain.ReplayEventError, sessionID, err.Error())
		return nil, err
	}

	loadErrors := e.buildDataMappings(ctx, scenario)

	result := e.executeReplayLoop(ctx)
	result.SessionID = sessionID
	result.ScenarioName = scenario.Name
	result.StartedAt = startedAt
	result.Duration = time.Since(startedAt)
	result.Errors = append(loadErrors, result.Errors...)

	e.mu.Lock()
	if e.state == domain.ReplayStateRunning {
		e.state = domain.ReplayStateCompleted
	}
	result.State = e.state
	e.mu.Unlock()

	// a stopped run already published replayStopped as its terminal event
	if result.State == domain.ReplayStateCompleted {
		e.emit(ctx, domain.ReplayEventCompleted, sessionID, result)
	}
	e.logger.Info("replay finished",
		slog.String("session_id", sessionID),
		slog.String("state", string(result.State)),
		slog.Int("completed", result.CompletedInteractions),
		slog.Float64("coverage", result.DataCoverageRate),
	)
	return result, nil
}

// buildDataMappings loads every record behind the scenario, groups records
// by layer-operation key, registers tool calls found in payloads, matches
// them against all persisted layer records, and builds the interaction
// timeline. The final timestamp sort is the sole source of replay
// ordering, independent of file discovery order.
func (e *Engine) buildDataMappings(ctx context.Context, scenario *domain.ReplayScenario) []string {
	details := e.loader.LoadRecordDetails(ctx, scenario.Records)

	groups := make(map[string][]*domain.LayerRecord)
	toolCalls := make(map[string]*domain.ToolCallMapping)
	timeline := make([]domain.Interaction, 0, len(scenario.Records))
	var errs []string

	for i, ref := range scenario.Records {
		record := details[i]

		interaction := domain.Interaction{
			Timestamp: ref.Timestamp,
			RecordID:  ref.RecordID,
			Layer:     ref.Layer,
			Operation: ref.Operation,
		}

		if record == nil {
			errs = append(errs, fmt.Sprintf("record detail unavailable: %s", ref.RecordID))
		} else {
			interaction.Timestamp = record.Timestamp
			interaction.Data = record.Data
			interaction.Metadata = record.Metadata

			key := fmt.Sprintf("%s-%s", record.Layer, record.Operation)
			groups[key] = append(groups[key], record)

			for _, call := range ExtractToolCalls(record.Data) {
				if _, seen := toolCalls[call.ID]; seen {
					continue
				}
				toolCalls[call.ID] = &domain.ToolCallMapping{
					Call:      call,
					RecordID:  record.ID,
					Timestamp: record.Timestamp,
				}
			}
		}

		timeline = append(timeline, interaction)
	}

	for _, mapping := range toolCalls {
		result := e.loader.FindToolCallResult(ctx, mapping.Call.ID, mapping.Call.Name)
		mapping.Result = result
		mapping.HasRealResult = result != nil
	}

	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Timestamp.Before(timeline[j].Timestamp)
	})

	e.mu.Lock()
	e.timeline = timeline
	e.recordGroups = groups
	e.toolCalls = toolCalls
	e.mu.Unlock()

	return errs
}

// executeReplayLoop walks the timeline from the configured step, replaying
// tool calls from their matched recorded results and emitting progress.
// Pause and stop are honored between steps; timestamp-preserving delays are
// cancellable.
func (e *Engine) executeReplayLoop(ctx context.Context) *domain.ReplayResult {
	e.mu.Lock()
	timeline := e.timeline
	opts := e.options
	stopCh := e.stopCh
	session := e.session
	e.mu.Unlock()

	result := &domain.ReplayResult{TotalInteractions: len(timeline)}

	only := make(map[string]bool, len(opts.OnlyReplayLayers))
	for _, layer := range opts.OnlyReplayLayers {
		only[layer] = true
	}

	from := opts.ReplayFromStep
	if from < 0 {
		from = 0
	}

	var covered int
	for i := from; i < len(timeline); i++ {
		if !e.awaitRunnable() {
			break
		}

		entry := timeline[i]

		e.mu.Lock()
		e.currentStep = i + 1
		e.mu.Unlock()

		if len(only) > 0 && !only[entry.Layer] {
			continue
		}

		replayed := e.replayToolCalls(ctx, entry, result)

		result.CompletedInteractions++
		if !isEmptyPayload(entry.Data) {
			covered++
		}

		progress := float64(i+1) / float64(len(timeline)) * 100
		e.emit(ctx, domain.ReplayEventInteractionReplayed, session, domain.InteractionReplayedData{
			Step:              i + 1,
			TotalSteps:        len(timeline),
			Progress:          progress,
			RecordID:          entry.RecordID,
			Layer:             entry.Layer,
			Operation:         entry.Operation,
			ToolCallsReplayed: replayed,
		})

		if opts.PreserveTimestamp && i+1 < len(timeline) {
			e.sleepGap(entry.Timestamp, timeline[i+1].Timestamp, stopCh)
		}
	}

	if result.CompletedInteractions > 0 {
		result.DataCoverageRate = float64(covered) / float64(result.CompletedInteractions) * 100
	}
	return result
}

// replayToolCalls replays every tool call found in an interaction's payload
// using only matched recorded results. A call with no recorded result is
// reported but not replayed.
func (e *Engine) replayToolCalls(ctx context.Context, entry domain.Interaction, result *domain.ReplayResult) int {
	calls := ExtractToolCalls(entry.Data)
	replayed := 0
	for _, call := range calls {
		e.mu.Lock()
		mapping := e.toolCalls[call.ID]
		e.mu.Unlock()

		if mapping == nil || !mapping.HasRealResult {
			result.ToolCallsMissing++
			result.Errors = append(result.Errors,
				fmt.Sprintf("no recorded result for tool call %s (%s) in record %s", call.ID, call.Name, entry.RecordID))
			e.logger.Warn("no recorded result for tool call",
				slog.String("call_id", call.ID),
				slog.String("tool", call.Name),
				slog.String("record_id", entry.RecordID),
			)
			continue
		}

		replayed++
		result.ToolCallsReplayed++
	}
	return replayed
}

// sleepGap waits out the recorded gap between two interactions, scaled by
// the current speed. A Stop during the delay returns immediately.
func (e *Engine) sleepGap(current, next time.Time, stopCh chan struct{}) {
	gap := next.Sub(current)
	if gap <= 0 {
		return
	}

	e.mu.Lock()
	speed := e.speed
	e.mu.Unlock()

	scaled := time.Duration(float64(gap) / speed)
	timer := time.NewTimer(scaled)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-stopCh:
	}
}

// awaitRunnable blocks while the engine is paused and reports whether the
// loop may start the next step.
func (e *Engine) awaitRunnable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for e.state == domain.ReplayStatePaused {
		e.cond.Wait()
	}
	return e.state == domain.ReplayStateRunning
}

// Pause suspends the replay loop before its next step.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.state != domain.ReplayStateRunning {
		e.mu.Unlock()
		return
	}
	e.state = domain.ReplayStatePaused
	session := e.session
	e.mu.Unlock()

	e.emit(context.Background(), domain.ReplayEventPaused, session, nil)
}

// Resume continues a paused replay.
func (e *Engine) Resume() {
	e.mu.Lock()
	if e.state != domain.ReplayStatePaused {
		e.mu.Unlock()
		return
	}
	e.state = domain.ReplayStateRunning
	session := e.session
	e.cond.Broadcast()
	e.mu.Unlock()

	e.emit(context.Background(), domain.ReplayEventResumed, session, nil)
}

// Stop terminates the replay between steps. A stop during a
// timestamp-preserving delay interrupts the delay.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != domain.ReplayStateRunning && e.state != domain.ReplayStatePaused {
		e.mu.Unlock()
		return
	}
	e.state = domain.ReplayStateStopped
	session := e.session
	if e.stopCh != nil {
		close(e.stopCh)
		e.stopCh = nil
	}
	e.cond.Broadcast()
	e.mu.Unlock()

	e.emit(context.Background(), domain.ReplayEventStopped, session, nil)
}

// SetSpeed updates the playback speed, clamped to [0.1, 10.0], and returns
// the effective value.
func (e *Engine) SetSpeed(speed float64) float64 {
	clamped := clampSpeed(speed)

	e.mu.Lock()
	e.speed = clamped
	session := e.session
	e.mu.Unlock()

	e.emit(context.Background(), domain.ReplayEventSpeedChanged, session, clamped)
	return clamped
}

// GetReplayStatus returns a read-only snapshot of the engine.
func (e *Engine) GetReplayStatus() domain.ReplayStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := domain.ReplayStatus{
		State:            e.state,
		CurrentStep:      e.currentStep,
		TotalSteps:       len(e.timeline),
		Speed:            e.speed,
		RecordGroupCount: len(e.recordGroups),
		ToolCallCount:    len(e.toolCalls),
		Options:          e.options,
	}
	if status.TotalSteps > 0 {
		status.Progress = float64(status.CurrentStep) / float64(status.TotalSteps) * 100
	}
	return status
}

func (e *Engine) setState(state domain.ReplayState) {
	e.mu.Lock()
	e.state = state
	e.cond.Broadcast()
	e.mu.Unlock()
}

func clampSpeed(speed float64) float64 {
	switch {
	case speed < minSpeed:
		return minSpeed
	case speed > maxSpeed:
		return maxSpeed
	default:
		return speed
	}
}

func isEmptyPayload(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(val) == 0
	case []any:
		return len(val) == 0
	case string:
		return val == ""
	default:
		return false
	}
}
