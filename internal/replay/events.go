package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tjfontaine/polyglot-flight-recorder/internal/domain"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/recordstore"
)

// EventSink receives replay lifecycle events. Sinks are invoked
// synchronously and in registration order, so event ordering follows
// replay ordering exactly.
type EventSink interface {
	Publish(ctx context.Context, event *domain.ReplayEvent) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event *domain.ReplayEvent) error

// Publish implements EventSink.
func (f EventSinkFunc) Publish(ctx context.Context, event *domain.ReplayEvent) error {
	return f(ctx, event)
}

// StoreSink writes replay events into the audit namespace so a replay run
// leaves its own durable trail.
type StoreSink struct {
	store *recordstore.Store

	mu  sync.Mutex
	seq int
}

// NewStoreSink creates a StoreSink backed by the record store.
func NewStoreSink(store *recordstore.Store) *StoreSink {
	return &StoreSink{store: store}
}

// Publish implements EventSink.
func (s *StoreSink) Publish(ctx context.Context, event *domain.ReplayEvent) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	hint := fmt.Sprintf("replay-event-%s-%06d-%s", event.SessionID, seq, event.Type)
	_, err := s.store.WriteRecord(recordstore.NamespaceAudit, hint, event)
	return err
}

// emit publishes an event to every registered sink. Sink failures are
// logged, never propagated: replay progress must not depend on consumers.
func (e *Engine) emit(ctx context.Context, eventType domain.ReplayEventType, sessionID string, data any) {
	event := &domain.ReplayEvent{
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data:      data,
	}

	e.mu.Lock()
	sinks := make([]EventSink, len(e.sinks))
	copy(sinks, e.sinks)
	e.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.Publish(ctx, event); err != nil {
			e.logger.Warn("replay event sink failed",
				slog.String("event", string(eventType)),
				slog.String("error", err.Error()),
			)
		}
	}
}
