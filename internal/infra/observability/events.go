package observability

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
)

// EventLogger writes ledger events as structured audit log lines.
type EventLogger struct {
	logger *zap.Logger
}

// NewEventLogger creates an EventObserver backed by zap.
func NewEventLogger(logger *zap.Logger) *EventLogger {
	return &EventLogger{logger: logger.Named("audit")}
}

// Observe implements port.EventObserver.
func (l *EventLogger) Observe(ctx context.Context, ev domain.Event) {
	fields := []zap.Field{
		zap.String("event", string(ev.Type)),
		zap.Time("at", ev.Timestamp),
	}
	if ev.EntryID != "" {
		fields = append(fields, zap.String("entry_id", ev.EntryID))
	}
	if ev.ActorID != "" {
		fields = append(fields, zap.String("actor_id", ev.ActorID))
	}
	if ev.Status != "" {
		fields = append(fields, zap.String("status", string(ev.Status)))
	}
	if ev.Detail != "" {
		fields = append(fields, zap.String("detail", ev.Detail))
	}
	for k, v := range ev.Attrs {
		fields = append(fields, zap.String(k, v))
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		fields = append(fields, zap.String("request_id", reqID))
	}

	switch ev.Type {
	case domain.EventListFailed, domain.EventListUnexpected, domain.EventDraftFailed, domain.EventEntryStale:
		l.logger.Warn("ledger event", fields...)
	default:
		l.logger.Info("ledger event", fields...)
	}
}
