package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/fantastic-router/fantastic-router/planning"
)

// DefaultEventSubject is the NATS subject planned-action events publish to.
const DefaultEventSubject = "fantastic-router.plans"

// PlannedActionEvent is the wire form of one completed planning request.
type PlannedActionEvent struct {
	EventID    string    `json:"event_id"`
	RequestID  string    `json:"request_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Query      string    `json:"query"`
	UserID     string    `json:"user_id,omitempty"`
	UserRole   string    `json:"user_role,omitempty"`
	Success    bool      `json:"success"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Route      string    `json:"route,omitempty"`
	ActionType string    `json:"action_type,omitempty"`
	Pattern    string    `json:"matched_pattern,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CacheHit   bool      `json:"cache_hit"`
}

// EventPublisher is a planning.Observer that publishes one event per
// completed request to NATS. A nil connection makes it a no-op, so callers
// can wire it unconditionally.
type EventPublisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewEventPublisher wraps an existing NATS connection. An empty subject
// falls back to DefaultEventSubject.
func NewEventPublisher(conn *nats.Conn, subject string, logger *slog.Logger) *EventPublisher {
	if subject == "" {
		subject = DefaultEventSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{conn: conn, subject: subject, logger: logger}
}

// PlanCompleted implements planning.Observer. Publish failures are logged
// and swallowed; telemetry never fails a request.
func (p *EventPublisher) PlanCompleted(_ context.Context, req *planning.PlanRequest, result *planning.PlanResult) {
	if p.conn == nil {
		return
	}

	event := PlannedActionEvent{
		EventID:    uuid.NewString(),
		RequestID:  result.RequestID,
		OccurredAt: time.Now().UTC(),
		Query:      req.Query,
		UserID:     req.UserID,
		UserRole:   req.UserRole,
		Success:    result.Success,
		ErrorKind:  string(result.ErrorKind),
		DurationMs: result.Performance.DurationMs,
		CacheHit:   result.CacheHit,
	}
	if result.Plan != nil {
		event.Route = result.Plan.Route
		event.ActionType = string(result.Plan.ActionType)
		event.Pattern = result.Plan.MatchedPattern
		event.Confidence = result.Plan.Confidence
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("Failed to encode planned-action event", "error", err)
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		p.logger.Warn("Failed to publish planned-action event",
			"subject", p.subject,
			"error", err)
	}
}
