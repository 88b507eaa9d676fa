// Package eventstore keeps an append-only audit trail of domain events in Postgres.
package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bookstore/internal/auth"
	"bookstore/internal/database"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrNoEvents            = errors.New("no events to append")
)

// Event is a single recorded domain event.
type Event struct {
	ID            int64           `json:"id"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	Version       int             `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
}

// New builds an event with a JSON-encoded payload.
func New(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{EventType: eventType, EventData: data}, nil
}

// RequestMetadata describes what caused an event: the request id assigned by chi's RequestID
// middleware and the authenticated principal, when ctx carries them.
func RequestMetadata(ctx context.Context) map[string]any {
	md := map[string]any{}
	if id := middleware.GetReqID(ctx); id != "" {
		md["request_id"] = id
	}
	if p, ok := auth.FromContext(ctx); ok {
		md["actor_id"] = p.UserID.String()
		md["actor_role"] = p.Role
	}
	return md
}

// EventStore appends and loads events.
type EventStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewEventStore creates an event store over db.
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{
		db:     db,
		tracer: otel.Tracer("bookstore/eventstore"),
	}
}

// AppendEventsTx appends events inside the caller's transaction so that they commit or roll back
// together with the state change they describe. The stream must currently be at expectedVersion.
// Each event's metadata is merged over RequestMetadata(ctx).
func (es *EventStore) AppendEventsTx(ctx context.Context, tx *sql.Tx, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []Event) error {
	if len(events) == 0 {
		return ErrNoEvents
	}

	ctx, span := es.tracer.Start(ctx, "eventstore.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	var currentVersion int
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM events
		WHERE aggregate_id = $1
	`, aggregateID).Scan(&currentVersion)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("query current version: %w", err)
	}

	if currentVersion != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	ambient := RequestMetadata(ctx)
	now := time.Now().UTC()
	for i, event := range events {
		version := expectedVersion + i + 1

		md := maps.Clone(ambient)
		maps.Copy(md, event.Metadata)

		var metadata sql.NullString
		if len(md) > 0 {
			raw, err := json.Marshal(md)
			if err != nil {
				return fmt.Errorf("marshal metadata of event %d: %w", i, err)
			}
			metadata = sql.NullString{String: string(raw), Valid: true}
		}

		var eventID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO events (aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, aggregateID, aggregateType, event.EventType, string(event.EventData), metadata, version, now).Scan(&eventID)
		if err != nil {
			if database.IsUniqueViolation(err, "") {
				return ErrConcurrencyConflict
			}
			span.RecordError(err)
			return fmt.Errorf("insert event %d: %w", i, err)
		}

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.id", eventID),
			attribute.Int("event.version", version),
			attribute.String("event.type", event.EventType),
		))
	}

	return nil
}

// LoadEvents returns the events of an aggregate in version order.
func (es *EventStore) LoadEvents(ctx context.Context, aggregateID uuid.UUID) ([]Event, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.load",
		trace.WithAttributes(attribute.String("aggregate.id", aggregateID.String())),
	)
	defer span.End()

	rows, err := es.db.QueryContext(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at
		FROM events
		WHERE aggregate_id = $1
		ORDER BY version ASC
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event    Event
			data     []byte
			metadata []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.AggregateID,
			&event.AggregateType,
			&event.EventType,
			&data,
			&metadata,
			&event.Version,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.EventData = data
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of event %d: %w", event.ID, err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}
