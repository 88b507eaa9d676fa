// internal/ordering/implementation.go
package ordering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"bookstore/internal/eventstore"
	"bookstore/internal/notify"
)

// Notifier sends messages about committed orders. It must not report failures.
type Notifier interface {
	Dispatch(ctx context.Context, messages ...notify.Message)
}

// EventLoader reads an order's event stream.
type EventLoader interface {
	LoadEvents(ctx context.Context, aggregateID uuid.UUID) ([]eventstore.Event, error)
}

type counters struct {
	placed        metric.Int64Counter
	cancelled     metric.Int64Counter
	statusChanges metric.Int64Counter
	shortages     metric.Int64Counter
}

// service implements the Service interface.
type service struct {
	workflow *Workflow
	store    Store
	events   EventLoader
	notifier Notifier
	tracer   trace.Tracer
	counters counters
}

// NewService creates the ordering service. Notifications are dispatched after each commit.
func NewService(workflow *Workflow, store Store, events EventLoader, notifier Notifier) (Service, error) {
	meter := otel.Meter("bookstore/ordering")

	var (
		c   counters
		err error
	)
	if c.placed, err = meter.Int64Counter("orders.placed", metric.WithDescription("Orders placed")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if c.cancelled, err = meter.Int64Counter("orders.cancelled", metric.WithDescription("Orders cancelled by customers")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if c.statusChanges, err = meter.Int64Counter("orders.status_changes", metric.WithDescription("Status changes made by staff and admins")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}
	if c.shortages, err = meter.Int64Counter("orders.stock_shortages", metric.WithDescription("Placements rejected for insufficient stock")); err != nil {
		return nil, fmt.Errorf("create counter: %w", err)
	}

	return &service{
		workflow: workflow,
		store:    store,
		events:   events,
		notifier: notifier,
		tracer:   otel.Tracer("bookstore/ordering"),
		counters: c,
	}, nil
}

func (s *service) PlaceOrder(ctx context.Context, userID uuid.UUID, cartItemIDs []uuid.UUID) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "ordering.place",
		trace.WithAttributes(
			attribute.String("user.id", userID.String()),
			attribute.Int("cart_items.count", len(cartItemIDs)),
		),
	)
	defer span.End()

	outcome, err := s.workflow.Place(ctx, userID, cartItemIDs)
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			s.counters.shortages.Add(ctx, 1)
		}
		recordError(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order.id", outcome.Order.ID.String()),
		attribute.String("order.total", outcome.Order.Total.String()),
	)
	s.counters.placed.Add(ctx, 1)
	s.notifier.Dispatch(ctx, outcome.Notifications...)
	return outcome.Order.View(), nil
}

func (s *service) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "ordering.cancel",
		trace.WithAttributes(
			attribute.String("user.id", userID.String()),
			attribute.String("order.id", orderID.String()),
		),
	)
	defer span.End()

	outcome, err := s.workflow.Cancel(ctx, userID, orderID)
	if err != nil {
		recordError(span, err)
		return err
	}

	s.counters.cancelled.Add(ctx, 1)
	s.notifier.Dispatch(ctx, outcome.Notifications...)
	return nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) error {
	ctx, span := s.tracer.Start(ctx, "ordering.update_status",
		trace.WithAttributes(
			attribute.String("order.id", orderID.String()),
			attribute.String("status.target", status),
		),
	)
	defer span.End()

	outcome, err := s.workflow.UpdateStatus(ctx, orderID, status)
	return s.finishStatusUpdate(ctx, span, outcome, err)
}

func (s *service) UpdateOrderStatusByClaimCode(ctx context.Context, code, status string) error {
	ctx, span := s.tracer.Start(ctx, "ordering.update_status_by_claim_code",
		trace.WithAttributes(
			attribute.String("order.claim_code", NormalizeClaimCode(code)),
			attribute.String("status.target", status),
		),
	)
	defer span.End()

	outcome, err := s.workflow.UpdateStatusByClaimCode(ctx, code, status)
	return s.finishStatusUpdate(ctx, span, outcome, err)
}

func (s *service) finishStatusUpdate(ctx context.Context, span trace.Span, outcome *Outcome, err error) error {
	if err != nil {
		recordError(span, err)
		return err
	}
	span.SetAttributes(attribute.Bool("status.changed", outcome.Changed))
	if !outcome.Changed {
		return nil
	}

	s.counters.statusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(outcome.Order.Status))))
	s.notifier.Dispatch(ctx, outcome.Notifications...)
	return nil
}

func (s *service) GetUserOrders(ctx context.Context, userID uuid.UUID) ([]*View, error) {
	orders, err := s.store.ListUserOrders(ctx, userID)
	if err != nil {
		return nil, err
	}
	return views(orders), nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*View, error) {
	order, err := s.store.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return order.View(), nil
}

func (s *service) ListOrders(ctx context.Context, filter ListFilter) ([]*View, error) {
	orders, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}
	return views(orders), nil
}

// VerifyClaimCode returns the order carrying code, for staff at the pickup counter.
func (s *service) VerifyClaimCode(ctx context.Context, code string) (*View, error) {
	order, err := s.store.FindOrderByClaimCode(ctx, NormalizeClaimCode(code))
	if err != nil {
		return nil, err
	}
	return order.View(), nil
}

func (s *service) History(ctx context.Context, orderID uuid.UUID) ([]HistoryEntry, error) {
	events, err := s.events.LoadEvents(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order history: %w", err)
	}
	if len(events) == 0 {
		return nil, ErrOrderNotFound
	}

	history := make([]HistoryEntry, 0, len(events))
	for _, event := range events {
		entry := HistoryEntry{
			Version:    event.Version,
			EventType:  event.EventType,
			OccurredAt: event.CreatedAt,
			Metadata:   event.Metadata,
		}
		if err := json.Unmarshal(event.EventData, &entry.Data); err != nil {
			log.Printf("Skipping undecodable payload of event %d on order %s: %v", event.ID, orderID, err)
		}
		history = append(history, entry)
	}
	return history, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
