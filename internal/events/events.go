// Package events carries domain events (OTP lifecycle, offer usage) to
// downstream consumers such as Kafka topics and the ClickHouse audit table.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOTPSent           = "otp.sent"
	TypeOTPDeliveryFailed = "otp.delivery_failed"
	TypeOTPVerified       = "otp.verified"
	TypeOTPRejected       = "otp.rejected"
	TypeTokenRefreshed    = "session.refreshed"
	TypeOfferApplied      = "offer.applied"
	TypeOfferRejected     = "offer.rejected"
)

type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Phone      string            `json:"phone,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// New stamps an event with a fresh ID.
func New(eventType, phone string, occurredAt time.Time, attrs map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Phone:      phone,
		OccurredAt: occurredAt.UTC(),
		Attributes: attrs,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory. Useful in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the type of every recorded event in order.
func (r *Recorder) Types() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}
