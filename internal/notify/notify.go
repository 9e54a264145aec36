// Package notify publishes circulation notification events. Template
// rendering and delivery (mail, SMS) happen downstream; this package
// only hands off (contact, template kind, fields) tuples.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"librarium/pkg/domain"
)

// Notifier hands a notification event to the delivery pipeline.
type Notifier interface {
	Publish(ctx context.Context, contact string, kind domain.TemplateKind, fields map[string]string) error
}

// Recorder collects published events in memory, for tests and dry runs.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Event is one recorded publication.
type Event struct {
	Contact string
	Kind    domain.TemplateKind
	Fields  map[string]string
}

// NewRecorder builds an empty in-memory notifier.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish records the event.
func (r *Recorder) Publish(_ context.Context, contact string, kind domain.TemplateKind, fields map[string]string) error {
	r.mu.Lock()
	r.events = append(r.events, Event{Contact: contact, Kind: kind, Fields: fields})
	r.mu.Unlock()
	return nil
}

// Events returns all recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// LogNotifier writes events to the log instead of a broker. Used when
// no AMQP URL is configured.
type LogNotifier struct{}

// Publish logs the event.
func (LogNotifier) Publish(_ context.Context, contact string, kind domain.TemplateKind, fields map[string]string) error {
	slog.Info("notification", "contact", contact, "template", string(kind), "fields", fields)
	return nil
}
