// Package events defines the domain events payroll emits for the audit
// collaborator, and a sink that writes them to the structured log.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/logging"
)

type Type string

const (
	PeriodCreated    Type = "pay_period.created"
	PeriodCalculated Type = "pay_period.calculated"
	PeriodApproved   Type = "pay_period.approved"
	PeriodCommitted  Type = "pay_period.committed"
	PeriodDeleted    Type = "pay_period.deleted"
	ItemCreated      Type = "payroll_item.created"
	ItemUpdated      Type = "payroll_item.updated"
	ItemDeleted      Type = "payroll_item.deleted"
	TaxSyncSucceeded Type = "tax_sync.succeeded"
	TaxSyncFailed    Type = "tax_sync.failed"
	TaxConfigChanged Type = "tax_config.updated"
	YtdReset         Type = "ytd.reset"
)

// Event is what the audit sink receives.
type Event struct {
	Type       Type
	ActorID    string
	RecordType string
	RecordID   string
	Metadata   map[string]any
	At         time.Time
}

// Sink accepts events. Emit must not block the caller for long and never
// fails the operation that produced the event.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

type LogSink struct {
	log logging.Logger
}

func NewLogSink(log logging.Logger) *LogSink {
	return &LogSink{log: log.With("module", "audit")}
}

func (s *LogSink) Emit(ctx context.Context, e Event) {
	args := []any{
		"event", string(e.Type),
		"actor_id", e.ActorID,
		"record_type", e.RecordType,
		"record_id", e.RecordID,
		"at", e.At,
	}
	for k, v := range e.Metadata {
		args = append(args, k, v)
	}
	s.log.Info(ctx, "domain event", args...)
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types lists recorded event types in order.
func (r *Recorder) Types() []Type {
	var out []Type
	for _, e := range r.Events() {
		out = append(out, e.Type)
	}
	return out
}
