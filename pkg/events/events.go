// Package events provides a fire-and-forget telemetry sink for the
// resolution core: handling start/end, DNSSEC requests, and similar
// points of interest get notified here without the core blocking on or
// caring what happens to them. Modeled on the subscriber-channel shape
// of the control plane's stats aggregator, minus the request/response
// half of that pattern.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the sort of event being notified.
type Kind string

const (
	// KindHandleStart marks the beginning of query handling.
	KindHandleStart Kind = "handle_start"
	// KindHandleEnd marks the end of query handling.
	KindHandleEnd Kind = "handle_end"
	// KindDNSSECRequest marks a query that asked for DNSSEC records (DO bit).
	KindDNSSECRequest Kind = "dnssec_request"
)

// Event is a single fire-and-forget telemetry record.
type Event struct {
	ID        string
	Kind      Kind
	Qname     string
	Qtype     uint16
	Rcode     int
	ClientIP  string
	Timestamp time.Time
	Err       error
}

// NewEvent builds an Event with a fresh correlation ID.
func NewEvent(kind Kind, qname string, qtype uint16) Event {
	return Event{
		ID:    uuid.NewString(),
		Kind:  kind,
		Qname: qname,
		Qtype: qtype,
	}
}

// Sink receives telemetry events. Notify must never block the caller for
// long and must never panic; implementations that can fail internally
// should drop the event rather than propagate an error, since the core
// treats event delivery as best-effort.
type Sink interface {
	Notify(e Event)
}

// NoopSink discards every event. Useful as the default when no telemetry
// consumer is configured.
type NoopSink struct{}

// Notify implements Sink by doing nothing.
func (NoopSink) Notify(Event) {}

// ChannelSink delivers events onto a buffered channel for a consumer to
// drain. If the channel is full, the event is dropped rather than
// blocking the caller — telemetry delivery is best-effort, never on the
// query-handling critical path.
type ChannelSink struct {
	ch      chan Event
	dropped func(Event)
}

// NewChannelSink creates a ChannelSink with the given buffer size. A
// non-positive size defaults to 64. onDropped, if non-nil, is called
// (synchronously, from Notify) whenever an event is dropped because the
// channel is full.
func NewChannelSink(bufferSize int, onDropped func(Event)) *ChannelSink {
	if bufferSize <= 0 {
		bufferSize = 64
	}

	return &ChannelSink{
		ch:      make(chan Event, bufferSize),
		dropped: onDropped,
	}
}

// Notify implements Sink.
func (s *ChannelSink) Notify(e Event) {
	select {
	case s.ch <- e:
	default:
		if s.dropped != nil {
			s.dropped(e)
		}
	}
}

// Events returns the channel consumers should range over to drain
// notified events.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Close closes the underlying channel. Callers must stop calling Notify
// before closing.
func (s *ChannelSink) Close() {
	close(s.ch)
}

// MultiSink fans a single Notify call out to every sink in the set.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Notify implements Sink by notifying every member sink in order.
func (m *MultiSink) Notify(e Event) {
	for _, s := range m.sinks {
		s.Notify(e)
	}
}
