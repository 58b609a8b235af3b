package clicktrack

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Sink receives classified events. Track must not block; callers ignore
// whatever happens behind it.
type Sink interface {
	Track(name string, params Params)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(name string, params Params)

func (f SinkFunc) Track(name string, params Params) { f(name, params) }

// NopSink drops every event. It stands in when no analytics backend is
// attached.
type NopSink struct{}

func (NopSink) Track(string, Params) {}

// MultiSink forwards each event to every sink in order. Nil entries are
// skipped, and a panicking sink does not keep the event from the rest.
type MultiSink []Sink

func (m MultiSink) Track(name string, params Params) {
	for _, s := range m {
		if s != nil {
			trackSafely(s, name, params)
		}
	}
}

func trackSafely(s Sink, name string, params Params) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("event", name).Msg("Analytics sink failed")
		}
	}()
	s.Track(name, params)
}

// Recorder keeps every tracked event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Track(name string, params Params) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Name: name, Params: params})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
