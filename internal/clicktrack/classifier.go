package clicktrack

import (
	"sync"

	"github.com/rs/zerolog"
)

// Phase selects when a root listener runs relative to element handlers.
type Phase int

const (
	// Capture listeners run before any element handler and cannot be
	// suppressed by them.
	Capture Phase = iota
	Bubble
)

// Listener handles a click observed at the root.
type Listener func(Click)

// Root is something clicks can be observed on, such as a document.
type Root interface {
	// AddClickListener registers l and returns a function that removes it.
	AddClickListener(phase Phase, l Listener) (remove func())
}

// Subscription is an attached listener. Release detaches it; calling
// Release more than once is a no-op.
type Subscription struct {
	once   sync.Once
	remove func()
}

func (s *Subscription) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.remove != nil {
			s.remove()
		}
	})
}

// Classifier turns clicks into analytics events and forwards them to a
// Sink. It holds no per-click state.
type Classifier struct {
	sink   Sink
	labels LabelMap
	logger zerolog.Logger
}

type Option func(*Classifier)

// WithLabels replaces DefaultLabels.
func WithLabels(l LabelMap) Option {
	return func(c *Classifier) { c.labels = l }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New returns a classifier that forwards to sink. A nil sink drops events.
func New(sink Sink, opts ...Option) *Classifier {
	if sink == nil {
		sink = NopSink{}
	}
	c := &Classifier{
		sink:   sink,
		labels: DefaultLabels,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the events a click produces, in forwarding order: an
// optional language_switch event followed by exactly one generic event. It
// returns nil when the click has no clickable ancestor or the element is
// ignored.
func (c *Classifier) Classify(click Click) []Event {
	el, ok := ResolveClassifiableAncestor(click.Target)
	if !ok || Ignored(el) {
		return nil
	}

	name := EventName(el)
	label, hasLabel := Label(el)
	if hasLabel {
		label = c.labels.Normalize(label)
	}
	href, hasHref := Href(el, click.Location)

	events := make([]Event, 0, 2)
	if hasLabel {
		if to, ok := DetectLanguageSwitch(label); ok {
			events = append(events, Event{
				Name:   LanguageSwitchEvent,
				Params: Params{ParamTo: to, ParamLabel: label},
			})
		}
	}

	params := Params{}
	if hasLabel {
		params[ParamLabel] = label
	}
	if hasHref {
		params[ParamHref] = href
	}
	return append(events, Event{Name: name, Params: params})
}

// OnClick classifies click and forwards the result. Nothing escapes it: a
// panicking node adapter or sink is logged and swallowed.
func (c *Classifier) OnClick(click Click) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("Click classification failed")
		}
	}()

	for _, ev := range c.Classify(click) {
		c.forward(ev)
	}
}

func (c *Classifier) forward(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Str("event", ev.Name).
				Msg("Analytics sink failed")
		}
	}()
	c.sink.Track(ev.Name, ev.Params)
}

// Attach observes every click on root in the capture phase until the
// returned subscription is released.
func (c *Classifier) Attach(root Root) *Subscription {
	return &Subscription{remove: root.AddClickListener(Capture, c.OnClick)}
}
