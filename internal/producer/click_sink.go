package producer

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/alverniaplanet/website/internal/clicktrack"
	"github.com/alverniaplanet/website/internal/enricher"
)

// Publisher writes classified clicks to the event stream.
type Publisher interface {
	ProduceClick(ctx context.Context, key string, event *enricher.ClassifiedEvent) error
}

// ClickMeta is the request-level context attached to every event of one
// click.
type ClickMeta struct {
	SiteID    string
	SessionID string
	Page      enricher.Page
	Timestamp int64
	X, Y      int
	UserAgent string
	ClientIP  string
}

// ClickSink turns classifier output into enriched events on a Publisher.
// It serves a single click and is not safe for concurrent use.
type ClickSink struct {
	ctx      context.Context
	pub      Publisher
	enricher *enricher.Enricher
	meta     ClickMeta

	produced int
	failed   int
}

func NewClickSink(ctx context.Context, pub Publisher, e *enricher.Enricher, meta ClickMeta) *ClickSink {
	return &ClickSink{ctx: ctx, pub: pub, enricher: e, meta: meta}
}

// Track implements clicktrack.Sink. Publish failures are counted and
// logged.
func (s *ClickSink) Track(name string, params clicktrack.Params) {
	event := &enricher.ClassifiedEvent{
		EventID:   uuid.New().String(),
		Name:      name,
		Params:    params,
		SiteID:    s.meta.SiteID,
		SessionID: s.meta.SessionID,
		Timestamp: s.meta.Timestamp,
		Page:      s.meta.Page,
		X:         s.meta.X,
		Y:         s.meta.Y,
	}
	if s.enricher != nil {
		s.enricher.Enrich(event, s.meta.UserAgent, s.meta.ClientIP)
	}

	if err := s.pub.ProduceClick(s.ctx, s.meta.SessionID, event); err != nil {
		s.failed++
		log.Error().Err(err).
			Str("site_id", s.meta.SiteID).
			Str("event", name).
			Msg("Failed to produce click event")
		return
	}
	s.produced++
}

func (s *ClickSink) Produced() int { return s.produced }
func (s *ClickSink) Failed() int   { return s.failed }
