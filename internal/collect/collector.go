// Package collect turns click batches posted by the tracker script into
// classified analytics events.
package collect

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/alverniaplanet/website/internal/clicktrack"
	"github.com/alverniaplanet/website/internal/config"
	"github.com/alverniaplanet/website/internal/domtree"
	"github.com/alverniaplanet/website/internal/enricher"
	"github.com/alverniaplanet/website/internal/gtag"
	"github.com/alverniaplanet/website/internal/producer"
	"github.com/alverniaplanet/website/internal/validation"
)

var (
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrBatchTooLarge = errors.New("too many clicks in batch")
)

// Batch is what the tracker script posts.
type Batch struct {
	SiteKey   string        `json:"site_key"`
	SessionID string        `json:"session_id"`
	ClientID  string        `json:"client_id,omitempty"`
	Clicks    []ClickRecord `json:"clicks"`
}

// ClickRecord is one click with the ancestor path of its target.
type ClickRecord struct {
	Page      string       `json:"page"`
	Title     string       `json:"title,omitempty"`
	Locale    string       `json:"locale,omitempty"`
	Referrer  string       `json:"referrer,omitempty"`
	Path      domtree.Path `json:"path"`
	X         int          `json:"x"`
	Y         int          `json:"y"`
	Timestamp int64        `json:"timestamp"`
}

// ClientInfo describes the request a batch arrived on.
type ClientInfo struct {
	UserAgent string
	IP        string
}

type Result struct {
	SessionID  string
	Accepted   int
	Rejected   int
	Classified int
	Errors     []string
}

type Collector struct {
	validator *validation.Validator
	publisher producer.Publisher
	enricher  *enricher.Enricher
	analytics *gtag.Client
	labels    clicktrack.LabelMap
	cfg       config.CollectConfig
}

// NewCollector wires the pipeline. analytics may be nil.
func NewCollector(v *validation.Validator, p producer.Publisher, e *enricher.Enricher, ga *gtag.Client, cfg config.CollectConfig) *Collector {
	return &Collector{
		validator: v,
		publisher: p,
		enricher:  e,
		analytics: ga,
		labels:    clicktrack.DefaultLabels,
		cfg:       cfg,
	}
}

// Collect validates b and classifies each of its clicks. Batch-level
// failures are returned as errors; per-click failures are counted in the
// result.
func (c *Collector) Collect(ctx context.Context, b Batch, client ClientInfo) (Result, error) {
	if c.cfg.MaxBatchSize > 0 && len(b.Clicks) > c.cfg.MaxBatchSize {
		return Result{}, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(b.Clicks), c.cfg.MaxBatchSize)
	}

	site, err := c.validator.ValidateSiteKey(ctx, b.SiteKey)
	if err != nil {
		return Result{}, err
	}

	if !c.validator.CheckRateLimit(ctx, site.ID, client.IP) {
		return Result{}, ErrRateLimited
	}

	sessionID := b.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	res := Result{SessionID: sessionID}

	// GA4 joins events to page views by the gtag.js client ID.
	gaClientID := b.ClientID
	if gaClientID == "" {
		gaClientID = sessionID
	}

	for i, rec := range b.Clicks {
		if err := c.collectOne(ctx, site, sessionID, gaClientID, rec, client, &res); err != nil {
			res.Rejected++
			res.Errors = append(res.Errors, fmt.Sprintf("click %d: %v", i, err))
			continue
		}
		res.Accepted++
	}

	log.Debug().
		Str("site_id", site.ID).
		Int("accepted", res.Accepted).
		Int("rejected", res.Rejected).
		Int("classified", res.Classified).
		Msg("Collected click batch")
	return res, nil
}

func (c *Collector) collectOne(ctx context.Context, site *validation.Site, sessionID, gaClientID string, rec ClickRecord, client ClientInfo, res *Result) error {
	page, err := url.Parse(rec.Page)
	if err != nil || (page.Scheme != "http" && page.Scheme != "https") || page.Host == "" {
		return fmt.Errorf("invalid page url %q", rec.Page)
	}
	if !site.AllowsOrigin(page) {
		return validation.ErrOriginNotAllowed
	}
	if err := rec.Path.Validate(c.cfg.MaxPathDepth); err != nil {
		return err
	}

	locale := rec.Locale
	if locale == "" {
		locale = page.Query().Get("hl")
	}

	sink := producer.NewClickSink(ctx, c.publisher, c.enricher, producer.ClickMeta{
		SiteID:    site.ID,
		SessionID: sessionID,
		Page: enricher.Page{
			URL:      page.String(),
			Path:     page.Path,
			Title:    rec.Title,
			Locale:   locale,
			Referrer: rec.Referrer,
		},
		Timestamp: rec.Timestamp,
		X:         rec.X,
		Y:         rec.Y,
		UserAgent: client.UserAgent,
		ClientIP:  client.IP,
	})

	var at time.Time
	if rec.Timestamp > 0 {
		at = time.UnixMilli(rec.Timestamp)
	}
	ga := c.analytics.NewBatch(gaClientID, at)

	classifier := clicktrack.New(
		clicktrack.MultiSink{sink, ga},
		clicktrack.WithLabels(c.labels),
		clicktrack.WithLogger(log.Logger),
	)
	classifier.OnClick(clicktrack.Click{
		Target:   rec.Path.Target(),
		Location: page,
		X:        rec.X,
		Y:        rec.Y,
	})
	ga.Flush()

	res.Classified += sink.Produced()
	if n := sink.Failed(); n > 0 {
		return fmt.Errorf("failed to publish %d event(s)", n)
	}
	return nil
}
