package processor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/alverniaplanet/website/internal/config"
	"github.com/alverniaplanet/website/internal/insights"
	"github.com/alverniaplanet/website/internal/storage"
	"github.com/alverniaplanet/website/internal/transformer"
)

// ClickWriter persists batches of click rows.
type ClickWriter interface {
	InsertClicks(ctx context.Context, clicks []storage.ClickRow) error
}

// SessionUpdater folds a click into its session.
type SessionUpdater interface {
	UpdateSession(ctx context.Context, click storage.ClickRow) error
}

// InsightWriter persists detected insights.
type InsightWriter interface {
	InsertInsights(ctx context.Context, rows []storage.InsightRow) error
}

// RageDetector inspects clicks for rage-click bursts.
type RageDetector interface {
	ProcessClick(ctx context.Context, click storage.ClickRow) (*insights.Insight, error)
}

type Option func(*ClickProcessor)

// WithRageClicks runs every click through d and writes what it finds to w.
func WithRageClicks(d RageDetector, w InsightWriter) Option {
	return func(p *ClickProcessor) {
		p.rage = d
		p.insightWriter = w
	}
}

// ClickProcessor buffers classified clicks from Kafka and writes them to
// ClickHouse in batches, on size or on a timer, whichever comes first.
type ClickProcessor struct {
	writer   ClickWriter
	sessions SessionUpdater
	batchCfg config.BatchConfig

	rage          RageDetector
	insightWriter InsightWriter

	buffer        []storage.ClickRow
	insightBuffer []storage.InsightRow
	mu            sync.Mutex
	lastFlush     time.Time
	ticker        *time.Ticker
	done          chan struct{}
	stopOnce      sync.Once
}

// NewClickProcessor starts the flush ticker. sessions may be nil.
func NewClickProcessor(w ClickWriter, sessions SessionUpdater, batchCfg config.BatchConfig, opts ...Option) *ClickProcessor {
	if batchCfg.Size <= 0 {
		batchCfg.Size = 1000
	}
	if batchCfg.FlushInterval <= 0 {
		batchCfg.FlushInterval = 5 * time.Second
	}
	p := &ClickProcessor{
		writer:    w,
		sessions:  sessions,
		batchCfg:  batchCfg,
		buffer:    make([]storage.ClickRow, 0, batchCfg.Size),
		lastFlush: time.Now(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.ticker = time.NewTicker(batchCfg.FlushInterval)
	go p.flushLoop()

	return p
}

// Process buffers a single event
func (p *ClickProcessor) Process(ctx context.Context, event map[string]interface{}) error {
	row, err := transformer.TransformClick(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.buffer = append(p.buffer, *row)
	shouldFlush := len(p.buffer) >= p.batchCfg.Size
	p.mu.Unlock()

	if p.sessions != nil {
		// Errors are logged by the aggregator; a lost session update
		// must not hold back the click itself.
		_ = p.sessions.UpdateSession(ctx, *row)
	}
	if p.rage != nil {
		p.detect(ctx, *row)
	}

	if shouldFlush {
		p.Flush()
	}
	return nil
}

func (p *ClickProcessor) detect(ctx context.Context, row storage.ClickRow) {
	insight, err := p.rage.ProcessClick(ctx, row)
	if err != nil {
		log.Error().Err(err).Str("session_id", row.SessionID).Msg("Rage click detection failed")
		return
	}
	if insight == nil {
		return
	}

	details, err := json.Marshal(insight.Details)
	if err != nil {
		details = []byte("{}")
	}
	p.mu.Lock()
	p.insightBuffer = append(p.insightBuffer, storage.InsightRow{
		InsightID:       uuid.New().String(),
		InsightType:     insight.Type,
		SiteID:          insight.SiteID,
		SessionID:       insight.SessionID,
		Timestamp:       insight.Timestamp,
		PagePath:        insight.PagePath,
		X:               int32(insight.X),
		Y:               int32(insight.Y),
		Label:           insight.Label,
		Details:         string(details),
		RelatedEventIDs: insight.RelatedEventIDs,
	})
	p.mu.Unlock()

	log.Info().
		Str("type", insight.Type).
		Str("session_id", insight.SessionID).
		Str("path", insight.PagePath).
		Msg("Insight detected")
}

// Buffered returns the number of clicks waiting for the next flush.
func (p *ClickProcessor) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

func (p *ClickProcessor) flushLoop() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			p.Flush()
		}
	}
}

// Flush writes all buffered clicks and insights to ClickHouse
func (p *ClickProcessor) Flush() {
	p.mu.Lock()
	if len(p.buffer) == 0 && len(p.insightBuffer) == 0 {
		p.mu.Unlock()
		return
	}
	clicks := p.buffer
	found := p.insightBuffer
	p.buffer = make([]storage.ClickRow, 0, p.batchCfg.Size)
	p.insightBuffer = nil
	p.lastFlush = time.Now()
	p.mu.Unlock()

	ctx := context.Background()
	start := time.Now()

	if len(clicks) > 0 {
		if err := p.writer.InsertClicks(ctx, clicks); err != nil {
			log.Error().Err(err).Int("count", len(clicks)).Msg("Failed to insert clicks")
		} else {
			log.Info().
				Int("count", len(clicks)).
				Dur("duration", time.Since(start)).
				Msg("Flushed clicks to ClickHouse")
		}
	}

	if len(found) > 0 && p.insightWriter != nil {
		if err := p.insightWriter.InsertInsights(ctx, found); err != nil {
			log.Error().Err(err).Int("count", len(found)).Msg("Failed to insert insights")
		} else {
			log.Debug().Int("count", len(found)).Msg("Flushed insights to ClickHouse")
		}
	}
}

// Stop stops the ticker and flushes what is left. It is safe to call more
// than once.
func (p *ClickProcessor) Stop() {
	p.stopOnce.Do(func() {
		p.ticker.Stop()
		close(p.done)
	})
	p.Flush()
}
