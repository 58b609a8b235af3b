// Package insights detects frustration patterns in classified clicks.
package insights

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alverniaplanet/website/internal/clicktrack"
	"github.com/alverniaplanet/website/internal/config"
	"github.com/alverniaplanet/website/internal/storage"
)

const TypeRageClick = "rage_click"

// Insight represents a detected UX insight
type Insight struct {
	Type            string
	SiteID          string
	SessionID       string
	Timestamp       time.Time
	PagePath        string
	X               int
	Y               int
	Label           string
	Details         map[string]interface{}
	RelatedEventIDs []string
}

// RageClickDetector detects rapid clicks in a small area indicating user
// frustration. Clicks are grouped per session into grid cells radiusPx wide
// and kept in Redis sorted sets scored by timestamp.
type RageClickDetector struct {
	redis        *redis.Client
	minClicks    int
	timeWindowMs int64
	radiusPx     int
	now          func() time.Time
}

type clickPoint struct {
	X       int
	Y       int
	EventID string
}

// NewRageClickDetector creates a new rage click detector
func NewRageClickDetector(rdb *redis.Client, cfg config.RageClickConfig) *RageClickDetector {
	d := &RageClickDetector{
		redis:        rdb,
		minClicks:    cfg.MinClicks,
		timeWindowMs: cfg.TimeWindowMs,
		radiusPx:     cfg.RadiusPx,
		now:          time.Now,
	}
	if d.minClicks < 2 {
		d.minClicks = 3
	}
	if d.timeWindowMs <= 0 {
		d.timeWindowMs = 1000
	}
	if d.radiusPx <= 0 {
		d.radiusPx = 30
	}
	return d
}

// ProcessClick records click and returns an insight once enough clicks
// land close together within the window. Language switch events are
// skipped: they share coordinates with the generic event of the same click.
func (d *RageClickDetector) ProcessClick(ctx context.Context, click storage.ClickRow) (*Insight, error) {
	if d.redis == nil || click.EventName == clicktrack.LanguageSwitchEvent {
		return nil, nil
	}
	x, y := int(click.X), int(click.Y)
	if x == 0 && y == 0 {
		return nil, nil
	}

	key := fmt.Sprintf("clicks:%s:%d:%d", click.SessionID, x/d.radiusPx, y/d.radiusPx)
	ts := click.Timestamp.UnixMilli()

	pipe := d.redis.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(ts),
		Member: fmt.Sprintf("%d:%d:%s", x, y, click.EventID),
	})
	pipe.Expire(ctx, key, time.Duration(d.timeWindowMs*2)*time.Millisecond)
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(ts-d.timeWindowMs, 10))
	members := pipe.ZRange(ctx, key, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	clicks := parsePoints(members.Val())
	if len(clicks) < d.minClicks {
		return nil, nil
	}

	centerX, centerY := center(clicks)
	if !allWithinRadius(clicks, centerX, centerY, d.radiusPx) {
		return nil, nil
	}

	// Start over so one burst yields one insight.
	if err := d.redis.Del(ctx, key).Err(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(clicks))
	for _, c := range clicks {
		ids = append(ids, c.EventID)
	}
	return &Insight{
		Type:      TypeRageClick,
		SiteID:    click.SiteID,
		SessionID: click.SessionID,
		Timestamp: d.now(),
		PagePath:  click.PagePath,
		X:         centerX,
		Y:         centerY,
		Label:     click.Label,
		Details: map[string]interface{}{
			"click_count":    len(clicks),
			"time_window_ms": d.timeWindowMs,
			"radius_px":      d.radiusPx,
			"event_name":     click.EventName,
		},
		RelatedEventIDs: ids,
	}, nil
}

func parsePoints(members []string) []clickPoint {
	points := make([]clickPoint, 0, len(members))
	for _, m := range members {
		parts := strings.SplitN(m, ":", 3)
		if len(parts) != 3 {
			continue
		}
		x, errX := strconv.Atoi(parts[0])
		y, errY := strconv.Atoi(parts[1])
		if errX != nil || errY != nil {
			continue
		}
		points = append(points, clickPoint{X: x, Y: y, EventID: parts[2]})
	}
	return points
}

func center(clicks []clickPoint) (int, int) {
	var sumX, sumY int
	for _, c := range clicks {
		sumX += c.X
		sumY += c.Y
	}
	return sumX / len(clicks), sumY / len(clicks)
}

func allWithinRadius(clicks []clickPoint, centerX, centerY, radius int) bool {
	for _, c := range clicks {
		dx := c.X - centerX
		dy := c.Y - centerY
		if math.Sqrt(float64(dx*dx+dy*dy)) > float64(radius) {
			return false
		}
	}
	return true
}
