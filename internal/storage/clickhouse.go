package storage

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/alverniaplanet/website/internal/config"
)

type ClickHouse struct {
	conn driver.Conn
}

// ClickRow represents a row in the clicks table
type ClickRow struct {
	EventID         string
	SiteID          string
	SessionID       string
	EventName       string
	Label           string
	Href            string
	TargetLocale    string
	Params          string
	Timestamp       time.Time
	ServerTimestamp time.Time
	PageURL         string
	PagePath        string
	PageTitle       string
	PageLocale      string
	Referrer        string
	X               int32
	Y               int32
	Browser         string
	BrowserVersion  string
	OS              string
	DeviceType      string
	Country         string
	City            string
}

// SessionRow represents a row in the sessions table
type SessionRow struct {
	SessionID        string
	SiteID           string
	StartedAt        time.Time
	EndedAt          time.Time
	DurationMs       uint64
	Browser          string
	OS               string
	DeviceType       string
	Country          string
	City             string
	Clicks           uint32
	LanguageSwitches uint32
	Locale           string
	EntryPage        string
	ExitPage         string
}

// InsightRow represents a row in the insights table
type InsightRow struct {
	InsightID       string
	InsightType     string
	SiteID          string
	SessionID       string
	Timestamp       time.Time
	PagePath        string
	X               int32
	Y               int32
	Label           string
	Details         string
	RelatedEventIDs []string
}

func NewClickHouse(cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	return &ClickHouse{conn: conn}, nil
}

func (c *ClickHouse) InsertClicks(ctx context.Context, clicks []ClickRow) error {
	if len(clicks) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO clicks (
			event_id, site_id, session_id, event_name,
			label, href, target_locale, params,
			timestamp, server_timestamp,
			page_url, page_path, page_title, page_locale, referrer,
			x, y,
			browser, browser_version, os, device_type,
			country, city
		)
	`)
	if err != nil {
		return err
	}

	for _, r := range clicks {
		err := batch.Append(
			r.EventID, r.SiteID, r.SessionID, r.EventName,
			r.Label, r.Href, r.TargetLocale, r.Params,
			r.Timestamp, r.ServerTimestamp,
			r.PageURL, r.PagePath, r.PageTitle, r.PageLocale, r.Referrer,
			r.X, r.Y,
			r.Browser, r.BrowserVersion, r.OS, r.DeviceType,
			r.Country, r.City,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

// UpsertSessions writes session snapshots. The sessions table is a
// ReplacingMergeTree keyed by session_id, so a later snapshot wins.
func (c *ClickHouse) UpsertSessions(ctx context.Context, sessions []SessionRow) error {
	if len(sessions) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO sessions (
			session_id, site_id,
			started_at, ended_at, duration_ms,
			browser, os, device_type,
			country, city,
			clicks, language_switches, locale,
			entry_page, exit_page
		)
	`)
	if err != nil {
		return err
	}

	for _, s := range sessions {
		err := batch.Append(
			s.SessionID, s.SiteID,
			s.StartedAt, s.EndedAt, s.DurationMs,
			s.Browser, s.OS, s.DeviceType,
			s.Country, s.City,
			s.Clicks, s.LanguageSwitches, s.Locale,
			s.EntryPage, s.ExitPage,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) InsertInsights(ctx context.Context, insights []InsightRow) error {
	if len(insights) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO insights (
			insight_id, insight_type, site_id, session_id, timestamp,
			page_path, x, y, label, details, related_event_ids
		)
	`)
	if err != nil {
		return err
	}

	for _, r := range insights {
		err := batch.Append(
			r.InsightID, r.InsightType, r.SiteID, r.SessionID, r.Timestamp,
			r.PagePath, r.X, r.Y, r.Label, r.Details, r.RelatedEventIDs,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
