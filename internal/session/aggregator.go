package session

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/alverniaplanet/website/internal/clicktrack"
	"github.com/alverniaplanet/website/internal/config"
	"github.com/alverniaplanet/website/internal/storage"
)

const keyPrefix = "session:"

// SessionWriter persists aggregated sessions.
type SessionWriter interface {
	UpsertSessions(ctx context.Context, sessions []storage.SessionRow) error
}

// Aggregator aggregates per-session click statistics in Redis
type Aggregator struct {
	writer SessionWriter
	redis  *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewAggregator creates a new session aggregator
func NewAggregator(w SessionWriter, redisCfg config.RedisConfig, ttl time.Duration) *Aggregator {
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	return newAggregator(w, rdb, ttl)
}

func newAggregator(w SessionWriter, rdb *redis.Client, ttl time.Duration) *Aggregator {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Aggregator{
		writer: w,
		redis:  rdb,
		ttl:    ttl,
		now:    time.Now,
	}
}

// UpdateSession folds one click into its session. The stored locale is the
// first page locale seen, replaced by the target of each language switch.
func (a *Aggregator) UpdateSession(ctx context.Context, click storage.ClickRow) error {
	if a.redis == nil || click.SessionID == "" {
		return nil
	}

	key := keyPrefix + click.SessionID
	ts := click.Timestamp.UnixMilli()

	pipe := a.redis.Pipeline()
	pipe.HSet(ctx, key, "ended_at", ts)
	pipe.HIncrBy(ctx, key, "clicks", 1)

	if click.EventName == clicktrack.LanguageSwitchEvent {
		pipe.HIncrBy(ctx, key, "language_switches", 1)
		if click.TargetLocale != "" {
			pipe.HSet(ctx, key, "locale", click.TargetLocale)
		}
	} else if click.PageLocale != "" {
		pipe.HSetNX(ctx, key, "locale", click.PageLocale)
	}

	if click.PagePath != "" {
		pipe.HSetNX(ctx, key, "entry_page", click.PagePath)
		pipe.HSet(ctx, key, "exit_page", click.PagePath)
	}

	// Set session metadata (only if not exists)
	pipe.HSetNX(ctx, key, "site_id", click.SiteID)
	pipe.HSetNX(ctx, key, "started_at", ts)
	pipe.HSetNX(ctx, key, "browser", click.Browser)
	pipe.HSetNX(ctx, key, "os", click.OS)
	pipe.HSetNX(ctx, key, "device_type", click.DeviceType)
	pipe.HSetNX(ctx, key, "country", click.Country)
	pipe.HSetNX(ctx, key, "city", click.City)

	pipe.Expire(ctx, key, a.ttl)

	_, err := pipe.Exec(ctx)
	if err != nil {
		log.Error().Err(err).Str("session_id", click.SessionID).Msg("Failed to update session in Redis")
	}
	return err
}

// FlushSession writes one session to storage and removes it from Redis.
func (a *Aggregator) FlushSession(ctx context.Context, sessionID string) error {
	if a.redis == nil || a.writer == nil {
		return nil
	}

	key := keyPrefix + sessionID
	data, err := a.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	if err := a.writer.UpsertSessions(ctx, []storage.SessionRow{parseSessionData(sessionID, data)}); err != nil {
		return err
	}
	return a.redis.Del(ctx, key).Err()
}

// FlushIdle writes every session without a click in the last idle period.
// It returns how many sessions were flushed.
func (a *Aggregator) FlushIdle(ctx context.Context, idle time.Duration) (int, error) {
	cutoff := a.now().Add(-idle)
	return a.flush(ctx, func(s storage.SessionRow) bool {
		return s.EndedAt.Before(cutoff)
	})
}

// FlushAllSessions writes every pending session, as on shutdown.
func (a *Aggregator) FlushAllSessions(ctx context.Context) error {
	_, err := a.flush(ctx, func(storage.SessionRow) bool { return true })
	return err
}

func (a *Aggregator) flush(ctx context.Context, keep func(storage.SessionRow) bool) (int, error) {
	if a.redis == nil || a.writer == nil {
		return 0, nil
	}

	var (
		rows []storage.SessionRow
		keys []string
	)
	iter := a.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := a.redis.HGetAll(ctx, key).Result()
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("Failed to read session")
			continue
		}
		if len(data) == 0 {
			continue
		}
		row := parseSessionData(strings.TrimPrefix(key, keyPrefix), data)
		if !keep(row) {
			continue
		}
		rows = append(rows, row)
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if err := a.writer.UpsertSessions(ctx, rows); err != nil {
		return 0, err
	}
	if err := a.redis.Del(ctx, keys...).Err(); err != nil {
		log.Warn().Err(err).Int("count", len(keys)).Msg("Failed to delete flushed sessions")
	}
	return len(rows), nil
}

func parseSessionData(sessionID string, data map[string]string) storage.SessionRow {
	session := storage.SessionRow{
		SessionID:  sessionID,
		SiteID:     data["site_id"],
		Browser:    data["browser"],
		OS:         data["os"],
		DeviceType: data["device_type"],
		Country:    data["country"],
		City:       data["city"],
		Locale:     data["locale"],
		EntryPage:  data["entry_page"],
		ExitPage:   data["exit_page"],
	}

	if v, ok := data["started_at"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			session.StartedAt = time.UnixMilli(ms)
		}
	}
	if v, ok := data["ended_at"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			session.EndedAt = time.UnixMilli(ms)
		}
	}
	if !session.StartedAt.IsZero() && session.EndedAt.After(session.StartedAt) {
		session.DurationMs = uint64(session.EndedAt.Sub(session.StartedAt).Milliseconds())
	}
	if v, ok := data["clicks"]; ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			session.Clicks = uint32(n)
		}
	}
	if v, ok := data["language_switches"]; ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			session.LanguageSwitches = uint32(n)
		}
	}

	return session
}

// Close closes the aggregator
func (a *Aggregator) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
