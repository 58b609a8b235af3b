package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alverniaplanet/website/internal/storage"
)

type fakeWriter struct {
	mu   sync.Mutex
	rows []storage.SessionRow
	err  error
}

func (w *fakeWriter) UpsertSessions(_ context.Context, rows []storage.SessionRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.rows = append(w.rows, rows...)
	return nil
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func click(name, path, locale string, at time.Time) storage.ClickRow {
	return storage.ClickRow{
		SiteID:     "alvernia",
		SessionID:  "s-1",
		EventName:  name,
		PagePath:   path,
		PageLocale: locale,
		Timestamp:  at,
		Browser:    "Firefox",
		Country:    "PL",
	}
}

func TestAggregatorFoldsClicks(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	w := &fakeWriter{}
	a := newAggregator(w, rdb, time.Hour)
	ctx := context.Background()

	t0 := time.UnixMilli(1700000000000)
	sw := click("language_switch", "/", "pl", t0)
	sw.TargetLocale = "en"
	require.NoError(t, a.UpdateSession(ctx, click("ui_click", "/", "pl", t0)))
	require.NoError(t, a.UpdateSession(ctx, sw))
	require.NoError(t, a.UpdateSession(ctx, click("ui_click", "/", "pl", t0)))
	require.NoError(t, a.UpdateSession(ctx, click("cta_booking", "/wydarzenia", "en", t0.Add(90*time.Second))))

	assert.True(t, mr.Exists("session:s-1"))
	assert.Equal(t, time.Hour, mr.TTL("session:s-1"))

	require.NoError(t, a.FlushSession(ctx, "s-1"))
	assert.False(t, mr.Exists("session:s-1"))

	require.Len(t, w.rows, 1)
	s := w.rows[0]
	assert.Equal(t, "alvernia", s.SiteID)
	assert.Equal(t, uint32(4), s.Clicks)
	assert.Equal(t, uint32(1), s.LanguageSwitches)
	assert.Equal(t, "en", s.Locale)
	assert.Equal(t, "/", s.EntryPage)
	assert.Equal(t, "/wydarzenia", s.ExitPage)
	assert.Equal(t, uint64(90000), s.DurationMs)
	assert.Equal(t, "Firefox", s.Browser)
}

func TestFlushIdleKeepsActiveSessions(t *testing.T) {
	_, rdb := setupTestRedis(t)
	w := &fakeWriter{}
	a := newAggregator(w, rdb, time.Hour)
	now := time.UnixMilli(1700000600000)
	a.now = func() time.Time { return now }
	ctx := context.Background()

	old := click("ui_click", "/", "pl", now.Add(-20*time.Minute))
	old.SessionID = "old"
	fresh := click("ui_click", "/", "pl", now.Add(-time.Minute))
	fresh.SessionID = "fresh"
	require.NoError(t, a.UpdateSession(ctx, old))
	require.NoError(t, a.UpdateSession(ctx, fresh))

	n, err := a.FlushIdle(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, w.rows, 1)
	assert.Equal(t, "old", w.rows[0].SessionID)

	require.NoError(t, a.FlushAllSessions(ctx))
	assert.Len(t, w.rows, 2)
}

func TestFlushKeepsSessionOnWriteFailure(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	w := &fakeWriter{err: errors.New("clickhouse down")}
	a := newAggregator(w, rdb, time.Hour)
	ctx := context.Background()

	require.NoError(t, a.UpdateSession(ctx, click("ui_click", "/", "pl", time.Now())))
	assert.Error(t, a.FlushAllSessions(ctx))
	assert.True(t, mr.Exists("session:s-1"))
}

func TestUpdateSessionWithoutID(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	a := newAggregator(&fakeWriter{}, rdb, 0)
	c := click("ui_click", "/", "pl", time.Now())
	c.SessionID = ""
	require.NoError(t, a.UpdateSession(context.Background(), c))
	assert.Empty(t, mr.Keys())
}
