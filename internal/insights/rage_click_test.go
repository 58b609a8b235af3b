package insights

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alverniaplanet/website/internal/config"
	"github.com/alverniaplanet/website/internal/storage"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func newDetector(t *testing.T) *RageClickDetector {
	return NewRageClickDetector(setupTestRedis(t), config.RageClickConfig{
		MinClicks:    3,
		TimeWindowMs: 1000,
		RadiusPx:     30,
	})
}

func clickAt(i, x, y int, at time.Time) storage.ClickRow {
	return storage.ClickRow{
		EventID:   fmt.Sprintf("e-%d", i),
		SiteID:    "alvernia",
		SessionID: "s-1",
		EventName: "ui_click",
		Label:     "Rezerwuj wizytę",
		PagePath:  "/",
		X:         int32(x),
		Y:         int32(y),
		Timestamp: at,
	}
}

func TestRageClickDetected(t *testing.T) {
	d := newDetector(t)
	ctx := context.Background()
	t0 := time.UnixMilli(1700000000000)

	for i := 0; i < 2; i++ {
		ins, err := d.ProcessClick(ctx, clickAt(i, 100+i, 40, t0.Add(time.Duration(i)*100*time.Millisecond)))
		require.NoError(t, err)
		assert.Nil(t, ins)
	}

	ins, err := d.ProcessClick(ctx, clickAt(2, 104, 42, t0.Add(250*time.Millisecond)))
	require.NoError(t, err)
	require.NotNil(t, ins)
	assert.Equal(t, TypeRageClick, ins.Type)
	assert.Equal(t, "alvernia", ins.SiteID)
	assert.Equal(t, "Rezerwuj wizytę", ins.Label)
	assert.Equal(t, 3, ins.Details["click_count"])
	assert.ElementsMatch(t, []string{"e-0", "e-1", "e-2"}, ins.RelatedEventIDs)

	// The burst is consumed.
	ins, err = d.ProcessClick(ctx, clickAt(3, 104, 42, t0.Add(300*time.Millisecond)))
	require.NoError(t, err)
	assert.Nil(t, ins)
}

func TestSlowClicksAreNotRage(t *testing.T) {
	d := newDetector(t)
	ctx := context.Background()
	t0 := time.UnixMilli(1700000000000)

	for i := 0; i < 4; i++ {
		ins, err := d.ProcessClick(ctx, clickAt(i, 100, 40, t0.Add(time.Duration(i)*2*time.Second)))
		require.NoError(t, err)
		assert.Nil(t, ins)
	}
}

func TestLanguageSwitchAndUnplacedClicksIgnored(t *testing.T) {
	d := newDetector(t)
	ctx := context.Background()
	t0 := time.UnixMilli(1700000000000)

	for i := 0; i < 5; i++ {
		sw := clickAt(i, 100, 40, t0)
		sw.EventName = "language_switch"
		ins, err := d.ProcessClick(ctx, sw)
		require.NoError(t, err)
		assert.Nil(t, ins)

		ins, err = d.ProcessClick(ctx, clickAt(10+i, 0, 0, t0))
		require.NoError(t, err)
		assert.Nil(t, ins)
	}
}
