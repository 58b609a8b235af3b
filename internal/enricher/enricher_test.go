package enricher

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/oschwald/geoip2-golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGeo struct {
	seen net.IP
}

func (f *fakeGeo) City(ip net.IP) (*geoip2.City, error) {
	f.seen = ip
	if ip.IsLoopback() {
		return nil, errors.New("not found")
	}
	c := &geoip2.City{}
	c.Country.IsoCode = "PL"
	c.City.Names = map[string]string{"en": "Krakow"}
	return c, nil
}

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func TestEnrich(t *testing.T) {
	geo := &fakeGeo{}
	now := time.UnixMilli(1_700_000_000_000)
	e := &Enricher{geoIP: geo, now: func() time.Time { return now }}

	ev := &ClassifiedEvent{Name: "ui_click"}
	e.Enrich(ev, chromeUA, "203.0.113.7:51234")

	assert.Equal(t, now.UnixMilli(), ev.ServerTimestamp)
	assert.Equal(t, now.UnixMilli(), ev.Timestamp)
	assert.Equal(t, "Chrome", ev.Browser)
	assert.Equal(t, "desktop", ev.DeviceType)
	assert.Equal(t, "PL", ev.Country)
	assert.Equal(t, "Krakow", ev.City)
	require.NotNil(t, geo.seen)
	assert.Equal(t, "203.0.113.7", geo.seen.String())
}

func TestEnrichKeepsClientTimestampAndSkipsUnknownIP(t *testing.T) {
	e := &Enricher{geoIP: &fakeGeo{}, now: time.Now}
	ev := &ClassifiedEvent{Timestamp: 42}
	e.Enrich(ev, "", "127.0.0.1")

	assert.Equal(t, int64(42), ev.Timestamp)
	assert.Empty(t, ev.Browser)
	assert.Empty(t, ev.Country)
}

func TestNewEnricherWithoutDatabase(t *testing.T) {
	e := NewEnricher("/nonexistent/GeoLite2-City.mmdb")
	defer e.Close()
	assert.Nil(t, e.geoIP)

	ev := &ClassifiedEvent{}
	e.Enrich(ev, "", "203.0.113.7")
	assert.Empty(t, ev.Country)
}
