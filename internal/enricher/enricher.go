package enricher

import (
	"net"
	"time"

	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"
)

type cityLookup interface {
	City(ip net.IP) (*geoip2.City, error)
}

type Enricher struct {
	geoIP  cityLookup
	closer func() error
	now    func() time.Time
}

func NewEnricher(geoIPPath string) *Enricher {
	e := &Enricher{now: time.Now}

	// Try to load GeoIP database
	if geoIPPath != "" {
		reader, err := geoip2.Open(geoIPPath)
		if err != nil {
			log.Warn().Err(err).Str("path", geoIPPath).Msg("GeoIP database unavailable, skipping geo enrichment")
		} else {
			e.geoIP = reader
			e.closer = reader.Close
		}
	}
	return e
}

// Page describes the page a click happened on.
type Page struct {
	URL      string `json:"url"`
	Path     string `json:"path"`
	Title    string `json:"title,omitempty"`
	Locale   string `json:"locale,omitempty"`
	Referrer string `json:"referrer,omitempty"`
}

// ClassifiedEvent is one classified click as it travels to Kafka.
type ClassifiedEvent struct {
	EventID   string         `json:"event_id"`
	Name      string         `json:"name"`
	Params    map[string]any `json:"params,omitempty"`
	SiteID    string         `json:"site_id"`
	SessionID string         `json:"session_id"`
	Timestamp int64          `json:"timestamp"`
	Page      Page           `json:"page"`
	X         int            `json:"x"`
	Y         int            `json:"y"`

	// Enriched fields
	ServerTimestamp int64  `json:"server_timestamp"`
	Browser         string `json:"browser"`
	BrowserVersion  string `json:"browser_version"`
	OS              string `json:"os"`
	DeviceType      string `json:"device_type"`
	Country         string `json:"country"`
	City            string `json:"city"`
}

// Enrich fills the server-side fields of event from the request's user
// agent and client IP. The IP itself is not stored.
func (e *Enricher) Enrich(event *ClassifiedEvent, userAgentString, clientIP string) {
	event.ServerTimestamp = e.now().UnixMilli()
	if event.Timestamp == 0 {
		event.Timestamp = event.ServerTimestamp
	}

	// Parse user agent
	if userAgentString != "" {
		ua := useragent.New(userAgentString)
		event.Browser, event.BrowserVersion = ua.Browser()
		event.OS = ua.OS()
		event.DeviceType = getDeviceType(ua)
	}

	// GeoIP lookup
	if e.geoIP != nil && clientIP != "" {
		if ip := net.ParseIP(stripPort(clientIP)); ip != nil {
			record, err := e.geoIP.City(ip)
			if err == nil {
				event.Country = record.Country.IsoCode
				if name, ok := record.City.Names["en"]; ok {
					event.City = name
				}
			}
		}
	}
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func getDeviceType(ua *useragent.UserAgent) string {
	if ua.Bot() {
		return "bot"
	}
	if ua.Mobile() {
		return "mobile"
	}
	return "desktop"
}

func (e *Enricher) Close() {
	if e.closer != nil {
		e.closer()
	}
}
