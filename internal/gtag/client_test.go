package gtag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alverniaplanet/website/internal/clicktrack"
	"github.com/alverniaplanet/website/internal/config"
)

type captured struct {
	mu       sync.Mutex
	queries  []string
	payloads []mpPayload
	headers  []http.Header
}

func newCollector(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p mpPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		c.mu.Lock()
		c.queries = append(c.queries, r.URL.RawQuery)
		c.payloads = append(c.payloads, p)
		c.headers = append(c.headers, r.Header.Clone())
		c.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func newClient(endpoint, id string) *Client {
	return NewClient(config.AnalyticsConfig{
		MeasurementID: id,
		APISecret:     "secret",
		Endpoint:      endpoint,
		Timeout:       time.Second,
	})
}

func TestSend(t *testing.T) {
	srv, got := newCollector(t, http.StatusNoContent)
	c := newClient(srv.URL+"/mp/collect", "G-TEST")

	at := time.UnixMilli(1700000000123)
	err := c.Send(context.Background(), "sess-1", at, []clicktrack.Event{
		{Name: "language_switch", Params: clicktrack.Params{"to": "en", "label": "English"}},
		{Name: "ui_click", Params: clicktrack.Params{"label": "English", "href": nil}},
	})
	require.NoError(t, err)

	require.Len(t, got.payloads, 1)
	assert.Equal(t, "api_secret=secret&measurement_id=G-TEST", got.queries[0])
	p := got.payloads[0]
	assert.Equal(t, "sess-1", p.ClientID)
	assert.Equal(t, int64(1700000000123000), p.TimestampMicros)
	require.Len(t, p.Events, 2)
	assert.Equal(t, "language_switch", p.Events[0].Name)
	assert.Equal(t, map[string]any{"label": "English"}, p.Events[1].Params)
	assert.Empty(t, got.headers[0].Get("X-Forwarded-For"))
}

func TestSendReportsStatus(t *testing.T) {
	srv, _ := newCollector(t, http.StatusBadRequest)
	c := newClient(srv.URL, "G-TEST")
	err := c.Send(context.Background(), "x", time.Time{}, []clicktrack.Event{{Name: "ui_click"}})
	assert.Error(t, err)
}

func TestDisabledClientIsNoop(t *testing.T) {
	c := newClient("http://127.0.0.1:1", "")
	assert.False(t, c.Enabled())
	assert.NoError(t, c.Send(context.Background(), "x", time.Time{}, []clicktrack.Event{{Name: "ui_click"}}))
	b := c.NewBatch("x", time.Time{})
	b.Track("ui_click", nil)
	b.Flush()
	assert.Empty(t, b.events)

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	nb := nilClient.NewBatch("x", time.Time{})
	nb.Track("ui_click", nil)
	nb.Flush()
	nilClient.Wait()
}

func TestBatchForwardsInBackground(t *testing.T) {
	srv, got := newCollector(t, http.StatusNoContent)
	c := newClient(srv.URL, "G-TEST")

	b := c.NewBatch("sess-2", time.Time{})
	clicktrack.New(b).OnClick(clicktrack.Click{Target: button{}})
	b.Flush()
	c.Wait()

	got.mu.Lock()
	defer got.mu.Unlock()
	require.Len(t, got.payloads, 1)
	assert.Equal(t, "sess-2", got.payloads[0].ClientID)
	assert.Zero(t, got.payloads[0].TimestampMicros)
	assert.Equal(t, "ui_click", got.payloads[0].Events[0].Name)
	assert.Equal(t, "Galeria", got.payloads[0].Events[0].Params["label"])
}

type switcher struct{}

func (switcher) Parent() clicktrack.Node { return nil }
func (switcher) IsElement() bool { return true }
func (switcher) Tag() string { return "button" }
func (switcher) Attr(string) (string, bool) { return "", false }
func (switcher) Text() string { return "English" }

func TestBatchKeepsLanguageSwitchFirst(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p mpPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		for _, ev := range p.Events {
			if ev.Name == clicktrack.LanguageSwitchEvent {
				time.Sleep(50 * time.Millisecond)
			}
		}
		mu.Lock()
		for _, ev := range p.Events {
			order = append(order, ev.Name)
		}
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	c := newClient(srv.URL, "G-TEST")

	b := c.NewBatch("ga-1", time.UnixMilli(1700000000000))
	clicktrack.New(b).OnClick(clicktrack.Click{Target: switcher{}})
	b.Flush()
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"language_switch", "ui_click"}, order)
}

type button struct{}

func (button) Parent() clicktrack.Node { return nil }
func (button) IsElement() bool { return true }
func (button) Tag() string { return "button" }
func (button) Attr(string) (string, bool) { return "", false }
func (button) Text() string { return "Galeria" }
