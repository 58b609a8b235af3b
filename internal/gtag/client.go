// Package gtag forwards classified events to Google Analytics 4 through the
// Measurement Protocol.
package gtag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/alverniaplanet/website/internal/clicktrack"
	"github.com/alverniaplanet/website/internal/config"
)

type Client struct {
	measurementID string
	apiSecret     string
	endpoint      string
	timeout       time.Duration
	http          *http.Client

	wg sync.WaitGroup
}

func NewClient(cfg config.AnalyticsConfig) *Client {
	return &Client{
		measurementID: cfg.MeasurementID,
		apiSecret:     cfg.APISecret,
		endpoint:      cfg.Endpoint,
		timeout:       cfg.Timeout,
		http:          &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled reports whether a measurement ID is configured.
func (c *Client) Enabled() bool { return c != nil && c.measurementID != "" }

func (c *Client) MeasurementID() string {
	if c == nil {
		return ""
	}
	return c.measurementID
}

type mpEvent struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

type mpPayload struct {
	ClientID        string    `json:"client_id"`
	TimestampMicros int64     `json:"timestamp_micros,omitempty"`
	Events          []mpEvent `json:"events"`
}

// Send posts events for clientID in one request, in order. A non-zero at
// becomes the payload timestamp. Parameters with nil values are dropped.
func (c *Client) Send(ctx context.Context, clientID string, at time.Time, events []clicktrack.Event) error {
	if !c.Enabled() || len(events) == 0 {
		return nil
	}

	payload := mpPayload{ClientID: clientID, Events: make([]mpEvent, 0, len(events))}
	if !at.IsZero() {
		payload.TimestampMicros = at.UnixMicro()
	}
	for _, ev := range events {
		params := make(map[string]any, len(ev.Params))
		for k, v := range ev.Params {
			if v != nil {
				params[k] = v
			}
		}
		payload.Events = append(payload.Events, mpEvent{Name: ev.Name, Params: params})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("gtag: bad endpoint: %w", err)
	}
	q := u.Query()
	q.Set("measurement_id", c.measurementID)
	q.Set("api_secret", c.apiSecret)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gtag: send: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("gtag: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Batch collects the events of a single click so they reach GA4 in the
// order they were tracked.
type Batch struct {
	client   *Client
	clientID string
	at       time.Time
	events   []clicktrack.Event
}

// NewBatch starts a batch for clientID stamped with at. A disabled client
// yields a batch that drops everything.
func (c *Client) NewBatch(clientID string, at time.Time) *Batch {
	return &Batch{client: c, clientID: clientID, at: at}
}

func (b *Batch) Track(name string, params clicktrack.Params) {
	if b.client.Enabled() {
		b.events = append(b.events, clicktrack.Event{Name: name, Params: params})
	}
}

// Flush sends the tracked events in the background as one request.
func (b *Batch) Flush() {
	if !b.client.Enabled() || len(b.events) == 0 {
		return
	}
	c, events := b.client, b.events
	b.events = nil

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := c.Send(ctx, b.clientID, b.at, events); err != nil {
			log.Debug().Err(err).Int("events", len(events)).Msg("GA4 forward failed")
		}
	}()
}

// Wait blocks until every background forward has finished.
func (c *Client) Wait() {
	if c != nil {
		c.wg.Wait()
	}
}
