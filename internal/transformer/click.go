package transformer

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/alverniaplanet/website/internal/storage"
)

var (
	ErrMissingName    = errors.New("transformer: event has no name")
	ErrMissingSession = errors.New("transformer: event has no session_id")
)

// TransformClick converts a classified click from Kafka into a ClickHouse
// row. Params are kept verbatim as JSON; label, href and to are also
// lifted into their own columns.
func TransformClick(raw map[string]interface{}) (*storage.ClickRow, error) {
	name := getString(raw, "name")
	if name == "" {
		return nil, ErrMissingName
	}
	sessionID := getString(raw, "session_id")
	if sessionID == "" {
		return nil, ErrMissingSession
	}

	row := &storage.ClickRow{
		EventID:        eventID(raw),
		SiteID:         getString(raw, "site_id"),
		SessionID:      sessionID,
		EventName:      name,
		X:              getInt32(raw, "x"),
		Y:              getInt32(raw, "y"),
		Browser:        getString(raw, "browser"),
		BrowserVersion: getString(raw, "browser_version"),
		OS:             getString(raw, "os"),
		DeviceType:     getString(raw, "device_type"),
		Country:        getString(raw, "country"),
		City:           getString(raw, "city"),
	}

	serverTS := getInt64(raw, "server_timestamp")
	ts := getInt64(raw, "timestamp")
	if ts == 0 {
		ts = serverTS
	}
	row.Timestamp = time.UnixMilli(ts)
	row.ServerTimestamp = time.UnixMilli(serverTS)

	if page, ok := raw["page"].(map[string]interface{}); ok {
		row.PageURL = getString(page, "url")
		row.PagePath = getString(page, "path")
		row.PageTitle = getString(page, "title")
		row.PageLocale = getString(page, "locale")
		row.Referrer = getString(page, "referrer")
	}

	if params, ok := raw["params"].(map[string]interface{}); ok && len(params) > 0 {
		row.Label = getString(params, "label")
		row.Href = getString(params, "href")
		row.TargetLocale = getString(params, "to")
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		row.Params = string(data)
	} else {
		row.Params = "{}"
	}

	return row, nil
}

// eventID keeps a valid UUID from the producer and replaces anything else.
func eventID(raw map[string]interface{}) string {
	if v, ok := raw["event_id"].(string); ok {
		if _, err := uuid.Parse(v); err == nil {
			return v
		}
	}
	return uuid.New().String()
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getInt64(m map[string]interface{}, key string) int64 {
	if v, ok := m[key].(float64); ok {
		return int64(v)
	}
	return 0
}

func getInt32(m map[string]interface{}, key string) int32 {
	if v, ok := m[key].(float64); ok {
		return int32(v)
	}
	return 0
}
