package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/alverniaplanet/website/internal/collect"
	"github.com/alverniaplanet/website/internal/validation"
)

type HTTPHandler struct {
	collector    *collect.Collector
	maxBodyBytes int64
}

func NewHTTPHandler(c *collect.Collector, maxBodyBytes int64) *HTTPHandler {
	return &HTTPHandler{
		collector:    c,
		maxBodyBytes: maxBodyBytes,
	}
}

type ClickResponse struct {
	Success         bool     `json:"success"`
	SessionID       string   `json:"session_id,omitempty"`
	AcceptedCount   int      `json:"accepted_count"`
	RejectedCount   int      `json:"rejected_count"`
	ClassifiedCount int      `json:"classified_count"`
	Errors          []string `json:"errors,omitempty"`
}

// HandleClicks accepts a click batch from the tracker script. Beacons are
// sent as text/plain, so the content type is not checked.
func (h *HTTPHandler) HandleClicks(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	// Read body
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ClickResponse{Errors: []string{"Failed to read body"}})
		return
	}
	if int64(len(body)) > h.maxBodyBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, ClickResponse{Errors: []string{"Body too large"}})
		return
	}

	// Parse request
	var batch collect.Batch
	if err := json.Unmarshal(body, &batch); err != nil {
		writeJSON(w, http.StatusBadRequest, ClickResponse{Errors: []string{"Invalid JSON"}})
		return
	}

	res, err := h.collector.Collect(r.Context(), batch, collect.ClientInfo{
		UserAgent: r.Header.Get("User-Agent"),
		IP:        clientIP(r),
	})
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Msg("Click batch failed")
		}
		writeJSON(w, status, ClickResponse{
			RejectedCount: len(batch.Clicks),
			Errors:        []string{msg},
		})
		return
	}

	writeJSON(w, http.StatusOK, ClickResponse{
		Success:         res.Rejected == 0,
		SessionID:       res.SessionID,
		AcceptedCount:   res.Accepted,
		RejectedCount:   res.Rejected,
		ClassifiedCount: res.Classified,
		Errors:          res.Errors,
	})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, validation.ErrInvalidSiteKey):
		return http.StatusUnauthorized, "Invalid site key"
	case errors.Is(err, collect.ErrRateLimited):
		return http.StatusTooManyRequests, "Rate limit exceeded"
	case errors.Is(err, collect.ErrBatchTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

// clientIP relies on middleware.RealIP having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Routes mounts the collect API on r. An empty origin list allows any
// origin.
func (h *HTTPHandler) Routes(r chi.Router, allowedOrigins []string) {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Group(func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
		r.Post("/v1/clicks", h.HandleClicks)
		r.Options("/v1/clicks", func(w http.ResponseWriter, r *http.Request) {})
	})
	r.Get("/health", HealthCheck)
}
