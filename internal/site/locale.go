package site

import (
	"context"
	"net/http"

	"github.com/alverniaplanet/website/internal/i18n"
)

type ctxKey int

const ctxKeyLang ctxKey = iota

const langCookie = "hl"

// Locale picks the page language and stores it in the request context.
// An explicit ?hl= choice is remembered in the hl cookie.
func Locale(catalog *i18n.Catalog) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var remembered string
			if c, err := r.Cookie(langCookie); err == nil {
				remembered = c.Value
			}
			lang, src := catalog.Negotiate(r.URL.Query().Get("hl"), remembered, r.Header.Get("Accept-Language"))
			if src == i18n.FromQuery {
				http.SetCookie(w, &http.Cookie{
					Name:     langCookie,
					Value:    lang,
					Path:     "/",
					MaxAge:   365 * 24 * 60 * 60,
					SameSite: http.SameSiteLaxMode,
				})
			}

			w.Header().Set("Content-Language", lang)
			w.Header().Add("Vary", "Accept-Language")
			w.Header().Add("Vary", "Cookie")
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyLang, lang)))
		})
	}
}

// Lang returns the language Locale chose for the request, or fallback.
func Lang(r *http.Request, fallback string) string {
	if v, ok := r.Context().Value(ctxKeyLang).(string); ok && v != "" {
		return v
	}
	return fallback
}
