package validation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/alverniaplanet/website/internal/config"
)

var (
	ErrInvalidSiteKey   = errors.New("invalid site key")
	ErrOriginNotAllowed = errors.New("origin not allowed for site")
)

// Site is a tracked website and the origins its pages may be served from.
type Site struct {
	ID      string   `json:"id"`
	Origins []string `json:"origins,omitempty"`
}

// AllowsOrigin reports whether page is served from one of the site's
// origins. A site without origins accepts any.
func (s *Site) AllowsOrigin(page *url.URL) bool {
	if len(s.Origins) == 0 {
		return true
	}
	if page == nil || page.Host == "" {
		return false
	}
	got := normalizeOrigin(page)
	for _, o := range s.Origins {
		u, err := url.Parse(o)
		if err != nil {
			continue
		}
		if normalizeOrigin(u) == got {
			return true
		}
	}
	return false
}

func normalizeOrigin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// SiteStore resolves site keys.
type SiteStore interface {
	LookupSite(ctx context.Context, key string) (*Site, error)
}

// StaticSiteStore serves sites declared in configuration.
type StaticSiteStore struct {
	sites map[string]*Site
}

func NewStaticSiteStore(cfgs []config.SiteKeyConfig) *StaticSiteStore {
	s := &StaticSiteStore{sites: make(map[string]*Site, len(cfgs))}
	for _, c := range cfgs {
		s.sites[hashKey(c.Key)] = &Site{ID: c.ID, Origins: c.Origins}
	}
	return s
}

func (s *StaticSiteStore) LookupSite(_ context.Context, key string) (*Site, error) {
	site, ok := s.sites[hashKey(key)]
	if !ok {
		return nil, ErrInvalidSiteKey
	}
	return site, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSiteStore looks keys up in the site_keys table by SHA-256 hash.
type PostgresSiteStore struct {
	db rowQuerier
}

func NewPostgresSiteStore(db rowQuerier) *PostgresSiteStore {
	return &PostgresSiteStore{db: db}
}

func (s *PostgresSiteStore) LookupSite(ctx context.Context, key string) (*Site, error) {
	var site Site
	err := s.db.QueryRow(ctx, `
		SELECT site_id::text, allowed_origins FROM site_keys
		WHERE key_hash = $1 AND is_active = true
		AND (expires_at IS NULL OR expires_at > NOW())
	`, hashKey(key)).Scan(&site.ID, &site.Origins)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidSiteKey
	}
	if err != nil {
		return nil, err
	}
	return &site, nil
}

// MultiStore consults each store in order and returns the first match.
type MultiStore []SiteStore

func (m MultiStore) LookupSite(ctx context.Context, key string) (*Site, error) {
	var lastErr error = ErrInvalidSiteKey
	for _, s := range m {
		site, err := s.LookupSite(ctx, key)
		if err == nil {
			return site, nil
		}
		if !errors.Is(err, ErrInvalidSiteKey) {
			lastErr = err
		}
	}
	return nil, lastErr
}
