package validation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/alverniaplanet/website/internal/config"
)

const (
	minKeyLength = 8
	siteCacheTTL = 5 * time.Minute
)

type Validator struct {
	store SiteStore
	redis *redis.Client
	cfg   config.RateLimitConfig
}

// NewValidator checks keys against store. rdb may be nil, which disables
// caching and rate limiting.
func NewValidator(store SiteStore, rdb *redis.Client, cfg config.RateLimitConfig) *Validator {
	return &Validator{
		store: store,
		redis: rdb,
		cfg:   cfg,
	}
}

func (v *Validator) ValidateSiteKey(ctx context.Context, key string) (*Site, error) {
	if len(key) < minKeyLength {
		return nil, ErrInvalidSiteKey
	}

	// Check cache first
	cacheKey := "sitekey:" + hashKey(key)
	if v.redis != nil {
		if data, err := v.redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var site Site
			if json.Unmarshal(data, &site) == nil {
				return &site, nil
			}
		}
	}

	site, err := v.store.LookupSite(ctx, key)
	if err != nil {
		return nil, err
	}

	if v.redis != nil {
		if data, err := json.Marshal(site); err == nil {
			if err := v.redis.Set(ctx, cacheKey, data, siteCacheTTL).Err(); err != nil {
				log.Debug().Err(err).Msg("Failed to cache site key")
			}
		}
	}
	return site, nil
}

// CheckRateLimit counts a request from clientIP against siteID's
// per-second budget. It allows the request when Redis is absent or failing.
func (v *Validator) CheckRateLimit(ctx context.Context, siteID, clientIP string) bool {
	if v.redis == nil || v.cfg.RequestsPerSecond <= 0 {
		return true
	}
	key := "ratelimit:" + siteID + ":" + clientIP

	// Increment counter
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return true // Allow on error
	}

	// Set expiry on first request
	if count == 1 {
		v.redis.Expire(ctx, key, time.Second)
	}

	return count <= int64(v.cfg.RequestsPerSecond)
}
