package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/yourorg/listings-gateway/internal/canon"
	"github.com/yourorg/listings-gateway/internal/redisx"
	"github.com/yourorg/listings-gateway/proptx"
)

type DetailDeps struct {
	Redis  *redisx.Client
	Client *proptx.Client
	// Refetch enqueues a background refresh for a stale cache hit.
	Refetch func(listingKey string)
	// TTL and staleness tuning
	CacheTTL    time.Duration
	StaleAfter  time.Duration
	NegativeTTL time.Duration
}

type cachedEnvelope struct {
	Data proptx.Listing `json:"data"`
	Meta struct {
		LastFetch  time.Time `json:"last_fetch_at"`
		StaleAfter time.Time `json:"stale_after"`
		TTLSeconds int       `json:"ttl_seconds"`
	} `json:"meta"`
}

func RegisterDetail(r chi.Router, d DetailDeps) {
	r.Route("/v1/listings", func(r chi.Router) {
		r.Get("/{listingKey}", func(w http.ResponseWriter, req *http.Request) {
			detail(w, req, d)
		})
	})
}

func detail(w http.ResponseWriter, req *http.Request, d DetailDeps) {
	key := canon.ListingCacheKey(chi.URLParam(req, "listingKey"))
	if key == "" {
		render.Status(req, http.StatusBadRequest)
		render.JSON(w, req, map[string]any{"error": "listing_key_required"})
		return
	}
	if d.Client == nil || !d.Client.HasToken() {
		render.Status(req, http.StatusServiceUnavailable)
		render.JSON(w, req, map[string]any{"error": "provider_not_configured"})
		return
	}
	ctx := req.Context()
	missKey := "listing:miss:" + key
	cacheKey := "listing:key:" + key

	if d.Redis != nil {
		if ok, _ := d.Redis.Exists(ctx, missKey); ok {
			render.Status(req, http.StatusNotFound)
			render.JSON(w, req, map[string]any{"error": "not_found", "listingKey": key, "cache_miss_cooldown": true})
			return
		}
		if val, err := d.Redis.Get(ctx, cacheKey); err == nil && val != "" {
			var env cachedEnvelope
			if err := json.Unmarshal([]byte(val), &env); err == nil {
				stale := time.Now().After(env.Meta.StaleAfter)
				// fire-and-forget background refresh if stale
				if stale && d.Refetch != nil {
					d.Refetch(key)
				}
				render.JSON(w, req, map[string]any{
					"ok":         true,
					"source":     "cache",
					"stale":      stale,
					"listingKey": key,
					"listing":    env.Data,
				})
				return
			}
		}
		// Cache miss: short lock to avoid stampedes.
		if ok, _ := d.Redis.SetNX(ctx, "listing:lock:"+key, "1", 8*time.Second); !ok {
			render.Status(req, http.StatusAccepted)
			render.JSON(w, req, map[string]any{"ok": false, "in_progress": true, "listingKey": key})
			return
		}
	}

	listing, err := FetchDetail(ctx, d.Client, key)
	if err != nil {
		render.Status(req, http.StatusBadGateway)
		render.JSON(w, req, map[string]any{"error": "upstream_error", "detail": err.Error()})
		return
	}
	if listing == nil {
		if d.Redis != nil {
			_ = d.Redis.Set(ctx, missKey, "1", durOrDefault(d.NegativeTTL, time.Minute))
		}
		render.Status(req, http.StatusNotFound)
		render.JSON(w, req, map[string]any{"error": "not_found", "listingKey": key})
		return
	}

	if d.Redis != nil {
		CacheDetail(ctx, d.Redis, key, *listing, durOrDefault(d.CacheTTL, time.Hour), durOrDefault(d.StaleAfter, 5*time.Minute))
	}

	render.JSON(w, req, map[string]any{
		"ok":         true,
		"source":     "fresh",
		"stale":      false,
		"listingKey": key,
		"listing":    listing,
	})
}

// FetchDetail loads one listing and enriches it with media. A media
// failure leaves the listing with an empty image set; it never fails
// the lookup.
func FetchDetail(ctx context.Context, client *proptx.Client, listingKey string) (*proptx.Listing, error) {
	listing, err := client.FetchByKey(ctx, listingKey)
	if err != nil || listing == nil {
		return nil, err
	}
	mediaCtx, cancel := context.WithTimeout(ctx, proptx.MediaFetchTimeout)
	defer cancel()
	imgs, err := client.ListingMedia(mediaCtx, listingKey)
	if err == nil {
		listing.Images = imgs
	}
	if listing.Images == nil {
		listing.Images = []proptx.Image{}
	}
	listing.Address = listing.UnparsedAddress
	return listing, nil
}

// CacheDetail stores the envelope used by both the handler and the
// background refresher.
func CacheDetail(ctx context.Context, rdb *redisx.Client, key string, listing proptx.Listing, ttl, staleAfter time.Duration) {
	var env cachedEnvelope
	env.Data = listing
	env.Meta.LastFetch = time.Now()
	env.Meta.StaleAfter = env.Meta.LastFetch.Add(staleAfter)
	env.Meta.TTLSeconds = int(ttl.Seconds())
	b, _ := json.Marshal(env)
	_ = rdb.Set(ctx, "listing:key:"+key, string(b), ttl)
}

// durOrDefault substitutes def for unset (non-positive) durations.
func durOrDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
