package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	httpapi "github.com/yourorg/listings-gateway/http"
	httpv1 "github.com/yourorg/listings-gateway/http/v1"
	"github.com/yourorg/listings-gateway/internal/archive"
	"github.com/yourorg/listings-gateway/internal/env"
	"github.com/yourorg/listings-gateway/internal/events"
	"github.com/yourorg/listings-gateway/internal/logger"
	"github.com/yourorg/listings-gateway/internal/redisx"
	"github.com/yourorg/listings-gateway/internal/refresh"
	"github.com/yourorg/listings-gateway/internal/search"
	"github.com/yourorg/listings-gateway/internal/store"
	"github.com/yourorg/listings-gateway/internal/warmcache"
	"github.com/yourorg/listings-gateway/proptx"
)

func main() {
	_ = godotenv.Load()
	logger.Setup()

	port := env.GetInt("PORT", 4002)
	baseURL := env.Get("PROPTX_BASE_URL", "")
	token := env.Get("PROPTX_TOKEN", "")
	if token == "" {
		// Deliberately not fatal: the gateway degrades to empty
		// well-formed results instead of refusing to start.
		slog.Warn("PROPTX_TOKEN not set; /listings will serve degraded empty results")
	}

	client := proptx.NewClient(baseURL, token)
	warm := warmcache.New(env.Get("IMAGE_SERVICE_URL", ""))

	var arch *archive.Archive
	if dsn := env.Get("PG_DSN", ""); dsn != "" {
		st, err := store.Open(dsn)
		if err != nil {
			log.Fatalf("store open error: %v", err)
		}
		defer st.DB.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := st.Ping(ctx); err != nil {
			cancel()
			log.Fatalf("postgres ping error: %v", err)
		}
		if err := st.Migrate(ctx); err != nil {
			cancel()
			log.Fatalf("postgres migrate error: %v", err)
		}
		cancel()
		pub := events.NewInMemory(256)
		arch = &archive.Archive{Store: st, Pub: pub}
		go (&search.Indexer{Pub: pub}).Run(context.Background())
	}

	var rdb *redisx.Client
	if addr := env.Get("REDIS_ADDR", ""); addr != "" {
		rdb = redisx.New(addr, env.Get("REDIS_PASSWORD", ""), env.GetInt("REDIS_DB", 0))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx); err != nil {
			slog.Warn("redis unreachable; detail caching disabled", "error", err)
			rdb = nil
		}
		cancel()
	}

	detail := httpv1.DetailDeps{
		Redis:       rdb,
		Client:      client,
		CacheTTL:    time.Hour,
		StaleAfter:  5 * time.Minute,
		NegativeTTL: time.Minute,
	}
	if rdb != nil {
		refresher := refresh.New(256, 2, func(ctx context.Context, j refresh.Job) {
			listing, err := httpv1.FetchDetail(ctx, client, j.ListingKey)
			if err != nil || listing == nil {
				slog.Debug("background listing refresh failed", "listingKey", j.ListingKey, "error", err)
				return
			}
			httpv1.CacheDetail(ctx, rdb, j.ListingKey, *listing, detail.CacheTTL, detail.StaleAfter)
		})
		detail.Refetch = func(listingKey string) {
			refresher.Enqueue(refresh.Job{ListingKey: listingKey})
		}
	}

	router := BuildRouter(httpapi.ListingsDeps{Client: client, Archive: arch, Warm: warm}, detail)

	slog.Info("listings-gateway listening", "port", port)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), logger.Middleware(router)); err != nil {
		log.Fatal(err)
	}
}
