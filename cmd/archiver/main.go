package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/yourorg/listings-gateway/internal/archive"
	"github.com/yourorg/listings-gateway/internal/env"
	"github.com/yourorg/listings-gateway/internal/events"
	"github.com/yourorg/listings-gateway/internal/logger"
	"github.com/yourorg/listings-gateway/internal/search"
	"github.com/yourorg/listings-gateway/internal/store"
	"github.com/yourorg/listings-gateway/proptx"
)

func main() {
	_ = godotenv.Load()
	logger.Setup()

	token := env.Must("PROPTX_TOKEN")
	dsn := env.Must("PG_DSN")

	prefixes := splitList(os.Getenv("ARCHIVER_POSTAL_PREFIXES"))
	if len(prefixes) == 0 {
		log.Fatal("ARCHIVER_POSTAL_PREFIXES must be provided")
	}

	interval := parseDuration(os.Getenv("ARCHIVER_INTERVAL"), 6*time.Hour)
	pageSize := parseInt(os.Getenv("ARCHIVER_PAGE_SIZE"), 50)
	maxPages := parseInt(os.Getenv("ARCHIVER_MAX_PAGES"), 5)
	pause := parseDuration(os.Getenv("ARCHIVER_PAUSE"), 1500*time.Millisecond)
	requestTimeout := parseDuration(os.Getenv("ARCHIVER_REQUEST_TIMEOUT"), 12*time.Second)
	fetchMedia := parseBool(os.Getenv("ARCHIVER_FETCH_MEDIA"), false)
	runOnce := parseBool(os.Getenv("ARCHIVER_RUN_ONCE"), false)

	propertyTypes := splitList(os.Getenv("ARCHIVER_PROPERTY_TYPES"))
	orderBy := os.Getenv("ARCHIVER_ORDER_BY")
	transactionType := env.Get("ARCHIVER_TRANSACTION_TYPE", "For Sale")
	minPrice := os.Getenv("ARCHIVER_MIN_PRICE")
	maxPrice := os.Getenv("ARCHIVER_MAX_PRICE")

	client := proptx.NewClient(env.Get("PROPTX_BASE_URL", ""), token)

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
	arch := &archive.Archive{Store: st, Pub: pub}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go (&search.Indexer{Pub: pub}).Run(rootCtx)

	job := &archive.BulkJob{
		Client:  client,
		Archive: arch,
		Config: archive.BulkConfig{
			PostalPrefixes:       prefixes,
			PropertyTypes:        propertyTypes,
			TransactionType:      transactionType,
			PageSize:             pageSize,
			MaxPagesPerArea:      maxPages,
			Interval:             interval,
			PauseBetweenRequests: pause,
			RequestTimeout:       requestTimeout,
			FetchMedia:           fetchMedia,
			OrderBy:              orderBy,
			MinPrice:             minPrice,
			MaxPrice:             maxPrice,
		},
	}

	if runOnce {
		if err := job.RunOnce(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("archiver bulk run failed: %v", err)
		}
		return
	}

	if err := job.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("archiver job stopped with error: %v", err)
	}
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	fields := strings.FieldsFunc(v, func(r rune) bool {
		switch r {
		case ',', ';', '\n', '\r', '\t':
			return true
		default:
			return false
		}
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func parseDuration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	dur, err := time.ParseDuration(v)
	if err == nil {
		return dur
	}
	if i, err2 := strconv.Atoi(v); err2 == nil {
		return time.Duration(i) * time.Second
	}
	return def
}

func parseInt(v string, def int) int {
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func parseBool(v string, def bool) bool {
	if v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
