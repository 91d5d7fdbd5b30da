package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/listings-gateway/internal/archive"
	"github.com/yourorg/listings-gateway/proptx"
)

// archivePage writes the served page behind the response on a
// detached goroutine. Failures are logged and go nowhere else.
func archivePage(a *archive.Archive, listings []proptx.Listing) {
	if !a.Enabled() || len(listings) == 0 {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("listing archive panic", "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.WritePage(ctx, "Property", listings); err != nil {
			slog.Warn("listing archive failed", "listings", len(listings), "error", err)
		}
	}()
}
