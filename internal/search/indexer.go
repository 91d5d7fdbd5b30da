package search

import (
	"context"
	"log/slog"

	"github.com/yourorg/listings-gateway/internal/events"
)

// Indexer is a stub that consumes listing.archived events and logs
// them. Swap this with a real search-index client later.
type Indexer struct {
	Pub events.Publisher
}

func (i *Indexer) Run(ctx context.Context) {
	sub := i.Pub.SubscribeListingArchived()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-sub:
			slog.Info("indexer: listing.archived", "id", evt.ListingID, "listingKey", evt.ListingKey)
		}
	}
}
