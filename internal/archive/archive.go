// Package archive persists fetched pages to Postgres behind the
// response path. Archiving is optional; with no store configured
// every write is a no-op.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/yourorg/listings-gateway/internal/events"
	"github.com/yourorg/listings-gateway/internal/store"
	"github.com/yourorg/listings-gateway/proptx"
)

type Archive struct {
	Store *store.Store
	Pub   events.Publisher
}

func (a *Archive) Enabled() bool { return a != nil && a.Store != nil }

// WritePage archives a raw snapshot of the page plus one upserted row
// per listing, publishing listing.archived for each. Individual
// listing failures are joined but do not stop the rest of the page.
func (a *Archive) WritePage(ctx context.Context, endpoint string, listings []proptx.Listing) error {
	if !a.Enabled() || len(listings) == 0 {
		return nil
	}
	payload, err := json.Marshal(listings)
	if err != nil {
		return err
	}
	if err := a.Store.WriteSnapshot(ctx, endpoint, payload); err != nil {
		return err
	}
	var joined error
	for i := range listings {
		if err := a.writeListing(ctx, listings[i]); err != nil {
			joined = errors.Join(joined, err)
		}
	}
	return joined
}

func (a *Archive) writeListing(ctx context.Context, l proptx.Listing) error {
	key := l.ListingKey.String()
	if key == "" {
		return errors.New("listing without key")
	}
	urls := make([]string, 0, len(l.Images))
	for _, img := range l.Images {
		urls = append(urls, img.URL)
	}
	id, err := a.Store.UpsertListing(ctx, store.ListingInput{
		ListingKey:            key,
		Address:               l.UnparsedAddress,
		City:                  l.City,
		StateOrProvince:       l.StateOrProvince,
		PostalCode:            l.PostalCode,
		StandardStatus:        l.StandardStatus,
		TransactionType:       l.TransactionType,
		PropertyType:          l.PropertyType,
		PropertySubType:       l.PropertySubType,
		ListPrice:             nullFloat(l.ListPrice),
		BedroomsTotal:         nullInt(int64(l.BedroomsTotal)),
		BathroomsTotal:        nullInt(int64(l.BathroomsTotalInteger)),
		ListOfficeKey:         nullString(l.ListOfficeKey.String()),
		Lat:                   nullFloat(l.Latitude),
		Lon:                   nullFloat(l.Longitude),
		ModificationTimestamp: nullString(l.ModificationTimestamp),
		MediaChangeTimestamp:  nullString(l.MediaChangeTimestamp),
		MediaURLs:             urls,
	})
	if err != nil {
		return err
	}
	if a.Pub != nil {
		a.Pub.PublishListingArchived(ctx, events.ListingArchived{ListingID: id, ListingKey: key})
	}
	return nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if v == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullInt(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
