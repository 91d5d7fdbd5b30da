// Package aggregate turns one normalized search query into a fully
// enriched page of listings: it joins the primary page and count
// queries, fans out per-listing media and per-office logo lookups,
// and assembles the deduplicated result.
package aggregate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/yourorg/listings-gateway/proptx"
)

const (
	DefaultPageSize = 50
	DefaultOrderBy  = "ModificationTimestamp desc,ListingKey desc"

	// Above this many listings on a page, office-logo fan-out is
	// skipped entirely and every officeLogo stays null.
	logoFanOutLimit = 100
)

// MLSClient is the slice of the upstream client the aggregator needs.
type MLSClient interface {
	FetchPage(ctx context.Context, pq proptx.PageQuery) ([]proptx.Listing, error)
	Count(ctx context.Context, filter string) (int64, error)
	ListingMedia(ctx context.Context, listingKey string) ([]proptx.Image, error)
	OfficeLogo(ctx context.Context, officeKey string) (string, error)
}

// Query is the normalized, validated form of one search request.
type Query struct {
	Page     int
	PageSize int
	OrderBy  string
	Filter   string
}

type Pagination struct {
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int   `json:"totalPages"`
	TotalCount   int64 `json:"totalCount"`
	ItemsPerPage int   `json:"itemsPerPage"`
	HasMore      bool  `json:"hasMore"`
}

type Result struct {
	Listings   []proptx.Listing
	Pagination Pagination
}

type Aggregator struct {
	Client MLSClient
}

// Search runs the full pipeline. A primary-query or count failure
// fails the whole search; every media/logo failure is absorbed into
// an empty slot for that one item.
func (a *Aggregator) Search(ctx context.Context, q Query) (*Result, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = DefaultOrderBy
	}
	skip := (page - 1) * pageSize

	var (
		listings []proptx.Listing
		total    int64
		listErr  error
		countErr error
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		listings, listErr = a.Client.FetchPage(ctx, proptx.PageQuery{
			Skip:    skip,
			Top:     pageSize,
			OrderBy: orderBy,
			Filter:  q.Filter,
		})
	}()
	go func() {
		defer wg.Done()
		total, countErr = a.Client.Count(ctx, q.Filter)
	}()
	wg.Wait()
	if listErr != nil {
		return nil, listErr
	}
	if countErr != nil {
		return nil, countErr
	}

	var (
		images [][]proptx.Image
		logos  map[string]string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		images = a.fetchMedia(ctx, listings)
	}()
	go func() {
		defer wg.Done()
		logos = a.fetchLogos(ctx, listings)
	}()
	wg.Wait()

	enriched := assemble(listings, images, logos)

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &Result{
		Listings: enriched,
		Pagination: Pagination{
			CurrentPage:  page,
			TotalPages:   totalPages,
			TotalCount:   total,
			ItemsPerPage: pageSize,
			HasMore:      page < totalPages,
		},
	}, nil
}

// fetchMedia issues one media lookup per listing concurrently. Each
// slot is written only by its own goroutine; results stay aligned to
// the listings slice by index. Failures leave an empty slice.
func (a *Aggregator) fetchMedia(ctx context.Context, listings []proptx.Listing) [][]proptx.Image {
	images := make([][]proptx.Image, len(listings))
	var wg sync.WaitGroup
	for i := range listings {
		key := listings[i].ListingKey.String()
		if key == "" {
			continue
		}
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, proptx.MediaFetchTimeout)
			defer cancel()
			imgs, err := a.Client.ListingMedia(fetchCtx, key)
			if err != nil {
				slog.Debug("media fetch failed", "listingKey", key, "error", err)
				return
			}
			images[i] = imgs
		}(i, key)
	}
	wg.Wait()
	return images
}

// fetchLogos looks up one logo per distinct office, skipped entirely
// on oversized pages to bound fan-out cost. Failures and timeouts
// simply leave that office without a logo.
func (a *Aggregator) fetchLogos(ctx context.Context, listings []proptx.Listing) map[string]string {
	logos := make(map[string]string)
	if len(listings) == 0 || len(listings) > logoFanOutLimit {
		return logos
	}
	seen := make(map[string]struct{})
	var keys []string
	for i := range listings {
		key := listings[i].ListOfficeKey.String()
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}

	results := make([]string, len(keys))
	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, proptx.LogoFetchTimeout)
			defer cancel()
			logo, err := a.Client.OfficeLogo(fetchCtx, key)
			if err != nil {
				slog.Debug("office logo fetch failed", "officeKey", key, "error", err)
				return
			}
			results[i] = logo
		}(i, key)
	}
	wg.Wait()

	for i, key := range keys {
		if results[i] != "" {
			logos[key] = results[i]
		}
	}
	return logos
}

// assemble attaches enrichment to each listing and deduplicates by
// ListingKey. A later occurrence of a key replaces the earlier entry
// in place (last-write-wins), it is never appended twice.
func assemble(listings []proptx.Listing, images [][]proptx.Image, logos map[string]string) []proptx.Listing {
	out := make([]proptx.Listing, 0, len(listings))
	index := make(map[string]int, len(listings))
	for i := range listings {
		l := listings[i]
		l.Images = images[i]
		if l.Images == nil {
			l.Images = []proptx.Image{}
		}
		if logo, ok := logos[l.ListOfficeKey.String()]; ok {
			l.OfficeLogo = &logo
		}
		l.Address = l.UnparsedAddress

		key := l.ListingKey.String()
		if j, ok := index[key]; ok && key != "" {
			out[j] = l
			continue
		}
		if key != "" {
			index[key] = len(out)
		}
		out = append(out, l)
	}
	return out
}
