package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/yourorg/listings-gateway/proptx"
)

type BulkConfig struct {
	PostalPrefixes       []string
	PropertyTypes        []string
	TransactionType      string
	PageSize             int
	MaxPagesPerArea      int
	Interval             time.Duration
	PauseBetweenRequests time.Duration
	RequestTimeout       time.Duration
	FetchMedia           bool
	OrderBy              string
	MinPrice             string
	MaxPrice             string
}

// BulkJob walks the upstream Property resource area by area and
// archives everything it finds. It runs standalone (cmd/archiver),
// never inside the request path.
type BulkJob struct {
	Client  *proptx.Client
	Archive *Archive
	Config  BulkConfig
}

func (j *BulkJob) validate() error {
	if j == nil {
		return errors.New("nil bulk job")
	}
	if j.Client == nil {
		return errors.New("archiver bulk job missing client")
	}
	if j.Archive == nil || j.Archive.Store == nil {
		return errors.New("archiver bulk job requires archive with store")
	}
	if len(j.Config.PostalPrefixes) == 0 {
		return errors.New("archiver bulk job requires at least one postal prefix")
	}
	return nil
}

func (j *BulkJob) Run(ctx context.Context) error {
	if err := j.validate(); err != nil {
		return err
	}
	interval := j.Config.Interval
	if interval <= 0 {
		return j.RunOnce(ctx)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("archiver bulk job starting", "interval", interval, "areas", len(j.Config.PostalPrefixes))
	if err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("archiver bulk job initial run error", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("archiver bulk job stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("archiver bulk job iteration error", "error", err)
			}
		}
	}
}

func (j *BulkJob) RunOnce(ctx context.Context) error {
	if err := j.validate(); err != nil {
		return err
	}
	propTypes := j.Config.PropertyTypes
	if len(propTypes) == 0 {
		propTypes = []string{""}
	}
	var joined error
	for _, rawPrefix := range j.Config.PostalPrefixes {
		prefix := strings.TrimSpace(rawPrefix)
		if prefix == "" {
			continue
		}
		for _, propType := range propTypes {
			if err := j.ingestArea(ctx, prefix, propType); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				joined = errors.Join(joined, err)
			}
		}
	}
	return joined
}

func (j *BulkJob) ingestArea(ctx context.Context, postalPrefix, propertyType string) error {
	pageSize := j.Config.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	maxPages := j.Config.MaxPagesPerArea
	if maxPages <= 0 {
		maxPages = 5
	}
	timeout := j.Config.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pause := j.Config.PauseBetweenRequests

	filter := j.areaFilter(postalPrefix, propertyType)
	orderBy := j.Config.OrderBy
	if orderBy == "" {
		orderBy = "ModificationTimestamp desc,ListingKey desc"
	}

	archived := 0
	for page := 1; page <= maxPages; page++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		listings, err := j.Client.FetchPage(reqCtx, proptx.PageQuery{
			Skip:    (page - 1) * pageSize,
			Top:     pageSize,
			OrderBy: orderBy,
			Filter:  filter,
		})
		cancel()
		if err != nil {
			return fmt.Errorf("area %s page %d fetch: %w", postalPrefix, page, err)
		}
		if len(listings) == 0 {
			if page == 1 {
				slog.Info("archiver bulk job area returned 0 listings", "area", postalPrefix)
			}
			break
		}
		if j.Config.FetchMedia {
			j.attachMedia(ctx, listings)
		}
		if err := j.Archive.WritePage(ctx, "Property", listings); err != nil {
			slog.Warn("archiver bulk job archive error", "area", postalPrefix, "page", page, "error", err)
		} else {
			archived += len(listings)
		}
		if len(listings) < pageSize {
			break
		}
		if pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pause):
			}
		}
	}
	if archived > 0 {
		slog.Info("archiver bulk job area done", "area", postalPrefix, "propertyType", propertyType, "archived", archived)
	}
	return nil
}

// areaFilter reuses the gateway's filter translator so the archiver
// and the live search see the same upstream slice.
func (j *BulkJob) areaFilter(postalPrefix, propertyType string) string {
	params := url.Values{}
	params.Set("postalCode", postalPrefix)
	if propertyType != "" {
		params.Set("PropertyType", propertyType)
	}
	if j.Config.TransactionType != "" {
		params.Set("TransactionType", j.Config.TransactionType)
	}
	if j.Config.MinPrice != "" {
		params.Set("minPrice", j.Config.MinPrice)
	}
	if j.Config.MaxPrice != "" {
		params.Set("maxPrice", j.Config.MaxPrice)
	}
	clauses, _ := proptx.TranslateFilters(params)
	return proptx.JoinFilter(clauses)
}

func (j *BulkJob) attachMedia(ctx context.Context, listings []proptx.Listing) {
	for i := range listings {
		key := listings[i].ListingKey.String()
		if key == "" {
			continue
		}
		fetchCtx, cancel := context.WithTimeout(ctx, proptx.MediaFetchTimeout)
		imgs, err := j.Client.ListingMedia(fetchCtx, key)
		cancel()
		if err != nil {
			slog.Debug("archiver media fetch failed", "listingKey", key, "error", err)
			continue
		}
		listings[i].Images = imgs
	}
}
