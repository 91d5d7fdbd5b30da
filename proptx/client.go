package proptx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// Per-fetch deadlines for the enrichment lookups. The office timeout
// is intentionally tighter than the media one; logos are cosmetic.
const (
	MediaFetchTimeout = 5 * time.Second
	LogoFetchTimeout  = 1500 * time.Millisecond
)

type Client struct {
	token   string
	baseURL string
	http    *retryablehttp.Client
	limiter *rate.Limiter
}

func NewClient(baseURL, token string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 0 // a failed fetch is terminal for its item; never retried
	rc.Logger = nil
	rc.HTTPClient.Timeout = 10 * time.Second

	if baseURL == "" {
		baseURL = "https://query.ampre.ca/odata"
	}
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    rc,
		// Burst must cover the worst-case per-page fan-out (page +
		// count + up to 100 media + up to 100 logo requests) so the
		// limiter never queues enrichment fetches into their own
		// deadlines; the sustained rate still protects upstream quota.
		limiter: rate.NewLimiter(rate.Limit(25), 256),
	}
}

// HasToken reports whether a bearer token was configured. Callers
// must short-circuit to the degraded response before attempting any
// upstream call when this is false.
func (c *Client) HasToken() bool { return c.token != "" }

type PageQuery struct {
	Skip    int
	Top     int
	OrderBy string
	Filter  string
}

// FetchPage issues the primary paginated listing query.
func (c *Client) FetchPage(ctx context.Context, pq PageQuery) ([]Listing, error) {
	q := url.Values{}
	q.Set("$skip", strconv.Itoa(pq.Skip))
	q.Set("$top", strconv.Itoa(pq.Top))
	if pq.OrderBy != "" {
		q.Set("$orderby", pq.OrderBy)
	}
	if pq.Filter != "" {
		q.Set("$filter", pq.Filter)
	}
	raw, err := c.get(ctx, "/Property", q)
	if err != nil {
		return nil, err
	}
	page, err := decodePropertyPage(raw)
	if err != nil {
		return nil, fmt.Errorf("decode property page: %w", err)
	}
	return page.Value, nil
}

// Count issues the count-only probe for pagination metadata.
func (c *Client) Count(ctx context.Context, filter string) (int64, error) {
	q := url.Values{}
	q.Set("$count", "true")
	q.Set("$top", "0")
	if filter != "" {
		q.Set("$filter", filter)
	}
	raw, err := c.get(ctx, "/Property", q)
	if err != nil {
		return 0, err
	}
	page, err := decodePropertyPage(raw)
	if err != nil {
		return 0, fmt.Errorf("decode count probe: %w", err)
	}
	if page.Count == nil {
		return 0, errors.New("count probe response missing @odata.count")
	}
	return *page.Count, nil
}

// ListingMedia fetches up to three Large photos for one listing,
// ordered by display order.
func (c *Client) ListingMedia(ctx context.Context, listingKey string) ([]Image, error) {
	q := url.Values{}
	q.Set("$filter", fmt.Sprintf(
		"ResourceRecordKey eq '%s' and ResourceName eq 'Property' and ImageSizeDescription eq 'Large'",
		escapeValue(listingKey)))
	q.Set("$orderby", "Order")
	q.Set("$top", strconv.Itoa(maxListingImages))
	raw, err := c.get(ctx, "/Media", q)
	if err != nil {
		return nil, err
	}
	page, err := decodeMediaPage(raw)
	if err != nil {
		return nil, fmt.Errorf("decode media page: %w", err)
	}
	return imagesFromMedia(page.Value), nil
}

// OfficeLogo fetches the single Large logo for one office. An office
// with no media yields "" without error.
func (c *Client) OfficeLogo(ctx context.Context, officeKey string) (string, error) {
	q := url.Values{}
	q.Set("$filter", fmt.Sprintf(
		"ResourceRecordKey eq '%s' and ResourceName eq 'Office' and ImageSizeDescription eq 'Large'",
		escapeValue(officeKey)))
	q.Set("$top", "1")
	raw, err := c.get(ctx, "/Media", q)
	if err != nil {
		return "", err
	}
	page, err := decodeMediaPage(raw)
	if err != nil {
		return "", fmt.Errorf("decode office media: %w", err)
	}
	if len(page.Value) == 0 {
		return "", nil
	}
	return page.Value[0].MediaURL, nil
}

// FetchByKey looks up a single listing. Returns nil when the key does
// not match an active record.
func (c *Client) FetchByKey(ctx context.Context, listingKey string) (*Listing, error) {
	filter := fmt.Sprintf("ListingKey eq '%s'", escapeValue(listingKey))
	listings, err := c.FetchPage(ctx, PageQuery{Top: 1, Filter: filter})
	if err != nil {
		return nil, err
	}
	if len(listings) == 0 {
		return nil, nil
	}
	return &listings[0], nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s%s?%s", c.baseURL, path, q.Encode())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("proptx error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return ioReadAllLimit(resp.Body, 8<<20) // 8MB guard
}

func ioReadAllLimit(r io.Reader, limit int64) ([]byte, error) {
	lr := io.LimitReader(r, limit+1)
	b, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errors.New("payload too large")
	}
	return b, nil
}
