package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/yourorg/listings-gateway/proptx"
)

type fakeClient struct {
	mu        sync.Mutex
	pageQuery proptx.PageQuery
	page      []proptx.Listing
	pageErr   error
	count     int64
	countErr  error

	media      func(key string) ([]proptx.Image, error)
	logo       func(key string) (string, error)
	mediaCalls int64
	logoCalls  int64
}

func (f *fakeClient) FetchPage(_ context.Context, pq proptx.PageQuery) ([]proptx.Listing, error) {
	f.mu.Lock()
	f.pageQuery = pq
	f.mu.Unlock()
	return f.page, f.pageErr
}

func (f *fakeClient) Count(_ context.Context, _ string) (int64, error) {
	return f.count, f.countErr
}

func (f *fakeClient) ListingMedia(_ context.Context, key string) ([]proptx.Image, error) {
	atomic.AddInt64(&f.mediaCalls, 1)
	if f.media != nil {
		return f.media(key)
	}
	return nil, nil
}

func (f *fakeClient) OfficeLogo(_ context.Context, key string) (string, error) {
	atomic.AddInt64(&f.logoCalls, 1)
	if f.logo != nil {
		return f.logo(key)
	}
	return "", nil
}

func listing(key, office string, price float64) proptx.Listing {
	var l proptx.Listing
	raw := fmt.Sprintf(`{"ListingKey":%q,"ListOfficeKey":%q,"ListPrice":%g,"UnparsedAddress":"%s Main St"}`, key, office, price, key)
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		panic(err)
	}
	return l
}

func TestSearchSkipComputation(t *testing.T) {
	f := &fakeClient{count: 0}
	a := &Aggregator{Client: f}
	if _, err := a.Search(context.Background(), Query{Page: 2, PageSize: 50}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if f.pageQuery.Skip != 50 || f.pageQuery.Top != 50 {
		t.Fatalf("skip/top = %d/%d, want 50/50", f.pageQuery.Skip, f.pageQuery.Top)
	}
}

func TestSearchDefaults(t *testing.T) {
	f := &fakeClient{}
	a := &Aggregator{Client: f}
	if _, err := a.Search(context.Background(), Query{}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if f.pageQuery.Skip != 0 || f.pageQuery.Top != DefaultPageSize {
		t.Fatalf("skip/top = %d/%d", f.pageQuery.Skip, f.pageQuery.Top)
	}
	if f.pageQuery.OrderBy != DefaultOrderBy {
		t.Fatalf("orderBy = %q", f.pageQuery.OrderBy)
	}
}

func TestSearchPrimaryFailureIsFatal(t *testing.T) {
	f := &fakeClient{pageErr: errors.New("proptx error 503: down")}
	a := &Aggregator{Client: f}
	if _, err := a.Search(context.Background(), Query{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSearchCountFailureIsFatal(t *testing.T) {
	f := &fakeClient{countErr: errors.New("probe failed")}
	a := &Aggregator{Client: f}
	if _, err := a.Search(context.Background(), Query{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSearchPagination(t *testing.T) {
	f := &fakeClient{page: []proptx.Listing{listing("A", "", 1)}, count: 101}
	a := &Aggregator{Client: f}
	res, err := a.Search(context.Background(), Query{Page: 2, PageSize: 50})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	p := res.Pagination
	if p.CurrentPage != 2 || p.TotalPages != 3 || p.TotalCount != 101 || p.ItemsPerPage != 50 {
		t.Fatalf("pagination = %+v", p)
	}
	if !p.HasMore {
		t.Fatal("page 2 of 3 must have more")
	}

	f.count = 100
	res, err = a.Search(context.Background(), Query{Page: 2, PageSize: 50})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Pagination.HasMore {
		t.Fatal("last page must not have more")
	}
}

func TestDedupLastWriteWins(t *testing.T) {
	f := &fakeClient{
		page: []proptx.Listing{
			listing("X1", "", 100),
			listing("Y2", "", 200),
			listing("X1", "", 300),
		},
		count: 3,
	}
	a := &Aggregator{Client: f}
	res, err := a.Search(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Listings) != 2 {
		t.Fatalf("got %d listings, want 2", len(res.Listings))
	}
	// the retained X1 is the later occurrence, kept at the first slot
	if res.Listings[0].ListingKey.String() != "X1" || res.Listings[0].ListPrice != 300 {
		t.Fatalf("listing[0] = key %s price %v, want X1/300",
			res.Listings[0].ListingKey, res.Listings[0].ListPrice)
	}
	if res.Listings[1].ListingKey.String() != "Y2" {
		t.Fatalf("listing[1] = %s", res.Listings[1].ListingKey)
	}
}

func TestMediaFailureIsolated(t *testing.T) {
	f := &fakeClient{
		page:  []proptx.Listing{listing("A", "", 1), listing("B", "", 2), listing("C", "", 3)},
		count: 3,
		media: func(key string) ([]proptx.Image, error) {
			if key == "B" {
				return nil, context.DeadlineExceeded
			}
			return []proptx.Image{{URL: "img-" + key, Order: 1}}, nil
		},
	}
	a := &Aggregator{Client: f}
	res, err := a.Search(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Listings[0].Images) != 1 || res.Listings[0].Images[0].URL != "img-A" {
		t.Fatalf("listing A images = %+v", res.Listings[0].Images)
	}
	if len(res.Listings[1].Images) != 0 {
		t.Fatalf("listing B should have empty images, got %+v", res.Listings[1].Images)
	}
	if res.Listings[1].Images == nil {
		t.Fatal("failed media must yield empty slice, not nil")
	}
	if len(res.Listings[2].Images) != 1 {
		t.Fatalf("listing C images = %+v", res.Listings[2].Images)
	}
}

func TestLogoFanOutSkippedOnLargePages(t *testing.T) {
	var page []proptx.Listing
	for i := 0; i < 150; i++ {
		page = append(page, listing(fmt.Sprintf("L%d", i), fmt.Sprintf("O%d", i), 1))
	}
	f := &fakeClient{page: page, count: 150}
	a := &Aggregator{Client: f}
	res, err := a.Search(context.Background(), Query{PageSize: 200})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if n := atomic.LoadInt64(&f.logoCalls); n != 0 {
		t.Fatalf("logo lookups attempted on oversized page: %d", n)
	}
	for i := range res.Listings {
		if res.Listings[i].OfficeLogo != nil {
			t.Fatalf("listing %d has a logo on an oversized page", i)
		}
	}
}

func TestLogoDistinctOffices(t *testing.T) {
	f := &fakeClient{
		page: []proptx.Listing{
			listing("A", "O1", 1),
			listing("B", "O1", 2),
			listing("C", "O2", 3),
			listing("D", "", 4),
		},
		count: 4,
		logo: func(key string) (string, error) {
			if key == "O2" {
				return "", errors.New("timeout")
			}
			return "logo-" + key, nil
		},
	}
	a := &Aggregator{Client: f}
	res, err := a.Search(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if n := atomic.LoadInt64(&f.logoCalls); n != 2 {
		t.Fatalf("logo lookups = %d, want 2 (distinct non-empty offices)", n)
	}
	for _, i := range []int{0, 1} {
		if res.Listings[i].OfficeLogo == nil || *res.Listings[i].OfficeLogo != "logo-O1" {
			t.Fatalf("listing %d logo = %v", i, res.Listings[i].OfficeLogo)
		}
	}
	// failed office and empty office stay nil
	if res.Listings[2].OfficeLogo != nil || res.Listings[3].OfficeLogo != nil {
		t.Fatal("failed/absent office lookups must yield nil logos")
	}
}

// A full page at the logo fan-out limit issues page + count + 100
// media + 100 logo requests. With a responsive upstream every one of
// them must land inside its own deadline; client-side throttling must
// never be the reason an image or logo goes missing.
func TestFullPageEnrichmentThroughClient(t *testing.T) {
	const pageSize = 100
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case strings.HasSuffix(r.URL.Path, "/Media"):
			if strings.Contains(q.Get("$filter"), "ResourceName eq 'Office'") {
				w.Write([]byte(`{"value":[{"MediaURL":"https://cdn/logo.png"}]}`))
				return
			}
			w.Write([]byte(`{"value":[{"MediaURL":"https://cdn/a.jpg","Order":1}]}`))
		case q.Get("$count") == "true":
			w.Write([]byte(`{"@odata.count":100,"value":[]}`))
		default:
			var b strings.Builder
			b.WriteString(`{"value":[`)
			for i := 0; i < pageSize; i++ {
				if i > 0 {
					b.WriteByte(',')
				}
				fmt.Fprintf(&b, `{"ListingKey":"L%d","ListOfficeKey":"O%d"}`, i, i)
			}
			b.WriteString(`]}`)
			w.Write([]byte(b.String()))
		}
	}))
	defer upstream.Close()

	a := &Aggregator{Client: proptx.NewClient(upstream.URL, "token")}
	res, err := a.Search(context.Background(), Query{PageSize: pageSize})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Listings) != pageSize {
		t.Fatalf("got %d listings, want %d", len(res.Listings), pageSize)
	}
	missingImages, missingLogos := 0, 0
	for i := range res.Listings {
		if len(res.Listings[i].Images) == 0 {
			missingImages++
		}
		if res.Listings[i].OfficeLogo == nil {
			missingLogos++
		}
	}
	if missingImages != 0 || missingLogos != 0 {
		t.Fatalf("%d/%d image sets and %d/%d logos missing with a responsive upstream",
			missingImages, pageSize, missingLogos, pageSize)
	}
}

func TestAddressAlias(t *testing.T) {
	f := &fakeClient{page: []proptx.Listing{listing("A", "", 1)}, count: 1}
	a := &Aggregator{Client: f}
	res, err := a.Search(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Listings[0].Address != res.Listings[0].UnparsedAddress || res.Listings[0].Address == "" {
		t.Fatalf("address alias = %q (unparsed %q)", res.Listings[0].Address, res.Listings[0].UnparsedAddress)
	}
}
