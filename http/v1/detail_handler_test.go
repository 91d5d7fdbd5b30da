package v1

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/yourorg/listings-gateway/proptx"
)

func newDetailGateway(t *testing.T, client *proptx.Client) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	RegisterDetail(r, DetailDeps{Client: client})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestDetailFresh(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/Media") {
			w.Write([]byte(`{"value":[{"MediaURL":"https://cdn/a.jpg","Order":1}]}`))
			return
		}
		if got := r.URL.Query().Get("$filter"); got != "ListingKey eq 'W1'" {
			t.Errorf("filter = %q", got)
		}
		w.Write([]byte(`{"value":[{"ListingKey":"W1","UnparsedAddress":"1 King St W"}]}`))
	}))
	defer upstream.Close()

	gw := newDetailGateway(t, proptx.NewClient(upstream.URL, "token"))
	resp, err := http.Get(gw.URL + "/v1/listings/W1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		OK      bool   `json:"ok"`
		Source  string `json:"source"`
		Listing struct {
			ListingKey string         `json:"ListingKey"`
			Address    string         `json:"address"`
			Images     []proptx.Image `json:"images"`
		} `json:"listing"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || body.Source != "fresh" {
		t.Fatalf("envelope = %+v", body)
	}
	if body.Listing.Address != "1 King St W" || len(body.Listing.Images) != 1 {
		t.Fatalf("listing = %+v", body.Listing)
	}
}

func TestDetailNotFound(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":[]}`))
	}))
	defer upstream.Close()

	gw := newDetailGateway(t, proptx.NewClient(upstream.URL, "token"))
	resp, err := http.Get(gw.URL + "/v1/listings/NOPE")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDetailProviderNotConfigured(t *testing.T) {
	gw := newDetailGateway(t, proptx.NewClient("http://unused", ""))
	resp, err := http.Get(gw.URL + "/v1/listings/W1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestDurOrDefault(t *testing.T) {
	if got := durOrDefault(0, time.Minute); got != time.Minute {
		t.Errorf("unset duration = %v, want the default", got)
	}
	if got := durOrDefault(2*time.Second, time.Minute); got != 2*time.Second {
		t.Errorf("set duration = %v, want it kept", got)
	}
}

func TestDetailMediaFailureTolerated(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/Media") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"value":[{"ListingKey":"W1","UnparsedAddress":"1 King St W"}]}`))
	}))
	defer upstream.Close()

	gw := newDetailGateway(t, proptx.NewClient(upstream.URL, "token"))
	resp, err := http.Get(gw.URL + "/v1/listings/W1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; media failure must not fail the lookup", resp.StatusCode)
	}
	var body struct {
		Listing struct {
			Images []proptx.Image `json:"images"`
		} `json:"listing"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Listing.Images == nil || len(body.Listing.Images) != 0 {
		t.Fatalf("images = %#v, want empty non-nil", body.Listing.Images)
	}
}
