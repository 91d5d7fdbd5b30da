package warmcache

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yourorg/listings-gateway/proptx"
)

func listingWithImages(key string) proptx.Listing {
	var l proptx.Listing
	_ = json.Unmarshal([]byte(`{"ListingKey":"`+key+`"}`), &l)
	l.Images = []proptx.Image{{URL: "https://cdn/" + key + ".jpg", Order: 1}}
	l.MediaChangeTimestamp = "2026-01-01T00:00:00Z"
	return l
}

func TestSendPostsBatch(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/batch-process" {
			t.Errorf("path = %q", r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		received <- b
	}))
	defer srv.Close()

	var noImages proptx.Listing
	trigger := New(srv.URL)
	trigger.Send([]proptx.Listing{listingWithImages("X1"), noImages})

	select {
	case raw := <-received:
		var body struct {
			Properties []struct {
				ListingKey           string         `json:"ListingKey"`
				Images               []proptx.Image `json:"images"`
				MediaChangeTimestamp string         `json:"MediaChangeTimestamp"`
			} `json:"properties"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.Properties) != 1 {
			t.Fatalf("got %d properties, want only the one with images", len(body.Properties))
		}
		p := body.Properties[0]
		if p.ListingKey != "X1" || len(p.Images) != 1 || p.MediaChangeTimestamp == "" {
			t.Fatalf("payload entry = %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warm request never arrived")
	}
}

func TestSendSkipsEmptyBatches(t *testing.T) {
	called := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called <- struct{}{}
	}))
	defer srv.Close()

	var noImages proptx.Listing
	trigger := New(srv.URL)
	trigger.Send([]proptx.Listing{noImages})

	select {
	case <-called:
		t.Fatal("no request should be sent when nothing has images")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSendNoEndpointIsNoOp(t *testing.T) {
	trigger := New("")
	// must not panic or block
	trigger.Send([]proptx.Listing{listingWithImages("X1")})

	var nilTrigger *Trigger
	nilTrigger.Send([]proptx.Listing{listingWithImages("X1")})
}
