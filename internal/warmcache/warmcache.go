// Package warmcache fires best-effort batch-process calls at the
// image-processing service after a page has been served. The request
// path never waits on it and never sees its failures.
package warmcache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yourorg/listings-gateway/proptx"
)

type Trigger struct {
	endpoint string
	http     *http.Client
}

// New returns a trigger posting to {endpoint}/batch-process. An empty
// endpoint disables warming; Send becomes a no-op.
func New(endpoint string) *Trigger {
	return &Trigger{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

type entry struct {
	ListingKey           string         `json:"ListingKey"`
	Images               []proptx.Image `json:"images"`
	MediaChangeTimestamp string         `json:"MediaChangeTimestamp"`
}

// Send enqueues a fire-and-forget warm request for every listing that
// has images. It returns immediately; the POST happens on a detached
// goroutine with its own error boundary so a panic or failure there
// can never reach the response path.
func (t *Trigger) Send(listings []proptx.Listing) {
	if t == nil || t.endpoint == "" {
		return
	}
	batch := make([]entry, 0, len(listings))
	for i := range listings {
		if len(listings[i].Images) == 0 {
			continue
		}
		batch = append(batch, entry{
			ListingKey:           listings[i].ListingKey.String(),
			Images:               listings[i].Images,
			MediaChangeTimestamp: listings[i].MediaChangeTimestamp,
		})
	}
	if len(batch) == 0 {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("image warm trigger panic", "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := t.post(ctx, batch); err != nil {
			slog.Warn("image warm trigger failed", "listings", len(batch), "error", err)
		}
	}()
}

func (t *Trigger) post(ctx context.Context, batch []entry) error {
	payload, err := json.Marshal(map[string]any{"properties": batch})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"/batch-process", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("image service status %d", resp.StatusCode)
	}
	return nil
}
