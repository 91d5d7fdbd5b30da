package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	httpapi "github.com/yourorg/listings-gateway/http"
	httpv1 "github.com/yourorg/listings-gateway/http/v1"
)

func BuildRouter(listings httpapi.ListingsDeps, detail httpv1.DetailDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(httprate.LimitByIP(100, 1*time.Minute)) // protect upstream quota
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"ok":true}`)) })

	httpapi.RegisterListings(r, listings)

	// v1 single-listing endpoint with Redis + SWR
	httpv1.RegisterDetail(r, detail)

	return r
}
