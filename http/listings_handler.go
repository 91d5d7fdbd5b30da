package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/yourorg/listings-gateway/internal/aggregate"
	"github.com/yourorg/listings-gateway/internal/archive"
	"github.com/yourorg/listings-gateway/internal/warmcache"
	"github.com/yourorg/listings-gateway/proptx"
)

type ListingsDeps struct {
	Client  *proptx.Client
	Archive *archive.Archive
	Warm    *warmcache.Trigger
}

// degradedLimit is echoed in the credentials-missing response. The
// shape of that response intentionally differs from the normal one
// and must stay that way.
const degradedLimit = 10000

func RegisterListings(r chi.Router, d ListingsDeps) {
	r.Get("/listings", func(w http.ResponseWriter, req *http.Request) {
		handleListings(w, req, d)
	})
}

func handleListings(w http.ResponseWriter, req *http.Request, d ListingsDeps) {
	if d.Client == nil || !d.Client.HasToken() {
		slog.Warn("listing provider token missing; serving degraded empty result")
		render.JSON(w, req, map[string]any{
			"properties": []any{},
			"totalCount": 0,
			"page":       1,
			"limit":      degradedLimit,
			"message":    "Listing provider credentials are not configured",
		})
		return
	}

	params := req.URL.Query()
	page := intParam(params.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	limit := intParam(params.Get("limit"), aggregate.DefaultPageSize)
	if limit < 1 {
		limit = aggregate.DefaultPageSize
	}
	sortBy := params.Get("sortBy")
	if sortBy == "" {
		sortBy = aggregate.DefaultOrderBy
	}

	clauses, echo := proptx.TranslateFilters(params)
	echo.SortBy = sortBy

	agg := &aggregate.Aggregator{Client: d.Client}
	result, err := agg.Search(req.Context(), aggregate.Query{
		Page:     page,
		PageSize: limit,
		OrderBy:  sortBy,
		Filter:   proptx.JoinFilter(clauses),
	})
	if err != nil {
		slog.Error("listing search failed", "error", err)
		render.Status(req, http.StatusInternalServerError)
		render.JSON(w, req, map[string]any{
			"error":   "Failed to fetch listings",
			"details": err.Error(),
		})
		return
	}

	render.JSON(w, req, map[string]any{
		"listings":   result.Listings,
		"pagination": result.Pagination,
		"filters":    echo,
	})

	// Side channels: neither blocks nor fails the response.
	d.Warm.Send(result.Listings)
	archivePage(d.Archive, result.Listings)
}

func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
