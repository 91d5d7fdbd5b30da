package proptx

import (
	"sort"
)

// maxListingImages caps how many photos are attached per listing.
const maxListingImages = 3

func imagesFromMedia(records []MediaRecord) []Image {
	out := make([]Image, 0, len(records))
	for _, rec := range records {
		if rec.MediaURL == "" {
			continue
		}
		out = append(out, Image{URL: rec.MediaURL, Order: rec.Order})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	if len(out) > maxListingImages {
		out = out[:maxListingImages]
	}
	return out
}
