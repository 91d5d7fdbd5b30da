package events

import (
	"context"
)

type ListingArchived struct {
	ListingID  string
	ListingKey string
}

type Publisher interface {
	PublishListingArchived(ctx context.Context, evt ListingArchived)
	SubscribeListingArchived() <-chan ListingArchived
}

type inMemory struct{ ch chan ListingArchived }

func NewInMemory(buffer int) Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &inMemory{ch: make(chan ListingArchived, buffer)}
}

func (m *inMemory) PublishListingArchived(_ context.Context, evt ListingArchived) {
	select {
	case m.ch <- evt:
	default:
	}
}

func (m *inMemory) SubscribeListingArchived() <-chan ListingArchived { return m.ch }
