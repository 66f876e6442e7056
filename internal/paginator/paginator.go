package paginator

import (
	"context"
	"fmt"

	"github.com/xaenox/realty-bot/internal/models"
	"github.com/xaenox/realty-bot/internal/storage"
)

const DefaultPageSize = 5

// Resume asks Next to continue from the stored cursor.
const Resume = -1

// Page is one window of a cached result set. NextOffset is only meaningful
// when HasMore is set.
type Page struct {
	Listings   []models.ListingRecord
	NextOffset int
	HasMore    bool
}

type Paginator struct {
	store storage.ResultStore
	size  int
}

func New(store storage.ResultStore, size int) *Paginator {
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Paginator{store: store, size: size}
}

// Start stores listings for the chat, replacing any previous result set, and
// returns the first window.
func (p *Paginator) Start(ctx context.Context, userID int64, listings []models.ListingRecord) (Page, error) {
	page := p.window(listings, 0)
	if err := p.store.SaveResults(ctx, userID, models.ResultPage{Listings: listings, Offset: len(page.Listings)}); err != nil {
		return Page{}, fmt.Errorf("save results: %w", err)
	}
	return page, nil
}

// Next serves the window starting at offset, or at the stored cursor when
// offset is Resume. found is false when nothing is stored for the chat.
func (p *Paginator) Next(ctx context.Context, userID int64, offset int) (page Page, found bool, err error) {
	stored, ok, err := p.store.GetResults(ctx, userID)
	if err != nil {
		return Page{}, false, fmt.Errorf("get results: %w", err)
	}
	if !ok {
		return Page{}, false, nil
	}

	if offset == Resume {
		offset = stored.Offset
	}
	page = p.window(stored.Listings, offset)
	stored.Offset = offset + len(page.Listings)
	if err := p.store.SaveResults(ctx, userID, stored); err != nil {
		return Page{}, false, fmt.Errorf("save results: %w", err)
	}
	return page, true, nil
}

func (p *Paginator) window(listings []models.ListingRecord, offset int) Page {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(listings) {
		return Page{}
	}
	end := min(offset+p.size, len(listings))
	return Page{
		Listings:   listings[offset:end],
		NextOffset: end,
		HasMore:    end < len(listings),
	}
}
