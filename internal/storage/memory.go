package storage

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xaenox/realty-bot/internal/models"
)

// MemoryStorage holds sessions and result sets in process memory. Both maps are
// bounded by capacity and ttl; zero means unbounded for either.
type MemoryStorage struct {
	sessions *expirable.LRU[int64, models.Session]
	results  *expirable.LRU[int64, models.ResultPage]
}

func NewMemoryStorage(capacity int, ttl time.Duration) *MemoryStorage {
	return &MemoryStorage{
		sessions: expirable.NewLRU[int64, models.Session](capacity, nil, ttl),
		results:  expirable.NewLRU[int64, models.ResultPage](capacity, nil, ttl),
	}
}

func (s *MemoryStorage) GetSession(ctx context.Context, userID int64) (models.Session, error) {
	if session, ok := s.sessions.Get(userID); ok {
		return session, nil
	}
	return models.Session{
		UserID:     userID,
		State:      models.StateIdle,
		LastUsedAt: time.Now(),
	}, nil
}

func (s *MemoryStorage) SaveSession(ctx context.Context, session models.Session) error {
	session.LastUsedAt = time.Now()
	s.sessions.Add(session.UserID, session)
	return nil
}

func (s *MemoryStorage) SaveResults(ctx context.Context, userID int64, page models.ResultPage) error {
	page.Listings = append([]models.ListingRecord(nil), page.Listings...)
	s.results.Add(userID, page)
	return nil
}

func (s *MemoryStorage) GetResults(ctx context.Context, userID int64) (models.ResultPage, bool, error) {
	page, ok := s.results.Get(userID)
	return page, ok, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
