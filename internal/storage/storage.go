package storage

import (
	"context"

	"github.com/xaenox/realty-bot/internal/models"
)

// SessionStore keeps conversation state per chat.
type SessionStore interface {
	// GetSession returns the stored session or a fresh Idle one.
	GetSession(ctx context.Context, userID int64) (models.Session, error)
	SaveSession(ctx context.Context, session models.Session) error
}

// ResultStore keeps the latest result set per chat. SaveResults replaces
// whatever was stored before.
type ResultStore interface {
	SaveResults(ctx context.Context, userID int64, page models.ResultPage) error
	GetResults(ctx context.Context, userID int64) (models.ResultPage, bool, error)
}

// Executor runs a validated query against the listings store.
type Executor interface {
	Execute(ctx context.Context, query string) ([]models.ListingRecord, error)
}
