package search

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/realty-bot/internal/metrics"
	"github.com/xaenox/realty-bot/internal/models"
	"github.com/xaenox/realty-bot/internal/paginator"
	"github.com/xaenox/realty-bot/internal/sqlgen"
	"github.com/xaenox/realty-bot/internal/storage"
)

// ErrEmptyResultSet means the query ran and matched nothing.
var ErrEmptyResultSet = errors.New("no listings found")

// QueryBuilder turns free text into an executable query.
type QueryBuilder interface {
	Build(ctx context.Context, text, city string) (models.GeneratedQuery, error)
}

// Service runs one search: build the query, execute it, cache the rows and
// return the first window.
type Service struct {
	builder   QueryBuilder
	executor  storage.Executor
	paginator *paginator.Paginator
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewService(builder QueryBuilder, executor storage.Executor, p *paginator.Paginator, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		builder:   builder,
		executor:  executor,
		paginator: p,
		metrics:   m,
		logger:    logger,
	}
}

// Search returns a query-build error, a *storage.ExecutionError,
// ErrEmptyResultSet, or the first page.
func (s *Service) Search(ctx context.Context, userID int64, text, city string) (paginator.Page, error) {
	logger := s.logger.With(
		zap.String("search_id", uuid.New().String()),
		zap.Int64("chat_id", userID))

	query, err := s.builder.Build(ctx, text, city)
	if err != nil {
		logger.Warn("Failed to build query",
			zap.Error(err),
			zap.String("reason", sqlgen.Reason(err)),
			zap.String("text", text))
		s.metrics.ObserveBuildFailure(sqlgen.Reason(err))
		s.metrics.ObserveSearch("build_failed")
		return paginator.Page{}, err
	}

	listings, err := s.executor.Execute(ctx, query.SQL)
	if err != nil {
		logger.Error("Failed to execute query", zap.Error(err), zap.String("sql", query.SQL))
		s.metrics.ObserveSearch("execution_failed")
		return paginator.Page{}, err
	}
	if len(listings) == 0 {
		logger.Info("Search matched nothing", zap.String("sql", query.SQL))
		s.metrics.ObserveSearch("empty")
		return paginator.Page{}, ErrEmptyResultSet
	}

	page, err := s.paginator.Start(ctx, userID, listings)
	if err != nil {
		return paginator.Page{}, err
	}

	logger.Info("Search completed", zap.String("sql", query.SQL), zap.Int("rows", len(listings)))
	s.metrics.ObserveSearch("ok")
	return page, nil
}

// More serves the window at offset of the chat's latest result set.
func (s *Service) More(ctx context.Context, userID int64, offset int) (paginator.Page, bool, error) {
	return s.paginator.Next(ctx, userID, offset)
}
