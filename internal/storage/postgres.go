package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/xaenox/realty-bot/internal/models"
)

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	QueryTimeout time.Duration
}

// ExecutionError is a failure reported by the listings store. Its message is
// shown to the user.
type ExecutionError struct {
	Query string
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("ошибка выполнения SQL: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// PostgresStorage executes generated queries in read-only transactions.
type PostgresStorage struct {
	db           *sqlx.DB
	queryTimeout time.Duration
	logger       *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test the connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	return NewPostgresStorageWithDB(db, config.QueryTimeout, logger), nil
}

func NewPostgresStorageWithDB(db *sqlx.DB, queryTimeout time.Duration, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{db: db, queryTimeout: queryTimeout, logger: logger}
}

func (s *PostgresStorage) Execute(ctx context.Context, query string) ([]models.ListingRecord, error) {
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, &ExecutionError{Query: query, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	var listings []models.ListingRecord
	if err := tx.SelectContext(ctx, &listings, query); err != nil {
		s.logger.Error("Failed to execute query", zap.Error(err), zap.String("sql", query))
		return nil, &ExecutionError{Query: query, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &ExecutionError{Query: query, Err: err}
	}

	return listings, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
