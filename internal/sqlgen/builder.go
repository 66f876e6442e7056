package sqlgen

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/realty-bot/internal/models"
)

// Builder turns free text into a query that is safe to execute:
// generate, sanitize with the trusted city, then validate.
// Any failure is returned whole; there are no retries.
type Builder struct {
	generator *Generator
	validator *Validator
	shape     Shape
	logger    *zap.Logger
}

func NewBuilder(generator *Generator, validator *Validator, shape Shape, logger *zap.Logger) *Builder {
	return &Builder{
		generator: generator,
		validator: validator,
		shape:     shape,
		logger:    logger,
	}
}

func (b *Builder) Build(ctx context.Context, text, city string) (models.GeneratedQuery, error) {
	userQuery := strings.ToLower(strings.TrimSpace(text))
	city = strings.ToLower(strings.TrimSpace(city))

	raw, err := b.generator.Generate(ctx, userQuery)
	if err != nil {
		return models.GeneratedQuery{}, err
	}

	query, err := Sanitize(raw, b.shape, city)
	if err != nil {
		b.logger.Warn("Failed to sanitize generated sql",
			zap.Error(err),
			zap.String("raw", raw))
		return models.GeneratedQuery{}, err
	}

	if err := b.validator.Validate(query, city); err != nil {
		b.logger.Warn("Generated sql rejected",
			zap.Error(err),
			zap.String("sql", query))
		return models.GeneratedQuery{}, err
	}

	b.logger.Info("Generated sql", zap.String("sql", query), zap.String("city", city))
	return models.GeneratedQuery{SQL: query, City: city}, nil
}
