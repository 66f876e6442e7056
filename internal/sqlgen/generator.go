package sqlgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/xaenox/realty-bot/internal/llm"
	"github.com/xaenox/realty-bot/internal/schema"
)

type GeneratorConfig struct {
	MaxTokens   int
	Temperature float64
}

// Generator asks the completion service for a raw select statement.
type Generator struct {
	completer   llm.Completer
	schema      *schema.Descriptor
	shape       Shape
	maxTokens   int
	temperature float64
}

func NewGenerator(completer llm.Completer, d *schema.Descriptor, shape Shape, cfg GeneratorConfig) *Generator {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 150
	}
	return &Generator{
		completer:   completer,
		schema:      d,
		shape:       shape,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

// Prompt builds the generation prompt for an already lower-cased user query.
func (g *Generator) Prompt(userQuery string) string {
	projection := "SELECT " + strings.Join(g.schema.Projection(), ", ")
	limit := fmt.Sprintf("LIMIT %d;", g.shape.RowLimit)
	table := g.schema.Table()

	return fmt.Sprintf(`Тебе нужно составить sql запрос к таблице на основе запроса пользователя,
table schema:
%s
Примеры:
user_query: Ищу квартиру около метро Маяковская с площадью не менее 80 квадратных метров
expected_sql: %s FROM %s WHERE deal_type = 'sale' AND rooms_count = 2 AND underground = 'Маяковская' AND total_meters >= 80 ORDER BY price ASC %s
user_query: Хочу квартиру рядом с метро Филатов луг не дороже 14000000
expected_sql: %s FROM %s WHERE deal_type = 'sale' AND underground = 'Филатов луг' AND price <= 14000000 ORDER BY price ASC %s

Сгенерируй только SQL-запрос для таблицы %s без дополнительных символов или пояснений.
Запрос обязательно должен начинаться с
%s
и заканчиваться "%s"
Не используй поля %s для фильтрации.
Запрос должен отвечать на вопрос: %s
SQL:
`,
		g.schema.DDL(),
		projection, table, limit,
		projection, table, limit,
		table,
		projection,
		limit,
		strings.Join(g.schema.Excluded(), ", "),
		userQuery,
	)
}

// Generate returns the first candidate completion for the user query.
func (g *Generator) Generate(ctx context.Context, userQuery string) (string, error) {
	candidates, err := g.completer.Complete(ctx, llm.Request{
		Prompt:      g.Prompt(userQuery),
		MaxTokens:   g.maxTokens,
		Stop:        []string{";"},
		Temperature: g.temperature,
		N:           1,
	})
	if err != nil {
		return "", fmt.Errorf("generate sql: %w", err)
	}
	if len(candidates) == 0 || strings.TrimSpace(candidates[0]) == "" {
		return "", ErrEmptyCompletion
	}
	return candidates[0], nil
}
