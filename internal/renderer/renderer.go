package renderer

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/xaenox/realty-bot/internal/llm"
	"github.com/xaenox/realty-bot/internal/metrics"
	"github.com/xaenox/realty-bot/internal/models"
)

// LinkLabel precedes the listing url in every description.
const LinkLabel = "Ссылка на объявление:"

// Tiers of the degrade chain, reported to metrics.
const (
	TierValid      = "valid"
	TierUnfiltered = "unfiltered"
	TierFallback   = "fallback"
)

var (
	roomsPattern = regexp.MustCompile(`\d+-комнат`)
	areaPattern  = regexp.MustCompile(`\d+[.,]?\d* кв`)
)

const examples = `Примеры формата:
1) На 7-м этаже 9-этажного дома расположена 2-комнатная квартира площадью 48 кв. м в пешей доступности от метро «Проспект Мира». Стоимость составляет 9 500 000 ₽. Ссылка на объявление: https://example.com/listing/1
2) На 12-м этаже 14-этажного дома представлена 3-комнатная квартира площадью 75 кв. м рядом со станцией «Таганская». Цена — 15 200 000 ₽. Ссылка на объявление: https://example.com/listing/2
3) Квартира с одной спальней площадью 40 кв. м находится на 3-м этаже 5-этажного дома в 5 минутах ходьбы от метро «Черкизовская». Стоимость — 7 300 000 ₽. Ссылка на объявление: https://example.com/listing/3
4) На 18-м этаже 25-этажного дома представлена 4-комнатная квартира площадью 120 кв. м рядом с метро «Киевская». Цена составляет 25 000 000 ₽. Ссылка на объявление: https://example.com/listing/4`

type Config struct {
	MaxTokens   int
	Temperature float64
	Candidates  int
}

type Renderer struct {
	completer llm.Completer
	cfg       Config
	pick      func(n int) int
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func New(completer llm.Completer, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Renderer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 180
	}
	if cfg.Candidates <= 0 {
		cfg.Candidates = 3
	}
	return &Renderer{
		completer: completer,
		cfg:       cfg,
		pick:      rand.Intn,
		metrics:   m,
		logger:    logger,
	}
}

// Render describes one listing. It never fails: any completion problem falls
// back to the plain attribute summary.
func (r *Renderer) Render(ctx context.Context, rec models.ListingRecord) string {
	summary := Summary(rec)

	candidates, err := r.completer.Complete(ctx, llm.Request{
		Prompt:      Prompt(summary),
		MaxTokens:   r.cfg.MaxTokens,
		Stop:        []string{LinkLabel},
		Temperature: r.cfg.Temperature,
		N:           r.cfg.Candidates,
	})
	if err != nil || len(candidates) == 0 {
		if err != nil {
			r.logger.Warn("Listing description falls back to template", zap.Error(err))
		}
		r.metrics.ObserveRender(TierFallback)
		return Fallback(rec)
	}

	text, tier := Choose(candidates, r.pick)
	r.metrics.ObserveRender(tier)

	if !strings.Contains(text, "http") {
		text = strings.TrimRight(text, ".") + ". " + LinkLabel + " " + url(rec)
	}
	return text
}

// Choose picks uniformly among candidates passing Valid, or among all of them
// when none do. candidates must not be empty.
func Choose(candidates []string, pick func(n int) int) (string, string) {
	var valid []string
	for _, c := range candidates {
		if Valid(c) {
			valid = append(valid, c)
		}
	}
	if len(valid) > 0 {
		return valid[pick(len(valid))], TierValid
	}
	return candidates[pick(len(candidates))], TierUnfiltered
}

// Valid reports whether text mentions a room count, an area and the link label.
func Valid(text string) bool {
	return roomsPattern.MatchString(text) &&
		areaPattern.MatchString(text) &&
		strings.Contains(text, LinkLabel)
}

func Prompt(summary string) string {
	return fmt.Sprintf(`%s

Данные объекта: %s.

Опиши этот объект недвижимости в том же формате, что и примеры выше.
Не добавляй ничего лишнего, только описание объекта и ссылку на него.
Если метро не указано, не добавляй его в описание.
`, examples, summary)
}

// Fallback is the deterministic description used when generation fails.
func Fallback(rec models.ListingRecord) string {
	return Summary(rec) + ". " + LinkLabel + " " + url(rec)
}

// Summary lists the known attributes of a listing joined by "; ".
func Summary(rec models.ListingRecord) string {
	var attrs []string

	switch {
	case rec.Floor != nil && rec.FloorsCount != nil:
		attrs = append(attrs, fmt.Sprintf("на %d-м этаже %d-этажного дома", *rec.Floor, *rec.FloorsCount))
	case rec.Floor != nil:
		attrs = append(attrs, fmt.Sprintf("на %d-м этаже", *rec.Floor))
	case rec.FloorsCount != nil:
		attrs = append(attrs, fmt.Sprintf("в %d-этажном доме", *rec.FloorsCount))
	}
	if rec.RoomsCount != nil {
		attrs = append(attrs, fmt.Sprintf("%d-комнатная квартира", *rec.RoomsCount))
	}
	if rec.TotalMeters != nil {
		attrs = append(attrs, fmt.Sprintf("площадью %.1f кв. м", *rec.TotalMeters))
	}
	if rec.Underground != nil && *rec.Underground != "" {
		attrs = append(attrs, fmt.Sprintf("в пешей доступности от метро «%s»", capitalize(*rec.Underground)))
	}
	if rec.Price != nil {
		attrs = append(attrs, "стоимостью "+groupThousands(*rec.Price)+" ₽")
	} else {
		attrs = append(attrs, "цена не указана")
	}

	return strings.Join(attrs, "; ")
}

// groupThousands formats 9500000 as 9,500,000.
func groupThousands(v int64) string {
	return message.NewPrinter(language.English).Sprintf("%d", v)
}

func url(rec models.ListingRecord) string {
	if rec.URL == nil {
		return ""
	}
	return *rec.URL
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
