package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/realty-bot/internal/conversation"
	"github.com/xaenox/realty-bot/internal/llm"
	"github.com/xaenox/realty-bot/internal/models"
	"github.com/xaenox/realty-bot/internal/paginator"
	"github.com/xaenox/realty-bot/internal/renderer"
	"github.com/xaenox/realty-bot/internal/schema"
	"github.com/xaenox/realty-bot/internal/search"
	"github.com/xaenox/realty-bot/internal/sqlgen"
	"github.com/xaenox/realty-bot/internal/storage"
)

type fakeAPI struct {
	mu        sync.Mutex
	sent      []tgbotapi.MessageConfig
	callbacks []string
	// rejectMarkdown fails every message that asks for a parse mode.
	rejectMarkdown bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		if f.rejectMarkdown && msg.ParseMode != "" {
			return tgbotapi.Message{}, errors.New("bad request: can't parse entities")
		}
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.callbacks = append(f.callbacks, cb.CallbackQueryID)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) texts(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

// routingCompleter answers generation prompts with SQL and fails listing prompts,
// so every listing renders through the deterministic template.
type routingCompleter struct {
	sql string
}

func (r routingCompleter) Complete(_ context.Context, req llm.Request) ([]string, error) {
	if strings.Contains(req.Prompt, "SQL:") {
		return []string{r.sql}, nil
	}
	return nil, errors.New("renderer disabled in tests")
}

type fakeExecutor struct {
	rows []models.ListingRecord
	err  error
	last string
}

func (f *fakeExecutor) Execute(_ context.Context, q string) ([]models.ListingRecord, error) {
	f.last = q
	return f.rows, f.err
}

func rows(n int) []models.ListingRecord {
	out := make([]models.ListingRecord, n)
	for i := range out {
		u := "https://example.com/" + string(rune('a'+i))
		out[i].URL = &u
	}
	return out
}

func newTestBot(t *testing.T, exec *fakeExecutor, sql string) (*Bot, *fakeAPI) {
	t.Helper()
	logger := zap.NewNop()
	store := storage.NewMemoryStorage(100, time.Hour)
	d := schema.Listings()
	shape := sqlgen.NewShape(d, 3)
	completer := routingCompleter{sql: sql}

	builder := sqlgen.NewBuilder(sqlgen.NewGenerator(completer, d, shape, sqlgen.GeneratorConfig{}), sqlgen.NewValidator(d, shape), shape, logger)
	svc := search.NewService(builder, exec, paginator.New(store, 5), nil, logger)
	machine := conversation.NewMachine(store, conversation.DefaultOptions(), logger)
	rend := renderer.New(completer, renderer.Config{}, nil, logger)

	api := &fakeAPI{}
	return NewWithAPI(api, machine, svc, rend, Config{Workers: 3, MaxErrorLen: 20}, logger), api
}

func textUpdate(chatID int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{Text: text, Chat: &tgbotapi.Chat{ID: chatID}}
	if strings.HasPrefix(text, "/") {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}}
	}
	return tgbotapi.Update{Message: msg}
}

func callbackUpdate(chatID int64, id, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      id,
		Data:    data,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func run(t *testing.T, b *Bot, updates ...tgbotapi.Update) {
	t.Helper()
	ch := make(chan tgbotapi.Update, len(updates))
	for _, u := range updates {
		ch <- u
	}
	close(ch)
	require.NoError(t, b.Run(context.Background(), ch))
}

const generated = "SELECT url, floor, floors_count, rooms_count, total_meters, price, underground FROM listings WHERE rooms_count = 3 LIMIT 3"

func TestGuidedSearchWithPagination(t *testing.T) {
	exec := &fakeExecutor{rows: rows(7)}
	b, api := newTestBot(t, exec, generated)

	run(t, b,
		textUpdate(1, "/search"),
		textUpdate(1, "Сочи"),
		textUpdate(1, "Дом"),
		textUpdate(1, "3 комнаты"),
		textUpdate(1, "до 10 млн"),
	)

	assert.Equal(t, "select url, floor, floors_count, rooms_count, total_meters, price, underground from listings where location = 'сочи' and rooms_count = 3 limit 3;", exec.last)

	texts := api.texts(1)
	require.Len(t, texts, 4+1+5+1)
	assert.Equal(t, msgSearching, texts[4])
	assert.Equal(t, "цена не указана. Ссылка на объявление: https://example.com/a", texts[5])
	assert.Equal(t, msgMore, texts[10])

	last := api.sent[len(api.sent)-1]
	markup, ok := last.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, "more:5", *markup.InlineKeyboard[0][0].CallbackData)

	run(t, b, callbackUpdate(1, "cb-1", "more:5"))

	texts = api.texts(1)
	require.Len(t, texts, 11+2)
	assert.Equal(t, "цена не указана. Ссылка на объявление: https://example.com/g", texts[12])
	assert.Equal(t, []string{"cb-1"}, api.callbacks)
}

func TestGuidedPromptsCarryKeyboards(t *testing.T) {
	b, api := newTestBot(t, &fakeExecutor{}, generated)

	run(t, b, textUpdate(1, "/search"), textUpdate(1, "Москва"), textUpdate(1, "Квартира"))

	require.Len(t, api.sent, 3)
	keyboard, ok := api.sent[0].ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.Len(t, keyboard.Keyboard, 3)
	assert.Equal(t, "Москва", keyboard.Keyboard[0][0].Text)

	_, ok = api.sent[2].ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	assert.True(t, ok, "rooms prompt offers choices")
}

func TestFreeTextSearchOutcomes(t *testing.T) {
	t.Run("nothing found", func(t *testing.T) {
		b, api := newTestBot(t, &fakeExecutor{}, generated)
		run(t, b, textUpdate(2, "Купить квартиру до 6 млн"))
		assert.Equal(t, []string{msgSearching, msgNothing}, api.texts(2))
	})

	t.Run("generation failure", func(t *testing.T) {
		b, api := newTestBot(t, &fakeExecutor{}, "не понимаю")
		run(t, b, textUpdate(2, "что угодно"))
		assert.Equal(t, []string{msgSearching, msgNotHandled}, api.texts(2))
	})

	t.Run("execution error is shown truncated", func(t *testing.T) {
		exec := &fakeExecutor{err: &storage.ExecutionError{Err: errors.New("relation \"listings\" does not exist")}}
		b, api := newTestBot(t, exec, generated)
		run(t, b, textUpdate(2, "квартира"))

		texts := api.texts(2)
		require.Len(t, texts, 2)
		assert.True(t, strings.HasPrefix(texts[1], "⚠️ Ошибка: ошибка выполнения"))
		assert.True(t, strings.HasSuffix(texts[1], "…"))
	})

	t.Run("five rows have no continuation", func(t *testing.T) {
		b, api := newTestBot(t, &fakeExecutor{rows: rows(5)}, generated)
		run(t, b, textUpdate(2, "квартира"))
		texts := api.texts(2)
		require.Len(t, texts, 6)
		assert.NotContains(t, texts, msgMore)
	})
}

func TestCallbackWithoutResultsIsAcknowledged(t *testing.T) {
	b, api := newTestBot(t, &fakeExecutor{}, generated)

	run(t, b, callbackUpdate(3, "cb-9", "more:5"), callbackUpdate(3, "cb-10", "more:x"))

	assert.Empty(t, api.texts(3))
	assert.ElementsMatch(t, []string{"cb-9", "cb-10"}, api.callbacks)
}

func TestListingsAreSentAsMarkdown(t *testing.T) {
	b, api := newTestBot(t, &fakeExecutor{rows: rows(2)}, generated)
	run(t, b, textUpdate(5, "квартира"))

	require.Len(t, api.sent, 3)
	assert.Empty(t, api.sent[0].ParseMode)
	assert.Equal(t, tgbotapi.ModeMarkdown, api.sent[1].ParseMode)
	assert.Equal(t, tgbotapi.ModeMarkdown, api.sent[2].ParseMode)
}

func TestRejectedMarkdownFallsBackToPlainText(t *testing.T) {
	b, api := newTestBot(t, &fakeExecutor{rows: rows(2)}, generated)
	api.rejectMarkdown = true
	run(t, b, textUpdate(5, "квартира"))

	require.Len(t, api.sent, 3)
	assert.Equal(t, "цена не указана. Ссылка на объявление: https://example.com/a", api.sent[1].Text)
	assert.Empty(t, api.sent[1].ParseMode)
	assert.Empty(t, api.sent[2].ParseMode)
}

func TestCallbackWithoutOffsetResumesFromCursor(t *testing.T) {
	b, api := newTestBot(t, &fakeExecutor{rows: rows(7)}, generated)

	run(t, b, textUpdate(6, "квартира"))
	require.Len(t, api.texts(6), 1+5+1)

	run(t, b, callbackUpdate(6, "cb-r", "more:"))

	texts := api.texts(6)
	require.Len(t, texts, 7+2)
	assert.Equal(t, "цена не указана. Ссылка на объявление: https://example.com/f", texts[7])
	assert.Equal(t, "цена не указана. Ссылка на объявление: https://example.com/g", texts[8])
	assert.Equal(t, []string{"cb-r"}, api.callbacks)
}

func TestCommands(t *testing.T) {
	b, api := newTestBot(t, &fakeExecutor{}, generated)

	run(t, b, textUpdate(4, "/start"), textUpdate(4, "/help"), textUpdate(4, "/nope"))

	assert.Equal(t, []string{msgStart, msgHelp, msgUnknown}, api.texts(4))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "абв…", truncate("абвгд", 3))
	assert.Equal(t, "абв", truncate("абв", 3))
	assert.Equal(t, "абвгд", truncate("абвгд", 0))
}
