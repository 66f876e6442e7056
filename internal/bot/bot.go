package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xaenox/realty-bot/internal/conversation"
	"github.com/xaenox/realty-bot/internal/models"
	"github.com/xaenox/realty-bot/internal/paginator"
	"github.com/xaenox/realty-bot/internal/search"
	"github.com/xaenox/realty-bot/internal/storage"
)

const (
	moreCallbackPrefix = "more:"

	msgStart = `Привет! 👋 Я бот-помощник по недвижимости.

/search – Найти недвижимость пошагово 🏡
/help – Помощь и примеры запросов`
	msgHelp = `Ты можешь:
• Написать запрос текстом (например: «Купить квартиру до 6 млн»)
• Использовать пошаговый поиск через /search`
	msgSearching   = "🔍 Ищу по твоему запросу..."
	msgNotHandled  = "❌ Не удалось обработать запрос. Попробуй снова или используй /search."
	msgNothing     = "😕 Ничего не найдено."
	msgMore        = "🔽 Хочешь ещё варианты?"
	msgMoreButton  = "Показать ещё"
	msgUnknown     = "Неизвестная команда. Используй /help."
	msgTextOnly    = "Пришли запрос текстом или используй /search."
	msgUnavailable = "⚠️ Сервис временно недоступен, попробуй позже."
)

// API is the part of the Telegram client the bot sends through.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Searcher interface {
	Search(ctx context.Context, userID int64, text, city string) (paginator.Page, error)
	More(ctx context.Context, userID int64, offset int) (paginator.Page, bool, error)
}

type ListingRenderer interface {
	Render(ctx context.Context, rec models.ListingRecord) string
}

type Config struct {
	// Workers is the number of chats served concurrently. Updates of one chat
	// always go to the same worker, so they are handled in order.
	Workers int
	// MaxErrorLen caps the store error text shown to users.
	MaxErrorLen int
}

type Bot struct {
	client   *tgbotapi.BotAPI
	api      API
	machine  *conversation.Machine
	search   Searcher
	renderer ListingRenderer
	cfg      Config
	logger   *zap.Logger
}

func New(token string, machine *conversation.Machine, searcher Searcher, renderer ListingRenderer, cfg Config, logger *zap.Logger) (*Bot, error) {
	client, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := NewWithAPI(client, machine, searcher, renderer, cfg, logger)
	b.client = client
	return b, nil
}

func NewWithAPI(api API, machine *conversation.Machine, searcher Searcher, renderer ListingRenderer, cfg Config, logger *zap.Logger) *Bot {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Bot{
		api:      api,
		machine:  machine,
		search:   searcher,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start long-polls Telegram until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.client == nil {
		return errors.New("bot has no telegram client")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.client.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		b.client.StopReceivingUpdates()
	}()

	b.logger.Info("Bot started", zap.String("username", b.client.Self.UserName))
	return b.Run(ctx, updates)
}

// Run fans updates out to workers keyed by chat id and returns once updates is
// closed or ctx is done and every queued update has been handled.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	g, gctx := errgroup.WithContext(ctx)

	queues := make([]chan tgbotapi.Update, b.cfg.Workers)
	for i := range queues {
		queue := make(chan tgbotapi.Update, 64)
		queues[i] = queue
		g.Go(func() error {
			for update := range queue {
				b.handleUpdate(gctx, update)
			}
			return nil
		})
	}

dispatch:
	for {
		select {
		case <-ctx.Done():
			break dispatch
		case update, ok := <-updates:
			if !ok {
				break dispatch
			}
			chatID, ok := chatOf(update)
			if !ok {
				continue
			}
			select {
			case queues[uint64(chatID)%uint64(len(queues))] <- update:
			case <-ctx.Done():
				break dispatch
			}
		}
	}

	for _, queue := range queues {
		close(queue)
	}
	return g.Wait()
}

func chatOf(update tgbotapi.Update) (int64, bool) {
	switch {
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID, true
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		return update.CallbackQuery.Message.Chat.ID, true
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID, true
	default:
		return 0, false
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	// Handle commands
	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	if strings.TrimSpace(message.Text) == "" {
		b.sendMessage(chatID, msgTextOnly)
		return
	}

	reply, err := b.machine.Handle(ctx, chatID, message.Text)
	if err != nil {
		b.logger.Error("Failed to handle message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
		b.sendMessage(chatID, msgUnavailable)
		return
	}

	if reply.Dispatch {
		b.runSearch(ctx, chatID, reply.Query)
		return
	}
	b.sendReply(chatID, reply)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	switch message.Command() {
	case "start":
		b.sendMessage(chatID, msgStart)
	case "help":
		b.sendMessage(chatID, msgHelp)
	case "search":
		reply, err := b.machine.StartSearch(ctx, chatID)
		if err != nil {
			b.logger.Error("Failed to start guided search",
				zap.Error(err),
				zap.Int64("chat_id", chatID))
			b.sendMessage(chatID, msgUnavailable)
			return
		}
		b.sendReply(chatID, reply)
	default:
		b.sendMessage(chatID, msgUnknown)
	}
}

func (b *Bot) runSearch(ctx context.Context, chatID int64, query string) {
	b.sendMessage(chatID, msgSearching)

	city, err := b.machine.LastCity(ctx, chatID)
	if err != nil {
		b.logger.Warn("Failed to read last city", zap.Error(err), zap.Int64("chat_id", chatID))
	}

	page, err := b.search.Search(ctx, chatID, query, city)
	if err != nil {
		var execErr *storage.ExecutionError
		switch {
		case errors.Is(err, search.ErrEmptyResultSet):
			b.sendMessage(chatID, msgNothing)
		case errors.As(err, &execErr):
			b.sendMessage(chatID, "⚠️ Ошибка: "+truncate(execErr.Error(), b.cfg.MaxErrorLen))
		default:
			b.sendMessage(chatID, msgNotHandled)
		}
		return
	}

	b.sendPage(ctx, chatID, page)
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
			b.logger.Error("Failed to answer callback", zap.Error(err), zap.String("callback_id", callback.ID))
		}
	}()

	if !strings.HasPrefix(callback.Data, moreCallbackPrefix) {
		return
	}
	offset := paginator.Resume
	if payload := strings.TrimPrefix(callback.Data, moreCallbackPrefix); payload != "" {
		n, err := strconv.Atoi(payload)
		if err != nil || n < 0 {
			b.logger.Warn("Bad callback payload", zap.String("data", callback.Data))
			return
		}
		offset = n
	}

	chatID, _ := chatOf(tgbotapi.Update{CallbackQuery: callback})
	page, found, err := b.search.More(ctx, chatID, offset)
	if err != nil {
		b.logger.Error("Failed to load next page",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
			zap.Int("offset", offset))
		return
	}
	if found {
		b.sendPage(ctx, chatID, page)
	}
}

func (b *Bot) sendPage(ctx context.Context, chatID int64, page paginator.Page) {
	for _, listing := range page.Listings {
		b.sendListing(chatID, b.renderer.Render(ctx, listing))
	}

	if page.HasMore {
		msg := tgbotapi.NewMessage(chatID, msgMore)
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(msgMoreButton, moreCallbackPrefix+strconv.Itoa(page.NextOffset)),
			),
		)
		b.send(msg)
	}
}

func (b *Bot) sendReply(chatID int64, reply conversation.Reply) {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	switch {
	case len(reply.Choices) > 0:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(reply.Choices))
		for _, choice := range reply.Choices {
			rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(choice)))
		}
		keyboard := tgbotapi.NewReplyKeyboard(rows...)
		keyboard.ResizeKeyboard = true
		msg.ReplyMarkup = keyboard
	case reply.RemoveKeyboard:
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}
	b.send(msg)
}

// sendListing sends a description as Markdown. Generated text can carry
// unbalanced entities (urls with '_' among them), which Telegram rejects, so a
// failed send is repeated as plain text.
func (b *Bot) sendListing(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("Failed to send listing as markdown, retrying as plain text",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
		b.sendMessage(chatID, text)
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(msg tgbotapi.MessageConfig) {
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", msg.ChatID))
	}
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
