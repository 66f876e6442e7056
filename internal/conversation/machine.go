// Package conversation drives the guided search: city, property type, rooms
// and budget are asked one after another and every answer is stored as typed.
// Slot values are deliberately not validated; the generator interprets them.
package conversation

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xaenox/realty-bot/internal/models"
	"github.com/xaenox/realty-bot/internal/storage"
)

const (
	promptCity   = "🏙 Выберите город:"
	promptType   = "🏠 Какой тип недвижимости интересует?"
	promptRooms  = "🛏 Сколько комнат ты хочешь?"
	promptBudget = "💰 Укажи бюджет (например: до 6 млн или до 50 тыс в месяц):"
)

// Options are the keyboard choices offered at each step.
type Options struct {
	Cities        []string
	PropertyTypes []string
	RoomOptions   []string
}

func DefaultOptions() Options {
	return Options{
		Cities:        []string{"Москва", "Сочи", "Санкт-Петербург"},
		PropertyTypes: []string{"Квартира", "Дом", "Студия"},
		RoomOptions:   []string{"1 комната", "2 комнаты", "3 комнаты", "4+ комнаты"},
	}
}

// Reply is what the chat should see after a turn. When Dispatch is set, Query
// must be searched and no prompt is sent.
type Reply struct {
	Text           string
	Choices        []string
	RemoveKeyboard bool

	Dispatch bool
	Query    string
}

type Machine struct {
	store   storage.SessionStore
	options Options
	logger  *zap.Logger
}

func NewMachine(store storage.SessionStore, options Options, logger *zap.Logger) *Machine {
	return &Machine{store: store, options: options, logger: logger}
}

// StartSearch moves the chat to AwaitingCity, dropping any unfinished guided search.
func (m *Machine) StartSearch(ctx context.Context, userID int64) (Reply, error) {
	session, err := m.store.GetSession(ctx, userID)
	if err != nil {
		return Reply{}, fmt.Errorf("get session: %w", err)
	}

	session.Reset()
	session.State = models.StateAwaitingCity
	if err := m.store.SaveSession(ctx, session); err != nil {
		return Reply{}, fmt.Errorf("save session: %w", err)
	}

	return Reply{Text: promptCity, Choices: m.options.Cities}, nil
}

// Handle consumes one text message. In Idle the text itself is dispatched as a
// free-text query.
func (m *Machine) Handle(ctx context.Context, userID int64, text string) (Reply, error) {
	session, err := m.store.GetSession(ctx, userID)
	if err != nil {
		return Reply{}, fmt.Errorf("get session: %w", err)
	}

	var reply Reply
	switch session.State {
	case models.StateIdle:
		return Reply{Dispatch: true, Query: text}, nil
	case models.StateAwaitingCity:
		session.Slots.City = text
		session.LastCity = text
		session.State = models.StateAwaitingType
		reply = Reply{Text: promptType, Choices: m.options.PropertyTypes}
	case models.StateAwaitingType:
		session.Slots.PropertyType = text
		session.State = models.StateAwaitingRooms
		reply = Reply{Text: promptRooms, Choices: m.options.RoomOptions}
	case models.StateAwaitingRooms:
		session.Slots.Rooms = text
		session.State = models.StateAwaitingBudget
		reply = Reply{Text: promptBudget, RemoveKeyboard: true}
	case models.StateAwaitingBudget:
		session.Slots.Budget = text
		reply = Reply{Dispatch: true, Query: Compose(session.Slots)}
		session.Reset()
	default:
		m.logger.Warn("Unknown session state, resetting",
			zap.Int64("user_id", userID),
			zap.Int("state", int(session.State)))
		session.Reset()
		reply = Reply{Dispatch: true, Query: text}
	}

	if err := m.store.SaveSession(ctx, session); err != nil {
		return Reply{}, fmt.Errorf("save session: %w", err)
	}
	return reply, nil
}

// LastCity returns the city chosen in the latest guided search, if any.
func (m *Machine) LastCity(ctx context.Context, userID int64) (string, error) {
	session, err := m.store.GetSession(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	return session.LastCity, nil
}

// Compose joins the filled slots into one sentence for the generator.
func Compose(s models.Slots) string {
	return fmt.Sprintf("%s в %s %s %s", s.PropertyType, s.City, s.Rooms, s.Budget)
}
