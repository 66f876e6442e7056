package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/realty-bot/internal/models"
	"github.com/xaenox/realty-bot/internal/storage"
)

func newMachine() (*Machine, *storage.MemoryStorage) {
	store := storage.NewMemoryStorage(100, time.Hour)
	return NewMachine(store, DefaultOptions(), zap.NewNop()), store
}

func TestGuidedFlow(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine()

	reply, err := m.StartSearch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, promptCity, reply.Text)
	assert.Equal(t, []string{"Москва", "Сочи", "Санкт-Петербург"}, reply.Choices)

	steps := []struct {
		input string
		text  string
		state models.SearchState
	}{
		{"Сочи", promptType, models.StateAwaitingType},
		{"Дом", promptRooms, models.StateAwaitingRooms},
		{"3 комнаты", promptBudget, models.StateAwaitingBudget},
	}
	for _, step := range steps {
		reply, err = m.Handle(ctx, 1, step.input)
		require.NoError(t, err)
		assert.Equal(t, step.text, reply.Text)
		assert.False(t, reply.Dispatch)

		session, err := store.GetSession(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, step.state, session.State)
	}
	assert.True(t, reply.RemoveKeyboard)

	reply, err = m.Handle(ctx, 1, "до 10 млн")
	require.NoError(t, err)
	assert.True(t, reply.Dispatch)
	assert.Equal(t, "Дом в Сочи 3 комнаты до 10 млн", reply.Query)

	session, err := store.GetSession(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, session.State)
	assert.Equal(t, models.Slots{}, session.Slots)
	assert.Equal(t, "Сочи", session.LastCity)
}

func TestIdleMessageIsFreeTextQuery(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine()

	reply, err := m.Handle(ctx, 5, "Купить квартиру до 6 млн")
	require.NoError(t, err)
	assert.True(t, reply.Dispatch)
	assert.Equal(t, "Купить квартиру до 6 млн", reply.Query)

	city, err := m.LastCity(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, city)
}

func TestSlotsAcceptArbitraryText(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine()

	_, err := m.StartSearch(ctx, 2)
	require.NoError(t, err)
	for _, in := range []string{"Казань", "яхта", "много", "???"} {
		_, err = m.Handle(ctx, 2, in)
		require.NoError(t, err)
	}

	city, err := m.LastCity(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Казань", city)
}

func TestLastCitySurvivesNewSearch(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine()

	_, err := m.StartSearch(ctx, 3)
	require.NoError(t, err)
	_, err = m.Handle(ctx, 3, "Москва")
	require.NoError(t, err)

	// restarting drops the slots but keeps the city
	_, err = m.StartSearch(ctx, 3)
	require.NoError(t, err)

	session, err := store.GetSession(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingCity, session.State)
	assert.Empty(t, session.Slots.City)
	assert.Equal(t, "Москва", session.LastCity)
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	ctx := context.Background()
	m, _ := newMachine()

	_, err := m.StartSearch(ctx, 10)
	require.NoError(t, err)

	reply, err := m.Handle(ctx, 11, "Сочи")
	require.NoError(t, err)
	assert.True(t, reply.Dispatch, "user 11 has no guided search")

	reply, err = m.Handle(ctx, 10, "Сочи")
	require.NoError(t, err)
	assert.False(t, reply.Dispatch)
}
