package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tatianab/branching-tales/internal/storage"
	"github.com/tatianab/branching-tales/internal/story"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(model)
	require.True(t, ok)
	return out
}

func loaded(t *testing.T, source string) model {
	t.Helper()
	m := NewModel(Options{
		Loader: story.NewLoader("", nil),
		Store:  storage.NewMemoryStore(),
		Source: source,
	})
	require.Equal(t, stateLoading, m.state)
	m = send(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	cmd := m.Init()
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, storyLoadedMsg{}, msg)
	return send(t, m, msg)
}

func TestLoadingRefusesInput(t *testing.T) {
	m := NewModel(Options{Source: "samurai", Store: storage.NewMemoryStore()})
	m = send(t, m, key("1"))
	assert.Equal(t, stateLoading, m.state)
	assert.Nil(t, m.engine)
}

func TestPlayThroughChoices(t *testing.T) {
	m := loaded(t, "samurai")
	require.Equal(t, statePlaying, m.state)
	assert.Contains(t, m.View(), "Начало пути")

	m = send(t, m, key("1"))
	assert.Equal(t, "revenge_path", m.engine.Scene().ID)
	assert.Contains(t, m.gameLog, "Путь мести")
	assert.Contains(t, m.gameLog, "Искусный Дипломат")

	m = send(t, m, key("9"))
	assert.Equal(t, "revenge_path", m.engine.Scene().ID)
}

func TestBlockedChoiceShowsMessage(t *testing.T) {
	m := loaded(t, "lighthouse")
	m = send(t, m, key("2"))
	require.Equal(t, "lighthouse_door", m.engine.Scene().ID)

	m = send(t, m, key("1"))
	assert.Equal(t, "lighthouse_door", m.engine.Scene().ID)
	assert.Contains(t, m.gameLog, "Дверь заперта. Нужен ключ.")
	assert.Contains(t, m.renderChoices(), "Дверь заперта. Нужен ключ.")
}

func TestMenuAndSlots(t *testing.T) {
	m := loaded(t, "samurai")

	m = send(t, m, key("s"))
	require.Equal(t, stateSlotPrompt, m.state)
	assert.Contains(t, m.View(), "(пусто)")
	m = send(t, m, key("2"))
	assert.Equal(t, statePlaying, m.state)
	assert.Equal(t, "Игра сохранена в слот 2", m.notice)

	m = send(t, m, key("s"))
	m = send(t, m, key("7"))
	assert.Contains(t, m.notice, "номер слота")

	m = send(t, m, key("m"))
	require.Equal(t, stateMenu, m.state)
	assert.True(t, m.engine.AtMenu())
	assert.Contains(t, m.View(), "Первые шаги")
	assert.Contains(t, m.View(), "☆ ???")

	m = send(t, m, key("r"))
	require.Equal(t, stateReport, m.state)
	assert.Contains(t, m.View(), "ОТЧЕТ О ПРОХОЖДЕНИИ")
	m = send(t, m, key("x"))
	assert.Equal(t, stateMenu, m.state)

	m = send(t, m, key("c"))
	assert.Equal(t, statePlaying, m.state)
	assert.False(t, m.engine.AtMenu())
}

func TestMenuSettingsAndWipe(t *testing.T) {
	ctx := context.Background()
	m := loaded(t, "samurai")
	m = send(t, m, key("1"))
	require.Equal(t, "revenge_path", m.engine.Scene().ID)

	m = send(t, m, key("m"))
	m = send(t, m, key("l"))
	assert.Equal(t, stateMenu, m.state)
	assert.Equal(t, "Нет сохранений", m.notice)

	require.True(t, m.settings.SkipViewed)
	m = send(t, m, key("v"))
	assert.False(t, m.settings.SkipViewed)
	assert.False(t, m.engine.Saves().Settings(ctx).SkipViewed)

	m = send(t, m, key("w"))
	assert.True(t, m.wipeArmed)
	m = send(t, m, key("r"))
	assert.False(t, m.wipeArmed)
	m = send(t, m, key("x"))
	require.Equal(t, stateMenu, m.state)

	m = send(t, m, key("w"))
	m = send(t, m, key("w"))
	assert.Equal(t, statePlaying, m.state)
	assert.Equal(t, "start", m.engine.Scene().ID)
	assert.Equal(t, "Все данные удалены", m.notice)
	assert.True(t, m.settings.SkipViewed)
	assert.Empty(t, m.engine.History().Entries())
}

func TestReportReturnsToPlaying(t *testing.T) {
	m := loaded(t, "samurai")
	m = send(t, m, key("r"))
	require.Equal(t, stateReport, m.state)
	m = send(t, m, key("x"))
	assert.Equal(t, statePlaying, m.state)
	assert.False(t, m.engine.AtMenu())
}

func TestBadSlotFallsBackToNewGame(t *testing.T) {
	m := NewModel(Options{
		Loader: story.NewLoader("", nil),
		Store:  storage.NewMemoryStore(),
		Source: "samurai",
		Slot:   7,
	})
	m = send(t, m, m.Init()())
	require.Equal(t, statePlaying, m.state)
	assert.Equal(t, "start", m.engine.Scene().ID)
	assert.Contains(t, m.notice, "Слот 7 не загружен")
}

func TestSelectStory(t *testing.T) {
	m := NewModel(Options{Loader: story.NewLoader("", nil), Store: storage.NewMemoryStore()})
	require.Equal(t, stateSelect, m.state)
	assert.Contains(t, m.View(), "lighthouse")

	m = send(t, m, key("1"))
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	assert.Equal(t, stateLoading, m.state)
	require.NotNil(t, cmd)
	m = send(t, m, cmd())
	assert.Equal(t, statePlaying, m.state)
	assert.Equal(t, m.stories[0], m.engine.Story().ID)
}

func TestLoadErrorShowsErrorState(t *testing.T) {
	m := NewModel(Options{Loader: story.NewLoader("", nil), Store: storage.NewMemoryStore(), Source: "missing"})
	m = send(t, m, m.Init()())
	assert.Equal(t, stateError, m.state)
	assert.Contains(t, m.View(), "Ошибка")
}

func TestBannerFallsBackToNeutral(t *testing.T) {
	assert.Equal(t, themeBanners["neutral"].Render("x"), banner("dark").Render("x"))
	assert.Equal(t, themeBanners["good"].Render("x"), banner("good").Render("x"))
}
