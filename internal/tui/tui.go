package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tatianab/branching-tales/internal/engine"
	"github.com/tatianab/branching-tales/internal/models"
	"github.com/tatianab/branching-tales/internal/saves"
	"github.com/tatianab/branching-tales/internal/storage"
	"github.com/tatianab/branching-tales/internal/story"
	"go.uber.org/zap"
)

type sessionState int

const (
	stateSelect sessionState = iota
	stateLoading
	statePlaying
	stateMenu
	stateSlotPrompt
	stateReport
	stateError
)

type slotAction int

const (
	slotSave slotAction = iota
	slotLoad
	slotDelete
)

func (a slotAction) String() string {
	switch a {
	case slotSave:
		return "Сохранить в слот"
	case slotLoad:
		return "Загрузить слот"
	}
	return "Удалить слот"
}

// Options configure the player.
type Options struct {
	Loader *story.Loader
	Store  storage.Store
	// Source preselects a story id, path or URL; when empty the player asks.
	Source string
	// Slot is tried first when the story starts; zero skips it.
	Slot   int
	Logger *zap.Logger
}

type model struct {
	opts      Options
	state     sessionState
	engine    *engine.Engine
	settings  models.Settings
	stories   []string
	textInput textinput.Model
	viewport  viewport.Model
	err       error
	gameLog   string
	notice    string
	action    slotAction
	report    string
	wipeArmed bool
	width     int
	height    int
}

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	gameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)

	lockedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1C40F"))

	bannerBase = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 2).
			MarginTop(1)

	themeBanners = map[string]lipgloss.Style{
		"good":    bannerBase.Foreground(lipgloss.Color("#1E1E1E")).Background(lipgloss.Color("#F39C12")),
		"bad":     bannerBase.Foreground(lipgloss.Color("#EEEEEE")).Background(lipgloss.Color("#8E1B1B")),
		"secret":  bannerBase.Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#2980B9")),
		"neutral": bannerBase.Foreground(lipgloss.Color("#1E1E1E")).Background(lipgloss.Color("#95A5A6")),
	}
)

func banner(theme string) lipgloss.Style {
	if s, ok := themeBanners[theme]; ok {
		return s
	}
	return themeBanners["neutral"]
}

func NewModel(opts Options) model {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ti := textinput.New()
	ti.Placeholder = "Номер, имя истории или URL..."
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 40

	m := model{
		opts:      opts,
		state:     stateSelect,
		textInput: ti,
		settings:  models.DefaultSettings(),
	}
	if opts.Loader != nil {
		m.stories = opts.Loader.Available()
	}
	if opts.Source != "" {
		m.state = stateLoading
	}
	return m
}

func (m model) Init() tea.Cmd {
	if m.state == stateLoading {
		return m.loadStory(m.opts.Source)
	}
	return textinput.Blink
}

type storyLoadedMsg struct {
	engine   *engine.Engine
	settings models.Settings
	origin   engine.Origin
	outcome  engine.Outcome
}

type errMsg struct {
	err error
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.state {
		case stateSelect:
			return m.updateSelect(msg)
		case stateLoading:
			// Input is refused until the story resolves.
			return m, nil
		case statePlaying:
			return m.updatePlaying(msg)
		case stateMenu:
			return m.updateMenu(msg)
		case stateSlotPrompt:
			return m.updateSlotPrompt(msg)
		case stateReport:
			m.state = m.returnState()
			return m, nil
		case stateError:
			if msg.Type == tea.KeyEsc || msg.String() == "q" {
				return m, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = int(float64(msg.Width) * 0.70)
		m.viewport.Height = msg.Height - 8
		if m.engine != nil {
			m.viewport.SetContent(m.renderLog())
		}

	case storyLoadedMsg:
		m.engine = msg.engine
		m.settings = msg.settings
		m.state = statePlaying
		if m.viewport.Width == 0 {
			m.viewport = viewport.New(int(float64(m.width)*0.70), max(m.height-8, 10))
		}
		m.gameLog = ""
		if msg.origin != engine.OriginNew {
			m.appendLog(helpStyle.Render(fmt.Sprintf("Продолжение игры (%s)", originName(msg.origin))))
		}
		m.appendOutcome(msg.outcome)
		if m.opts.Slot > 0 && msg.origin != engine.OriginSlot && len(msg.outcome.Warnings) > 0 {
			m.notice = fmt.Sprintf("Слот %d не загружен: %s", m.opts.Slot, describe(msg.outcome.Warnings[0]))
		}
		return m, nil

	case errMsg:
		m.err = msg.err
		m.state = stateError
		return m, nil
	}

	if m.state == stateSelect {
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}
	if m.state == statePlaying {
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func originName(o engine.Origin) string {
	switch o {
	case engine.OriginSlot:
		return "слот"
	case engine.OriginAutosave:
		return "автосохранение"
	case engine.OriginProgress:
		return "последний прогресс"
	}
	return "новая игра"
}

func (m model) updateSelect(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyEnter:
		source := strings.TrimSpace(m.textInput.Value())
		if n, ok := digit(source); ok && n >= 1 && n <= len(m.stories) {
			source = m.stories[n-1]
		}
		if source == "" && len(m.stories) > 0 {
			source = m.stories[0]
		}
		if source == "" {
			return m, nil
		}
		m.state = stateLoading
		return m, m.loadStory(source)
	}
	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m model) updatePlaying(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	key := msg.String()
	if n, ok := digit(key); ok {
		views := m.engine.Choices()
		if n < 1 || n > len(views) {
			return m, nil
		}
		m.appendLog(userStyle.Width(m.logWidth()).Render("> " + views[n-1].Choice.Text))
		out, err := m.engine.Choose(ctx, n-1)
		if err != nil {
			m.opts.Logger.Warn("choice failed", zap.Int("choice", n-1), zap.Error(err))
			m.notice = "Этот путь никуда не ведет."
			return m, nil
		}
		if out.AtMenu {
			m.appendMessages(out)
			m.state = stateMenu
			return m, nil
		}
		m.appendOutcome(out)
		return m, nil
	}

	switch key {
	case "q", "esc":
		return m, tea.Quit
	case "m":
		out := m.engine.ReturnToMenu(ctx)
		m.noticeWarnings(out.Warnings)
		m.state = stateMenu
	case "n":
		out, err := m.engine.NewGame(ctx)
		if err == nil {
			m.gameLog = ""
			m.appendOutcome(out)
		}
	case "s":
		m.action, m.state = slotSave, stateSlotPrompt
	case "l":
		m.action, m.state = slotLoad, stateSlotPrompt
	case "d":
		m.action, m.state = slotDelete, stateSlotPrompt
	case "r":
		m.report = m.buildReport()
		m.state = stateReport
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	armed := m.wipeArmed
	m.wipeArmed = false
	mgr := m.engine.Saves()
	switch msg.String() {
	case "c", "enter", "esc":
		m.engine.Resume()
		m.state = statePlaying
	case "n":
		out, err := m.engine.NewGame(ctx)
		if err == nil {
			m.gameLog = ""
			m.appendOutcome(out)
			m.state = statePlaying
		}
	case "l":
		if mgr == nil || !mgr.HasAnySaves(ctx) {
			m.notice = "Нет сохранений"
			return m, nil
		}
		m.action, m.state = slotLoad, stateSlotPrompt
	case "r":
		m.report = m.buildReport()
		m.state = stateReport
	case "v":
		if mgr == nil {
			return m, nil
		}
		m.settings.SkipViewed = !m.settings.SkipViewed
		if err := mgr.SaveSettings(ctx, m.settings); err != nil {
			m.notice = "Настройки не сохранены: " + describe(err)
			return m, nil
		}
		m.notice = "Отметка пройденных: " + onOff(m.settings.SkipViewed)
	case "w":
		if mgr == nil {
			return m, nil
		}
		if !armed {
			m.wipeArmed = true
			m.notice = "Нажмите w еще раз, чтобы удалить все данные истории"
			return m, nil
		}
		return m.wipe(ctx)
	case "x":
		m.state, m.engine, m.gameLog = stateSelect, nil, ""
		m.textInput.Reset()
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

// wipe removes every record of the story and starts over.
func (m model) wipe(ctx context.Context) (tea.Model, tea.Cmd) {
	if err := m.engine.Saves().ClearAll(ctx); err != nil {
		m.notice = "Не удалось удалить данные: " + describe(err)
		return m, nil
	}
	if log := m.engine.History(); log != nil {
		if err := log.Clear(ctx); err != nil {
			m.notice = "Не удалось удалить историю: " + describe(err)
			return m, nil
		}
	}
	m.settings = models.DefaultSettings()
	out, err := m.engine.NewGame(ctx)
	if err != nil {
		m.notice = describe(err)
		return m, nil
	}
	m.gameLog = ""
	m.appendOutcome(out)
	m.notice = "Все данные удалены"
	m.state = statePlaying
	return m, nil
}

func onOff(v bool) string {
	if v {
		return "вкл"
	}
	return "выкл"
}

// returnState is where a prompt or report goes back to.
func (m model) returnState() sessionState {
	if m.engine.AtMenu() {
		return stateMenu
	}
	return statePlaying
}

func (m model) updateSlotPrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	back := m.returnState()
	if msg.Type == tea.KeyEsc {
		m.state = back
		return m, nil
	}
	slot, ok := digit(msg.String())
	if !ok {
		return m, nil
	}

	m.state = back
	switch m.action {
	case slotSave:
		if _, err := m.engine.Save(ctx, slot); err != nil {
			m.notice = "Не удалось сохранить: " + describe(err)
			return m, nil
		}
		m.notice = fmt.Sprintf("Игра сохранена в слот %d", slot)
	case slotLoad:
		loaded, err := m.engine.LoadSlot(ctx, slot)
		switch {
		case err != nil:
			m.notice = "Не удалось загрузить: " + describe(err)
		case !loaded:
			m.notice = fmt.Sprintf("Слот %d пуст", slot)
		default:
			m.gameLog = ""
			m.appendOutcome(m.engine.Resume())
			m.notice = fmt.Sprintf("Загружен слот %d", slot)
			m.state = statePlaying
		}
	case slotDelete:
		if err := m.engine.DeleteSlot(ctx, slot); err != nil {
			m.notice = "Не удалось удалить: " + describe(err)
			return m, nil
		}
		m.notice = fmt.Sprintf("Слот %d очищен", slot)
	}
	return m, nil
}

func describe(err error) string {
	switch {
	case errors.Is(err, saves.ErrInvalidSlot):
		return fmt.Sprintf("номер слота от 1 до %d", saves.Slots)
	case errors.Is(err, saves.ErrMalformedRecord):
		return "запись повреждена"
	}
	return err.Error()
}

func digit(s string) (int, bool) {
	if len(s) != 1 || s[0] < '1' || s[0] > '9' {
		return 0, false
	}
	return int(s[0] - '0'), true
}

func (m *model) logWidth() int {
	if m.viewport.Width > 0 {
		return m.viewport.Width
	}
	return 80
}

func (m *model) appendLog(s string) {
	if m.gameLog != "" {
		m.gameLog += "\n\n"
	}
	m.gameLog += s
	m.viewport.SetContent(m.renderLog())
	m.viewport.GotoBottom()
}

func (m *model) appendMessages(out engine.Outcome) {
	for _, msg := range out.Messages {
		m.appendLog(noticeStyle.Render("• " + msg))
	}
	for _, id := range out.Unlocked {
		m.appendLog(noticeStyle.Render("★ Достижение: " + m.engine.AchievementName(id)))
	}
	m.noticeWarnings(out.Warnings)
}

func (m *model) noticeWarnings(warnings []error) {
	if len(warnings) > 0 {
		m.notice = "Прогресс не сохранен: " + describe(warnings[0])
	}
}

func (m *model) appendOutcome(out engine.Outcome) {
	m.notice = ""
	if out.Blocked {
		m.appendMessages(out)
		return
	}
	m.appendMessages(out)
	if out.Scene == nil {
		return
	}
	w := m.logWidth()
	scene := out.Scene
	header := gameStyle.Bold(true).Render(scene.Title)
	if scene.Character != "" {
		header += helpStyle.Render("  — " + scene.Character)
	}
	m.appendLog(header + "\n\n" + gameStyle.Width(w).Render(scene.Text))
	if out.Ending {
		m.appendLog(banner(out.Theme).Render("КОНЕЦ: " + scene.Title))
	}
}

func (m model) View() string {
	var s string

	switch m.state {
	case stateSelect:
		var b strings.Builder
		b.WriteString("Добро пожаловать! Выберите историю:\n\n")
		for i, id := range m.stories {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, id)
		}
		b.WriteString("\n" + m.textInput.View())
		b.WriteString("\n\n" + helpStyle.Render("Enter — начать, Esc — выход"))
		s = b.String()

	case stateLoading:
		s = "\n  Загрузка истории... подождите.\n"

	case statePlaying:
		mainView := lipgloss.JoinHorizontal(lipgloss.Top,
			m.viewport.View(),
			m.renderState(),
		)
		s = lipgloss.JoinVertical(lipgloss.Left,
			mainView,
			"\n"+m.renderChoices(),
			m.renderNotice(),
			helpStyle.Render("1-9 выбор, s/l/d слоты, m меню, n новая игра, r отчет, q выход"),
		)

	case stateMenu:
		s = lipgloss.JoinVertical(lipgloss.Left,
			m.renderMenu(),
			m.renderNotice(),
			helpStyle.Render("c продолжить, n новая игра, l загрузить, r отчет, v пройденные, w удалить все, x другая история, q выход"),
		)

	case stateSlotPrompt:
		s = m.renderSlots()

	case stateReport:
		s = m.report + "\n" + helpStyle.Render("Любая клавиша — назад")

	case stateError:
		s = fmt.Sprintf("\n  Ошибка: %v\n\nНажмите Esc для выхода.", m.err)
	}

	return "\n" + s + "\n"
}

func (m model) renderNotice() string {
	if m.notice == "" {
		return ""
	}
	return noticeStyle.Render(m.notice)
}

func (m model) renderChoices() string {
	var b strings.Builder
	for _, v := range m.engine.Choices() {
		line := fmt.Sprintf("%d. %s", v.Index+1, v.Choice.Text)
		if v.Choice.Hint != "" {
			line += helpStyle.Render("  (" + v.Choice.Hint + ")")
		}
		switch {
		case !v.Available:
			line = lockedStyle.Render(line + "  [" + v.Message + "]")
		case v.Visited && m.settings.SkipViewed:
			line = lockedStyle.Render(line + "  (пройдено)")
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (m model) renderState() string {
	if m.engine == nil {
		return ""
	}
	st := m.engine.Story()
	state := m.engine.State()

	location := titleStyle.Render("ИСТОРИЯ") + "\n" + st.Name + "\n\n"

	statsTitle := titleStyle.Render("ХАРАКТЕРИСТИКИ") + "\n"
	stats := ""
	for _, name := range st.StatNames() {
		stats += fmt.Sprintf("%s: %d\n", st.StatTitle(name), state.Stats[name])
	}
	var extra []string
	for name := range state.Stats {
		if !slices.Contains(st.StatNames(), name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		stats += fmt.Sprintf("%s: %d\n", name, state.Stats[name])
	}
	stats += "\n"

	invTitle := titleStyle.Render("ИНВЕНТАРЬ") + "\n"
	inventory := ""
	if len(state.Inventory) == 0 {
		inventory = "(пусто)\n"
	} else {
		cfg := m.engine.Config()
		for _, item := range state.Inventory {
			inventory += "- " + cfg.ItemName(item) + "\n"
		}
	}

	p := m.engine.Progress()
	progress := "\n" + titleStyle.Render("ПРОГРЕСС") + "\n" +
		fmt.Sprintf("%d%%\nСцены: %d/%d\nКонцовки: %d/%d\nДостижения: %d/%d\n",
			p.Total, p.Visited, p.TotalScenes, p.CompletedEndings, p.TotalEndings, p.Achievements, p.TotalAchievements)

	content := location + statsTitle + stats + invTitle + inventory + progress

	stateWidth := int(float64(m.width) * 0.27)
	return stateStyle.Width(stateWidth).Height(m.viewport.Height).Render(content)
}

func (m model) renderMenu() string {
	ctx := context.Background()
	st := m.engine.Story()
	var b strings.Builder
	b.WriteString(titleStyle.Render(st.Name) + "\n\n")

	b.WriteString(titleStyle.Render("КОНЦОВКИ") + "\n")
	state := m.engine.State()
	for _, id := range st.Endings() {
		scene := st.Scenes[id]
		if slices.Contains(state.CompletedEndings, id) {
			b.WriteString(banner(scene.Theme).UnsetMarginTop().Render(scene.Title) + "\n")
		} else {
			b.WriteString(lockedStyle.Render("???") + "\n")
		}
	}

	b.WriteString("\n" + titleStyle.Render("ДОСТИЖЕНИЯ") + "\n")
	mgr := m.engine.Saves()
	if mgr == nil {
		return b.String()
	}
	ledger, err := mgr.Achievements(ctx)
	if err != nil {
		b.WriteString(lockedStyle.Render("недоступно") + "\n")
		return b.String()
	}
	ids := make([]string, 0, len(ledger))
	for id := range ledger {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a := ledger[id]
		switch {
		case a.Unlocked:
			b.WriteString("★ " + a.Name + helpStyle.Render("  "+a.Description) + "\n")
		case a.Hidden:
			b.WriteString(lockedStyle.Render("☆ ???") + "\n")
		default:
			b.WriteString(lockedStyle.Render("☆ "+a.Name+"  "+a.Description) + "\n")
		}
	}
	stats := mgr.Stats(ctx)
	fmt.Fprintf(&b, "\nПолучено: %d/%d (%d%%)\n", stats.UnlockedAchievements, stats.TotalAchievements, stats.CompletionPercentage)
	return b.String()
}

func (m model) renderSlots() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.action.String()) + "\n\n")
	if mgr := m.engine.Saves(); mgr != nil {
		for _, info := range mgr.SlotsInfo(context.Background()) {
			if !info.Exists {
				fmt.Fprintf(&b, "  %d. (пусто)\n", info.Slot)
				continue
			}
			title := info.CurrentScene
			if scene, ok := m.engine.Story().Scene(info.CurrentScene); ok {
				title = scene.Title
			}
			fmt.Fprintf(&b, "  %d. %s — %s\n", info.Slot, title, info.Timestamp.Format("02.01.2006 15:04"))
		}
	}
	b.WriteString("\n" + helpStyle.Render(fmt.Sprintf("1-%d выбрать слот, Esc отмена", saves.Slots)))
	return b.String()
}

func (m model) buildReport() string {
	log := m.engine.History()
	mgr := m.engine.Saves()
	if log == nil || mgr == nil {
		return "История не ведется.\n"
	}
	return log.Report(mgr.Stats(context.Background()))
}

func (m model) renderLog() string {
	return m.gameLog
}

func (m model) loadStory(source string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		loader := m.opts.Loader
		if loader == nil {
			loader = story.NewLoader("", m.opts.Logger)
		}
		st, err := loader.Load(ctx, source)
		if err != nil {
			m.opts.Logger.Error("story load failed", zap.String("source", source), zap.Error(err))
			return errMsg{err}
		}
		cfg, err := loader.LoadGameConfig(ctx, "")
		if err != nil {
			m.opts.Logger.Warn("message tables unavailable", zap.Error(err))
			cfg = &models.GameConfig{}
		}
		eng := engine.Open(ctx, st, cfg, m.opts.Store, m.opts.Logger)
		origin, out, err := eng.Start(ctx, m.opts.Slot)
		if err != nil {
			return errMsg{err}
		}
		return storyLoadedMsg{
			engine:   eng,
			settings: eng.Saves().Settings(ctx),
			origin:   origin,
			outcome:  out,
		}
	}
}

// Run starts the player and blocks until it exits.
func Run(opts Options) error {
	p := tea.NewProgram(NewModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
