// Package engine walks a story's scene graph, gating choices on the player's
// stats and inventory and persisting every transition.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/tatianab/branching-tales/internal/history"
	"github.com/tatianab/branching-tales/internal/models"
	"github.com/tatianab/branching-tales/internal/saves"
	"go.uber.org/zap"
)

var (
	ErrSceneNotFound    = errors.New("scene not found")
	ErrChoiceOutOfRange = errors.New("choice out of range")
	ErrAtMenu           = errors.New("engine is at the menu")
)

// Origin tells where Start found the state it resumed.
type Origin string

const (
	OriginNew      Origin = "new"
	OriginSlot     Origin = "slot"
	OriginAutosave Origin = "autosave"
	OriginProgress Origin = "progress"
)

// Options are the engine's optional collaborators. A nil Saves keeps the game
// in memory only; a nil History records nothing.
type Options struct {
	Config  *models.GameConfig
	Saves   *saves.Manager
	History *history.Log
	Logger  *zap.Logger
}

// Outcome describes the result of one engine operation.
type Outcome struct {
	Scene    *models.Scene
	Blocked  bool
	Messages []string
	Unlocked []string
	Ending   bool
	Theme    string
	AtMenu   bool
	Warnings []error
}

// Engine is the navigation state machine of one story. It is not safe for
// concurrent use.
type Engine struct {
	story   *models.Story
	rules   Rules
	saves   *saves.Manager
	history *history.Log
	logger  *zap.Logger

	state  models.PlayerState
	atMenu bool
}

// New returns an engine positioned at the start scene with a fresh state.
// Call Start to resume persisted progress instead.
func New(story *models.Story, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		story:   story,
		rules:   Rules{Story: story, Config: opts.Config},
		saves:   opts.Saves,
		history: opts.History,
		logger:  logger.With(zap.String("story", story.ID)),
	}
	e.state = e.freshState()
	return e
}

func (e *Engine) freshState() models.PlayerState {
	state := models.NewPlayerState(e.story.InitialStats())
	state.MarkVisited(models.StartScene)
	return state
}

// Start warm-starts the engine. A positive slot is tried first, then the
// autosave, then the last-progress record of this story; when none holds a
// usable record a new game begins. An unreadable slot is reported in the
// outcome warnings and never prevents the start.
func (e *Engine) Start(ctx context.Context, slot int) (Origin, Outcome, error) {
	var warnings []error
	origin, out, err := e.start(ctx, slot, &warnings)
	out.Warnings = append(warnings, out.Warnings...)
	return origin, out, err
}

func (e *Engine) start(ctx context.Context, slot int, warnings *[]error) (Origin, Outcome, error) {
	if e.saves != nil {
		if slot > 0 {
			rec, ok, err := e.saves.Load(ctx, slot)
			if err != nil {
				e.logger.Warn("slot unreadable, falling back", zap.Int("slot", slot), zap.Error(err))
				*warnings = append(*warnings, err)
			}
			if err == nil && ok && e.resume(rec, "slot") {
				return OriginSlot, e.current(), nil
			}
		}
		if rec, ok, err := e.saves.LoadAutosave(ctx); err == nil && ok && e.resume(rec, "autosave") {
			return OriginAutosave, e.current(), nil
		}
		if rec, ok, err := e.saves.LoadProgress(ctx); err == nil && ok && e.resume(rec, "progress") {
			return OriginProgress, e.current(), nil
		}
	}
	out, err := e.NewGame(ctx)
	return OriginNew, out, err
}

// resume adopts rec when its scene exists in the story.
func (e *Engine) resume(rec models.SaveRecord, source string) bool {
	if _, ok := e.story.Scene(rec.CurrentScene); !ok {
		e.logger.Warn("ignoring record at unknown scene",
			zap.String("source", source),
			zap.String("scene", rec.CurrentScene),
		)
		return false
	}
	state := rec.PlayerState.Clone()
	for name, v := range e.story.InitialStats() {
		if _, ok := state.Stats[name]; !ok {
			state.Stats[name] = v
		}
	}
	state.MarkVisited(state.CurrentScene)
	e.state = state
	e.atMenu = false
	e.logger.Info("resumed game", zap.String("source", source), zap.String("scene", state.CurrentScene))
	return true
}

// NewGame discards the current playthrough and starts over. The achievement
// ledger is kept.
func (e *Engine) NewGame(ctx context.Context) (Outcome, error) {
	e.state = e.freshState()
	e.atMenu = false

	out := e.current()
	out.Unlocked = e.unlock(ctx, &out, StartAchievements(e.story)...)
	e.persist(ctx, &out)
	e.logger.Info("new game")
	return out, nil
}

func (e *Engine) current() Outcome {
	scene, _ := e.story.Scene(e.state.CurrentScene)
	out := Outcome{Scene: scene, AtMenu: e.atMenu}
	if scene != nil {
		out.Ending = scene.Ending
		out.Theme = scene.Theme
	}
	return out
}

// Choose takes the choice at index idx of the current scene. An unmet
// requirement leaves the state unchanged and reports Blocked with the gating
// message; an unknown target returns ErrSceneNotFound, also without change.
func (e *Engine) Choose(ctx context.Context, idx int) (Outcome, error) {
	if e.atMenu {
		return Outcome{AtMenu: true}, ErrAtMenu
	}
	from, ok := e.story.Scene(e.state.CurrentScene)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrSceneNotFound, e.state.CurrentScene)
	}
	if idx < 0 || idx >= len(from.Choices) {
		return e.current(), fmt.Errorf("%w: %d of %d", ErrChoiceOutOfRange, idx, len(from.Choices))
	}
	choice := from.Choices[idx]

	if ok, msg := e.rules.Gate(e.state, choice); !ok {
		out := e.current()
		out.Blocked = true
		out.Messages = []string{msg}
		return out, nil
	}

	if choice.Next == models.MenuTarget {
		return e.chooseMenu(ctx, from, idx, choice), nil
	}
	to, ok := e.story.Scene(choice.Next)
	if !ok {
		e.logger.Error("choice leads to unknown scene",
			zap.String("scene", from.ID),
			zap.Int("choice", idx),
			zap.String("target", choice.Next),
		)
		return e.current(), fmt.Errorf("%w: %q", ErrSceneNotFound, choice.Next)
	}
	if from.Ending && choice.Next == models.StartScene {
		e.record(ctx, from, choice)
		return e.NewGame(ctx)
	}

	next := e.state.Clone()
	next.PlayerChoices[from.ID] = idx
	messages := e.rules.Apply(&next, choice.Effects)
	next.CurrentScene = to.ID
	next.MarkVisited(to.ID)
	next.Theme = to.Theme
	e.state = next

	out := e.current()
	out.Messages = messages
	e.record(ctx, from, choice)

	earned := EarnedAchievements(e.story, e.state.Stats)
	if to.Ending {
		e.state.MarkEnding(to.ID)
		if to.Achievement != "" {
			earned = append(earned, to.Achievement)
		}
		if e.history != nil {
			if err := e.history.AddEnding(ctx, to.ID); err != nil {
				out.Warnings = append(out.Warnings, err)
			}
		}
		e.logger.Info("ending reached", zap.String("scene", to.ID), zap.String("theme", to.Theme))
	}
	out.Unlocked = e.unlock(ctx, &out, earned...)
	e.persist(ctx, &out)
	return out, nil
}

func (e *Engine) chooseMenu(ctx context.Context, from *models.Scene, idx int, choice models.Choice) Outcome {
	e.state.PlayerChoices[from.ID] = idx
	messages := e.rules.Apply(&e.state, choice.Effects)
	e.record(ctx, from, choice)
	e.atMenu = true

	out := e.current()
	out.Messages = messages
	out.Unlocked = e.unlock(ctx, &out, EarnedAchievements(e.story, e.state.Stats)...)
	e.persist(ctx, &out)
	return out
}

// unlock adds ids to the state and the ledger and returns the ids to notify:
// those new to the ledger, or new to the state when nothing is persisted.
func (e *Engine) unlock(ctx context.Context, out *Outcome, ids ...string) []string {
	var fresh []string
	for _, id := range ids {
		if e.state.AddAchievement(id) {
			fresh = append(fresh, id)
		}
	}
	if e.saves == nil || len(ids) == 0 {
		return fresh
	}
	unlocked, err := e.saves.Unlock(ctx, ids...)
	if err != nil {
		out.Warnings = append(out.Warnings, err)
		return fresh
	}
	return unlocked
}

func (e *Engine) record(ctx context.Context, from *models.Scene, choice models.Choice) {
	if e.history == nil {
		return
	}
	err := e.history.Add(ctx, history.Entry{
		SceneID:    from.ID,
		SceneTitle: from.Title,
		ChoiceText: choice.Text,
		Stats:      e.state.Stats,
	})
	if err != nil {
		e.logger.Warn("history entry not saved", zap.Error(err))
	}
}

// persist writes the autosave and last-progress records. Failures are
// reported on out and never undo the transition.
func (e *Engine) persist(ctx context.Context, out *Outcome) {
	if e.saves == nil {
		return
	}
	if err := e.saves.Autosave(ctx, e.state); err != nil {
		out.Warnings = append(out.Warnings, err)
	}
	if err := e.saves.SaveProgress(ctx, e.state); err != nil {
		out.Warnings = append(out.Warnings, err)
	}
}

// ReturnToMenu leaves the story for the menu, keeping the position.
func (e *Engine) ReturnToMenu(ctx context.Context) Outcome {
	e.atMenu = true
	out := e.current()
	e.persist(ctx, &out)
	return out
}

// Resume returns from the menu to the current scene.
func (e *Engine) Resume() Outcome {
	e.atMenu = false
	return e.current()
}

// Save writes the current state to a numbered slot.
func (e *Engine) Save(ctx context.Context, slot int) (models.SaveRecord, error) {
	if e.saves == nil {
		return models.SaveRecord{}, errors.New("no save storage configured")
	}
	return e.saves.Save(ctx, slot, e.state)
}

// LoadSlot replaces the current state with a numbered slot. ok is false when
// the slot is empty or points at a scene the story does not have.
func (e *Engine) LoadSlot(ctx context.Context, slot int) (bool, error) {
	if e.saves == nil {
		return false, errors.New("no save storage configured")
	}
	rec, ok, err := e.saves.Load(ctx, slot)
	if err != nil || !ok {
		return false, err
	}
	if !e.resume(rec, "slot") {
		return false, fmt.Errorf("%w: %q", ErrSceneNotFound, rec.CurrentScene)
	}
	return true, nil
}

// DeleteSlot empties a numbered slot.
func (e *Engine) DeleteSlot(ctx context.Context, slot int) error {
	if e.saves == nil {
		return errors.New("no save storage configured")
	}
	return e.saves.Delete(ctx, slot)
}

func (e *Engine) Story() *models.Story { return e.story }

// Config returns the message tables, nil when none were given.
func (e *Engine) Config() *models.GameConfig { return e.rules.Config }

// State returns a copy of the player state.
func (e *Engine) State() models.PlayerState { return e.state.Clone() }

// Scene returns the current scene.
func (e *Engine) Scene() *models.Scene {
	scene, _ := e.story.Scene(e.state.CurrentScene)
	return scene
}

func (e *Engine) AtMenu() bool { return e.atMenu }

// Saves returns the persistence manager, nil when the game is in memory only.
func (e *Engine) Saves() *saves.Manager { return e.saves }

// History returns the play history, nil when none is recorded.
func (e *Engine) History() *history.Log { return e.history }

// ChoiceView is a choice of the current scene as the player sees it.
type ChoiceView struct {
	Index     int
	Choice    models.Choice
	Available bool
	Message   string
	Visited   bool
}

// Choices evaluates every choice of the current scene.
func (e *Engine) Choices() []ChoiceView {
	scene := e.Scene()
	if scene == nil {
		return nil
	}
	views := make([]ChoiceView, 0, len(scene.Choices))
	for i, c := range scene.Choices {
		ok, msg := e.rules.Gate(e.state, c)
		views = append(views, ChoiceView{
			Index:     i,
			Choice:    c,
			Available: ok,
			Message:   msg,
			Visited:   c.Next != models.MenuTarget && e.state.Visited(c.Next),
		})
	}
	return views
}

// AchievementName returns the display name of an achievement.
func (e *Engine) AchievementName(id string) string {
	if def, ok := e.story.Achievements[id]; ok && def.Name != "" {
		return def.Name
	}
	return id
}

// Progress reports how much of the story the current playthrough has seen.
func (e *Engine) Progress() models.Progress {
	p := models.Progress{
		TotalScenes:       len(e.story.Scenes),
		TotalEndings:      len(e.story.Endings()),
		TotalAchievements: len(e.story.AchievementIDs()),
	}
	for _, id := range e.state.VisitedScenes {
		if _, ok := e.story.Scenes[id]; ok {
			p.Visited++
		}
	}
	for _, id := range e.state.CompletedEndings {
		if scene, ok := e.story.Scenes[id]; ok && scene.Ending {
			p.CompletedEndings++
		}
	}
	ids := e.story.AchievementIDs()
	for _, id := range e.state.Achievements {
		if slices.Contains(ids, id) {
			p.Achievements++
		}
	}

	var sum float64
	terms := 0
	for _, pair := range [][2]int{
		{p.Visited, p.TotalScenes},
		{p.CompletedEndings, p.TotalEndings},
		{p.Achievements, p.TotalAchievements},
	} {
		if pair[1] == 0 {
			continue
		}
		sum += float64(pair[0]) / float64(pair[1]) * 100
		terms++
	}
	if terms > 0 {
		p.Total = int(math.Round(sum / float64(terms)))
	}
	return p
}
