package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"strings"

	"github.com/tatianab/branching-tales/internal/engine"
	"github.com/tatianab/branching-tales/internal/models"
	"github.com/tatianab/branching-tales/internal/storage"
	"github.com/tatianab/branching-tales/internal/story"
)

func main() {
	storyID := flag.String("story", "samurai", "story id, file path or URL")
	maxTurns := flag.Int("turns", 30, "turn limit")
	seed := flag.Uint64("seed", 1, "random seed for the player")
	historyOut := flag.String("history", "", "write the play history as JSON to this file")
	flag.Parse()

	ctx := context.Background()
	loader := story.NewLoader("", nil)
	st, err := loader.Load(ctx, *storyID)
	if err != nil {
		log.Fatalf("Failed to load story: %v", err)
	}
	cfg, err := loader.LoadGameConfig(ctx, "")
	if err != nil {
		log.Fatalf("Failed to load message tables: %v", err)
	}
	for _, ref := range story.Validate(st) {
		fmt.Printf("WARNING: %s choice %d leads to missing scene %q\n", ref.SceneID, ref.ChoiceIndex, ref.Target)
	}

	store := storage.NewMemoryStore()
	eng := engine.Open(ctx, st, cfg, store, nil)
	if _, err := eng.NewGame(ctx); err != nil {
		log.Fatalf("Failed to start game: %v", err)
	}
	player := rand.New(rand.NewPCG(*seed, *seed))

	fmt.Printf("--- %s ---\n", st.Name)
	fmt.Printf("Start: %s\n\n", eng.Scene().Title)

	for turn := 1; turn <= *maxTurns; turn++ {
		fmt.Printf("--- Turn %d: %s ---\n", turn, eng.Scene().Title)

		idx, ok := pickChoice(player, eng.Choices())
		if !ok {
			fmt.Println("No available choices, stopping.")
			break
		}
		choice := eng.Scene().Choices[idx]
		fmt.Printf("Player Action: %s\n", choice.Text)

		out, err := eng.Choose(ctx, idx)
		if err != nil {
			fmt.Printf("Error processing turn: %v\n", err)
			break
		}
		for _, msg := range out.Messages {
			fmt.Printf("Effect: %s\n", msg)
		}
		for _, id := range out.Unlocked {
			fmt.Printf("ACHIEVEMENT: %s\n", eng.AchievementName(id))
		}
		for _, w := range out.Warnings {
			fmt.Printf("Warning: %v\n", w)
		}
		fmt.Printf("Stats: %s Inventory=%v\n\n", formatStats(st, eng.State().Stats), eng.State().Inventory)

		if out.AtMenu {
			fmt.Println("Game Ended: returned to menu.")
			break
		}
		if out.Ending {
			fmt.Printf("Game Ended: %s (%s)\n", out.Scene.Title, out.Theme)
			break
		}
	}

	p := eng.Progress()
	fmt.Printf("\nProgress: %d%% (scenes %d/%d, endings %d/%d, achievements %d/%d)\n",
		p.Total, p.Visited, p.TotalScenes, p.CompletedEndings, p.TotalEndings, p.Achievements, p.TotalAchievements)
	fmt.Println()
	fmt.Print(eng.History().Report(eng.Saves().Stats(ctx)))

	if *historyOut != "" {
		data, err := eng.History().Export()
		if err != nil {
			log.Fatalf("Failed to export history: %v", err)
		}
		if err := os.WriteFile(*historyOut, data, 0o644); err != nil {
			log.Fatalf("Failed to write history: %v", err)
		}
		fmt.Printf("History written to %s\n", *historyOut)
	}
}

// pickChoice picks uniformly among available choices that do not leave for the
// menu, falling back to the menu when it is the only way out.
func pickChoice(r *rand.Rand, views []engine.ChoiceView) (int, bool) {
	var open, menu []int
	for _, v := range views {
		if !v.Available {
			continue
		}
		if v.Choice.Next == models.MenuTarget {
			menu = append(menu, v.Index)
			continue
		}
		open = append(open, v.Index)
	}
	if len(open) == 0 {
		open = menu
	}
	if len(open) == 0 {
		return 0, false
	}
	return open[r.IntN(len(open))], true
}

func formatStats(st *models.Story, stats models.Stats) string {
	parts := make([]string, 0, len(stats))
	for _, name := range st.StatNames() {
		parts = append(parts, fmt.Sprintf("%s=%d", st.StatTitle(name), stats[name]))
	}
	return strings.Join(parts, ", ")
}
