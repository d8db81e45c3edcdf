package story

import "github.com/tatianab/branching-tales/internal/models"

// DanglingRef is a choice whose target does not name a scene.
type DanglingRef struct {
	SceneID     string
	ChoiceIndex int
	Target      string
}

// Validate returns every dangling choice target, in scene id order. The menu
// sentinel is never dangling.
func Validate(st *models.Story) []DanglingRef {
	var refs []DanglingRef
	for _, id := range st.SceneIDs() {
		for i, choice := range st.Scenes[id].Choices {
			if choice.Next == models.MenuTarget {
				continue
			}
			if _, ok := st.Scenes[choice.Next]; !ok {
				refs = append(refs, DanglingRef{SceneID: id, ChoiceIndex: i, Target: choice.Next})
			}
		}
	}
	return refs
}
