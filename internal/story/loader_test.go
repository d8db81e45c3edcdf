package story

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tatianab/branching-tales/internal/models"
)

func TestLoadEmbeddedManifest(t *testing.T) {
	st, err := NewLoader("", nil).Load(context.Background(), "samurai")
	require.NoError(t, err)

	assert.Equal(t, "samurai", st.ID)
	assert.Equal(t, "Путь Самурая", st.Name)
	assert.Len(t, st.Scenes, 23)
	assert.Empty(t, Validate(st))
	assert.Equal(t, []string{"honor", "wisdom", "strength", "charm", "karma"}, st.StatNames())
	assert.Equal(t, models.StatRule{Min: -100, Max: 100}, st.StatRule("karma"))

	start, ok := st.Scene("start")
	require.True(t, ok)
	assert.Equal(t, "start", start.ID)
	require.Len(t, start.Choices, 3)
	require.Len(t, start.Choices[0].Effects, 1)
	assert.Equal(t, map[string]int{"honor": 10, "strength": 5, "karma": -5}, start.Choices[0].Effects[0].Deltas)

	assert.ElementsMatch(t, []string{"honorable_end", "wise_ruler_end", "dark_lord_end"}, st.Endings())
}

func TestLoadEmbeddedDocument(t *testing.T) {
	st, err := NewLoader("", nil).Load(context.Background(), "lighthouse")
	require.NoError(t, err)

	assert.Equal(t, "Маяк на краю света", st.Name)
	_, hasName := st.Scene(NameKey)
	assert.False(t, hasName, "reserved key must not become a scene")
	assert.Len(t, st.Scenes, 12)
	assert.Empty(t, Validate(st))

	house, _ := st.Scene("keeper_house")
	assert.Equal(t, models.Effects{{Tag: "add_key"}, {Tag: "add_map"}}, house.Choices[0].Effects)
	assert.Equal(t, models.Tags{"lamp"}, house.Choices[1].Condition)
}

func TestValidateReportsDanglingTargets(t *testing.T) {
	doc := []byte(`{
		"storyName": "broken",
		"start": {"title": "s", "text": "t", "choices": [
			{"text": "ok", "next": "b"},
			{"text": "missing", "next": "nowhere"},
			{"text": "menu", "next": "menu"}
		]},
		"b": {"title": "b", "text": "t", "choices": [{"text": "back", "next": "gone"}]}
	}`)
	st, err := DecodeDocument(doc)
	require.NoError(t, err)

	refs := Validate(st)
	assert.Equal(t, []DanglingRef{
		{SceneID: "b", ChoiceIndex: 0, Target: "gone"},
		{SceneID: "start", ChoiceIndex: 1, Target: "nowhere"},
	}, refs)
}

func TestLoadFromDirectoryKeepsDanglingGraph(t *testing.T) {
	dir := t.TempDir()
	doc := `{"storyName": "Локальная", "start": {"title": "s", "text": "t", "choices": [{"text": "x", "next": "void"}]}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "local.json"), []byte(doc), 0644))

	l := NewLoader(dir, nil)
	st, err := l.Load(context.Background(), "local")
	require.NoError(t, err)
	assert.Equal(t, "local", st.ID)
	assert.Len(t, Validate(st), 1)

	assert.Contains(t, l.Available(), "local")
	assert.Contains(t, l.Available(), "samurai")
	assert.NotContains(t, l.Available(), "gameconfig")
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"start": `), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.json"), []byte(`{"storyName": "x"}`), 0644))

	l := NewLoader(dir, nil)
	for _, source := range []string{"bad", "empty", "missing", filepath.Join(dir, "nope.json")} {
		t.Run(source, func(t *testing.T) {
			_, err := l.Load(context.Background(), source)
			var loadErr *LoadError
			require.True(t, errors.As(err, &loadErr), "got %v", err)
			assert.Equal(t, source, loadErr.Source)
		})
	}
}

func TestLoadOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stories/remote.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"storyName": "Удаленная", "start": {"title": "s", "text": "t", "choices": []}}`))
	}))
	defer srv.Close()

	l := NewLoader("", nil)
	st, err := l.Load(context.Background(), srv.URL+"/stories/remote.json")
	require.NoError(t, err)
	assert.Equal(t, "remote", st.ID)
	assert.Equal(t, "Удаленная", st.Name)

	_, err = l.Load(context.Background(), srv.URL+"/stories/other.json")
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestLoadGameConfig(t *testing.T) {
	cfg, err := NewLoader("", nil).LoadGameConfig(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, models.ItemMessage{Item: "key", Message: "Вы взяли ржавый ключ"}, cfg.EffectMessages["add_key"])
	assert.Equal(t, "Дверь заперта. Нужен ключ.", cfg.ConditionMessages["key"])
	assert.Equal(t, "Ржавый ключ", cfg.ItemName("key"))
	assert.Equal(t, "unknown", cfg.ItemName("unknown"))
}

func TestLoadGameConfigMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "msgs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"effectMessages": {"add_key": ["only one"]}}`), 0644))

	_, err := NewLoader("", nil).LoadGameConfig(context.Background(), path)
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}
