// Package story loads scene graphs and message tables and validates their
// references.
package story

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tatianab/branching-tales/internal/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// NameKey is the reserved top-level key of a JSON scene document.
const NameKey = "storyName"

// GameConfigName is the embedded message table document.
const GameConfigName = "gameconfig.json"

const maxDocumentSize = 8 << 20

//go:embed stories/*
var embedded embed.FS

// LoadError reports a story or message table that could not be obtained or parsed.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader obtains stories from the embedded set, a directory, or HTTP(S) URLs.
type Loader struct {
	Dir    string
	Client *http.Client
	Logger *zap.Logger
}

// NewLoader returns a loader that also searches dir when it is non-empty.
func NewLoader(dir string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		Dir:    dir,
		Client: &http.Client{Timeout: 15 * time.Second},
		Logger: logger,
	}
}

// Load resolves source to a story and validates it. Dangling references are
// logged and the story is returned as-is.
func (l *Loader) Load(ctx context.Context, source string) (*models.Story, error) {
	data, name, err := l.read(ctx, source)
	if err != nil {
		l.logger().Error("story unavailable", zap.String("source", source), zap.Error(err))
		return nil, &LoadError{Source: source, Err: err}
	}

	var st *models.Story
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		st, err = DecodeManifest(data)
	default:
		st, err = DecodeDocument(data)
	}
	if err != nil {
		l.logger().Error("story malformed", zap.String("source", source), zap.Error(err))
		return nil, &LoadError{Source: source, Err: err}
	}
	if st.ID == "" {
		st.ID = storyID(name)
	}

	refs := Validate(st)
	for _, ref := range refs {
		l.logger().Warn("dangling scene reference",
			zap.String("story", st.ID),
			zap.String("scene", ref.SceneID),
			zap.Int("choice", ref.ChoiceIndex+1),
			zap.String("target", ref.Target))
	}
	l.logger().Info("story loaded",
		zap.String("story", st.ID),
		zap.String("name", st.Name),
		zap.Int("scenes", len(st.Scenes)),
		zap.Int("dangling", len(refs)))
	return st, nil
}

// LoadGameConfig reads the effect and condition message tables. An empty source
// selects the embedded tables.
func (l *Loader) LoadGameConfig(ctx context.Context, source string) (*models.GameConfig, error) {
	if source == "" {
		source = GameConfigName
	}
	data, _, err := l.read(ctx, source)
	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	var cfg models.GameConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &LoadError{Source: source, Err: fmt.Errorf("decode message tables: %w", err)}
	}
	if cfg.EffectMessages == nil {
		cfg.EffectMessages = map[string]models.ItemMessage{}
	}
	if cfg.ConditionMessages == nil {
		cfg.ConditionMessages = map[string]string{}
	}
	if cfg.ItemDisplayNames == nil {
		cfg.ItemDisplayNames = map[string]string{}
	}
	return &cfg, nil
}

// Available lists the ids of every story the loader can resolve without a URL.
func (l *Loader) Available() []string {
	seen := map[string]bool{}
	add := func(name string) {
		if isStoryFile(name) {
			seen[storyID(name)] = true
		}
	}
	if entries, err := fs.ReadDir(embedded, "stories"); err == nil {
		for _, e := range entries {
			add(e.Name())
		}
	}
	if l.Dir != "" {
		if entries, err := os.ReadDir(l.Dir); err == nil {
			for _, e := range entries {
				if !e.IsDir() {
					add(e.Name())
				}
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l *Loader) read(ctx context.Context, source string) ([]byte, string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err := l.fetch(ctx, source)
		return data, source, err
	}

	if strings.ContainsAny(source, `/\`) {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, source, fmt.Errorf("read story file: %w", err)
		}
		return data, source, nil
	}

	for _, name := range candidates(source) {
		if l.Dir != "" {
			data, err := os.ReadFile(filepath.Join(l.Dir, name))
			if err == nil {
				return data, name, nil
			}
		}
		data, err := fs.ReadFile(embedded, "stories/"+name)
		if err == nil {
			return data, name, nil
		}
	}

	return nil, source, fmt.Errorf("story %q not found", source)
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
}

func (l *Loader) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// candidates returns the file names a bare story id may be stored under.
func candidates(source string) []string {
	if isStoryFile(source) || source == GameConfigName {
		return []string{source}
	}
	return []string{source + ".yaml", source + ".yml", source + ".json"}
}

func isStoryFile(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		return true
	case ".json":
		return path.Base(name) != GameConfigName
	}
	return false
}

func storyID(name string) string {
	base := path.Base(filepath.ToSlash(name))
	return strings.TrimSuffix(base, path.Ext(base))
}

// DecodeDocument parses a JSON scene document: a map from scene id to scene,
// plus the reserved story name key.
func DecodeDocument(data []byte) (*models.Story, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode scene document: %w", err)
	}

	st := &models.Story{Scenes: make(map[string]*models.Scene, len(raw))}
	if name, ok := raw[NameKey]; ok {
		if err := json.Unmarshal(name, &st.Name); err != nil {
			return nil, fmt.Errorf("decode %s: %w", NameKey, err)
		}
		delete(raw, NameKey)
	}
	for id, body := range raw {
		var scene models.Scene
		if err := json.Unmarshal(body, &scene); err != nil {
			return nil, fmt.Errorf("decode scene %q: %w", id, err)
		}
		scene.ID = id
		st.Scenes[id] = &scene
	}
	if len(st.Scenes) == 0 {
		return nil, fmt.Errorf("scene document has no scenes")
	}
	return st, nil
}

// DecodeManifest parses a YAML story manifest with stats, achievements and scenes.
func DecodeManifest(data []byte) (*models.Story, error) {
	var st models.Story
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode story manifest: %w", err)
	}
	if len(st.Scenes) == 0 {
		return nil, fmt.Errorf("story manifest has no scenes")
	}
	for id, scene := range st.Scenes {
		if scene == nil {
			return nil, fmt.Errorf("scene %q is empty", id)
		}
		scene.ID = id
	}
	return &st, nil
}
