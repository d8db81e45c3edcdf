// Package catalog keeps a personal list of watched movies, cartoons and series.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tatianab/branching-tales/internal/storage"
	"go.uber.org/zap"
)

// Categories.
const (
	Movies   = "movies"
	Cartoons = "cartoons"
	Series   = "series"
)

// Categories lists every category in display order.
var Categories = []string{Movies, Cartoons, Series}

// UserIDKey holds the generated id of the local user.
const UserIDKey = "movieCatalogUserId"

const dateLayout = "2006-01-02"

var (
	ErrInvalidFormat = errors.New("invalid catalog format")
	ErrValidation    = errors.New("invalid catalog item")
	ErrItemNotFound  = errors.New("catalog item not found")
)

// Item is one catalog entry.
type Item struct {
	ID      int64   `json:"id"`
	Title   string  `json:"title"`
	Type    string  `json:"type"`
	Rating  float64 `json:"rating"`
	Date    string  `json:"date"`
	Comment string  `json:"comment"`
	UserID  string  `json:"userId"`
}

// Data is the stored document: one list per category.
type Data struct {
	Movies   []Item `json:"movies"`
	Cartoons []Item `json:"cartoons"`
	Series   []Item `json:"series"`
}

func emptyData() Data {
	return Data{Movies: []Item{}, Cartoons: []Item{}, Series: []Item{}}
}

func (d *Data) list(category string) (*[]Item, error) {
	switch category {
	case Movies:
		return &d.Movies, nil
	case Cartoons:
		return &d.Cartoons, nil
	case Series:
		return &d.Series, nil
	}
	return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, category)
}

// Catalog is the list of one user.
type Catalog struct {
	store  storage.Store
	userID string
	logger *zap.Logger
	now    func() time.Time
	lastID int64
	data   Data
}

// UserID returns the local user id, generating and storing one on first use.
// The id is kept as a JSON string; an unreadable record is replaced.
func UserID(ctx context.Context, store storage.Store) (string, error) {
	var id string
	err := storage.GetJSON(ctx, store, UserIDKey, &id)
	if err == nil && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id), nil
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if err != nil && !errors.Is(err, storage.ErrNotFound) && !errors.As(err, &syntaxErr) && !errors.As(err, &typeErr) {
		return "", fmt.Errorf("read user id: %w", err)
	}
	id = "user_" + uuid.NewString()
	if err := storage.PutJSON(ctx, store, UserIDKey, id); err != nil {
		return "", fmt.Errorf("store user id: %w", err)
	}
	return id, nil
}

// Open loads the catalog of userID, or of the local user when userID is empty.
// An unreadable stored document is reported and replaced by an empty catalog.
func Open(ctx context.Context, store storage.Store, userID string, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if userID == "" {
		id, err := UserID(ctx, store)
		if err != nil {
			return nil, err
		}
		userID = id
	}
	c := &Catalog{
		store:  store,
		userID: userID,
		logger: logger.With(zap.String("user", userID)),
		now:    time.Now,
		data:   emptyData(),
	}
	err := storage.GetJSON(ctx, store, c.key(), &c.data)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		c.logger.Warn("catalog unreadable, starting empty", zap.Error(err))
		c.data = emptyData()
	}
	c.normalize()
	return c, nil
}

func (c *Catalog) key() string { return "movieCatalog_" + c.userID }

func (c *Catalog) UserID() string { return c.userID }

func (c *Catalog) normalize() {
	for _, category := range Categories {
		list, _ := c.data.list(category)
		if *list == nil {
			*list = []Item{}
		}
		for _, item := range *list {
			c.lastID = max(c.lastID, item.ID)
		}
	}
}

func (c *Catalog) save(ctx context.Context) error {
	if err := storage.PutJSON(ctx, c.store, c.key(), c.data); err != nil {
		c.logger.Error("catalog save failed", zap.Error(err))
		return fmt.Errorf("save catalog: %w", err)
	}
	return nil
}

// Validate checks the fields a user supplies.
func Validate(item Item) error {
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("%w: введите название", ErrValidation)
	}
	if !slices.Contains(Categories, item.Type) {
		return fmt.Errorf("%w: выберите тип", ErrValidation)
	}
	if math.IsNaN(item.Rating) || item.Rating < 0 || item.Rating > 10 {
		return fmt.Errorf("%w: оценка должна быть от 0 до 10", ErrValidation)
	}
	if item.Date != "" {
		if _, err := time.Parse(dateLayout, item.Date); err != nil {
			return fmt.Errorf("%w: дата должна быть в формате ГГГГ-ММ-ДД", ErrValidation)
		}
	}
	return nil
}

// Add validates item, assigns its id, owner and default date, and stores it.
func (c *Catalog) Add(ctx context.Context, item Item) (Item, error) {
	item.Title = strings.TrimSpace(item.Title)
	item.Comment = strings.TrimSpace(item.Comment)
	if err := Validate(item); err != nil {
		return Item{}, err
	}
	now := c.now()
	if item.Date == "" {
		item.Date = now.Format(dateLayout)
	}
	item.ID = max(now.UnixMilli(), c.lastID+1)
	item.UserID = c.userID

	list, _ := c.data.list(item.Type)
	prev := *list
	*list = append(slices.Clone(prev), item)
	if err := c.save(ctx); err != nil {
		*list = prev
		return Item{}, err
	}
	c.lastID = item.ID
	c.logger.Info("catalog item added", zap.Int64("id", item.ID), zap.String("type", item.Type))
	return item, nil
}

// Delete removes the item with id from category.
func (c *Catalog) Delete(ctx context.Context, category string, id int64) error {
	list, err := c.data.list(category)
	if err != nil {
		return err
	}
	prev := *list
	kept := slices.DeleteFunc(slices.Clone(prev), func(it Item) bool { return it.ID == id })
	if len(kept) == len(prev) {
		return fmt.Errorf("%w: %s/%d", ErrItemNotFound, category, id)
	}
	*list = kept
	if err := c.save(ctx); err != nil {
		*list = prev
		return err
	}
	return nil
}

// Items returns the items of category ordered by sortKey.
func (c *Catalog) Items(category, sortKey string) ([]Item, error) {
	list, err := c.data.list(category)
	if err != nil {
		return nil, err
	}
	items := slices.Clone(*list)
	Sort(items, sortKey)
	return items, nil
}

// Count returns the number of items per category.
func (c *Catalog) Count() map[string]int {
	return map[string]int{
		Movies:   len(c.data.Movies),
		Cartoons: len(c.data.Cartoons),
		Series:   len(c.data.Series),
	}
}

// Sort keys.
const (
	DateDesc   = "date-desc"
	DateAsc    = "date-asc"
	RatingDesc = "rating-desc"
	RatingAsc  = "rating-asc"
	TitleAsc   = "title-asc"
	TitleDesc  = "title-desc"
)

// SortKeys lists the accepted sort keys; the first is the default.
var SortKeys = []string{DateDesc, DateAsc, RatingDesc, RatingAsc, TitleAsc, TitleDesc}

// Sort orders items in place. An empty key means DateDesc; an unknown key
// keeps the stored order. Equal items keep their relative order.
func Sort(items []Item, key string) {
	if key == "" {
		key = DateDesc
	}
	var less func(a, b Item) bool
	switch key {
	case DateDesc:
		less = func(a, b Item) bool { return parseDate(a.Date).After(parseDate(b.Date)) }
	case DateAsc:
		less = func(a, b Item) bool { return parseDate(a.Date).Before(parseDate(b.Date)) }
	case RatingDesc:
		less = func(a, b Item) bool { return a.Rating > b.Rating }
	case RatingAsc:
		less = func(a, b Item) bool { return a.Rating < b.Rating }
	case TitleAsc:
		less = func(a, b Item) bool { return strings.ToLower(a.Title) < strings.ToLower(b.Title) }
	case TitleDesc:
		less = func(a, b Item) bool { return strings.ToLower(a.Title) > strings.ToLower(b.Title) }
	default:
		return
	}
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

// Export returns the catalog as indented JSON and the backup file name for today.
func (c *Catalog) Export() (filename string, data []byte, err error) {
	data, err = json.MarshalIndent(c.data, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("encode catalog: %w", err)
	}
	return "movie-catalog-backup-" + c.now().Format(dateLayout) + ".json", data, nil
}

// Import replaces the catalog with an exported document. The document must be
// an object carrying every category as an array; anything else is rejected
// with ErrInvalidFormat and the catalog is left as it was.
func (c *Catalog) Import(ctx context.Context, data []byte) error {
	imported, err := DecodeData(data)
	if err != nil {
		return err
	}
	prev := c.data
	c.data = imported
	if err := c.save(ctx); err != nil {
		c.data = prev
		return err
	}
	c.lastID = 0
	c.normalize()
	c.logger.Info("catalog imported",
		zap.Int("movies", len(imported.Movies)),
		zap.Int("cartoons", len(imported.Cartoons)),
		zap.Int("series", len(imported.Series)),
	)
	return nil
}

// DecodeData parses and shape-checks an exported catalog document.
func DecodeData(data []byte) (Data, error) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(data, &shape); err != nil || shape == nil {
		return Data{}, fmt.Errorf("%w: not a JSON object", ErrInvalidFormat)
	}
	for _, category := range Categories {
		raw := bytes.TrimSpace(shape[category])
		if len(raw) == 0 || raw[0] != '[' {
			return Data{}, fmt.Errorf("%w: %q must be an array", ErrInvalidFormat, category)
		}
	}
	var out Data
	if err := json.Unmarshal(data, &out); err != nil {
		return Data{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return out, nil
}
