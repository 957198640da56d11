// Package recipe suggests a dish that uses up the food closest to expiry.
//
// A suggestion is requested from the language model when one is configured
// and falls back to a local template otherwise. The result is saved, its
// opening is spoken aloud and the full text is published to the UI.
package recipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/MrWong99/larder/internal/inventory"
	"github.com/MrWong99/larder/internal/speech"
	"github.com/MrWong99/larder/pkg/provider/llm"
)

// Defaults for a Suggester.
const (
	DefaultMaxIngredients = 8
	DefaultSummaryLength  = 200
)

// Suggestion sources.
const (
	SourceLLM   = "llm"
	SourceLocal = "local"
)

// ErrNoIngredients is returned by Suggest when the inventory is empty.
var ErrNoIngredients = errors.New("recipe: inventory is empty")

// ErrNoSuggestion is returned by Last before any suggestion was saved.
var ErrNoSuggestion = errors.New("recipe: no saved suggestion")

const promptTemplate = "请基于以下食材（%s）生成一个优先使用这些食材的菜谱，要求输出：菜名、步骤、用时、难度、替代材料。"

const systemPrompt = "You are a helpful home cook. Answer in the language of the request, in plain text without markdown."

// Suggestion is one recipe recommendation.
type Suggestion struct {
	Ingredients []string  `json:"ingredients"`
	Text        string    `json:"text"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

// Speaker speaks an announcement.
type Speaker interface {
	Say(ctx context.Context, text string) error
}

// Publisher shows a suggestion. The UI hub implements it.
type Publisher interface {
	PublishRecipe(s Suggestion)
}

// Config configures a Suggester.
type Config struct {
	// Path is where the last suggestion is saved as JSON. Empty disables
	// saving.
	Path string

	// MaxIngredients bounds the items sent to the model. Defaults to
	// DefaultMaxIngredients.
	MaxIngredients int

	// SummaryLength is how many characters are spoken. Defaults to
	// DefaultSummaryLength.
	SummaryLength int
}

// Option configures a Suggester.
type Option func(*Suggester)

// WithLLM enables model-written recipes.
func WithLLM(p llm.Provider) Option {
	return func(s *Suggester) { s.llm = p }
}

// WithSpeaker speaks the opening of each suggestion.
func WithSpeaker(sp Speaker) Option {
	return func(s *Suggester) { s.speaker = sp }
}

// WithPublisher publishes each suggestion.
func WithPublisher(p Publisher) Option {
	return func(s *Suggester) { s.publisher = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Suggester) { s.now = now }
}

// Suggester produces recipe suggestions from the inventory.
type Suggester struct {
	store     inventory.Store
	fs        afero.Fs
	cfg       Config
	llm       llm.Provider
	speaker   Speaker
	publisher Publisher
	now       func() time.Time
}

// New returns a Suggester reading from store and saving to fsys.
func New(store inventory.Store, fsys afero.Fs, cfg Config, opts ...Option) (*Suggester, error) {
	if store == nil {
		return nil, errors.New("recipe: store must not be nil")
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if cfg.MaxIngredients <= 0 {
		cfg.MaxIngredients = DefaultMaxIngredients
	}
	if cfg.SummaryLength <= 0 {
		cfg.SummaryLength = DefaultSummaryLength
	}
	s := &Suggester{store: store, fs: fsys, cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Suggest builds a suggestion from the items nearest expiry, saves it and
// returns it. It neither speaks nor publishes.
func (s *Suggester) Suggest(ctx context.Context) (Suggestion, error) {
	items, err := s.store.List(ctx)
	if err != nil {
		return Suggestion{}, fmt.Errorf("recipe: list inventory: %w", err)
	}
	if len(items) == 0 {
		return Suggestion{}, ErrNoIngredients
	}
	names := ingredientNames(items, s.cfg.MaxIngredients)

	sg := Suggestion{Ingredients: names, CreatedAt: s.now()}
	if s.llm != nil {
		text, err := s.ask(ctx, names)
		if err == nil {
			sg.Text, sg.Source = text, SourceLLM
		} else if ctx.Err() != nil {
			return Suggestion{}, ctx.Err()
		} else {
			slog.Warn("recipe: model request failed, using local template", "err", err)
		}
	}
	if sg.Text == "" {
		sg.Text, sg.Source = LocalRecipe(names), SourceLocal
	}

	if err := s.save(sg); err != nil {
		slog.Warn("recipe: save suggestion", "path", s.cfg.Path, "err", err)
	}
	return sg, nil
}

// Recommend runs Suggest, speaks the opening of the suggestion and publishes
// it. An empty inventory is announced rather than returned as an error. It is
// the voice command's background action.
func (s *Suggester) Recommend(ctx context.Context) error {
	sg, err := s.Suggest(ctx)
	if errors.Is(err, ErrNoIngredients) {
		if s.speaker != nil {
			return s.speaker.Say(ctx, "冰箱里还没有食材")
		}
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("recipe: suggestion ready", "source", sg.Source, "ingredients", len(sg.Ingredients))

	if s.publisher != nil {
		s.publisher.PublishRecipe(sg)
	}
	if s.speaker != nil {
		if err := s.speaker.Say(ctx, speech.Truncate(sg.Text, s.cfg.SummaryLength)); err != nil {
			return fmt.Errorf("recipe: speak: %w", err)
		}
	}
	return nil
}

// Last returns the most recently saved suggestion.
func (s *Suggester) Last() (Suggestion, error) {
	if s.cfg.Path == "" {
		return Suggestion{}, ErrNoSuggestion
	}
	data, err := afero.ReadFile(s.fs, s.cfg.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Suggestion{}, ErrNoSuggestion
	}
	if err != nil {
		return Suggestion{}, fmt.Errorf("recipe: read %s: %w", s.cfg.Path, err)
	}
	var sg Suggestion
	if err := json.Unmarshal(data, &sg); err != nil {
		return Suggestion{}, fmt.Errorf("recipe: decode %s: %w", s.cfg.Path, err)
	}
	return sg, nil
}

func (s *Suggester) ask(ctx context.Context, names []string) (string, error) {
	req := llm.UserPrompt(systemPrompt, fmt.Sprintf(promptTemplate, strings.Join(names, "、")))
	req.Temperature = 0.7
	resp, err := s.llm.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}

func (s *Suggester) save(sg Suggestion) error {
	if s.cfg.Path == "" {
		return nil
	}
	data, err := json.MarshalIndent(sg, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.cfg.Path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return afero.WriteFile(s.fs, s.cfg.Path, data, 0o644)
}

// ingredientNames returns up to limit distinct names, nearest expiry first.
// items must already be sorted by expiry.
func ingredientNames(items []inventory.Item, limit int) []string {
	seen := make(map[string]bool, len(items))
	names := make([]string, 0, min(limit, len(items)))
	for _, it := range items {
		if len(names) == limit {
			break
		}
		if seen[it.Name] {
			continue
		}
		seen[it.Name] = true
		names = append(names, it.Name)
	}
	return names
}

// LocalRecipe is the offline suggestion template.
func LocalRecipe(names []string) string {
	var b strings.Builder
	b.WriteString("建议：以下是基于临近过期食材的简单做法。\n")
	b.WriteString("食材：")
	b.WriteString(strings.Join(names, "、"))
	b.WriteString("。\n做法：\n1. 将食材清洗切好；\n2. 快速翻炒或煮汤，加入常用调味即可。\n预计用时：30 分钟。\n")
	return b.String()
}
