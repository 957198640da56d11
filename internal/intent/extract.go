package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/MrWong99/larder/internal/inventory"
	"github.com/MrWong99/larder/pkg/provider/llm"
)

const defaultTemperature = 0.1

// ErrNoJSON is returned when a model reply contains no JSON object.
var ErrNoJSON = errors.New("intent: no JSON object in model reply")

const addPromptTemplate = `You are a refrigerator inventory assistant. The user is putting food away.

Extract from the user's sentence: name, category, quantity, unit, expiry_date (YYYY-MM-DD), shelf_life_days (integer), location.
Today is %s. Leave out fields that were not mentioned.

Respond with ONLY a JSON object, for example:
{"name":"牛奶","category":"乳制品","quantity":2,"unit":"盒","expiry_date":"2026-03-08","location":"冷藏上层"}`

const removePrompt = `You are a refrigerator inventory assistant. The user is taking food out.

Extract from the user's sentence: name, quantity.

Respond with ONLY a JSON object, for example:
{"name":"苹果","quantity":2}`

// number accepts a JSON number or a numeric string; models produce both.
type number int

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Units in the value ("2盒") are not worth failing the whole reply.
		*n = 0
		return nil
	}
	*n = number(f)
	return nil
}

type addReply struct {
	Name          string `json:"name"`
	Category      string `json:"category"`
	Quantity      number `json:"quantity"`
	Unit          string `json:"unit"`
	ExpiryDate    string `json:"expiry_date"`
	ShelfLifeDays number `json:"shelf_life_days"`
	Location      string `json:"location"`
}

type removeReply struct {
	Name     string `json:"name"`
	Quantity number `json:"quantity"`
}

// Extractor asks an [llm.Provider] to turn an utterance into structured item
// data. It is safe for concurrent use.
type Extractor struct {
	llm         llm.Provider
	temperature float64
}

// NewExtractor returns an Extractor backed by provider.
func NewExtractor(provider llm.Provider) *Extractor {
	return &Extractor{llm: provider, temperature: defaultTemperature}
}

// ExtractAdd returns the item described by text. An expiry date is parsed in
// now's location. The returned item may have an empty name when the model
// could not find one.
func (e *Extractor) ExtractAdd(ctx context.Context, text string, now time.Time) (inventory.Item, error) {
	var r addReply
	if err := e.complete(ctx, fmt.Sprintf(addPromptTemplate, now.Format(time.DateOnly)), text, &r); err != nil {
		return inventory.Item{}, err
	}
	it := inventory.Item{
		Name:          strings.TrimSpace(r.Name),
		Category:      strings.TrimSpace(r.Category),
		Quantity:      max(int(r.Quantity), 1),
		Unit:          strings.TrimSpace(r.Unit),
		Location:      strings.TrimSpace(r.Location),
		ShelfLifeDays: max(int(r.ShelfLifeDays), 0),
	}
	if d := strings.TrimSpace(r.ExpiryDate); d != "" {
		if exp, err := time.ParseInLocation(time.DateOnly, d, now.Location()); err == nil {
			it.ExpiresAt = exp
		}
	}
	return it, nil
}

// ExtractRemove returns the item name and quantity described by text. The
// quantity is at least one.
func (e *Extractor) ExtractRemove(ctx context.Context, text string) (string, int, error) {
	var r removeReply
	if err := e.complete(ctx, removePrompt, text, &r); err != nil {
		return "", 0, err
	}
	return strings.TrimSpace(r.Name), max(int(r.Quantity), 1), nil
}

func (e *Extractor) complete(ctx context.Context, system, text string, v any) error {
	req := llm.UserPrompt(system, text)
	req.Temperature = e.temperature
	req.JSON = true

	resp, err := e.llm.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("intent: complete: %w", err)
	}
	return decodeObject(resp.Content, v)
}

// decodeObject unmarshals the outermost {...} block of content into v,
// repairing malformed or truncated JSON before giving up.
func decodeObject(content string, v any) error {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ErrNoJSON
	}
	raw := content[start:]
	if end := strings.LastIndexByte(raw, '}'); end > 0 {
		raw = raw[:end+1]
	}

	err := json.Unmarshal([]byte(raw), v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return fmt.Errorf("intent: decode reply: %w", err)
	}
	fixed, rerr := jsonrepair.JSONRepair(raw)
	if rerr != nil {
		return fmt.Errorf("intent: repair reply: %w", rerr)
	}
	if err := json.Unmarshal([]byte(fixed), v); err != nil {
		return fmt.Errorf("intent: decode repaired reply: %w", err)
	}
	return nil
}
