package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/MrWong99/larder/pkg/types"
)

// Command is one entry of the fixed voice command vocabulary. The numeric
// value is the command ID the recognition engine reports.
type Command int

const (
	CommandGenericTest      Command = iota + 1 // 测试云端
	CommandAddItem                             // 放入
	CommandRemoveItem                          // 拿出
	CommandShowInventory                       // 显示库存
	CommandClearInventory                      // 清空
	CommandRecommendRecipes                    // 菜谱推荐
	CommandReturnHome                          // 返回
)

// commandInfo lists each command's name and built-in phrases. Transcribers
// emit either hanzi or pinyin depending on model and language, so every
// command carries both.
var commandInfo = map[Command]struct {
	name    string
	phrases []string
}{
	CommandGenericTest:      {"generic_test", []string{"ce shi yun duan", "测试云端"}},
	CommandAddItem:          {"add_item", []string{"fang ru", "放入"}},
	CommandRemoveItem:       {"remove_item", []string{"na chu", "拿出"}},
	CommandShowInventory:    {"show_inventory", []string{"xian shi ku cun", "显示库存"}},
	CommandClearInventory:   {"clear_inventory", []string{"qing kong", "清空"}},
	CommandRecommendRecipes: {"recommend_recipes", []string{"cai pu tui jian", "菜谱推荐"}},
	CommandReturnHome:       {"return_home", []string{"fan hui", "返回"}},
}

// Commands returns every command in ID order.
func Commands() []Command {
	return []Command{
		CommandGenericTest,
		CommandAddItem,
		CommandRemoveItem,
		CommandShowInventory,
		CommandClearInventory,
		CommandRecommendRecipes,
		CommandReturnHome,
	}
}

// String returns the command's name for logs and metrics.
func (c Command) String() string {
	if info, ok := commandInfo[c]; ok {
		return info.name
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// Phrase returns the primary (pinyin) phrase for c.
func (c Command) Phrase() string {
	if ps := commandInfo[c].phrases; len(ps) > 0 {
		return ps[0]
	}
	return ""
}

// Phrases returns every built-in phrase variant for c.
func (c Command) Phrases() []string {
	return slices.Clone(commandInfo[c].phrases)
}

// ParseCommand returns the command whose name (as printed by String) is
// name.
func ParseCommand(name string) (Command, error) {
	for c, info := range commandInfo {
		if info.name == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("pipeline: unknown command %q", name)
}

// IsValid reports whether c belongs to the vocabulary.
func (c Command) IsValid() bool {
	_, ok := commandInfo[c]
	return ok
}

// ActionKind classifies what a command does to the state machine.
type ActionKind int

const (
	// ActionRecord starts a recording session for an intent.
	ActionRecord ActionKind = iota + 1

	// ActionImmediate runs a short function on the detection loop and
	// returns to idle.
	ActionImmediate

	// ActionBackground starts a cancellable task and returns to idle without
	// waiting for it.
	ActionBackground
)

// ActionFunc is the body of an immediate or background action.
type ActionFunc func(ctx context.Context) error

// Action is the effect bound to a command.
type Action struct {
	Kind   ActionKind
	Intent types.Intent
	Run    ActionFunc
}

// Record returns an action that starts a recording for intent.
func Record(intent types.Intent) Action {
	return Action{Kind: ActionRecord, Intent: intent}
}

// Immediate returns an action that runs fn before going back to idle. fn
// runs on the detection loop and must be quick.
func Immediate(fn ActionFunc) Action {
	return Action{Kind: ActionImmediate, Run: fn}
}

// Background returns an action that runs fn as a background task.
func Background(fn ActionFunc) Action {
	return Action{Kind: ActionBackground, Run: fn}
}

// DispatchTable maps every command to exactly one action.
type DispatchTable struct {
	actions map[Command]Action
}

// NewDispatchTable validates that actions covers the whole vocabulary with
// well-formed actions and nothing else.
func NewDispatchTable(actions map[Command]Action) (*DispatchTable, error) {
	var errs []error
	for _, c := range Commands() {
		a, ok := actions[c]
		if !ok {
			errs = append(errs, fmt.Errorf("pipeline: no action for command %s", c))
			continue
		}
		switch a.Kind {
		case ActionRecord:
			if !a.Intent.IsValid() {
				errs = append(errs, fmt.Errorf("pipeline: command %s records invalid intent %s", c, a.Intent))
			}
		case ActionImmediate, ActionBackground:
			if a.Run == nil {
				errs = append(errs, fmt.Errorf("pipeline: command %s has no action function", c))
			}
		default:
			errs = append(errs, fmt.Errorf("pipeline: command %s has unknown action kind %d", c, a.Kind))
		}
	}
	for c := range actions {
		if !c.IsValid() {
			errs = append(errs, fmt.Errorf("pipeline: action bound to unknown %s", c))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	t := &DispatchTable{actions: make(map[Command]Action, len(actions))}
	for c, a := range actions {
		t.actions[c] = a
	}
	return t, nil
}

// Lookup returns the action for c.
func (t *DispatchTable) Lookup(c Command) (Action, bool) {
	a, ok := t.actions[c]
	return a, ok
}

// Handlers holds the collaborator callbacks for the non-recording commands.
type Handlers struct {
	ShowInventory    ActionFunc
	ClearInventory   ActionFunc
	RecommendRecipes ActionFunc
	ReturnHome       ActionFunc
}

// DefaultDispatchTable binds the standard vocabulary: three recording
// commands, three immediate actions and recipe recommendation in the
// background.
func DefaultDispatchTable(h Handlers) (*DispatchTable, error) {
	return NewDispatchTable(map[Command]Action{
		CommandGenericTest:      Record(types.IntentGenericTest),
		CommandAddItem:          Record(types.IntentAddItem),
		CommandRemoveItem:       Record(types.IntentRemoveItem),
		CommandShowInventory:    Immediate(h.ShowInventory),
		CommandClearInventory:   Immediate(h.ClearInventory),
		CommandRecommendRecipes: Background(h.RecommendRecipes),
		CommandReturnHome:       Immediate(h.ReturnHome),
	})
}
