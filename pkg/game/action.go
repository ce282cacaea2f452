package game

import "context"

// ActionKind enumerates the input primitives the action port understands.
type ActionKind string

const (
	// KindPressKey taps a single key.
	KindPressKey ActionKind = "press_key"
	// KindClick performs a left click at screen coordinates.
	KindClick ActionKind = "click"
	// KindMoveClick moves toward a point by clicking it (walk/teleport).
	KindMoveClick ActionKind = "move_click"
	// KindCastSkill casts the skill bound to Key at the given point.
	KindCastSkill ActionKind = "cast_skill"
	// KindDrinkPotion drinks the potion in belt slot Slot.
	KindDrinkPotion ActionKind = "drink_potion"
	// KindExitMenu exits the game through the in-game menu, locating the
	// Save & Exit button by template. This is the preferred exit path;
	// callers fall back to raw clicks and key presses when it fails.
	KindExitMenu ActionKind = "exit_menu"
)

// Action is one request to the input-emulation layer. Actions are
// at-most-once: the port reports whether emulation succeeded, never
// whether the game acted on it.
type Action struct {
	Kind ActionKind
	Key  string
	X    int
	Y    int
	Slot int
}

// PressKey builds a key tap action.
func PressKey(key string) Action { return Action{Kind: KindPressKey, Key: key} }

// Click builds a left-click action.
func Click(x, y int) Action { return Action{Kind: KindClick, X: x, Y: y} }

// MoveClick builds a movement click action.
func MoveClick(x, y int) Action { return Action{Kind: KindMoveClick, X: x, Y: y} }

// CastSkill builds a skill cast at a target point.
func CastSkill(key string, x, y int) Action {
	return Action{Kind: KindCastSkill, Key: key, X: x, Y: y}
}

// DrinkPotion builds a belt potion action.
func DrinkPotion(slot int) Action { return Action{Kind: KindDrinkPotion, Slot: slot} }

// ExitMenu builds a template-based Save & Exit action.
func ExitMenu() Action { return Action{Kind: KindExitMenu} }

// Actor is the action port. Perform returns once emulation completed or
// failed; there are no rollback semantics and partial success is possible.
type Actor interface {
	Perform(ctx context.Context, action Action) error
}
