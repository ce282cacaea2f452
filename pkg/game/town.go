package game

import (
	"context"
	"fmt"
)

// TownNeeds flags which town chores are due before the next run.
type TownNeeds struct {
	Heal   bool
	Stash  bool
	Shop   bool
	Repair bool
}

// Any reports whether at least one chore is due.
func (n TownNeeds) Any() bool {
	return n.Heal || n.Stash || n.Shop || n.Repair
}

// TownRoutine walks the due chores in a fixed order: heal, stash, shop,
// repair. Each chore is a short scripted interaction through the action
// port; the routine stops at the first failure so the caller can classify
// it.
type TownRoutine struct {
	// NPC screen positions for the current act's town layout.
	HealerPos [2]int
	StashPos  [2]int
	VendorPos [2]int
	SmithPos  [2]int
}

// DefaultTownRoutine returns positions for the act 5 town layout, where
// the farming runs start.
func DefaultTownRoutine() *TownRoutine {
	return &TownRoutine{
		HealerPos: [2]int{620, 340},
		StashPos:  [2]int{880, 320},
		VendorPos: [2]int{1150, 380},
		SmithPos:  [2]int{1250, 520},
	}
}

// Execute performs the due chores. The deps abort check is honored
// between chores, not mid-interaction.
func (t *TownRoutine) Execute(ctx context.Context, deps Deps, needs TownNeeds) error {
	type chore struct {
		name string
		due  bool
		run  func(context.Context, Deps) error
	}
	chores := []chore{
		{"heal", needs.Heal, t.heal},
		{"stash", needs.Stash, t.stash},
		{"shop", needs.Shop, t.shop},
		{"repair", needs.Repair, t.repair},
	}

	for _, c := range chores {
		if !c.due {
			continue
		}
		if deps.Preempted() {
			return context.Canceled
		}
		if err := c.run(ctx, deps); err != nil {
			return fmt.Errorf("town %s: %w", c.name, err)
		}
	}
	return nil
}

// heal talks to the healer NPC, which also clears poison and curses.
func (t *TownRoutine) heal(ctx context.Context, deps Deps) error {
	if err := deps.Actor.Perform(ctx, MoveClick(t.HealerPos[0], t.HealerPos[1])); err != nil {
		return err
	}
	return deps.Actor.Perform(ctx, ExitMenu())
}

// stash opens the stash and deposits via the shared-stash hotkeys.
func (t *TownRoutine) stash(ctx context.Context, deps Deps) error {
	if err := deps.Actor.Perform(ctx, MoveClick(t.StashPos[0], t.StashPos[1])); err != nil {
		return err
	}
	if err := deps.Actor.Perform(ctx, PressKey("ctrl+shift+click")); err != nil {
		return err
	}
	return deps.Actor.Perform(ctx, ExitMenu())
}

// shop refills potions and tomes at the vendor.
func (t *TownRoutine) shop(ctx context.Context, deps Deps) error {
	if err := deps.Actor.Perform(ctx, MoveClick(t.VendorPos[0], t.VendorPos[1])); err != nil {
		return err
	}
	if err := deps.Actor.Perform(ctx, Click(t.VendorPos[0], t.VendorPos[1]+60)); err != nil {
		return err
	}
	return deps.Actor.Perform(ctx, ExitMenu())
}

// repair fixes durability at the blacksmith.
func (t *TownRoutine) repair(ctx context.Context, deps Deps) error {
	if err := deps.Actor.Perform(ctx, MoveClick(t.SmithPos[0], t.SmithPos[1])); err != nil {
		return err
	}
	if err := deps.Actor.Perform(ctx, Click(t.SmithPos[0]+40, t.SmithPos[1]+80)); err != nil {
		return err
	}
	return deps.Actor.Perform(ctx, ExitMenu())
}
