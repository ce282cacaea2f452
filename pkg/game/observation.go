package game

import (
	"context"
	"time"
)

// Label is the discrete screen state reported by the observation port.
type Label string

const (
	LabelMainMenu        Label = "main_menu"
	LabelCharacterSelect Label = "character_select"
	LabelLobby           Label = "lobby"
	LabelCreateGame      Label = "create_game"
	LabelLoading         Label = "loading"
	LabelInGame          Label = "in_game"
	LabelInTown          Label = "in_town"
	LabelDeath           Label = "death"
	LabelDisconnected    Label = "disconnected"
	LabelUnknown         Label = "unknown"
)

// Readout keys present in Observation.Readouts. Values are whatever the
// classifier could extract from the frame; absent keys mean the readout
// was not available.
const (
	ReadoutHealthPercent = "health_percent"
	ReadoutManaPercent   = "mana_percent"
	ReadoutPositionX     = "position_x"
	ReadoutPositionY     = "position_y"
)

// Item is a dropped item the classifier identified in the frame, with
// the screen position a pickup click should target.
type Item struct {
	Name     string
	Quality  string
	Ethereal bool
	X, Y     int
}

// Observation is a single classified snapshot of the game client.
// Observations are ephemeral: the engine acts on the latest one and never
// persists them.
type Observation struct {
	Label      Label
	Confidence float64
	At         time.Time
	Readouts   map[string]float64

	// Items lists identified drops. Empty when the classifier has no item
	// recognition for the frame; loot sweeps fall back to blind clicks.
	Items []Item
}

// Readout returns the named numeric readout and whether it was present.
func (o Observation) Readout(key string) (float64, bool) {
	v, ok := o.Readouts[key]
	return v, ok
}

// Normalized applies the configured confidence floor: a snapshot the
// classifier was not sure enough about is treated as unknown rather than
// acted on.
func (o Observation) Normalized(floor float64) Observation {
	if o.Label != LabelUnknown && o.Confidence < floor {
		o.Label = LabelUnknown
	}
	return o
}

// Unknown reports whether the observation carries no usable state label.
func (o Observation) Unknown() bool {
	return o.Label == LabelUnknown || o.Label == ""
}

// Observer is the observation port. Implementations classify the current
// frame on demand. Calls must respect ctx and return within the port's
// own refresh latency; callers must not assume freshness beyond that cap.
type Observer interface {
	Observe(ctx context.Context) (Observation, error)
}
