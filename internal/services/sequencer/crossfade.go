package sequencer

import (
	"time"

	"github.com/bbernstein/chaser-go/internal/model"
)

// ModeSwitchFadeMs is the fixed duration of a mode-switch cross-fade
// (spec §7 constants table).
const ModeSwitchFadeMs = 500

// visibleMode tags which layer is authoritative for the visible mix.
type visibleMode int

const (
	modeStatic visibleMode = iota
	modeSequencer
)

// crossfadeState tracks an in-flight transition between static and
// sequencer visible modes, or a layer-A edit while already in static mode.
// Adapted from the teacher's fade.Engine active-fade-tracking shape
// (internal/services/fade/engine.go): a ticker-driven tracker of a single
// from→to transition, stripped of its easing-curve vocabulary since the
// spec mandates plain linear interpolation.
type crossfadeState struct {
	active     bool
	from       model.LayerValueMap
	targetMode visibleMode
	startedAt  time.Time
}

// start begins a new cross-fade from the currently-visible values toward
// targetMode's live values. Starting a new cross-fade while one is already
// in flight is safe: `from` always captures whatever is on screen right
// now, so a rapid sequence of mode switches never jumps.
func (c *crossfadeState) start(now time.Time, currentVisible model.LayerValueMap, targetMode visibleMode) {
	c.active = true
	c.from = currentVisible.Clone()
	c.targetMode = targetMode
	c.startedAt = now
}

func (c *crossfadeState) clear() {
	c.active = false
	c.from = nil
}

// progress returns the cross-fade's ratio in [0,1] at `now`, and whether it
// has reached completion.
func (c *crossfadeState) progress(now time.Time) (float64, bool) {
	elapsed := now.Sub(c.startedAt)
	r := clamp01(float64(elapsed.Milliseconds()) / float64(ModeSwitchFadeMs))
	return r, r >= 1
}
