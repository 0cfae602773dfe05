// Package sequencer implements the transport state machine, timebase, and
// two-layer value model described in spec.md §4.1-§4.3: it owns Layer A
// (manual overrides), derives Layer B (the program's interpolated output),
// and cross-fades between them on every mode switch. It is grounded in the
// teacher's dmx.Service for its mutex-protected single-struct concurrency
// shape and in fade.Engine for its ticker-driven active-transition tracker.
package sequencer

import (
	"log"
	"math"
	"os"
	"sync"
	"time"

	"github.com/bbernstein/chaser-go/internal/metrics"
	"github.com/bbernstein/chaser-go/internal/model"
	"github.com/bbernstein/chaser-go/internal/services/layerstore"
	"github.com/lucsky/cuid"
)

var debugEnabled = os.Getenv("CHASER_DEBUG") == "1" || os.Getenv("CHASER_DEBUG") == "true"

// Sequencer is the single logical executor for one environment's transport,
// layer model, and cross-fade state. Every exported method is safe to call
// from any goroutine; internally they all serialize through one mutex,
// which is the practical stand-in for spec §5's "single-threaded
// cooperative" core.
type Sequencer struct {
	mu sync.Mutex

	env     model.Environment
	catalog map[string]model.FixtureType

	program    model.Program
	hasProgram bool

	state model.PlayheadState

	layerA *layerstore.Store
	cf     crossfadeState

	renderFps int
	lastTick  time.Time

	listeners []listenerEntry

	clock *clockDriver
	nowFn func() time.Time
}

// New creates a Sequencer bound to env. No program is active until
// SetProgram is called.
func New(env model.Environment, catalog map[string]model.FixtureType) *Sequencer {
	s := &Sequencer{
		env:       env,
		catalog:   catalog,
		layerA:    layerstore.New(env, catalog),
		renderFps: model.ClampRenderFps(env.RenderFps),
		nowFn:     time.Now,
		state: model.PlayheadState{
			Spm: 120,
		},
	}
	s.clock = newClockDriver(s.onTick)
	s.lastTick = s.nowFn()
	return s
}

func (s *Sequencer) now() time.Time { return s.nowFn() }

// ProgramOptions controls SetProgram's playhead-reset behavior.
type ProgramOptions struct {
	PreservePlayhead bool
	SuppressEmit     bool
}

// SetProgram replaces the active program (spec §4.2 setProgram).
func (s *Sequencer) SetProgram(p model.Program, opts ProgramOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := make([]model.ProgramStep, len(p.Steps))
	copy(steps, p.Steps)
	p.Steps = steps
	p.Spm = model.ClampSpm(p.Spm)

	s.program = p
	s.hasProgram = true
	s.state.Spm = p.Spm
	s.state.ProgramID = p.ID
	s.state.HasProgram = true

	if !opts.PreservePlayhead {
		s.state.StepIndex = 0
		s.state.PositionMs = 0
		s.state.Loop = p.Loop
	} else {
		s.state.StepIndex = clampInt(s.state.StepIndex, 0, maxInt(0, len(p.Steps)-1))
	}

	s.syncTimerLocked()
	if !opts.SuppressEmit {
		s.emitLocked(s.now())
	}
}

// Play resets the playhead to the start and begins sequencer-mode playback
// (spec §4.2 play()). No-op if already playing or no program is loaded.
func (s *Sequencer) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsPlaying || !s.hasProgram || len(s.program.Steps) == 0 {
		return
	}

	now := s.now()
	before := s.buildFrameLocked(now).Values

	s.state.StepIndex = 0
	s.state.PositionMs = 0
	s.state.IsPlaying = true
	s.lastTick = now

	s.startCrossfadeLocked(now, before, modeSequencer)
	s.syncTimerLocked()
	s.emitLocked(now)
}

// Resume begins sequencer-mode playback without resetting the playhead
// (spec §4.2 resume()).
func (s *Sequencer) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.IsPlaying || !s.hasProgram || len(s.program.Steps) == 0 {
		return
	}

	now := s.now()
	before := s.buildFrameLocked(now).Values

	s.state.IsPlaying = true
	s.lastTick = now

	s.startCrossfadeLocked(now, before, modeSequencer)
	s.syncTimerLocked()
	s.emitLocked(now)
}

// Pause stops sequencer-mode playback and cross-fades back to static mode
// (spec §4.2 pause()).
func (s *Sequencer) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.IsPlaying {
		return
	}

	now := s.now()
	before := s.buildFrameLocked(now).Values

	s.state.IsPlaying = false

	s.startCrossfadeLocked(now, before, modeStatic)
	s.syncTimerLocked()
	s.emitLocked(now)
}

// NextStep advances to the next step, wrapping iff Loop is set.
func (s *Sequencer) NextStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasProgram || len(s.program.Steps) == 0 {
		return
	}
	n := len(s.program.Steps)
	if s.state.StepIndex >= n-1 {
		if s.state.Loop {
			s.state.StepIndex = 0
		}
	} else {
		s.state.StepIndex++
	}
	s.state.PositionMs = 0
	s.emitLocked(s.now())
}

// PreviousStep retreats to the previous step, wrapping iff Loop is set.
func (s *Sequencer) PreviousStep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasProgram || len(s.program.Steps) == 0 {
		return
	}
	if s.state.StepIndex <= 0 {
		if s.state.Loop {
			s.state.StepIndex = len(s.program.Steps) - 1
		}
	} else {
		s.state.StepIndex--
	}
	s.state.PositionMs = 0
	s.emitLocked(s.now())
}

// SetStep jumps to step i, clamped to [0, max(0,len-1)]. If i is beyond the
// current step count, the program is extended with empty steps duplicating
// the last step's (durationMs, fadeMs) — the spec's recorded Open Question
// decision, so an editor that appends steps optimistically keeps working
// before the external store round-trips a confirmed program.
func (s *Sequencer) SetStep(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasProgram && i >= len(s.program.Steps) {
		s.extendStepsLocked(i)
	}

	n := len(s.program.Steps)
	s.state.StepIndex = clampInt(i, 0, maxInt(0, n-1))
	s.state.PositionMs = 0
	s.emitLocked(s.now())
}

func (s *Sequencer) extendStepsLocked(upTo int) {
	if len(s.program.Steps) == 0 {
		return
	}
	last := s.program.Steps[len(s.program.Steps)-1]
	for len(s.program.Steps) <= upTo {
		s.program.Steps = append(s.program.Steps, model.ProgramStep{
			ID:         cuid.New(),
			DurationMs: last.DurationMs,
			FadeMs:     last.FadeMs,
		})
	}
}

// SetSpm clamps and sets the steps-per-minute pacing.
func (s *Sequencer) SetSpm(spm int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Spm = model.ClampSpm(spm)
	s.emitLocked(s.now())
}

// SetLoop toggles looping.
func (s *Sequencer) SetLoop(loop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loop = loop
	s.emitLocked(s.now())
}

// SetBlackout toggles blackout.
func (s *Sequencer) SetBlackout(blackout bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsBlackout = blackout
	s.emitLocked(s.now())
}

// SetFrameRate recomputes the tick period and restarts whichever timer is
// currently active. It does not emit a frame (spec §4.2).
func (s *Sequencer) SetFrameRate(fps int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderFps = model.ClampRenderFps(fps)
	s.syncTimerLocked()
}

// SetLayerAValue writes a manual override. Emits a frame only if it changed
// the visible map; starts a cross-fade if the edit happens in static mode.
func (s *Sequencer) SetLayerAValue(fixtureID, featureID string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLayerAChangeLocked(func() bool {
		return s.layerA.SetValue(fixtureID, featureID, value)
	})
}

// ClearLayerAFeature removes a single override.
func (s *Sequencer) ClearLayerAFeature(fixtureID, featureID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLayerAChangeLocked(func() bool {
		return s.layerA.ClearFeature(fixtureID, featureID)
	})
}

// ClearLayerAFixture removes every override for a fixture.
func (s *Sequencer) ClearLayerAFixture(fixtureID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLayerAChangeLocked(func() bool {
		return s.layerA.ClearFixture(fixtureID)
	})
}

// ApplyLayerABatch applies ops atomically: at most one frame and one
// cross-fade transition are produced for the whole batch (spec §4.3).
func (s *Sequencer) ApplyLayerABatch(ops []layerstore.Op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLayerAChangeLocked(func() bool {
		return s.layerA.ApplyBatch(ops)
	})
}

func (s *Sequencer) applyLayerAChangeLocked(mutate func() bool) {
	now := s.now()
	wasStatic := s.visibleModeLocked() == modeStatic
	before := s.buildFrameLocked(now).Values

	if !mutate() {
		return
	}

	if wasStatic {
		s.startCrossfadeLocked(now, before, modeStatic)
		s.syncTimerLocked()
	}
	s.emitLocked(now)
}

// StateSnapshot carries optional partial playhead fields for
// ApplyStateSnapshot; nil fields are left unchanged.
type StateSnapshot struct {
	StepIndex  *int
	PositionMs *int
	Spm        *int
	Loop       *bool
	Blackout   *bool
	IsPlaying  *bool
}

// ApplyStateSnapshot applies a partial playhead state with clamping,
// restarts the correct timer, and cross-fades if the visible mode changed
// (spec §4.2 applyStateSnapshot).
func (s *Sequencer) ApplyStateSnapshot(snap StateSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	before := s.buildFrameLocked(now).Values
	oldMode := s.visibleModeLocked()

	if snap.IsPlaying != nil {
		s.state.IsPlaying = *snap.IsPlaying
	}
	if snap.Loop != nil {
		s.state.Loop = *snap.Loop
	}
	if snap.Blackout != nil {
		s.state.IsBlackout = *snap.Blackout
	}
	if snap.Spm != nil {
		s.state.Spm = model.ClampSpm(*snap.Spm)
	}
	if snap.StepIndex != nil {
		n := len(s.program.Steps)
		s.state.StepIndex = clampInt(*snap.StepIndex, 0, maxInt(0, n-1))
	}
	if snap.PositionMs != nil {
		p := *snap.PositionMs
		if p < 0 {
			p = 0
		}
		s.state.PositionMs = p
	}

	newMode := s.visibleModeLocked()
	if newMode != oldMode {
		s.startCrossfadeLocked(now, before, newMode)
	}
	s.lastTick = now
	s.syncTimerLocked()
	s.emitLocked(now)
}

// GetState returns a copy of the current playhead state.
func (s *Sequencer) GetState() model.PlayheadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// GetFrame returns the currently visible frame without advancing time.
func (s *Sequencer) GetFrame() model.RenderFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildFrameLocked(s.now())
}

// onTick is invoked by the clock driver's goroutine on every tick. It is
// never called concurrently with itself (one ticker, one reader).
func (s *Sequencer) onTick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	dtMs := clampElapsedMs(now.Sub(s.lastTick))
	s.lastTick = now

	if s.state.IsPlaying {
		s.stepTickLocked(dtMs)
	}

	s.emitLocked(now)
	s.syncTimerLocked()
}

// stepTickLocked implements spec §4.2's tick algorithm: advance position,
// then walk step boundaries until position falls back inside the current
// step's scaled target duration.
func (s *Sequencer) stepTickLocked(dtMs int) {
	if !s.hasProgram || len(s.program.Steps) == 0 {
		return
	}

	s.state.PositionMs += dtMs

	for {
		step, ok := s.program.StepAt(s.state.StepIndex)
		if !ok {
			return
		}
		stepScale := float64(maxInt(1, step.DurationMs)) / 500.0
		targetDuration := (60000.0 / float64(s.state.Spm)) * stepScale

		if float64(s.state.PositionMs) < targetDuration {
			return
		}

		s.state.PositionMs -= int(math.Round(targetDuration))
		if s.state.PositionMs < 0 {
			s.state.PositionMs = 0
		}

		last := len(s.program.Steps) - 1
		if s.state.StepIndex >= last {
			if s.state.Loop {
				s.state.StepIndex = 0
				continue
			}
			s.state.StepIndex = last
			s.stopAtEndLocked()
			return
		}
		s.state.StepIndex++
	}
}

// stopAtEndLocked handles reaching the last step of a non-looping program:
// stop playing and cross-fade the still-sequencer-mode visible values back
// to static mode.
func (s *Sequencer) stopAtEndLocked() {
	now := s.now()
	before := s.buildFrameLocked(now).Values
	s.state.IsPlaying = false
	s.startCrossfadeLocked(now, before, modeStatic)
	if debugEnabled {
		log.Printf("🎭 sequencer: reached end of program %s, stopping", s.program.ID)
	}
}

func (s *Sequencer) visibleModeLocked() visibleMode {
	return s.visibleModeWithLocked(s.state.IsPlaying)
}

func (s *Sequencer) visibleModeWithLocked(isPlaying bool) visibleMode {
	if isPlaying && s.hasProgram && len(s.program.Steps) > 0 {
		return modeSequencer
	}
	return modeStatic
}

// previousStepIndexLocked selects the step to interpolate from, per spec
// §4.2: the prior step, unless at the program-start boundary (stepIndex=0,
// positionMs=0, playing, looping), in which case the current step has no
// predecessor to wrap from.
func (s *Sequencer) previousStepIndexLocked() int {
	if s.state.StepIndex > 0 {
		return s.state.StepIndex - 1
	}
	atStartBoundary := s.state.PositionMs == 0 && s.state.IsPlaying
	if s.state.Loop && !atStartBoundary {
		return len(s.program.Steps) - 1
	}
	return 0
}

// buildFrameLocked computes the full RenderFrame snapshot for `now`,
// including layer B, the visible mix, and any in-flight cross-fade. It may
// clear a completed cross-fade as a side effect, which is always safe
// (idempotent, per spec §5).
func (s *Sequencer) buildFrameLocked(now time.Time) model.RenderFrame {
	layerA := s.layerA.Snapshot()
	layerB := model.LayerValueMap{}

	if s.hasProgram && len(s.program.Steps) > 0 {
		curr, _ := s.program.StepAt(s.state.StepIndex)
		prev, _ := s.program.StepAt(s.previousStepIndexLocked())
		r := fadeRatio(s.state.IsPlaying, curr.FadeMs, s.state.PositionMs)
		layerB = buildLayerB(prev, curr, r, s.state.IsBlackout)
	}

	visMode := s.visibleModeLocked()
	var live model.LayerValueMap
	switch {
	case s.state.IsBlackout:
		live = model.LayerValueMap{}
	case visMode == modeSequencer:
		live = layerB
	default:
		live = layerA
	}

	var values model.LayerValueMap
	if s.cf.active {
		r, done := s.cf.progress(now)
		if done {
			s.cf.clear()
			values = live
		} else {
			values = mixMaps(s.cf.from, live, r)
		}
	} else {
		values = live
	}

	return model.RenderFrame{
		Timestamp:    now,
		State:        s.state,
		LayerAValues: layerA,
		LayerBValues: layerB,
		Values:       values,
	}
}

func (s *Sequencer) emitLocked(now time.Time) {
	frame := s.buildFrameLocked(now)
	metrics.FramesEmitted.WithLabelValues(s.env.ID).Inc()
	s.notifyLocked(frame)
}

// startCrossfadeLocked begins a mode-switch cross-fade and records it, per
// spec §4.3 ("every mode switch cross-fades").
func (s *Sequencer) startCrossfadeLocked(now time.Time, currentVisible model.LayerValueMap, targetMode visibleMode) {
	s.cf.start(now, currentVisible, targetMode)
	metrics.CrossfadesStarted.WithLabelValues(s.env.ID).Inc()
}

// syncTimerLocked starts, retunes, or stops the single active ticker
// depending on whether a sequencer tick or a mix tick should be running
// (spec §4.1: at most one of the two, ever).
func (s *Sequencer) syncTimerLocked() {
	if s.state.IsPlaying || s.cf.active {
		s.clock.ensureRunning(tickPeriodMs(s.renderFps))
		return
	}
	s.clock.ensureStopped()
}

// Close stops the sequencer's background ticker. Safe to call even if no
// ticker is running.
func (s *Sequencer) Close() {
	s.clock.ensureStopped()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
