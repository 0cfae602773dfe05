package sequencer

import (
	"testing"
	"time"

	"github.com/bbernstein/chaser-go/internal/model"
)

func testCatalog() map[string]model.FixtureType {
	return map[string]model.FixtureType{
		"par": {
			ID:            "par",
			Name:          "PAR Can",
			TotalChannels: 4,
			Features: []model.Feature{
				{ID: "rgb", Kind: model.FeatureRGB, Channels: []int{1, 2, 3}},
				{ID: "dimmer", Kind: model.FeatureScalar, Channels: []int{4}},
			},
		},
	}
}

func testEnv() model.Environment {
	return model.Environment{
		ID:        "env-1",
		RenderFps: 25,
		Fixtures: []model.EnvironmentFixture{
			{ID: "f1", FixtureTypeID: "par", Name: "Fixture 1", Universe: 0, Address: 1},
		},
	}
}

// frozenClock lets tests advance s.nowFn deterministically and call
// s.onTick directly instead of waiting on a real ticker.
type frozenClock struct {
	t time.Time
}

func (f *frozenClock) now() time.Time { return f.t }
func (f *frozenClock) advance(d time.Duration) {
	f.t = f.t.Add(d)
}

func newTestSequencer() (*Sequencer, *frozenClock) {
	s := New(testEnv(), testCatalog())
	fc := &frozenClock{t: time.Now()}
	s.nowFn = fc.now
	s.lastTick = fc.t
	return s, fc
}

func testProgram() model.Program {
	return model.Program{
		ID:            "prog-1",
		Name:          "Test",
		EnvironmentID: "env-1",
		Spm:           120,
		Loop:          false,
		Steps: []model.ProgramStep{
			{
				ID: "step-0", DurationMs: 500, FadeMs: 0,
				Frames: []model.FeatureFrame{
					{FixtureID: "f1", FeatureID: "rgb", Value: []byte{255, 0, 0}},
				},
			},
			{
				ID: "step-1", DurationMs: 500, FadeMs: 250,
				Frames: []model.FeatureFrame{
					{FixtureID: "f1", FeatureID: "rgb", Value: []byte{0, 255, 0}},
				},
			},
		},
	}
}

func TestSetProgram_ResetsPlayheadByDefault(t *testing.T) {
	s, _ := newTestSequencer()
	s.SetProgram(testProgram(), ProgramOptions{})
	st := s.GetState()
	if st.StepIndex != 0 || st.PositionMs != 0 {
		t.Fatalf("expected playhead reset, got %+v", st)
	}
	if st.Spm != 120 {
		t.Fatalf("expected spm 120, got %d", st.Spm)
	}
}

func TestPlay_StartsPlayingAndCrossfades(t *testing.T) {
	s, _ := newTestSequencer()
	s.SetProgram(testProgram(), ProgramOptions{})
	s.Play()

	st := s.GetState()
	if !st.IsPlaying {
		t.Fatal("expected IsPlaying true")
	}
	s.mu.Lock()
	active := s.cf.active
	s.mu.Unlock()
	if !active {
		t.Fatal("expected a cross-fade to have started on play()")
	}
}

func TestPlay_NoopWithoutProgram(t *testing.T) {
	s, _ := newTestSequencer()
	s.Play()
	if s.GetState().IsPlaying {
		t.Fatal("expected Play() to no-op without a program")
	}
}

func TestPause_StopsPlayingAndStartsCrossfade(t *testing.T) {
	s, _ := newTestSequencer()
	s.SetProgram(testProgram(), ProgramOptions{})
	s.Play()
	s.Pause()

	st := s.GetState()
	if st.IsPlaying {
		t.Fatal("expected IsPlaying false after pause")
	}
	s.mu.Lock()
	active := s.cf.active
	s.mu.Unlock()
	if !active {
		t.Fatal("expected a cross-fade to have started on pause()")
	}
}

func TestStepTick_AdvancesAfterTargetDuration(t *testing.T) {
	s, fc := newTestSequencer()
	s.SetProgram(testProgram(), ProgramOptions{})
	s.Play()

	// spm=120 -> 500ms/step * (durationMs=500/500 scale=1) = 500ms target.
	fc.advance(600 * time.Millisecond)
	s.onTick()

	st := s.GetState()
	if st.StepIndex != 1 {
		t.Fatalf("expected step to advance to 1, got %d (posMs=%d)", st.StepIndex, st.PositionMs)
	}
}

func TestStepTick_NonLoopingStopsAtEnd(t *testing.T) {
	s, fc := newTestSequencer()
	s.SetProgram(testProgram(), ProgramOptions{})
	s.Play()

	fc.advance(600 * time.Millisecond)
	s.onTick()
	fc.advance(600 * time.Millisecond)
	s.onTick()

	st := s.GetState()
	if st.IsPlaying {
		t.Fatal("expected playback to stop at end of non-looping program")
	}
	if st.StepIndex != 1 {
		t.Fatalf("expected to remain on last step, got %d", st.StepIndex)
	}
}

func TestStepTick_LoopingWrapsToFirstStep(t *testing.T) {
	s, fc := newTestSequencer()
	p := testProgram()
	p.Loop = true
	s.SetProgram(p, ProgramOptions{})
	s.Play()

	fc.advance(600 * time.Millisecond)
	s.onTick()
	fc.advance(600 * time.Millisecond)
	s.onTick()

	st := s.GetState()
	if !st.IsPlaying {
		t.Fatal("expected playback to continue looping")
	}
	if st.StepIndex != 0 {
		t.Fatalf("expected wrap to step 0, got %d", st.StepIndex)
	}
}

func TestPreviousStepIndex_NoWrapAtProgramStartBoundary(t *testing.T) {
	s, _ := newTestSequencer()
	p := testProgram()
	p.Loop = true
	s.SetProgram(p, ProgramOptions{})
	s.Play()

	s.mu.Lock()
	defer s.mu.Unlock()
	got := s.previousStepIndexLocked()
	if got != 0 {
		t.Fatalf("expected no wrap at program-start boundary, got %d", got)
	}
}

func TestPreviousStepIndex_WrapsMidPlaybackWhenLooping(t *testing.T) {
	s, _ := newTestSequencer()
	p := testProgram()
	p.Loop = true
	s.SetProgram(p, ProgramOptions{})
	s.Play()

	s.mu.Lock()
	s.state.StepIndex = 0
	s.state.PositionMs = 10
	got := s.previousStepIndexLocked()
	s.mu.Unlock()

	if got != len(p.Steps)-1 {
		t.Fatalf("expected wrap to last step mid-playback, got %d", got)
	}
}

func TestSetStep_BeyondEndExtendsProgram(t *testing.T) {
	s, _ := newTestSequencer()
	s.SetProgram(testProgram(), ProgramOptions{})
	s.SetStep(3)

	s.mu.Lock()
	n := len(s.program.Steps)
	last := s.program.Steps[n-1]
	s.mu.Unlock()

	if n < 4 {
		t.Fatalf("expected program extended to at least 4 steps, got %d", n)
	}
	if last.DurationMs != 500 || last.FadeMs != 250 {
		t.Fatalf("expected extended step to duplicate prior timing, got %+v", last)
	}
	if s.GetState().StepIndex != 3 {
		t.Fatalf("expected step index 3, got %d", s.GetState().StepIndex)
	}
}

func TestSetLayerAValue_VisibleInStaticMode(t *testing.T) {
	s, fc := newTestSequencer()
	s.SetLayerAValue("f1", "dimmer", []byte{200})

	// A static-mode edit cross-fades in over ModeSwitchFadeMs; read the
	// frame once that fade has completed.
	fc.advance(ModeSwitchFadeMs * time.Millisecond)
	frame := s.GetFrame()
	v, ok := frame.Values[model.FeatureKey("f1", "dimmer")]
	if !ok || len(v) != 1 || v[0] != 200 {
		t.Fatalf("expected layer A value visible in static mode, got %+v", frame.Values)
	}
}

func TestSetBlackout_ClearsVisibleValues(t *testing.T) {
	s, _ := newTestSequencer()
	s.SetLayerAValue("f1", "dimmer", []byte{200})
	s.SetBlackout(true)

	frame := s.GetFrame()
	if len(frame.Values) != 0 {
		t.Fatalf("expected blackout to clear visible values, got %+v", frame.Values)
	}
}

func TestSubscribe_ReceivesEmittedFrames(t *testing.T) {
	s, _ := newTestSequencer()
	var got []model.RenderFrame
	unsub := s.Subscribe(func(f model.RenderFrame) {
		got = append(got, f)
	})
	defer unsub()

	s.SetLayerAValue("f1", "dimmer", []byte{10})
	s.SetLayerAValue("f1", "dimmer", []byte{20})

	if len(got) != 2 {
		t.Fatalf("expected 2 emitted frames, got %d", len(got))
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	s, _ := newTestSequencer()
	count := 0
	unsub := s.Subscribe(func(f model.RenderFrame) { count++ })
	unsub()

	s.SetLayerAValue("f1", "dimmer", []byte{10})
	if count != 0 {
		t.Fatalf("expected no frames after unsubscribe, got %d", count)
	}
}

func TestApplyStateSnapshot_ClampsAndCrossfades(t *testing.T) {
	s, _ := newTestSequencer()
	s.SetProgram(testProgram(), ProgramOptions{})

	playing := true
	step := 50
	s.ApplyStateSnapshot(StateSnapshot{IsPlaying: &playing, StepIndex: &step})

	st := s.GetState()
	if !st.IsPlaying {
		t.Fatal("expected IsPlaying true")
	}
	if st.StepIndex != 1 {
		t.Fatalf("expected step index clamped to 1, got %d", st.StepIndex)
	}
	s.mu.Lock()
	active := s.cf.active
	s.mu.Unlock()
	if !active {
		t.Fatal("expected a cross-fade to have started on the static-to-sequencer mode change")
	}
}

func TestSetFrameRate_DoesNotEmit(t *testing.T) {
	s, _ := newTestSequencer()
	count := 0
	unsub := s.Subscribe(func(f model.RenderFrame) { count++ })
	defer unsub()

	s.SetFrameRate(30)
	if count != 0 {
		t.Fatalf("expected SetFrameRate to not emit, got %d calls", count)
	}
}
