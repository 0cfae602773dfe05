package model

// FeatureFrame is a single (fixture, feature) → value entry within a step.
// Value is an ordered byte vector whose length equals the feature's channel
// count (1 for scalar, 3 for rgb, 2 for cct).
type FeatureFrame struct {
	FixtureID string
	FeatureID string
	Value     []byte
}

// ProgramStep is one point on the timeline: a duration, an optional fade
// into it, and the feature values that are visible for its duration.
type ProgramStep struct {
	ID         string
	DurationMs int // > 0
	FadeMs     int // >= 0
	Frames     []FeatureFrame
}

// FrameFor returns the frame for (fixtureID, featureID) within this step, or
// nil if the step has no entry for that key.
func (s ProgramStep) FrameFor(fixtureID, featureID string) *FeatureFrame {
	for i := range s.Frames {
		if s.Frames[i].FixtureID == fixtureID && s.Frames[i].FeatureID == featureID {
			return &s.Frames[i]
		}
	}
	return nil
}

// Program is an ordered, named sequence of steps bound to one environment.
type Program struct {
	ID            string
	Name          string
	EnvironmentID string
	Spm           int // steps-per-minute, [1,500]
	Loop          bool
	Steps         []ProgramStep
}

// ClampSpm clamps spm into the valid [1,500] range.
func ClampSpm(spm int) int {
	if spm < 1 {
		return 1
	}
	if spm > 500 {
		return 500
	}
	return spm
}

// StepAt returns the step at index i, clamped to [0, len-1]. Returns the
// zero value and false for an empty program.
func (p Program) StepAt(i int) (ProgramStep, bool) {
	if len(p.Steps) == 0 {
		return ProgramStep{}, false
	}
	if i < 0 {
		i = 0
	}
	if i > len(p.Steps)-1 {
		i = len(p.Steps) - 1
	}
	return p.Steps[i], true
}
