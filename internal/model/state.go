package model

import "time"

// FeatureKey builds the composite key used by LayerValueMap. A small struct
// with a value-based hash would be preferable (see design notes), but the
// string key keeps the map directly JSON-serializable for the frame
// snapshot handed to listeners.
func FeatureKey(fixtureID, featureID string) string {
	return fixtureID + ":" + featureID
}

// LayerValueMap maps a FeatureKey to an ordered byte vector. A key is never
// stored with an all-zero vector — writing all-zeros is equivalent to
// clearing the key.
type LayerValueMap map[string][]byte

// Clone returns an independent copy of the map.
func (m LayerValueMap) Clone() LayerValueMap {
	out := make(LayerValueMap, len(m))
	for k, v := range m {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Set stores value at key unless it is all-zero, in which case the key is
// removed instead (elision invariant).
func (m LayerValueMap) Set(key string, value []byte) {
	if isAllZero(value) {
		delete(m, key)
		return
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	m[key] = cp
}

func isAllZero(v []byte) bool {
	for _, b := range v {
		if b != 0 {
			return false
		}
	}
	return true
}

// PlayheadState is the sequencer's externally-visible transport state.
type PlayheadState struct {
	IsPlaying   bool
	IsBlackout  bool
	ProgramID   string
	HasProgram  bool
	StepIndex   int
	PositionMs  int
	Spm         int
	Loop        bool
}

// RenderFrame is the snapshot emitted to listeners after every state change.
type RenderFrame struct {
	Timestamp    time.Time
	State        PlayheadState
	LayerAValues LayerValueMap
	LayerBValues LayerValueMap
	Values       LayerValueMap // the visible mix (see sequencer cross-fade)
}
