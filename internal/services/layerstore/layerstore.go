// Package layerstore implements Layer A: the manual static override values
// keyed by fixture+feature (spec §4.3). It is the sequencer's own override
// table, grounded in the teacher's dmx.Service channelOverrides map but
// keyed by feature rather than raw DMX channel, and clamped to the flat
// wire range [0,255] — a feature's declared (Min,Max) range is applied
// exactly once, later, by the render packet builder (spec §4.4).
package layerstore

import (
	"sync"

	"github.com/bbernstein/chaser-go/internal/model"
)

// OpKind tags a single entry of a Layer A batch.
type OpKind int

const (
	OpSet OpKind = iota
	OpClearFeature
	OpClearFixture
)

// Op is one operation of an applyLayerABatch call.
type Op struct {
	Kind      OpKind
	FixtureID string
	FeatureID string // unused for OpClearFixture
	Value     []byte // only meaningful for OpSet
}

// Store holds Layer A values for a single environment. Features that don't
// resolve against the environment's fixture catalog are silently dropped,
// matching the defensive-clamp error handling used across the core.
type Store struct {
	mu       sync.Mutex
	values   model.LayerValueMap
	fixtures map[string]model.EnvironmentFixture
	catalog  map[string]model.FixtureType
}

// New creates a Store for the given environment and fixture-type catalog.
func New(env model.Environment, catalog map[string]model.FixtureType) *Store {
	fixtures := make(map[string]model.EnvironmentFixture, len(env.Fixtures))
	for _, f := range env.Fixtures {
		fixtures[f.ID] = f
	}
	return &Store{
		values:   make(model.LayerValueMap),
		fixtures: fixtures,
		catalog:  catalog,
	}
}

func (s *Store) resolveFeature(fixtureID, featureID string) (model.Feature, bool) {
	ef, ok := s.fixtures[fixtureID]
	if !ok {
		return model.Feature{}, false
	}
	ft, ok := s.catalog[ef.FixtureTypeID]
	if !ok {
		return model.Feature{}, false
	}
	feat := ft.FeatureByID(featureID)
	if feat == nil {
		return model.Feature{}, false
	}
	return *feat, true
}

// clampVector validates value against feat's channel count and clamps each
// element to the wire range [0,255]. It deliberately does not apply
// feat.ClampInt's declared (Min,Max) range here: that mapping belongs to
// the render packet builder (spec §4.4), which applies it once when
// building the DMX payload. Applying it here too would double-map a
// ranged feature (e.g. Min=0, Max<255): a stored value already scaled into
// [Min,Max] would be scaled a second time at render, producing roughly
// max²/255 instead of max.
func (s *Store) clampVector(feat model.Feature, value []byte) ([]byte, bool) {
	if len(value) != feat.Kind.ChannelCount() {
		return nil, false
	}
	out := make([]byte, len(value))
	for i, v := range value {
		out[i] = byte(clampByte(int(v)))
	}
	return out, true
}

func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// SetValue clamps and stores value for (fixtureID, featureID). Returns
// whether the visible map changed.
func (s *Store) SetValue(fixtureID, featureID string, value []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setValueLocked(fixtureID, featureID, value)
}

func (s *Store) setValueLocked(fixtureID, featureID string, value []byte) bool {
	feat, ok := s.resolveFeature(fixtureID, featureID)
	if !ok {
		return false
	}
	clamped, ok := s.clampVector(feat, value)
	if !ok {
		return false
	}
	key := model.FeatureKey(fixtureID, featureID)
	before, existed := s.values[key]
	s.values.Set(key, clamped)
	after, stillExists := s.values[key]
	if existed != stillExists {
		return true
	}
	if !stillExists {
		return false
	}
	return !bytesEqual(before, after)
}

// ClearFeature removes the override for (fixtureID, featureID). Returns
// whether a value was actually removed.
func (s *Store) ClearFeature(fixtureID, featureID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearFeatureLocked(fixtureID, featureID)
}

func (s *Store) clearFeatureLocked(fixtureID, featureID string) bool {
	key := model.FeatureKey(fixtureID, featureID)
	if _, ok := s.values[key]; !ok {
		return false
	}
	delete(s.values, key)
	return true
}

// ClearFixture removes every override for fixtureID. Returns whether
// anything was removed.
func (s *Store) ClearFixture(fixtureID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearFixtureLocked(fixtureID)
}

func (s *Store) clearFixtureLocked(fixtureID string) bool {
	prefix := fixtureID + ":"
	changed := false
	for key := range s.values {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(s.values, key)
			changed = true
		}
	}
	return changed
}

// ApplyBatch applies a sequence of operations atomically (under one lock)
// and returns whether any of them changed the visible map. A batch produces
// at most one logical change, matching spec §5's "at most one frame" rule
// for the caller to act on.
func (s *Store) ApplyBatch(ops []Op) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, op := range ops {
		var did bool
		switch op.Kind {
		case OpSet:
			did = s.setValueLocked(op.FixtureID, op.FeatureID, op.Value)
		case OpClearFeature:
			did = s.clearFeatureLocked(op.FixtureID, op.FeatureID)
		case OpClearFixture:
			did = s.clearFixtureLocked(op.FixtureID)
		}
		changed = changed || did
	}
	return changed
}

// Snapshot returns an independent copy of the current Layer A values.
func (s *Store) Snapshot() model.LayerValueMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Clone()
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
