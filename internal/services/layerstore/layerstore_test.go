package layerstore

import (
	"testing"

	"github.com/bbernstein/chaser-go/internal/model"
)

func testEnv() (model.Environment, map[string]model.FixtureType) {
	ftReal := model.FixtureType{
		ID:            "par",
		TotalChannels: 5,
		Features: []model.Feature{
			{ID: "rgb", Kind: model.FeatureRGB, Channels: []int{1, 2, 3}},
			{ID: "dimmer", Kind: model.FeatureScalar, Channels: []int{4}, HasRange: true, Min: 0, Max: 200},
		},
	}
	env := model.Environment{
		ID: "env1",
		Fixtures: []model.EnvironmentFixture{
			{ID: "f1", FixtureTypeID: "par", Universe: 0, Address: 1},
		},
	}
	catalog := map[string]model.FixtureType{"par": ftReal}
	return env, catalog
}

func TestStore_SetValue_ClampsAndElidesZero(t *testing.T) {
	env, catalog := testEnv()
	s := New(env, catalog)

	if !s.SetValue("f1", "rgb", []byte{10, 20, 30}) {
		t.Fatal("expected SetValue to report a change")
	}
	snap := s.Snapshot()
	if got := snap[model.FeatureKey("f1", "rgb")]; string(got) != string([]byte{10, 20, 30}) {
		t.Errorf("rgb = %v, want [10 20 30]", got)
	}

	// dimmer declares a (0,200) render range, but Layer A stores the raw
	// [0,255] wire value unclamped by that range (spec §4.3): the range is
	// applied once, later, by the render packet builder (spec §4.4).
	if !s.SetValue("f1", "dimmer", []byte{255}) {
		t.Fatal("expected change")
	}
	snap = s.Snapshot()
	if got := snap[model.FeatureKey("f1", "dimmer")]; len(got) != 1 || got[0] != 255 {
		t.Errorf("dimmer = %v, want [255] (stored at wire range, not feature range)", got)
	}

	if !s.SetValue("f1", "rgb", []byte{0, 0, 0}) {
		t.Fatal("expected change (removal)")
	}
	snap = s.Snapshot()
	if _, ok := snap[model.FeatureKey("f1", "rgb")]; ok {
		t.Error("all-zero value should be elided from the map")
	}
}

func TestStore_SetValue_UnknownFixtureOrFeatureIsNoop(t *testing.T) {
	env, catalog := testEnv()
	s := New(env, catalog)

	if s.SetValue("missing", "rgb", []byte{1, 2, 3}) {
		t.Error("unknown fixture should be a no-op")
	}
	if s.SetValue("f1", "missing", []byte{1}) {
		t.Error("unknown feature should be a no-op")
	}
	if s.SetValue("f1", "rgb", []byte{1, 2}) {
		t.Error("wrong arity should be a no-op")
	}
}

func TestStore_ClearFeatureAndFixture(t *testing.T) {
	env, catalog := testEnv()
	s := New(env, catalog)

	s.SetValue("f1", "rgb", []byte{10, 20, 30})
	s.SetValue("f1", "dimmer", []byte{50})

	if !s.ClearFeature("f1", "rgb") {
		t.Fatal("expected ClearFeature to report a change")
	}
	if s.ClearFeature("f1", "rgb") {
		t.Error("clearing an already-absent feature should be a no-op")
	}

	s.SetValue("f1", "rgb", []byte{1, 2, 3})
	if !s.ClearFixture("f1") {
		t.Fatal("expected ClearFixture to report a change")
	}
	snap := s.Snapshot()
	if len(snap) != 0 {
		t.Errorf("expected empty map after ClearFixture, got %v", snap)
	}
}

func TestStore_ApplyBatch(t *testing.T) {
	env, catalog := testEnv()
	s := New(env, catalog)

	changed := s.ApplyBatch([]Op{
		{Kind: OpSet, FixtureID: "f1", FeatureID: "rgb", Value: []byte{5, 5, 5}},
		{Kind: OpSet, FixtureID: "f1", FeatureID: "dimmer", Value: []byte{10}},
		{Kind: OpClearFeature, FixtureID: "f1", FeatureID: "dimmer"},
	})
	if !changed {
		t.Fatal("expected batch to report a change")
	}

	snap := s.Snapshot()
	if _, ok := snap[model.FeatureKey("f1", "dimmer")]; ok {
		t.Error("dimmer should have been cleared by the batch")
	}
	if got := snap[model.FeatureKey("f1", "rgb")]; string(got) != string([]byte{5, 5, 5}) {
		t.Errorf("rgb = %v, want [5 5 5]", got)
	}
}
