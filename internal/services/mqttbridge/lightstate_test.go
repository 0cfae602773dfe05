package mqttbridge

import (
	"testing"

	"github.com/bbernstein/chaser-go/internal/model"
)

func rgbCctMeta() LightMeta {
	return LightMeta{FixtureID: "f1", Name: "Fixture 1", RGBFeatureID: "rgb", CCTFeatureID: "cct", DimmerFeatureID: "dimmer"}
}

func TestApplyCommand_OffClearsFixture(t *testing.T) {
	meta := rgbCctMeta()
	state := defaultLightState(meta)
	_, clearAll := applyCommand(meta, &state, LightCommand{HasState: true, On: false})
	if !clearAll {
		t.Fatal("expected OFF to signal clearAll")
	}
	if state.Brightness != 0 {
		t.Fatalf("expected brightness zeroed, got %d", state.Brightness)
	}
}

func TestApplyCommand_ColorSetsRGBMode(t *testing.T) {
	meta := rgbCctMeta()
	state := defaultLightState(meta)
	ops, clearAll := applyCommand(meta, &state, LightCommand{HasColor: true, R: 255, G: 0, B: 0, HasBrightness: true, Brightness: 255})
	if clearAll {
		t.Fatal("did not expect clearAll")
	}
	if state.Mode != ModeRGB {
		t.Fatalf("expected rgb mode, got %s", state.Mode)
	}
	foundSet := false
	for _, op := range ops {
		if op.FeatureID == "rgb" {
			foundSet = true
			if op.Value[0] != 255 || op.Value[1] != 0 || op.Value[2] != 0 {
				t.Fatalf("expected full red, got %v", op.Value)
			}
		}
	}
	if !foundSet {
		t.Fatal("expected an op setting the rgb feature")
	}
}

func TestApplyCommand_ColorTempSetsCCTMode(t *testing.T) {
	meta := rgbCctMeta()
	state := defaultLightState(meta)
	// 2700K (warm end) -> mireds = 1e6/2700 ~= 370
	ops, _ := applyCommand(meta, &state, LightCommand{HasColorTemp: true, Mireds: 370, HasBrightness: true, Brightness: 255})
	if state.Mode != ModeColorTemp {
		t.Fatalf("expected color_temp mode, got %s", state.Mode)
	}
	found := false
	for _, op := range ops {
		if op.FeatureID == "cct" {
			found = true
			if op.Value[0] < 200 {
				t.Fatalf("expected warm-dominant cct at 2700K, got %v", op.Value)
			}
		}
	}
	if !found {
		t.Fatal("expected a cct set op")
	}
}

func TestApplyCommand_BrightnessOnlyWithDimmer(t *testing.T) {
	meta := LightMeta{FixtureID: "f2", DimmerFeatureID: "dimmer"}
	state := defaultLightState(meta)
	ops, _ := applyCommand(meta, &state, LightCommand{HasBrightness: true, Brightness: 128})
	if len(ops) != 1 || ops[0].FeatureID != "dimmer" || ops[0].Value[0] != 128 {
		t.Fatalf("expected single dimmer op at 128, got %+v", ops)
	}
}

func TestMirrorFromLayerA_RGBDominant(t *testing.T) {
	meta := rgbCctMeta()
	state := defaultLightState(meta)
	values := model.LayerValueMap{
		model.FeatureKey("f1", "rgb"): {255, 128, 0},
	}
	mirrored := mirrorFromLayerA(meta, &state, values)
	if !mirrored.On {
		t.Fatal("expected light reported on")
	}
	if mirrored.Mode != ModeRGB {
		t.Fatalf("expected rgb mode, got %s", mirrored.Mode)
	}
	if mirrored.RGB[0] != 255 {
		t.Fatalf("expected normalized red channel at full scale, got %v", mirrored.RGB)
	}
}

func TestMirrorFromLayerA_NothingSetReportsOff(t *testing.T) {
	meta := rgbCctMeta()
	state := defaultLightState(meta)
	mirrored := mirrorFromLayerA(meta, &state, model.LayerValueMap{})
	if mirrored.On {
		t.Fatal("expected light reported off with no layer-A values")
	}
}

func TestBuildLightMeta_ExposesByDefaultAndRespectsOptOut(t *testing.T) {
	env := model.Environment{
		Fixtures: []model.EnvironmentFixture{
			{ID: "f1", FixtureTypeID: "par"},
			{ID: "f2", FixtureTypeID: "par", MQTTOptOut: true},
		},
	}
	catalog := map[string]model.FixtureType{
		"par": {ID: "par", Features: []model.Feature{{ID: "dimmer", Kind: model.FeatureScalar}}},
	}
	metas := BuildLightMeta(env, catalog)
	if len(metas) != 1 || metas[0].FixtureID != "f1" {
		t.Fatalf("expected only f1 exposed (f2 opted out), got %+v", metas)
	}
}
