package mqttbridge

import (
	"math"

	"github.com/bbernstein/chaser-go/internal/model"
	"github.com/bbernstein/chaser-go/internal/services/layerstore"
)

// ColorMode is the effective light-command mode, per spec.md §4.6.
type ColorMode string

const (
	ModeRGB        ColorMode = "rgb"
	ModeColorTemp  ColorMode = "color_temp"
	ModeBrightness ColorMode = "brightness"
)

// LightMeta describes how one environment fixture is exposed as an MQTT
// light (spec.md §4.6 "Light meta"): the first matching feature of each
// kind, picked once when the bridge is built.
type LightMeta struct {
	FixtureID       string
	Name            string
	RGBFeatureID    string // "" if absent
	CCTFeatureID    string
	DimmerFeatureID string
}

func (m LightMeta) hasRGB() bool    { return m.RGBFeatureID != "" }
func (m LightMeta) hasCCT() bool    { return m.CCTFeatureID != "" }
func (m LightMeta) hasDimmer() bool { return m.DimmerFeatureID != "" }

// BuildLightMeta scans env's fixtures and returns the light meta for every
// fixture whose type carries at least one of {rgb, cct, scalar}, unless it
// was explicitly opted out via MQTTOptOut.
func BuildLightMeta(env model.Environment, catalog map[string]model.FixtureType) []LightMeta {
	var metas []LightMeta
	for _, ef := range env.Fixtures {
		if ef.MQTTOptOut {
			continue
		}
		ft, ok := catalog[ef.FixtureTypeID]
		if !ok {
			continue
		}
		meta := LightMeta{FixtureID: ef.ID, Name: ef.Name}
		for _, f := range ft.Features {
			switch f.Kind {
			case model.FeatureRGB:
				if meta.RGBFeatureID == "" {
					meta.RGBFeatureID = f.ID
				}
			case model.FeatureCCT:
				if meta.CCTFeatureID == "" {
					meta.CCTFeatureID = f.ID
				}
			case model.FeatureScalar:
				if meta.DimmerFeatureID == "" {
					meta.DimmerFeatureID = f.ID
				}
			}
		}
		if meta.hasRGB() || meta.hasCCT() || meta.hasDimmer() {
			metas = append(metas, meta)
		}
	}
	return metas
}

// LightState is the bridge's remembered light model for one fixture,
// independent of what is currently in Layer A (spec.md §4.6 "Runtime key"
// per-fixture FixtureLightState).
type LightState struct {
	Mode       ColorMode
	Brightness int // [0,255]
	BaseRGB    [3]int
	BaseCCT    [2]int // [warm, cool] 0-255 weights
}

func defaultLightState(meta LightMeta) LightState {
	mode := ModeBrightness
	switch {
	case meta.hasRGB():
		mode = ModeRGB
	case meta.hasCCT():
		mode = ModeColorTemp
	}
	return LightState{
		Mode:       mode,
		Brightness: 255,
		BaseRGB:    [3]int{255, 255, 255},
		BaseCCT:    [2]int{255, 255},
	}
}

// LightCommand is the parsed payload of a {base}/light/{fixtureId}/set
// message.
type LightCommand struct {
	HasState      bool
	On            bool
	HasBrightness bool
	Brightness    int
	HasColor      bool
	R, G, B       int
	HasColorTemp  bool
	Mireds        int
}

const (
	minKelvin = 2700
	maxKelvin = 6500
)

func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func clampKelvin(k float64) float64 {
	if k < minKelvin {
		return minKelvin
	}
	if k > maxKelvin {
		return maxKelvin
	}
	return k
}

func kelvinToMired(k float64) int {
	return int(math.Round(1_000_000.0 / k))
}

func miredToKelvin(mireds int) float64 {
	if mireds <= 0 {
		return maxKelvin
	}
	return 1_000_000.0 / float64(mireds)
}

// applyCommand mutates state per spec.md §4.6's light-command semantics and
// returns the layerstore ops to apply, or (nil, true) when the command is
// an OFF that should clear the fixture's overrides entirely.
func applyCommand(meta LightMeta, state *LightState, cmd LightCommand) ([]layerstore.Op, bool) {
	if cmd.HasState && !cmd.On {
		state.Brightness = 0
		return nil, true
	}

	wasOff := state.Brightness == 0
	if cmd.HasBrightness {
		state.Brightness = clampByte(cmd.Brightness)
	} else if wasOff {
		state.Brightness = 255
	}

	if cmd.HasColor && meta.hasRGB() {
		state.BaseRGB = [3]int{clampByte(cmd.R), clampByte(cmd.G), clampByte(cmd.B)}
		state.Mode = ModeRGB
	}
	if cmd.HasColorTemp && meta.hasCCT() {
		k := clampKelvin(miredToKelvin(cmd.Mireds))
		warm := 255.0 * (maxKelvin - k) / (maxKelvin - minKelvin)
		cool := 255.0 * (k - minKelvin) / (maxKelvin - minKelvin)
		state.BaseCCT = [2]int{clampByte(int(math.Round(warm))), clampByte(int(math.Round(cool)))}
		state.Mode = ModeColorTemp
	}

	return opsForMode(meta, *state), false
}

func scaleByBrightness(base int, brightness int) int {
	return clampByte(int(math.Round(float64(base) * float64(brightness) / 255.0)))
}

// opsForMode produces the layerstore ops for state's current mode, per
// spec.md §4.6's "Produce operations by mode" table, falling back to
// whichever color feature is present when no dimmer feature exists.
func opsForMode(meta LightMeta, state LightState) []layerstore.Op {
	var ops []layerstore.Op

	switch {
	case state.Mode == ModeRGB && meta.hasRGB():
		ops = append(ops, layerstore.Op{
			Kind: layerstore.OpSet, FixtureID: meta.FixtureID, FeatureID: meta.RGBFeatureID,
			Value: []byte{
				byte(scaleByBrightness(state.BaseRGB[0], state.Brightness)),
				byte(scaleByBrightness(state.BaseRGB[1], state.Brightness)),
				byte(scaleByBrightness(state.BaseRGB[2], state.Brightness)),
			},
		})
		if meta.hasCCT() {
			ops = append(ops, layerstore.Op{Kind: layerstore.OpClearFeature, FixtureID: meta.FixtureID, FeatureID: meta.CCTFeatureID})
		}
		if meta.hasDimmer() {
			ops = append(ops, layerstore.Op{Kind: layerstore.OpClearFeature, FixtureID: meta.FixtureID, FeatureID: meta.DimmerFeatureID})
		}

	case state.Mode == ModeColorTemp && meta.hasCCT():
		ops = append(ops, layerstore.Op{
			Kind: layerstore.OpSet, FixtureID: meta.FixtureID, FeatureID: meta.CCTFeatureID,
			Value: []byte{
				byte(scaleByBrightness(state.BaseCCT[0], state.Brightness)),
				byte(scaleByBrightness(state.BaseCCT[1], state.Brightness)),
			},
		})
		if meta.hasRGB() {
			ops = append(ops, layerstore.Op{Kind: layerstore.OpClearFeature, FixtureID: meta.FixtureID, FeatureID: meta.RGBFeatureID})
		}
		if meta.hasDimmer() {
			ops = append(ops, layerstore.Op{Kind: layerstore.OpClearFeature, FixtureID: meta.FixtureID, FeatureID: meta.DimmerFeatureID})
		}

	case meta.hasDimmer():
		ops = append(ops, layerstore.Op{
			Kind: layerstore.OpSet, FixtureID: meta.FixtureID, FeatureID: meta.DimmerFeatureID,
			Value: []byte{byte(clampByte(state.Brightness))},
		})

	case meta.hasCCT():
		ops = append(ops, layerstore.Op{
			Kind: layerstore.OpSet, FixtureID: meta.FixtureID, FeatureID: meta.CCTFeatureID,
			Value: []byte{
				byte(scaleByBrightness(state.BaseCCT[0], state.Brightness)),
				byte(scaleByBrightness(state.BaseCCT[1], state.Brightness)),
			},
		})

	case meta.hasRGB():
		ops = append(ops, layerstore.Op{
			Kind: layerstore.OpSet, FixtureID: meta.FixtureID, FeatureID: meta.RGBFeatureID,
			Value: []byte{
				byte(scaleByBrightness(state.BaseRGB[0], state.Brightness)),
				byte(scaleByBrightness(state.BaseRGB[1], state.Brightness)),
				byte(scaleByBrightness(state.BaseRGB[2], state.Brightness)),
			},
		})
	}

	return ops
}

// mirrorFromLayerA derives the published state (spec.md §4.6 "Layer-A
// state mirroring") from the fixture's current rgb/cct/dimmer override
// values, reconstructing normalized base color and updating state in
// place for stable round-tripping.
func mirrorFromLayerA(meta LightMeta, state *LightState, values model.LayerValueMap) mirroredState {
	rgb, hasRGB := values[model.FeatureKey(meta.FixtureID, meta.RGBFeatureID)]
	cct, hasCCT := values[model.FeatureKey(meta.FixtureID, meta.CCTFeatureID)]
	dimmer, hasDimmer := values[model.FeatureKey(meta.FixtureID, meta.DimmerFeatureID)]

	rgbMax := maxByte(rgb)
	cctMax := maxByte(cct)

	switch {
	case meta.hasRGB() && hasRGB && rgbMax > 0:
		state.Mode = ModeRGB
		if state.Brightness == 0 {
			state.Brightness = int(rgbMax)
		}
		state.BaseRGB = normalizeRatio3(rgb, state.Brightness)
	case meta.hasCCT() && hasCCT && cctMax > 0:
		state.Mode = ModeColorTemp
		if state.Brightness == 0 {
			state.Brightness = int(cctMax)
		}
		state.BaseCCT = normalizeRatio2(cct, state.Brightness)
	case meta.hasDimmer() && hasDimmer:
		state.Mode = ModeBrightness
		state.Brightness = int(dimmer[0])
	default:
		state.Brightness = 0
	}

	return mirroredState{
		On:         state.Brightness > 0,
		Brightness: state.Brightness,
		Mode:       state.Mode,
		RGB:        state.BaseRGB,
		Mireds:     miredsFromCCT(state.BaseCCT),
	}
}

type mirroredState struct {
	On         bool
	Brightness int
	Mode       ColorMode
	RGB        [3]int
	Mireds     int
}

func maxByte(v []byte) byte {
	var m byte
	for _, b := range v {
		if b > m {
			m = b
		}
	}
	return m
}

func normalizeRatio3(v []byte, brightness int) [3]int {
	if brightness <= 0 {
		return [3]int{255, 255, 255}
	}
	var out [3]int
	for i := 0; i < 3 && i < len(v); i++ {
		out[i] = clampByte(int(math.Round(float64(v[i]) * 255.0 / float64(brightness))))
	}
	return out
}

func normalizeRatio2(v []byte, brightness int) [2]int {
	if brightness <= 0 {
		return [2]int{255, 255}
	}
	var out [2]int
	for i := 0; i < 2 && i < len(v); i++ {
		out[i] = clampByte(int(math.Round(float64(v[i]) * 255.0 / float64(brightness))))
	}
	return out
}

// miredsFromCCT inverts the warm/cool weight pair back into a mireds value
// for publishing, assuming the same linear warm/cool split used when the
// command was applied.
func miredsFromCCT(cct [2]int) int {
	warm, cool := float64(cct[0]), float64(cct[1])
	total := warm + cool
	if total <= 0 {
		return kelvinToMired(minKelvin)
	}
	k := minKelvin + (cool/total)*(maxKelvin-minKelvin)
	return kelvinToMired(k)
}
