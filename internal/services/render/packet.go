// Package render implements the render-packet builder (spec.md §4.4): it
// turns a RenderFrame's already-mixed visible layer into per-universe
// 512-byte DMX buffers, addressed through each fixture's declared channel
// layout. Grounded on the teacher's dmx.Service.outputDMX, which owns the
// same "every modeled channel is explicitly zeroed every render" invariant
// over a plain map[int][]byte.
package render

import (
	"strings"

	"github.com/bbernstein/chaser-go/internal/model"
)

// Packet is the output of BuildPacket: one 512-byte DMX buffer per universe
// touched by the environment's fixtures.
type Packet struct {
	EnvironmentID string
	DMXByUniverse map[int][]byte
}

const universeSize = 512

// BuildPacket renders frame against env's fixtures and catalog, per spec
// §4.4. Unknown fixtures or unresolvable feature keys are silently skipped,
// matching the core's defensive-clamp error handling (spec §7).
func BuildPacket(env model.Environment, catalog map[string]model.FixtureType, frame model.RenderFrame) *Packet {
	p := &Packet{
		EnvironmentID: env.ID,
		DMXByUniverse: make(map[int][]byte),
	}

	fixturesByID := make(map[string]model.EnvironmentFixture, len(env.Fixtures))
	for _, f := range env.Fixtures {
		fixturesByID[f.ID] = f

		ft, ok := catalog[f.FixtureTypeID]
		if !ok {
			continue
		}
		buf := ensureUniverse(p, f.Universe)
		for ch := 1; ch <= ft.TotalChannels; ch++ {
			idx := f.Address + ch - 1
			if idx >= 1 && idx <= universeSize {
				buf[idx-1] = 0
			}
		}
	}

	for key, values := range frame.Values {
		fixtureID, featureID, ok := splitKey(key)
		if !ok {
			continue
		}
		ef, ok := fixturesByID[fixtureID]
		if !ok {
			continue
		}
		ft, ok := catalog[ef.FixtureTypeID]
		if !ok {
			continue
		}
		feat := ft.FeatureByID(featureID)
		if feat == nil {
			continue
		}

		buf := ensureUniverse(p, ef.Universe)
		writeFeature(buf, ef, *feat, values)
	}

	return p
}

func ensureUniverse(p *Packet, universe int) []byte {
	buf, ok := p.DMXByUniverse[universe]
	if !ok {
		buf = make([]byte, universeSize)
		p.DMXByUniverse[universe] = buf
	}
	return buf
}

func splitKey(key string) (fixtureID, featureID string, ok bool) {
	i := strings.IndexByte(key, ':')
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

func writeFeature(buf []byte, ef model.EnvironmentFixture, feat model.Feature, values []byte) {
	for i, ch := range feat.Channels {
		var raw int
		switch {
		case i < len(values):
			raw = int(values[i])
		case len(values) > 0:
			raw = int(values[0])
		default:
			raw = 0
		}
		if raw < 0 {
			raw = 0
		}
		if raw > 255 {
			raw = 255
		}

		mapped := mapToRange(raw, feat)
		idx := ef.Address + ch - 1
		if idx >= 1 && idx <= universeSize {
			buf[idx-1] = byte(mapped)
		}
	}
}

// mapToRange implements spec §4.4's feature-range mapping: a declared
// [0,max<255] range is a linear downscale from the DMX domain; any other
// declared range is a plain clamp.
func mapToRange(raw int, feat model.Feature) int {
	if !feat.HasRange {
		return raw
	}
	if feat.Min == 0 && feat.Max > 0 && feat.Max < 255 {
		v := (float64(raw) / 255.0) * float64(feat.Max)
		return roundInt(v)
	}
	return feat.ClampInt(raw)
}

func roundInt(v float64) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}
