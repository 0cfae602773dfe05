package sequencer

import (
	"math"

	"github.com/bbernstein/chaser-go/internal/model"
)

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func lerpByte(from, to byte, r float64) byte {
	v := float64(from) + (float64(to)-float64(from))*r
	v = math.Round(v)
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return byte(v)
}

// mixMaps linearly interpolates every key present in either map by ratio r
// (0 = from, 1 = to). Keys missing from one side are treated as a zero
// vector of the other side's length. Results that end up all-zero are
// elided by LayerValueMap.Set.
func mixMaps(from, to model.LayerValueMap, r float64) model.LayerValueMap {
	out := make(model.LayerValueMap)
	seen := make(map[string]struct{}, len(from)+len(to))
	for k := range from {
		seen[k] = struct{}{}
	}
	for k := range to {
		seen[k] = struct{}{}
	}
	for k := range seen {
		fv := from[k]
		tv := to[k]
		n := len(tv)
		if n == 0 {
			n = len(fv)
		}
		vec := make([]byte, n)
		for i := 0; i < n; i++ {
			var fb, tb byte
			if i < len(fv) {
				fb = fv[i]
			}
			if i < len(tv) {
				tb = tv[i]
			}
			vec[i] = lerpByte(fb, tb, r)
		}
		out.Set(k, vec)
	}
	return out
}

// buildLayerB computes the sequencer's visible layer for the interpolation
// between prev and curr steps at ratio r (spec §4.2 "Layer B construction").
// When blackout is true the result is always empty.
func buildLayerB(prev, curr model.ProgramStep, r float64, blackout bool) model.LayerValueMap {
	out := make(model.LayerValueMap)
	if blackout {
		return out
	}

	type keyPair struct{ fixtureID, featureID string }
	seen := make(map[keyPair]struct{})
	for _, f := range prev.Frames {
		seen[keyPair{f.FixtureID, f.FeatureID}] = struct{}{}
	}
	for _, f := range curr.Frames {
		seen[keyPair{f.FixtureID, f.FeatureID}] = struct{}{}
	}

	for kp := range seen {
		pf := prev.FrameFor(kp.fixtureID, kp.featureID)
		cf := curr.FrameFor(kp.fixtureID, kp.featureID)

		var pv, cv []byte
		if pf != nil {
			pv = pf.Value
		}
		if cf != nil {
			cv = cf.Value
		}
		n := len(cv)
		if n == 0 {
			n = len(pv)
		}
		vec := make([]byte, n)
		for i := 0; i < n; i++ {
			var fb, tb byte
			if i < len(pv) {
				fb = pv[i]
			}
			if i < len(cv) {
				tb = cv[i]
			}
			vec[i] = lerpByte(fb, tb, r)
		}
		out.Set(model.FeatureKey(kp.fixtureID, kp.featureID), vec)
	}

	return out
}

// fadeRatio computes r for the current step's fade, per spec §4.2: r=1 when
// paused or fadeMs==0, else clamp01(positionMs/fadeMs).
func fadeRatio(isPlaying bool, fadeMs, positionMs int) float64 {
	if !isPlaying || fadeMs <= 0 {
		return 1
	}
	return clamp01(float64(positionMs) / float64(fadeMs))
}
