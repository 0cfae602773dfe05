package mqttbridge

import (
	"encoding/json"
	"strconv"
	"strings"
)

// parseSpm parses a {base}/control/spm/set payload: either a bare number
// or {"value": number} (spec.md §4.6).
func parseSpm(payload []byte) (int, bool) {
	if v, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64); err == nil {
		return int(v), true
	}
	var obj struct {
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(payload, &obj); err == nil && obj.Value != nil {
		return int(*obj.Value), true
	}
	return 0, false
}

// parseBlackout parses a {base}/control/blackout/set payload: "ON"/"OFF",
// "true"/"false", "1"/"0", or {"state": ...} wrapping any of those.
func parseBlackout(payload []byte) (bool, bool) {
	s := strings.TrimSpace(string(payload))
	if v, ok := parseBoolToken(s); ok {
		return v, true
	}
	var obj struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(payload, &obj); err == nil {
		if v, ok := parseBoolToken(obj.State); ok {
			return v, true
		}
	}
	return false, false
}

func parseBoolToken(s string) (bool, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ON", "TRUE", "1":
		return true, true
	case "OFF", "FALSE", "0":
		return false, true
	default:
		return false, false
	}
}

// lightCommandPayload mirrors the JSON schema of {base}/light/{id}/set,
// per spec.md §4.6 "Light command payload".
type lightCommandPayload struct {
	State      *string `json:"state"`
	Brightness *int    `json:"brightness"`
	Color      *struct {
		R int `json:"r"`
		G int `json:"g"`
		B int `json:"b"`
	} `json:"color"`
	ColorTemp *int `json:"color_temp"`
}

func parseLightCommand(payload []byte) (LightCommand, error) {
	var raw lightCommandPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return LightCommand{}, err
	}

	cmd := LightCommand{}
	if raw.State != nil {
		on, ok := parseBoolToken(*raw.State)
		cmd.HasState = ok
		cmd.On = on
	}
	if raw.Brightness != nil {
		cmd.HasBrightness = true
		cmd.Brightness = *raw.Brightness
	}
	if raw.Color != nil {
		cmd.HasColor = true
		cmd.R, cmd.G, cmd.B = raw.Color.R, raw.Color.G, raw.Color.B
	}
	if raw.ColorTemp != nil {
		cmd.HasColorTemp = true
		cmd.Mireds = *raw.ColorTemp
	}
	return cmd, nil
}

// parseFixtureIDFromLightSetTopic extracts {fixtureId} from
// "{base}/light/{fixtureId}/set", returning false if topic doesn't match
// that shape under base.
func parseFixtureIDFromLightSetTopic(base, topic string) (string, bool) {
	prefix := base + "/light/"
	const suffix = "/set"
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, suffix) {
		return "", false
	}
	return topic[len(prefix) : len(topic)-len(suffix)], true
}

// parseProgramIDFromPressTopic extracts {programId} from
// "{base}/program/{programId}/press".
func parseProgramIDFromPressTopic(base, topic string) (string, bool) {
	prefix := base + "/program/"
	const suffix = "/press"
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, suffix) {
		return "", false
	}
	return topic[len(prefix) : len(topic)-len(suffix)], true
}
