package mqttbridge

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/bbernstein/chaser-go/internal/model"
)

// lightConfig is the Home Assistant MQTT light discovery payload (spec.md
// §4.6 "Discovery").
type lightConfig struct {
	Name                string   `json:"name"`
	UniqueID            string   `json:"unique_id"`
	Schema              string   `json:"schema"`
	CommandTopic        string   `json:"command_topic"`
	StateTopic          string   `json:"state_topic"`
	AvailabilityTopic   string   `json:"availability_topic"`
	Brightness          bool     `json:"brightness"`
	SupportedColorModes []string `json:"supported_color_modes"`
	MinMireds           int      `json:"min_mireds,omitempty"`
	MaxMireds           int      `json:"max_mireds,omitempty"`
}

type numberConfig struct {
	Name         string  `json:"name"`
	UniqueID     string  `json:"unique_id"`
	CommandTopic string  `json:"command_topic"`
	StateTopic   string  `json:"state_topic"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Step         float64 `json:"step"`
}

type buttonConfig struct {
	Name         string `json:"name"`
	UniqueID     string `json:"unique_id"`
	CommandTopic string `json:"command_topic"`
}

type switchConfig struct {
	Name         string `json:"name"`
	UniqueID     string `json:"unique_id"`
	CommandTopic string `json:"command_topic"`
	StateTopic   string `json:"state_topic"`
}

func buildLightConfig(nodeID, baseTopic string, meta LightMeta) lightConfig {
	modes := make([]string, 0, 2)
	if meta.hasRGB() {
		modes = append(modes, "rgb")
	}
	if meta.hasCCT() {
		modes = append(modes, "color_temp")
	}
	if len(modes) == 0 {
		modes = append(modes, "brightness")
	}

	cfg := lightConfig{
		Name:                meta.Name,
		UniqueID:            nodeID + "_" + meta.FixtureID,
		Schema:              "json",
		CommandTopic:        topicLightSet(baseTopic, meta.FixtureID),
		StateTopic:          topicLightState(baseTopic, meta.FixtureID),
		AvailabilityTopic:   topicAvailability(baseTopic),
		Brightness:          true,
		SupportedColorModes: modes,
	}
	if meta.hasCCT() {
		cfg.MinMireds = kelvinToMired(maxKelvin)
		cfg.MaxMireds = kelvinToMired(minKelvin)
	}
	return cfg
}

func buildSpmConfig(nodeID, baseTopic string) numberConfig {
	return numberConfig{
		Name:         "Steps Per Minute",
		UniqueID:     nodeID + "_spm",
		CommandTopic: topicSpmSet(baseTopic),
		StateTopic:   topicSpmState(baseTopic),
		Min:          1,
		Max:          500,
		Step:         1,
	}
}

func buildPlayFromStartConfig(nodeID, baseTopic string) buttonConfig {
	return buttonConfig{
		Name:         "Play From Start",
		UniqueID:     nodeID + "_play_from_start",
		CommandTopic: topicPlayFromStart(baseTopic),
	}
}

func buildPauseConfig(nodeID, baseTopic string) buttonConfig {
	return buttonConfig{
		Name:         "Pause",
		UniqueID:     nodeID + "_pause",
		CommandTopic: topicPause(baseTopic),
	}
}

func buildBlackoutConfig(nodeID, baseTopic string) switchConfig {
	return switchConfig{
		Name:         "Blackout",
		UniqueID:     nodeID + "_blackout",
		CommandTopic: topicBlackoutSet(baseTopic),
		StateTopic:   topicBlackoutState(baseTopic),
	}
}

func buildProgramButtonConfig(nodeID, baseTopic string, p model.Program) buttonConfig {
	return buttonConfig{
		Name:         p.Name,
		UniqueID:     nodeID + "_program_" + p.ID,
		CommandTopic: topicProgramPress(baseTopic, p.ID),
	}
}

func lightConfigTopic(discoveryPrefix, nodeID, objectID string) string {
	return fmt.Sprintf("%s/light/%s/%s/config", discoveryPrefix, nodeID, objectID)
}
func numberConfigTopic(discoveryPrefix, nodeID, objectID string) string {
	return fmt.Sprintf("%s/number/%s/%s/config", discoveryPrefix, nodeID, objectID)
}
func buttonConfigTopic(discoveryPrefix, nodeID, objectID string) string {
	return fmt.Sprintf("%s/button/%s/%s/config", discoveryPrefix, nodeID, objectID)
}
func switchConfigTopic(discoveryPrefix, nodeID, objectID string) string {
	return fmt.Sprintf("%s/switch/%s/%s/config", discoveryPrefix, nodeID, objectID)
}
func programConfigTopic(discoveryPrefix, nodeID, programID string) string {
	return fmt.Sprintf("%s/button/%s/program_%s/config", discoveryPrefix, nodeID, programID)
}

func marshalJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// retainedCache tracks the last payload published per topic, so discovery
// publication can skip identical re-sends (spec.md §4.6: "deduplicated via
// the retained-payload cache so identical payloads are not re-sent").
type retainedCache struct {
	last map[string][]byte
}

func newRetainedCache() *retainedCache {
	return &retainedCache{last: make(map[string][]byte)}
}

// changed reports whether payload differs from the last one published to
// topic, recording it either way.
func (c *retainedCache) changed(topic string, payload []byte) bool {
	prev, ok := c.last[topic]
	if ok && bytes.Equal(prev, payload) {
		return false
	}
	c.last[topic] = payload
	return true
}

func (c *retainedCache) snapshot() map[string][]byte {
	out := make(map[string][]byte, len(c.last))
	for k, v := range c.last {
		out[k] = v
	}
	return out
}
