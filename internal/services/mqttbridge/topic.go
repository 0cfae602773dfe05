// Package mqttbridge implements the MQTT control/telemetry bridge (spec.md
// §4.6): Home Assistant-style discovery publication, command ingestion
// into batched Layer A operations, and light-state mirroring. There is no
// MQTT client in the retrieval pack (SPEC_FULL.md DOMAIN STACK records
// github.com/eclipse/paho.mqtt.golang as the one named out-of-pack
// dependency); the surrounding connection-lifecycle and retained-cache
// shape is grounded on the teacher's dmx.Service connection/reconnect
// handling, generalized from a single UDP socket to a pub/sub client.
package mqttbridge

import "strings"

// sanitize lowercases s and collapses any run of characters outside
// [a-z0-9_] into a single underscore, trimming leading/trailing
// underscores, per spec.md §4.6's nodeId/baseTopic rules.
func sanitize(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
			lastUnderscore = r == '_'
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

// DefaultBaseTopic returns "chaser/{sanitized(envId)}/{sanitized(outputId)}".
func DefaultBaseTopic(envID, outputID string) string {
	return "chaser/" + sanitize(envID) + "/" + sanitize(outputID)
}

// DefaultNodeID returns "chaser_{sanitized(envId)}".
func DefaultNodeID(envID string) string {
	return "chaser_" + sanitize(envID)
}

const defaultDiscoveryPrefix = "homeassistant"

func topicAvailability(base string) string  { return base + "/availability" }
func topicBlackoutState(base string) string { return base + "/control/blackout/state" }
func topicBlackoutSet(base string) string   { return base + "/control/blackout/set" }
func topicSpmState(base string) string      { return base + "/control/spm/state" }
func topicSpmSet(base string) string        { return base + "/control/spm/set" }
func topicPlayFromStart(base string) string { return base + "/control/play_from_start/press" }
func topicPause(base string) string         { return base + "/control/pause/press" }
func topicProgramPress(base, programID string) string {
	return base + "/program/" + programID + "/press"
}
func topicLightSet(base, fixtureID string) string {
	return base + "/light/" + fixtureID + "/set"
}
func topicLightState(base, fixtureID string) string {
	return base + "/light/" + fixtureID + "/state"
}
