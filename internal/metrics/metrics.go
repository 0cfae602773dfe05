// Package metrics exposes the process's Prometheus instrumentation. It is
// an ambient supplement (SPEC_FULL.md DOMAIN STACK): spec.md names no
// metrics surface, but the teacher's own debug HTTP server (cmd/server)
// always exposes one, so this repo carries the same habit using
// prometheus/client_golang, grounded on its presence in the retrieval
// pack's snapetech-plexTuner go.mod.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesEmitted counts every RenderFrame a sequencer has emitted to its
	// listeners, labeled by environment id.
	FramesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chaser_frames_emitted_total",
		Help: "Total number of render frames emitted by the sequencer.",
	}, []string{"environment_id"})

	// CrossfadesStarted counts every mode-switch cross-fade started.
	CrossfadesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chaser_crossfades_started_total",
		Help: "Total number of mode-switch cross-fades started.",
	}, []string{"environment_id"})

	// ArtNetSendErrors counts UDP write failures from the Art-Net sender.
	ArtNetSendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chaser_artnet_send_errors_total",
		Help: "Total number of Art-Net UDP send errors.",
	}, []string{"host", "port"})

	// ArtNetPacketsSent counts successful Art-Net UDP writes.
	ArtNetPacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chaser_artnet_packets_sent_total",
		Help: "Total number of Art-Net UDP packets sent.",
	}, []string{"host", "port"})

	// MQTTPublishes counts messages published to the MQTT broker, labeled
	// by topic class (discovery, state, raw).
	MQTTPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chaser_mqtt_publishes_total",
		Help: "Total number of MQTT messages published, by topic class.",
	}, []string{"class"})

	// MQTTConnected reports whether the MQTT bridge currently has a live
	// broker connection (1) or not (0), per runtime key.
	MQTTConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chaser_mqtt_connected",
		Help: "Whether the MQTT bridge is currently connected (1) or not (0).",
	}, []string{"environment_id", "output_id"})
)
