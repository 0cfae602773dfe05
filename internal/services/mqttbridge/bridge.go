package mqttbridge

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/bbernstein/chaser-go/internal/metrics"
	"github.com/bbernstein/chaser-go/internal/model"
	"github.com/bbernstein/chaser-go/internal/services/layerstore"
	"github.com/bbernstein/chaser-go/internal/services/render"
	"github.com/bbernstein/chaser-go/internal/services/sequencer"
	"github.com/lucsky/cuid"
	"golang.org/x/time/rate"
)

var debugEnabled = os.Getenv("CHASER_DEBUG") == "1" || os.Getenv("CHASER_DEBUG") == "true"

// Config configures one Bridge runtime instance, keyed by
// (EnvironmentID, OutputID, BrokerURL) per spec.md §4.6.
type Config struct {
	EnvironmentID   string
	OutputID        string
	BrokerURL       string
	BaseTopic       string // "" uses DefaultBaseTopic
	DiscoveryPrefix string // "" uses "homeassistant"
	LegacyTopic     string // "" disables the legacy raw per-frame payload
}

// Bridge implements the MQTT control/telemetry bridge for one environment
// output. It satisfies renderer.Output so a Renderer can push every
// emitted frame straight through it.
type Bridge struct {
	cfg     Config
	env     model.Environment
	catalog map[string]model.FixtureType
	seq     *sequencer.Sequencer

	nodeID    string
	baseTopic string
	discPfx   string

	mqtt client

	mu                 sync.Mutex
	programs           []model.Program
	lightMeta          []LightMeta
	lightMetaByFixture map[string]LightMeta
	lightStates        map[string]*LightState
	advertisedPrograms map[string]bool
	subscribed         bool

	cache            *retainedCache
	discoveryLimiter *rate.Limiter
	queue            *commandQueue
}

// NewBridge creates a Bridge that dials cfg.BrokerURL via
// eclipse/paho.mqtt.golang.
func NewBridge(cfg Config, env model.Environment, catalog map[string]model.FixtureType, seq *sequencer.Sequencer, programs []model.Program) *Bridge {
	b := newBridgeCommon(cfg, env, catalog, seq, programs)
	clientID := "chaser_" + cuid.New()
	b.mqtt = NewPahoClient(cfg.BrokerURL, clientID, b.handleConnect, b.handleDisconnect)
	return b
}

// NewBridgeWithClient wires a pre-built client (the paho adapter or a test
// fake) instead of dialing a real broker.
func NewBridgeWithClient(cfg Config, env model.Environment, catalog map[string]model.FixtureType, seq *sequencer.Sequencer, programs []model.Program, c client) *Bridge {
	b := newBridgeCommon(cfg, env, catalog, seq, programs)
	b.mqtt = c
	return b
}

func newBridgeCommon(cfg Config, env model.Environment, catalog map[string]model.FixtureType, seq *sequencer.Sequencer, programs []model.Program) *Bridge {
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = DefaultBaseTopic(cfg.EnvironmentID, cfg.OutputID)
	}
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = defaultDiscoveryPrefix
	}

	meta := BuildLightMeta(env, catalog)
	byFixture := make(map[string]LightMeta, len(meta))
	states := make(map[string]*LightState, len(meta))
	for _, m := range meta {
		byFixture[m.FixtureID] = m
		s := defaultLightState(m)
		states[m.FixtureID] = &s
	}

	b := &Bridge{
		cfg:                cfg,
		env:                env,
		catalog:            catalog,
		seq:                seq,
		nodeID:             DefaultNodeID(cfg.EnvironmentID),
		baseTopic:          cfg.BaseTopic,
		discPfx:            cfg.DiscoveryPrefix,
		programs:           programs,
		lightMeta:          meta,
		lightMetaByFixture: byFixture,
		lightStates:        states,
		advertisedPrograms: make(map[string]bool),
		cache:              newRetainedCache(),
		discoveryLimiter:   rate.NewLimiter(rate.Every(time.Second), 5),
	}
	b.queue = newCommandQueue(func(ops []layerstore.Op) {
		b.seq.ApplyLayerABatch(ops)
	})
	return b
}

// Connect dials the broker. Subscriptions and the initial discovery sync
// happen in handleConnect, fired by the client on every (re)connection.
func (b *Bridge) Connect() error {
	return b.mqtt.Connect()
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	b.mqtt.Disconnect()
}

// SetPrograms updates the known program list used for discovery "button
// per program" entries and triggerProgram lookups.
func (b *Bridge) SetPrograms(programs []model.Program) {
	b.mu.Lock()
	b.programs = programs
	b.mu.Unlock()
}

func (b *Bridge) handleConnect() {
	metrics.MQTTConnected.WithLabelValues(b.cfg.EnvironmentID, b.cfg.OutputID).Set(1)
	b.resubscribe()
	b.republishRetained()
}

func (b *Bridge) handleDisconnect() {
	metrics.MQTTConnected.WithLabelValues(b.cfg.EnvironmentID, b.cfg.OutputID).Set(0)
}

func (b *Bridge) resubscribe() {
	patterns := []string{
		topicSpmSet(b.baseTopic),
		topicPlayFromStart(b.baseTopic),
		topicPause(b.baseTopic),
		topicBlackoutSet(b.baseTopic),
		b.baseTopic + "/program/+/press",
		b.baseTopic + "/light/+/set",
	}
	for _, p := range patterns {
		if err := b.mqtt.Subscribe(p, b.dispatchMessage); err != nil {
			log.Printf("📶 mqttbridge: subscribe error for %s: %v", p, err)
		}
	}
	b.mu.Lock()
	b.subscribed = true
	b.mu.Unlock()
}

func (b *Bridge) republishRetained() {
	b.mu.Lock()
	snap := b.cache.snapshot()
	b.mu.Unlock()
	for topic, payload := range snap {
		_ = b.mqtt.Publish(topic, true, payload)
	}
}

// dispatchMessage routes one inbound message by topic shape, per spec.md
// §4.6's command-handling table.
func (b *Bridge) dispatchMessage(topic string, payload []byte) {
	if debugEnabled {
		log.Printf("📶 mqttbridge: recv %s (%d bytes)", topic, len(payload))
	}
	switch topic {
	case topicSpmSet(b.baseTopic):
		if v, ok := parseSpm(payload); ok {
			b.seq.SetSpm(model.ClampSpm(v))
		}
		return
	case topicPlayFromStart(b.baseTopic):
		b.seq.SetStep(0)
		b.seq.Resume()
		return
	case topicPause(b.baseTopic):
		b.seq.Pause()
		return
	case topicBlackoutSet(b.baseTopic):
		if v, ok := parseBlackout(payload); ok {
			b.seq.SetBlackout(v)
		}
		return
	}

	if programID, ok := parseProgramIDFromPressTopic(b.baseTopic, topic); ok {
		b.triggerProgram(programID)
		return
	}
	if fixtureID, ok := parseFixtureIDFromLightSetTopic(b.baseTopic, topic); ok {
		b.handleLightCommand(fixtureID, payload)
		return
	}
}

func (b *Bridge) triggerProgram(programID string) {
	b.mu.Lock()
	var found *model.Program
	for i := range b.programs {
		if b.programs[i].ID == programID {
			found = &b.programs[i]
			break
		}
	}
	b.mu.Unlock()
	if found == nil {
		return
	}

	if !b.seq.GetState().IsPlaying {
		b.seq.SetSpm(found.Spm)
	}
	b.seq.SetProgram(*found, sequencer.ProgramOptions{})
	b.seq.SetStep(0)
	b.seq.Resume()
}

func (b *Bridge) handleLightCommand(fixtureID string, payload []byte) {
	b.mu.Lock()
	meta, ok := b.lightMetaByFixture[fixtureID]
	b.mu.Unlock()
	if !ok {
		return
	}

	cmd, err := parseLightCommand(payload)
	if err != nil {
		log.Printf("📶 mqttbridge: bad light command for %s: %v", fixtureID, err)
		return
	}

	b.mu.Lock()
	state := b.lightStates[fixtureID]
	ops, clearAll := applyCommand(meta, state, cmd)
	b.mu.Unlock()

	if clearAll {
		b.queue.enqueue(fixtureID, []layerstore.Op{{Kind: layerstore.OpClearFixture, FixtureID: fixtureID}})
		return
	}
	b.queue.enqueue(fixtureID, ops)
}

// Push implements renderer.Output: it syncs discovery when the discovery
// rate limiter allows (burst 5, then one per second), republishes control
// states, mirrors every light's state from Layer A, and optionally
// publishes the legacy raw per-frame payload.
func (b *Bridge) Push(env model.Environment, frame model.RenderFrame, pkt *render.Packet) {
	if b.discoveryLimiter.Allow() {
		b.syncDiscovery()
	}
	b.publishControlStates(frame.State)
	b.mirrorLightStates(frame.LayerAValues)
	if b.cfg.LegacyTopic != "" {
		b.publishLegacyPayload(frame, pkt)
	}
}

func (b *Bridge) publishRetained(topic string, payload []byte, class string) {
	b.mu.Lock()
	changed := b.cache.changed(topic, payload)
	b.mu.Unlock()
	if !changed {
		return
	}
	if err := b.mqtt.Publish(topic, true, payload); err != nil {
		log.Printf("📶 mqttbridge: publish error for %s: %v", topic, err)
		return
	}
	metrics.MQTTPublishes.WithLabelValues(class).Inc()
}

func (b *Bridge) syncDiscovery() {
	for _, meta := range b.lightMeta {
		cfg := buildLightConfig(b.nodeID, b.baseTopic, meta)
		topic := lightConfigTopic(b.discPfx, b.nodeID, meta.FixtureID)
		b.publishRetained(topic, marshalJSON(cfg), "discovery")
	}

	b.publishRetained(numberConfigTopic(b.discPfx, b.nodeID, "spm"), marshalJSON(buildSpmConfig(b.nodeID, b.baseTopic)), "discovery")
	b.publishRetained(buttonConfigTopic(b.discPfx, b.nodeID, "play_from_start"), marshalJSON(buildPlayFromStartConfig(b.nodeID, b.baseTopic)), "discovery")
	b.publishRetained(buttonConfigTopic(b.discPfx, b.nodeID, "pause"), marshalJSON(buildPauseConfig(b.nodeID, b.baseTopic)), "discovery")
	b.publishRetained(switchConfigTopic(b.discPfx, b.nodeID, "blackout"), marshalJSON(buildBlackoutConfig(b.nodeID, b.baseTopic)), "discovery")

	b.mu.Lock()
	programs := make([]model.Program, len(b.programs))
	copy(programs, b.programs)
	prevAdvertised := make(map[string]bool, len(b.advertisedPrograms))
	for id := range b.advertisedPrograms {
		prevAdvertised[id] = true
	}
	b.mu.Unlock()

	current := make(map[string]bool, len(programs))
	for _, p := range programs {
		current[p.ID] = true
		topic := programConfigTopic(b.discPfx, b.nodeID, p.ID)
		b.publishRetained(topic, marshalJSON(buildProgramButtonConfig(b.nodeID, b.baseTopic, p)), "discovery")
	}
	for id := range prevAdvertised {
		if !current[id] {
			topic := programConfigTopic(b.discPfx, b.nodeID, id)
			b.publishRetained(topic, []byte{}, "discovery")
		}
	}

	b.mu.Lock()
	b.advertisedPrograms = current
	b.mu.Unlock()
}

func (b *Bridge) publishControlStates(state model.PlayheadState) {
	b.publishRetained(topicAvailability(b.baseTopic), []byte("online"), "state")

	blackoutPayload := "OFF"
	if state.IsBlackout {
		blackoutPayload = "ON"
	}
	b.publishRetained(topicBlackoutState(b.baseTopic), []byte(blackoutPayload), "state")
	b.publishRetained(topicSpmState(b.baseTopic), []byte(strconv.Itoa(model.ClampSpm(state.Spm))), "state")
}

type lightStatePayload struct {
	State      string  `json:"state"`
	Brightness int     `json:"brightness"`
	ColorMode  string  `json:"color_mode"`
	Color      *rgbOut `json:"color,omitempty"`
	ColorTemp  *int    `json:"color_temp,omitempty"`
}

type rgbOut struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

func (b *Bridge) mirrorLightStates(layerA model.LayerValueMap) {
	b.mu.Lock()
	metas := make([]LightMeta, len(b.lightMeta))
	copy(metas, b.lightMeta)
	b.mu.Unlock()

	for _, meta := range metas {
		b.mu.Lock()
		state := b.lightStates[meta.FixtureID]
		mirrored := mirrorFromLayerA(meta, state, layerA)
		b.mu.Unlock()

		payload := lightStatePayload{
			Brightness: mirrored.Brightness,
			ColorMode:  string(mirrored.Mode),
		}
		if mirrored.On {
			payload.State = "ON"
		} else {
			payload.State = "OFF"
		}
		switch mirrored.Mode {
		case ModeRGB:
			payload.Color = &rgbOut{R: mirrored.RGB[0], G: mirrored.RGB[1], B: mirrored.RGB[2]}
		case ModeColorTemp:
			mireds := mirrored.Mireds
			payload.ColorTemp = &mireds
		}

		topic := topicLightState(b.baseTopic, meta.FixtureID)
		b.publishRetained(topic, marshalJSON(payload), "state")
	}
}

type legacyPayload struct {
	Timestamp     int64               `json:"timestamp"`
	State         model.PlayheadState `json:"state"`
	Values        map[string][]int    `json:"values"`
	LayerAValues  map[string][]int    `json:"layerAValues"`
	LayerBValues  map[string][]int    `json:"layerBValues"`
	DMXByUniverse map[int][]int       `json:"dmxByUniverse"`
}

// toIntVectorMap converts a LayerValueMap's []byte vectors to []int, so
// they marshal as JSON number arrays instead of json.Marshal's default
// base64-string encoding of []byte.
func toIntVectorMap(m model.LayerValueMap) map[string][]int {
	out := make(map[string][]int, len(m))
	for key, vec := range m {
		ints := make([]int, len(vec))
		for i, b := range vec {
			ints[i] = int(b)
		}
		out[key] = ints
	}
	return out
}

func (b *Bridge) publishLegacyPayload(frame model.RenderFrame, pkt *render.Packet) {
	dmx := make(map[int][]int, len(pkt.DMXByUniverse))
	for universe, channels := range pkt.DMXByUniverse {
		ints := make([]int, len(channels))
		for i, c := range channels {
			ints[i] = int(c)
		}
		dmx[universe] = ints
	}

	payload := legacyPayload{
		Timestamp:     frame.Timestamp.UnixMilli(),
		State:         frame.State,
		Values:        toIntVectorMap(frame.Values),
		LayerAValues:  toIntVectorMap(frame.LayerAValues),
		LayerBValues:  toIntVectorMap(frame.LayerBValues),
		DMXByUniverse: dmx,
	}
	b.publishLegacy(b.cfg.LegacyTopic, marshalJSON(payload))
}

func (b *Bridge) publishLegacy(topic string, payload []byte) {
	if err := b.mqtt.Publish(topic, false, payload); err != nil {
		log.Printf("📶 mqttbridge: legacy publish error: %v", err)
		return
	}
	metrics.MQTTPublishes.WithLabelValues("raw").Inc()
}

