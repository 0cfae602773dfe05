package model

// EnvironmentFixture places a FixtureType instance in the world.
type EnvironmentFixture struct {
	ID            string
	FixtureTypeID string
	Name          string
	Universe      int // [0, 32767]
	Address       int // [1, 512], 1-based DMX start address
	HasPosition   bool
	X, Y          float64
	// MQTTOptOut, when true, opts this fixture out of the MQTT light bridge
	// even if its type carries rgb/cct/scalar features. Every fixture is
	// exposed by default (spec §4.6): the zero value of this field must
	// mean "exposed", so opt-out rather than opt-in is the field's polarity.
	MQTTOptOut bool
}

// OutputKind tags the variant carried by an Output target.
type OutputKind string

const (
	OutputSimulator OutputKind = "simulator"
	OutputArtNet    OutputKind = "artnet"
	OutputMQTT      OutputKind = "mqtt"
)

// Output is a tagged-variant transport target. Only the fields relevant to
// Kind are meaningful; this mirrors how the render/renderer fan-out treats
// outputs as a small closed set of shapes rather than a polymorphic
// interface hierarchy (spec's design notes prefer a tagged enum here).
type Output struct {
	ID   string
	Kind OutputKind

	// OutputArtNet
	Host      string
	Port      int
	Universes []int // allow-list; nil/empty means "all universes in this environment"

	// OutputMQTT
	BrokerURL string
	BaseTopic string // defaults to chaser/{sanitized(envId)}/{sanitized(outputId)}

	// Enabled toggles the target without removing it from the environment.
	Enabled bool
}

// Environment is the fixed placement of fixtures and output targets that a
// Program plays against.
type Environment struct {
	ID        string
	RenderFps int // [1,120], default 30
	Fixtures  []EnvironmentFixture
	Outputs   []Output
}

// FixtureByID returns the environment fixture with the given id, or nil.
func (e Environment) FixtureByID(id string) *EnvironmentFixture {
	for i := range e.Fixtures {
		if e.Fixtures[i].ID == id {
			return &e.Fixtures[i]
		}
	}
	return nil
}

// ClampRenderFps clamps fps into the valid [1,120] range.
func ClampRenderFps(fps int) int {
	if fps < 1 {
		return 1
	}
	if fps > 120 {
		return 120
	}
	return fps
}
