// Package renderer fans out render packets to concurrent transports (spec
// §2, §4.5, §4.6): it subscribes to a sequencer's frame stream, builds the
// per-universe DMX packet for each frame, and pushes both to every
// registered Output. Grounded on the teacher's pattern of a single mutable
// service (dmx.Service) driving Art-Net directly; here that responsibility
// is split into a transport-agnostic registry plus pluggable Output
// adapters, since this domain has more than one transport (Art-Net, MQTT).
package renderer

import (
	"log"

	"github.com/bbernstein/chaser-go/internal/model"
	"github.com/bbernstein/chaser-go/internal/services/render"
	"github.com/bbernstein/chaser-go/internal/services/sequencer"
)

// Output receives every render packet produced for env. Push must not
// block for long — it runs synchronously inside the sequencer's notify
// path (see sequencer.Listener's contract).
type Output interface {
	Push(env model.Environment, frame model.RenderFrame, pkt *render.Packet)
	Close()
}

// Renderer owns the environment's fixture catalog and the set of outputs a
// frame is fanned out to.
type Renderer struct {
	env     model.Environment
	catalog map[string]model.FixtureType
	outputs []Output
}

// New creates a Renderer for env with the given fixture-type catalog and
// initial output set.
func New(env model.Environment, catalog map[string]model.FixtureType, outputs []Output) *Renderer {
	return &Renderer{env: env, catalog: catalog, outputs: outputs}
}

// Attach subscribes to seq and returns an unsubscribe func. Every emitted
// frame is rendered once and pushed to every output in registration order.
func (r *Renderer) Attach(seq *sequencer.Sequencer) sequencer.Unsubscribe {
	return seq.Subscribe(func(frame model.RenderFrame) {
		r.handleFrame(frame)
	})
}

func (r *Renderer) handleFrame(frame model.RenderFrame) {
	pkt := render.BuildPacket(r.env, r.catalog, frame)
	for _, out := range r.outputs {
		out.Push(r.env, frame, pkt)
	}
}

// Close shuts down every registered output.
func (r *Renderer) Close() {
	for _, out := range r.outputs {
		out.Close()
	}
}

// loggingOutput is a minimal Output used by the simulator/debug tagged
// variant (the 2D simulator UI itself is out of scope): it just logs frame
// arrival when CHASER_DEBUG is set, so the pipeline has somewhere to land
// when no real transport is configured.
type loggingOutput struct {
	name string
}

// NewLoggingOutput returns a no-op Output that only logs under
// CHASER_DEBUG, standing in for the out-of-scope 2D simulator's live feed.
func NewLoggingOutput(name string) Output {
	return &loggingOutput{name: name}
}

func (o *loggingOutput) Push(env model.Environment, frame model.RenderFrame, pkt *render.Packet) {
	if !debugEnabled {
		return
	}
	log.Printf("🧪 renderer[%s]: frame for env %s, %d universes", o.name, env.ID, len(pkt.DMXByUniverse))
}

func (o *loggingOutput) Close() {}
