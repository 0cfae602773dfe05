package renderer

import (
	"github.com/bbernstein/chaser-go/internal/model"
	"github.com/bbernstein/chaser-go/internal/services/render"
	"github.com/bbernstein/chaser-go/pkg/artnet"
)

// ArtNetOutput adapts an Art-Net UDP Sender (pkg/artnet) to the Output
// interface: for each enabled artnet-kind model.Output it pushes the
// packet's universes, restricted to that output's allow-listed
// Universes[] when one was configured (spec §4.5).
type ArtNetOutput struct {
	sender *artnet.Sender
	target model.Output
}

// NewArtNetOutput wires sender to the given model.Output's host/port and
// universe allow-list. target.Kind must be model.OutputArtNet.
func NewArtNetOutput(sender *artnet.Sender, target model.Output) *ArtNetOutput {
	return &ArtNetOutput{sender: sender, target: target}
}

func (o *ArtNetOutput) Push(env model.Environment, frame model.RenderFrame, pkt *render.Packet) {
	if !o.target.Enabled {
		return
	}
	allow := o.allowSet()
	for universe, channels := range pkt.DMXByUniverse {
		if allow != nil {
			if _, ok := allow[universe]; !ok {
				continue
			}
		}
		o.sender.Push(o.target.Host, o.target.Port, universe, channels)
	}
}

func (o *ArtNetOutput) allowSet() map[int]struct{} {
	if len(o.target.Universes) == 0 {
		return nil
	}
	set := make(map[int]struct{}, len(o.target.Universes))
	for _, u := range o.target.Universes {
		set[u] = struct{}{}
	}
	return set
}

func (o *ArtNetOutput) Close() {}
