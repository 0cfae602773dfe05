// Package artnet provides Art-Net protocol packet building and transmission.
package artnet

import (
	"encoding/binary"
)

const (
	// OpCodeDMX is the Art-Net operation code for DMX data (OpOutput).
	OpCodeDMX uint16 = 0x5000
	// ProtocolVersion is the Art-Net protocol version.
	ProtocolVersion uint16 = 14
	// DMXDataLength is the number of DMX channels per universe.
	DMXDataLength uint16 = 512
	// HeaderSize is the length of the Art-Net DMX header preceding the payload.
	HeaderSize = 18
	// PacketSize is the total size of an Art-Net DMX packet.
	PacketSize = HeaderSize + int(DMXDataLength)
	// DefaultPort is the standard Art-Net UDP port.
	DefaultPort = 6454
	// MaxUniverse is the largest universe number the 15-bit Art-Net field can carry.
	MaxUniverse = 0x7FFF
)

// ArtNetID is the Art-Net packet identifier.
var ArtNetID = []byte{'A', 'r', 't', '-', 'N', 'e', 't', 0x00}

// BuildDMXPacket creates an Art-Net DMX (OpOutput) packet for the given universe.
//
// universe is 0-based, in [0, 32767]; it is masked to 15 bits rather than
// validated, matching how receivers treat the field. channels shorter than
// 512 bytes are zero-padded; longer slices are truncated to 512. The
// sequence byte is always 0, disabling sequence-number handling on
// receivers (spec'd behavior — this output never numbers its packets).
func BuildDMXPacket(universe int, channels []byte) []byte {
	packet := make([]byte, PacketSize)

	copy(packet[0:8], ArtNetID)
	binary.LittleEndian.PutUint16(packet[8:10], OpCodeDMX)
	binary.BigEndian.PutUint16(packet[10:12], ProtocolVersion)
	packet[12] = 0 // sequence: always 0
	packet[13] = 0 // physical input port
	binary.LittleEndian.PutUint16(packet[14:16], uint16(universe&MaxUniverse))
	binary.BigEndian.PutUint16(packet[16:18], DMXDataLength)

	n := len(channels)
	if n > int(DMXDataLength) {
		n = int(DMXDataLength)
	}
	copy(packet[HeaderSize:HeaderSize+n], channels[:n])

	return packet
}
