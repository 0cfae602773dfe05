package artnet

import (
	"bytes"
	"testing"
)

func TestBuildDMXPacket_HeaderBytes(t *testing.T) {
	channels := make([]byte, 512)
	channels[0] = 255

	packet := BuildDMXPacket(0, channels)

	if len(packet) != PacketSize {
		t.Fatalf("len(packet) = %d, want %d", len(packet), PacketSize)
	}

	wantHeader := []byte{
		'A', 'r', 't', '-', 'N', 'e', 't', 0x00,
		0x00, 0x50, // OpCode 0x5000 LE
		0x00, 0x0E, // ProtVer 14 BE
		0x00,       // sequence
		0x00,       // physical port
		0x00, 0x00, // universe 0 LE
		0x02, 0x00, // length 512 BE
	}
	if got := packet[:HeaderSize]; !bytes.Equal(got, wantHeader) {
		t.Errorf("header = % X, want % X", got, wantHeader)
	}

	if !bytes.Equal(packet[HeaderSize:], channels) {
		t.Errorf("payload mismatch")
	}
}

func TestBuildDMXPacket_UniverseLittleEndianMasked(t *testing.T) {
	packet := BuildDMXPacket(0x18000, make([]byte, 512)) // masked to 0x8000&0x7FFF=0

	if packet[14] != 0x00 || packet[15] != 0x00 {
		t.Errorf("universe bytes = %02X %02X, want masked to 0", packet[14], packet[15])
	}

	packet2 := BuildDMXPacket(300, make([]byte, 512))
	if packet2[14] != 0x2C || packet2[15] != 0x01 {
		t.Errorf("universe 300 LE = %02X %02X, want 2C 01", packet2[14], packet2[15])
	}
}

func TestBuildDMXPacket_SequenceAlwaysZero(t *testing.T) {
	for i := 0; i < 3; i++ {
		packet := BuildDMXPacket(1, make([]byte, 512))
		if packet[12] != 0 {
			t.Errorf("sequence byte = %d, want 0", packet[12])
		}
	}
}

func TestBuildDMXPacket_PadsShortChannelSlice(t *testing.T) {
	channels := []byte{10, 20, 30}
	packet := BuildDMXPacket(0, channels)

	payload := packet[HeaderSize:]
	if len(payload) != 512 {
		t.Fatalf("payload length = %d, want 512", len(payload))
	}
	if payload[0] != 10 || payload[1] != 20 || payload[2] != 30 {
		t.Errorf("payload prefix = %v, want [10 20 30]", payload[:3])
	}
	for i := 3; i < 512; i++ {
		if payload[i] != 0 {
			t.Fatalf("payload[%d] = %d, want 0 (zero padded)", i, payload[i])
		}
	}
}

func TestBuildDMXPacket_TruncatesLongChannelSlice(t *testing.T) {
	channels := make([]byte, 600)
	for i := range channels {
		channels[i] = byte(i)
	}
	packet := BuildDMXPacket(0, channels)

	payload := packet[HeaderSize:]
	if len(payload) != 512 {
		t.Fatalf("payload length = %d, want 512", len(payload))
	}
	if payload[511] != byte(511%256) {
		t.Errorf("payload[511] = %d, want %d", payload[511], byte(511%256))
	}
}
