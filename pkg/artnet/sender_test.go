package artnet

import (
	"net"
	"testing"
	"time"
)

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	return conn
}

func TestSender_PushDeliversPacket(t *testing.T) {
	listener := listenUDP(t)
	defer listener.Close()

	s := NewSender(time.Hour)
	defer s.Stop()

	host, portStr, _ := net.SplitHostPort(listener.LocalAddr().String())
	port := mustAtoi(t, portStr)

	channels := make([]byte, 3)
	channels[0] = 255
	s.Push(host, port, 0, channels)

	buf := make([]byte, PacketSize)
	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := listener.Read(buf)
	if err != nil {
		t.Fatalf("expected to receive a packet: %v", err)
	}
	if n != PacketSize {
		t.Fatalf("expected packet size %d, got %d", PacketSize, n)
	}
	if buf[HeaderSize] != 255 {
		t.Fatalf("expected first channel byte 255, got %d", buf[HeaderSize])
	}
}

func TestSender_PeriodicRefreshResendsCachedFrame(t *testing.T) {
	listener := listenUDP(t)
	defer listener.Close()

	s := NewSender(30 * time.Millisecond)
	s.Start()
	defer s.Stop()

	host, portStr, _ := net.SplitHostPort(listener.LocalAddr().String())
	port := mustAtoi(t, portStr)

	s.Push(host, port, 1, []byte{10, 20})

	buf := make([]byte, PacketSize)
	listener.SetReadDeadline(time.Now().Add(200 * time.Millisecond))

	got := 0
	for i := 0; i < 3; i++ {
		if _, err := listener.Read(buf); err != nil {
			break
		}
		got++
	}
	if got < 2 {
		t.Fatalf("expected at least 2 periodic refreshes, got %d", got)
	}
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			t.Fatalf("invalid port string %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n
}
