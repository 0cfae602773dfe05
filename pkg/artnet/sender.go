package artnet

import (
	"log"
	"net"
	"strconv"
	"sync"
	"time"
)

// Sender is the cached/refreshed UDP Art-Net output described in spec.md
// §4.5: it remembers the latest 512-byte payload per (host, port, universe)
// and flushes them over UDP either on demand (Push) or on a periodic
// refresh tick. Grounded on the teacher's dmx.Service transmission loop
// (internal/services/dmx/dmx.go transmitLoop/outputDMX), generalized from a
// single fixed broadcast target to an arbitrary set of (host, port) pairs
// and simplified from its adaptive-rate scheme to the spec's flat refresh
// period plus "flush again" coalescing.
type Sender struct {
	mu      sync.Mutex
	conns   map[string]*net.UDPConn
	entries map[cacheKey][]byte
	order   []cacheKey

	flushing   bool
	flushAgain bool

	refreshPeriod time.Duration
	ticker        *time.Ticker
	stopCh        chan struct{}
	running       bool

	// OnResult, if set, is invoked after every send attempt (err is nil on
	// success). It lets a caller wire in its own instrumentation without
	// this package depending on anything outside the standard library.
	OnResult func(host string, port, universe int, err error)
}

type cacheKey struct {
	host     string
	port     int
	universe int
}

// NewSender creates a Sender that additionally flushes every refreshPeriod.
func NewSender(refreshPeriod time.Duration) *Sender {
	return &Sender{
		conns:         make(map[string]*net.UDPConn),
		entries:       make(map[cacheKey][]byte),
		refreshPeriod: refreshPeriod,
	}
}

// Start begins the periodic refresh timer. Safe to call once.
func (s *Sender) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.ticker = time.NewTicker(s.refreshPeriod)
	go s.tickLoop(s.ticker, s.stopCh)
}

func (s *Sender) tickLoop(ticker *time.Ticker, stop chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.requestFlush()
		}
	}
}

// Stop halts the refresh timer and closes every open socket.
func (s *Sender) Stop() {
	s.mu.Lock()
	if s.running {
		close(s.stopCh)
		s.running = false
	}
	conns := make([]*net.UDPConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[string]*net.UDPConn)
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// Push updates the cache entry for (host, port, universe) with channels'
// latest 512-byte frame and requests a flush. channels is copied, so the
// caller's buffer may be reused or mutated afterward.
func (s *Sender) Push(host string, port, universe int, channels []byte) {
	key := cacheKey{host: host, port: port, universe: universe}
	payload := make([]byte, len(channels))
	copy(payload, channels)

	s.mu.Lock()
	if _, existed := s.entries[key]; !existed {
		s.order = append(s.order, key)
	}
	s.entries[key] = payload
	s.mu.Unlock()

	s.requestFlush()
}

// requestFlush starts a flush goroutine if none is running, or sets the
// "flush again" bit if one already is, per spec.md §4.5: "while flushes
// are in progress, further requests set a flush again bit; the flush loop
// drains the bit before exiting."
func (s *Sender) requestFlush() {
	s.mu.Lock()
	if s.flushing {
		s.flushAgain = true
		s.mu.Unlock()
		return
	}
	s.flushing = true
	s.mu.Unlock()
	go s.flushLoop()
}

func (s *Sender) flushLoop() {
	for {
		s.sendAll()

		s.mu.Lock()
		if s.flushAgain {
			s.flushAgain = false
			s.mu.Unlock()
			continue
		}
		s.flushing = false
		s.mu.Unlock()
		return
	}
}

// sendAll sends every cached frame once, in insertion order. UDP send
// errors are logged and the cache entry is left untouched; the next flush
// retries the same payload (spec.md §4.5 failure semantics).
func (s *Sender) sendAll() {
	s.mu.Lock()
	keys := make([]cacheKey, len(s.order))
	copy(keys, s.order)
	s.mu.Unlock()

	for _, key := range keys {
		s.mu.Lock()
		payload, ok := s.entries[key]
		s.mu.Unlock()
		if !ok {
			continue
		}

		conn, err := s.connFor(key.host, key.port)
		if err != nil {
			log.Printf("📡 artnet: dial error for %s:%d: %v", key.host, key.port, err)
			s.reportResult(key.host, key.port, key.universe, err)
			continue
		}

		packet := BuildDMXPacket(key.universe, payload)
		_, sendErr := conn.Write(packet)
		if sendErr != nil {
			log.Printf("📡 artnet: send error for %s:%d universe %d: %v", key.host, key.port, key.universe, sendErr)
		}
		s.reportResult(key.host, key.port, key.universe, sendErr)
	}
}

func (s *Sender) reportResult(host string, port, universe int, err error) {
	if s.OnResult != nil {
		s.OnResult(host, port, universe, err)
	}
}

func (s *Sender) connFor(host string, port int) (*net.UDPConn, error) {
	addrKey := host + ":" + strconv.Itoa(port)

	s.mu.Lock()
	conn, ok := s.conns[addrKey]
	s.mu.Unlock()
	if ok {
		return conn, nil
	}

	udpAddr, err := net.ResolveUDPAddr("udp4", addrKey)
	if err != nil {
		return nil, err
	}
	conn, err = net.DialUDP("udp4", nil, udpAddr)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.conns[addrKey] = conn
	s.mu.Unlock()
	return conn, nil
}
