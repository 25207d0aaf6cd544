package rushb

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// maxDatagramSize is the largest UDP payload the listener will read; RUSHB
// never transmits more than PacketSize bytes, but inbound datagrams from a
// misbehaving peer are simply read and decoded as-is (§6).
const maxDatagramSize = PacketSize

// Listener binds a UDP socket and demultiplexes inbound datagrams to one
// Connection worker per peer address, spawning a new worker the first time
// an address is seen.
type Listener struct {
	rootDir string
	log     *logrus.Logger

	conn *net.UDPConn

	mu    sync.Mutex
	conns map[string]*Connection
}

// NewListener builds a listener that serves files from rootDir.
func NewListener(rootDir string, log *logrus.Logger) *Listener {
	return &Listener{
		rootDir: rootDir,
		log:     log,
		conns:   make(map[string]*Connection),
	}
}

// ListenAndServe binds addr (host:port, use ":0" for an OS-chosen port),
// prints the bound port to stdout, then serves until ctx is canceled or a
// fatal socket error occurs.
func (l *Listener) ListenAndServe(ctx context.Context, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("bind UDP socket: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	port := conn.LocalAddr().(*net.UDPAddr).Port
	fmt.Println(port)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	return l.serve(ctx, conn)
}

// serve is the receive loop: demultiplex each datagram to its worker,
// spawning a new one on first contact from an address.
func (l *Listener) serve(ctx context.Context, conn *net.UDPConn) error {
	buf := make([]byte, maxDatagramSize)

	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				// Socket was closed as part of a requested shutdown.
				return nil
			}
			return fmt.Errorf("read datagram: %w", err)
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		l.route(conn, addr, data)
	}
}

// route hands data to the worker for addr, spawning one if this is the
// first datagram seen from that address.
func (l *Listener) route(conn sender, addr *net.UDPAddr, data []byte) {
	key := addr.String()

	l.mu.Lock()
	c, exists := l.conns[key]
	if exists {
		l.mu.Unlock()
		c.Deliver(data)
		return
	}

	entry := l.log.WithField("listener", "rushb")
	c = NewConnection(addr, conn, l.rootDir, entry)
	l.conns[key] = c
	l.mu.Unlock()

	entry.WithField("peer", key).Info("new connection")

	go func() {
		c.Start(data)
		l.mu.Lock()
		delete(l.conns, key)
		l.mu.Unlock()
	}()
}
