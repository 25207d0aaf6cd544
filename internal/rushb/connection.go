package rushb

import (
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// retransmitTimeout is how long the worker waits for an ACK/NAK before
// resending an outstanding DAT packet; the FIN is sent once and never
// retransmitted. Variable (rather than const)
// so tests can shorten it instead of waiting out the real 4 seconds, and so
// SetRetransmitTimeout can override the spec's default at startup.
var retransmitTimeout = 4 * time.Second

// SetRetransmitTimeout overrides the retransmit deadline used by every
// connection worker from this point on. Intended for startup configuration
// (internal/config); a zero or negative d is ignored.
func SetRetransmitTimeout(d time.Duration) {
	if d > 0 {
		retransmitTimeout = d
	}
}

// pollInterval is the sleep between inbox scans while waiting on an ACK;
// finWaitPollInterval is the (slightly longer) equivalent used while
// waiting for the peer's FIN+ACK, matching the two distinct cadences in
// the source protocol.
var (
	pollInterval        = time.Millisecond
	finWaitPollInterval = 10 * time.Millisecond
)

type connState int

const (
	stateHandshake connState = iota
	stateSending
	stateFinSent
	stateClosed
)

// sender is the subset of net.PacketConn a Connection needs to transmit
// datagrams; satisfied by *net.UDPConn and by fakes in tests.
type sender interface {
	WriteTo(b []byte, addr net.Addr) (int, error)
}

// Connection is the per-client RUSHB state machine: handshake, stop-and-wait
// data transfer, and FIN teardown, all keyed by a single peer address.
type Connection struct {
	id      string
	addr    net.Addr
	conn    sender
	rootDir string
	log     *logrus.Entry

	encrypting bool
	checking   bool
	seqOut     uint16
	state      connState

	mu      sync.Mutex
	packets []*Packet
	notify  chan struct{}

	done chan struct{}
}

// NewConnection builds a worker for a newly-seen peer address. rootDir is
// the directory GET requests are resolved against.
func NewConnection(addr net.Addr, conn sender, rootDir string, log *logrus.Entry) *Connection {
	id := uuid.NewString()[:8]
	return &Connection{
		id:      id,
		addr:    addr,
		conn:    conn,
		rootDir: rootDir,
		log:     log.WithFields(logrus.Fields{"conn": id, "peer": addr.String()}),
		seqOut:  1,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Done is closed once the worker has sent its final FIN+ACK and terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Deliver appends a decoded inbound datagram to the worker's inbox. Safe to
// call concurrently with the worker's own goroutine.
func (c *Connection) Deliver(data []byte) {
	p := DecodePacket(data)
	c.mu.Lock()
	c.packets = append(c.packets, p)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// flagsOK reports whether p satisfies this connection's latched CHK/ENC
// policy: once checking/encrypting is established, any inbound packet
// missing the corresponding flag is a flag-policy violation and must be
// ignored by scans (spec §7 kind 3).
func (c *Connection) flagsOK(p *Packet) bool {
	if c.checking && !p.CHK {
		return false
	}
	if c.encrypting && !p.ENC {
		return false
	}
	return true
}

// consumeMatch locks the inbox, removes and returns the first packet for
// which pred holds, or nil if none match.
func (c *Connection) consumeMatch(pred func(*Packet) bool) *Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.packets {
		if pred(p) {
			c.packets = append(c.packets[:i], c.packets[i+1:]...)
			return p
		}
	}
	return nil
}

// popFront removes and returns the oldest inbox packet, if any.
func (c *Connection) popFront() *Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.packets) == 0 {
		return nil
	}
	p := c.packets[0]
	c.packets = c.packets[1:]
	return p
}

// waitForPacket blocks until the inbox has a packet to pop.
func (c *Connection) waitForPacket() *Packet {
	for {
		if p := c.popFront(); p != nil {
			return p
		}
		<-c.notify
	}
}

// Start consumes the connection's first datagram and runs the session to
// completion: handshake, optional data transfer, then FIN teardown. It
// returns once the worker has sent its final FIN+ACK.
func (c *Connection) Start(firstDatagram []byte) {
	defer close(c.done)

	first := c.handshake(DecodePacket(firstDatagram))

	if first.GET {
		if data, ok := c.readRequestedFile(first); ok {
			c.state = stateSending
			c.sendFile(data)
		}
	}

	c.state = stateFinSent
	c.teardown()

	c.state = stateClosed
	c.log.Debug("connection closed")
}

// handshake latches encrypting/checking from the first datagram, decrypts
// it if needed, and — in checking mode — discards invalid first packets
// until one with a valid checksum arrives. It returns the effective first
// packet (never nil); if no valid packet ever arrives it blocks
// indefinitely.
func (c *Connection) handshake(first *Packet) *Packet {
	c.encrypting = first.ENC
	c.checking = first.CHK

	if c.encrypting {
		first.Payload = decryptPayload(first.Payload)
	}

	if c.checking {
		for !first.isValidChecksum() {
			c.log.Debug("discarding first packet with invalid checksum")
			first = c.waitForPacket()
			if c.encrypting {
				first.Payload = decryptPayload(first.Payload)
			}
		}
	}

	return first
}

// readRequestedFile resolves the GET payload, with trailing zero bytes
// stripped, as an ASCII file name under rootDir and reads it in one shot. Per spec §4.2/§7, any
// failure — open error or non-ASCII content — is treated as an unreadable
// file: no error is sent to the client, the caller skips straight to
// teardown.
func (c *Connection) readRequestedFile(first *Packet) ([]byte, bool) {
	name := trimNullPadding(first.Payload)
	if !isASCII([]byte(name)) {
		c.log.WithField("name", name).Debug("requested file name is not ASCII")
		return nil, false
	}

	path := filepath.Join(c.rootDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		c.log.WithError(err).WithField("name", name).Debug("failed to open requested file")
		return nil, false
	}

	if !isASCII(data) {
		c.log.WithField("name", name).Debug("requested file is not ASCII")
		return nil, false
	}

	return data, true
}

// sendFile partitions data into MaxPayloadSize frames and drives the
// stop-and-wait loop: build, transmit, wait for ACK/NAK/timeout, repeat.
func (c *Connection) sendFile(data []byte) {
	frames := splitFrames(data)

	for _, frame := range frames {
		pkt := c.buildDataPacket(frame)
		wire := pkt.Encode()

		c.transmit(wire)
		lastSent := time.Now()

		for {
			if c.consumeMatch(func(p *Packet) bool {
				return p.ACK && p.Ack == pkt.Seq && c.flagsOK(p)
			}) != nil {
				break
			}

			if c.consumeMatch(func(p *Packet) bool {
				return p.NAK && p.Ack == pkt.Seq && c.flagsOK(p)
			}) != nil {
				c.log.WithField("seq", pkt.Seq).Debug("NAK received, fast retransmit")
				c.transmit(wire)
				lastSent = time.Now()
				continue
			}

			if time.Since(lastSent) >= retransmitTimeout {
				c.log.WithField("seq", pkt.Seq).Debug("retransmit timeout")
				c.transmit(wire)
				lastSent = time.Now()
				continue
			}

			select {
			case <-c.notify:
			case <-time.After(pollInterval):
			}
		}
	}
}

// buildDataPacket constructs the next DAT frame, applying checksum and
// cipher as latched by the handshake. The returned packet's payload is
// exactly what gets transmitted (and, on retransmit, re-transmitted
// byte-for-byte).
func (c *Connection) buildDataPacket(frame []byte) *Packet {
	pkt := &Packet{
		Seq:     c.nextSeq(),
		DAT:     true,
		Version: ProtocolVersion,
		Payload: padPayload(frame),
	}

	if c.checking {
		pkt.CHK = true
		pkt.Checksum = computeChecksum(pkt.Payload)
	}

	if c.encrypting {
		pkt.ENC = true
		pkt.Payload = padPayload(encryptPayload(pkt.Payload))
	}

	return pkt
}

// teardown runs the FIN / FIN+ACK handshake: send a FIN, wait for the
// peer's FIN+ACK, then send the final FIN+ACK and return.
func (c *Connection) teardown() {
	fin := &Packet{
		Seq:     c.nextSeq(),
		FIN:     true,
		Version: ProtocolVersion,
		Payload: padPayload(nil),
	}
	if c.checking {
		fin.CHK = true
		fin.Checksum = ChecksumSentinel
	}
	if c.encrypting {
		fin.ENC = true
	}

	c.transmit(fin.Encode())
	c.log.Debug("FIN sent, waiting for FIN+ACK")

	var peerFinSeq uint16
	for {
		if p := c.consumeMatch(func(p *Packet) bool {
			return p.FIN && p.ACK && c.flagsOK(p)
		}); p != nil {
			peerFinSeq = p.Seq
			break
		}
		select {
		case <-c.notify:
		case <-time.After(finWaitPollInterval):
		}
	}

	finAck := &Packet{
		Seq:     c.nextSeq(),
		Ack:     peerFinSeq,
		FIN:     true,
		ACK:     true,
		Version: ProtocolVersion,
		Payload: padPayload(nil),
	}
	if c.checking {
		finAck.CHK = true
		finAck.Checksum = ChecksumSentinel
	}
	if c.encrypting {
		finAck.ENC = true
	}

	c.transmit(finAck.Encode())
	c.log.Debug("final FIN+ACK sent")
}

// nextSeq returns the next strictly-increasing sequence number for a
// transmitted packet.
func (c *Connection) nextSeq() uint16 {
	seq := c.seqOut
	c.seqOut++
	return seq
}

func (c *Connection) transmit(wire []byte) {
	if _, err := c.conn.WriteTo(wire, c.addr); err != nil {
		c.log.WithError(err).Warn("failed to send datagram")
	}
}

// splitFrames partitions data into chunks of at most MaxPayloadSize bytes,
// preserving order; an empty file yields zero frames.
func splitFrames(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	var frames [][]byte
	for start := 0; start < len(data); start += MaxPayloadSize {
		end := start + MaxPayloadSize
		if end > len(data) {
			end = len(data)
		}
		frames = append(frames, data[start:end])
	}
	return frames
}

// trimNullPadding strips trailing zero bytes and decodes the remainder as
// a string, matching the wire convention for ASCII file names.
func trimNullPadding(payload []byte) string {
	return string(stripTrailingZeros(payload))
}

// isASCII reports whether every byte in b is a 7-bit ASCII code point.
func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
