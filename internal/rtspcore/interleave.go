package rtspcore

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kinoglaz/kgd/pkg/base"
)

// interleaveChannelCount is the number of one-byte interleave ports a
// connection can hand out (spec §4.2's port pool is bounded by the 1-byte
// channel id in the `$` framing).
const interleaveChannelCount = 256

// Multiplexer muxes N logical channels onto one TCP connection using the
// `$ channel length payload` framing (spec §4.2), and is the shared
// resource every interleaved Channel's writes funnel through under one
// mutex (spec §5).
type Multiplexer struct {
	conn   net.Conn
	bw     *bufio.Writer
	wmutex sync.Mutex

	poolMutex sync.Mutex
	pool      []int
	chans     map[int]*interleaveChannel

	released     sync.Mutex
	releasedCond *sync.Cond
	closed       bool
}

// NewMultiplexer wraps conn, preparing a pool of interleaveChannelCount/2
// channel-id pairs (one even id for RTP, the following odd id for RTCP,
// per RFC 2326 §12.39's "interleaved=<a>-<b>" convention).
func NewMultiplexer(conn net.Conn) *Multiplexer {
	m := &Multiplexer{
		conn:  conn,
		bw:    bufio.NewWriter(conn),
		chans: map[int]*interleaveChannel{},
	}
	m.releasedCond = sync.NewCond(&m.released)

	for i := 0; i+1 < interleaveChannelCount; i += 2 {
		m.pool = append(m.pool, i)
	}

	return m
}

// Allocate reserves the next free channel-id pair (RTP, RTCP) and returns
// the two Channels bound to it.
func (m *Multiplexer) Allocate() (rtp Channel, rtcp Channel, err error) {
	m.poolMutex.Lock()
	if len(m.pool) == 0 {
		m.poolMutex.Unlock()
		return nil, nil, fmt.Errorf("interleave: no free channel pair")
	}
	baseID := m.pool[0]
	m.pool = m.pool[1:]
	m.poolMutex.Unlock()

	rtpCh := newInterleaveChannel(m, baseID)
	rtcpCh := newInterleaveChannel(m, baseID+1)

	m.poolMutex.Lock()
	m.chans[baseID] = rtpCh
	m.chans[baseID+1] = rtcpCh
	m.poolMutex.Unlock()

	return rtpCh, rtcpCh, nil
}

// Release returns a previously allocated channel-id pair to the pool.
// Called when SETUP fails partway through, or on TEARDOWN.
func (m *Multiplexer) Release(base int) {
	m.poolMutex.Lock()
	delete(m.chans, base)
	delete(m.chans, base+1)
	m.pool = append(m.pool, base)
	m.poolMutex.Unlock()

	m.released.Lock()
	m.releasedCond.Broadcast()
	m.released.Unlock()
}

// Dispatch routes one interleaved frame's payload to its channel's inbound
// FIFO, called from the connection's listen loop when it peels a `$`
// record off the TCP stream.
func (m *Multiplexer) Dispatch(frame *base.InterleavedFrame) {
	m.poolMutex.Lock()
	ch, ok := m.chans[frame.Channel]
	m.poolMutex.Unlock()

	if !ok {
		return
	}
	ch.push(frame.Payload)
}

// WriteRaw writes data (an RTSP request or response) directly to the
// connection, serialized against interleaved writes under the same
// mutex so a reply is never split by a concurrently written RTP/RTCP
// record.
func (m *Multiplexer) WriteRaw(data []byte) error {
	m.wmutex.Lock()
	defer m.wmutex.Unlock()

	if _, err := m.bw.Write(data); err != nil {
		return wrapChannelError(err)
	}
	return m.bw.Flush()
}

// writeFrame writes one interleaved record, serialized against every
// other channel sharing this connection.
func (m *Multiplexer) writeFrame(channel int, payload []byte) (int, error) {
	m.wmutex.Lock()
	defer m.wmutex.Unlock()

	f := base.InterleavedFrame{Channel: channel, Payload: payload}
	f.Write(m.bw)
	if err := m.bw.Flush(); err != nil {
		return 0, wrapChannelError(err)
	}
	return len(payload), nil
}

// Close closes every allocated channel, waits for the pool to drain, then
// closes the underlying TCP socket (spec §4.2).
func (m *Multiplexer) Close() error {
	m.poolMutex.Lock()
	m.closed = true
	active := make([]*interleaveChannel, 0, len(m.chans))
	for _, ch := range m.chans {
		active = append(active, ch)
	}
	m.poolMutex.Unlock()

	for _, ch := range active {
		ch.Close() //nolint:errcheck
	}

	m.released.Lock()
	for len(m.pool) < interleaveChannelCount/2 {
		m.releasedCond.Wait()
	}
	m.released.Unlock()

	return m.conn.Close()
}

// interleaveChannel is a Channel backed by one `$`-framed logical stream
// over a Multiplexer's shared TCP connection (spec §4.2's "Interleave
// channel").
type interleaveChannel struct {
	mux     *Multiplexer
	channel int

	mu        sync.Mutex
	cond      *sync.Cond
	buf       []byte
	running   bool
	readBlock bool
	timeout   time.Duration
}

func newInterleaveChannel(mux *Multiplexer, channel int) *interleaveChannel {
	c := &interleaveChannel{mux: mux, channel: channel, running: true}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *interleaveChannel) push(data []byte) {
	c.mu.Lock()
	c.buf = append(c.buf, data...)
	c.cond.Signal()
	c.mu.Unlock()
}

// ReadSome implements spec §4.2's read policy: data present returns
// immediately (possibly partial); otherwise it waits per the blocking
// mode, or fails would-block on timeout expiry.
func (c *interleaveChannel) ReadSome(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.buf) == 0 && c.running {
		if !c.readBlock && c.timeout <= 0 {
			return 0, nil
		}

		if c.readBlock {
			c.cond.Wait()
			continue
		}

		woke := make(chan struct{})
		timer := time.AfterFunc(c.timeout, func() {
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
			close(woke)
		})
		c.cond.Wait()
		timer.Stop()
		select {
		case <-woke:
			if len(c.buf) == 0 && c.running {
				return 0, &ChannelError{WouldBlock: true, Cause: fmt.Errorf("read timeout")}
			}
		default:
		}
	}

	if !c.running && len(c.buf) == 0 {
		return 0, &ChannelError{Cause: fmt.Errorf("connection shut down")}
	}

	n := copy(buf, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (c *interleaveChannel) WriteSome(buf []byte) (int, error) {
	return c.mux.writeFrame(c.channel, buf)
}

// WriteLast is identical to WriteSome: the `$`-framing already demarcates
// one record per write.
func (c *interleaveChannel) WriteLast(buf []byte) (int, error) {
	return c.WriteSome(buf)
}

func (c *interleaveChannel) SetReadBlock(block bool) {
	c.mu.Lock()
	c.readBlock = block
	c.mu.Unlock()
}

func (c *interleaveChannel) SetReadTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

func (c *interleaveChannel) SetWriteBlock(bool)            {}
func (c *interleaveChannel) SetWriteTimeout(time.Duration) {}
func (c *interleaveChannel) SetWriteBufferSize(int)        {}

// Close flips the running flag and wakes any blocked reader (spec §4.2).
func (c *interleaveChannel) Close() error {
	c.mu.Lock()
	c.running = false
	c.cond.Broadcast()
	c.mu.Unlock()
	return nil
}

func (c *interleaveChannel) Description() ChannelDescription {
	return ChannelDescription{Kind: ChannelShared, Local: c.channel, Remote: c.channel}
}
