package rtspcore

import (
	"sync"
	"time"
)

// fakeChannel is an in-memory Channel test double: writes are recorded in
// order, reads always report would-block after a short, bounded wait
// (there is never anything to read in these tests; a real RTCP peer reads
// from a UDP socket or the multiplexer instead).
type fakeChannel struct {
	mu      sync.Mutex
	writes  [][]byte
	timeout time.Duration
	desc    ChannelDescription
}

func (c *fakeChannel) ReadSome(buf []byte) (int, error) {
	c.mu.Lock()
	d := c.timeout
	c.mu.Unlock()
	if d > 5*time.Millisecond {
		d = 5 * time.Millisecond
	}
	time.Sleep(d)
	return 0, &ChannelError{WouldBlock: true}
}

func (c *fakeChannel) WriteSome(buf []byte) (int, error) {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	c.mu.Lock()
	c.writes = append(c.writes, cp)
	c.mu.Unlock()
	return len(buf), nil
}

func (c *fakeChannel) WriteLast(buf []byte) (int, error) { return c.WriteSome(buf) }

func (c *fakeChannel) SetReadBlock(bool) {}
func (c *fakeChannel) SetReadTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}
func (c *fakeChannel) SetWriteBlock(bool)            {}
func (c *fakeChannel) SetWriteTimeout(time.Duration) {}
func (c *fakeChannel) SetWriteBufferSize(int)        {}

func (c *fakeChannel) Close() error { return nil }

func (c *fakeChannel) Description() ChannelDescription { return c.desc }

func (c *fakeChannel) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}
