package rtspcore

import (
	"net"
	"time"
)

// ChannelKind distinguishes a channel with its own transport (UDP port
// pair) from one sharing the TCP connection's interleave framing.
type ChannelKind int

// Channel delivery kinds.
const (
	ChannelOwned ChannelKind = iota
	ChannelShared
)

// ChannelDescription identifies one Channel's delivery kind and local/
// remote port pair (spec §4.1's description()).
type ChannelDescription struct {
	Kind   ChannelKind
	Local  int
	Remote int
}

// Channel is the uniform byte-stream read/write surface spec §4.1 gives
// UDP, TCP, and TCP-interleaved logical channels, so the RTP session and
// RTCP sender/receiver can be written once against one interface.
type Channel interface {
	ReadSome(buf []byte) (int, error)
	WriteSome(buf []byte) (int, error)

	// WriteLast writes buf and marks it the end of a logical record,
	// where the transport supports it (UDP: every datagram; TCP
	// interleave: the framing already demarcates records).
	WriteLast(buf []byte) (int, error)

	SetReadBlock(block bool)
	SetReadTimeout(d time.Duration)
	SetWriteBlock(block bool)
	SetWriteTimeout(d time.Duration)
	SetWriteBufferSize(n int)

	Close() error
	Description() ChannelDescription
}

// udpChannel wraps a connected UDP socket.
type udpChannel struct {
	conn         *net.UDPConn
	localPort    int
	remotePort   int
	readBlock    bool
	writeBlock   bool
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewUDPChannel wraps an already-connected UDP socket as a Channel.
func NewUDPChannel(conn *net.UDPConn, localPort, remotePort int) Channel {
	return &udpChannel{conn: conn, localPort: localPort, remotePort: remotePort}
}

func (c *udpChannel) applyReadDeadline() {
	if !c.readBlock && c.readTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	} else {
		c.conn.SetReadDeadline(time.Time{})
	}
}

func (c *udpChannel) applyWriteDeadline() {
	if !c.writeBlock && c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	} else {
		c.conn.SetWriteDeadline(time.Time{})
	}
}

func (c *udpChannel) ReadSome(buf []byte) (int, error) {
	c.applyReadDeadline()
	n, err := c.conn.Read(buf)
	if err != nil {
		return n, wrapChannelError(err)
	}
	return n, nil
}

func (c *udpChannel) WriteSome(buf []byte) (int, error) {
	c.applyWriteDeadline()
	n, err := c.conn.Write(buf)
	if err != nil {
		return n, wrapChannelError(err)
	}
	return n, nil
}

// WriteLast is identical to WriteSome on UDP: every datagram is already a
// complete record.
func (c *udpChannel) WriteLast(buf []byte) (int, error) {
	return c.WriteSome(buf)
}

func (c *udpChannel) SetReadBlock(block bool)        { c.readBlock = block }
func (c *udpChannel) SetReadTimeout(d time.Duration)  { c.readTimeout = d }
func (c *udpChannel) SetWriteBlock(block bool)        { c.writeBlock = block }
func (c *udpChannel) SetWriteTimeout(d time.Duration) { c.writeTimeout = d }
func (c *udpChannel) SetWriteBufferSize(n int)        { c.conn.SetWriteBuffer(n) } //nolint:errcheck

func (c *udpChannel) Close() error {
	return c.conn.Close()
}

func (c *udpChannel) Description() ChannelDescription {
	return ChannelDescription{Kind: ChannelOwned, Local: c.localPort, Remote: c.remotePort}
}

// wouldBlocker is satisfied by net.Error, whose Timeout() reports an
// expired read/write deadline: the "would-block" predicate spec §4.1 and
// §7 require callers be able to distinguish from fatal errors.
type wouldBlocker interface {
	Timeout() bool
}

func wrapChannelError(err error) *ChannelError {
	if ne, ok := err.(wouldBlocker); ok && ne.Timeout() {
		return &ChannelError{WouldBlock: true, Cause: err}
	}
	return &ChannelError{Cause: err}
}

// IsWouldBlock reports whether err is a Channel "would-block" condition.
func IsWouldBlock(err error) bool {
	ce, ok := err.(*ChannelError)
	return ok && ce.WouldBlock
}

// applyTCPKeepalive configures the 5s idle / 3 probes / 10s interval
// keepalive spec §4.1 requires on TCP channels.
func applyTCPKeepalive(conn *net.TCPConn) {
	conn.SetKeepAliveConfig(net.KeepAliveConfig{ //nolint:errcheck
		Enable:   true,
		Idle:     5 * time.Second,
		Interval: 10 * time.Second,
		Count:    3,
	})
}

// dialUDPPair opens a connected RTP/RTCP socket pair toward
// clientHost:clientPorts, each bound to an OS-chosen local port (spec
// §4.10's SETUP: "creates an RTP session bound to the requested
// transport"). Being connected sockets, Write needs no destination
// address and Read rejects traffic from anywhere else.
func dialUDPPair(clientHost string, clientPorts [2]int) (rtpConn, rtcpConn *net.UDPConn, serverPorts [2]int, err error) {
	rtpConn, err = net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP(clientHost), Port: clientPorts[0]})
	if err != nil {
		return nil, nil, serverPorts, err
	}

	rtcpConn, err = net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP(clientHost), Port: clientPorts[1]})
	if err != nil {
		rtpConn.Close() //nolint:errcheck
		return nil, nil, serverPorts, err
	}

	serverPorts = [2]int{
		rtpConn.LocalAddr().(*net.UDPAddr).Port,
		rtcpConn.LocalAddr().(*net.UDPAddr).Port,
	}
	return rtpConn, rtcpConn, serverPorts, nil
}
