// Package rtcpreceiver implements the server's inbound RTCP path (spec
// §4.8): a read loop with an adaptive timeout that backs off while the
// client is quiet and recovers quickly once it resumes, dispatching each
// recognized Receiver Report / Source Description / Goodbye / Application
// packet to a handler and resyncing past anything it doesn't recognize
// instead of tearing the session down.
package rtcpreceiver

import (
	"context"
	"time"

	"github.com/pion/rtcp"
)

// Reader is the read side of whatever channel carries inbound RTCP for one
// session (a UDP socket for owned transport, a demultiplexed queue for
// TCP-interleaved transport). ReadRTCP blocks for at most timeout and
// returns one datagram's worth of bytes.
type Reader interface {
	ReadRTCP(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Handlers dispatches each recognized inbound RTCP packet type. A nil
// field is simply never called.
type Handlers struct {
	OnReceiverReport    func(*rtcp.ReceiverReport)
	OnSourceDescription func(*rtcp.SourceDescription)
	OnGoodbye           func(*rtcp.Goodbye)
	OnApp               func(*rtcp.ApplicationDefined)
}

// minRTCPPacketLen is the smallest possible RTCP packet: a 4-byte header
// with zero-length body.
const minRTCPPacketLen = 4

// Receiver runs the adaptive-timeout inbound RTCP read loop for one
// session, in the same ticker/terminate-channel goroutine shape as
// rtcpsender.RTCPSender's outbound loop.
type Receiver struct {
	Reader   Reader
	Handlers Handlers

	// MinTimeout is the read deadline used while traffic is flowing.
	// Defaults to 500ms.
	MinTimeout time.Duration

	// MaxTimeout is the read deadline the loop backs off to after
	// repeated silence. Defaults to 10s.
	MaxTimeout time.Duration

	terminate chan struct{}
	done      chan struct{}
}

// Initialize starts the read loop.
func (r *Receiver) Initialize() {
	if r.MinTimeout == 0 {
		r.MinTimeout = 500 * time.Millisecond
	}
	if r.MaxTimeout == 0 {
		r.MaxTimeout = 10 * time.Second
	}

	r.terminate = make(chan struct{})
	r.done = make(chan struct{})

	go r.run()
}

// Close stops the read loop.
func (r *Receiver) Close() {
	close(r.terminate)
	<-r.done
}

func (r *Receiver) run() {
	defer close(r.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-r.terminate
		cancel()
	}()

	timeout := r.MinTimeout

	for {
		data, err := r.Reader.ReadRTCP(ctx, timeout)
		if err != nil {
			select {
			case <-r.terminate:
				return
			default:
			}

			timeout *= 2
			if timeout > r.MaxTimeout {
				timeout = r.MaxTimeout
			}
			continue
		}

		timeout = r.MinTimeout
		r.dispatch(data)
	}
}

func (r *Receiver) dispatch(data []byte) {
	pkts, err := rtcp.Unmarshal(data)
	if err != nil {
		pkts = r.resync(data)
	}

	for _, pkt := range pkts {
		switch p := pkt.(type) {
		case *rtcp.ReceiverReport:
			if r.Handlers.OnReceiverReport != nil {
				r.Handlers.OnReceiverReport(p)
			}
		case *rtcp.SourceDescription:
			if r.Handlers.OnSourceDescription != nil {
				r.Handlers.OnSourceDescription(p)
			}
		case *rtcp.Goodbye:
			if r.Handlers.OnGoodbye != nil {
				r.Handlers.OnGoodbye(p)
			}
		case *rtcp.ApplicationDefined:
			if r.Handlers.OnApp != nil {
				r.Handlers.OnApp(p)
			}
		}
	}
}

// resync recovers from a malformed leading packet by sliding one byte at a
// time through data and re-trying rtcp.Unmarshal on the remainder, rather
// than writing a second, more tolerant parser. It stops at the first
// offset that both passes the minimum-length sanity check and unmarshals
// cleanly.
func (r *Receiver) resync(data []byte) []rtcp.Packet {
	for i := 1; i+minRTCPPacketLen <= len(data); i++ {
		pkts, err := rtcp.Unmarshal(data[i:])
		if err == nil && len(pkts) > 0 {
			return pkts
		}
	}
	return nil
}
