package headers

import (
	"fmt"
	"strconv"
	"strings"
)

// TransportDelivery distinguishes owned (UDP, per-session ports) from
// shared (TCP-interleaved, multiplexed over the connection) transports.
type TransportDelivery int

// Transport delivery kinds.
const (
	TransportDeliveryOwned TransportDelivery = iota
	TransportDeliveryShared
)

// Transport is a RTSP Transport header, parsed per spec.md §4.9: only the
// two unicast alternatives this server supports are recognized, everything
// else (multicast, unknown lower-transports) is skipped by the caller when
// walking the comma-separated alternative list.
type Transport struct {
	Delivery TransportDelivery

	// UDP: client-chosen port pair.
	ClientPort *[2]int

	// UDP: server-chosen port pair (response only).
	ServerPort *[2]int

	// TCP-interleaved: channel pair.
	Interleaved *[2]int

	// optional client-hinted SSRC.
	SSRC *uint32

	// response-only addressing.
	Source      string
	Destination string
}

// ReadFirstAcceptable parses a Transport header value containing one or
// more comma-separated alternatives and returns the first this server
// supports. It returns ok=false (not an error) if none are acceptable,
// matching spec.md §4.9 ("if none acceptable, 461").
func ReadFirstAcceptable(v []string) (*Transport, bool) {
	if len(v) == 0 {
		return nil, false
	}

	// a Transport header may repeat the field or comma-separate alternatives
	// within one value; normalize to one flat list of alternatives.
	var alts []string
	for _, val := range v {
		alts = append(alts, strings.Split(val, ",")...)
	}

	for _, alt := range alts {
		if t, ok := parseOneTransport(strings.TrimSpace(alt)); ok {
			return t, true
		}
	}

	return nil, false
}

func parseOneTransport(alt string) (*Transport, bool) {
	parts := strings.Split(alt, ";")
	if len(parts) == 0 {
		return nil, false
	}

	proto := strings.ToUpper(strings.TrimSpace(parts[0]))
	var delivery TransportDelivery
	switch proto {
	case "RTP/AVP", "RTP/AVP/UDP":
		delivery = TransportDeliveryOwned
	case "RTP/AVP/TCP":
		delivery = TransportDeliveryShared
	default:
		return nil, false
	}

	t := &Transport{Delivery: delivery}
	multicast := false

	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		kv := strings.SplitN(p, "=", 2)
		key := strings.ToLower(kv[0])

		switch key {
		case "multicast":
			multicast = true
		case "unicast":
			// default, nothing to record
		case "client_port":
			if len(kv) != 2 {
				return nil, false
			}
			pair, err := parsePortPair(kv[1])
			if err != nil {
				return nil, false
			}
			t.ClientPort = pair
		case "server_port":
			if len(kv) != 2 {
				return nil, false
			}
			pair, err := parsePortPair(kv[1])
			if err != nil {
				return nil, false
			}
			t.ServerPort = pair
		case "interleaved":
			if len(kv) != 2 {
				return nil, false
			}
			pair, err := parsePortPair(kv[1])
			if err != nil {
				return nil, false
			}
			t.Interleaved = pair
		case "ssrc":
			if len(kv) != 2 {
				return nil, false
			}
			ssrc, err := strconv.ParseUint(kv[1], 16, 32)
			if err != nil {
				return nil, false
			}
			v := uint32(ssrc)
			t.SSRC = &v
		case "source":
			if len(kv) == 2 {
				t.Source = kv[1]
			}
		case "destination":
			if len(kv) == 2 {
				t.Destination = kv[1]
			}
		}
	}

	if multicast {
		return nil, false
	}

	switch delivery {
	case TransportDeliveryOwned:
		if t.ClientPort == nil {
			return nil, false
		}
	case TransportDeliveryShared:
		if t.Interleaved == nil {
			return nil, false
		}
	}

	return t, true
}

func parsePortPair(s string) (*[2]int, error) {
	parts := strings.SplitN(s, "-", 2)
	a, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, err
	}
	b := a
	if len(parts) == 2 {
		b, err = strconv.Atoi(parts[1])
		if err != nil {
			return nil, err
		}
	}
	return &[2]int{a, b}, nil
}

// Write encodes a Transport header for a SETUP response.
func (t Transport) Write() []string {
	var sb strings.Builder

	switch t.Delivery {
	case TransportDeliveryShared:
		sb.WriteString("RTP/AVP/TCP")
	default:
		sb.WriteString("RTP/AVP")
	}
	sb.WriteString(";unicast")

	if t.Source != "" {
		sb.WriteString(";source=" + t.Source)
	}
	if t.Destination != "" {
		sb.WriteString(";destination=" + t.Destination)
	}
	if t.ClientPort != nil {
		sb.WriteString(fmt.Sprintf(";client_port=%d-%d", t.ClientPort[0], t.ClientPort[1]))
	}
	if t.ServerPort != nil {
		sb.WriteString(fmt.Sprintf(";server_port=%d-%d", t.ServerPort[0], t.ServerPort[1]))
	}
	if t.Interleaved != nil {
		sb.WriteString(fmt.Sprintf(";interleaved=%d-%d", t.Interleaved[0], t.Interleaved[1]))
	}
	if t.SSRC != nil {
		sb.WriteString(fmt.Sprintf(";ssrc=%08x", *t.SSRC))
	}

	return []string{sb.String()}
}
