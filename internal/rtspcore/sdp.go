package rtspcore

import (
	"fmt"
	"time"

	psdp "github.com/pion/sdp/v3"

	"github.com/kinoglaz/kgd/internal/rtpcodec"
)

// ntpEpochOffset is the offset between the NTP epoch (1900-01-01) and the
// Unix epoch, in seconds (spec §6: "NTP-epoch conversion adds
// 2_208_988_800 to the UNIX epoch").
const ntpEpochOffset = 2_208_988_800

func toNTP(t time.Time) uint64 {
	return uint64(t.Unix() + ntpEpochOffset)
}

// MediumDescriptor is the information BuildSDP needs about one Medium
// beyond what *Medium itself carries: the codec name/clock/channel count
// for the rtpmap line, and any fmtp parameters.
type MediumDescriptor struct {
	Kind        rtpcodec.Kind
	PayloadType uint8
	ClockRate   uint32
	Channels    int    // 0 omits the optional third rtpmap component
	CodecName   string // e.g. "H264", "MPA"
	Fmtp        string // codec-specific fmtp value, empty to omit
	TrackIndex  int
}

// mediaTypeFor returns the SDP "m=" media type for a packetizer kind.
func mediaTypeFor(kind rtpcodec.Kind) string {
	if kind == rtpcodec.KindMPEGAudio {
		return "audio"
	}
	return "video"
}

// BuildSDP renders the session description spec §6 specifies for one
// resource: broadcast type, tool name, optional aggregate control,
// optional bounded range (omitted for live casts), then one m= block per
// medium with rtpmap/fmtp/control attributes.
func BuildSDP(host string, description string, sessionStamp string, durationSec float64, isLiveCast bool, aggregateControl bool, toolName string, media []MediumDescriptor) ([]byte, error) {
	now := toNTP(time.Now())

	sessName := description
	if sessName == "" {
		sessName = sessionStamp
	}

	sd := &psdp.SessionDescription{
		Version: 0,
		Origin: psdp.Origin{
			Username:       "-",
			SessionID:      now,
			SessionVersion: now,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: host,
		},
		SessionName: psdp.SessionName(sessName),
		ConnectionInformation: &psdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &psdp.Address{Address: host},
		},
		TimeDescriptions: []psdp.TimeDescription{
			{Timing: psdp.Timing{StartTime: 0, StopTime: 0}},
		},
		Attributes: []psdp.Attribute{
			{Key: "type", Value: "broadcast"},
			{Key: "tool", Value: toolName},
		},
	}

	if aggregateControl {
		sd.Attributes = append(sd.Attributes, psdp.Attribute{Key: "control", Value: "*"})
	}

	rangeValue := "npt=0-"
	if !isLiveCast && durationSec > 0 {
		rangeValue = fmt.Sprintf("npt=0-%.3f", durationSec)
	}
	sd.Attributes = append(sd.Attributes, psdp.Attribute{Key: "range", Value: rangeValue})

	for _, md := range media {
		sd.MediaDescriptions = append(sd.MediaDescriptions, buildMediaDescription(md))
	}

	return sd.Marshal()
}

func buildMediaDescription(md MediumDescriptor) *psdp.MediaDescription {
	pt := fmt.Sprintf("%d", md.PayloadType)

	rtpmap := fmt.Sprintf("%d %s/%d", md.PayloadType, md.CodecName, md.ClockRate)
	if md.Channels > 0 {
		rtpmap = fmt.Sprintf("%s/%d", rtpmap, md.Channels)
	}

	attrs := []psdp.Attribute{{Key: "rtpmap", Value: rtpmap}}
	if md.Fmtp != "" {
		attrs = append(attrs, psdp.Attribute{Key: "fmtp", Value: fmt.Sprintf("%d %s", md.PayloadType, md.Fmtp)})
	}
	attrs = append(attrs, psdp.Attribute{Key: "control", Value: fmt.Sprintf("tk=%d", md.TrackIndex)})

	return &psdp.MediaDescription{
		MediaName: psdp.MediaName{
			Media:   mediaTypeFor(md.Kind),
			Port:    psdp.RangedPort{Value: 0},
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{pt},
		},
		Attributes: attrs,
	}
}
