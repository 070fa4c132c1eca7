// Package rtph264 contains a RTP/H264 encoder.
package rtph264

const (
	rtpVersion   = 2
	rtpClockRate = 90000 // H264 always uses 90khz
)
