// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers wrap them with context and test with errors.Is.
var (
	// Packet input errors
	ErrPacketTooShort   = errors.New("otus-rtp: packet too short")
	ErrUnsupportedProto = errors.New("otus-rtp: unsupported protocol")
	ErrNotRTP           = errors.New("otus-rtp: not an rtp packet")
	ErrMalformedPacket  = errors.New("otus-rtp: malformed packet")
	ErrFragmented       = errors.New("otus-rtp: fragmented ip datagram")

	// Pass errors
	ErrPassActive       = errors.New("otus-rtp: another pass is active")
	ErrPassClosed       = errors.New("otus-rtp: pass already ended")
	ErrNoFilterIdentity = errors.New("otus-rtp: no filter stream identity")
	ErrStreamNotFound   = errors.New("otus-rtp: stream not found")

	// Export errors
	ErrSampleTooLarge = errors.New("otus-rtp: sample too large for rtpdump record")
	ErrBadDumpFile    = errors.New("otus-rtp: not an rtpdump file")

	// Configuration errors
	ErrConfigInvalid = errors.New("otus-rtp: invalid configuration")
)
