// Package decode defines the boundary to the demux/decode/scale capability
// a frame decoder runs on. The core decoding logic depends only on these
// interfaces; concrete backends live in the ffmpeg and testsrc subpackages
// and are wired in by the caller, so the core never knows which one it got.
package decode

import (
	"errors"

	"github.com/zsiec/scrub/media"
)

var (
	// ErrEndOfStream is returned by ReadPacket when the container has no
	// more packets, and by ReceiveFrame once a drained decoder has given
	// up its last buffered frame.
	ErrEndOfStream = errors.New("decode: end of stream")

	// ErrNoFrame is returned by ReceiveFrame when the decoder needs more
	// packets before it can produce another frame.
	ErrNoFrame = errors.New("decode: no frame available")
)

// Packet is one demuxed unit of the selected video stream. Packets are
// owned by the receiver: call Release exactly once when done with it,
// whether or not it was sent to a decoder.
type Packet interface {
	// PTS is the presentation timestamp in stream time-base units. Backends
	// substitute a usable timestamp (typically the DTS) when the container
	// carries none.
	PTS() int64
	Release()
}

// RawFrame is a decoded, unconverted picture. It is only valid until the
// next ReceiveFrame call on the decoder that produced it; convert it before
// pulling the next one.
type RawFrame interface {
	PTS() int64
}

// Source is an open media container narrowed to its best video stream.
type Source interface {
	// Info describes the selected video stream.
	Info() media.VideoInfo

	// ReadPacket returns the next packet of the video stream, skipping
	// packets of other streams. Returns ErrEndOfStream once the container
	// is exhausted.
	ReadPacket() (Packet, error)

	// Seek positions the container at the nearest keyframe at or before
	// the given timestamp in microseconds. Decoding resumes from there.
	Seek(timestampUS int64) error

	Close() error
}

// Decoder turns packets into raw frames. One packet may yield zero or more
// frames; frames buffered by codec delay come out only after Drain.
type Decoder interface {
	SendPacket(Packet) error

	// Drain signals end of stream so the decoder releases its buffered
	// frames. Call at most once per stream position; Flush re-arms it.
	Drain() error

	// ReceiveFrame returns the next decoded frame, ErrNoFrame when the
	// decoder needs more input, or ErrEndOfStream once fully drained.
	ReceiveFrame() (RawFrame, error)

	// Flush drops all buffered decoder state. Required before decoding
	// from a new container position.
	Flush()

	Close() error
}

// Converter produces tightly packed RGBA pixel data from raw frames.
type Converter interface {
	// Convert returns a freshly allocated buffer of width*height*4 bytes.
	Convert(RawFrame) ([]byte, error)
	Close() error
}
