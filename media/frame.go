// Package media defines the core value types that flow through the scrub
// decoding pipeline, from demuxing through frame delivery.
package media

// Rational is an exact ratio, used for stream time bases and frame rates.
// A time base of 1/90000 means one timestamp tick is 1/90000th of a second.
type Rational struct {
	Num int
	Den int
}

// Zero reports whether the rational is unset or degenerate.
func (r Rational) Zero() bool {
	return r.Num == 0 || r.Den == 0
}

// Frame is a single decoded picture converted to RGBA. Data holds exactly
// Width*Height*4 bytes. Frames are immutable once produced: the same Frame
// may be held by the decoder's cache and by any number of callers
// simultaneously, so no one may write to Data.
type Frame struct {
	Index  int64 // zero-based frame index within the stream
	PTS    int64 // presentation timestamp in stream time-base units
	Width  int
	Height int
	Data   []byte
}

// VideoInfo describes the video stream a decoder is bound to.
type VideoInfo struct {
	StreamIndex int
	Codec       string // e.g. "h264", "hevc"
	Width       int
	Height      int
	TimeBase    Rational
	FrameRate   Rational
	DurationUS  int64 // container duration in microseconds, 0 if unknown
	TotalFrames int64 // estimated frame count, 0 if unknown
}
