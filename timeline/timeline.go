// Package timeline converts between stream timestamps and zero-based frame
// indices. All arithmetic is integer and truncating, multiplying before
// dividing, so forward and inverse mappings round-trip stably for
// constant-frame-rate streams. Variable-frame-rate streams get best-effort
// results: a mapped index may name a neighboring frame.
package timeline

import "github.com/zsiec/scrub/media"

// FrameForPTS maps a presentation timestamp in stream time-base units to a
// zero-based frame index.
func FrameForPTS(pts int64, timeBase, frameRate media.Rational) int64 {
	if timeBase.Zero() || frameRate.Zero() {
		return 0
	}
	return pts * int64(timeBase.Num) * int64(frameRate.Num) /
		(int64(timeBase.Den) * int64(frameRate.Den))
}

// SeekTimestampUS maps a frame index to an approximate stream position in
// microseconds, suitable as a backward-seek target. The frame-rate
// denominator is deliberately ignored, so fractional rates land early; a
// backward keyframe seek followed by a forward scan absorbs the difference.
func SeekTimestampUS(frame int64, frameRate media.Rational) int64 {
	if frameRate.Num == 0 {
		return 0
	}
	return frame * 1_000_000 / int64(frameRate.Num)
}

// TotalFrames estimates the number of frames in a stream of the given
// duration. Returns 0 when either value is unknown.
func TotalFrames(durationUS int64, frameRate media.Rational) int64 {
	if durationUS <= 0 || frameRate.Zero() {
		return 0
	}
	return durationUS * int64(frameRate.Num) / (int64(frameRate.Den) * 1_000_000)
}
