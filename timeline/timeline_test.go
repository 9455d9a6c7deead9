package timeline

import (
	"testing"

	"github.com/zsiec/scrub/media"
)

func TestFrameForPTS_90kHz30fps(t *testing.T) {
	tb := media.Rational{Num: 1, Den: 90000}
	fr := media.Rational{Num: 30, Den: 1}

	// One frame is 3000 ticks at 90kHz/30fps.
	cases := []struct {
		pts  int64
		want int64
	}{
		{0, 0},
		{2999, 0},
		{3000, 1},
		{3001, 1},
		{29999, 9},
		{30000, 10},
	}
	for _, c := range cases {
		if got := FrameForPTS(c.pts, tb, fr); got != c.want {
			t.Errorf("FrameForPTS(%d): got %d, want %d", c.pts, got, c.want)
		}
	}
}

func TestFrameForPTS_NTSC(t *testing.T) {
	tb := media.Rational{Num: 1, Den: 90000}
	fr := media.Rational{Num: 30000, Den: 1001}

	// One NTSC frame is exactly 3003 ticks at 90kHz.
	for f := int64(0); f < 100; f++ {
		pts := f * 3003
		if got := FrameForPTS(pts, tb, fr); got != f {
			t.Errorf("FrameForPTS(%d): got %d, want %d", pts, got, f)
		}
	}
}

func TestFrameForPTS_FrameDurationTimeBase(t *testing.T) {
	// Time base equal to the frame duration makes pts and index coincide.
	tb := media.Rational{Num: 1001, Den: 30000}
	fr := media.Rational{Num: 30000, Den: 1001}

	for _, pts := range []int64{0, 1, 7, 299} {
		if got := FrameForPTS(pts, tb, fr); got != pts {
			t.Errorf("FrameForPTS(%d): got %d, want %d", pts, got, pts)
		}
	}
}

func TestFrameForPTS_DegenerateRationals(t *testing.T) {
	if got := FrameForPTS(1000, media.Rational{}, media.Rational{Num: 30, Den: 1}); got != 0 {
		t.Errorf("zero time base: got %d, want 0", got)
	}
	if got := FrameForPTS(1000, media.Rational{Num: 1, Den: 90000}, media.Rational{}); got != 0 {
		t.Errorf("zero frame rate: got %d, want 0", got)
	}
}

func TestSeekTimestampUS_Truncates(t *testing.T) {
	fr := media.Rational{Num: 30, Den: 1}

	cases := []struct {
		frame int64
		want  int64
	}{
		{0, 0},
		{1, 33333},   // 1_000_000/30 truncated
		{30, 1000000},
		{45, 1500000},
		{299, 9966666},
	}
	for _, c := range cases {
		if got := SeekTimestampUS(c.frame, fr); got != c.want {
			t.Errorf("SeekTimestampUS(%d): got %d, want %d", c.frame, got, c.want)
		}
	}
}

func TestSeekTimestampUS_DenominatorIgnored(t *testing.T) {
	// Fractional rates land early on purpose; the backward keyframe seek
	// plus forward scan makes up the difference.
	fr := media.Rational{Num: 30000, Den: 1001}
	if got := SeekTimestampUS(300, fr); got != 10000 {
		t.Errorf("SeekTimestampUS(300): got %d, want 10000", got)
	}
}

func TestSeekTimestampUS_RoundTripStable(t *testing.T) {
	// Seeking to the timestamp of frame F and mapping it back must never
	// overshoot F for integer rates.
	tb := media.Rational{Num: 1, Den: 1000000}
	fr := media.Rational{Num: 30, Den: 1}

	for f := int64(0); f < 1000; f++ {
		us := SeekTimestampUS(f, fr)
		back := FrameForPTS(us, tb, fr)
		if back > f {
			t.Fatalf("round trip overshot: frame %d -> %dus -> frame %d", f, us, back)
		}
		if f-back > 1 {
			t.Fatalf("round trip landed too early: frame %d -> %dus -> frame %d", f, us, back)
		}
	}
}

func TestTotalFrames(t *testing.T) {
	cases := []struct {
		name       string
		durationUS int64
		fr         media.Rational
		want       int64
	}{
		{"10s at 30fps", 10_000_000, media.Rational{Num: 30, Den: 1}, 300},
		{"10.01s NTSC", 10_010_000, media.Rational{Num: 30000, Den: 1001}, 300},
		{"zero duration", 0, media.Rational{Num: 30, Den: 1}, 0},
		{"unknown rate", 10_000_000, media.Rational{}, 0},
	}
	for _, c := range cases {
		if got := TotalFrames(c.durationUS, c.fr); got != c.want {
			t.Errorf("%s: got %d, want %d", c.name, got, c.want)
		}
	}
}
