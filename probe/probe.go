// Package probe inspects MP4 containers without opening a decoder. It walks
// the moov sample tables to answer the questions a scrubbing frontend asks
// before committing to decode: how many frames there are, how fast they
// play, and how densely the keyframes are spaced, which is what a seek to
// any given frame will cost.
package probe

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/zsiec/scrub/media"
)

// ErrNoVideoTrack means the container has no track with a video handler.
var ErrNoVideoTrack = errors.New("probe: no video track")

// Info summarizes the first video track of an MP4 container.
type Info struct {
	Codec     string
	Width     int
	Height    int
	Timescale uint32

	DurationUS int64
	FrameCount int64
	FrameRate  media.Rational

	// Keyframes holds the zero-based frame numbers of sync samples in
	// ascending order. Empty when the container omits the sync table,
	// which means every frame is a sync sample.
	Keyframes []int64
	// MaxGOP is the widest keyframe spacing in frames, 1 when all-intra.
	MaxGOP int64

	// Fragmented containers keep their sample tables in movie fragments;
	// only codec and dimensions are reported for them.
	Fragmented bool
}

// File probes the MP4 at path.
func File(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("probe: open: %w", err)
	}
	defer f.Close()
	return Reader(f)
}

// Reader probes an MP4 from an io.ReadSeeker.
func Reader(r io.ReadSeeker) (*Info, error) {
	f, err := mp4.DecodeFile(r)
	if err != nil {
		return nil, fmt.Errorf("probe: decode mp4: %w", err)
	}
	return fromFile(f)
}

func fromFile(f *mp4.File) (*Info, error) {
	moov := f.Moov
	if moov == nil && f.Init != nil {
		moov = f.Init.Moov
	}
	if moov == nil {
		return nil, errors.New("probe: no moov box")
	}

	trak := videoTrak(moov)
	if trak == nil {
		return nil, ErrNoVideoTrack
	}

	info := &Info{Fragmented: len(f.Segments) > 0}
	fillSampleEntry(info, trak)

	if trak.Mdia.Mdhd != nil {
		info.Timescale = trak.Mdia.Mdhd.Timescale
	}
	if info.Fragmented {
		return info, nil
	}
	if err := fillSampleTables(info, trak); err != nil {
		return nil, err
	}
	return info, nil
}

func videoTrak(moov *mp4.MoovBox) *mp4.TrakBox {
	for _, trak := range moov.Traks {
		if trak.Mdia != nil && trak.Mdia.Hdlr != nil && trak.Mdia.Hdlr.HandlerType == "vide" {
			return trak
		}
	}
	return nil
}

func fillSampleEntry(info *Info, trak *mp4.TrakBox) {
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil || trak.Mdia.Minf.Stbl.Stsd == nil {
		return
	}
	for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
		if vse, ok := child.(*mp4.VisualSampleEntryBox); ok {
			info.Codec = vse.Type()
			info.Width = int(vse.Width)
			info.Height = int(vse.Height)
			return
		}
	}
}

func fillSampleTables(info *Info, trak *mp4.TrakBox) error {
	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
		return errors.New("probe: no sample table")
	}
	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz == nil {
		return errors.New("probe: no stsz box")
	}
	info.FrameCount = int64(stbl.Stsz.SampleNumber)

	if stbl.Stts != nil {
		fillTiming(info, stbl.Stts)
	}
	fillKeyframes(info, stbl.Stss)
	return nil
}

// fillTiming derives duration and frame rate from the stts box. A single
// stts entry means constant frame duration, so the rate is exact; mixed
// durations get the average.
func fillTiming(info *Info, stts *mp4.SttsBox) {
	var ticks int64
	for i := range stts.SampleCount {
		ticks += int64(stts.SampleCount[i]) * int64(stts.SampleTimeDelta[i])
	}
	if info.Timescale == 0 || ticks == 0 {
		return
	}
	info.DurationUS = ticks * 1_000_000 / int64(info.Timescale)

	if len(stts.SampleCount) == 1 {
		info.FrameRate = reduced(int64(info.Timescale), int64(stts.SampleTimeDelta[0]))
		return
	}
	info.FrameRate = reduced(info.FrameCount*int64(info.Timescale), ticks)
}

func fillKeyframes(info *Info, stss *mp4.StssBox) {
	if stss == nil || len(stss.SampleNumber) == 0 {
		// No stss box: every sample is a sync sample.
		info.MaxGOP = 1
		return
	}
	info.Keyframes = make([]int64, len(stss.SampleNumber))
	for i, nr := range stss.SampleNumber {
		info.Keyframes[i] = int64(nr) - 1
	}
	for i := 1; i < len(info.Keyframes); i++ {
		if gop := info.Keyframes[i] - info.Keyframes[i-1]; gop > info.MaxGOP {
			info.MaxGOP = gop
		}
	}
	if last := info.FrameCount - info.Keyframes[len(info.Keyframes)-1]; last > info.MaxGOP {
		info.MaxGOP = last
	}
}

// KeyframeBefore returns the frame number of the closest sync sample at or
// before frame, which is where a seek targeting frame will land. All-intra
// streams return frame itself; -1 means frame precedes the first keyframe.
func (i *Info) KeyframeBefore(frame int64) int64 {
	if len(i.Keyframes) == 0 {
		if frame < 0 {
			return -1
		}
		return frame
	}
	n := sort.Search(len(i.Keyframes), func(k int) bool { return i.Keyframes[k] > frame })
	if n == 0 {
		return -1
	}
	return i.Keyframes[n-1]
}

func reduced(num, den int64) media.Rational {
	g := gcd(num, den)
	if g == 0 {
		return media.Rational{}
	}
	return media.Rational{Num: int(num / g), Den: int(den / g)}
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
