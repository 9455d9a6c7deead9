// Package ffmpeg implements the decode interfaces over libav via go-astiav.
// It demuxes one video stream per Input, decodes with an optional hardware
// decoder, and converts frames to tightly packed RGBA through swscale.
// Building it requires cgo and the FFmpeg libraries.
package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"

	"github.com/zsiec/scrub/decode"
	"github.com/zsiec/scrub/media"
	"github.com/zsiec/scrub/timeline"
)

func init() {
	astiav.SetLogLevel(astiav.LogLevelQuiet)
}

// ErrNoVideoStream means the container has no video stream to decode.
var ErrNoVideoStream = errors.New("ffmpeg: no video stream")

var (
	_ decode.Source = (*Input)(nil)
	_ decode.Packet = (*Packet)(nil)
)

// Input is an open media container narrowed to its first video stream.
type Input struct {
	fc     *astiav.FormatContext
	stream *astiav.Stream
	info   media.VideoInfo
	closer *astikit.Closer
}

// Open opens path and locates its first video stream.
func Open(path string) (*Input, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, errors.New("ffmpeg: allocating format context failed")
	}
	closer := astikit.NewCloser()
	closer.Add(fc.Free)

	if err := fc.OpenInput(path, nil, nil); err != nil {
		closer.Close()
		return nil, fmt.Errorf("ffmpeg: opening %s failed: %w", path, err)
	}
	closer.Add(fc.CloseInput)

	if err := fc.FindStreamInfo(nil); err != nil {
		closer.Close()
		return nil, fmt.Errorf("ffmpeg: finding stream info failed: %w", err)
	}

	var stream *astiav.Stream
	for _, s := range fc.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			stream = s
			break
		}
	}
	if stream == nil {
		closer.Close()
		return nil, ErrNoVideoStream
	}

	return &Input{
		fc:     fc,
		stream: stream,
		info:   streamInfo(fc, stream),
		closer: closer,
	}, nil
}

func streamInfo(fc *astiav.FormatContext, stream *astiav.Stream) media.VideoInfo {
	params := stream.CodecParameters()
	tb := stream.TimeBase()
	fr := fc.GuessFrameRate(stream, nil)

	info := media.VideoInfo{
		StreamIndex: stream.Index(),
		Codec:       params.CodecID().Name(),
		Width:       params.Width(),
		Height:      params.Height(),
		TimeBase:    media.Rational{Num: tb.Num(), Den: tb.Den()},
		FrameRate:   media.Rational{Num: fr.Num(), Den: fr.Den()},
	}

	// Stream duration when the container declares one, else the format
	// level duration, which is already in microseconds.
	if d := stream.Duration(); d > 0 {
		info.DurationUS = astiav.RescaleQ(d, tb, astiav.TimeBaseQ)
	} else if d := fc.Duration(); d > 0 {
		info.DurationUS = d
	}

	info.TotalFrames = stream.NbFrames()
	if info.TotalFrames == 0 {
		info.TotalFrames = timeline.TotalFrames(info.DurationUS, info.FrameRate)
	}
	return info
}

// Info describes the selected video stream.
func (in *Input) Info() media.VideoInfo { return in.info }

// ReadPacket returns the next packet of the video stream, skipping packets
// that belong to other streams.
func (in *Input) ReadPacket() (decode.Packet, error) {
	for {
		pkt := astiav.AllocPacket()
		if err := in.fc.ReadFrame(pkt); err != nil {
			pkt.Free()
			if errors.Is(err, astiav.ErrEof) {
				return nil, decode.ErrEndOfStream
			}
			return nil, fmt.Errorf("ffmpeg: reading packet failed: %w", err)
		}
		if pkt.StreamIndex() != in.stream.Index() {
			pkt.Free()
			continue
		}
		pts := pkt.Pts()
		if pts == astiav.NoPtsValue {
			pts = pkt.Dts()
		}
		return &Packet{pkt: pkt, pts: pts}, nil
	}
}

// Seek positions the demuxer at the nearest keyframe at or before the
// timestamp, which is given in microseconds.
func (in *Input) Seek(timestampUS int64) error {
	if err := in.fc.SeekFrame(-1, timestampUS, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("ffmpeg: seeking to %dus failed: %w", timestampUS, err)
	}
	return nil
}

// Close releases the demuxer.
func (in *Input) Close() error {
	in.closer.Close()
	return nil
}

// Packet carries one demuxed video packet. Release must be called exactly
// once when the packet is no longer needed.
type Packet struct {
	pkt *astiav.Packet
	pts int64
}

// PTS returns the packet timestamp in stream time base units, falling back
// to the decode timestamp when the container omits presentation times.
func (p *Packet) PTS() int64 { return p.pts }

// Release frees the underlying libav packet.
func (p *Packet) Release() { p.pkt.Free() }
