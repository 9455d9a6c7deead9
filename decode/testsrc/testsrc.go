// Package testsrc is a synthetic constant-frame-rate decode backend. It
// fabricates a stream of procedurally painted frames with real container
// behaviors: packets carry proper timestamps, seeks land on the keyframe at
// or before the target, decoding only syncs at a keyframe, and an optional
// reorder delay holds frames back until the decoder is drained. It exists so
// the decoding core can be exercised hermetically, without media files or
// codec libraries, and so examples run anywhere.
package testsrc

import (
	"encoding/binary"
	"fmt"
	"image"

	"github.com/fogleman/gg"

	"github.com/zsiec/scrub/decode"
	"github.com/zsiec/scrub/media"
)

var (
	_ decode.Source    = (*Stream)(nil)
	_ decode.Decoder   = (*Decoder)(nil)
	_ decode.Converter = (*Converter)(nil)
)

// Config shapes the synthetic stream. Zero fields take the defaults below.
type Config struct {
	Width       int
	Height      int
	FrameRate   media.Rational
	Frames      int64 // total frames in the stream
	GOPSize     int64 // keyframe interval; seeks land on multiples of this
	DecodeDelay int   // packets buffered inside the decoder before frames emerge
	TimeBaseDen int   // stream time base is 1/TimeBaseDen
}

// Defaults produce a 10 second, 30 fps, 300 frame stream.
const (
	DefaultWidth       = 96
	DefaultHeight      = 54
	DefaultFrames      = 300
	DefaultGOPSize     = 30
	DefaultTimeBaseDen = 90000
)

// Stream is a synthetic media container exposing its single video stream.
// Like a real container it is not safe for concurrent use.
type Stream struct {
	cfg           Config
	info          media.VideoInfo
	ticksPerFrame int64
	pos           int64 // next frame index to hand out as a packet
	closed        bool
}

// New builds a synthetic stream, applying defaults for zero Config fields.
func New(cfg Config) *Stream {
	if cfg.Width == 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height == 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.FrameRate.Zero() {
		cfg.FrameRate = media.Rational{Num: 30, Den: 1}
	}
	if cfg.Frames == 0 {
		cfg.Frames = DefaultFrames
	}
	if cfg.GOPSize == 0 {
		cfg.GOPSize = DefaultGOPSize
	}
	if cfg.TimeBaseDen == 0 {
		cfg.TimeBaseDen = DefaultTimeBaseDen
	}

	ticks := int64(cfg.TimeBaseDen) * int64(cfg.FrameRate.Den) / int64(cfg.FrameRate.Num)
	durationUS := cfg.Frames * 1_000_000 * int64(cfg.FrameRate.Den) / int64(cfg.FrameRate.Num)

	return &Stream{
		cfg:           cfg,
		ticksPerFrame: ticks,
		info: media.VideoInfo{
			StreamIndex: 0,
			Codec:       "testsrc",
			Width:       cfg.Width,
			Height:      cfg.Height,
			TimeBase:    media.Rational{Num: 1, Den: cfg.TimeBaseDen},
			FrameRate:   cfg.FrameRate,
			DurationUS:  durationUS,
			TotalFrames: cfg.Frames,
		},
	}
}

// Info describes the synthetic video stream.
func (s *Stream) Info() media.VideoInfo { return s.info }

// ReadPacket hands out the next frame's packet in presentation order.
func (s *Stream) ReadPacket() (decode.Packet, error) {
	if s.closed {
		return nil, fmt.Errorf("testsrc: stream closed")
	}
	if s.pos >= s.cfg.Frames {
		return nil, decode.ErrEndOfStream
	}
	p := &packet{
		index: s.pos,
		pts:   s.pos * s.ticksPerFrame,
		key:   s.pos%s.cfg.GOPSize == 0,
	}
	s.pos++
	return p, nil
}

// Seek repositions the stream at the keyframe at or before the timestamp,
// mirroring a backward container seek. Timestamps past the end land on the
// last keyframe.
func (s *Stream) Seek(timestampUS int64) error {
	if s.closed {
		return fmt.Errorf("testsrc: stream closed")
	}
	frame := timestampUS * int64(s.cfg.FrameRate.Num) / (int64(s.cfg.FrameRate.Den) * 1_000_000)
	if frame < 0 {
		frame = 0
	}
	if frame >= s.cfg.Frames {
		frame = s.cfg.Frames - 1
	}
	s.pos = frame - frame%s.cfg.GOPSize
	return nil
}

func (s *Stream) Close() error {
	s.closed = true
	return nil
}

// NewDecoder builds the stream's paired decoder.
func (s *Stream) NewDecoder() *Decoder {
	return &Decoder{delay: s.cfg.DecodeDelay}
}

// NewConverter builds the stream's paired RGBA converter.
func (s *Stream) NewConverter() *Converter {
	return &Converter{s: s}
}

type packet struct {
	index int64
	pts   int64
	key   bool
}

func (p *packet) PTS() int64 { return p.pts }
func (p *packet) Release()   {}

type rawFrame struct {
	index int64
	pts   int64
}

func (f *rawFrame) PTS() int64 { return f.pts }

// Decoder models a forward-only video decoder: it only produces frames once
// it has seen a keyframe, and it withholds the last `delay` frames until
// drained, the way codecs with reorder delay do.
type Decoder struct {
	delay   int
	synced  bool
	drained bool
	queue   []*rawFrame
}

func (d *Decoder) SendPacket(p decode.Packet) error {
	if d.drained {
		return fmt.Errorf("testsrc: send on drained decoder")
	}
	tp, ok := p.(*packet)
	if !ok {
		return fmt.Errorf("testsrc: foreign packet type %T", p)
	}
	if tp.key {
		d.synced = true
	}
	if !d.synced {
		// Mid-GOP packets before the first keyframe cannot be decoded.
		return nil
	}
	d.queue = append(d.queue, &rawFrame{index: tp.index, pts: tp.pts})
	return nil
}

func (d *Decoder) Drain() error {
	d.drained = true
	return nil
}

func (d *Decoder) ReceiveFrame() (decode.RawFrame, error) {
	if len(d.queue) > d.delay || (d.drained && len(d.queue) > 0) {
		f := d.queue[0]
		d.queue = d.queue[1:]
		return f, nil
	}
	if d.drained {
		return nil, decode.ErrEndOfStream
	}
	return nil, decode.ErrNoFrame
}

func (d *Decoder) Flush() {
	d.queue = nil
	d.synced = false
	d.drained = false
}

func (d *Decoder) Close() error { return nil }

// Converter paints each frame deterministically: a shaded background with a
// marker bar whose position tracks the index, and the index itself stamped
// into the first eight bytes so tests can identify frames byte-exactly.
type Converter struct {
	s      *Stream
	closed bool
}

func (c *Converter) Convert(rf decode.RawFrame) ([]byte, error) {
	if c.closed {
		return nil, fmt.Errorf("testsrc: converter closed")
	}
	f, ok := rf.(*rawFrame)
	if !ok {
		return nil, fmt.Errorf("testsrc: foreign frame type %T", rf)
	}
	return c.paint(f.index), nil
}

func (c *Converter) Close() error {
	c.closed = true
	return nil
}

func (c *Converter) paint(index int64) []byte {
	w, h := c.s.cfg.Width, c.s.cfg.Height
	dc := gg.NewContext(w, h)

	shade := float64(index%200)/255 + 0.1
	dc.SetRGB(shade*0.5, 0.15, 0.4)
	dc.Clear()

	x := float64(index % int64(w))
	dc.SetRGB(0.9, 0.85, 0.2)
	dc.DrawRectangle(x, float64(h)/4, 6, float64(h)/2)
	dc.Fill()

	img := dc.Image().(*image.RGBA)
	buf := img.Pix
	binary.BigEndian.PutUint64(buf[:8], uint64(index))
	return buf
}

// FrameIndex recovers the index stamped into a painted frame's pixels.
func FrameIndex(data []byte) int64 {
	if len(data) < 8 {
		return -1
	}
	return int64(binary.BigEndian.Uint64(data[:8]))
}
