package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"

	"github.com/zsiec/scrub/decode"
)

var codecIDToHwDecoder = map[astiav.CodecID]string{
	astiav.CodecIDH264:       "h264_cuvid",
	astiav.CodecIDHevc:       "hevc_cuvid",
	astiav.CodecIDMpeg2Video: "mpeg2_cuvid",
	astiav.CodecIDMpeg4:      "mpeg4_cuvid",
	astiav.CodecIDVc1:        "vc1_cuvid",
	astiav.CodecIDVp8:        "vp8_cuvid",
	astiav.CodecIDVp9:        "vp9_cuvid",
}

var (
	_ decode.Decoder  = (*VideoDecoder)(nil)
	_ decode.RawFrame = (*RawFrame)(nil)
)

// DecoderConfig controls how the codec context is opened.
type DecoderConfig struct {
	// HWAccel tries the hardware decoder for the stream's codec first and
	// falls back to software when it is missing or fails to open.
	HWAccel bool

	// Threads caps the decoder thread count. Zero lets libav decide.
	Threads int
}

// VideoDecoder decodes the input's video packets.
type VideoDecoder struct {
	cc     *astiav.CodecContext
	name   string
	raw    RawFrame
	closer *astikit.Closer
}

// NewDecoder opens a codec context for the input's video stream.
func (in *Input) NewDecoder(config DecoderConfig) (*VideoDecoder, error) {
	params := in.stream.CodecParameters()

	var (
		cc    *astiav.CodecContext
		codec *astiav.Codec
	)
	if config.HWAccel {
		if name, ok := codecIDToHwDecoder[params.CodecID()]; ok {
			if hw := astiav.FindDecoderByName(name); hw != nil {
				if hwCC, err := in.openCodecContext(hw, config.Threads); err == nil {
					cc, codec = hwCC, hw
				}
			}
		}
	}
	if cc == nil {
		codec = astiav.FindDecoder(params.CodecID())
		if codec == nil {
			return nil, fmt.Errorf("ffmpeg: no decoder for %s", params.CodecID().Name())
		}
		var err error
		if cc, err = in.openCodecContext(codec, config.Threads); err != nil {
			return nil, err
		}
	}

	d := &VideoDecoder{cc: cc, name: codec.Name(), closer: astikit.NewCloser()}
	d.closer.Add(cc.Free)
	d.raw.frame = astiav.AllocFrame()
	d.closer.Add(d.raw.frame.Free)
	return d, nil
}

func (in *Input) openCodecContext(codec *astiav.Codec, threads int) (*astiav.CodecContext, error) {
	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, errors.New("ffmpeg: allocating codec context failed")
	}
	if err := in.stream.CodecParameters().ToCodecContext(cc); err != nil {
		cc.Free()
		return nil, fmt.Errorf("ffmpeg: applying codec parameters failed: %w", err)
	}
	cc.SetFramerate(in.fc.GuessFrameRate(in.stream, nil))
	if threads > 0 {
		cc.SetThreadCount(threads)
	}
	if err := cc.Open(codec, nil); err != nil {
		cc.Free()
		return nil, fmt.Errorf("ffmpeg: opening %s failed: %w", codec.Name(), err)
	}
	return cc, nil
}

// Name returns the name of the codec that was actually opened, which tells
// a caller whether the hardware path was taken.
func (d *VideoDecoder) Name() string { return d.name }

// SendPacket feeds one demuxed packet to the decoder.
func (d *VideoDecoder) SendPacket(p decode.Packet) error {
	fp, ok := p.(*Packet)
	if !ok {
		return fmt.Errorf("ffmpeg: unexpected packet type %T", p)
	}
	if err := d.cc.SendPacket(fp.pkt); err != nil {
		return fmt.Errorf("ffmpeg: sending packet failed: %w", err)
	}
	return nil
}

// ReceiveFrame returns the next decoded frame. The frame is only valid
// until the next ReceiveFrame call.
func (d *VideoDecoder) ReceiveFrame() (decode.RawFrame, error) {
	d.raw.frame.Unref()
	if err := d.cc.ReceiveFrame(d.raw.frame); err != nil {
		switch {
		case errors.Is(err, astiav.ErrEagain):
			return nil, decode.ErrNoFrame
		case errors.Is(err, astiav.ErrEof):
			return nil, decode.ErrEndOfStream
		}
		return nil, fmt.Errorf("ffmpeg: receiving frame failed: %w", err)
	}
	return &d.raw, nil
}

// Drain signals end of input so buffered frames can still be received.
func (d *VideoDecoder) Drain() error {
	if err := d.cc.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return fmt.Errorf("ffmpeg: draining decoder failed: %w", err)
	}
	return nil
}

// Flush discards buffered frames and reference state, making the decoder
// accept input again after a seek or a drain.
func (d *VideoDecoder) Flush() { d.cc.FlushBuffers() }

// Close frees the codec context.
func (d *VideoDecoder) Close() error {
	d.closer.Close()
	return nil
}

// RawFrame wraps a decoded libav frame.
type RawFrame struct {
	frame *astiav.Frame
}

// PTS returns the frame timestamp in stream time base units.
func (f *RawFrame) PTS() int64 { return f.frame.Pts() }
