package ffmpeg

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/zsiec/scrub/decode"
)

var _ decode.Converter = (*Converter)(nil)

// Converter converts decoded frames to tightly packed RGBA at source
// dimensions through swscale. The scale context is created lazily and
// rebuilt whenever the source frame geometry or pixel format changes.
type Converter struct {
	ssc *astiav.SoftwareScaleContext
	dst *astiav.Frame

	srcWidth  int
	srcHeight int
	srcFormat astiav.PixelFormat
}

// NewConverter returns a converter producing RGBA pixels.
func (in *Input) NewConverter() *Converter {
	return &Converter{}
}

// Convert scales one decoded frame and returns its RGBA bytes.
func (c *Converter) Convert(rf decode.RawFrame) ([]byte, error) {
	f, ok := rf.(*RawFrame)
	if !ok {
		return nil, fmt.Errorf("ffmpeg: unexpected frame type %T", rf)
	}
	if err := c.ensure(f.frame); err != nil {
		return nil, err
	}
	if err := c.ssc.ScaleFrame(f.frame, c.dst); err != nil {
		return nil, fmt.Errorf("ffmpeg: scaling frame failed: %w", err)
	}
	n, err := c.dst.ImageBufferSize(1)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: sizing image buffer failed: %w", err)
	}
	buf := make([]byte, n)
	if _, err := c.dst.ImageCopyToBuffer(buf, 1); err != nil {
		return nil, fmt.Errorf("ffmpeg: copying image failed: %w", err)
	}
	return buf, nil
}

func (c *Converter) ensure(src *astiav.Frame) error {
	if c.ssc != nil && src.Width() == c.srcWidth && src.Height() == c.srcHeight && src.PixelFormat() == c.srcFormat {
		return nil
	}
	c.release()

	ssc, err := astiav.CreateSoftwareScaleContext(
		src.Width(), src.Height(), src.PixelFormat(),
		src.Width(), src.Height(), astiav.PixelFormatRgba,
		astiav.NewSoftwareScaleContextFlags(),
	)
	if err != nil {
		return fmt.Errorf("ffmpeg: creating scale context failed: %w", err)
	}

	dst := astiav.AllocFrame()
	dst.SetWidth(src.Width())
	dst.SetHeight(src.Height())
	dst.SetPixelFormat(astiav.PixelFormatRgba)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return fmt.Errorf("ffmpeg: allocating frame buffer failed: %w", err)
	}

	c.ssc = ssc
	c.dst = dst
	c.srcWidth = src.Width()
	c.srcHeight = src.Height()
	c.srcFormat = src.PixelFormat()
	return nil
}

func (c *Converter) release() {
	if c.dst != nil {
		c.dst.Free()
		c.dst = nil
	}
	if c.ssc != nil {
		c.ssc.Free()
		c.ssc = nil
	}
}

// Close frees the scale context and its destination frame.
func (c *Converter) Close() error {
	c.release()
	return nil
}
