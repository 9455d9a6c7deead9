package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/scrub/decode/ffmpeg"
	"github.com/zsiec/scrub/decoder"
	"github.com/zsiec/scrub/media"
	"github.com/zsiec/scrub/probe"
)

var version = "dev"

// Contact sheet cells are this wide; height follows the source aspect.
const sheetThumbWidth = 320

func main() {
	level := slog.LevelInfo
	if os.Getenv("SCRUB_DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var (
		input    = flag.String("i", "", "input media file")
		showInfo = flag.Bool("info", false, "print stream details and exit")
		frame    = flag.Int64("frame", -1, "frame index to extract")
		frameSet = flag.String("frames", "", "comma separated frame indices to extract")
		every    = flag.Int64("every", 0, "extract every Kth frame")
		sheet    = flag.Int("sheet", 0, "compose extracted frames into a contact sheet this many columns wide")
		out      = flag.String("o", "", "output file or directory")
		hw       = flag.Bool("hw", false, "try the hardware decoder first")
		threads  = flag.Int("threads", 0, "decoder thread count, 0 lets the library decide")
	)
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "usage: scrub -i media.mp4 [-info] [-frame N | -frames A,B,C | -every K] [-sheet COLS] [-o out] [-hw]")
		os.Exit(2)
	}

	if *showInfo {
		if err := printInfo(*input); err != nil {
			slog.Error("probe failed", "file", *input, "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	in, err := ffmpeg.Open(*input)
	if err != nil {
		slog.Error("failed to open input", "file", *input, "error", err)
		os.Exit(1)
	}

	dec, err := in.NewDecoder(ffmpeg.DecoderConfig{HWAccel: *hw, Threads: *threads})
	if err != nil {
		in.Close()
		slog.Error("failed to open decoder", "error", err)
		os.Exit(1)
	}

	slog.Info("scrub starting", "version", version, "file", *input, "decoder", dec.Name())

	d, err := decoder.New(decoder.Config{
		Source:    in,
		Decoder:   dec,
		Converter: in.NewConverter(),
	})
	if err != nil {
		dec.Close()
		in.Close()
		slog.Error("failed to start decoder", "error", err)
		os.Exit(1)
	}
	defer d.Close()

	indices, err := gatherIndices(*frame, *frameSet, *every, d.Info().TotalFrames)
	if err != nil {
		slog.Error("bad extraction request", "error", err)
		os.Exit(2)
	}

	if *sheet > 0 {
		err = writeSheet(ctx, d, indices, *sheet, *out)
	} else {
		err = writeFrames(ctx, d, indices, *out)
	}
	if err != nil {
		slog.Error("extraction failed", "error", err)
		os.Exit(1)
	}

	snap := d.Stats()
	slog.Info("done",
		"requested", len(indices),
		"decoded", snap.FramesDecoded,
		"packets", snap.PacketsRead,
		"seeks", snap.Seeks,
		"cache_hits", snap.CacheHits,
		"not_found", snap.NotFound,
	)
}

func printInfo(path string) error {
	info, err := probe.File(path)
	if err != nil {
		return err
	}
	fmt.Printf("codec        %s\n", info.Codec)
	fmt.Printf("size         %dx%d\n", info.Width, info.Height)
	if info.Fragmented {
		fmt.Printf("fragmented   true\n")
		return nil
	}
	fmt.Printf("duration     %.3fs\n", float64(info.DurationUS)/1e6)
	fmt.Printf("frames       %d\n", info.FrameCount)
	fps := float64(info.FrameRate.Num) / float64(info.FrameRate.Den)
	fmt.Printf("frame rate   %d/%d (%.3f fps)\n", info.FrameRate.Num, info.FrameRate.Den, fps)
	if len(info.Keyframes) > 0 {
		fmt.Printf("keyframes    %d (max gop %d)\n", len(info.Keyframes), info.MaxGOP)
	} else {
		fmt.Printf("keyframes    every frame\n")
	}
	return nil
}

// gatherIndices merges the three selection flags into one ascending,
// deduplicated index list.
func gatherIndices(frame int64, list string, every, total int64) ([]int64, error) {
	var indices []int64
	if frame >= 0 {
		indices = append(indices, frame)
	}
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad frame index %q", part)
		}
		indices = append(indices, n)
	}
	if every > 0 {
		if total <= 0 {
			return nil, errors.New("-every needs a stream with a known frame count")
		}
		for n := int64(0); n < total; n += every {
			indices = append(indices, n)
		}
	}
	if len(indices) == 0 {
		return nil, errors.New("pass -frame, -frames or -every")
	}

	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	dedup := indices[:1]
	for _, n := range indices[1:] {
		if n != dedup[len(dedup)-1] {
			dedup = append(dedup, n)
		}
	}
	return dedup, nil
}

// writeFrames requests frames one at a time, in ascending order, and fans
// the PNG encoding out to a group. Requests stay sequential because a newer
// request preempts an older one still decoding; firing them all at once
// would leave only the last one standing.
func writeFrames(ctx context.Context, d *decoder.Decoder, indices []int64, out string) error {
	single := ""
	dir := out
	if len(indices) == 1 && strings.HasSuffix(out, ".png") {
		single = out
		dir = filepath.Dir(out)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	missed := 0
	var getErr error
	for _, index := range indices {
		f, err := d.GetFrame(ctx, index)
		if errors.Is(err, decoder.ErrFrameNotFound) {
			slog.Warn("frame not found", "frame", index)
			missed++
			continue
		}
		if err != nil {
			getErr = err
			break
		}
		path := single
		if path == "" {
			path = filepath.Join(dir, fmt.Sprintf("frame_%06d.png", index))
		}
		g.Go(func() error {
			if err := writePNG(path, f); err != nil {
				return err
			}
			slog.Debug("frame written", "frame", index, "path", path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if getErr != nil {
		return getErr
	}
	if missed == len(indices) {
		return errors.New("no frames extracted")
	}
	return nil
}

// writeSheet lays the requested frames out on a fixed-width thumbnail grid
// and writes a single PNG.
func writeSheet(ctx context.Context, d *decoder.Decoder, indices []int64, cols int, out string) error {
	if out == "" {
		out = "sheet.png"
	}

	var frames []*media.Frame
	for _, index := range indices {
		f, err := d.GetFrame(ctx, index)
		if errors.Is(err, decoder.ErrFrameNotFound) {
			slog.Warn("frame not found", "frame", index)
			continue
		}
		if err != nil {
			return err
		}
		frames = append(frames, f)
	}
	if len(frames) == 0 {
		return errors.New("no frames extracted")
	}

	if cols > len(frames) {
		cols = len(frames)
	}
	thumbW := sheetThumbWidth
	thumbH := frames[0].Height * thumbW / frames[0].Width
	rows := (len(frames) + cols - 1) / cols
	sheet := image.NewRGBA(image.Rect(0, 0, cols*thumbW, rows*thumbH))

	for i, f := range frames {
		cell := image.Rect((i%cols)*thumbW, (i/cols)*thumbH, (i%cols+1)*thumbW, (i/cols+1)*thumbH)
		draw.ApproxBiLinear.Scale(sheet, cell, rgbaImage(f), rgbaImage(f).Bounds(), draw.Src, nil)
	}

	file, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := png.Encode(file, sheet); err != nil {
		file.Close()
		return fmt.Errorf("encoding %s: %w", out, err)
	}
	if err := file.Close(); err != nil {
		return err
	}
	slog.Info("sheet written", "path", out, "frames", len(frames), "grid", fmt.Sprintf("%dx%d", cols, rows))
	return nil
}

func writePNG(path string, f *media.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(file, rgbaImage(f)); err != nil {
		file.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return file.Close()
}

// rgbaImage wraps a frame's pixels without copying. The image must be
// treated as read-only, frames are shared with the decoder's cache.
func rgbaImage(f *media.Frame) *image.RGBA {
	return &image.RGBA{
		Pix:    f.Data,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}
