package decoder

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zsiec/scrub/decode/testsrc"
	"github.com/zsiec/scrub/media"
)

func newTestDecoder(t *testing.T, cfg testsrc.Config) *Decoder {
	t.Helper()
	s := testsrc.New(cfg)
	d, err := New(Config{
		Source:    s,
		Decoder:   s.NewDecoder(),
		Converter: s.NewConverter(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestDecoder_EveryFrameDecodable(t *testing.T) {
	d := newTestDecoder(t, testsrc.Config{})
	ctx := context.Background()

	info := d.Info()
	wantSize := info.Width * info.Height * 4
	for i := int64(0); i < info.TotalFrames; i++ {
		f, err := d.GetFrame(ctx, i)
		if err != nil {
			t.Fatalf("GetFrame(%d): %v", i, err)
		}
		if got := testsrc.FrameIndex(f.Data); got != i {
			t.Fatalf("GetFrame(%d) returned frame %d", i, got)
		}
		if len(f.Data) != wantSize {
			t.Fatalf("GetFrame(%d) data size: got %d, want %d", i, len(f.Data), wantSize)
		}
	}

	// A forward sweep costs one seek; everything else is cache hits and
	// forward decode.
	snap := d.Stats()
	if snap.Seeks != 1 {
		t.Errorf("seeks for forward sweep: got %d, want 1", snap.Seeks)
	}
	if snap.CacheHits == 0 {
		t.Error("forward sweep should hit the cache")
	}
	if snap.CachedFrames == 0 {
		t.Error("cache gauge should be non-zero after decoding")
	}
}

func TestDecoder_RepeatAndReturnRequestsIdentical(t *testing.T) {
	d := newTestDecoder(t, testsrc.Config{})
	ctx := context.Background()

	first, err := d.GetFrame(ctx, 150)
	if err != nil {
		t.Fatalf("GetFrame(150): %v", err)
	}
	again, err := d.GetFrame(ctx, 150)
	if err != nil {
		t.Fatalf("second GetFrame(150): %v", err)
	}
	if !bytes.Equal(first.Data, again.Data) {
		t.Error("repeated request should return identical pixels")
	}

	// Jumping away and back crosses a seek and a cache wipe; the pixels
	// must still match.
	if _, err := d.GetFrame(ctx, 10); err != nil {
		t.Fatalf("GetFrame(10): %v", err)
	}
	back, err := d.GetFrame(ctx, 150)
	if err != nil {
		t.Fatalf("GetFrame(150) after jump: %v", err)
	}
	if !bytes.Equal(first.Data, back.Data) {
		t.Error("request after jumping away should return identical pixels")
	}
}

func TestDecoder_EndOfStream(t *testing.T) {
	d := newTestDecoder(t, testsrc.Config{DecodeDelay: 2})
	ctx := context.Background()

	f, err := d.GetFrame(ctx, 299)
	if err != nil {
		t.Fatalf("GetFrame(299): %v", err)
	}
	if got := testsrc.FrameIndex(f.Data); got != 299 {
		t.Errorf("final frame: got %d, want 299", got)
	}

	if _, err := d.GetFrame(ctx, 300); !errors.Is(err, ErrFrameNotFound) {
		t.Errorf("GetFrame(300): got %v, want ErrFrameNotFound", err)
	}

	// Exhausting the stream must not wedge the decoder.
	if _, err := d.GetFrame(ctx, 0); err != nil {
		t.Errorf("GetFrame(0) after end of stream: %v", err)
	}
}

func TestDecoder_ConcurrentScrubbing(t *testing.T) {
	d := newTestDecoder(t, testsrc.Config{})
	ctx := context.Background()

	// Four scrubbers hammer the queue. Requests may be superseded and
	// come back not-found, but every call must resolve and every frame
	// delivered must be the one asked for.
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				index := int64((g*60 + i*7) % 300)
				f, err := d.GetFrame(ctx, index)
				if err != nil {
					if !errors.Is(err, ErrFrameNotFound) {
						t.Errorf("GetFrame(%d): %v", index, err)
					}
					continue
				}
				if got := testsrc.FrameIndex(f.Data); got != index {
					t.Errorf("GetFrame(%d) returned frame %d", index, got)
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestDecoder_CloseRefusesPending(t *testing.T) {
	d := newTestDecoder(t, testsrc.Config{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(index int64) {
			defer wg.Done()
			f, err := d.GetFrame(ctx, index)
			if err == nil {
				if got := testsrc.FrameIndex(f.Data); got != index {
					t.Errorf("GetFrame(%d) returned frame %d", index, got)
				}
				return
			}
			if !errors.Is(err, ErrFrameNotFound) && !errors.Is(err, ErrClosed) {
				t.Errorf("GetFrame(%d): %v", index, err)
			}
		}(int64(i * 17))
	}
	d.Close()
	wg.Wait()

	if _, err := d.GetFrame(ctx, 5); !errors.Is(err, ErrClosed) {
		t.Errorf("GetFrame after Close: got %v, want ErrClosed", err)
	}
	// Close is idempotent.
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestDecoder_ContextAbandonsWait(t *testing.T) {
	// No worker behind this handle, so the request can never be answered
	// and only the context can end the wait.
	d := &Decoder{
		queue:  newPeekQueue(requestQueueSize),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := d.GetFrame(ctx, 42)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetFrame with expired context: got %v, want deadline exceeded", err)
	}
}

type noRateSource struct {
	*testsrc.Stream
}

func (s *noRateSource) Info() media.VideoInfo {
	info := s.Stream.Info()
	info.FrameRate = media.Rational{}
	return info
}

func TestDecoder_ConfigValidation(t *testing.T) {
	s := testsrc.New(testsrc.Config{})

	if _, err := New(Config{Decoder: s.NewDecoder(), Converter: s.NewConverter()}); err == nil {
		t.Error("New without Source should fail")
	}
	if _, err := New(Config{Source: s, Converter: s.NewConverter()}); err == nil {
		t.Error("New without Decoder should fail")
	}
	if _, err := New(Config{Source: s, Decoder: s.NewDecoder()}); err == nil {
		t.Error("New without Converter should fail")
	}
	if _, err := New(Config{Source: &noRateSource{Stream: s}, Decoder: s.NewDecoder(), Converter: s.NewConverter()}); err == nil {
		t.Error("New with no frame rate should fail")
	}
}
