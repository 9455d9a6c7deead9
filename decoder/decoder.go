// Package decoder provides frame-accurate random access on top of a
// forward-only decode backend. A single worker goroutine owns the source,
// decoder and converter; callers submit frame requests through a queue and
// a bounded direction-aware cache absorbs the scrubbing access pattern so
// nearby requests rarely touch the decoder at all.
package decoder

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/zsiec/scrub/decode"
	"github.com/zsiec/scrub/media"
)

var (
	// ErrFrameNotFound means the requested frame cannot be produced: past
	// the end of the stream, superseded by a newer request, or lost to a
	// decode failure.
	ErrFrameNotFound = errors.New("decoder: frame not found")
	// ErrClosed means the decoder was closed before or while the request
	// was in flight.
	ErrClosed = errors.New("decoder: closed")
)

// Config holds the pieces a Decoder is assembled from. Source, Decoder and
// Converter are required; the Decoder takes ownership and closes them.
type Config struct {
	Source    decode.Source
	Decoder   decode.Decoder
	Converter decode.Converter

	// CacheCapacity bounds the frame cache. Zero means
	// DefaultCacheCapacity. The decode-ahead window around each target is
	// half of it.
	CacheCapacity int

	Logger *slog.Logger
}

// Decoder serves random-access frame requests for one video stream. All
// methods are safe for concurrent use.
type Decoder struct {
	info  media.VideoInfo
	queue *peekQueue
	stats *Stats
	log   *slog.Logger

	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
}

// New validates the configuration and starts the decode worker. Backend
// construction problems surface here, synchronously; after New returns,
// per-frame failures are reported as ErrFrameNotFound instead.
func New(config Config) (*Decoder, error) {
	if config.Source == nil {
		return nil, errors.New("decoder: Source is required")
	}
	if config.Decoder == nil {
		return nil, errors.New("decoder: Decoder is required")
	}
	if config.Converter == nil {
		return nil, errors.New("decoder: Converter is required")
	}
	info := config.Source.Info()
	if info.TimeBase.Zero() {
		return nil, errors.New("decoder: source reports no time base")
	}
	if info.FrameRate.Zero() {
		return nil, errors.New("decoder: source reports no frame rate")
	}
	capacity := config.CacheCapacity
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	log := config.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "decoder")

	d := &Decoder{
		info:   info,
		queue:  newPeekQueue(requestQueueSize),
		stats:  NewStats(),
		log:    log,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	w := &worker{
		src:         config.Source,
		dec:         config.Decoder,
		conv:        config.Converter,
		info:        info,
		cache:       newFrameCache(capacity),
		queue:       d.queue,
		stats:       d.stats,
		log:         log,
		done:        d.done,
		exited:      d.exited,
		lastDecoded: -1,
		lastActive:  -1,
	}
	go w.run()

	log.Info("decoder ready",
		"codec", info.Codec,
		"width", info.Width,
		"height", info.Height,
		"frames", info.TotalFrames)
	return d, nil
}

// Info returns the stream parameters the decoder was opened with.
func (d *Decoder) Info() media.VideoInfo { return d.info }

// Stats returns a snapshot of the decoder counters.
func (d *Decoder) Stats() StatsSnapshot { return d.stats.Snapshot() }

// GetFrame requests the frame at index and blocks until it is produced or
// declared unavailable. Canceling ctx abandons the wait, not the work: the
// worker still finishes the request, it just has nowhere to deliver it.
// Requests resolve in submission order; a newer request causes older ones
// still decoding to give up early with ErrFrameNotFound.
func (d *Decoder) GetFrame(ctx context.Context, index int64) (*media.Frame, error) {
	req := request{index: index, reply: make(chan *media.Frame, 1)}
	select {
	case d.queue.ch <- req:
	case <-d.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case f := <-req.reply:
		if f == nil {
			return nil, ErrFrameNotFound
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.exited:
		// The worker refuses pending requests before exiting, so a reply
		// may have raced the exit signal.
		select {
		case f := <-req.reply:
			if f == nil {
				return nil, ErrFrameNotFound
			}
			return f, nil
		default:
			return nil, ErrClosed
		}
	}
}

// Close stops the worker and releases the backend. It blocks until the
// worker has refused any pending requests and exited. Safe to call more
// than once.
func (d *Decoder) Close() error {
	d.closeOnce.Do(func() {
		close(d.done)
	})
	<-d.exited
	return nil
}
