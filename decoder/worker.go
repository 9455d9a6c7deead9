package decoder

import (
	"errors"
	"log/slog"

	"github.com/zsiec/scrub/decode"
	"github.com/zsiec/scrub/media"
	"github.com/zsiec/scrub/timeline"
)

// worker owns the demuxer, decoder, converter and frame cache. It is the
// only goroutine that touches them, so requests serialize through the
// queue and none of the decode state needs locking.
type worker struct {
	src   decode.Source
	dec   decode.Decoder
	conv  decode.Converter
	info  media.VideoInfo
	cache *frameCache
	queue *peekQueue
	stats *Stats
	log   *slog.Logger

	done   <-chan struct{}
	exited chan struct{}

	// lastDecoded is the index of the newest frame produced by the
	// decoder, -1 until the first frame after open or seek.
	lastDecoded int64
	// lastActive is the previously requested index, -1 before the first
	// request completes. It anchors the eviction direction.
	lastActive int64
	// stashed holds a packet read past the decode window or across a
	// preemption, fed back on the next pass instead of a fresh read.
	stashed decode.Packet
	// drained is set once end of stream has been flushed out of the
	// decoder; cleared by seeking.
	drained bool
}

func (w *worker) run() {
	defer close(w.exited)
	defer w.release()
	for {
		req, ok := w.queue.recv(w.done)
		if !ok {
			w.refuse(w.queue.drainPending())
			return
		}
		w.serve(req)
	}
}

// refuse answers abandoned requests after shutdown so no caller hangs.
func (w *worker) refuse(reqs []request) {
	for _, r := range reqs {
		r.reply <- nil
	}
}

func (w *worker) release() {
	w.dropStash()
	if err := w.conv.Close(); err != nil {
		w.log.Warn("converter close failed", "error", err)
	}
	if err := w.dec.Close(); err != nil {
		w.log.Warn("decoder close failed", "error", err)
	}
	if err := w.src.Close(); err != nil {
		w.log.Warn("source close failed", "error", err)
	}
	w.log.Info("decoder closed")
}

// serve resolves a single request: cache lookup, optional seek, then
// forward decode until the target is found, a newer request preempts, the
// decode window is exceeded, or the stream runs out. The reply is written
// exactly once; nil means not found.
func (w *worker) serve(req request) {
	target := req.index
	replied := false
	fulfill := func(f *media.Frame) {
		if !replied {
			req.reply <- f
			replied = true
		}
	}
	defer func() {
		if !replied {
			req.reply <- nil
			w.stats.RecordNotFound()
		}
		w.lastActive = target
		w.stats.SetCachedFrames(w.cache.size())
	}()

	if f, ok := w.cache.get(target); ok {
		w.stats.RecordCacheHit()
		fulfill(f)
		return
	}
	w.stats.RecordCacheMiss()

	if target <= 0 || w.lastDecoded < 0 || target < w.lastDecoded {
		if err := w.seekTo(target); err != nil {
			w.log.Warn("seek failed", "frame", target, "error", err)
			return
		}
	}

	half := w.cache.half()
	for {
		pkt, err := w.nextPacket()
		if err != nil {
			if errors.Is(err, decode.ErrEndOfStream) {
				w.drainDecoder(target, half, fulfill)
				return
			}
			w.log.Warn("packet read failed", "frame", target, "error", err)
			return
		}

		// A newer request supersedes this one. Keep the packet for it.
		if w.queue.peek() {
			w.stash(pkt)
			w.stats.RecordPreemption()
			return
		}

		// Past the admission window: decoding further buys nothing for
		// this target.
		pktIndex := timeline.FrameForPTS(pkt.PTS(), w.info.TimeBase, w.info.FrameRate)
		if pktIndex > target+half {
			w.stash(pkt)
			return
		}

		if err := w.decodePacket(pkt, target, half, fulfill); err != nil {
			w.log.Warn("decode failed", "frame", target, "error", err)
			return
		}
	}
}

// seekTo positions the source at the keyframe preceding target and resets
// all decode state. The cache is cleared before the container seek so a
// failed seek still leaves the worker consistent: empty cache, unknown
// decode position, next request seeks again.
func (w *worker) seekTo(target int64) error {
	w.stats.RecordSeek()
	w.dec.Flush()
	w.dropStash()
	w.cache.clear()
	w.lastDecoded = -1
	w.drained = false

	ts := timeline.SeekTimestampUS(target, w.info.FrameRate)
	if ts < 0 {
		ts = 0
	}
	w.log.Debug("seeking", "frame", target, "timestampUs", ts)
	if err := w.src.Seek(ts); err != nil {
		return err
	}
	return nil
}

// nextPacket prefers a stashed packet over reading the source.
func (w *worker) nextPacket() (decode.Packet, error) {
	if w.stashed != nil {
		pkt := w.stashed
		w.stashed = nil
		return pkt, nil
	}
	pkt, err := w.src.ReadPacket()
	if err != nil {
		return nil, err
	}
	w.stats.RecordPacketRead()
	return pkt, nil
}

func (w *worker) stash(pkt decode.Packet) {
	w.stashed = pkt
}

func (w *worker) dropStash() {
	if w.stashed != nil {
		w.stashed.Release()
		w.stashed = nil
	}
}

// decodePacket feeds one packet in and processes every frame that comes
// out. Decoders with reordering delay may emit zero frames per packet.
func (w *worker) decodePacket(pkt decode.Packet, target, half int64, fulfill func(*media.Frame)) error {
	err := w.dec.SendPacket(pkt)
	pkt.Release()
	if err != nil {
		return err
	}
	if err := w.receiveFrames(target, half, fulfill); err != nil && !errors.Is(err, decode.ErrNoFrame) {
		return err
	}
	return nil
}

// drainDecoder flushes delayed frames out of the decoder once the source
// is exhausted, so trailing frames remain reachable.
func (w *worker) drainDecoder(target, half int64, fulfill func(*media.Frame)) {
	if !w.drained {
		w.drained = true
		if err := w.dec.Drain(); err != nil {
			w.log.Warn("decoder drain failed", "frame", target, "error", err)
			return
		}
	}
	err := w.receiveFrames(target, half, fulfill)
	if err != nil && !errors.Is(err, decode.ErrEndOfStream) && !errors.Is(err, decode.ErrNoFrame) {
		w.log.Warn("decoder drain failed", "frame", target, "error", err)
	}
}

// receiveFrames pulls decoded frames until the decoder wants more input
// (ErrNoFrame) or is fully drained (ErrEndOfStream), converting each one
// and caching those inside the admission window around target.
func (w *worker) receiveFrames(target, half int64, fulfill func(*media.Frame)) error {
	for {
		rf, err := w.dec.ReceiveFrame()
		if err != nil {
			return err
		}
		index := timeline.FrameForPTS(rf.PTS(), w.info.TimeBase, w.info.FrameRate)
		w.lastDecoded = index
		w.stats.RecordFrameDecode()

		data, err := w.conv.Convert(rf)
		if err != nil {
			return err
		}
		f := &media.Frame{
			Index:  index,
			PTS:    rf.PTS(),
			Width:  w.info.Width,
			Height: w.info.Height,
			Data:   data,
		}
		if index == target {
			fulfill(f)
		}
		if index >= target-half && index <= target+half {
			w.cache.insert(index, f, target, w.lastActive)
		}
	}
}
