package decoder

import "sync/atomic"

// Stats tracks decoder health counters. All fields are atomics so the
// worker hot path never takes a lock and callers can snapshot from any
// goroutine.
type Stats struct {
	// Incremented by the worker goroutine.
	packetsRead   atomic.Int64
	framesDecoded atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
	seeks         atomic.Int64
	preemptions   atomic.Int64
	notFound      atomic.Int64

	// Gauge updated after each served request.
	cachedFrames atomic.Int64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) RecordPacketRead()  { s.packetsRead.Add(1) }
func (s *Stats) RecordFrameDecode() { s.framesDecoded.Add(1) }
func (s *Stats) RecordCacheHit()    { s.cacheHits.Add(1) }
func (s *Stats) RecordCacheMiss()   { s.cacheMisses.Add(1) }
func (s *Stats) RecordSeek()        { s.seeks.Add(1) }
func (s *Stats) RecordPreemption()  { s.preemptions.Add(1) }
func (s *Stats) RecordNotFound()    { s.notFound.Add(1) }

func (s *Stats) SetCachedFrames(n int) { s.cachedFrames.Store(int64(n)) }

// StatsSnapshot is a point-in-time copy of the counters, safe to retain
// and serialize after the decoder is gone.
type StatsSnapshot struct {
	PacketsRead   int64 `json:"packetsRead"`
	FramesDecoded int64 `json:"framesDecoded"`
	CacheHits     int64 `json:"cacheHits"`
	CacheMisses   int64 `json:"cacheMisses"`
	Seeks         int64 `json:"seeks"`
	Preemptions   int64 `json:"preemptions"`
	NotFound      int64 `json:"notFound"`
	CachedFrames  int64 `json:"cachedFrames"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		PacketsRead:   s.packetsRead.Load(),
		FramesDecoded: s.framesDecoded.Load(),
		CacheHits:     s.cacheHits.Load(),
		CacheMisses:   s.cacheMisses.Load(),
		Seeks:         s.seeks.Load(),
		Preemptions:   s.preemptions.Load(),
		NotFound:      s.notFound.Load(),
		CachedFrames:  s.cachedFrames.Load(),
	}
}
