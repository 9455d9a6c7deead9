package decoder

import "github.com/zsiec/scrub/media"

// DefaultCacheCapacity is the frame cache bound used when no option
// overrides it: enough for the admission window around one target.
const DefaultCacheCapacity = 50

// frameCache is a bounded store of decoded frames keyed by index. Eviction
// is direction-aware: it uses the previous explicitly requested index to
// infer which way the playhead is moving and discards the frame furthest
// behind it. Owned by the worker goroutine, so no locking.
type frameCache struct {
	capacity int
	frames   map[int64]*media.Frame
}

func newFrameCache(capacity int) *frameCache {
	return &frameCache{
		capacity: capacity,
		frames:   make(map[int64]*media.Frame, capacity),
	}
}

func (c *frameCache) get(index int64) (*media.Frame, bool) {
	f, ok := c.frames[index]
	return f, ok
}

func (c *frameCache) size() int { return len(c.frames) }

func (c *frameCache) clear() {
	clear(c.frames)
}

// half is the admission window radius around a target.
func (c *frameCache) half() int64 { return int64(c.capacity / 2) }

// insert stores the frame at index, evicting one entry first when full.
// target is the request being served; lastActive is the previous explicitly
// requested index, -1 when unknown. index doubles as the in-flight decode
// position for the tie-break case.
func (c *frameCache) insert(index int64, f *media.Frame, target, lastActive int64) {
	if len(c.frames) >= c.capacity {
		c.evict(index, target, lastActive)
	}
	c.frames[index] = f
}

func (c *frameCache) evict(current, target, lastActive int64) {
	switch {
	case lastActive < 0:
		// No request has completed yet; no direction to infer.
		c.clear()
	case target > lastActive:
		delete(c.frames, c.minKey())
	case target < lastActive:
		delete(c.frames, c.maxKey())
	default:
		// Re-decoding around the same target: drop whichever end the
		// decode position has already moved past.
		if current > c.maxKey() {
			delete(c.frames, c.minKey())
		} else {
			delete(c.frames, c.maxKey())
		}
	}
}

func (c *frameCache) minKey() int64 {
	first := true
	var min int64
	for k := range c.frames {
		if first || k < min {
			min = k
			first = false
		}
	}
	return min
}

func (c *frameCache) maxKey() int64 {
	first := true
	var max int64
	for k := range c.frames {
		if first || k > max {
			max = k
			first = false
		}
	}
	return max
}
