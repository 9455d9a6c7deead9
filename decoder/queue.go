package decoder

import "github.com/zsiec/scrub/media"

// requestQueueSize bounds unserved requests. Submissions beyond it block
// until the worker catches up; preemption keeps the backlog short by
// charging each superseded request at most one decoded packet.
const requestQueueSize = 64

// request asks the worker for one frame. reply has capacity one and is
// written exactly once: the frame, or nil when it cannot be produced.
type request struct {
	index int64
	reply chan *media.Frame
}

// peekQueue wraps the request channel with a one-item lookahead so the
// worker can ask "has a newer request arrived" mid-decode without
// disturbing FIFO order.
type peekQueue struct {
	ch     chan request
	peeked *request
}

func newPeekQueue(size int) *peekQueue {
	return &peekQueue{ch: make(chan request, size)}
}

// recv blocks for the next request, preferring one buffered by peek.
// Returns false when done is closed; shutdown wins over queued work so
// remaining requests get refused instead of served.
func (q *peekQueue) recv(done <-chan struct{}) (request, bool) {
	select {
	case <-done:
		return request{}, false
	default:
	}
	if q.peeked != nil {
		r := *q.peeked
		q.peeked = nil
		return r, true
	}
	select {
	case r := <-q.ch:
		return r, true
	case <-done:
		return request{}, false
	}
}

// peek reports whether another request is already waiting, buffering at
// most one item for the next recv.
func (q *peekQueue) peek() bool {
	if q.peeked != nil {
		return true
	}
	select {
	case r := <-q.ch:
		q.peeked = &r
		return true
	default:
		return false
	}
}

// drainPending empties the queue without blocking, including any peeked
// item, so abandoned requests can be refused on shutdown.
func (q *peekQueue) drainPending() []request {
	var out []request
	if q.peeked != nil {
		out = append(out, *q.peeked)
		q.peeked = nil
	}
	for {
		select {
		case r := <-q.ch:
			out = append(out, r)
		default:
			return out
		}
	}
}
