package session

import "github.com/ahump20/Sandlot-Sluggers/internal/codec"

// History records generated frames for one session. Semantically it is
// append-only, but physically only the most recent frames are retained in a
// ring so that long-running sessions stay bounded; the context window never
// reaches further back than the retention depth.
type History struct {
	retain int
	frames []codec.Frame
	head   int
	count  int
	total  int
}

// NewHistory creates a history retaining at most retain frames.
// retain must be at least the session's context window size.
func NewHistory(retain int) *History {
	if retain < 1 {
		retain = 1
	}
	return &History{retain: retain, frames: make([]codec.Frame, retain)}
}

// Reset replaces the contents with the seed frames. Seeds longer than the
// retention depth keep only their tail, matching window semantics.
func (h *History) Reset(seed []codec.Frame) {
	h.head = 0
	h.count = 0
	h.total = 0
	h.Append(seed...)
}

// Append adds frames in generation order.
func (h *History) Append(frames ...codec.Frame) {
	for _, f := range frames {
		if h.count == h.retain {
			h.frames[h.head] = f
			h.head = (h.head + 1) % h.retain
		} else {
			h.frames[(h.head+h.count)%h.retain] = f
			h.count++
		}
		h.total++
	}
}

// Len is the logical, ever-growing length of the history.
func (h *History) Len() int { return h.total }

// Retained is the number of frames physically held.
func (h *History) Retained() int { return h.count }

// Window returns the most recent n frames, oldest first. If fewer than n
// frames exist the window is short; callers seed enough frames up front.
func (h *History) Window(n int) []codec.Frame {
	if n > h.count {
		n = h.count
	}
	out := make([]codec.Frame, n)
	for i := 0; i < n; i++ {
		out[i] = h.frames[(h.head+h.count-n+i)%h.retain]
	}
	return out
}
