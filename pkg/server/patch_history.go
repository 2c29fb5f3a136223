package server

import (
	"sync"
	"time"
)

// HistoryEntry is an encoded frame kept for replay after a reconnect.
type HistoryEntry struct {
	Seq    uint64
	Frame  []byte
	SentAt time.Time
}

// PatchHistory is a ring buffer of the most recent Mount and Patch frames
// of a session, keyed by sequence number. A client that reconnects with
// the last sequence it applied is caught up from here when every missing
// frame is still buffered, and remounted otherwise.
//
// Sequences must be added in increasing order with no gaps; Clear starts a
// new run, which a Mount does.
type PatchHistory struct {
	mu       sync.RWMutex
	entries  []HistoryEntry
	head     int // next write position
	count    int
	capacity int
	now      func() time.Time
}

// NewPatchHistory creates a ring buffer holding up to capacity frames.
func NewPatchHistory(capacity int) *PatchHistory {
	if capacity <= 0 {
		capacity = DefaultSessionConfig().MaxPatchHistory
	}
	return &PatchHistory{
		entries:  make([]HistoryEntry, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// Add stores a frame, overwriting the oldest one when full. The bytes are
// copied.
func (h *PatchHistory) Add(seq uint64, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.head] = HistoryEntry{
		Seq:    seq,
		Frame:  append([]byte(nil), frame...),
		SentAt: h.now(),
	}
	h.head = (h.head + 1) % h.capacity
	if h.count < h.capacity {
		h.count++
	}
}

// oldest returns the index of the oldest entry. Callers hold the lock and
// have checked count > 0.
func (h *PatchHistory) oldest() int {
	return (h.head - h.count + h.capacity) % h.capacity
}

func (h *PatchHistory) newest() int {
	return (h.head - 1 + h.capacity) % h.capacity
}

// Frames returns the frames with sequence in (afterSeq, toSeq], in order,
// or nil when any of them is no longer buffered.
func (h *PatchHistory) Frames(afterSeq, toSeq uint64) [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 || afterSeq >= toSeq {
		return nil
	}
	minSeq := h.entries[h.oldest()].Seq
	maxSeq := h.entries[h.newest()].Seq
	if afterSeq+1 < minSeq || toSeq > maxSeq {
		return nil
	}

	frames := make([][]byte, 0, toSeq-afterSeq)
	start := h.oldest() + int(afterSeq+1-minSeq)
	for i := 0; i < int(toSeq-afterSeq); i++ {
		e := h.entries[(start+i)%h.capacity]
		frames = append(frames, e.Frame)
	}
	return frames
}

// CanRecover reports whether a client that applied lastSeq can be caught
// up from the buffer. A client that is already current can.
func (h *PatchHistory) CanRecover(lastSeq uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return false
	}
	minSeq := h.entries[h.oldest()].Seq
	maxSeq := h.entries[h.newest()].Seq
	return lastSeq <= maxSeq && lastSeq+1 >= minSeq
}

// MinSeq returns the oldest buffered sequence, or 0 when empty.
func (h *PatchHistory) MinSeq() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return 0
	}
	return h.entries[h.oldest()].Seq
}

// MaxSeq returns the newest buffered sequence, or 0 when empty.
func (h *PatchHistory) MaxSeq() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.count == 0 {
		return 0
	}
	return h.entries[h.newest()].Seq
}

// Count returns the number of buffered frames.
func (h *PatchHistory) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Clear drops every buffered frame.
func (h *PatchHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.entries)
	h.head = 0
	h.count = 0
}
