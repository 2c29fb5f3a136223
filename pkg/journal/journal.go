// Package journal records the frames exchanged with each session so a live
// tree can be rebuilt later from its Mount and Patch history.
//
// A journal is a plain concatenation of protocol frames. Sinks buffer the
// frames of a session while it runs and persist them when it closes.
package journal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/vango-dev/vtree/pkg/protocol"
)

// ErrSessionClosed is returned when appending to a session that was closed.
var ErrSessionClosed = errors.New("journal: session closed")

// Sink receives the frames of each session in the order they were sent.
// Implementations must be safe for concurrent use by different sessions.
type Sink interface {
	Append(ctx context.Context, sessionID string, f *protocol.Frame) error
	Close(ctx context.Context, sessionID string) error
}

// buffers holds the open journals of a sink.
type buffers struct {
	mu   sync.Mutex
	open map[string]*bytes.Buffer
}

func (b *buffers) append(sessionID string, f *protocol.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open == nil {
		b.open = make(map[string]*bytes.Buffer)
	}
	buf, ok := b.open[sessionID]
	if !ok {
		buf = new(bytes.Buffer)
		b.open[sessionID] = buf
	}
	return protocol.WriteFrame(buf, f)
}

// take removes and returns a session's journal, or nil when it has none.
func (b *buffers) take(sessionID string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.open[sessionID]
	if !ok {
		return nil
	}
	delete(b.open, sessionID)
	return buf.Bytes()
}

// MemorySink keeps every journal in memory. Closed sessions stay readable.
type MemorySink struct {
	buffers

	closedMu sync.Mutex
	closed   map[string][]byte
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{closed: make(map[string][]byte)}
}

// Append records a frame.
func (m *MemorySink) Append(_ context.Context, sessionID string, f *protocol.Frame) error {
	m.closedMu.Lock()
	_, done := m.closed[sessionID]
	m.closedMu.Unlock()
	if done {
		return ErrSessionClosed
	}
	return m.append(sessionID, f)
}

// Close seals a session's journal.
func (m *MemorySink) Close(_ context.Context, sessionID string) error {
	data := m.take(sessionID)
	m.closedMu.Lock()
	defer m.closedMu.Unlock()
	m.closed[sessionID] = data
	return nil
}

// Bytes returns the raw journal of a session, open or closed.
func (m *MemorySink) Bytes(sessionID string) []byte {
	m.closedMu.Lock()
	data, ok := m.closed[sessionID]
	m.closedMu.Unlock()
	if ok {
		return data
	}
	m.buffers.mu.Lock()
	defer m.buffers.mu.Unlock()
	if buf, ok := m.open[sessionID]; ok {
		return bytes.Clone(buf.Bytes())
	}
	return nil
}

// Frames decodes the journal of a session.
func (m *MemorySink) Frames(sessionID string) ([]*protocol.Frame, error) {
	return Decode(bytes.NewReader(m.Bytes(sessionID)))
}

// Sessions lists the sessions with a journal, sorted.
func (m *MemorySink) Sessions() []string {
	seen := make(map[string]struct{})
	m.closedMu.Lock()
	for id := range m.closed {
		seen[id] = struct{}{}
	}
	m.closedMu.Unlock()
	m.buffers.mu.Lock()
	for id := range m.open {
		seen[id] = struct{}{}
	}
	m.buffers.mu.Unlock()

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Decode reads every frame of a journal.
func Decode(r io.Reader) ([]*protocol.Frame, error) {
	var frames []*protocol.Frame
	for {
		f, err := protocol.ReadFrame(r)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}
