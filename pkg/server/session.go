package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/vtree/pkg/journal"
	"github.com/vango-dev/vtree/pkg/metrics"
	"github.com/vango-dev/vtree/pkg/protocol"
	"github.com/vango-dev/vtree/pkg/vdom"
)

// Program is the application a session runs. View renders the current
// state; Update receives every message a handler decoded. Both are only
// ever called from the session's loop goroutine.
type Program interface {
	View() *vdom.Node
	Update(msg any)
}

// ProgramFactory creates the Program of a new session.
type ProgramFactory func() Program

// Session is one mounted root. It owns the last rendered tree and its
// event registry, and outlives the connections that attach to it: a
// client that drops can reconnect within the resume window and is caught
// up from the patch history.
//
// All tree state is confined to the loop goroutine; connections hand work
// to it through post.
type Session struct {
	ID        string
	CreatedAt time.Time

	program Program
	config  *SessionConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	journal journal.Sink
	history *PatchHistory

	// Loop-owned.
	tree   *vdom.Node
	events *vdom.Events
	seq    uint64

	mu         sync.Mutex // guards conn, detachedAt and every write
	conn       *websocket.Conn
	detachedAt time.Time

	work     chan func()
	remount  chan struct{} // one pending Mount, outside the work queue
	done     chan struct{}
	loopDone chan struct{}
	closed   atomic.Bool

	lastSeq    atomic.Uint64
	eventCount atomic.Uint64
	patchCount atomic.Uint64
	bytesSent  atomic.Uint64
}

// SessionStats is a point-in-time view of a session.
type SessionStats struct {
	ID          string
	CreatedAt   time.Time
	Attached    bool
	Seq         uint64
	Events      uint64
	Patches     uint64
	BytesSent   uint64
	HistorySize int
	HistoryMin  uint64
	HistoryMax  uint64
}

type sessionDeps struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	journal journal.Sink
}

func newSession(id string, program Program, config *SessionConfig, deps sessionDeps) *Session {
	s := &Session{
		ID:         id,
		CreatedAt:  time.Now(),
		program:    program,
		config:     config,
		logger:     deps.logger.With("session_id", id),
		metrics:    deps.metrics,
		tracer:     deps.tracer,
		journal:    deps.journal,
		history:    NewPatchHistory(config.MaxPatchHistory),
		work:       make(chan func(), max(config.MaxEventQueue, 1)),
		remount:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		loopDone:   make(chan struct{}),
		detachedAt: time.Now(),
	}
	go s.loop()
	return s
}

func (s *Session) loop() {
	defer close(s.loopDone)
	for {
		select {
		case fn := <-s.work:
			fn()
		case <-s.remount:
			s.mount()
		case <-s.done:
			return
		}
	}
}

// post queues fn for the loop goroutine.
func (s *Session) post(fn func()) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case s.work <- fn:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrQueueFull
	}
}

// requestMount schedules a Mount on the loop. It never fails for a full
// work queue, and requests made before the loop serves one collapse into it.
func (s *Session) requestMount() {
	select {
	case s.remount <- struct{}{}:
	default:
	}
}

// Dispatch delivers msg to the program as if a handler had produced it and
// pushes the resulting patch.
func (s *Session) Dispatch(msg any) error {
	return s.post(func() {
		ctx, span := s.tracer.Start(context.Background(), "vtree.dispatch",
			trace.WithAttributes(attribute.String("vtree.session_id", s.ID)))
		defer span.End()
		if err := s.update("", "", msg); err != nil {
			s.fail(span, err)
			return
		}
		s.render(ctx)
	})
}

// mount renders from scratch and sends the whole tree. It restarts the
// history: frames before a Mount are never needed to catch up.
func (s *Session) mount() {
	tree, err := s.view()
	if err == nil && s.config.Debug {
		err = vdom.Validate(tree)
	}
	if err != nil {
		s.logger.Error("mount failed", "error", err)
		s.sendError(protocol.NewFatalError(errorCode(err), err.Error()))
		return
	}
	s.tree = tree
	s.events = vdom.EventsFrom(tree)
	s.seq++
	s.history.Clear()
	s.emit(s.seq, protocol.MountFrame(&protocol.Mount{Seq: s.seq, Root: tree}))
	s.logger.Debug("mounted", "seq", s.seq, "handlers", s.events.Len())
}

// catchUp brings a reattached client that applied lastSeq up to date.
func (s *Session) catchUp(lastSeq uint64) {
	if lastSeq == s.seq && s.tree != nil {
		return
	}
	if s.tree == nil || lastSeq > s.seq || !s.history.CanRecover(lastSeq) {
		s.mount()
		return
	}
	frames := s.history.Frames(lastSeq, s.seq)
	for _, data := range frames {
		if err := s.write(data); err != nil {
			return
		}
	}
	s.logger.Info("resumed", "from_seq", lastSeq, "to_seq", s.seq, "frames", len(frames))
}

// handleEvent routes one client event to its handler, updates the program
// and pushes the resulting patch.
func (s *Session) handleEvent(ev *protocol.Event) {
	ctx, span := s.tracer.Start(context.Background(), "vtree.event",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("vtree.session_id", s.ID),
			attribute.String("vtree.path", ev.Path),
			attribute.String("vtree.event", ev.Name),
		))
	defer span.End()

	s.eventCount.Add(1)
	s.appendJournal(protocol.EventFrame(ev))

	events, h, err := s.events.Handle(ev.Path, ev.Name, ev.Payload)
	if events != nil {
		s.events = events
	}
	switch {
	case errors.Is(err, vdom.ErrNoHandler):
		// Events can race a patch that removed their listener.
		s.metrics.Event(metrics.StatusNoHandler)
		s.logger.Debug("no handler", "path", ev.Path, "event", ev.Name)
		span.SetStatus(codes.Error, "no handler")
		return
	case err != nil:
		s.metrics.Event(metrics.StatusUnhandled)
		s.logger.Debug("event not handled", "path", ev.Path, "event", ev.Name, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unhandled")
		return
	}
	s.metrics.Event(metrics.StatusHandled)

	if err := s.update(ev.Path, ev.Name, h.Message); err != nil {
		s.fail(span, err)
		return
	}
	ops := s.render(ctx)
	span.SetAttributes(attribute.Int("vtree.patch_ops", ops))
	span.SetStatus(codes.Ok, "")
}

// render diffs the program's view against the last tree and sends the
// patch, if any. It returns the number of operations sent.
func (s *Session) render(ctx context.Context) int {
	_, span := s.tracer.Start(ctx, "vtree.render")
	defer span.End()

	next, err := s.view()
	if err == nil && s.config.Debug {
		err = vdom.Validate(next)
	}
	if err != nil {
		s.fail(span, err)
		return 0
	}

	start := time.Now()
	patch, events := vdom.Diff(s.events, s.tree, next)
	s.metrics.ObserveDiff(time.Since(start), patch)
	s.tree, s.events = next, events
	if patch.IsEmpty() {
		return 0
	}

	s.seq++
	s.emit(s.seq, protocol.PatchFrame(&protocol.PatchMessage{Seq: s.seq, Patch: patch}))

	ops := 0
	for _, n := range patch.Ops() {
		ops += n
	}
	s.patchCount.Add(1)
	span.SetAttributes(attribute.Int64("vtree.seq", int64(s.seq)), attribute.Int("vtree.patch_ops", ops))
	s.logger.Debug("patch sent", "seq", s.seq, "ops", ops)
	return ops
}

func (s *Session) update(path, event string, msg any) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &UpdateError{SessionID: s.ID, Path: path, Event: event, Panic: p, Stack: debug.Stack()}
		}
	}()
	s.program.Update(msg)
	return nil
}

func (s *Session) view() (tree *vdom.Node, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &UpdateError{SessionID: s.ID, Panic: p, Stack: debug.Stack()}
		}
	}()
	return s.program.View(), nil
}

// fail reports an Update, View or validation failure. The previous tree
// stays current, so the client remains consistent.
func (s *Session) fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.Error("render failed", "error", err)
	s.sendError(protocol.NewError(errorCode(err), err.Error()))
}

func errorCode(err error) protocol.ErrorCode {
	if errors.Is(err, vdom.ErrMalformedTree) {
		return protocol.ErrMalformedTree
	}
	return protocol.ErrServerError
}

// emit records a sequenced frame in the history and the journal, then
// sends it when a connection is attached.
func (s *Session) emit(seq uint64, f *protocol.Frame) {
	data := f.Encode()
	s.history.Add(seq, data)
	s.lastSeq.Store(seq)
	s.appendJournal(f)
	s.metrics.PatchSent(len(data))
	if err := s.write(data); err != nil && !errors.Is(err, ErrNoConnection) {
		s.logger.Warn("send failed", "seq", seq, "error", err)
	}
}

func (s *Session) appendJournal(f *protocol.Frame) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(context.Background(), s.ID, f); err != nil {
		s.metrics.JournalError()
		s.logger.Warn("journal append failed", "error", err)
	}
}

func (s *Session) sendError(em *protocol.ErrorMessage) {
	if err := s.write(protocol.ErrorFrame(em).Encode()); err != nil && !errors.Is(err, ErrNoConnection) {
		s.logger.Warn("error frame not sent", "error", err)
	}
}

// write sends one encoded frame on the attached connection. A failed
// write drops the connection; the read side then detaches it.
func (s *Session) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNoConnection
	}
	if s.config.WriteTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		s.conn.Close()
		return &SessionError{SessionID: s.ID, Op: "write", Err: err}
	}
	s.bytesSent.Add(uint64(len(data)))
	return nil
}

// attach binds conn to the session.
func (s *Session) attach(conn *websocket.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed.Load():
		return ErrSessionClosed
	case s.conn != nil:
		return ErrSessionAttached
	}
	s.conn = conn
	return nil
}

// detach unbinds conn if it is still the attached connection and closes it.
func (s *Session) detach(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.detachedAt = time.Now()
	}
	s.mu.Unlock()
	conn.Close()
}

// expired reports whether the session has been detached longer than window.
func (s *Session) expired(now time.Time, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn == nil && now.Sub(s.detachedAt) > window
}

// IsAttached reports whether a connection is attached.
func (s *Session) IsAttached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Close stops the loop, drops the connection and seals the journal once
// the loop has finished its current work.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	close(s.done)

	s.mu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.BinaryMessage,
			protocol.ControlFrame(protocol.NewClose(protocol.CloseSessionExpired, "session closed")).Encode())
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	select {
	case <-s.loopDone:
	case <-ctx.Done():
		s.logger.Warn("session loop did not stop")
	}

	if s.journal != nil {
		if err := s.journal.Close(ctx, s.ID); err != nil {
			s.metrics.JournalError()
			s.logger.Warn("journal close failed", "error", err)
		}
	}
	s.logger.Debug("session closed")
}

// IsClosed reports whether Close was called.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		ID:          s.ID,
		CreatedAt:   s.CreatedAt,
		Attached:    s.IsAttached(),
		Seq:         s.lastSeq.Load(),
		Events:      s.eventCount.Load(),
		Patches:     s.patchCount.Load(),
		BytesSent:   s.bytesSent.Load(),
		HistorySize: s.history.Count(),
		HistoryMin:  s.history.MinSeq(),
		HistoryMax:  s.history.MaxSeq(),
	}
}

func (st SessionStats) String() string {
	return fmt.Sprintf("session %s seq=%d events=%d patches=%d bytes=%d history=[%d,%d]",
		st.ID, st.Seq, st.Events, st.Patches, st.BytesSent, st.HistoryMin, st.HistoryMax)
}
