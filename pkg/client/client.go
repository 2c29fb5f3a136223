// Package client is a thin client for a vtree server: it mirrors the
// remote tree into a headless document by applying Mount and Patch frames,
// and forwards the native events raised there back to the server.
//
// A Client owns its reconciler on the goroutine running Run. Every other
// method posts to that goroutine and waits, so they are safe to call
// concurrently with Run.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/vtree/pkg/headless"
	"github.com/vango-dev/vtree/pkg/metrics"
	"github.com/vango-dev/vtree/pkg/protocol"
	"github.com/vango-dev/vtree/pkg/reconcile"
)

// RemountRetry is how long a client waits for the Mount it requested
// before asking again.
const RemountRetry = 2 * time.Second

var (
	// ErrNotFound is returned by Fire when no node matches.
	ErrNotFound = errors.New("client: no matching node")

	// ErrClosed is returned once the client has stopped.
	ErrClosed = errors.New("client: closed")
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.base = l }
}

// WithMetrics records applied patches and divergences.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDialer sets the WebSocket dialer. Default: websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithClock sets the clock of the reconciler's throttle and debounce
// timers.
func WithClock(clock reconcile.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// Client mirrors one server session.
type Client struct {
	url    string
	dialer *websocket.Dialer
	base   *slog.Logger
	logger *slog.Logger // base with session_id

	metrics *metrics.Metrics
	clock   reconcile.Clock

	mu        sync.Mutex // guards conn, sessionID and writes
	conn      *websocket.Conn
	sessionID string

	// Owned by the Run goroutine.
	doc       *headless.Document
	container *headless.Node
	rec       *reconcile.Reconciler
	lastSeq   uint64
	mounted   bool
	// awaitingMount drops patches between a Remount request and its Mount.
	awaitingMount bool
	remountAt     time.Time
	remounts      int

	// appliedSeq mirrors lastSeq for Reconnect, which runs off the Run
	// goroutine.
	appliedSeq atomic.Uint64

	work chan func()
	done chan struct{}
	once sync.Once
}

// Dial connects to the live endpoint at rawURL (ws:// or wss://) and
// starts a new session.
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Client, error) {
	c := newClient(rawURL, opts...)
	if err := c.connect(ctx, ""); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(rawURL string, opts ...Option) *Client {
	c := &Client{
		url:    rawURL,
		dialer: websocket.DefaultDialer,
		base:   slog.Default(),
		work:   make(chan func(), 64),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.base
	c.doc = headless.NewDocument()
	c.container = c.doc.NewContainer()
	recOpts := []reconcile.Option{
		reconcile.WithPost(func(f func()) { c.post(f) }),
		reconcile.WithLogger(c.base),
		reconcile.WithMetrics(c.metrics),
	}
	if c.clock != nil {
		recOpts = append(recOpts, reconcile.WithClock(c.clock))
	}
	c.rec = reconcile.New(c.doc, c.container, c.dispatch, recOpts...)
	return c
}

func (c *Client) connect(ctx context.Context, query string) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.url+query, nil)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", c.url, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.sessionID = resp.Header.Get(protocol.SessionHeader)
	c.logger = c.base.With("session_id", c.sessionID)
	c.mu.Unlock()
	return nil
}

// Reconnect dials again and asks the server to resume the session from the
// last applied sequence. The server replays the missing frames or sends a
// fresh Mount. Call Run again afterwards.
func (c *Client) Reconnect(ctx context.Context) error {
	lastSeq := c.appliedSeq.Load()
	c.mu.Lock()
	id := c.sessionID
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()

	q := url.Values{"session": {id}, "seq": {fmt.Sprint(lastSeq)}}
	return c.connect(ctx, "?"+q.Encode())
}

// SessionID returns the server session this client mirrors.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Run reads frames and applies them until ctx is done, the connection
// fails, the server closes the session or a fatal error arrives. It
// returns nil on a clean close.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	frames := make(chan *protocol.Frame)
	readErr := make(chan error, 1)
	quit := make(chan struct{})
	defer close(quit)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			f, err := protocol.DecodeFrame(data)
			if err != nil {
				c.logger.Warn("invalid frame", "error", err)
				continue
			}
			select {
			case frames <- f:
			case <-quit:
				return
			}
		}
	}()

	for {
		select {
		case f := <-frames:
			stop, err := c.handle(f)
			if stop || err != nil {
				return err
			}
		case fn := <-c.work:
			fn()
		case err := <-readErr:
			select {
			case <-c.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		case <-ctx.Done():
			conn.Close()
			return ctx.Err()
		}
	}
}

// handle applies one frame and reports whether Run should stop.
func (c *Client) handle(f *protocol.Frame) (bool, error) {
	msg, err := protocol.DecodeMessage(f)
	if err != nil {
		c.logger.Warn("undecodable frame", "type", f.Type, "error", err)
		return false, nil
	}

	switch m := msg.(type) {
	case *protocol.Mount:
		c.rec.Mount(m.Root)
		c.lastSeq = m.Seq
		c.appliedSeq.Store(m.Seq)
		c.mounted = true
		c.awaitingMount = false
		c.logger.Debug("mounted", "seq", m.Seq)

	case *protocol.PatchMessage:
		c.applyPatch(m)

	case *protocol.Control:
		switch m.Type {
		case protocol.ControlPing:
			c.send(protocol.ControlFrame(protocol.NewPong(m)))
		case protocol.ControlClose:
			c.logger.Info("session closed by server", "reason", m.Reason, "message", m.Message)
			return true, nil
		}

	case *protocol.ErrorMessage:
		if m.Fatal {
			return true, m
		}
		c.logger.Warn("server error", "code", m.Code, "message", m.Message)
	}
	return false, nil
}

func (c *Client) applyPatch(m *protocol.PatchMessage) {
	switch {
	case c.awaitingMount:
		if c.now().Sub(c.remountAt) >= RemountRetry {
			c.logger.Warn("remount not answered, asking again", "last_seq", c.lastSeq)
			c.sendRemount()
		}
		return
	case !c.mounted || m.Seq != c.lastSeq+1:
		c.logger.Warn("patch out of sequence", "seq", m.Seq, "last_seq", c.lastSeq)
		c.requestRemount()
		return
	}
	if err := c.rec.Push(m.Patch); err != nil {
		c.logger.Warn("patch rejected", "seq", m.Seq, "error", err)
		c.requestRemount()
		return
	}
	c.lastSeq = m.Seq
	c.appliedSeq.Store(m.Seq)
}

func (c *Client) requestRemount() {
	c.awaitingMount = true
	c.remounts++
	c.sendRemount()
}

func (c *Client) sendRemount() {
	c.remountAt = c.now()
	c.send(protocol.ControlFrame(protocol.NewRemount(c.lastSeq)))
}

func (c *Client) now() time.Time {
	if c.clock != nil {
		return c.clock.Now()
	}
	return time.Now()
}

// dispatch forwards an event that passed throttling and debouncing.
func (c *Client) dispatch(path, name string, payload []byte) {
	c.send(protocol.EventFrame(&protocol.Event{Seq: c.lastSeq, Path: path, Name: name, Payload: payload}))
}

func (c *Client) send(f *protocol.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, f.Encode()); err != nil {
		c.logger.Debug("send failed", "type", f.Type, "error", err)
	}
}

// post queues fn for the Run goroutine.
func (c *Client) post(fn func()) bool {
	select {
	case c.work <- fn:
		return true
	case <-c.done:
		return false
	}
}

// Do runs fn with the document container on the Run goroutine and waits
// for it. It blocks until Run picks it up.
func (c *Client) Do(fn func(container *headless.Node)) error {
	finished := make(chan struct{})
	if !c.post(func() {
		defer close(finished)
		fn(c.container)
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Fire raises a native event on the first node matching match, as a user
// interaction would.
func (c *Client) Fire(match func(*headless.Node) bool, name string, payload []byte) error {
	var found bool
	err := c.Do(func(container *headless.Node) {
		if n := headless.Find(container, match); n != nil {
			found = true
			headless.Dispatch(n, name, payload)
		}
	})
	if err == nil && !found {
		return ErrNotFound
	}
	return err
}

// HTML returns the mirrored tree serialised as HTML.
func (c *Client) HTML() (string, error) {
	var html string
	err := c.Do(func(container *headless.Node) {
		html = headless.RenderChildren(container)
	})
	return html, err
}

// State is a snapshot of the client's sequencing.
type State struct {
	LastSeq  uint64
	Mounted  bool
	Diverged bool
	Remounts int
}

// State returns the current sequencing state.
func (c *Client) State() (State, error) {
	var st State
	err := c.Do(func(*headless.Node) {
		st = State{LastSeq: c.lastSeq, Mounted: c.mounted, Diverged: c.rec.Diverged(), Remounts: c.remounts}
	})
	return st, err
}

// Close sends a Close control frame and drops the connection. The server
// closes the session.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	c.send(protocol.ControlFrame(protocol.NewClose(protocol.CloseNormal, "client closed")))
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
