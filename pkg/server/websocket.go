package server

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/vtree/pkg/protocol"
)

// serve runs the read side of conn until it fails or the client closes,
// then detaches it. The session itself survives for the resume window.
func (s *Session) serve(conn *websocket.Conn) {
	defer s.detach(conn)

	stop := make(chan struct{})
	defer close(stop)
	if s.config.HeartbeatInterval > 0 {
		go s.heartbeat(conn, stop)
	}

	if s.config.MaxMessageSize > 0 {
		conn.SetReadLimit(s.config.MaxMessageSize)
	}

	for {
		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("read failed", "error", err)
			}
			return
		}

		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			s.logger.Warn("invalid frame", "error", err)
			s.sendError(protocol.NewError(protocol.ErrInvalidFrame, err.Error()))
			continue
		}

		switch frame.Type {
		case protocol.FrameEvent:
			s.readEvent(frame)
		case protocol.FrameControl:
			if !s.readControl(frame) {
				return
			}
		default:
			s.logger.Warn("unexpected frame from client", "type", frame.Type)
			s.sendError(protocol.NewError(protocol.ErrInvalidFrame, "unexpected "+frame.Type.String()+" frame"))
		}
	}
}

func (s *Session) readEvent(frame *protocol.Frame) {
	ev, err := protocol.DecodeEvent(frame.Payload)
	if err != nil {
		s.logger.Warn("invalid event", "error", err)
		s.sendError(protocol.NewError(protocol.ErrBadEvent, err.Error()))
		return
	}
	if err := s.post(func() { s.handleEvent(ev) }); err != nil {
		if errors.Is(err, ErrQueueFull) {
			s.logger.Warn("event dropped", "path", ev.Path, "event", ev.Name)
			s.sendError(protocol.NewError(protocol.ErrServerError, err.Error()))
		}
	}
}

// readControl handles a control frame and reports whether to keep reading.
func (s *Session) readControl(frame *protocol.Frame) bool {
	ct, err := protocol.DecodeControl(frame.Payload)
	if err != nil {
		s.sendError(protocol.NewError(protocol.ErrInvalidFrame, err.Error()))
		return true
	}

	switch ct.Type {
	case protocol.ControlPing:
		if err := s.write(protocol.ControlFrame(protocol.NewPong(ct)).Encode()); err != nil {
			s.logger.Debug("pong failed", "error", err)
		}
	case protocol.ControlPong:
		// The read deadline was already extended by receiving it.
	case protocol.ControlRemount:
		s.logger.Info("client requested remount", "last_seq", ct.LastSeq)
		s.requestMount()
	case protocol.ControlClose:
		s.logger.Debug("client closed", "reason", ct.Reason, "message", ct.Message)
		go s.Close()
		return false
	}
	return true
}

// heartbeat pings the client until stop is closed or a write fails.
func (s *Session) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-s.done:
			return
		case t := <-ticker.C:
			ping := protocol.ControlFrame(protocol.NewPing(uint64(t.UnixMilli())))
			if err := s.writeTo(conn, ping.Encode()); err != nil {
				return
			}
		}
	}
}

// writeTo writes only while conn is still the attached connection.
func (s *Session) writeTo(conn *websocket.Conn, data []byte) error {
	s.mu.Lock()
	attached := s.conn == conn
	s.mu.Unlock()
	if !attached {
		return ErrNoConnection
	}
	return s.write(data)
}
