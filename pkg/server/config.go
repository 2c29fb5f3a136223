package server

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// SessionConfig holds configuration for individual sessions.
type SessionConfig struct {
	// ReadTimeout is the maximum time to wait for a message from the client.
	// Heartbeat pongs count, so it must exceed HeartbeatInterval.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending a message.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HeartbeatInterval is the time between server pings.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// ResumeWindow is how long a session survives without a connection.
	// A client reconnecting within the window is caught up from the patch
	// history instead of being remounted.
	// Default: 30 seconds.
	ResumeWindow time.Duration

	// MaxMessageSize is the maximum size of an incoming WebSocket message.
	// Default: 64KB.
	MaxMessageSize int64

	// MaxPatchHistory is the number of recent frames kept for resume.
	// Default: 100.
	MaxPatchHistory int

	// MaxEventQueue is the size of the session's work queue.
	// Default: 256.
	MaxEventQueue int

	// Debug validates every rendered tree and reports malformed ones to the
	// client instead of diffing them.
	Debug bool
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		ResumeWindow:      30 * time.Second,
		MaxMessageSize:    64 * 1024,
		MaxPatchHistory:   100,
		MaxEventQueue:     256,
	}
}

// Clone returns a copy of the SessionConfig.
func (c *SessionConfig) Clone() *SessionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// ServerConfig holds configuration for the HTTP/WebSocket server.
type ServerConfig struct {
	// Address is the address to listen on (e.g., ":8080").
	// Default: ":8080".
	Address string

	// LivePath is the WebSocket endpoint. Default: "/live".
	LivePath string

	// MetricsPath serves Prometheus metrics when metrics are enabled.
	// Default: "/metrics".
	MetricsPath string

	// ReadBufferSize and WriteBufferSize size the WebSocket buffers.
	// Default: 4096.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin is called to validate the request origin.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// SessionConfig is the configuration for individual sessions.
	// Default: DefaultSessionConfig().
	SessionConfig *SessionConfig

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 30 seconds.
	ShutdownTimeout time.Duration

	// MaxSessions is the maximum number of concurrent sessions.
	// 0 means no limit.
	MaxSessions int

	// CleanupInterval is the interval of the expired session sweep.
	// Default: 10 seconds.
	CleanupInterval time.Duration
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:         ":8080",
		LivePath:        "/live",
		MetricsPath:     "/metrics",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     SameOriginCheck,
		SessionConfig:   DefaultSessionConfig(),
		ShutdownTimeout: 30 * time.Second,
		CleanupInterval: 10 * time.Second,
	}
}

// withDefaults fills every unset field from DefaultServerConfig.
func (c *ServerConfig) withDefaults() *ServerConfig {
	d := DefaultServerConfig()
	if c == nil {
		return d
	}
	out := c.Clone()
	if out.Address == "" {
		out.Address = d.Address
	}
	if out.LivePath == "" {
		out.LivePath = d.LivePath
	}
	if out.MetricsPath == "" {
		out.MetricsPath = d.MetricsPath
	}
	if out.ReadBufferSize == 0 {
		out.ReadBufferSize = d.ReadBufferSize
	}
	if out.WriteBufferSize == 0 {
		out.WriteBufferSize = d.WriteBufferSize
	}
	if out.CheckOrigin == nil {
		out.CheckOrigin = d.CheckOrigin
	}
	if out.SessionConfig == nil {
		out.SessionConfig = d.SessionConfig
	}
	if out.ShutdownTimeout == 0 {
		out.ShutdownTimeout = d.ShutdownTimeout
	}
	if out.CleanupInterval == 0 {
		out.CleanupInterval = d.CleanupInterval
	}
	return out
}

// Validate reports configuration that cannot work.
func (c *ServerConfig) Validate() error {
	sc := c.SessionConfig
	if sc == nil {
		return nil
	}
	if sc.HeartbeatInterval > 0 && sc.ReadTimeout > 0 && sc.ReadTimeout <= sc.HeartbeatInterval {
		return fmt.Errorf("server: read timeout %s must exceed heartbeat interval %s", sc.ReadTimeout, sc.HeartbeatInterval)
	}
	if sc.MaxEventQueue < 0 || sc.MaxPatchHistory < 0 {
		return fmt.Errorf("server: negative queue or history size")
	}
	return nil
}

// SameOriginCheck accepts requests without an Origin header and requests
// whose Origin host matches the Host header.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return r.Host != "" && originURL.Host == r.Host
}

// Clone returns a copy of the ServerConfig.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.SessionConfig = c.SessionConfig.Clone()
	return &clone
}
