// Package connect implements the device session engine: discovery-driven
// device registry, per-device persistent control connections, and the
// command/notification protocol spoken over them.
package connect

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// heartbeatInterval is the out-of-band ping period.
	heartbeatInterval = time.Second

	// idleResetDelay is how long a stopped device keeps its queue mirror
	// before the session resets it to idle.
	idleResetDelay = 30 * time.Second

	// DefaultReconnectBudget bounds the automatic reconnects after a
	// device forcibly ends the session. A successful handshake restores
	// the budget.
	DefaultReconnectBudget = 5
)

// SessionState is the connection lifecycle state.
type SessionState string

// Session lifecycle states.
const (
	SessionConnecting SessionState = "CONNECTING"
	SessionConnected  SessionState = "CONNECTED"
	SessionError      SessionState = "ERROR"
	SessionClosed     SessionState = "CLOSED"
)

// Handshake identity announced to devices.
const (
	appID             = "tidal"
	appName           = "tidal"
	sessionCredential = "190108211"
)

// Session is the live control connection to one device. It owns the
// transport, the heartbeat, the inbound dispatch loop and the status
// mirror. A session belongs to exactly one registry device entry and is
// destroyed together with it.
type Session struct {
	mu        sync.Mutex // guards conn, reqID, sessionID, state, budget
	writeMu   sync.Mutex // serializes transport writes
	device    *Device
	endpoints ServerEndpoints
	url       string
	dialer    *websocket.Dialer

	conn      *websocket.Conn
	done      chan struct{}
	reqID     int
	sessionID string
	state     SessionState
	closed    bool

	reconnectBudget int
	reconnectLeft   int

	status *Status

	timerMu    sync.Mutex
	resetTimer *time.Timer
}

// SessionOption is a functional option for configuring a session.
type SessionOption func(*Session)

// WithSessionURL overrides the device websocket URL (useful for testing).
func WithSessionURL(u string) SessionOption {
	return func(s *Session) {
		s.url = u
	}
}

// WithReconnectBudget bounds reconnect attempts after forced session ends.
func WithReconnectBudget(n int) SessionOption {
	return func(s *Session) {
		s.reconnectBudget = n
		s.reconnectLeft = n
	}
}

// NewSession creates a session for a device. It does not connect; the
// registry calls Connect while holding the device reservation.
func NewSession(device *Device, endpoints ServerEndpoints, opts ...SessionOption) *Session {
	s := &Session{
		device:          device,
		endpoints:       endpoints,
		url:             fmt.Sprintf("wss://%s:%d", device.Address, device.Port),
		reconnectBudget: DefaultReconnectBudget,
		reconnectLeft:   DefaultReconnectBudget,
		state:           SessionConnecting,
		status:          NewStatus(),
		dialer: &websocket.Dialer{
			// Devices serve self-signed certificates.
			TLSClientConfig:  &tls.Config{InsecureSkipVerify: true},
			HandshakeTimeout: 10 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Device returns the device this session controls.
func (s *Session) Device() *Device {
	return s.device
}

// State returns the connection lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the remote-assigned session id, empty before the first
// notifySessionStarted.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Status returns an immutable snapshot of the status mirror.
func (s *Session) Status() StatusSnapshot {
	return s.status.Snapshot()
}

// Connect opens the transport, sends the handshake and starts the
// heartbeat and dispatch loops.
func (s *Session) Connect() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.state = SessionConnecting
	url := s.url
	s.mu.Unlock()

	conn, _, err := s.dialer.Dial(url, nil)
	if err != nil {
		s.mu.Lock()
		s.state = SessionError
		s.mu.Unlock()
		return fmt.Errorf("%w: %s: %v", ErrConnectFailed, url, err)
	}

	done := make(chan struct{})

	s.mu.Lock()
	// A Shutdown that landed while the dial was in flight wins: the
	// session must stay closed and the fresh transport must not leak.
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return ErrSessionClosed
	}
	s.conn = conn
	s.done = done
	s.state = SessionConnected
	s.reconnectLeft = s.reconnectBudget
	s.mu.Unlock()

	log.Info().Str("device", s.device.Name).Str("url", url).Msg("Connected to device")

	// The handshake announces our identity and requests a session; the
	// device answers with notifySessionStarted.
	if err := s.sendCommand("startSession", map[string]any{
		"appId":             appID,
		"appName":           appName,
		"sessionCredential": sessionCredential,
	}); err != nil {
		s.teardown(false)
		return fmt.Errorf("%w: handshake: %v", ErrConnectFailed, err)
	}

	go s.readLoop(conn)
	go s.heartbeat(conn, done)

	return nil
}

// heartbeat pings the device on a fixed interval. Ping failures are
// swallowed: the read loop's transport error is authoritative.
func (s *Session) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(heartbeatInterval))
			s.writeMu.Unlock()
			if err != nil {
				log.Debug().Err(err).Str("device", s.device.Name).Msg("Heartbeat ping failed")
			}
		}
	}
}

// readLoop receives and dispatches inbound notifications until the
// transport dies or the device ends the session.
func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.onTransportError(err)
			return
		}

		n, err := decodeNotification(data)
		if err != nil {
			log.Warn().Err(err).Str("device", s.device.Name).Msg("Undecodable frame")
			continue
		}

		if _, ok := n.(SessionEnded); ok {
			s.onSessionEnded()
			return
		}

		s.dispatch(n)
	}
}

// dispatch applies one notification to the status mirror.
func (s *Session) dispatch(n Notification) {
	switch n := n.(type) {

	case SessionStarted:
		s.mu.Lock()
		// The session id is sticky: only the first announcement counts.
		if s.sessionID == "" {
			s.sessionID = n.SessionID
			log.Info().Str("device", s.device.Name).Str("sessionId", n.SessionID).Msg("Session started")
		}
		s.mu.Unlock()

	case DeviceStatusChanged:
		s.status.SetVolume(n.Volume)

	case QueueChanged:
		// A different queue id means another source took ownership of
		// the device; our mirror no longer describes what is playing.
		if tracked := s.status.QueueID(); tracked != "" && tracked != n.QueueID {
			log.Info().
				Str("device", s.device.Name).
				Str("tracked", tracked).
				Str("reported", n.QueueID).
				Msg("Foreign queue took over, resetting status")
			s.status.Reset()
		}

	case QueueItemsChanged:
		// Reserved for queue reconciliation.

	case MediaChanged:
		s.status.MediaChanged(n.MediaID)

	case PlayerStatusChanged:
		s.status.SetPlayerStatus(n.State, n.Progress)
		if n.State == StateStopped {
			s.armResetTimer()
		} else {
			s.cancelResetTimer()
		}

	case RequestResult:
		// Commands are fire-and-forget; acknowledgements are dropped.

	case DeviceError:
		log.Warn().Str("device", s.device.Name).Str("kind", n.Kind).RawJSON("payload", n.Raw).Msg("Device reported error")

	case Unknown:
		log.Debug().Str("device", s.device.Name).Str("kind", n.Kind).Msg("Unknown notification")
	}
}

// armResetTimer schedules the idle reset of the status mirror.
func (s *Session) armResetTimer() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.resetTimer != nil {
		s.resetTimer.Stop()
	}
	s.resetTimer = time.AfterFunc(idleResetDelay, s.status.Reset)
}

// cancelResetTimer cancels a pending idle reset, if any.
func (s *Session) cancelResetTimer() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
}

// onTransportError handles a dead transport outside of a forced end.
func (s *Session) onTransportError(err error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	log.Warn().Err(err).Str("device", s.device.Name).Msg("Device transport error")
	s.teardown(false)
}

// onSessionEnded handles a forced disconnect: tear the transport down and
// reconnect immediately, within the reconnect budget.
func (s *Session) onSessionEnded() {
	s.mu.Lock()
	closed := s.closed
	left := s.reconnectLeft
	if left > 0 {
		s.reconnectLeft--
	}
	s.mu.Unlock()
	if closed {
		return
	}

	log.Info().Str("device", s.device.Name).Int("attemptsLeft", left).Msg("Device ended session")
	s.teardown(true)

	if left <= 0 {
		log.Warn().Str("device", s.device.Name).Msg("Reconnect budget exhausted, closing session")
		s.teardown(false)
		return
	}

	go func() {
		if err := s.Connect(); err != nil {
			log.Warn().Err(err).Str("device", s.device.Name).Msg("Reconnect failed")
			s.teardown(false)
		}
	}()
}

// teardown stops the heartbeat, closes the transport and resets session
// local state. keepAlive leaves the session reusable for a reconnect;
// otherwise the session is closed for good.
func (s *Session) teardown(keepAlive bool) {
	s.mu.Lock()
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.reqID = 0
	s.sessionID = ""
	if keepAlive {
		s.state = SessionConnecting
	} else {
		if !s.closed {
			s.closed = true
			s.state = SessionClosed
		}
	}
	s.mu.Unlock()

	s.cancelResetTimer()
	s.status.Reset()
}

// Shutdown terminates the session: heartbeat and transport are both gone
// before it returns, and all session-local state is reset so the device
// slot can be reused or dropped. Safe to call from any goroutine, more
// than once.
func (s *Session) Shutdown() {
	s.teardown(false)
}

// sendCommand wraps params with the auto-incrementing request identifier
// and writes the frame. Fire-and-forget: no response correlation.
func (s *Session) sendCommand(kind string, params any) error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	id := s.reqID
	s.reqID++
	s.mu.Unlock()

	frame := map[string]any{
		"command":   kind,
		"requestId": id,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", kind, err)
		}
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("flatten %s: %w", kind, err)
		}
		for k, v := range fields {
			frame[k] = v
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	return nil
}
