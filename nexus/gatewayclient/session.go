// Package gatewayclient implements the long-lived platform connections:
// a Discord-style resumable WebSocket gateway session state machine, and a
// shared per-route REST rate limiter used by all platform HTTP clients
//.
package gatewayclient

import (
	"math"
	"time"
)

// SessionState enumerates the Discord Gateway connection lifecycle
//.
type SessionState uint8

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateHelloReceived
	StateIdentifying
	StateResuming
	StateRunning
	StateClosedWithCode
	StateReconnectRequested
	StateInvalidSession
)

// terminalCloseCodes never trigger a reconnect attempt:
// 4004 authentication failed, 4010 invalid shard, 4011 sharding required,
// 4012 invalid API version, 4013 invalid intents, 4014 disallowed intents.
var terminalCloseCodes = map[int]bool{
	4004: true, 4010: true, 4011: true, 4012: true, 4013: true, 4014: true,
}

// IsTerminalCloseCode reports whether a Discord close code should abandon
// the session rather than reconnect.
func IsTerminalCloseCode(code int) bool {
	return terminalCloseCodes[code]
}

// Backoff computes the exponential reconnect delay capped at
// min(MAX_ATTEMPTS, 2^5) * base_delay.
func Backoff(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	const maxShift = 5
	shift := attempt
	if shift > maxShift {
		shift = maxShift
	}
	mult := math.Pow(2, float64(shift))
	return time.Duration(mult) * base
}

// SessionInfo is the persisted resume state captured on READY.
type SessionInfo struct {
	SessionID        string
	ResumeGatewayURL string
	LastSequence     uint64
	HasSequence      bool
}

// Session drives the Discord Gateway connection state machine. It holds no
// connection and performs no network I/O: callers report connection events
// to it, so the state transitions are unit-testable without a live socket.
type Session struct {
	state             SessionState
	info              SessionInfo
	heartbeatInterval time.Duration
	lastHeartbeatAck  bool
	reconnectAttempt  int
}

// NewSession returns a session in the Disconnected state with no prior
// resume info.
func NewSession() *Session {
	return &Session{state: StateDisconnected}
}

// State returns the current connection state.
func (s *Session) State() SessionState { return s.state }

// Info returns the last persisted resume info.
func (s *Session) Info() SessionInfo { return s.info }

// OnConnecting transitions Disconnected -> Connecting.
func (s *Session) OnConnecting() { s.state = StateConnecting }

// OnHello records heartbeat_interval_ms and starts the heartbeat timer
// bookkeeping; transitions to HelloReceived then immediately to
// Identifying or Resuming depending on whether resume info is present.
func (s *Session) OnHello(heartbeatIntervalMs int64) {
	s.heartbeatInterval = time.Duration(heartbeatIntervalMs) * time.Millisecond
	s.state = StateHelloReceived
	s.lastHeartbeatAck = true
	if s.info.SessionID != "" && s.info.ResumeGatewayURL != "" {
		s.state = StateResuming
		return
	}
	s.state = StateIdentifying
}

// OnReady persists the session id / resume URL and transitions to Running.
func (s *Session) OnReady(sessionID, resumeGatewayURL string) {
	s.info.SessionID = sessionID
	s.info.ResumeGatewayURL = resumeGatewayURL
	s.state = StateRunning
	s.reconnectAttempt = 0
}

// OnResumed transitions Resuming -> Running without altering resume info.
func (s *Session) OnResumed() {
	s.state = StateRunning
	s.reconnectAttempt = 0
}

// OnDispatch updates last_sequence atomically before any handler runs.
func (s *Session) OnDispatch(seq uint64) {
	s.info.LastSequence = seq
	s.info.HasSequence = true
}

// HeartbeatTick checks the previous heartbeat was ACKed; if not, the caller
// must force a reconnect. Returns true if the connection should continue.
func (s *Session) HeartbeatTick() (ok bool) {
	if !s.lastHeartbeatAck {
		s.state = StateReconnectRequested
		return false
	}
	s.lastHeartbeatAck = false
	return true
}

// OnHeartbeatAck records that the most recent heartbeat was acknowledged.
func (s *Session) OnHeartbeatAck() { s.lastHeartbeatAck = true }

// OnClose processes a close code and reports whether a reconnect should be
// attempted, and after how long.
func (s *Session) OnClose(code int, base time.Duration) (reconnect bool, delay time.Duration) {
	if IsTerminalCloseCode(code) {
		s.state = StateClosedWithCode
		s.info = SessionInfo{}
		return false, 0
	}
	s.state = StateReconnectRequested
	delay = Backoff(s.reconnectAttempt, base)
	s.reconnectAttempt++
	return true, delay
}

// OnInvalidSession handles opcode 9. resumable=false discards the session
// and the caller must re-Identify after a short randomized delay;
// resumable=true keeps the session for Resume.
func (s *Session) OnInvalidSession(resumable bool) {
	s.state = StateInvalidSession
	if !resumable {
		s.info = SessionInfo{}
	}
}

// Disconnect resets to Disconnected, preserving resume info so the next
// connect attempt can still Resume.
func (s *Session) Disconnect() { s.state = StateDisconnected }
