package gateway

import (
	"encoding/json"
	"sync"
	"time"
)

// State is the session bookkeeping shared by the receive loop and the
// heartbeat. Each field group has its own lock; no lock is held while
// sending or while user code runs.
type State struct {
	seqMu    sync.Mutex
	sequence *uint64

	identityMu sync.RWMutex
	sessionID  string
	resumeURL  string
	clientData json.RawMessage

	heartbeatMu sync.Mutex
	interval    time.Duration
	lastSent    time.Time
	acked       bool
}

func NewState() *State {
	return &State{acked: true}
}

// Reset clears everything. It is called before a fresh Identify.
func (s *State) Reset() {
	s.seqMu.Lock()
	s.sequence = nil
	s.seqMu.Unlock()

	s.ClearIdentity()
	s.ResetHeartbeat()
}

// Sequence returns a copy of the last dispatch sequence, or nil.
func (s *State) Sequence() *uint64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	if s.sequence == nil {
		return nil
	}
	seq := *s.sequence
	return &seq
}

func (s *State) SetSequence(seq uint64) {
	s.seqMu.Lock()
	s.sequence = &seq
	s.seqMu.Unlock()
}

// SetIdentity records the values from READY that allow resuming.
func (s *State) SetIdentity(sessionID, resumeURL string) {
	s.identityMu.Lock()
	s.sessionID = sessionID
	s.resumeURL = resumeURL
	s.identityMu.Unlock()
}

func (s *State) Identity() (sessionID, resumeURL string) {
	s.identityMu.RLock()
	defer s.identityMu.RUnlock()
	return s.sessionID, s.resumeURL
}

func (s *State) SessionID() string {
	id, _ := s.Identity()
	return id
}

// CanResume reports whether a session id is known.
func (s *State) CanResume() bool {
	return s.SessionID() != ""
}

func (s *State) ClearIdentity() {
	s.identityMu.Lock()
	s.sessionID = ""
	s.resumeURL = ""
	s.clientData = nil
	s.identityMu.Unlock()
}

// SetClientData stores the cleaned READY payload handed to every handler.
func (s *State) SetClientData(data json.RawMessage) {
	s.identityMu.Lock()
	s.clientData = data
	s.identityMu.Unlock()
}

func (s *State) ClientData() json.RawMessage {
	s.identityMu.RLock()
	defer s.identityMu.RUnlock()
	return s.clientData
}

// ResetHeartbeat forgets the interval and ack state of the previous
// connection. Called whenever a new connection is opened.
func (s *State) ResetHeartbeat() {
	s.heartbeatMu.Lock()
	s.interval = 0
	s.lastSent = time.Time{}
	s.acked = true
	s.heartbeatMu.Unlock()
}

func (s *State) SetHeartbeatInterval(d time.Duration) {
	s.heartbeatMu.Lock()
	s.interval = d
	s.heartbeatMu.Unlock()
}

func (s *State) HeartbeatInterval() time.Duration {
	s.heartbeatMu.Lock()
	defer s.heartbeatMu.Unlock()
	return s.interval
}

// Acknowledged reports whether the last heartbeat was acknowledged.
func (s *State) Acknowledged() bool {
	s.heartbeatMu.Lock()
	defer s.heartbeatMu.Unlock()
	return s.acked
}

// Ack marks the outstanding heartbeat as acknowledged and returns the time
// since it was sent. ok is false when no heartbeat was outstanding.
func (s *State) Ack(now time.Time) (latency time.Duration, ok bool) {
	s.heartbeatMu.Lock()
	defer s.heartbeatMu.Unlock()
	if s.acked || s.lastSent.IsZero() {
		s.acked = true
		return 0, false
	}
	s.acked = true
	return now.Sub(s.lastSent), true
}

type heartbeatDecision int

const (
	heartbeatSkip heartbeatDecision = iota
	heartbeatSend
	heartbeatAckMissed
)

// claimHeartbeat decides whether a heartbeat is due at now and, when it is,
// marks it sent before the frame is written so the lock is not held across
// the write.
func (s *State) claimHeartbeat(now time.Time, force bool) heartbeatDecision {
	s.heartbeatMu.Lock()
	defer s.heartbeatMu.Unlock()

	if s.interval <= 0 {
		return heartbeatSkip
	}
	if !force && now.Sub(s.lastSent) < s.interval {
		return heartbeatSkip
	}
	if !force && !s.acked {
		return heartbeatAckMissed
	}
	s.lastSent = now
	s.acked = false
	return heartbeatSend
}
