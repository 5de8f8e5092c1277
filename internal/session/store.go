package session

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var (
	ErrSessionExists     = errors.New("session already exists")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionNotWaiting = errors.New("session not waiting")
	ErrNotSender         = errors.New("not the session sender")
	ErrNoPendingReceiver = errors.New("no pending receiver")
	ErrTooManySessions   = errors.New("too many sessions")
)

// Clock abstracts time.Now so session expiry is testable.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Store owns the session table and the reverse index from connection id to
// session id. All operations are single critical sections under one mutex;
// none of them block.
//
// The reverse index is last-write-wins: a connection that creates or joins
// a second session while still bound to an earlier one silently re-points
// its entry, matching the behavior this store was modeled on (see
// DESIGN.md).
type Store struct {
	clock       Clock
	maxSessions int

	mu       sync.Mutex
	sessions map[string]*SharingSession
	byConn   map[string]string
}

// NewStore creates an empty store. maxSessions <= 0 means unlimited. A nil
// clock falls back to wall time.
func NewStore(clock Clock, maxSessions int) *Store {
	if clock == nil {
		clock = realClock{}
	}
	return &Store{
		clock:       clock,
		maxSessions: maxSessions,
		sessions:    make(map[string]*SharingSession),
		byConn:      make(map[string]string),
	}
}

// Create inserts a fresh waiting session owned by senderID.
func (s *Store) Create(sessionID, senderID string, fileInfo json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; ok {
		return ErrSessionExists
	}
	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		return ErrTooManySessions
	}

	s.sessions[sessionID] = &SharingSession{
		SenderID:  senderID,
		FileInfo:  fileInfo,
		Status:    StatusWaiting,
		CreatedAt: s.clock.Now(),
	}
	s.byConn[senderID] = sessionID
	return nil
}

// Get returns a copy of the session record.
func (s *Store) Get(sessionID string) (SharingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return SharingSession{}, ErrSessionNotFound
	}
	return *sess, nil
}

// BindReceiver attaches receiverID to a waiting session and moves it to
// pending-approval. It returns a copy of the record after the mutation so
// callers get the sender id and file info from the same critical section.
func (s *Store) BindReceiver(sessionID, receiverID string) (SharingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return SharingSession{}, ErrSessionNotFound
	}
	if sess.Status != StatusWaiting {
		return SharingSession{}, ErrSessionNotWaiting
	}

	sess.ReceiverID = receiverID
	sess.Status = StatusPendingApproval
	s.byConn[receiverID] = sessionID
	return *sess, nil
}

// Accept approves the pending handshake. The sender check and the
// status write share one critical section, so a session removed and
// re-created under the same id between an actor's read and write cannot
// be marked connected with stale participants. Returns a copy of the
// record after the transition.
func (s *Store) Accept(sessionID, actor string) (SharingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return SharingSession{}, ErrSessionNotFound
	}
	if actor != sess.SenderID {
		return SharingSession{}, ErrNotSender
	}
	if sess.ReceiverID == "" {
		return SharingSession{}, ErrNoPendingReceiver
	}

	sess.Status = StatusConnected
	return *sess, nil
}

// Decline unbinds the pending receiver: the receiver's reverse entry is
// dropped and the session returns to waiting, so it is joinable again.
// Validation is the same single critical section as Accept. The cleared
// receiver id is returned for notification.
func (s *Store) Decline(sessionID, actor string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	if actor != sess.SenderID {
		return "", ErrNotSender
	}
	if sess.ReceiverID == "" {
		return "", ErrNoPendingReceiver
	}

	receiverID := sess.ReceiverID
	if s.byConn[receiverID] == sessionID {
		delete(s.byConn, receiverID)
	}
	sess.ReceiverID = ""
	sess.Status = StatusWaiting
	return receiverID, nil
}

// Remove deletes the session and the reverse entries of both participants,
// returning a copy of the removed record.
func (s *Store) Remove(sessionID string) (SharingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return SharingSession{}, ErrSessionNotFound
	}

	delete(s.sessions, sessionID)
	if s.byConn[sess.SenderID] == sessionID {
		delete(s.byConn, sess.SenderID)
	}
	if sess.ReceiverID != "" && s.byConn[sess.ReceiverID] == sessionID {
		delete(s.byConn, sess.ReceiverID)
	}
	return *sess, nil
}

// SessionOf reports which session, if any, connID is currently bound to.
func (s *Store) SessionOf(connID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byConn[connID]
	return id, ok
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ExpiredSession is one entry of an expiry sweep snapshot.
type ExpiredSession struct {
	ID      string
	Session SharingSession
}

// Expired returns a snapshot of all sessions whose age exceeds ttl at now.
// It does not mutate; the reaper removes each entry individually so a
// session deleted between snapshot and removal is simply skipped.
func (s *Store) Expired(now time.Time, ttl time.Duration) []ExpiredSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ExpiredSession
	for id, sess := range s.sessions {
		if now.Sub(sess.CreatedAt) > ttl {
			out = append(out, ExpiredSession{ID: id, Session: *sess})
		}
	}
	return out
}
