package session

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var fileInfo = json.RawMessage(`{"name":"a.txt","size":42}`)

func TestStore_CreateDoesNotOverwriteDuplicate(t *testing.T) {
	st := NewStore(nil, 0)

	if err := st.Create("s1", "connA", fileInfo); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := st.Create("s1", "connB", nil); err != ErrSessionExists {
		t.Fatalf("duplicate Create err=%v, want %v", err, ErrSessionExists)
	}

	sess, err := st.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.SenderID != "connA" {
		t.Fatalf("SenderID=%q, want connA (record must not be overwritten)", sess.SenderID)
	}
	if sess.Status != StatusWaiting {
		t.Fatalf("Status=%q, want %q", sess.Status, StatusWaiting)
	}
}

func TestStore_CreateEnforcesMaxSessions(t *testing.T) {
	st := NewStore(nil, 1)

	if err := st.Create("s1", "connA", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := st.Create("s2", "connB", nil); err != ErrTooManySessions {
		t.Fatalf("Create beyond cap err=%v, want %v", err, ErrTooManySessions)
	}

	if _, err := st.Remove("s1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := st.Create("s2", "connB", nil); err != nil {
		t.Fatalf("Create after Remove: %v", err)
	}
}

func TestStore_BindReceiverTransitions(t *testing.T) {
	st := NewStore(nil, 0)
	if err := st.Create("s1", "connA", fileInfo); err != nil {
		t.Fatalf("Create: %v", err)
	}

	sess, err := st.BindReceiver("s1", "connB")
	if err != nil {
		t.Fatalf("BindReceiver: %v", err)
	}
	if sess.Status != StatusPendingApproval {
		t.Fatalf("Status=%q, want %q", sess.Status, StatusPendingApproval)
	}
	if sess.ReceiverID != "connB" || sess.SenderID != "connA" {
		t.Fatalf("participants=(%q,%q), want (connA,connB)", sess.SenderID, sess.ReceiverID)
	}

	if _, err := st.BindReceiver("s1", "connC"); err != ErrSessionNotWaiting {
		t.Fatalf("second BindReceiver err=%v, want %v", err, ErrSessionNotWaiting)
	}
	if _, err := st.BindReceiver("nope", "connC"); err != ErrSessionNotFound {
		t.Fatalf("BindReceiver on absent session err=%v, want %v", err, ErrSessionNotFound)
	}

	// At most one receiver bound at any time.
	got, err := st.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ReceiverID != "connB" {
		t.Fatalf("ReceiverID=%q, want connB", got.ReceiverID)
	}
}

func TestStore_AcceptTransitionsToConnected(t *testing.T) {
	st := NewStore(nil, 0)
	if err := st.Create("s1", "connA", fileInfo); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := st.BindReceiver("s1", "connB"); err != nil {
		t.Fatalf("BindReceiver: %v", err)
	}

	sess, err := st.Accept("s1", "connA")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if sess.Status != StatusConnected {
		t.Fatalf("Status=%q, want %q", sess.Status, StatusConnected)
	}
	if sess.SenderID != "connA" || sess.ReceiverID != "connB" {
		t.Fatalf("participants=(%q,%q), want (connA,connB)", sess.SenderID, sess.ReceiverID)
	}
}

func TestStore_AcceptValidatesUnderOneLock(t *testing.T) {
	st := NewStore(nil, 0)
	if err := st.Create("s1", "connA", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Non-sender must not resolve the handshake.
	if _, err := st.Accept("s1", "connB"); err != ErrNotSender {
		t.Fatalf("Accept by non-sender err=%v, want %v", err, ErrNotSender)
	}
	// Nothing to approve while the session is waiting.
	if _, err := st.Accept("s1", "connA"); err != ErrNoPendingReceiver {
		t.Fatalf("Accept without receiver err=%v, want %v", err, ErrNoPendingReceiver)
	}
	if _, err := st.Accept("nope", "connA"); err != ErrSessionNotFound {
		t.Fatalf("Accept on absent session err=%v, want %v", err, ErrSessionNotFound)
	}

	// An accept that lands after the session was removed and its id
	// re-created by another sender fails the sender check instead of
	// connecting the fresh record.
	if _, err := st.Remove("s1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := st.Create("s1", "connC", nil); err != nil {
		t.Fatalf("re-Create: %v", err)
	}
	if _, err := st.Accept("s1", "connA"); err != ErrNotSender {
		t.Fatalf("Accept on re-created session err=%v, want %v", err, ErrNotSender)
	}
	sess, err := st.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.Status != StatusWaiting || sess.ReceiverID != "" {
		t.Fatalf("session=%+v, want waiting with no receiver", sess)
	}
}

func TestStore_DeclineReturnsSessionToWaiting(t *testing.T) {
	st := NewStore(nil, 0)
	if err := st.Create("s1", "connA", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := st.BindReceiver("s1", "connB"); err != nil {
		t.Fatalf("BindReceiver: %v", err)
	}

	if _, err := st.Decline("s1", "connB"); err != ErrNotSender {
		t.Fatalf("Decline by non-sender err=%v, want %v", err, ErrNotSender)
	}

	cleared, err := st.Decline("s1", "connA")
	if err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if cleared != "connB" {
		t.Fatalf("cleared=%q, want connB", cleared)
	}

	if _, ok := st.SessionOf("connB"); ok {
		t.Fatalf("connB still reverse-indexed after Decline")
	}
	if _, err := st.Decline("s1", "connA"); err != ErrNoPendingReceiver {
		t.Fatalf("second Decline err=%v, want %v", err, ErrNoPendingReceiver)
	}

	// Session is joinable again.
	if _, err := st.BindReceiver("s1", "connC"); err != nil {
		t.Fatalf("BindReceiver after decline: %v", err)
	}
}

func TestStore_RemoveDeletesBothReverseEntries(t *testing.T) {
	st := NewStore(nil, 0)
	if err := st.Create("s1", "connA", nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := st.BindReceiver("s1", "connB"); err != nil {
		t.Fatalf("BindReceiver: %v", err)
	}

	removed, err := st.Remove("s1")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed.SenderID != "connA" || removed.ReceiverID != "connB" {
		t.Fatalf("removed=(%q,%q), want (connA,connB)", removed.SenderID, removed.ReceiverID)
	}

	if _, ok := st.SessionOf("connA"); ok {
		t.Fatalf("connA still reverse-indexed after Remove")
	}
	if _, ok := st.SessionOf("connB"); ok {
		t.Fatalf("connB still reverse-indexed after Remove")
	}
	if _, err := st.Get("s1"); err != ErrSessionNotFound {
		t.Fatalf("Get after Remove err=%v, want %v", err, ErrSessionNotFound)
	}
	if _, err := st.Remove("s1"); err != ErrSessionNotFound {
		t.Fatalf("second Remove err=%v, want %v", err, ErrSessionNotFound)
	}
}

// Pins the documented last-write-wins reverse index: a connection binding
// into a second session re-points its entry, so removing the first session
// afterwards must not clobber the newer binding.
func TestStore_ReverseIndexOverwriteOnSecondBind(t *testing.T) {
	st := NewStore(nil, 0)
	if err := st.Create("s1", "connA", nil); err != nil {
		t.Fatalf("Create s1: %v", err)
	}
	if err := st.Create("s2", "connA", nil); err != nil {
		t.Fatalf("Create s2: %v", err)
	}

	id, ok := st.SessionOf("connA")
	if !ok || id != "s2" {
		t.Fatalf("SessionOf(connA)=%q,%v, want s2,true", id, ok)
	}

	if _, err := st.Remove("s1"); err != nil {
		t.Fatalf("Remove s1: %v", err)
	}
	id, ok = st.SessionOf("connA")
	if !ok || id != "s2" {
		t.Fatalf("SessionOf(connA) after removing s1 = %q,%v, want s2,true", id, ok)
	}
}

func TestStore_ExpiredSnapshot(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1000, 0)}
	st := NewStore(clk, 0)

	if err := st.Create("old", "connA", nil); err != nil {
		t.Fatalf("Create old: %v", err)
	}
	clk.Advance(30 * time.Minute)
	if err := st.Create("young", "connB", nil); err != nil {
		t.Fatalf("Create young: %v", err)
	}
	clk.Advance(31 * time.Minute)

	expired := st.Expired(clk.Now(), time.Hour)
	if len(expired) != 1 {
		t.Fatalf("Expired returned %d sessions, want 1", len(expired))
	}
	if expired[0].ID != "old" {
		t.Fatalf("expired id=%q, want old", expired[0].ID)
	}

	// Non-mutating: both sessions still present.
	if st.Len() != 2 {
		t.Fatalf("Len=%d after Expired, want 2", st.Len())
	}
}
