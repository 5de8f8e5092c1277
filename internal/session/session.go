package session

import (
	"encoding/json"
	"time"
)

// Status is the pairing state of a sharing session.
type Status string

const (
	// StatusWaiting: the session exists but no receiver has joined yet.
	StatusWaiting Status = "waiting"
	// StatusPendingApproval: a receiver joined and the sender has not yet
	// accepted or declined.
	StatusPendingApproval Status = "pending-approval"
	// StatusConnected: the sender approved the handshake.
	StatusConnected Status = "connected"
)

// SharingSession pairs exactly one sender with at most one receiver while
// they negotiate a direct peer-to-peer file transfer.
//
// FileInfo is client-supplied metadata (name, size, type). It is relayed
// verbatim and never inspected.
type SharingSession struct {
	SenderID   string
	ReceiverID string
	FileInfo   json.RawMessage
	Status     Status
	CreatedAt  time.Time
}
