package signaling

import "encoding/json"

// Inbound event names.
const (
	EventCreateSession    = "create-session"
	EventJoinSession      = "join-session"
	EventShareResponse    = "share-response"
	EventDirectSignal     = "direct-signal"
	EventOffer            = "offer"
	EventAnswer           = "answer"
	EventICECandidate     = "ice-candidate"
	EventTransferProgress = "transfer-progress"
	EventTransferComplete = "transfer-complete"
)

// Outbound event names.
const (
	EventConnected              = "connected"
	EventSessionCreated         = "session-created"
	EventSessionJoinError       = "session-join-error"
	EventShareRequest           = "share-request"
	EventWaitingForApproval     = "waiting-for-approval"
	EventConnectionEstablished  = "connection-established"
	EventShareDeclined          = "share-declined"
	EventError                  = "error"
	EventTransferProgressUpdate = "transfer-progress-update"
	EventTransferFinished       = "transfer-finished"
	EventPeerDisconnected       = "peer-disconnected"
	EventSessionExpired         = "session-expired"
)

// Client-facing error messages. These strings are part of the wire
// protocol; browser clients match on them.
const (
	msgSessionNotFoundOrExpired = "Session not found or has expired"
	msgSessionInProgress        = "Session already in progress"
	msgSessionNotFound          = "Session not found"
	msgUnauthorized             = "Unauthorized action"
	msgSessionExists            = "Session already exists"
	msgTooManySessions          = "Too many active sessions"
)

// Envelope is the wire frame for every signaling message in either
// direction: an event name plus an event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound payloads. fileInfo, progress, and signaling payloads are
// opaque; the coordinator forwards them without inspection.

type createSessionRequest struct {
	SessionID string          `json:"sessionId"`
	FileInfo  json.RawMessage `json:"fileInfo"`
}

type joinSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type shareResponseRequest struct {
	SessionID string `json:"sessionId"`
	Accepted  bool   `json:"accepted"`
}

type transferProgressRequest struct {
	SessionID string          `json:"sessionId"`
	Progress  json.RawMessage `json:"progress"`
}

type transferCompleteRequest struct {
	SessionID string `json:"sessionId"`
}

// Outbound payloads.

type connectedPayload struct {
	SocketID string `json:"socketId"`
}

type sessionCreatedPayload struct {
	SessionID string `json:"sessionId"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
}

type sessionJoinErrorPayload struct {
	Message string `json:"message"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type shareRequestPayload struct {
	SessionID  string `json:"sessionId"`
	ReceiverID string `json:"receiverId"`
}

type waitingForApprovalPayload struct {
	SessionID string          `json:"sessionId"`
	FileInfo  json.RawMessage `json:"fileInfo"`
}

type connectionEstablishedPayload struct {
	SessionID    string          `json:"sessionId"`
	Role         string          `json:"role"`
	PeerSocketID string          `json:"peerSocketId"`
	FileInfo     json.RawMessage `json:"fileInfo,omitempty"`
}

type shareDeclinedPayload struct {
	SessionID string `json:"sessionId"`
}

type transferProgressUpdatePayload struct {
	Progress json.RawMessage `json:"progress"`
}

type transferFinishedPayload struct {
	SessionID string `json:"sessionId"`
}

type peerDisconnectedPayload struct {
	SessionID string `json:"sessionId"`
}

type sessionExpiredPayload struct {
	SessionID string `json:"sessionId"`
}
