package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/beamdrop/signal-relay/internal/metrics"
	"github.com/beamdrop/signal-relay/internal/session"
)

// Sender is the transport-side contract the coordinator emits through.
// Delivery is best effort: sending to a connection that is already gone
// is a no-op, never an error.
type Sender interface {
	Send(connID, event string, data any)
	JoinGroup(group, connID string)
	SendToGroup(group, event string, data any)
	RemoveGroup(group string)
}

const (
	roleSender   = "sender"
	roleReceiver = "receiver"
)

// Coordinator is the signaling state machine. It validates each inbound
// event against current session state, applies the mutation, and emits
// the resulting events to the right connections. Every handler performs
// its validation and its mutation in one store critical section, so two
// events racing on the same session serialize inside the store.
type Coordinator struct {
	log     *slog.Logger
	store   *session.Store
	sender  Sender
	metrics *metrics.Metrics
}

func NewCoordinator(logger *slog.Logger, store *session.Store, sender Sender, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		log:     logger,
		store:   store,
		sender:  sender,
		metrics: m,
	}
}

// Dispatch routes one inbound event from actor. Unknown events are
// dropped; malformed payloads are dropped too, since a client that
// cannot produce valid frames has nothing useful to be told.
func (c *Coordinator) Dispatch(actor, event string, data json.RawMessage) {
	switch event {
	case EventCreateSession:
		var req createSessionRequest
		if !c.decode(actor, event, data, &req) {
			return
		}
		c.handleCreateSession(actor, req)
	case EventJoinSession:
		var req joinSessionRequest
		if !c.decode(actor, event, data, &req) {
			return
		}
		c.handleJoinSession(actor, req)
	case EventShareResponse:
		var req shareResponseRequest
		if !c.decode(actor, event, data, &req) {
			return
		}
		c.handleShareResponse(actor, req)
	case EventDirectSignal, EventOffer, EventAnswer, EventICECandidate:
		c.handleRelay(actor, event, data)
	case EventTransferProgress:
		var req transferProgressRequest
		if !c.decode(actor, event, data, &req) {
			return
		}
		c.handleTransferProgress(actor, req)
	case EventTransferComplete:
		var req transferCompleteRequest
		if !c.decode(actor, event, data, &req) {
			return
		}
		c.handleTransferComplete(actor, req)
	default:
		c.log.Debug("unknown signaling event", "event", event, "conn_id", actor)
	}
}

func (c *Coordinator) decode(actor, event string, data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		c.log.Debug("malformed payload", "event", event, "conn_id", actor, "err", err)
		return false
	}
	return true
}

func (c *Coordinator) handleCreateSession(actor string, req createSessionRequest) {
	err := c.store.Create(req.SessionID, actor, req.FileInfo)
	switch {
	case err == nil:
		c.metrics.Inc(metrics.SessionsCreated)
		c.log.Info("session created", "session_id", req.SessionID, "sender_id", actor)
		c.sender.Send(actor, EventSessionCreated, sessionCreatedPayload{
			SessionID: req.SessionID,
			Success:   true,
		})
	case errors.Is(err, session.ErrSessionExists):
		c.metrics.Inc(metrics.SessionCreateConflicts)
		c.sender.Send(actor, EventSessionCreated, sessionCreatedPayload{
			SessionID: req.SessionID,
			Success:   false,
			Message:   msgSessionExists,
		})
	case errors.Is(err, session.ErrTooManySessions):
		c.metrics.Inc(metrics.TooManySessions)
		c.log.Warn("session limit reached", "session_id", req.SessionID)
		c.sender.Send(actor, EventSessionCreated, sessionCreatedPayload{
			SessionID: req.SessionID,
			Success:   false,
			Message:   msgTooManySessions,
		})
	}
}

func (c *Coordinator) handleJoinSession(actor string, req joinSessionRequest) {
	sess, err := c.store.BindReceiver(req.SessionID, actor)
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.metrics.Inc(metrics.JoinErrors)
		c.sender.Send(actor, EventSessionJoinError, sessionJoinErrorPayload{
			Message: msgSessionNotFoundOrExpired,
		})
		return
	case errors.Is(err, session.ErrSessionNotWaiting):
		c.metrics.Inc(metrics.JoinErrors)
		c.sender.Send(actor, EventSessionJoinError, sessionJoinErrorPayload{
			Message: msgSessionInProgress,
		})
		return
	}

	c.metrics.Inc(metrics.SessionsJoined)
	c.log.Info("session joined", "session_id", req.SessionID, "receiver_id", actor)
	c.sender.Send(sess.SenderID, EventShareRequest, shareRequestPayload{
		SessionID:  req.SessionID,
		ReceiverID: actor,
	})
	c.sender.Send(actor, EventWaitingForApproval, waitingForApprovalPayload{
		SessionID: req.SessionID,
		FileInfo:  sess.FileInfo,
	})
}

// handleShareResponse resolves the pending handshake. Accept and
// Decline validate the actor and mutate inside one store critical
// section, so a session removed and re-created under the same id while
// this event is in flight fails the sender check instead of being
// connected with stale participants.
func (c *Coordinator) handleShareResponse(actor string, req shareResponseRequest) {
	if !req.Accepted {
		receiverID, err := c.store.Decline(req.SessionID, actor)
		if err != nil {
			c.rejectShareResponse(actor, req.SessionID, err)
			return
		}
		c.metrics.Inc(metrics.SessionsDeclined)
		c.log.Info("share declined", "session_id", req.SessionID)
		c.sender.Send(receiverID, EventShareDeclined, shareDeclinedPayload{SessionID: req.SessionID})
		return
	}

	sess, err := c.store.Accept(req.SessionID, actor)
	if err != nil {
		c.rejectShareResponse(actor, req.SessionID, err)
		return
	}
	c.metrics.Inc(metrics.SessionsConnected)
	c.log.Info("session connected", "session_id", req.SessionID,
		"sender_id", sess.SenderID, "receiver_id", sess.ReceiverID)

	group := groupName(req.SessionID)
	c.sender.JoinGroup(group, sess.SenderID)
	c.sender.JoinGroup(group, sess.ReceiverID)

	c.sender.Send(sess.SenderID, EventConnectionEstablished, connectionEstablishedPayload{
		SessionID:    req.SessionID,
		Role:         roleSender,
		PeerSocketID: sess.ReceiverID,
	})
	c.sender.Send(sess.ReceiverID, EventConnectionEstablished, connectionEstablishedPayload{
		SessionID:    req.SessionID,
		Role:         roleReceiver,
		PeerSocketID: sess.SenderID,
		FileInfo:     sess.FileInfo,
	})
}

func (c *Coordinator) rejectShareResponse(actor, sessionID string, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.sender.Send(actor, EventError, errorPayload{Message: msgSessionNotFound})
	case errors.Is(err, session.ErrNotSender):
		c.metrics.Inc(metrics.UnauthorizedActions)
		c.log.Warn("unauthorized share-response", "session_id", sessionID, "conn_id", actor)
		c.sender.Send(actor, EventError, errorPayload{Message: msgUnauthorized})
	case errors.Is(err, session.ErrNoPendingReceiver):
		c.log.Debug("share-response without pending receiver", "session_id", sessionID)
	}
}

// handleRelay forwards a signaling payload verbatim to targetId with the
// actor's identity injected as senderId. No session lookup: peers
// exchange offers and candidates before and after the session record is
// gone.
func (c *Coordinator) handleRelay(actor, event string, data json.RawMessage) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		c.log.Debug("malformed payload", "event", event, "conn_id", actor, "err", err)
		return
	}
	targetID, _ := payload["targetId"].(string)
	if targetID == "" {
		c.log.Debug("relay without targetId", "event", event, "conn_id", actor)
		return
	}

	payload["senderId"] = actor
	c.metrics.Inc(metrics.SignalsRelayed)
	c.sender.Send(targetID, event, payload)
}

func (c *Coordinator) handleTransferProgress(actor string, req transferProgressRequest) {
	sess, err := c.store.Get(req.SessionID)
	if err != nil {
		return
	}

	target := sess.ReceiverID
	if actor != sess.SenderID {
		target = sess.SenderID
	}
	if target == "" {
		return
	}
	c.sender.Send(target, EventTransferProgressUpdate, transferProgressUpdatePayload{
		Progress: req.Progress,
	})
}

func (c *Coordinator) handleTransferComplete(actor string, req transferCompleteRequest) {
	sess, err := c.store.Remove(req.SessionID)
	if err != nil {
		return
	}
	c.metrics.Inc(metrics.SessionsCompleted)
	c.log.Info("transfer complete", "session_id", req.SessionID, "conn_id", actor)

	group := groupName(req.SessionID)
	payload := transferFinishedPayload{SessionID: req.SessionID}
	if sess.Status == session.StatusConnected {
		c.sender.SendToGroup(group, EventTransferFinished, payload)
	} else {
		c.sender.Send(sess.SenderID, EventTransferFinished, payload)
		if sess.ReceiverID != "" {
			c.sender.Send(sess.ReceiverID, EventTransferFinished, payload)
		}
	}
	c.sender.RemoveGroup(group)
}

// HandleDisconnect tears down the session actor is bound to, if any,
// and notifies the surviving party. The transport calls this exactly
// once per connection lifetime.
func (c *Coordinator) HandleDisconnect(actor string) {
	sessionID, ok := c.store.SessionOf(actor)
	if !ok {
		return
	}
	sess, err := c.store.Remove(sessionID)
	if err != nil {
		return
	}
	c.metrics.Inc(metrics.PeerDisconnects)
	c.log.Info("peer disconnected", "session_id", sessionID, "conn_id", actor)

	survivor := sess.ReceiverID
	if actor != sess.SenderID {
		survivor = sess.SenderID
	}
	if survivor != "" {
		c.sender.Send(survivor, EventPeerDisconnected, peerDisconnectedPayload{SessionID: sessionID})
	}
	c.sender.RemoveGroup(groupName(sessionID))
}

func groupName(sessionID string) string {
	return "session:" + sessionID
}
