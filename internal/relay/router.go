package relay

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/gorilla/websocket"

	"employee-chat-backend/config"
	"employee-chat-backend/internal/push"
	"employee-chat-backend/internal/store"
)

// GroupDispatcher is the slice of the push dispatcher the router needs.
type GroupDispatcher interface {
	DispatchGroup(groupID, excludeEmployeeID int64, payload push.Payload)
}

// Router drives the per-frame state machine for every connection and owns
// broadcast fan-out over the registry.
type Router struct {
	registry   *Registry
	store      store.Store
	dispatcher GroupDispatcher
	cfg        config.RelayConfig
}

// NewRouter creates a router over the given registry, store and dispatcher.
func NewRouter(registry *Registry, st store.Store, dispatcher GroupDispatcher, cfg config.RelayConfig) *Router {
	return &Router{
		registry:   registry,
		store:      st,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
}

// Registry exposes the connection registry for the health surface.
func (r *Router) Registry() *Registry {
	return r.registry
}

// HandleConnection registers an accepted websocket connection and runs its
// pumps. The employee id must already be verified from the session token.
// Blocks until the connection ends.
func (r *Router) HandleConnection(ctx context.Context, conn *websocket.Conn, tokenEmployeeID int64) {
	c := NewClient(conn, tokenEmployeeID, r.cfg)
	r.registry.Register(c)

	r.sendTo(c, connectionFrame{Type: frameConnection, ClientID: c.ID})

	go c.writePump()
	c.readPump(ctx, r)
}

// HandleFrame decodes one inbound frame and applies it. Malformed frames and
// unknown types are logged and ignored; the connection stays open.
func (r *Router) HandleFrame(ctx context.Context, c *Client, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Printf("connection %s sent malformed frame: %v", c.ID, err)
		return
	}

	switch frame.Type {
	case frameAuth:
		r.handleAuth(ctx, c, frame)
	case frameJoin:
		r.handleJoin(ctx, c, frame)
	case frameLeave:
		r.handleLeave(c, frame)
	case frameMessage:
		r.handleMessage(ctx, c, frame)
	case frameTyping:
		r.handleTyping(ctx, c, frame)
	case framePing:
		r.sendTo(c, pongFrame{Type: framePong})
	default:
		log.Printf("connection %s sent unknown frame type %q", c.ID, frame.Type)
	}
}

// handleAuth attaches the claimed identity, which must match the one proven
// by the upgrade token, and optionally pre-seeds joined groups.
func (r *Router) handleAuth(ctx context.Context, c *Client, frame inboundFrame) {
	if frame.UserID == 0 || frame.UserID != c.tokenEmployeeID {
		r.sendError(c, "identity does not match session token")
		return
	}
	if err := r.registry.Authenticate(c.ID, frame.UserID); err != nil {
		r.sendError(c, "authentication failed")
		return
	}

	for _, groupID := range frame.GroupIDs {
		ok, err := r.store.IsGroupMember(ctx, groupID, frame.UserID)
		if err != nil {
			log.Printf("membership check failed for group %d: %v", groupID, err)
			continue
		}
		if !ok {
			log.Printf("connection %s pre-seeded group %d without membership, skipping", c.ID, groupID)
			continue
		}
		if err := r.registry.Join(c.ID, groupID); err != nil {
			r.sendError(c, "join failed")
		}
	}
}

func (r *Router) handleJoin(ctx context.Context, c *Client, frame inboundFrame) {
	employeeID, ok := r.registry.EmployeeID(c.ID)
	if !ok {
		r.sendError(c, "authentication required")
		return
	}

	member, err := r.store.IsGroupMember(ctx, frame.GroupID, employeeID)
	if err != nil {
		log.Printf("membership check failed for group %d: %v", frame.GroupID, err)
		r.sendError(c, "join failed")
		return
	}
	if !member {
		r.sendError(c, "access denied")
		return
	}

	if err := r.registry.Join(c.ID, frame.GroupID); err != nil {
		r.sendError(c, "join failed")
	}
}

func (r *Router) handleLeave(c *Client, frame inboundFrame) {
	if err := r.registry.Leave(c.ID, frame.GroupID); err != nil {
		r.sendError(c, "leave failed")
	}
}

// handleMessage implements the send path: validate, authorize against the
// membership store, persist, then fan out live and queue push. Persistence
// failure aborts everything; a message other members can see but the sender's
// own history lacks would be worse than a failed send.
func (r *Router) handleMessage(ctx context.Context, c *Client, frame inboundFrame) {
	employeeID, ok := r.registry.EmployeeID(c.ID)
	if !ok {
		r.sendError(c, "authentication required")
		return
	}

	content := strings.TrimSpace(frame.Message)
	if content == "" {
		r.sendError(c, "message is empty")
		return
	}
	if len(content) > r.cfg.MaxContentLength {
		r.sendError(c, "message is too long")
		return
	}

	// Socket-level join is not authorization: the employee may have been
	// removed from the group since connecting. Re-check the store per send.
	member, err := r.store.IsGroupMember(ctx, frame.GroupID, employeeID)
	if err != nil {
		log.Printf("membership check failed for group %d: %v", frame.GroupID, err)
		r.sendError(c, "failed to send message")
		return
	}
	if !member {
		r.sendError(c, "access denied")
		return
	}

	msg, err := r.store.PersistMessage(ctx, frame.GroupID, employeeID, content)
	if err != nil {
		log.Printf("failed to persist message for group %d: %v", frame.GroupID, err)
		r.sendError(c, "failed to send message")
		return
	}

	r.sendTo(c, ackFrame{
		Type:      frameAck,
		GroupID:   msg.GroupID,
		MessageID: msg.ID,
		Timestamp: msg.CreatedAt.UnixMilli(),
	})

	// Socket joins can outlive store membership. Resolve the member set once
	// per send and fan out only to connections still in it; if the resolver
	// fails the message is already persisted, so fall back to socket joins.
	var allowed map[int64]struct{}
	if memberIDs, err := r.store.GroupMemberIDs(ctx, frame.GroupID); err == nil {
		allowed = make(map[int64]struct{}, len(memberIDs))
		for _, id := range memberIDs {
			allowed[id] = struct{}{}
		}
	} else {
		log.Printf("member resolution failed for group %d, falling back to socket joins: %v", frame.GroupID, err)
	}

	r.broadcast(frame.GroupID, c.ID, allowed, messageFrame{
		Type:      frameMessage,
		ID:        msg.ID,
		GroupID:   msg.GroupID,
		Message:   msg.Content,
		UserID:    msg.SenderID,
		Timestamp: msg.CreatedAt.UnixMilli(),
	})

	// Members without a live joined connection are reached by platform push.
	// Failures there are logged, never surfaced to the sender.
	r.dispatcher.DispatchGroup(frame.GroupID, employeeID,
		push.NewMessagePayload(msg.GroupID, msg.ID, msg.SenderID, msg.Content))
}

// handleTyping relays an ephemeral typing indicator. Never persisted, never
// pushed.
func (r *Router) handleTyping(ctx context.Context, c *Client, frame inboundFrame) {
	employeeID, ok := r.registry.EmployeeID(c.ID)
	if !ok {
		r.sendError(c, "authentication required")
		return
	}

	member, err := r.store.IsGroupMember(ctx, frame.GroupID, employeeID)
	if err != nil {
		log.Printf("membership check failed for group %d: %v", frame.GroupID, err)
		r.sendError(c, "typing relay failed")
		return
	}
	if !member {
		r.sendError(c, "access denied")
		return
	}

	r.broadcast(frame.GroupID, c.ID, nil, typingFrame{
		Type:     frameTyping,
		GroupID:  frame.GroupID,
		UserID:   employeeID,
		IsTyping: frame.IsTyping,
	})
}

// broadcast fans a frame out to every connection joined to the group except
// the originator. A non-nil allowed set additionally restricts delivery to
// the employees in it. A connection whose queue is full is force-closed so it
// cannot stall delivery to its siblings.
func (r *Router) broadcast(groupID int64, exceptConnID string, allowed map[int64]struct{}, frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Printf("failed to encode broadcast frame: %v", err)
		return
	}

	for _, m := range r.registry.MembersOf(groupID) {
		if m.ConnID == exceptConnID {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[m.EmployeeID]; !ok {
				continue
			}
		}
		if !m.client.enqueue(payload) {
			log.Printf("connection %s is too slow, disconnecting", m.ConnID)
			r.registry.Unregister(m.ConnID)
		}
	}
}

// sendTo queues a frame for a single connection.
func (r *Router) sendTo(c *Client, frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Printf("failed to encode frame: %v", err)
		return
	}
	if !c.enqueue(payload) {
		log.Printf("connection %s is too slow, disconnecting", c.ID)
		r.registry.Unregister(c.ID)
	}
}

func (r *Router) sendError(c *Client, message string) {
	r.sendTo(c, errorFrame{Type: frameError, Message: message})
}
