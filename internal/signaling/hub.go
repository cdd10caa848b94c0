package signaling

import (
	"log/slog"

	"github.com/michaelRS2002/AgoraX-Video/internal/protocol"
)

// inbound pairs a decoded wire message with the client that sent it.
type inbound struct {
	client *Client
	msg    *protocol.Message
}

// Hub is the central brain of the signaling server.
// It manages all active rooms and routes messages between their members.
// All room-membership mutation and relay decisions happen on the single
// goroutine running Run, so no locking is needed anywhere in this package.
type Hub struct {
	// Rooms maps room IDs to Room instances.
	Rooms map[string]*Room

	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Inbound carries messages read from client connections.
	Inbound chan *inbound
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		Rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *inbound),
	}
}

// Run starts the hub's main processing loop.
// This is the single goroutine that safely manages all state.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.handleRegister(client)

		case client := <-h.Unregister:
			h.handleDisconnect(client)

		case in := <-h.Inbound:
			switch in.msg.Type {
			case protocol.MessageTypeJoin:
				h.handleJoin(in.client, in.msg.RoomID)

			case protocol.MessageTypeSignal:
				h.handleSignal(in.client, in.msg)

			default:
				slog.Debug("unknown message type", "type", in.msg.Type, "client", in.client.ID)
			}
		}
	}
}

// handleRegister welcomes a freshly connected client with its assigned ID.
// The client is not in a room yet; it must send a join message first.
func (h *Hub) handleRegister(c *Client) {
	slog.Info("client registered", "client", c.ID)
	h.deliver(c, &protocol.Message{
		Type:   protocol.MessageTypeWelcome,
		PeerID: c.ID,
	})
}

// handleJoin enrolls a client into a room.
//
// The ordering here carries the whole negotiation protocol: the newcomer is
// told about every existing member before those members are told about the
// newcomer, so exactly one side of every pair (the newcomer) acts as the
// offer initiator. Existing members only ever answer.
func (h *Hub) handleJoin(c *Client, roomID string) {
	if roomID == "" {
		h.deliver(c, protocol.NewErrorMessage("join requires a room id"))
		return
	}

	// Rejoining the current room is a no-op: membership is a set, and the
	// announcements were already made.
	if c.RoomID == roomID {
		return
	}

	// Joining is exclusive: entering a new room leaves the old one, with a
	// departure notice to its remaining members.
	if c.RoomID != "" {
		h.leave(c)
	}

	room, ok := h.Rooms[roomID]
	if !ok {
		room = newRoom(roomID)
		h.Rooms[roomID] = room
	}

	// 1. Announce every existing member to the newcomer. These announces
	// carry the initiator flag: the newcomer offers, existing members answer.
	for id := range room.Members {
		h.deliver(c, &protocol.Message{
			Type:      protocol.MessageTypePeerJoined,
			RoomID:    roomID,
			PeerID:    id,
			Initiator: true,
		})
	}

	// 2. Add the newcomer to the membership set.
	room.add(c)
	c.RoomID = roomID

	// 3. Announce the newcomer to every existing member.
	for _, other := range room.others(c.ID) {
		h.deliver(other, &protocol.Message{
			Type:   protocol.MessageTypePeerJoined,
			RoomID: roomID,
			PeerID: c.ID,
		})
	}

	slog.Info("client joined room", "client", c.ID, "room", roomID, "members", len(room.Members))
}

// handleSignal relays a validated signaling payload to its recipients:
// the addressed member when the payload carries a To field, every other
// room member otherwise. Never back to the sender.
func (h *Hub) handleSignal(c *Client, msg *protocol.Message) {
	if c.RoomID == "" {
		h.deliver(c, protocol.NewErrorMessage("you must join a room first"))
		return
	}

	room, ok := h.Rooms[c.RoomID]
	if !ok {
		h.deliver(c, protocol.NewErrorMessage("room not found"))
		return
	}

	// A room id on the envelope must match the room the client is in.
	if msg.RoomID != "" && msg.RoomID != c.RoomID {
		slog.Debug("dropping signal for foreign room", "client", c.ID, "room", msg.RoomID)
		return
	}

	payload, err := protocol.DecodeSignal(msg)
	if err != nil {
		// Malformed payloads are dropped, never fatal to the hub.
		slog.Debug("dropping malformed signal", "client", c.ID, "err", err)
		return
	}

	out := &protocol.Message{
		Type:    protocol.MessageTypeSignal,
		RoomID:  c.RoomID,
		From:    c.ID,
		Payload: msg.Payload,
	}

	if payload.To != "" {
		// Directed delivery. The recipient may have just disconnected, in
		// which case the signal is silently dropped.
		target, ok := room.Members[payload.To]
		if !ok || target == c {
			slog.Debug("dropping unaddressable signal", "client", c.ID, "to", payload.To)
			return
		}
		h.deliver(target, out)
		return
	}

	for _, other := range room.others(c.ID) {
		h.deliver(other, out)
	}
}

// handleDisconnect cleans up after a client, whether it closed gracefully or
// the transport dropped.
func (h *Hub) handleDisconnect(c *Client) {
	slog.Info("client unregistered", "client", c.ID)

	if c.RoomID != "" {
		h.leave(c)
	}

	// Close the client's send channel to stop its WritePump.
	close(c.Send)
}

// leave removes a client from its room and sends the departure notice to the
// members computed from the pre-removal membership snapshot.
func (h *Hub) leave(c *Client) {
	room, ok := h.Rooms[c.RoomID]
	if !ok {
		c.RoomID = ""
		return
	}

	remaining := room.others(c.ID)
	room.remove(c)

	if room.empty() {
		delete(h.Rooms, room.ID)
		slog.Info("room deleted", "room", room.ID)
	} else {
		for _, other := range remaining {
			h.deliver(other, &protocol.Message{
				Type:   protocol.MessageTypePeerLeft,
				RoomID: room.ID,
				PeerID: c.ID,
			})
		}
	}

	c.RoomID = ""
}

// deliver is fire-and-forget: a client whose send buffer is full loses the
// message instead of stalling the hub loop for everyone else.
func (h *Hub) deliver(c *Client, msg *protocol.Message) {
	select {
	case c.Send <- msg:
	default:
		slog.Warn("dropping message to slow client", "client", c.ID, "type", msg.Type)
	}
}
