package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
)

// Hub is the central brain of the relay.
// It manages all active rooms and clients from a single goroutine, so room
// membership needs no locking.
type Hub struct {
	// Rooms maps room IDs to Room instances.
	Rooms map[string]*Room

	// Register is a channel for registering new clients.
	Register chan *Client

	// Unregister is a channel for unregistering clients.
	Unregister chan *Client

	// Broadcast is a channel for inbound frames. The hub processes them
	// one at a time in arrival order.
	Broadcast chan *Message

	clients map[*Client]struct{}
	done    chan struct{}
	log     *slog.Logger

	roomCount   atomic.Int64
	clientCount atomic.Int64
}

// Stats is a point-in-time view of the hub for health reporting.
type Stats struct {
	Rooms       int64 `json:"rooms"`
	Connections int64 `json:"connections"`
}

// NewHub creates a new Hub instance.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		Rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *Message),
		clients:    make(map[*Client]struct{}),
		done:       make(chan struct{}),
		log:        logger.With("component", "relay"),
	}
}

// Stats reports the current number of rooms and connections.
func (h *Hub) Stats() Stats {
	return Stats{Rooms: h.roomCount.Load(), Connections: h.clientCount.Load()}
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run starts the hub's main processing loop and blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case client := <-h.Register:
			h.clients[client] = struct{}{}
			h.clientCount.Store(int64(len(h.clients)))
			h.log.Debug("client registered", "conn", client.ID)
			h.send(client, &Message{Type: MessageTypeWelcome, From: client.ID})

		case client := <-h.Unregister:
			h.drop(client)

		case message := <-h.Broadcast:
			h.handle(message)
		}
	}
}

// Attach registers c with the hub. It returns false once the hub has stopped.
func (h *Hub) Attach(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

// unregister hands c to the hub unless the hub already stopped.
func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) handle(msg *Message) {
	c := msg.client
	if _, ok := h.clients[c]; !ok {
		h.log.Warn("frame from unregistered client dropped", "type", msg.Type)
		return
	}
	h.log.Debug("frame received", "type", msg.Type, "conn", c.ID, "room", msg.RoomID)

	switch {
	case msg.Type == MessageTypeCreateRoom:
		h.join(c, h.generateRoomID())

	case msg.Type == MessageTypeJoinRoom:
		if msg.RoomID == "" {
			h.send(c, errorFrame("room_id is required"))
			return
		}
		h.join(c, msg.RoomID)

	case msg.Type == MessageTypeLeaveRoom:
		room := h.resolveRoom(c, msg.RoomID)
		if room == nil {
			h.send(c, errorFrame("You are not in that room"))
			return
		}
		h.leave(c, room)

	case IsRelayed(msg.Type):
		h.relay(c, msg)

	default:
		h.log.Warn("unknown frame type", "type", msg.Type, "conn", c.ID)
		h.send(c, errorFrame("Unknown message type: "+msg.Type))
	}
}

// join adds c to roomID and tells every other current member about it.
// Joining twice duplicates membership.
func (h *Hub) join(c *Client, roomID string) {
	room, ok := h.Rooms[roomID]
	if !ok {
		room = &Room{ID: roomID}
		h.Rooms[roomID] = room
		h.roomCount.Store(int64(len(h.Rooms)))
		h.log.Info("room created", "room", roomID)
	}

	others := room.others(c)
	room.add(c)
	c.rooms = append(c.rooms, roomID)

	peers := make([]string, 0, len(others))
	for _, o := range others {
		peers = append(peers, o.ID)
	}
	payload, _ := json.Marshal(JoinedPayload{Peers: peers})
	h.send(c, &Message{Type: MessageTypeJoined, RoomID: roomID, From: c.ID, Payload: payload})

	announce := &Message{Type: MessageTypePeerJoined, RoomID: roomID, From: c.ID}
	for _, o := range others {
		h.send(o, announce)
	}
	h.log.Info("client joined room", "conn", c.ID, "room", roomID, "members", len(room.Members))
}

// relay forwards msg, stamped with the sender id, to every other member.
func (h *Hub) relay(c *Client, msg *Message) {
	room := h.resolveRoom(c, msg.RoomID)
	if room == nil {
		h.log.Warn("relay from non-member", "conn", c.ID, "room", msg.RoomID, "type", msg.Type)
		h.send(c, errorFrame("You must join a room first"))
		return
	}

	out := &Message{
		Type:    msg.Type,
		RoomID:  room.ID,
		From:    c.ID,
		Payload: msg.Payload,
	}
	for _, o := range room.others(c) {
		h.send(o, out)
	}
}

// leave removes c from room and notifies the remaining members.
func (h *Hub) leave(c *Client, room *Room) {
	kept := c.rooms[:0]
	for _, id := range c.rooms {
		if id != room.ID {
			kept = append(kept, id)
		}
	}
	c.rooms = kept

	if room.remove(c) == 0 {
		return
	}

	if room.empty() {
		delete(h.Rooms, room.ID)
		h.roomCount.Store(int64(len(h.Rooms)))
		h.log.Info("room deleted", "room", room.ID)
		return
	}

	notice := &Message{Type: MessageTypePeerLeft, RoomID: room.ID, From: c.ID}
	for _, o := range room.Members {
		h.send(o, notice)
	}
	h.log.Info("peer left room", "conn", c.ID, "room", room.ID)
}

// drop removes c from every room and closes its send channel.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	for len(c.rooms) > 0 {
		room, ok := h.Rooms[c.rooms[len(c.rooms)-1]]
		if !ok {
			c.rooms = c.rooms[:len(c.rooms)-1]
			continue
		}
		h.leave(c, room)
	}

	delete(h.clients, c)
	h.clientCount.Store(int64(len(h.clients)))
	close(c.Send)
	h.log.Debug("client unregistered", "conn", c.ID)
}

// resolveRoom returns the room named by roomID, or the most recently joined
// room when roomID is empty, provided c is a member of it.
func (h *Hub) resolveRoom(c *Client, roomID string) *Room {
	if roomID == "" {
		if len(c.rooms) == 0 {
			return nil
		}
		roomID = c.rooms[len(c.rooms)-1]
	}
	room, ok := h.Rooms[roomID]
	if !ok || !room.contains(c) {
		return nil
	}
	return room
}

// send queues msg for c without blocking the hub. A full queue drops the frame.
func (h *Hub) send(c *Client, msg *Message) {
	select {
	case c.Send <- msg:
	default:
		h.log.Warn("send queue full, frame dropped", "conn", c.ID, "type", msg.Type)
	}
}
