package service

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rdelolmomor/CalioBackend/internal/models"
	"github.com/rdelolmomor/CalioBackend/internal/routing"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 256
)

// Envelope is the wire frame exchanged with clients. Ack, when nonzero,
// correlates a reply with the request that carried it.
type Envelope struct {
	Event string          `json:"event"`
	Ack   uint64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Event string      `json:"event"`
	Ack   uint64      `json:"ack,omitempty"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Client is one websocket connection bound to an authenticated session.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	socketID string
	login    string
	token    string
	session  *models.Session
}

// NewClient wraps an upgraded connection. The caller registers it on the hub
// and starts both pumps.
func NewClient(hub *Hub, conn *websocket.Conn, socketID string, session *models.Session, token string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		socketID: socketID,
		login:    session.Login,
		token:    token,
		session:  session,
	}
}

// Hub tracks every connected client and its channel subscriptions, and
// implements the fan-out side of event dispatch.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*Client          // by socket id
	byLogin    map[string]map[*Client]bool // every socket of one identity
	channels   map[string]map[*Client]bool
	subscribed map[*Client]map[string]bool

	dispatcher *Dispatcher
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		byLogin:    make(map[string]map[*Client]bool),
		channels:   make(map[string]map[*Client]bool),
		subscribed: make(map[*Client]map[string]bool),
	}
}

// Bind wires the dispatcher in after construction; hub and dispatcher
// reference each other.
func (h *Hub) Bind(d *Dispatcher) {
	h.dispatcher = d
}

// Register adds the client to the hub before its pumps start.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.socketID] = c
	if h.byLogin[c.login] == nil {
		h.byLogin[c.login] = make(map[*Client]bool)
	}
	h.byLogin[c.login][c] = true
	h.subscribed[c] = make(map[string]bool)
}

// Unregister drops the client and every channel subscription it holds.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.socketID]; !ok {
		return
	}
	delete(h.clients, c.socketID)
	if set := h.byLogin[c.login]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byLogin, c.login)
		}
	}
	for ch := range h.subscribed[c] {
		delete(h.channels[ch], c)
		if len(h.channels[ch]) == 0 {
			delete(h.channels, ch)
		}
	}
	delete(h.subscribed, c)
	close(c.send)
}

func (h *Hub) joinLocked(c *Client, channels []string) {
	for _, ch := range channels {
		if h.channels[ch] == nil {
			h.channels[ch] = make(map[*Client]bool)
		}
		h.channels[ch][c] = true
		h.subscribed[c][ch] = true
	}
}

// Join subscribes a socket to channels.
func (h *Hub) Join(socketID string, channels ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[socketID]
	if !ok {
		return
	}
	h.joinLocked(c, channels)
}

// JoinLogin subscribes every socket of an identity to channels.
func (h *Hub) JoinLogin(login string, channels ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.byLogin[login] {
		h.joinLocked(c, channels)
	}
}

// ChannelsOf lists the channels a socket is subscribed to.
func (h *Hub) ChannelsOf(socketID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[socketID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(h.subscribed[c]))
	for ch := range h.subscribed[c] {
		out = append(out, ch)
	}
	return out
}

// Emit delivers the event to every client in an Include channel that sits in
// no Exclude channel, skipping the originating socket. A client whose send
// buffer is full is dropped rather than allowed to stall the fan-out.
func (h *Hub) Emit(event string, fan routing.FanOut, skipSocket string, payload interface{}) {
	frame, err := json.Marshal(outboundFrame{Event: event, Data: payload})
	if err != nil {
		log.Printf("[hub] marshaling %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	recipients := make(map[*Client]bool)
	for _, ch := range fan.Include {
		for c := range h.channels[ch] {
			recipients[c] = true
		}
	}
	for _, ch := range fan.Exclude {
		for c := range h.channels[ch] {
			delete(recipients, c)
		}
	}
	stalled := h.deliver(recipients, skipSocket, frame)
	h.mu.RUnlock()

	h.dropStalled(stalled)
}

// Broadcast delivers the event to every connected socket but the origin.
func (h *Hub) Broadcast(event string, skipSocket string, payload interface{}) {
	frame, err := json.Marshal(outboundFrame{Event: event, Data: payload})
	if err != nil {
		log.Printf("[hub] marshaling %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	recipients := make(map[*Client]bool, len(h.clients))
	for _, c := range h.clients {
		recipients[c] = true
	}
	stalled := h.deliver(recipients, skipSocket, frame)
	h.mu.RUnlock()

	h.dropStalled(stalled)
}

// deliver pushes the frame to each recipient, returning the clients whose
// buffers were full. Callers hold at least the read lock.
func (h *Hub) deliver(recipients map[*Client]bool, skipSocket string, frame []byte) []*Client {
	var stalled []*Client
	for c := range recipients {
		if c.socketID == skipSocket {
			continue
		}
		select {
		case c.send <- frame:
		default:
			stalled = append(stalled, c)
		}
	}
	return stalled
}

func (h *Hub) dropStalled(stalled []*Client) {
	for _, c := range stalled {
		log.Printf("[hub] send buffer full, dropping socket %s (%s)", c.socketID, c.login)
		h.Unregister(c)
		c.conn.Close()
	}
}

// reply sends a frame only to this client, correlating it with the request.
func (c *Client) reply(event string, ack uint64, payload interface{}, err error) {
	frame := outboundFrame{Event: event, Ack: ack, Data: payload}
	if err != nil {
		frame.Data = nil
		frame.Error = err.Error()
	}
	encoded, mErr := json.Marshal(frame)
	if mErr != nil {
		log.Printf("[hub] marshaling %s reply: %v", event, mErr)
		return
	}
	select {
	case c.send <- encoded:
	default:
	}
}

// ReadPump reads frames until the connection drops, dispatching each one.
// It owns the read side: deadlines, size limit and pong handling live here.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.dispatcher.OnDisconnect(c.session, c.token, c.socketID)
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[hub] socket %s read error: %v", c.socketID, err)
			}
			return
		}
		c.handleFrame(raw)
	}
}

// handleFrame decodes and dispatches one inbound frame. A panic in a handler
// fails only that frame, never the connection.
func (c *Client) handleFrame(raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[hub] recovered handling frame from %s: %v", c.login, r)
		}
	}()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.reply("error", 0, nil, validationErr("malformed frame"))
		return
	}

	switch env.Event {
	case EventMessage:
		var payload MessagePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			c.reply(env.Event, env.Ack, nil, validationErr("malformed message payload"))
			return
		}
		event, err := c.hub.dispatcher.OnMessage(c.login, c.token, c.socketID, payload)
		c.reply(env.Event, env.Ack, event, err)
	case EventMessageState:
		var payload StateChangePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			c.reply(env.Event, env.Ack, nil, validationErr("malformed state payload"))
			return
		}
		event, err := c.hub.dispatcher.OnMessageState(c.login, c.token, c.socketID, payload)
		c.reply(env.Event, env.Ack, event, err)
	case "rooms":
		c.reply(env.Event, env.Ack, c.hub.dispatcher.OnRooms(c.socketID), nil)
	case EventPrivateRoom:
		var payload PrivateRoomPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			c.reply(env.Event, env.Ack, nil, validationErr("malformed private room payload"))
			return
		}
		event, err := c.hub.dispatcher.OnPrivateRoom(c.login, c.token, c.socketID, payload)
		c.reply(env.Event, env.Ack, event, err)
	case "exitPrivateRoom":
		var payload ExitPrivatePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			c.reply(env.Event, env.Ack, nil, validationErr("malformed exit payload"))
			return
		}
		err := c.hub.dispatcher.OnExitPrivateRoom(c.login, c.token, c.socketID, payload)
		c.reply(env.Event, env.Ack, nil, err)
	case "adminAction":
		var payload AdminActionPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			c.reply(env.Event, env.Ack, nil, validationErr("malformed admin payload"))
			return
		}
		err := c.hub.dispatcher.OnAdminAction(c.login, c.token, c.socketID, payload)
		c.reply(env.Event, env.Ack, nil, err)
	case "notifyAction":
		var payload NotifyActionPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			c.reply(env.Event, env.Ack, nil, validationErr("malformed notify payload"))
			return
		}
		err := c.hub.dispatcher.OnNotifyAction(c.login, c.token, c.socketID, payload)
		c.reply(env.Event, env.Ack, nil, err)
	default:
		c.reply("error", env.Ack, nil, validationErr("unknown event "+env.Event))
	}
}

// WritePump drains the send channel to the connection and keeps it alive
// with periodic pings. A closed send channel (unregister) ends the pump.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
