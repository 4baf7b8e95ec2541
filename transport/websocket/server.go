package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gridduel/gridduel-backend/internal/entity"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

type roomStore interface {
	GetRoom(id string) (*entity.Room, error)
	DestroyRoom(ctx context.Context, id string)
	Persist(ctx context.Context, room *entity.Room)
}

// Server accepts authenticated socket connections and fans room events
// out to every connection of a room. One Server instance serves all
// rooms.
type Server struct {
	logger *slog.Logger
	store  roomStore
	ctx    context.Context

	upgrader websocket.Upgrader
	handlers map[string]func(c *client, msg *Message)

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

// client is one live connection, bound 1:1 to a (room, session) pair for
// its whole lifetime. All writes go through the send channel so a single
// goroutine owns the socket.
type client struct {
	conn     *websocket.Conn
	send     chan []byte
	token    string
	roomID   string
	username string

	mu     sync.Mutex
	closed bool
}

func New(ctx context.Context, logger *slog.Logger, store roomStore) *Server {
	server := &Server{
		logger: logger.With("component", "socket"),
		store:  store,
		ctx:    ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		handlers: make(map[string]func(*client, *Message)),
		rooms:    make(map[string]map[*client]struct{}),
	}

	server.handlers[ActionMove] = server.handleMove
	server.handlers[ActionReplay] = server.handleReplay
	server.handlers[ActionChat] = server.handleChat
	server.handlers[ActionReaction] = server.handleReaction
	server.handlers[ActionLeave] = server.handleLeave

	return server
}

// Handle upgrades an incoming connection after the handshake checks.
// The handshake fails closed: no credentials, unknown room or a token
// that is not seated in that room all reject the request before any
// room logic runs.
func (that *Server) Handle(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "Handle")

	token := req.URL.Query().Get("sid")
	roomID := req.URL.Query().Get("roomId")
	if token == "" || roomID == "" {
		http.Error(writer, "missing sid or roomId", http.StatusBadRequest)
		return
	}

	room, err := that.store.GetRoom(roomID)
	if err != nil {
		http.Error(writer, "room not found or destroyed", http.StatusNotFound)
		return
	}

	player, ok := room.Session(token)
	if !ok {
		http.Error(writer, "you are not registered in this room", http.StatusForbidden)
		return
	}

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	c := &client{
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		token:    token,
		roomID:   roomID,
		username: player.Username,
	}

	go c.writePump()

	started, err := room.MarkOnline(token)
	if err != nil {
		log.Error("failed to mark player online", "roomID", roomID, "error", err)
		c.close()
		return
	}

	that.store.Persist(that.ctx, room)

	flag := FlagJoined
	if started {
		flag = FlagGameStarted
	}

	snapshot := room.Snapshot()

	// The seat identity rides on the first state event a connection sees,
	// so the personal event is queued before the client joins the
	// broadcast set and other traffic can reach it.
	seat := player.Seat
	c.enqueue(&Message{
		Action:  ActionState,
		Payload: mustMarshal(StatePayload{State: snapshot, Flag: flag, YourID: &seat}),
	})

	that.register(c)
	that.broadcastStateExcept(c, snapshot, flag)

	log.Info("connection established", "roomID", roomID, "seat", seat)

	that.readLoop(c)
}

func (that *Server) readLoop(c *client) {
	log := that.logger.With("method", "readLoop", "roomID", c.roomID)

	defer that.disconnect(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error("unexpected close", "error", err)
			}
			return
		}

		var msg Message
		if err = json.Unmarshal(data, &msg); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			continue
		}

		handler, ok := that.handlers[msg.Action]
		if !ok {
			log.Error("unknown action", "action", msg.Action)
			continue
		}

		handler(c, &msg)
	}
}

// disconnect tears down one connection. The room itself is untouched
// apart from the seat going offline; nobody forfeits by dropping.
func (that *Server) disconnect(c *client) {
	log := that.logger.With("method", "disconnect", "roomID", c.roomID)

	that.unregister(c)
	c.close()

	room, err := that.store.GetRoom(c.roomID)
	if err != nil {
		// Room was destroyed while we were connected; nothing to update.
		return
	}

	if err = room.MarkOffline(c.token); err != nil {
		log.Error("failed to mark player offline", "error", err)
		return
	}

	that.store.Persist(that.ctx, room)
	that.broadcastState(c.roomID, room.Snapshot(), FlagUserDisconnect)

	log.Info("player went offline")
}

// AbortRoom broadcasts a room-aborted signal to every connection of the
// room and force-closes them. Used by leave-room and by the GC callback;
// clients always learn why they lost the session.
func (that *Server) AbortRoom(roomID, reason string) {
	that.mu.Lock()
	clients := that.rooms[roomID]
	delete(that.rooms, roomID)
	that.mu.Unlock()

	msg := &Message{
		Action:  ActionAborted,
		Payload: mustMarshal(AbortPayload{Reason: reason}),
	}

	for c := range clients {
		c.enqueue(msg)
		c.close()
	}

	that.logger.Info("room aborted", "roomID", roomID, "reason", reason, "connections", len(clients))
}

func (that *Server) register(c *client) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.rooms[c.roomID] == nil {
		that.rooms[c.roomID] = make(map[*client]struct{})
	}
	that.rooms[c.roomID][c] = struct{}{}
}

func (that *Server) unregister(c *client) {
	that.mu.Lock()
	defer that.mu.Unlock()

	clients, ok := that.rooms[c.roomID]
	if !ok {
		return
	}

	delete(clients, c)
	if len(clients) == 0 {
		delete(that.rooms, c.roomID)
	}
}

func (that *Server) broadcastState(roomID string, snapshot *entity.Room, flag string) {
	that.broadcast(roomID, nil, &Message{
		Action:  ActionState,
		Payload: mustMarshal(StatePayload{State: snapshot, Flag: flag}),
	})
}

func (that *Server) broadcastStateExcept(except *client, snapshot *entity.Room, flag string) {
	that.broadcast(except.roomID, except, &Message{
		Action:  ActionState,
		Payload: mustMarshal(StatePayload{State: snapshot, Flag: flag}),
	})
}

func (that *Server) broadcast(roomID string, except *client, msg *Message) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	for c := range that.rooms[roomID] {
		if c == except {
			continue
		}
		c.enqueue(msg)
	}
}

// enqueue queues one frame for the write pump. Frames offered to a
// closed client are dropped; AbortRoom enqueues outside the server lock,
// so the closed check and the channel send have to be atomic against
// close.
func (that *client) enqueue(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return
	}

	select {
	case that.send <- data:
	default:
		// Slow consumer; drop rather than block the room.
	}
}

func (that *client) writePump() {
	for data := range that.send {
		_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := that.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	_ = that.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	_ = that.conn.Close()
}

// close stops the write pump, which flushes queued frames, sends a close
// frame and closes the socket. Safe to call more than once and against
// a concurrent enqueue.
func (that *client) close() {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return
	}

	that.closed = true
	close(that.send)
}
