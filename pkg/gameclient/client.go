package gameclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gridduel/gridduel-backend/internal/entity"
	socket "github.com/gridduel/gridduel-backend/transport/websocket"
)

// DefaultAckTimeout bounds how long a request waits for its
// acknowledgement before the caller treats the operation as failed.
const DefaultAckTimeout = 5 * time.Second

var (
	ErrAckTimeout   = errors.New("timed out waiting for acknowledgement")
	ErrClientClosed = errors.New("client is closed")
)

// Event is one server push: exactly one of the payload fields is set,
// according to Action.
type Event struct {
	Action   string
	State    *socket.StatePayload
	Chat     *entity.ChatMessage
	Reaction *socket.ReactionPayload
	Aborted  *socket.AbortPayload
}

// Client is the connection-owning side of the sync channel. It
// correlates request acknowledgements by message id with a bounded
// wait; an ack arriving after its deadline finds no waiter and is
// dropped.
type Client struct {
	conn    *websocket.Conn
	timeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan socket.AckPayload
	closed  bool

	events chan Event
	done   chan struct{}
}

// Dial connects and authenticates against a room. baseURL is the
// ws:// address of the server without a path.
func Dial(ctx context.Context, baseURL, roomID, sid string) (*Client, error) {
	query := url.Values{}
	query.Set("sid", sid)
	query.Set("roomId", roomID)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, baseURL+"/ws?"+query.Encode(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake rejected with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	client := &Client{
		conn:    conn,
		timeout: DefaultAckTimeout,
		pending: make(map[string]chan socket.AckPayload),
		events:  make(chan Event, 16),
		done:    make(chan struct{}),
	}

	go client.readLoop()

	return client, nil
}

// Events delivers server pushes (state changes, chat, reactions,
// aborts). The channel is closed when the connection drops.
func (that *Client) Events() <-chan Event {
	return that.events
}

// MakeMove submits a move and waits for the acknowledgement. A rejected
// move returns Accepted=false with the server's reason; an error means
// the acknowledgement never arrived.
func (that *Client) MakeMove(ctx context.Context, x, y int) (socket.AckPayload, error) {
	return that.request(ctx, socket.ActionMove, socket.MovePayload{X: x, Y: y})
}

func (that *Client) RequestReplay(ctx context.Context) (socket.AckPayload, error) {
	return that.request(ctx, socket.ActionReplay, nil)
}

// SendMessage submits a chat message and returns the stored message as
// the room's other members will see it.
func (that *Client) SendMessage(ctx context.Context, text string) (*entity.ChatMessage, error) {
	ack, err := that.request(ctx, socket.ActionChat, socket.ChatPayload{Text: text})
	if err != nil {
		return nil, err
	}

	if !ack.Accepted {
		return nil, errors.New(ack.Error)
	}

	return ack.Message, nil
}

// SendReaction is fire-and-forget: no acknowledgement, no delivery
// guarantee.
func (that *Client) SendReaction(icon string) error {
	return that.write(&socket.Message{
		Action:  socket.ActionReaction,
		Payload: marshal(socket.ReactionPayload{Icon: icon}),
	})
}

// Leave asks the server to tear the whole room down. Fire-and-forget;
// the roomAborted event and the connection close follow.
func (that *Client) Leave() error {
	return that.write(&socket.Message{Action: socket.ActionLeave})
}

func (that *Client) Close() error {
	that.mu.Lock()
	that.closed = true
	that.mu.Unlock()

	return that.conn.Close()
}

func (that *Client) request(ctx context.Context, action string, payload any) (socket.AckPayload, error) {
	id := uuid.NewString()
	ch := make(chan socket.AckPayload, 1)

	that.mu.Lock()
	if that.closed {
		that.mu.Unlock()
		return socket.AckPayload{}, ErrClientClosed
	}
	that.pending[id] = ch
	that.mu.Unlock()

	defer func() {
		that.mu.Lock()
		delete(that.pending, id)
		that.mu.Unlock()
	}()

	msg := &socket.Message{Action: action, ID: id}
	if payload != nil {
		msg.Payload = marshal(payload)
	}

	if err := that.write(msg); err != nil {
		return socket.AckPayload{}, err
	}

	timer := time.NewTimer(that.timeout)
	defer timer.Stop()

	select {
	case ack := <-ch:
		return ack, nil
	case <-ctx.Done():
		return socket.AckPayload{}, ctx.Err()
	case <-timer.C:
		return socket.AckPayload{}, ErrAckTimeout
	case <-that.done:
		return socket.AckPayload{}, ErrClientClosed
	}
}

func (that *Client) write(msg *socket.Message) error {
	that.writeMu.Lock()
	defer that.writeMu.Unlock()

	if err := that.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (that *Client) readLoop() {
	defer close(that.done)
	defer close(that.events)

	for {
		_, data, err := that.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg socket.Message
		if err = json.Unmarshal(data, &msg); err != nil {
			continue
		}

		if msg.ID != "" {
			that.deliverAck(&msg)
			continue
		}

		event, ok := decodeEvent(&msg)
		if !ok {
			continue
		}

		select {
		case that.events <- event:
		default:
			// Keep reading even if the consumer lags; drop the event.
		}
	}
}

// deliverAck hands an acknowledgement to its waiter. A request that
// already timed out has removed itself, so late acks fall through here.
func (that *Client) deliverAck(msg *socket.Message) {
	var ack socket.AckPayload
	if err := json.Unmarshal(msg.Payload, &ack); err != nil {
		return
	}

	that.mu.Lock()
	ch, ok := that.pending[msg.ID]
	that.mu.Unlock()

	if ok {
		ch <- ack
	}
}

func decodeEvent(msg *socket.Message) (Event, bool) {
	event := Event{Action: msg.Action}

	switch msg.Action {
	case socket.ActionState:
		var payload socket.StatePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return event, false
		}
		event.State = &payload
	case socket.ActionChat:
		var payload entity.ChatMessage
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return event, false
		}
		event.Chat = &payload
	case socket.ActionReaction:
		var payload socket.ReactionPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return event, false
		}
		event.Reaction = &payload
	case socket.ActionAborted:
		var payload socket.AbortPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return event, false
		}
		event.Aborted = &payload
	default:
		return event, false
	}

	return event, true
}

func marshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
