package gameclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	socket "github.com/gridduel/gridduel-backend/transport/websocket"
)

func TestRequest_AckTimeout(t *testing.T) {
	t.Run("Withheld acknowledgement times out", func(t *testing.T) {
		// Given: a server that reads requests but never acknowledges them
		baseURL := newStubServer(t, func(_ *stubConn, _ socket.Message) {})

		client := dialStub(t, baseURL)
		client.timeout = 50 * time.Millisecond

		// When: submitting a move
		_, err := client.MakeMove(context.Background(), 0, 0)

		// Then: the caller gets the timeout instead of waiting forever
		assert.ErrorIs(t, err, ErrAckTimeout)
	})

	t.Run("Cancelled context wins over the timer", func(t *testing.T) {
		// Given: a server that never acknowledges
		baseURL := newStubServer(t, func(_ *stubConn, _ socket.Message) {})

		client := dialStub(t, baseURL)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		// When: the caller's context expires first
		_, err := client.MakeMove(ctx, 0, 0)

		// Then: the context error is reported
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Late acknowledgement is dropped and later requests still work", func(t *testing.T) {
		// Given: a server that acks the first request only after the client
		// gave up on it, and acks every later request immediately
		var requests int

		baseURL := newStubServer(t, func(conn *stubConn, msg socket.Message) {
			if msg.ID == "" {
				return
			}

			requests++
			if requests == 1 {
				go func() {
					time.Sleep(200 * time.Millisecond)
					conn.writeAck(msg, socket.AckPayload{Accepted: false, Error: "too late"})
				}()
				return
			}

			conn.writeAck(msg, socket.AckPayload{Accepted: true})
		})

		client := dialStub(t, baseURL)
		client.timeout = 50 * time.Millisecond

		// When: the first request times out and its ack arrives afterwards
		_, err := client.MakeMove(context.Background(), 0, 0)
		require.ErrorIs(t, err, ErrAckTimeout)

		time.Sleep(300 * time.Millisecond)

		// Then: a later request is answered by its own ack, not the stale
		// one, and nothing leaked into the event stream
		ack, err := client.MakeMove(context.Background(), 1, 1)
		require.NoError(t, err)
		assert.True(t, ack.Accepted)

		select {
		case event := <-client.Events():
			t.Fatalf("unexpected event %q in the stream", event.Action)
		default:
		}
	})
}

// stubConn serializes writes so delayed acks never race immediate ones.
type stubConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (that *stubConn) writeAck(req socket.Message, payload socket.AckPayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	_ = that.conn.WriteJSON(socket.Message{Action: req.Action, ID: req.ID, Payload: data})
}

// newStubServer runs a bare socket endpoint that feeds every parsed
// message to handle, standing in for the real server.
func newStubServer(t *testing.T, handle func(conn *stubConn, msg socket.Message)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sc := &stubConn{conn: conn}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var msg socket.Message
			if err = json.Unmarshal(data, &msg); err != nil {
				continue
			}

			handle(sc, msg)
		}
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dialStub(t *testing.T, baseURL string) *Client {
	t.Helper()

	client, err := Dial(context.Background(), baseURL, "r1", "token-a")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}
