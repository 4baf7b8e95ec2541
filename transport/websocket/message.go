package websocket

import (
	"encoding/json"

	"github.com/gridduel/gridduel-backend/internal/entity"
)

// Message is the wire envelope in both directions. Client requests that
// expect an acknowledgement carry a correlation id; the server echoes the
// action and id back on the ack so the client can match them up.
type Message struct {
	Action  string          `json:"action"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client-to-server actions.
const (
	ActionMove     = "game:move"
	ActionReplay   = "game:replay"
	ActionChat     = "chat:message"
	ActionReaction = "chat:reaction"
	ActionLeave    = "room:leave"
)

// Server-to-client actions.
const (
	ActionState   = "state"
	ActionAborted = "room:aborted"
)

// State-change flags tell the client why it received a fresh snapshot.
const (
	FlagJoined         = "joined"
	FlagGameStarted    = "game-started"
	FlagMove           = "move"
	FlagGameOver       = "game-over"
	FlagReplayRequest  = "replay-request"
	FlagReplayStarted  = "replay-started"
	FlagUserDisconnect = "user-disconnect"
)

type MovePayload struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type ChatPayload struct {
	Text string `json:"text"`
}

type ReactionPayload struct {
	Icon string `json:"icon"`
}

// AckPayload answers an acknowledged request. Message is set only on
// chat acks, where the caller needs the stored message back.
type AckPayload struct {
	Accepted bool                `json:"accepted"`
	Error    string              `json:"error,omitempty"`
	Message  *entity.ChatMessage `json:"message,omitempty"`
}

// StatePayload carries a safe room snapshot. YourID is the recipient's
// seat index; it is present only on the first event a connection
// receives after its handshake.
type StatePayload struct {
	State  *entity.Room `json:"state"`
	Flag   string       `json:"flag"`
	YourID *int         `json:"yourId,omitempty"`
}

type AbortPayload struct {
	Reason string `json:"reason"`
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
