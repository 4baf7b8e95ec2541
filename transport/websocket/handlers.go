package websocket

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/gridduel/gridduel-backend/internal/entity"
)

func (that *Server) handleMove(c *client, msg *Message) {
	log := that.logger.With("method", "handleMove", "roomID", c.roomID)

	var payload MovePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		that.ack(c, msg, AckPayload{Accepted: false, Error: "malformed move payload"})
		return
	}

	room, err := that.store.GetRoom(c.roomID)
	if err != nil {
		that.ack(c, msg, AckPayload{Accepted: false, Error: "room not found or destroyed"})
		return
	}

	if err = room.PlayMove(c.token, payload.X, payload.Y); err != nil {
		that.ack(c, msg, AckPayload{Accepted: false, Error: err.Error()})
		return
	}

	// Ack goes out before the state broadcast, so the acting connection
	// never sees its acknowledgement after the resulting snapshot.
	that.ack(c, msg, AckPayload{Accepted: true})

	that.store.Persist(that.ctx, room)

	snapshot := room.Snapshot()
	flag := FlagMove
	if snapshot.Status == entity.StatusEnded {
		flag = FlagGameOver
	}
	that.broadcastState(c.roomID, snapshot, flag)

	log.Info("move applied", "x", payload.X, "y", payload.Y, "flag", flag)
}

func (that *Server) handleReplay(c *client, msg *Message) {
	log := that.logger.With("method", "handleReplay", "roomID", c.roomID)

	room, err := that.store.GetRoom(c.roomID)
	if err != nil {
		that.ack(c, msg, AckPayload{Accepted: false, Error: "room not found or destroyed"})
		return
	}

	restarted, err := room.RequestReplay(c.token)
	if err != nil {
		that.ack(c, msg, AckPayload{Accepted: false, Error: err.Error()})
		return
	}

	that.ack(c, msg, AckPayload{Accepted: true})

	that.store.Persist(that.ctx, room)

	flag := FlagReplayRequest
	if restarted {
		flag = FlagReplayStarted
	}
	that.broadcastState(c.roomID, room.Snapshot(), flag)

	log.Info("replay requested", "restarted", restarted)
}

func (that *Server) handleChat(c *client, msg *Message) {
	var payload ChatPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		that.ack(c, msg, AckPayload{Accepted: false, Error: "malformed chat payload"})
		return
	}

	text := strings.TrimSpace(payload.Text)
	if text == "" || utf8.RuneCountInString(text) > entity.MaxChatMessageLen {
		that.ack(c, msg, AckPayload{Accepted: false, Error: "message must be 1-1000 characters"})
		return
	}

	chat := &entity.ChatMessage{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    c.username,
		CreatedAt: time.Now(),
	}

	that.broadcast(c.roomID, c, &Message{
		Action:  ActionChat,
		Payload: mustMarshal(chat),
	})

	that.ack(c, msg, AckPayload{Accepted: true, Message: chat})
}

// handleReaction relays a reaction to the other connections of the room.
// Fire-and-forget: no ack, no delivery guarantee.
func (that *Server) handleReaction(c *client, msg *Message) {
	var payload ReactionPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Icon == "" {
		return
	}

	that.broadcast(c.roomID, c, &Message{
		Action:  ActionReaction,
		Payload: mustMarshal(payload),
	})
}

// handleLeave tears the whole room down, not just the leaving seat, and
// tells every remaining connection why.
func (that *Server) handleLeave(c *client, _ *Message) {
	that.store.DestroyRoom(that.ctx, c.roomID)
	that.AbortRoom(c.roomID, "opponent left the room")
}

func (that *Server) ack(c *client, req *Message, payload AckPayload) {
	c.enqueue(&Message{
		Action:  req.Action,
		ID:      req.ID,
		Payload: mustMarshal(payload),
	})
}
