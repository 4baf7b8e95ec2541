package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gridduel/gridduel-backend/internal/apperror"
	"github.com/gridduel/gridduel-backend/internal/entity"
)

type roomStore interface {
	CreateRoom(ctx context.Context, boardSize int, firstTurn string) (*entity.Room, error)
	GetRoom(id string) (*entity.Room, error)
	Persist(ctx context.Context, room *entity.Room)
}

type Handlers struct {
	logger *slog.Logger
	store  roomStore
}

func NewHandlers(logger *slog.Logger, store roomStore) *Handlers {
	return &Handlers{
		logger: logger.With("component", "rest"),
		store:  store,
	}
}

type createRoomRequest struct {
	SID       string `json:"sid"`
	Username  string `json:"username"`
	BoardSize int    `json:"boardSize"`
	FirstTurn string `json:"firstTurn"`
}

type joinRoomRequest struct {
	SID      string `json:"sid"`
	Username string `json:"username"`
}

func (that *Handlers) PingHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

// CreateRoom allocates a room and seats the creator in it. The creator
// still has to open a socket connection before anything starts.
func (that *Handlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "CreateRoom")

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if msg, ok := validateIdentity(req.SID, req.Username); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	firstTurn := req.FirstTurn
	if firstTurn == "" {
		firstTurn = entity.TurnPolicyCreator
	}
	switch firstTurn {
	case entity.TurnPolicyCreator, entity.TurnPolicyOpponent, entity.TurnPolicyRandom:
	default:
		writeError(w, http.StatusBadRequest, "firstTurn must be one of: creator, opponent, random")
		return
	}

	room, err := that.store.CreateRoom(r.Context(), req.BoardSize, firstTurn)
	if err != nil {
		log.Error("failed to create room", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	if _, err = room.Register(req.SID, req.Username); err != nil {
		log.Error("failed to register creator", "roomID", room.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register creator")
		return
	}

	that.store.Persist(r.Context(), room)

	writeJSON(w, http.StatusCreated, map[string]string{
		"roomId":  room.ID,
		"message": "room created, now connect",
	})
}

// JoinRoom registers a second session into an existing room. Joining
// with an already-registered token succeeds without taking a new seat,
// which is how a reconnecting client re-enters.
func (that *Handlers) JoinRoom(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "JoinRoom")

	roomID := pathRoomID(r)

	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if msg, ok := validateIdentity(req.SID, req.Username); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	room, err := that.store.GetRoom(roomID)
	if err != nil {
		writeError(w, http.StatusNotFound, "room not found or destroyed")
		return
	}

	if _, ok := room.Session(req.SID); ok {
		writeJSON(w, http.StatusOK, map[string]string{"message": "you are already registered"})
		return
	}

	if _, err = room.Register(req.SID, req.Username); err != nil {
		if errors.Is(err, apperror.ErrRoomFull) {
			writeError(w, http.StatusForbidden, "room can't be joined, it's already full")
			return
		}

		log.Error("failed to register player", "roomID", roomID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to join room")
		return
	}

	that.store.Persist(r.Context(), room)

	writeJSON(w, http.StatusOK, map[string]string{"message": "registration completed, now connect"})
}

func validateIdentity(sid, username string) (string, bool) {
	if sid == "" || len(sid) > 150 {
		return "sid is required and must be at most 150 characters", false
	}
	if len(username) < 2 || len(username) > 20 {
		return "username must be 2-20 characters", false
	}
	return "", true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
