package entity

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gridduel/gridduel-backend/internal/apperror"
	"github.com/gridduel/gridduel-backend/internal/game"
)

const (
	StatusWaiting = "WAITING"
	StatusStarted = "STARTED"
	StatusEnded   = "ENDED"
)

const (
	TurnPolicyRandom   = "random"
	TurnPolicyCreator  = "creator"
	TurnPolicyOpponent = "opponent"
)

const maxSeats = 2

type Scores struct {
	X     int `json:"X"`
	O     int `json:"O"`
	Draws int `json:"D"`
}

// Room is the authoritative state of one game session. Every read and
// mutation goes through its methods; the embedded mutex serializes them,
// so near-simultaneous moves or connects from both players never
// interleave partially. Callers must not send on the network while a
// method is running: take a Snapshot first, then broadcast.
type Room struct {
	mu sync.Mutex

	ID           string             `json:"roomId"`
	BoardSize    int                `json:"boardSize"`
	WinLength    int                `json:"winLength"`
	Board        game.Board         `json:"board"`
	Players      []*Player          `json:"players"`
	Scores       Scores             `json:"scores"`
	Status       string             `json:"status"`
	Turn         string             `json:"turn"`
	StartingTurn string             `json:"startingTurn"`
	Winner       string             `json:"winner,omitempty"`
	WinLine      []game.Coord       `json:"winLine,omitempty"`
	WinDir       game.Direction     `json:"winDir,omitempty"`
	Sessions     map[string]*Player `json:"sessions,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
	LastActive   time.Time          `json:"lastActive"`
}

// NewRoom creates a WAITING room. The starting role is resolved here,
// once: the creator takes seat 0 and therefore plays X, so "creator"
// maps to X, "opponent" to O and "random" is rolled a single time.
// Every game start, including rematches, begins from that stored role.
func NewRoom(id string, boardSize, winLength int, firstTurn string) *Room {
	now := time.Now()

	startingTurn := RoleX
	switch firstTurn {
	case TurnPolicyOpponent:
		startingTurn = RoleO
	case TurnPolicyRandom:
		if rand.Intn(2) == 1 { //nolint:gosec // not a security concern
			startingTurn = RoleO
		}
	}

	return &Room{
		ID:           id,
		BoardSize:    boardSize,
		WinLength:    winLength,
		Board:        game.NewBoard(boardSize),
		Players:      []*Player{},
		Status:       StatusWaiting,
		Turn:         startingTurn,
		StartingTurn: startingTurn,
		Sessions:     make(map[string]*Player),
		CreatedAt:    now,
		LastActive:   now,
	}
}

// Register seats a session in the room. Registering an already-known
// token returns the existing seat unchanged, which is what lets a
// reconnecting client keep its role.
func (that *Room) Register(token, username string) (Player, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if existing, ok := that.Sessions[token]; ok {
		return *existing, nil
	}

	if len(that.Players) == maxSeats {
		return Player{}, apperror.ErrRoomFull
	}

	seat := len(that.Players)
	player := &Player{
		Username: username,
		Role:     roleForSeat(seat),
		Seat:     seat,
	}

	that.Players = append(that.Players, player)
	that.Sessions[token] = player
	that.LastActive = time.Now()

	return *player, nil
}

// Session returns the seat bound to a token, if any.
func (that *Room) Session(token string) (Player, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, ok := that.Sessions[token]
	if !ok {
		return Player{}, false
	}
	return *player, true
}

// MarkOnline flips the session's online flag and reports whether this
// connect completed the second-online-player condition and started the
// game. The check and the start happen under one lock so two
// near-simultaneous connects cannot both observe a WAITING room.
func (that *Room) MarkOnline(token string) (bool, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, ok := that.Sessions[token]
	if !ok {
		return false, apperror.ErrUnknownSession
	}

	player.IsOnline = true
	that.LastActive = time.Now()

	if that.Status == StatusWaiting && that.onlineCountLocked() == maxSeats {
		that.startLocked()
		return true, nil
	}

	return false, nil
}

func (that *Room) MarkOffline(token string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, ok := that.Sessions[token]
	if !ok {
		return apperror.ErrUnknownSession
	}

	player.IsOnline = false
	that.LastActive = time.Now()

	return nil
}

// PlayMove validates and applies one move for the session's seat. All
// checks run before any write: a rejected move leaves the board and the
// turn untouched.
func (that *Room) PlayMove(token string, x, y int) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, ok := that.Sessions[token]
	if !ok {
		return apperror.ErrUnknownSession
	}

	if that.Status != StatusStarted {
		return apperror.ErrGameNotActive
	}

	if x < 0 || y < 0 || x >= that.BoardSize || y >= that.BoardSize {
		return fmt.Errorf("%w: (%d, %d)", apperror.ErrInvalidCell, x, y)
	}

	if that.Board[y][x] != game.EmptyCell {
		return apperror.ErrCellOccupied
	}

	if that.Turn != player.Role {
		return apperror.ErrNotYourTurn
	}

	that.Board[y][x] = that.Turn
	that.Turn = oppositeRole(that.Turn)
	that.evaluateGameOverLocked()
	that.LastActive = time.Now()

	return nil
}

// RequestReplay records the session's consent to a rematch and reports
// whether this was the second consent, i.e. whether the game restarted.
func (that *Room) RequestReplay(token string) (bool, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, ok := that.Sessions[token]
	if !ok {
		return false, apperror.ErrUnknownSession
	}

	if that.Status != StatusEnded {
		return false, apperror.ErrGameNotOver
	}

	player.WantsReplay = true
	that.LastActive = time.Now()

	for _, p := range that.Players {
		if !p.WantsReplay {
			return false, nil
		}
	}

	that.startLocked()
	return true, nil
}

// OnlinePlayers returns copies of the currently connected seats.
func (that *Room) OnlinePlayers() []Player {
	that.mu.Lock()
	defer that.mu.Unlock()

	var online []Player
	for _, p := range that.Players {
		if p.IsOnline {
			online = append(online, *p)
		}
	}
	return online
}

// PlayerByRole returns the seat playing the given role, if seated.
func (that *Room) PlayerByRole(role string) (Player, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for _, p := range that.Players {
		if p.Role == role {
			return *p, true
		}
	}
	return Player{}, false
}

// Snapshot returns a deep copy of the room safe to hand to clients: the
// session-token map is stripped, and nothing in the copy aliases live
// state.
func (that *Room) Snapshot() *Room {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.cloneLocked(false)
}

// PersistState returns a deep copy including the session map, for the
// snapshot store only. It must never be sent to a client.
func (that *Room) PersistState() *Room {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.cloneLocked(true)
}

// Normalize repairs a room restored from a snapshot: players are marked
// offline (connections do not survive a restart) and session entries are
// re-linked to the seat records they duplicated during unmarshalling.
func (that *Room) Normalize() {
	that.mu.Lock()
	defer that.mu.Unlock()

	for _, p := range that.Players {
		p.IsOnline = false
	}

	for token, p := range that.Sessions {
		if p.Seat < 0 || p.Seat >= len(that.Players) {
			delete(that.Sessions, token)
			continue
		}
		that.Sessions[token] = that.Players[p.Seat]
	}
}

// GCInfo reports the fields the garbage collector sweeps on, read under
// the room lock so the online flags are never stale.
func (that *Room) GCInfo() (anyOnline bool, lastActive, createdAt time.Time, status string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for _, p := range that.Players {
		if p.IsOnline {
			anyOnline = true
			break
		}
	}
	return anyOnline, that.LastActive, that.CreatedAt, that.Status
}

func (that *Room) startLocked() {
	that.Status = StatusStarted
	that.Board = game.NewBoard(that.BoardSize)
	that.Winner = ""
	that.WinLine = nil
	that.WinDir = ""
	that.Turn = that.StartingTurn
	for _, p := range that.Players {
		p.WantsReplay = false
	}
	that.LastActive = time.Now()
}

func (that *Room) evaluateGameOverLocked() {
	if win := game.CheckWin(that.Board, that.WinLength); win != nil && win.Player != game.EmptyCell {
		that.Status = StatusEnded
		that.Winner = win.Player
		that.WinLine = win.Line
		that.WinDir = win.Dir
		switch win.Player {
		case RoleX:
			that.Scores.X++
		case RoleO:
			that.Scores.O++
		}
		return
	}

	if game.IsFull(that.Board) {
		that.Status = StatusEnded
		that.Winner = WinnerDraw
		that.Scores.Draws++
	}
}

func (that *Room) onlineCountLocked() int {
	count := 0
	for _, p := range that.Players {
		if p.IsOnline {
			count++
		}
	}
	return count
}

func (that *Room) cloneLocked(withSessions bool) *Room {
	clone := &Room{
		ID:           that.ID,
		BoardSize:    that.BoardSize,
		WinLength:    that.WinLength,
		Board:        game.NewBoard(that.BoardSize),
		Players:      make([]*Player, 0, len(that.Players)),
		Scores:       that.Scores,
		Status:       that.Status,
		Turn:         that.Turn,
		StartingTurn: that.StartingTurn,
		Winner:       that.Winner,
		WinDir:       that.WinDir,
		CreatedAt:    that.CreatedAt,
		LastActive:   that.LastActive,
	}

	for y := range that.Board {
		copy(clone.Board[y], that.Board[y])
	}

	if that.WinLine != nil {
		clone.WinLine = make([]game.Coord, len(that.WinLine))
		copy(clone.WinLine, that.WinLine)
	}

	for _, p := range that.Players {
		player := *p
		clone.Players = append(clone.Players, &player)
	}

	if withSessions {
		clone.Sessions = make(map[string]*Player, len(that.Sessions))
		for token, p := range that.Sessions {
			clone.Sessions[token] = clone.Players[p.Seat]
		}
	}

	return clone
}
