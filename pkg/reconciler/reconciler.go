// Package reconciler keeps a local mirror of a room's board that a
// client may mutate optimistically while the authoritative result is in
// flight. At most one move is pending at a time: the caller either
// confirms it, rolls it back, or overwrites everything with a fresh
// authoritative snapshot.
package reconciler

import (
	"errors"
	"fmt"

	"github.com/gridduel/gridduel-backend/internal/apperror"
	"github.com/gridduel/gridduel-backend/internal/entity"
	"github.com/gridduel/gridduel-backend/internal/game"
)

var ErrMovePending = errors.New("a move is already awaiting confirmation")

type pendingMove struct {
	x, y     int
	prevTurn string
}

// Reconciler mirrors the board and turn of one room. It is not safe for
// concurrent use; drive it from the goroutine that owns the UI.
type Reconciler struct {
	board   game.Board
	turn    string
	pending *pendingMove
}

// New starts from an empty board with the given first turn.
func New(boardSize int, firstTurn string) *Reconciler {
	return &Reconciler{
		board: game.NewBoard(boardSize),
		turn:  firstTurn,
	}
}

// FromState mirrors an authoritative snapshot.
func FromState(state *entity.Room) *Reconciler {
	that := &Reconciler{turn: state.Turn}
	that.adopt(state.Board)

	return that
}

// Board returns a copy of the mirrored board.
func (that *Reconciler) Board() game.Board {
	board := make(game.Board, len(that.board))
	for y, row := range that.board {
		board[y] = append([]string(nil), row...)
	}

	return board
}

func (that *Reconciler) Turn() string { return that.turn }

// HasPending reports whether an optimistic move awaits its verdict.
func (that *Reconciler) HasPending() bool { return that.pending != nil }

// Apply places the current turn's mark optimistically. It runs the same
// validation the server will, so a move rejected here never goes on the
// wire.
func (that *Reconciler) Apply(x, y int) error {
	if that.pending != nil {
		return ErrMovePending
	}

	size := len(that.board)
	if x < 0 || x >= size || y < 0 || y >= size {
		return fmt.Errorf("%w: (%d,%d) out of range for board size %d", apperror.ErrInvalidCell, x, y, size)
	}

	if that.board[y][x] != game.EmptyCell {
		return apperror.ErrCellOccupied
	}

	that.pending = &pendingMove{x: x, y: y, prevTurn: that.turn}
	that.board[y][x] = that.turn
	that.turn = oppositeTurn(that.turn)

	return nil
}

// Confirm settles the pending move: the server accepted it, the mirror
// already shows the right picture.
func (that *Reconciler) Confirm() {
	that.pending = nil
}

// Rollback undoes the pending move, restoring exactly the touched cell
// and the previous turn.
func (that *Reconciler) Rollback() {
	if that.pending == nil {
		return
	}

	that.board[that.pending.y][that.pending.x] = game.EmptyCell
	that.turn = that.pending.prevTurn
	that.pending = nil
}

// Sync replaces the mirror with an authoritative snapshot, discarding
// any pending move.
func (that *Reconciler) Sync(state *entity.Room) {
	that.adopt(state.Board)
	that.turn = state.Turn
	that.pending = nil
}

func (that *Reconciler) adopt(board game.Board) {
	that.board = make(game.Board, len(board))
	for y, row := range board {
		that.board[y] = append([]string(nil), row...)
	}
}

func oppositeTurn(turn string) string {
	if turn == entity.RoleX {
		return entity.RoleO
	}

	return entity.RoleX
}
