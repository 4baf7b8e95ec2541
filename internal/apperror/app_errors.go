package apperror

import "errors"

var (
	ErrRoomFull       = errors.New("room is already full")
	ErrRoomNotFound   = errors.New("room not found")
	ErrUnknownSession = errors.New("session is not registered in this room")
	ErrNotYourTurn    = errors.New("it's not your turn")
	ErrCellOccupied   = errors.New("cell is already occupied")
	ErrGameNotActive  = errors.New("game is not active")
	ErrGameNotOver    = errors.New("game is not over yet")
	ErrInvalidCell    = errors.New("invalid cell coordinates")
)
