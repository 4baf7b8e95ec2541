package entity

const (
	RoleX = "X"
	RoleO = "O"

	// WinnerDraw is used in Room.Winner and as the draw counter key.
	WinnerDraw = "D"
)

// Player is one of the two seats of a room. Seat 0 belongs to the room
// creator and always plays X; seat 1 plays O.
type Player struct {
	Username    string `json:"username"`
	Role        string `json:"role"`
	IsOnline    bool   `json:"isOnline"`
	WantsReplay bool   `json:"wantedToReplay,omitempty"`
	Seat        int    `json:"seat"`
}

func roleForSeat(seat int) string {
	if seat == 0 {
		return RoleX
	}
	return RoleO
}

func oppositeRole(role string) string {
	if role == RoleX {
		return RoleO
	}
	return RoleX
}
