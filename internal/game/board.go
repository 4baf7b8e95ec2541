package game

// Board is a square grid of cells; a cell holds a player mark or EmptyCell.
// Board[y][x] addresses column x of row y.
type Board [][]string

const EmptyCell = ""

// Direction tags the orientation of a winning run.
type Direction string

const (
	DirHorizontal Direction = "H"
	DirVertical   Direction = "V"
	DirDownRight  Direction = "DR"
	DirDownLeft   Direction = "DL"
)

// Coord is a single cell position.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// WinResult describes a completed run: who owns it, its orientation and
// the cells it crosses, ordered in scan order.
type WinResult struct {
	Player string    `json:"player"`
	Dir    Direction `json:"dir"`
	Line   []Coord   `json:"line"`
}

// NewBoard returns an empty size×size board.
func NewBoard(size int) Board {
	board := make(Board, size)
	for y := range board {
		board[y] = make([]string, size)
	}
	return board
}

// CheckWin brute-force scans the board for runLength consecutive equal
// non-empty cells. The scan order is fixed: for each index i, column i
// top-to-bottom, then row i left-to-right, then the down-right and
// down-left diagonals starting from (i, j) for every j. The first run
// found in that order is the one reported, which makes the result
// deterministic even on boards holding more than one completed run.
func CheckWin(board Board, runLength int) *WinResult {
	for i := 0; i < len(board); i++ {
		if line := searchRun(board, i, 0, 0, 1, runLength); line != nil {
			return winAt(board, DirVertical, line)
		}

		if line := searchRun(board, 0, i, 1, 0, runLength); line != nil {
			return winAt(board, DirHorizontal, line)
		}

		for j := 0; j < len(board); j++ {
			if line := searchRun(board, i, j, 1, 1, runLength); line != nil {
				return winAt(board, DirDownRight, line)
			}

			if line := searchRun(board, i, j, -1, 1, runLength); line != nil {
				return winAt(board, DirDownLeft, line)
			}
		}
	}

	return nil
}

// searchRun walks from (x, y) along (dx, dy) collecting the current run of
// consecutive equal non-empty cells, and stops as soon as the run reaches
// runLength.
func searchRun(board Board, x, y, dx, dy, runLength int) []Coord {
	var path []Coord
	prev := ""
	started := false

	for x >= 0 && y >= 0 && x < len(board) && y < len(board) {
		curr := board[y][x]
		if started && curr != prev {
			path = []Coord{{X: x, Y: y}}
		} else if curr != EmptyCell {
			path = append(path, Coord{X: x, Y: y})
		}

		prev = curr
		started = true
		x += dx
		y += dy

		if len(path) >= runLength {
			return path
		}
	}

	return nil
}

func winAt(board Board, dir Direction, line []Coord) *WinResult {
	return &WinResult{
		Player: board[line[0].Y][line[0].X],
		Dir:    dir,
		Line:   line,
	}
}

// IsFull reports whether no empty cell is left.
func IsFull(board Board) bool {
	for _, row := range board {
		for _, cell := range row {
			if cell == EmptyCell {
				return false
			}
		}
	}
	return true
}
