package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gridduel/gridduel-backend/internal/apperror"
	"github.com/gridduel/gridduel-backend/internal/entity"
	"github.com/gridduel/gridduel-backend/internal/pkg"
)

// winLengthBySize maps a supported board size to the run length needed
// to win on it.
var winLengthBySize = map[int]int{3: 3, 4: 3, 5: 4, 6: 4}

const defaultBoardSize = 3

// Config holds the garbage-collector thresholds.
type Config struct {
	GCInterval   time.Duration
	MaxAge       time.Duration
	AbandonedAge time.Duration
	WaitingAge   time.Duration
}

type roomRepo interface {
	Save(ctx context.Context, room *entity.Room) error
	GetAll(ctx context.Context) ([]*entity.Room, error)
	DeleteByID(ctx context.Context, id string) error
}

// Store owns the process-wide collection of rooms. Its lock only guards
// the id-to-room map; each room carries its own lock, so a long game in
// one room never blocks lookups or the GC sweep of another.
type Store struct {
	logger *slog.Logger
	conf   Config
	repo   roomRepo // nil when persistence is disabled

	mu    sync.RWMutex
	rooms map[string]*entity.Room
}

func New(logger *slog.Logger, conf Config, repo roomRepo) *Store {
	return &Store{
		logger: logger.With("component", "roomstore"),
		conf:   conf,
		repo:   repo,
		rooms:  make(map[string]*entity.Room),
	}
}

// CreateRoom allocates a fresh WAITING room. An unsupported board size
// falls back to the default rather than failing; the caller validated
// everything a user can get wrong.
func (that *Store) CreateRoom(ctx context.Context, boardSize int, firstTurn string) (*entity.Room, error) {
	winLength, ok := winLengthBySize[boardSize]
	if !ok {
		boardSize = defaultBoardSize
		winLength = winLengthBySize[defaultBoardSize]
	}

	id, err := pkg.GenerateRoomID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate room id: %w", err)
	}

	room := entity.NewRoom(id, boardSize, winLength, firstTurn)

	that.mu.Lock()
	that.rooms[id] = room
	that.mu.Unlock()

	that.Persist(ctx, room)

	that.logger.Info("room created", "roomID", id, "boardSize", boardSize, "firstTurn", firstTurn)

	return room, nil
}

func (that *Store) GetRoom(id string) (*entity.Room, error) {
	that.mu.RLock()
	room, ok := that.rooms[id]
	that.mu.RUnlock()

	if !ok {
		return nil, apperror.ErrRoomNotFound
	}

	return room, nil
}

func (that *Store) DestroyRoom(ctx context.Context, id string) {
	that.mu.Lock()
	delete(that.rooms, id)
	that.mu.Unlock()

	if that.repo != nil {
		if err := that.repo.DeleteByID(ctx, id); err != nil {
			that.logger.Error("failed to delete room snapshot", "roomID", id, "error", err)
		}
	}
}

// Persist writes a best-effort snapshot of the room. Failures are logged
// and swallowed: the in-memory state stays authoritative.
func (that *Store) Persist(ctx context.Context, room *entity.Room) {
	if that.repo == nil {
		return
	}

	if err := that.repo.Save(ctx, room.PersistState()); err != nil {
		that.logger.Error("failed to persist room snapshot", "roomID", room.ID, "error", err)
	}
}

// Load restores all persisted rooms. Restored players start offline and
// have to reconnect, so a restart looks like a mass disconnect to them.
func (that *Store) Load(ctx context.Context) error {
	if that.repo == nil {
		return nil
	}

	rooms, err := that.repo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load room snapshots: %w", err)
	}

	that.mu.Lock()
	for _, room := range rooms {
		room.Normalize()
		that.rooms[room.ID] = room
	}
	that.mu.Unlock()

	that.logger.Info("restored rooms from snapshots", "count", len(rooms))

	return nil
}

// StartGC runs the sweep on a fixed interval until ctx is cancelled.
// onEvict is called once per destroyed room after it left the map, so
// the transport layer can abort remaining connections; the store itself
// knows nothing about transports.
func (that *Store) StartGC(ctx context.Context, onEvict func(roomID string)) {
	go func() {
		ticker := time.NewTicker(that.conf.GCInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				that.Sweep(ctx, onEvict)
			}
		}
	}()
}

// Sweep applies the three eviction rules to every room: abandoned and
// idle too long, older than the absolute lifetime cap, or never started
// and idle past the shorter waiting threshold.
func (that *Store) Sweep(ctx context.Context, onEvict func(roomID string)) {
	that.mu.RLock()
	candidates := make([]*entity.Room, 0, len(that.rooms))
	for _, room := range that.rooms {
		candidates = append(candidates, room)
	}
	that.mu.RUnlock()

	now := time.Now()

	for _, room := range candidates {
		anyOnline, lastActive, createdAt, status := room.GCInfo()
		idle := now.Sub(lastActive)

		expired := (!anyOnline && idle > that.conf.AbandonedAge) ||
			now.Sub(createdAt) > that.conf.MaxAge ||
			(!anyOnline && status == entity.StatusWaiting && idle > that.conf.WaitingAge)

		if !expired {
			continue
		}

		that.DestroyRoom(ctx, room.ID)
		that.logger.Info("room expired", "roomID", room.ID, "status", status, "idle", idle)

		if onEvict != nil {
			onEvict(room.ID)
		}
	}
}
