package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridduel/gridduel-backend/internal/apperror"
	"github.com/gridduel/gridduel-backend/internal/entity"
	"github.com/gridduel/gridduel-backend/internal/repository"
)

func TestStore_CreateRoom(t *testing.T) {
	t.Run("Supported sizes get their win length", func(t *testing.T) {
		// Given: a store without persistence
		st := newTestStore(longConfig())

		cases := map[int]int{3: 3, 4: 3, 5: 4, 6: 4}

		for boardSize, winLength := range cases {
			// When: creating a room of each supported size
			room, err := st.CreateRoom(context.Background(), boardSize, entity.TurnPolicyCreator)

			// Then: the board and the win length match the size
			require.NoError(t, err)
			assert.Equal(t, boardSize, room.BoardSize)
			assert.Equal(t, winLength, room.WinLength)
			assert.Len(t, room.Board, boardSize)
		}
	})

	t.Run("Unsupported size falls back to the default", func(t *testing.T) {
		st := newTestStore(longConfig())

		room, err := st.CreateRoom(context.Background(), 17, entity.TurnPolicyCreator)

		require.NoError(t, err)
		assert.Equal(t, 3, room.BoardSize)
		assert.Equal(t, 3, room.WinLength)
	})

	t.Run("Created rooms get distinct ids", func(t *testing.T) {
		st := newTestStore(longConfig())

		first, err := st.CreateRoom(context.Background(), 3, entity.TurnPolicyCreator)
		require.NoError(t, err)
		second, err := st.CreateRoom(context.Background(), 3, entity.TurnPolicyCreator)
		require.NoError(t, err)

		assert.NotEqual(t, first.ID, second.ID)
	})
}

func TestStore_GetRoom(t *testing.T) {
	t.Run("Unknown id returns ErrRoomNotFound", func(t *testing.T) {
		st := newTestStore(longConfig())

		_, err := st.GetRoom("missing")

		assert.ErrorIs(t, err, apperror.ErrRoomNotFound)
	})

	t.Run("Created room is retrievable", func(t *testing.T) {
		st := newTestStore(longConfig())

		created, err := st.CreateRoom(context.Background(), 3, entity.TurnPolicyCreator)
		require.NoError(t, err)

		got, err := st.GetRoom(created.ID)

		require.NoError(t, err)
		assert.Same(t, created, got)
	})
}

func TestStore_Sweep(t *testing.T) {
	t.Run("Waiting room idle past the waiting threshold is evicted", func(t *testing.T) {
		// Given: a waiting room nobody connected to, with a tiny waiting age
		conf := longConfig()
		conf.WaitingAge = 10 * time.Millisecond
		st := newTestStore(conf)

		room, err := st.CreateRoom(context.Background(), 3, entity.TurnPolicyCreator)
		require.NoError(t, err)

		time.Sleep(30 * time.Millisecond)

		// When: sweeping
		var evicted []string
		st.Sweep(context.Background(), func(roomID string) {
			evicted = append(evicted, roomID)
		})

		// Then: the room is gone and the eviction callback fired
		_, err = st.GetRoom(room.ID)
		assert.ErrorIs(t, err, apperror.ErrRoomNotFound)
		assert.Equal(t, []string{room.ID}, evicted)
	})

	t.Run("Abandoned started room is evicted after the abandoned threshold", func(t *testing.T) {
		// Given: a started game both players walked away from
		conf := longConfig()
		conf.AbandonedAge = 10 * time.Millisecond
		st := newTestStore(conf)

		room := startedRoom(t, st)
		require.NoError(t, room.MarkOffline("token-a"))
		require.NoError(t, room.MarkOffline("token-b"))

		time.Sleep(30 * time.Millisecond)

		// When: sweeping
		st.Sweep(context.Background(), nil)

		// Then: the room is gone
		_, err := st.GetRoom(room.ID)
		assert.ErrorIs(t, err, apperror.ErrRoomNotFound)
	})

	t.Run("Started room with a player online survives idleness", func(t *testing.T) {
		// Given: a started game idle past both idle thresholds, one player
		// still connected
		conf := longConfig()
		conf.AbandonedAge = 10 * time.Millisecond
		conf.WaitingAge = 10 * time.Millisecond
		st := newTestStore(conf)

		room := startedRoom(t, st)
		require.NoError(t, room.MarkOffline("token-b"))

		time.Sleep(30 * time.Millisecond)

		// When: sweeping
		st.Sweep(context.Background(), nil)

		// Then: the room survives because someone is online
		_, err := st.GetRoom(room.ID)
		assert.NoError(t, err)
	})

	t.Run("Absolute lifetime cap evicts even an online room", func(t *testing.T) {
		// Given: an online game older than the lifetime cap
		conf := longConfig()
		conf.MaxAge = 10 * time.Millisecond
		st := newTestStore(conf)

		room := startedRoom(t, st)

		time.Sleep(30 * time.Millisecond)

		// When: sweeping
		st.Sweep(context.Background(), nil)

		// Then: the room is gone regardless of the online player
		_, err := st.GetRoom(room.ID)
		assert.ErrorIs(t, err, apperror.ErrRoomNotFound)
	})
}

func TestStore_Persistence(t *testing.T) {
	t.Run("Rooms survive a restart and keep their sessions", func(t *testing.T) {
		// Given: a store backed by redis, holding a started game
		mr := miniredis.RunT(t)
		repo := repository.NewRoomRepository(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		ctx := context.Background()

		st := newTestStoreWithRepo(longConfig(), repo)
		room := startedRoom(t, st)
		require.NoError(t, room.PlayMove("token-a", 0, 0))
		st.Persist(ctx, room)

		// When: a fresh store loads the snapshots
		restartedStore := newTestStoreWithRepo(longConfig(), repo)
		require.NoError(t, restartedStore.Load(ctx))

		// Then: the room is back, players are offline, and the old session
		// token still opens its seat
		restored, err := restartedStore.GetRoom(room.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusStarted, restored.Status)
		assert.Equal(t, entity.RoleX, restored.Board[0][0])
		assert.Empty(t, restored.OnlinePlayers())

		player, ok := restored.Session("token-a")
		require.True(t, ok)
		assert.Equal(t, entity.RoleX, player.Role)
	})

	t.Run("Destroying a room removes its snapshot", func(t *testing.T) {
		// Given: a persisted room
		mr := miniredis.RunT(t)
		repo := repository.NewRoomRepository(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		ctx := context.Background()

		st := newTestStoreWithRepo(longConfig(), repo)
		room, err := st.CreateRoom(ctx, 3, entity.TurnPolicyCreator)
		require.NoError(t, err)

		// When: destroying it and loading into a fresh store
		st.DestroyRoom(ctx, room.ID)

		restartedStore := newTestStoreWithRepo(longConfig(), repo)
		require.NoError(t, restartedStore.Load(ctx))

		// Then: nothing comes back
		_, err = restartedStore.GetRoom(room.ID)
		assert.ErrorIs(t, err, apperror.ErrRoomNotFound)
	})
}

func newTestStore(conf Config) *Store {
	return newTestStoreWithRepo(conf, nil)
}

func newTestStoreWithRepo(conf Config, repo roomRepo) *Store {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, conf, repo)
}

// longConfig keeps every GC threshold far away so tests tighten only
// the rule under test.
func longConfig() Config {
	return Config{
		GCInterval:   time.Hour,
		MaxAge:       time.Hour,
		AbandonedAge: time.Hour,
		WaitingAge:   time.Hour,
	}
}

func startedRoom(t *testing.T, st *Store) *entity.Room {
	t.Helper()

	room, err := st.CreateRoom(context.Background(), 3, entity.TurnPolicyCreator)
	require.NoError(t, err)

	_, err = room.Register("token-a", "alice")
	require.NoError(t, err)
	_, err = room.Register("token-b", "bob")
	require.NoError(t, err)

	_, err = room.MarkOnline("token-a")
	require.NoError(t, err)
	started, err := room.MarkOnline("token-b")
	require.NoError(t, err)
	require.True(t, started)

	return room
}
