package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridduel/gridduel-backend/internal/config"
	"github.com/gridduel/gridduel-backend/internal/repository"
	"github.com/gridduel/gridduel-backend/internal/repository/storage"
	"github.com/gridduel/gridduel-backend/internal/store"
	"github.com/gridduel/gridduel-backend/transport/rest"
	"github.com/gridduel/gridduel-backend/transport/websocket"
)

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	var roomRepo repository.RoomRepository
	if conf.Redis.Enabled {
		redisStorage, err := storage.New(ctx, conf.Redis.GetRedisAddr())
		if err != nil {
			return fmt.Errorf("could not connect to redis storage: %w", err)
		}

		defer func() {
			if err = redisStorage.Close(); err != nil {
				log.Error("could not close redis storage", "error", err)
			}
		}()

		roomRepo = repository.NewRoomRepository(redisStorage.Connection)
	}

	roomStore := store.New(logger, store.Config{
		GCInterval:   conf.Rooms.GCInterval,
		MaxAge:       conf.Rooms.MaxAge,
		AbandonedAge: conf.Rooms.AbandonedAge,
		WaitingAge:   conf.Rooms.WaitingAge,
	}, roomRepo)

	if err := roomStore.Load(ctx); err != nil {
		return fmt.Errorf("could not restore room snapshots: %w", err)
	}

	socketServer := websocket.New(ctx, logger, roomStore)
	roomStore.StartGC(ctx, func(roomID string) {
		socketServer.AbortRoom(roomID, "room timed out")
	})

	router := rest.NewRouter(rest.NewHandlers(logger, roomStore))
	router.HandleFunc("/ws", socketServer.Handle)

	srv := &http.Server{
		Addr:         ":" + conf.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}

		return nil
	}
}
