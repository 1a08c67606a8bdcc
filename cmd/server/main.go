// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/kwadwoansah/spar/internal/auth"
	"github.com/kwadwoansah/spar/internal/config"
	"github.com/kwadwoansah/spar/internal/database"
	"github.com/kwadwoansah/spar/internal/game"
	"github.com/kwadwoansah/spar/internal/handlers"
	"github.com/kwadwoansah/spar/internal/middleware"
	"github.com/kwadwoansah/spar/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	if err := auth.Init(cfg.TokenExpiry); err != nil {
		log.Fatalf("auth init: %v", err)
	}

	ctx := context.Background()

	var (
		roomStore store.RoomStore
		chatStore store.ChatStore
	)
	if cfg.RedisAddr != "" {
		rs, err := store.NewRedisStore(cfg.RedisAddr, cfg.RedisDB, logger)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		roomStore, chatStore = rs, rs
		logger.Infof("using redis room store at %s", cfg.RedisAddr)
	} else {
		ms := store.NewMemoryStore()
		roomStore, chatStore = ms, ms
		logger.Info("using in-memory room store")
	}

	if cfg.DatabaseURL != "" {
		if err := database.Connect(ctx, cfg.DatabaseURL); err != nil {
			log.Fatalf("database: %v", err)
		}
		if err := database.Migrate(ctx); err != nil {
			log.Fatalf("database: %v", err)
		}
		logger.Info("match history persistence enabled")
	}

	rooms := game.NewManager(roomStore, logger)
	rooms.RoundDelay = cfg.RoundDelay
	rooms.DefaultTargetScore = cfg.DefaultTargetScore

	rs := handlers.NewRoomServer(rooms, roomStore, chatStore, logger)

	logged := middleware.LogMiddleware(logger)
	mux := http.NewServeMux()
	mux.Handle("/room/create", logged(http.HandlerFunc(rs.CreateRoomHandler)))
	mux.Handle("/room/state/", logged(http.HandlerFunc(rs.RoomStateHandler)))
	mux.Handle("/room/ws/", logged(http.HandlerFunc(rs.RoomWSHandler)))

	logger.Infof("Running on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
