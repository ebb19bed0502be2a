package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/playhall/game-room-gateway/internal/config"
	"github.com/playhall/game-room-gateway/internal/database"
	"github.com/playhall/game-room-gateway/internal/gateway"
	"github.com/playhall/game-room-gateway/internal/stats"
)

type GameRoomApp struct {
	log            *log.Logger
	db             database.GameRoomRepository
	mux            *http.Server
	gw             *gateway.GatewayServer
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
}

func NewGameRoomApp(mux *http.ServeMux, logger *log.Logger, gw *gateway.GatewayServer,
	db database.GameRoomRepository, su stats.StatsProvider, cfg *config.Config) *GameRoomApp {
	s := &GameRoomApp{
		log:            logger,
		db:             db,
		gw:             gw,
		stats:          su,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("GET /api/rooms", s.listRooms)
	mux.HandleFunc("GET /api/sessions/current", s.currentSession)
	mux.HandleFunc("GET /game-rooms", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *GameRoomApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *GameRoomApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.log.Println("server shutdown complete")
	return nil
}
