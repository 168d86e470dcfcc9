package main

import (
	"database/sql"
	"log/slog"
	"net/http"
)

// Server wires the API handlers around a Bot.
type Server struct {
	cm        *ConfigManager
	db        *sql.DB
	logger    *slog.Logger
	bot       *Bot
	authAPI   *AuthAPI
	botAPI    *BotAPI
	statsAPI  *StatsAPI
	serverAPI *ServerAPI
	apiMux    *http.ServeMux
}

// NewServer creates the server and registers every route on its mux.
func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, bot *Bot, actionChan chan string) *Server {
	server := &Server{
		cm:        cm,
		db:        db,
		logger:    logger,
		bot:       bot,
		authAPI:   NewAuthAPI(db, logger),
		botAPI:    NewBotAPI(bot, logger),
		statsAPI:  NewStatsAPI(bot, logger),
		serverAPI: NewServerAPI(cm, actionChan, logger),
		apiMux:    http.NewServeMux(),
	}

	apiMux := http.NewServeMux()

	server.authAPI.RegisterRoutes(apiMux)
	server.botAPI.RegisterRoutes(apiMux)
	server.statsAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Every api route passes through authentication first
	authedAPI := server.authAPI.Authenticate(apiMux)
	// ... except for the health check, which is unauthed so something like docker can use it
	server.apiMux.HandleFunc("/api/health", server.serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", authedAPI)

	return server
}

// ServeHTTP makes the Server usable as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.apiMux.ServeHTTP(w, r)
}
