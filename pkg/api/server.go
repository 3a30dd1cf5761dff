package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cbodonnell/scribble/pkg/api/handlers"
	"github.com/cbodonnell/scribble/pkg/api/middleware"
	"github.com/cbodonnell/scribble/pkg/game"
	"github.com/cbodonnell/scribble/pkg/log"
	"github.com/cbodonnell/scribble/pkg/network"
	"github.com/cbodonnell/scribble/pkg/repositories"
	"github.com/cbodonnell/scribble/pkg/words"
	"github.com/gorilla/mux"
)

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Addr     string
	TLS      *TLSConfig
	Registry *game.Registry
	WSServer *network.WSServer
	Pool     *words.Pool
	// Repository serves room history; nil disables the history routes.
	Repository    repositories.Repository
	AllowedOrigin string
}

// NewRouter builds the HTTP routes, wrapped in the CORS and logging middleware.
func NewRouter(opts NewAPIServerOptions) http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/create_room", handlers.HandleCreateRoom(opts.Registry)).Methods(http.MethodPost)
	api.HandleFunc("/join_room", handlers.HandleJoinRoom(opts.Registry)).Methods(http.MethodPost)
	api.HandleFunc("/room_exists/{roomID}", handlers.HandleRoomExists(opts.Registry)).Methods(http.MethodGet)
	api.HandleFunc("/categories", handlers.HandleCategories(opts.Pool)).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{roomID}/history", handlers.HandleRoomHistory(opts.Repository)).Methods(http.MethodGet)
	api.HandleFunc("/rounds/{roundID}", handlers.HandleGetRound(opts.Repository)).Methods(http.MethodGet)

	ws := handlers.HandleWebSocket(opts.WSServer)
	router.HandleFunc("/ws/{roomID}/{playerID}", ws)
	// older clients append their display name
	router.HandleFunc("/ws/{roomID}/{playerID}/{playerName}", ws)

	cors := middleware.NewCORSMiddleware(opts.AllowedOrigin)
	logging := middleware.NewLoggingMiddleware()
	return cors(logging(router))
}

// NewAPIServer creates a new http.Server for the API and websocket routes
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	server := &http.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
