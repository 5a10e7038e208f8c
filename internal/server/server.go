// Package server assembles the reference sync backend: a gorilla/mux router
// over the in-memory store, with JWT bearer auth on the record routes.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/clipdeck/clipdeck/internal/logging"
	"github.com/clipdeck/clipdeck/internal/server/config"
	"github.com/clipdeck/clipdeck/internal/server/handler"
	"github.com/clipdeck/clipdeck/internal/server/middleware"
	"github.com/clipdeck/clipdeck/internal/server/storage"
)

const shutdownTimeout = 5 * time.Second

// NewRouter wires the API routes. Ping and the auth endpoints are public;
// everything else requires a bearer token.
func NewRouter(cfg *config.Config, store *storage.Memory, log logging.Logger) *mux.Router {
	records := handler.NewRecordsHandler(store, log)
	authH := handler.NewAuthHandler(cfg)
	ents := handler.NewEntitlementsHandler(cfg)

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/ping", records.Ping).Methods(http.MethodGet)
	api.HandleFunc("/auth/login", authH.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", authH.Refresh).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.Auth(cfg.JWT.Secret))
	protected.HandleFunc("/records/{id}", records.Upsert).Methods(http.MethodPost)
	protected.HandleFunc("/records/{id}", records.Delete).Methods(http.MethodDelete)
	protected.HandleFunc("/entitlements", ents.Get).Methods(http.MethodGet)

	return r
}

// Server is the HTTP frontend of the backend process.
type Server struct {
	log  logging.Logger
	http *http.Server
}

func New(cfg *config.Config, store *storage.Memory, log logging.Logger) *Server {
	return &Server{
		log: log,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           NewRouter(cfg, store, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	s.log.Info(ctx, "server listening", "addr", s.http.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
