package server

import (
	"context"
	"net/http"
	"time"

	"AuraFM/core/directory"
	"AuraFM/core/player"
	"AuraFM/logger"

	"github.com/gorilla/mux"
)

// New builds the HTTP facade server.
func New(addr string, dir *directory.Directory, playback *player.Session) *http.Server {
	h := NewAPIHandler(dir, playback)

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", h.StatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/featured", h.FeaturedHandler).Methods(http.MethodGet)
	api.HandleFunc("/broadcasts/latest", h.LatestHandler).Methods(http.MethodGet)
	api.HandleFunc("/channel/live", h.LiveChannelHandler).Methods(http.MethodGet)
	api.HandleFunc("/programs", h.ProgramsHandler).Methods(http.MethodGet)
	api.HandleFunc("/player/state", h.PlayerStateHandler).Methods(http.MethodGet)
	api.HandleFunc("/player/play", h.PlayHandler).Methods(http.MethodPost)
	api.HandleFunc("/player/pause", h.PauseHandler).Methods(http.MethodPost)
	api.HandleFunc("/player/seek", h.SeekHandler).Methods(http.MethodPost)

	return &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http facade listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
