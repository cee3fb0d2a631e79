// Package rest implements the status/control HTTP API (C10): a thin
// decode-call-encode layer over a device.Device session, for non-CLI
// callers.
package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dcnick3/xoss-sync/pkg/api/middleware"
	"github.com/dcnick3/xoss-sync/pkg/core"
	"github.com/dcnick3/xoss-sync/pkg/xoss/device"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the REST status/control API server.
type Server struct {
	dev    *device.Device
	config ServerConfig
	auth   core.AuthConfig
	srv    *http.Server
	log    *slog.Logger
}

// ServerConfig holds API server configuration.
type ServerConfig struct {
	Port int
}

// NewServer creates a new REST API server wrapping an already-open
// device session.
func NewServer(dev *device.Device, config ServerConfig, auth core.AuthConfig, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{dev: dev, config: config, auth: auth, log: log}
}

// Start starts the API server in the background.
func (s *Server) Start() error {
	r := mux.NewRouter()
	s.registerRoutes(r)

	if s.auth.Enabled {
		var keys []string
		for _, u := range s.auth.Users {
			keys = append(keys, u.Key)
		}
		auth := middleware.NewAPIKeyAuth(keys, s.auth.JWTSecret)
		r.Use(auth.Handler)
		s.log.Info("API authentication enabled")
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	if s.config.Port == 0 {
		addr = ":8080"
	}

	s.srv = &http.Server{
		Addr:    addr,
		Handler: r,
	}

	s.log.Info("API server listening", "addr", addr)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the API server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) registerRoutes(r *mux.Router) {
	v1 := r.PathPrefix("/api/v1").Subrouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/api/v1/login", s.handleLogin).Methods("POST")

	v1.HandleFunc("/status", s.handleStatus).Methods("GET")
	v1.HandleFunc("/operations/capacity", s.handleCapacity).Methods("GET")
	v1.HandleFunc("/operations/mga", s.handleMGA).Methods("GET")
	v1.HandleFunc("/operations/time", s.handleSetTime).Methods("POST")
	v1.HandleFunc("/operations/files/{name}", s.handleWriteFile).Methods("POST")
	v1.HandleFunc("/operations/files/{name}", s.handleReadFile).Methods("GET")
	v1.HandleFunc("/operations/files/{name}", s.handleDeleteFile).Methods("DELETE")
}
