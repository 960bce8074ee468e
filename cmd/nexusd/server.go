package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/m-gruen/nexus/internal/metrics"
	"github.com/m-gruen/nexus/internal/middleware"
	"github.com/m-gruen/nexus/internal/models"
	"github.com/m-gruen/nexus/internal/relay"
	"github.com/m-gruen/nexus/internal/service"
	"github.com/m-gruen/nexus/internal/token"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router     *mux.Router
	logger     *logrus.Logger
	msgService service.MessageService
	verifier   token.Verifier
	limiter    *limiterPool
	validator  *requestValidator
	cfg        models.ServerConfig
	server     *http.Server
}

func NewServer(cfg models.ServerConfig, msgService service.MessageService, wsHandler *relay.Handler, verifier token.Verifier, limiter *limiterPool, logger *logrus.Logger) (*Server, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:     mux.NewRouter(),
		logger:     logger,
		msgService: msgService,
		verifier:   verifier,
		limiter:    limiter,
		validator:  validator,
		cfg:        cfg,
	}

	s.setupRoutes(wsHandler)
	return s, nil
}

func (s *Server) setupRoutes(wsHandler *relay.Handler) {
	// Health and metrics stay unauthenticated
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// The relay does its own credential check at handshake time, and the
	// upgrade needs the raw ResponseWriter, so it skips the middleware.
	s.router.Handle("/ws", wsHandler).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Observability(s.logger))
	api.Use(s.authMiddleware)
	api.HandleFunc("/messages", s.handleSend()).Methods(http.MethodPost)
	api.HandleFunc("/messages", s.handleFetch()).Methods(http.MethodGet)
	api.HandleFunc("/messages/ack", s.handleAck()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
