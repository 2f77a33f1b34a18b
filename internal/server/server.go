/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the engine together: database, event bus, station
// workers, audit trail, operator API, and the metrics listener.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/gjallar/internal/api"
	"github.com/friendsincode/gjallar/internal/audit"
	"github.com/friendsincode/gjallar/internal/config"
	"github.com/friendsincode/gjallar/internal/db"
	"github.com/friendsincode/gjallar/internal/eventbus"
	"github.com/friendsincode/gjallar/internal/station"
	"github.com/friendsincode/gjallar/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger

	db       *gorm.DB
	bus      eventbus.Bus
	manager  *station.Manager
	auditSvc *audit.Service
	api      *api.API

	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New builds the server from configuration. Nothing runs until Start.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	bus, err := newBus(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("event bus: %w", err)
	}

	manager := station.NewManager(database, cfg, bus, logger)
	auditSvc := audit.NewService(database, bus, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(60 * time.Second))

	apiHandler := api.New(database, []byte(cfg.JWTSigningKey), manager, auditSvc, logger)
	apiHandler.Routes(router)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", telemetry.Handler())

	srv := &Server{
		cfg:      cfg,
		logger:   logger.With().Str("component", "server").Logger(),
		db:       database,
		bus:      bus,
		manager:  manager,
		auditSvc: auditSvc,
		api:      apiHandler,
		router:   router,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		metricsServer: &http.Server{
			Addr:        cfg.MetricsBind,
			Handler:     metricsMux,
			ReadTimeout: 15 * time.Second,
		},
	}
	return srv, nil
}

func newBus(cfg *config.Config, logger zerolog.Logger) (eventbus.Bus, error) {
	switch cfg.EventBus {
	case config.EventBusRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		return eventbus.NewRedisBus(redisCfg, cfg.InstanceID, logger)

	case config.EventBusNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		return eventbus.NewNATSBus(natsCfg, cfg.InstanceID, logger)

	default:
		return eventbus.NewMemoryBus(), nil
	}
}

// Start launches the background services: station workers and the audit
// subscriber. HTTP listeners are started by the caller via HTTPServer and
// MetricsServer.
func (s *Server) Start(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(ctx)
	s.bgCancel = cancel

	if err := s.manager.Start(bgCtx); err != nil {
		cancel()
		return fmt.Errorf("start stations: %w", err)
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.auditSvc.Start(bgCtx)
	}()

	s.logger.Info().Msg("background services started")
	return nil
}

// HTTPServer returns the API listener.
func (s *Server) HTTPServer() *http.Server { return s.httpServer }

// MetricsServer returns the Prometheus listener.
func (s *Server) MetricsServer() *http.Server { return s.metricsServer }

// Close stops background services and releases resources.
func (s *Server) Close() error {
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.manager.Stop()
	s.bgWG.Wait()

	if err := s.bus.Close(); err != nil {
		s.logger.Error().Err(err).Msg("event bus close failed")
	}
	return db.Close(s.db)
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")
		next.ServeHTTP(w, r)
	})
}
