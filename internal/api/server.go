// Package api provides the bot's operational HTTP server.
package api

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/models"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/oracle"
	"github.com/evaafi/liquidator-bot-v2-pub/internal/ton"
)

// Service interfaces for dependency injection and testing

// TaskStatsSource reports liquidation task counts.
type TaskStatsSource interface {
	CountByState(ctx context.Context) (map[models.TaskState]int64, error)
}

// AccountStatsSource reports tracked account counts.
type AccountStatsSource interface {
	Count(ctx context.Context) (int64, error)
}

// CursorSource reports the indexer's scan position.
type CursorSource interface {
	Cursor(ctx context.Context) (uint64, error)
}

// BalanceSource reports the hot wallet's native balance.
type BalanceSource interface {
	Native(ctx context.Context) (*big.Int, error)
}

// PriceSource exposes the current oracle snapshot.
type PriceSource interface {
	Current() (*oracle.Snapshot, error)
}

// Server represents the operational HTTP server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	tasks      TaskStatsSource
	accounts   AccountStatsSource
	cursor     CursorSource
	balances   BalanceSource
	prices     PriceSource
	wallet     ton.Address
	log        *zap.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates the operational server instance.
func NewServer(
	config *ServerConfig,
	tasks TaskStatsSource,
	accounts AccountStatsSource,
	cursor CursorSource,
	balances BalanceSource,
	prices PriceSource,
	wallet ton.Address,
	log *zap.Logger,
) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		tasks:    tasks,
		accounts: accounts,
		cursor:   cursor,
		balances: balances,
		prices:   prices,
		wallet:   wallet,
		log:      log.Named("api"),
	}

	s.setupRouter(config)

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter(config *ServerConfig) {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("starting operational server", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down operational server")
	return s.httpServer.Shutdown(ctx)
}
