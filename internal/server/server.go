// Package server собирает HTTP-слой DataGate: маршруты, middleware,
// websocket-сессии реплик и фоновую очистку квитанций.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/docsync/internal/server/handlers"
	"github.com/iudanet/docsync/internal/server/middleware"
	"github.com/iudanet/docsync/internal/server/storage"
)

// Config настройки DataGate
type Config struct {
	ListenAddr       string
	Version          string
	JWT              handlers.JWTConfig
	Gate             handlers.GateConfig
	ConnectWindow    time.Duration
	ReceiptRetention time.Duration
	PruneInterval    time.Duration
	ShutdownTimeout  time.Duration
	ConnectRate      int
}

// Server DataGate peer
type Server struct {
	logger  *slog.Logger
	storage storage.FeedStorage
	hub     *handlers.Hub
	limiter *middleware.RateLimiter
	http    *http.Server
	cfg     Config
}

// New создает сервер; Close освобождает фоновые ресурсы
func New(cfg Config, feedStorage storage.FeedStorage, logger *slog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		logger:  logger,
		storage: feedStorage,
		hub:     handlers.NewHub(),
		limiter: middleware.NewRateLimiter(cfg.ConnectRate, cfg.ConnectWindow, logger),
		cfg:     cfg,
	}

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler возвращает корневой http.Handler со всеми маршрутами
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(s.logger, s.storage, s.hub, s.cfg.Version)
	mux.HandleFunc("GET /api/v1/health", health.Health)

	// auth раньше rate limit: лимит считается по replica_id
	gate := handlers.NewGateHandler(s.logger, s.storage, s.hub, s.cfg.Gate)
	mux.Handle("/api/v1/gate", chain(gate,
		middleware.AuthMiddleware(s.logger, s.cfg.JWT),
		middleware.RateLimitMiddleware(s.limiter, s.logger),
	))

	return chain(mux,
		middleware.RecoveryMiddleware(s.logger),
		middleware.LoggingWithSkip(s.logger, []string{"/api/v1/health"}),
	)
}

// chain применяет middleware так, что первый в списке выполняется первым
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Run обслуживает запросы до отмены ctx, затем корректно останавливается
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("DataGate listening", "addr", s.cfg.ListenAddr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	g.Go(func() error {
		s.pruneLoop(gctx)
		return nil
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down DataGate", "sessions", s.hub.Len())

	err := s.http.Shutdown(ctx)
	s.hub.CloseAll()
	s.limiter.Stop()

	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// pruneLoop периодически удаляет старые квитанции.
// Повтор с удаленной квитанцией безопасен: LWW не даст применить старую версию.
func (s *Server) pruneLoop(ctx context.Context) {
	if s.cfg.PruneInterval <= 0 || s.cfg.ReceiptRetention <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PruneReceipts(ctx)
		}
	}
}

// PruneReceipts удаляет квитанции старше ReceiptRetention
func (s *Server) PruneReceipts(ctx context.Context) int64 {
	removed, err := s.storage.PruneReceipts(ctx, time.Now().Add(-s.cfg.ReceiptRetention))
	if err != nil {
		s.logger.Error("Failed to prune receipts", "error", err)
		return 0
	}
	if removed > 0 {
		s.logger.Info("Receipts pruned", "removed", removed)
	}
	return removed
}

// Close освобождает ресурсы сервера, который не запускался через Run
func (s *Server) Close() {
	s.hub.CloseAll()
	s.limiter.Stop()
}
