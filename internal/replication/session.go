package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iudanet/docsync/pkg/api"
)

// SessionConfig интервалы фоновых циклов сессии
type SessionConfig struct {
	PushInterval  time.Duration
	SweepInterval time.Duration
}

// Session одно подключение коллекции к DataGate.
// Журнал доставки принадлежит коллекции и переживает сессию.
type Session struct {
	transport  Transport
	collection *ReplicatedCollection
	dispatcher *Dispatcher
	logger     *slog.Logger
	cfg        SessionConfig
}

// NewSession создает сессию со стандартным набором обработчиков
func NewSession(cfg SessionConfig, rc *ReplicatedCollection, t Transport, logger *slog.Logger) *Session {
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}

	logger = logger.With("collection", rc.Name())

	return &Session{
		transport:  t,
		collection: rc,
		dispatcher: NewCollectionDispatcher(rc, logger),
		logger:     logger,
		cfg:        cfg,
	}
}

// Dispatcher возвращает диспетчер сессии для регистрации дополнительных обработчиков
func (s *Session) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Run обслуживает сессию до отмены ctx или ошибки транспорта.
// Отмена ctx не считается ошибкой, незакрытые записи журнала остаются.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.receiveLoop(gctx)
	})
	g.Go(func() error {
		return s.tick(gctx, s.cfg.PushInterval, s.push)
	})
	g.Go(func() error {
		return s.tick(gctx, s.cfg.SweepInterval, s.sweep)
	})

	err := g.Wait()
	if ctx.Err() != nil {
		s.logger.Info("Session stopped", "pending", s.collection.Ledger().Len())
		return nil
	}
	return err
}

// SyncOnce выполняет один цикл отправки и повторов без приема сообщений
func (s *Session) SyncOnce(ctx context.Context) (pushed, resent int, err error) {
	pushed, err = s.collection.Push(ctx, s.transport)
	if err != nil {
		return 0, 0, err
	}
	resent, err = s.collection.Sweep(ctx, s.transport)
	return pushed, resent, err
}

func (s *Session) receiveLoop(ctx context.Context) error {
	for {
		env, err := s.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to receive message: %w", err)
		}

		if err := s.HandleEnvelope(ctx, env); err != nil {
			return err
		}
	}
}

// HandleEnvelope обрабатывает одно входящее сообщение и отправляет ответ.
// Ошибкой считается только сбой отправки ответа: плохое сообщение
// логируется и пропускается.
func (s *Session) HandleEnvelope(ctx context.Context, env *api.Envelope) error {
	if env.Collection != s.collection.Name() {
		s.logger.Warn("Message for another collection ignored",
			"type", env.Type,
			"got_collection", env.Collection)
		return nil
	}

	reply, err := s.dispatcher.Dispatch(ctx, env)
	if err != nil {
		if errors.Is(err, ErrUnknownMessage) {
			s.logger.Warn("Unknown message ignored", "type", env.Type)
		} else {
			s.logger.Error("Failed to handle message", "type", env.Type, "error", err)
		}
		return nil
	}

	if reply == nil {
		return nil
	}

	if err := s.transport.Send(ctx, reply); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

func (s *Session) push(ctx context.Context) {
	if _, err := s.collection.Push(ctx, s.transport); err != nil && ctx.Err() == nil {
		s.logger.Warn("Push failed, entries stay pending", "error", err)
	}
}

func (s *Session) sweep(ctx context.Context) {
	if _, err := s.collection.Sweep(ctx, s.transport); err != nil && ctx.Err() == nil {
		s.logger.Warn("Sweep failed", "error", err)
	}
}

func (s *Session) tick(ctx context.Context, interval time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}
