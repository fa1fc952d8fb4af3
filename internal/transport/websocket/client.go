// Package websocket реализует транспорт репликатора до DataGate поверх
// gorilla/websocket: один текстовый кадр на конверт протокола.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	ws "github.com/gorilla/websocket"
	"github.com/sony/gobreaker"

	"github.com/iudanet/docsync/internal/replication"
	"github.com/iudanet/docsync/pkg/api"
)

// GatePath путь websocket-эндпоинта DataGate
const GatePath = "/api/v1/gate"

var (
	// ErrClosed transport is closed
	ErrClosed = errors.New("transport is closed")

	// ErrUnauthorized DataGate rejected the token
	ErrUnauthorized = errors.New("unauthorized")
)

// Config параметры подключения
type Config struct {
	ServerURL    string        // базовый адрес DataGate, http(s) или ws(s)
	Collection   string        // имя коллекции
	Token        string        // JWT для заголовка Authorization
	Since        int64         // последняя примененная позиция DataGate
	DialTimeout  time.Duration // сколько пытаться подключиться
	WriteTimeout time.Duration // дедлайн записи одного кадра

	// BreakerFailures подряд идущих ошибок отправки размыкают цепь
	BreakerFailures uint32
	// BreakerTimeout сколько цепь остается разомкнутой
	BreakerTimeout time.Duration
}

type frame struct {
	err error
	env *api.Envelope
}

// Client websocket-соединение с DataGate
type Client struct {
	conn    *ws.Conn
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	frames  chan frame
	done    chan struct{}
	readers sync.WaitGroup
	cfg     Config

	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ replication.Transport = (*Client)(nil)

// GateURL строит адрес websocket-эндпоинта для коллекции
func GateURL(serverURL, collection string, since int64) (string, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}

	u.Path += GatePath
	q := url.Values{}
	q.Set("collection", collection)
	q.Set("since", strconv.FormatInt(since, 10))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Dial подключается к DataGate, повторяя попытки с экспоненциальной паузой
// в пределах DialTimeout. Отказ в авторизации не повторяется.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	target, err := GateURL(cfg.ServerURL, cfg.Collection, cfg.Since)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = cfg.DialTimeout

	var conn *ws.Conn
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		c, resp, err := ws.DefaultDialer.DialContext(ctx, target, header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return backoff.Permanent(ErrUnauthorized)
			}
			logger.Warn("DataGate dial failed", "attempt", attempt, "error", err)
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.ServerURL, err)
	}

	logger.Info("Connected to DataGate", "collection", cfg.Collection, "since", cfg.Since)
	return newClient(conn, cfg, logger), nil
}

func newClient(conn *ws.Conn, cfg Config, logger *slog.Logger) *Client {
	c := &Client{
		conn:   conn,
		logger: logger,
		frames: make(chan frame),
		done:   make(chan struct{}),
		cfg:    cfg,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "datagate-send",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	c.readers.Add(1)
	go c.readLoop()

	return c
}

// Send отправляет конверт одним текстовым кадром.
// Безопасен для вызова из нескольких горутин.
func (c *Client) Send(ctx context.Context, env *api.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.write(ctx, data)
	})
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", env.Type, err)
	}
	return nil
}

func (c *Client) write(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(ws.TextMessage, data)
}

// Receive возвращает следующий корректный конверт.
// Битые кадры отбрасываются здесь и до обработчиков не доходят.
func (c *Client) Receive(ctx context.Context) (*api.Envelope, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	case f := <-c.frames:
		return f.env, f.err
	}
}

func (c *Client) readLoop() {
	defer c.readers.Done()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case c.frames <- frame{err: fmt.Errorf("connection lost: %w", err)}:
			case <-c.done:
			}
			return
		}

		if messageType != ws.TextMessage {
			continue
		}

		env, err := api.DecodeEnvelope(data)
		if err != nil {
			c.logger.Warn("Malformed frame dropped", "error", err)
			continue
		}

		select {
		case c.frames <- frame{env: env}:
		case <-c.done:
			return
		}
	}
}

// Close закрывает соединение и дожидается остановки чтения
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		err = c.conn.Close()
		c.readers.Wait()
	})
	return err
}
