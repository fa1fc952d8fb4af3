package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
)

// RecoveryMiddleware превращает панику обработчика в 500 и запись в лог со стеком.
// Если ответ уже начат или соединение захвачено под websocket, писать некуда:
// паника только логируется, соединение закрывает net/http.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guard := &panicGuard{ResponseWriter: w}

			defer func() {
				v := recover()
				if v == nil {
					return
				}
				// штатный обрыв ответа
				if v == http.ErrAbortHandler {
					panic(v)
				}

				logger.Error("Panic recovered",
					"error", v,
					"method", r.Method,
					"path", r.URL.Path,
					"collection", r.URL.Query().Get("collection"),
					"remote_addr", r.RemoteAddr,
					"response_started", guard.started,
					"hijacked", guard.hijacked,
					"stack", string(debug.Stack()),
				)

				if guard.started || guard.hijacked {
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"internal server error"}`))
			}()

			next.ServeHTTP(guard, r)
		})
	}
}

// panicGuard запоминает, начат ли ответ
type panicGuard struct {
	http.ResponseWriter
	started  bool
	hijacked bool
}

func (g *panicGuard) WriteHeader(code int) {
	g.started = true
	g.ResponseWriter.WriteHeader(code)
}

func (g *panicGuard) Write(b []byte) (int, error) {
	g.started = true
	return g.ResponseWriter.Write(b)
}

// Hijack нужен websocket upgrader
func (g *panicGuard) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := g.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijacking not supported")
	}

	conn, rw, err := hj.Hijack()
	if err == nil {
		g.hijacked = true
	}
	return conn, rw, err
}

func (g *panicGuard) Unwrap() http.ResponseWriter {
	return g.ResponseWriter
}
