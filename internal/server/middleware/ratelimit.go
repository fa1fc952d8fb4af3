package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/iudanet/docsync/internal/server/handlers"
)

// RateLimiter ограничивает частоту открытия gate-сессий отдельно для каждой
// реплики: не больше n подключений за window, с равномерным пополнением.
// Реплика в цикле переподключения упирается в лимит, а не в DataGate.
type RateLimiter struct {
	limiters map[string]*connectLimiter
	logger   *slog.Logger
	stop     chan struct{}
	every    rate.Limit
	window   time.Duration
	burst    int
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// connectLimiter лимит одного ключа и время последнего обращения
type connectLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewRateLimiter создает лимитер на n подключений за window.
// Неположительные значения отключают ограничение.
func NewRateLimiter(n int, window time.Duration, logger *slog.Logger) *RateLimiter {
	every := rate.Inf
	if n > 0 && window > 0 {
		every = rate.Every(window / time.Duration(n))
	}

	rl := &RateLimiter{
		limiters: make(map[string]*connectLimiter),
		logger:   logger,
		stop:     make(chan struct{}),
		every:    every,
		window:   window,
		burst:    max(n, 1),
	}

	if window > 0 {
		rl.wg.Add(1)
		go rl.evictLoop()
	}

	return rl
}

// Allow расходует одно подключение ключа.
// При отказе возвращает, через сколько появится следующее.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	now := time.Now()

	rl.mu.Lock()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &connectLimiter{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastAccess = now
	rl.mu.Unlock()

	r := entry.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Len возвращает количество отслеживаемых ключей
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return len(rl.limiters)
}

// Stop останавливает очистку и дожидается ее завершения; повторные вызовы безопасны
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
	rl.wg.Wait()
}

// evictLoop убирает ключи, не обращавшиеся дольше двух окон:
// за это время лимит ключа полностью восстанавливается
func (rl *RateLimiter) evictLoop() {
	defer rl.wg.Done()

	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle(time.Now().Add(-2 * rl.window))
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle(before time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	evicted := 0
	for key, entry := range rl.limiters {
		if entry.lastAccess.Before(before) {
			delete(rl.limiters, key)
			evicted++
		}
	}
	if evicted > 0 {
		rl.logger.Debug("Idle connect limiters evicted", "evicted", evicted, "remaining", len(rl.limiters))
	}
}

// RateLimitMiddleware отвечает 429 с Retry-After, когда реплика открывает сессии слишком часто.
// Ключ - replica_id (middleware стоит после AuthMiddleware), иначе IP клиента.
func RateLimitMiddleware(limiter *RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)

			allowed, retryAfter := limiter.Allow(key)
			if !allowed {
				logger.Warn("Rate limit exceeded",
					"key", key,
					"method", r.Method,
					"path", r.URL.Path,
					"retry_after", retryAfter,
				)

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded, please try again later"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if replicaID, ok := handlers.GetReplicaID(r.Context()); ok {
		return "replica:" + replicaID
	}
	return "ip:" + getClientIP(r)
}

// getClientIP берет первый адрес X-Forwarded-For, затем X-Real-IP, затем RemoteAddr
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	return r.RemoteAddr
}
