// Package ratelimit ограничивает частоту анонимных запросов по ключу клиента.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultWindow — окно подсчёта запросов.
const DefaultWindow = time.Minute

// Decision — результат проверки лимита.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter решает, можно ли пропустить очередной запрос с данным ключом.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// ClientIP определяет адрес клиента: X-Forwarded-For (первый адрес), затем X-Real-IP, затем RemoteAddr.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

func retrySeconds(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return d.Truncate(time.Second) + time.Second
}
