package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/ratelimit"
)

// Заголовки, которые заполняет внешний аутентификатор.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

type principalKey struct{}

func principalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok
}

// requireRole пропускает только аутентифицированных; при заданных ролях ещё и проверяет роль.
func requireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID := strings.TrimSpace(r.Header.Get(HeaderActorID))
			if actorID == "" {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			role, err := domain.ParseRole(r.Header.Get(HeaderActorRole))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unknown actor role")
				return
			}
			if len(roles) > 0 && !hasRole(role, roles) {
				writeError(w, http.StatusForbidden, roleDeniedMessage(roles))
				return
			}
			principal := domain.Principal{ActorID: actorID, Role: role}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, principal)))
		})
	}
}

func hasRole(role domain.Role, allowed []domain.Role) bool {
	for _, candidate := range allowed {
		if candidate == role {
			return true
		}
	}
	return false
}

func roleDeniedMessage(roles []domain.Role) string {
	if len(roles) == 1 {
		switch roles[0] {
		case domain.RoleOwner:
			return "Owner access required"
		case domain.RoleBuyer:
			return "Buyer access required"
		}
	}
	return "Access denied"
}

// rateLimit ограничивает анонимные запросы по IP клиента.
// Сбой лимитера не блокирует запрос.
func rateLimit(limiter ratelimit.Limiter, logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			clientIP := ratelimit.ClientIP(r)
			decision, err := limiter.Allow(r.Context(), clientIP)
			if err != nil {
				logger.WithError(err).WithField("client_ip", clientIP).Warn("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				retryAfter := int(decision.RetryAfter / time.Second)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
					"error":       "Rate limit exceeded. Please try again later.",
					"retry_after": retryAfter,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger пишет одну запись logrus на запрос.
func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)

			entry := logger.WithFields(log.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(started).String(),
				"request_id": middleware.GetReqID(r.Context()),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("http request failed")
				return
			}
			entry.Debug("http request")
		})
	}
}
