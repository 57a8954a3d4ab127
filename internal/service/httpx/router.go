package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

const requestTimeout = 15 * time.Second

// NewRouter собирает chi-роутер с общими middleware и маршрутами API.
// extra позволяет смонтировать служебные маршруты (health) на тот же роутер.
func NewRouter(h *Handler, logger *log.Entry, extra ...func(chi.Router)) http.Handler {
	if logger == nil {
		logger = log.WithField("component", "inventory-http")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	for _, mount := range extra {
		mount(r)
	}
	h.Register(r)
	return r
}
