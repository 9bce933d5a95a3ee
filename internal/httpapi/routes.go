package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/handfill/internal/docstore"
	"github.com/DoyleJ11/handfill/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func SetupRoutes(s docstore.Store, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Route("/rooms", func(r chi.Router) {
		r.Get("/", ListRooms(s, logger))
		r.Get("/{code}", GetRoom(s, logger))
		r.Put("/{code}", PutRoom(s, logger))
		r.Delete("/{code}", DeleteRoom(s, logger))
		r.Get("/{code}/watch", ws.Handler(s, logger))
	})
	return r
}
