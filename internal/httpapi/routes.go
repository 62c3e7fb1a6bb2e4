package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pointdeck/pointdeck/internal/hub"
	"github.com/pointdeck/pointdeck/internal/store"
	"github.com/pointdeck/pointdeck/internal/ws"
)

func SetupRoutes(h *hub.Hub, repo *store.Repo, log *zap.Logger) http.Handler {
	api := NewAPI(h, repo, log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, repo, log))

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", api.CreateSession)
		r.Get("/{sessionID}", api.GetSession)
		r.Post("/{sessionID}/players", api.JoinSession)
		r.Patch("/{sessionID}/players/{playerID}", api.UpdatePlayer)
		r.Delete("/{sessionID}/players/{playerID}", api.RemovePlayer)
		r.Post("/{sessionID}/stories", api.CreateStory)
		r.Patch("/{sessionID}/stories/{storyID}", api.UpdateStory)
		r.Delete("/{sessionID}/stories/{storyID}", api.DeleteStory)
		r.Post("/{sessionID}/stories/{storyID}/activate", api.ActivateStory)
	})
	return r
}
