package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/atlas-chat/backend/internal/handler/chat"
	"github.com/zhouzirui/atlas-chat/backend/internal/handler/country"
	"github.com/zhouzirui/atlas-chat/backend/internal/handler/stream"
	"github.com/zhouzirui/atlas-chat/backend/internal/handler/web"
	"github.com/zhouzirui/atlas-chat/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/atlas-chat/backend/internal/middleware"
	countryModel "github.com/zhouzirui/atlas-chat/backend/internal/model/country"
	chatService "github.com/zhouzirui/atlas-chat/backend/internal/service/chat"
	"github.com/zhouzirui/atlas-chat/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(countries countryModel.Store, chatSvc *chatService.Service) (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	page, err := web.New(countries, "Country Chatbot")
	if err != nil {
		return nil, err
	}
	page.RegisterRoutes(r)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		country.New(countries).RegisterRoutes(api)
		chat.New(chatSvc).RegisterRoutes(api)
		stream.New(chatSvc).RegisterRoutes(api)
		ws.New(chatSvc, countries).RegisterRoutes(api)
	})

	return r, nil
}
