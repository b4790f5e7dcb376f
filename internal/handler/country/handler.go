package country

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/atlas-chat/backend/internal/model/country"
	"github.com/zhouzirui/atlas-chat/backend/pkg/utils"
)

// Handler 国家列表的HTTP处理器
type Handler struct {
	countries country.Store
}

// New 创建国家处理器
func New(countries country.Store) *Handler {
	return &Handler{countries: countries}
}

// RegisterRoutes 注册国家相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/countries", h.handleListCountries)
}

func (h *Handler) handleListCountries(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.countries.List())
}
