// Package web serves the single chat page.
package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/Masterminds/sprig"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/atlas-chat/backend/internal/model/country"
)

//go:embed templates/*.tmpl
var templates embed.FS

// Handler renders the chat page.
type Handler struct {
	countries country.Store
	page      *template.Template
	title     string
}

// New parses the embedded page template.
func New(countries country.Store, title string) (*Handler, error) {
	page, err := template.New("index.html.tmpl").
		Funcs(sprig.HtmlFuncMap()).
		ParseFS(templates, "templates/index.html.tmpl")
	if err != nil {
		return nil, errors.Wrap(err, "parse page template")
	}
	return &Handler{countries: countries, page: page, title: title}, nil
}

// RegisterRoutes mounts the page on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleIndex)
}

type pageData struct {
	Title     string
	Countries []country.Country
	Default   string
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: h.title, Countries: h.countries.List()}
	if def, ok := h.countries.Default(); ok {
		data.Default = def.Label
	}

	var buf bytes.Buffer
	if err := h.page.Execute(&buf, data); err != nil {
		log.Error().Err(err).Str("component", "web").Msg("render page failed")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
