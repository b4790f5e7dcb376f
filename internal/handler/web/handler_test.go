package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/atlas-chat/backend/internal/model/country"
)

func TestIndexListsCountries(t *testing.T) {
	h, err := New(country.NewMemoryStore(country.Seed()), "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	for _, label := range []string{"USA", "Mexico", "Canada"} {
		if !strings.Contains(body, `<option value="`+label+`"`) {
			t.Fatalf("missing option %s", label)
		}
	}
	if !strings.Contains(body, `<option value="USA" selected>`) {
		t.Fatal("first country should be preselected")
	}
	if !strings.Contains(body, "<title>Country Chatbot</title>") {
		t.Fatal("expected default title")
	}
}
