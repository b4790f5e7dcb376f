package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/zhouzirui/atlas-chat/backend/internal/llm/fake"
	"github.com/zhouzirui/atlas-chat/backend/internal/model/chat"
	"github.com/zhouzirui/atlas-chat/backend/internal/model/country"
	"github.com/zhouzirui/atlas-chat/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/atlas-chat/backend/internal/service/chat"
	"github.com/zhouzirui/atlas-chat/backend/internal/service/session"
)

func setupRouter(t *testing.T, chatModel *fake.ChatModel) *chi.Mux {
	t.Helper()
	store := session.NewMemoryStore()
	driver, err := ai.NewService(context.Background(), chatModel, store, ai.Options{})
	if err != nil {
		t.Fatalf("ai.NewService: %v", err)
	}
	chatSvc := chatservice.NewService(driver, store, country.NewMemoryStore(country.Seed()), nil)

	r := chi.NewRouter()
	New(chatSvc).RegisterRoutes(r)
	return r
}

func postChat(t *testing.T, r http.Handler, body any) (*httptest.ResponseRecorder, submitResponse) {
	t.Helper()
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var decoded submitResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response %q: %v", resp.Body.String(), err)
	}
	return resp, decoded
}

func TestSubmitCreatesSession(t *testing.T) {
	r := setupRouter(t, &fake.ChatModel{Reply: fake.Echo})

	resp, body := postChat(t, r, map[string]any{"message": "Hello", "country": "USA"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if body.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if len(body.Transcript) != 1 || body.Transcript[0].Question != "Hello" || body.Transcript[0].Answer == "" {
		t.Fatalf("unexpected transcript: %+v", body.Transcript)
	}

	resp, follow := postChat(t, r, map[string]any{
		"message":    "What did I just say?",
		"country":    "USA",
		"sessionId":  body.SessionID,
		"transcript": body.Transcript,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if follow.SessionID != body.SessionID || len(follow.Transcript) != 2 {
		t.Fatalf("unexpected follow-up: %+v", follow)
	}
}

func TestSubmitErrors(t *testing.T) {
	cases := []struct {
		name   string
		model  *fake.ChatModel
		body   map[string]any
		status int
	}{
		{"empty message", &fake.ChatModel{Chunks: []string{"x"}}, map[string]any{"message": "", "country": "USA"}, http.StatusBadRequest},
		{"unknown country", &fake.ChatModel{Chunks: []string{"x"}}, map[string]any{"message": "Hi", "country": "Narnia"}, http.StatusBadRequest},
		{"malformed session", &fake.ChatModel{Chunks: []string{"x"}}, map[string]any{"message": "Hi", "country": "USA", "sessionId": "123"}, http.StatusConflict},
		{"upstream down", &fake.ChatModel{OpenErr: errors.New("connection refused")}, map[string]any{"message": "Hi", "country": "USA"}, http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := setupRouter(t, tc.model)
			tc.body["transcript"] = []chat.Turn{{Question: "Earlier", Answer: "Reply"}}

			resp, body := postChat(t, r, tc.body)
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
			if body.Error == "" {
				t.Fatal("expected an error message")
			}
			if len(body.Transcript) != 1 || body.Transcript[0].Question != "Earlier" {
				t.Fatalf("transcript should be returned unchanged: %+v", body.Transcript)
			}
		})
	}
}

func TestSubmitInvalidBody(t *testing.T) {
	r := setupRouter(t, &fake.ChatModel{})

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte("{")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetTranscript(t *testing.T) {
	r := setupRouter(t, &fake.ChatModel{Reply: fake.Echo})
	_, created := postChat(t, r, map[string]any{"message": "Hello", "country": "Canada"})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/sessions/"+created.SessionID, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Transcript) != 1 {
		t.Fatalf("unexpected transcript: %+v", body.Transcript)
	}

	missing := httptest.NewRecorder()
	r.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/sessions/0b7e1f1e-8d4c-4c39-9d9e-3f5d0f1a2b3c", nil))
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
}

func TestSubmitFailedFirstMessageKeepsSession(t *testing.T) {
	chatModel := &fake.ChatModel{OpenErr: errors.New("connection refused")}
	store := session.NewMemoryStore()
	driver, err := ai.NewService(context.Background(), chatModel, store, ai.Options{})
	if err != nil {
		t.Fatalf("ai.NewService: %v", err)
	}
	r := chi.NewRouter()
	New(chatservice.NewService(driver, store, country.NewMemoryStore(country.Seed()), nil)).RegisterRoutes(r)

	resp, failed := postChat(t, r, map[string]any{"message": "Hello", "country": "USA"})
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
	if failed.SessionID == "" {
		t.Fatal("expected the created session id to be echoed")
	}

	chatModel.OpenErr = nil
	chatModel.Reply = fake.Echo
	resp, retried := postChat(t, r, map[string]any{"message": "Hello", "country": "USA", "sessionId": failed.SessionID})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if retried.SessionID != failed.SessionID || len(retried.Transcript) != 1 {
		t.Fatalf("unexpected retry: %+v", retried)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one session, got %d", store.Len())
	}
}
