package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/zhouzirui/atlas-chat/backend/internal/llm/fake"
	"github.com/zhouzirui/atlas-chat/backend/internal/model/country"
	"github.com/zhouzirui/atlas-chat/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/atlas-chat/backend/internal/service/chat"
	"github.com/zhouzirui/atlas-chat/backend/internal/service/session"
)

type sseEvent struct {
	name string
	data string
}

func setupRouter(t *testing.T, chatModel *fake.ChatModel) (*chi.Mux, *chatservice.Service) {
	t.Helper()
	store := session.NewMemoryStore()
	driver, err := ai.NewService(context.Background(), chatModel, store, ai.Options{})
	if err != nil {
		t.Fatalf("ai.NewService: %v", err)
	}
	chatSvc := chatservice.NewService(driver, store, country.NewMemoryStore(country.Seed()), nil)

	r := chi.NewRouter()
	New(chatSvc).RegisterRoutes(r)
	return r, chatSvc
}

func stream(t *testing.T, r http.Handler, params url.Values) []sseEvent {
	t.Helper()
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/stream?"+params.Encode(), nil))

	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var (
		events  []sseEvent
		current sseEvent
	)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			events = append(events, current)
			current = sseEvent{}
		}
	}
	return events
}

func names(events []sseEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.name)
	}
	return out
}

func TestStreamEmitsPrefixesThenMessage(t *testing.T) {
	r, chatSvc := setupRouter(t, &fake.ChatModel{Chunks: []string{"**Hi**", " there"}})

	events := stream(t, r, url.Values{"message": {"Hello"}, "country": {"USA"}})

	want := []string{"session", "prefix", "prefix", "message", "end"}
	if strings.Join(names(events), ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected events: %v", names(events))
	}

	var prefix PrefixEvent
	if err := json.Unmarshal([]byte(events[2].data), &prefix); err != nil {
		t.Fatalf("decode prefix: %v", err)
	}
	if prefix.Text != "**Hi** there" {
		t.Fatalf("unexpected prefix %q", prefix.Text)
	}

	var msg MessageEvent
	if err := json.Unmarshal([]byte(events[3].data), &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Turn.Question != "Hello" || msg.TurnCount != 1 {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if !strings.Contains(msg.HTML, "<strong>Hi</strong>") {
		t.Fatalf("expected rendered markdown, got %q", msg.HTML)
	}

	turns, err := chatSvc.Transcript(context.Background(), msg.SessionID)
	if err != nil || len(turns) != 1 {
		t.Fatalf("turn not stored: %v %v", turns, err)
	}
}

func TestStreamReportsUpstreamFailure(t *testing.T) {
	r, _ := setupRouter(t, &fake.ChatModel{OpenErr: errors.New("connection refused")})

	events := stream(t, r, url.Values{"message": {"Hello"}, "country": {"USA"}})
	got := names(events)
	if strings.Join(got, ",") != "session,error,end" {
		t.Fatalf("unexpected events: %v", got)
	}

	var session SessionEvent
	if err := json.Unmarshal([]byte(events[0].data), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	var payload ErrorEvent
	if err := json.Unmarshal([]byte(events[1].data), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload.Status != http.StatusBadGateway || payload.Error == "" {
		t.Fatalf("unexpected error event: %+v", payload)
	}
	if session.SessionID == "" || payload.SessionID != session.SessionID {
		t.Fatalf("error event lost the session id: %+v vs %+v", payload, session)
	}
}

func TestStreamRejectsMissingMessage(t *testing.T) {
	r, _ := setupRouter(t, &fake.ChatModel{Chunks: []string{"x"}})

	events := stream(t, r, url.Values{"country": {"USA"}})
	if len(events) == 0 || events[0].name != "error" {
		t.Fatalf("expected error event, got %v", names(events))
	}
}
