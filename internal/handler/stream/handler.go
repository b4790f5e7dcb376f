package stream

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/atlas-chat/backend/internal/handler/apierror"
	"github.com/zhouzirui/atlas-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/atlas-chat/backend/internal/service/chat"
	"github.com/zhouzirui/atlas-chat/backend/pkg/utils"
)

// Handler streams a reply to the browser as Server-Sent Events. Events, in
// order: session, prefix (repeated), then message or error, then end.
type Handler struct {
	chatSvc *chatService.Service
	logger  zerolog.Logger
}

// New creates a stream handler.
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		logger:  log.With().Str("component", "stream").Logger(),
	}
}

// RegisterRoutes mounts the stream route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream", h.handleStream)
}

// SessionEvent announces the session the reply belongs to.
type SessionEvent struct {
	SessionID string `json:"sessionId"`
	Created   bool   `json:"created"`
}

// PrefixEvent carries the reply text received so far.
type PrefixEvent struct {
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

// MessageEvent carries the completed turn.
type MessageEvent struct {
	SessionID string    `json:"sessionId"`
	Turn      chat.Turn `json:"turn"`
	HTML      string    `json:"html,omitempty"`
	TurnCount int       `json:"turnCount"`
}

// ErrorEvent reports a failed submission; no turn was recorded.
type ErrorEvent struct {
	SessionID string `json:"sessionId,omitempty"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	query := r.URL.Query()
	req := chatService.SubmitRequest{
		Message:   query.Get("message"),
		Country:   query.Get("country"),
		SessionID: query.Get("sessionId"),
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	send := func(event string, payload any) {
		if err := utils.SendSSEEvent(w, flusher, event, payload); err != nil {
			h.logger.Debug().Err(err).Str("event", event).Msg("sse write failed")
		}
	}

	sessionID := req.SessionID
	res, err := h.chatSvc.Submit(r.Context(), req,
		chatService.WithSessionHandler(func(id string, created bool) {
			sessionID = id
			send("session", SessionEvent{SessionID: id, Created: created})
		}),
		chatService.WithPrefixHandler(func(prefix string) {
			send("prefix", PrefixEvent{SessionID: sessionID, Text: prefix})
		}),
	)
	if err != nil {
		status := apierror.Status(err)
		h.logger.Warn().Err(err).Str("session_id", sessionID).Int("status", status).Msg("stream submit failed")
		send("error", ErrorEvent{SessionID: sessionID, Status: status, Error: apierror.Message(err)})
		send("end", SessionEvent{SessionID: sessionID})
		return
	}

	html, err := utils.RenderMarkdown(res.Turn.Answer)
	if err != nil {
		h.logger.Warn().Err(err).Msg("markdown render failed")
	}
	send("message", MessageEvent{
		SessionID: res.SessionID,
		Turn:      res.Turn,
		HTML:      html,
		TurnCount: len(res.Transcript),
	})
	send("end", SessionEvent{SessionID: res.SessionID})

	h.logger.Info().Str("session_id", res.SessionID).Int("turns", len(res.Transcript)).Msg("stream completed")
}
