package chat

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/atlas-chat/backend/internal/handler/apierror"
	"github.com/zhouzirui/atlas-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/atlas-chat/backend/internal/service/chat"
	"github.com/zhouzirui/atlas-chat/backend/pkg/utils"
)

// Handler 聊天提交与会话记录查询的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleSubmit)
	r.Get("/sessions/{sessionID}", h.handleTranscript)
}

type submitPayload struct {
	Message    string      `json:"message"`
	Transcript []chat.Turn `json:"transcript"`
	Country    string      `json:"country"`
	SessionID  string      `json:"sessionId"`
}

type submitResponse struct {
	Transcript []chat.Turn `json:"transcript"`
	SessionID  string      `json:"sessionId"`
	Turn       *chat.Turn  `json:"turn,omitempty"`
	Error      string      `json:"error,omitempty"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.chatSvc.Submit(r.Context(), chatService.SubmitRequest{
		Message:    payload.Message,
		Transcript: payload.Transcript,
		Country:    payload.Country,
		SessionID:  payload.SessionID,
	})
	if err != nil {
		status := apierror.Status(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("component", "chat").Str("session_id", payload.SessionID).Msg("submit failed")
		}
		// Nothing was appended. Once resolved, the session id is echoed so a
		// retry reuses the same record.
		body := submitResponse{
			Transcript: nonNil(payload.Transcript),
			SessionID:  payload.SessionID,
			Error:      apierror.Message(err),
		}
		if res.SessionID != "" {
			body.SessionID = res.SessionID
			body.Transcript = nonNil(res.Transcript)
		}
		utils.RespondJSON(w, status, body)
		return
	}

	utils.RespondJSON(w, http.StatusOK, submitResponse{
		Transcript: res.Transcript,
		SessionID:  res.SessionID,
		Turn:       &res.Turn,
	})
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	turns, err := h.chatSvc.Transcript(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, apierror.Status(err), apierror.Message(err))
		return
	}

	utils.RespondJSON(w, http.StatusOK, submitResponse{
		Transcript: nonNil(turns),
		SessionID:  sessionID,
	})
}

func nonNil(turns []chat.Turn) []chat.Turn {
	if turns == nil {
		return []chat.Turn{}
	}
	return turns
}
