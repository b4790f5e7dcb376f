// Package apierror maps service errors to what clients are shown.
package apierror

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/zhouzirui/atlas-chat/backend/internal/service/ai"
	chatService "github.com/zhouzirui/atlas-chat/backend/internal/service/chat"
	"github.com/zhouzirui/atlas-chat/backend/internal/service/session"
)

// Status returns the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage), errors.Is(err, chatService.ErrUnknownCountry):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidSession):
		return http.StatusConflict
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ai.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Message returns a user-facing description of err. Internal details stay in
// the logs.
func Message(err error) string {
	switch {
	case errors.Is(err, chatService.ErrEmptyMessage):
		return "message is required"
	case errors.Is(err, chatService.ErrUnknownCountry):
		return "unknown country"
	case errors.Is(err, session.ErrInvalidSession):
		return "invalid session, please start a new conversation"
	case errors.Is(err, session.ErrNotFound):
		return "session not found"
	case errors.Is(err, ai.ErrUpstreamUnavailable):
		return "the chatbot is unavailable right now, please try again"
	default:
		return "internal error"
	}
}
