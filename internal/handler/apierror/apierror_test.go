package apierror

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/atlas-chat/backend/internal/service/ai"
	chatService "github.com/zhouzirui/atlas-chat/backend/internal/service/chat"
	"github.com/zhouzirui/atlas-chat/backend/internal/service/session"
)

func TestStatus(t *testing.T) {
	cases := map[error]int{
		chatService.ErrEmptyMessage:                                   http.StatusBadRequest,
		errors.Wrap(chatService.ErrUnknownCountry, `"Atlantis"`):      http.StatusBadRequest,
		errors.Wrap(session.ErrInvalidSession, "bad id"):              http.StatusConflict,
		session.ErrNotFound:                                           http.StatusNotFound,
		&ai.UpstreamError{Op: "timeout", Err: errors.New("deadline")}: http.StatusBadGateway,
		errors.New("boom"):                                            http.StatusInternalServerError,
	}

	for err, want := range cases {
		assert.Equal(t, want, Status(err), err.Error())
	}
}

func TestMessageHidesInternals(t *testing.T) {
	err := &ai.UpstreamError{Op: "open stream", Err: errors.New("dial tcp 10.0.0.1:443")}
	assert.NotContains(t, Message(err), "10.0.0.1")
	assert.Equal(t, "internal error", Message(errors.New("secret detail")))
}
