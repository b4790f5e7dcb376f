// Package ws carries chat submissions over a WebSocket so a client can keep
// one connection open for a whole conversation.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/atlas-chat/backend/internal/handler/apierror"
	"github.com/zhouzirui/atlas-chat/backend/internal/model/chat"
	"github.com/zhouzirui/atlas-chat/backend/internal/model/country"
	chatservice "github.com/zhouzirui/atlas-chat/backend/internal/service/chat"
	"github.com/zhouzirui/atlas-chat/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// Frame types.
const (
	TypeSubmit    = "submit"
	TypeConfig    = "config"
	TypeConnected = "connected"
	TypeSession   = "session"
	TypePrefix    = "prefix"
	TypeTurn      = "turn"
	TypeError     = "error"
)

// Handler upgrades /ws requests and serves submissions on the connection.
type Handler struct {
	chatSvc   *chatservice.Service
	countries country.Store
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
}

// New creates a WebSocket handler. Submissions that name no country, on a
// connection that was never configured, use the catalogue default.
func New(chatSvc *chatservice.Service, countries country.Store) *Handler {
	return &Handler{
		chatSvc:   chatSvc,
		countries: countries,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: log.With().Str("component", "websocket").Logger(),
	}
}

// RegisterRoutes mounts the WebSocket route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// InboundMessage is a client frame.
type InboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SubmitData is the payload of a submit frame. Country falls back to the one
// set by the last config frame.
type SubmitData struct {
	Message    string      `json:"message"`
	Country    string      `json:"country,omitempty"`
	Transcript []chat.Turn `json:"transcript,omitempty"`
}

// ConfigData is the payload of a config frame.
type ConfigData struct {
	Country string `json:"country"`
}

// OutgoingMessage is a server frame.
type OutgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// TurnData is sent once a reply is complete and recorded.
type TurnData struct {
	Turn      chat.Turn `json:"turn"`
	HTML      string    `json:"html,omitempty"`
	TurnCount int       `json:"turnCount"`
}

// ErrorData reports a failed submission.
type ErrorData struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type connection struct {
	conn *websocket.Conn
	mu   sync.Mutex

	sessionID string
	country   string
}

// write serializes writers; gorilla allows one concurrent writer.
func (c *connection) write(msg OutgoingMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg.Timestamp = time.Now().Unix()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *connection) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &connection{conn: conn, sessionID: r.URL.Query().Get("sessionId"), country: r.URL.Query().Get("country")}
	h.logger.Debug().Str("session_id", c.sessionID).Msg("connection opened")

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, c)

	h.send(c, OutgoingMessage{Type: TypeConnected, SessionID: c.sessionID})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msg InboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("read failed")
			}
			return
		}

		h.handleMessage(ctx, c, &msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *connection, msg *InboundMessage) {
	switch msg.Type {
	case TypeSubmit:
		var data SubmitData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			h.sendError(c, http.StatusBadRequest, "invalid submit payload")
			return
		}
		h.submit(ctx, c, msg.SessionID, data)
	case TypeConfig:
		var data ConfigData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			h.sendError(c, http.StatusBadRequest, "invalid config payload")
			return
		}
		c.country = data.Country
	default:
		h.sendError(c, http.StatusBadRequest, "unsupported message type")
	}
}

func (h *Handler) submit(ctx context.Context, c *connection, sessionID string, data SubmitData) {
	if sessionID == "" {
		sessionID = c.sessionID
	}
	selected := data.Country
	if selected == "" {
		selected = c.country
	}
	if selected == "" {
		if def, ok := h.countries.Default(); ok {
			selected = def.Label
		}
	}

	res, err := h.chatSvc.Submit(ctx, chatservice.SubmitRequest{
		Message:    data.Message,
		Transcript: data.Transcript,
		Country:    selected,
		SessionID:  sessionID,
	},
		chatservice.WithSessionHandler(func(id string, created bool) {
			c.sessionID = id
			h.send(c, OutgoingMessage{Type: TypeSession, SessionID: id, Data: map[string]bool{"created": created}})
		}),
		chatservice.WithPrefixHandler(func(prefix string) {
			h.send(c, OutgoingMessage{Type: TypePrefix, SessionID: c.sessionID, Data: map[string]string{"text": prefix}})
		}),
	)
	if err != nil {
		h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("submit failed")
		h.sendError(c, apierror.Status(err), apierror.Message(err))
		return
	}

	html, err := utils.RenderMarkdown(res.Turn.Answer)
	if err != nil {
		h.logger.Warn().Err(err).Msg("markdown render failed")
	}
	h.send(c, OutgoingMessage{
		Type:      TypeTurn,
		SessionID: res.SessionID,
		Data:      TurnData{Turn: res.Turn, HTML: html, TurnCount: len(res.Transcript)},
	})
}

func (h *Handler) send(c *connection, msg OutgoingMessage) {
	if err := c.write(msg); err != nil {
		h.logger.Debug().Err(err).Str("type", msg.Type).Msg("write failed")
	}
}

func (h *Handler) sendError(c *connection, status int, message string) {
	h.send(c, OutgoingMessage{
		Type:      TypeError,
		SessionID: c.sessionID,
		Data:      ErrorData{Status: status, Message: message},
	})
}

func (h *Handler) pingLoop(ctx context.Context, c *connection) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
