// Package chat serves the HTTP chat endpoints: the JSON API used by web
// clients and the legacy sales-widget route kept for existing embeds.
package chat

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyellow/dr-matricula-go/internal/config"
	"github.com/garyellow/dr-matricula-go/internal/ctxutil"
	"github.com/garyellow/dr-matricula-go/internal/logger"
	"github.com/garyellow/dr-matricula-go/internal/metrics"
	"github.com/garyellow/dr-matricula-go/internal/router"
	"github.com/garyellow/dr-matricula-go/internal/stringutil"
)

// Channel labels.
const (
	ChannelAPI    = "api"
	ChannelLegacy = "legacy"
)

// Replier answers one message of a session.
type Replier interface {
	Handle(ctx context.Context, sessionID, message string) router.Reply
}

// Config configures a Handler.
type Config struct {
	Replier          Replier
	Logger           *logger.Logger
	Metrics          *metrics.Metrics
	MaxMessageLength int           // runes; longer messages are truncated
	Timeout          time.Duration // per request, including the session wait
}

// Handler serves chat requests.
type Handler struct {
	replier          Replier
	logger           *logger.Logger
	metrics          *metrics.Metrics
	maxMessageLength int
	timeout          time.Duration
	newSessionID     func() string
}

// NewHandler creates a chat handler.
func NewHandler(cfg Config) *Handler {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 2000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.ChatRequest
	}
	return &Handler{
		replier:          cfg.Replier,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		maxMessageLength: cfg.MaxMessageLength,
		timeout:          cfg.Timeout,
		newSessionID:     uuid.NewString,
	}
}

// Register mounts the chat routes.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/v1/chat", h.Chat)
	r.POST("/ventas/chat", h.LegacyChat)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID    string `json:"session_id"`
	ResponseText string `json:"response_text"`
}

type legacyRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Mensaje   string `json:"mensaje"`
}

type legacyResponse struct {
	Respuesta string `json:"respuesta"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Chat handles POST /v1/chat.
//
// The body is {"session_id", "message"}. A blank session_id starts a new
// session and the issued ID is returned with the reply, so the client can
// continue the conversation. Invalid JSON answers 400; every other request
// answers 200 with a non-empty response_text, falling back to a canned reply
// when the assistant cannot answer.
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.reject(c, ChannelAPI, err)
		return
	}
	sessionID := h.sessionID(req.SessionID)
	text := h.reply(c, ChannelAPI, sessionID, req.Message)
	c.JSON(http.StatusOK, chatResponse{SessionID: sessionID, ResponseText: text})
}

// LegacyChat handles POST /ventas/chat.
//
// It keeps the older Spanish wire format: {"mensaje", "session_id",
// "user_id"} in and {"respuesta"} out. session_id wins over user_id as the
// session key; when both are blank a fresh session is issued but not
// returned.
func (h *Handler) LegacyChat(c *gin.Context) {
	var req legacyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.reject(c, ChannelLegacy, err)
		return
	}
	id := req.SessionID
	if strings.TrimSpace(id) == "" {
		id = req.UserID
	}
	text := h.reply(c, ChannelLegacy, h.sessionID(id), req.Mensaje)
	c.JSON(http.StatusOK, legacyResponse{Respuesta: text})
}

func (h *Handler) reject(c *gin.Context, channel string, err error) {
	h.metrics.RecordChatRequest(channel, "invalid")
	h.metrics.RecordHTTPError("invalid_json", "chat")
	if h.logger != nil {
		h.logger.WithError(err).WithField("channel", channel).Debug("Invalid chat request")
	}
	c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
}

func (h *Handler) sessionID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return h.newSessionID()
	}
	return id
}

func (h *Handler) reply(c *gin.Context, channel, sessionID, message string) string {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	ctx = ctxutil.WithChannel(ctx, channel)

	msg := stringutil.Truncate(strings.TrimSpace(message), h.maxMessageLength)
	reply := h.replier.Handle(ctx, sessionID, msg)
	h.metrics.RecordChatRequest(channel, reply.Source)

	if h.logger != nil {
		h.logger.WithSessionID(sessionID).
			WithField("channel", channel).
			WithField("source", reply.Source).
			WithField("capabilities", reply.Capabilities).
			Info("Chat message answered")
	}
	return reply.Text
}
