// Package line serves the optional LINE Messaging API webhook. Text
// messages from one-to-one chats are answered through the same reasoning
// loop as the HTTP chat API.
package line

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/garyellow/dr-matricula-go/internal/config"
	"github.com/garyellow/dr-matricula-go/internal/ctxutil"
	"github.com/garyellow/dr-matricula-go/internal/logger"
	"github.com/garyellow/dr-matricula-go/internal/metrics"
	"github.com/garyellow/dr-matricula-go/internal/router"
	"github.com/garyellow/dr-matricula-go/internal/sentry"
	"github.com/garyellow/dr-matricula-go/internal/stringutil"
)

// LINE API limits.
const (
	maxMessagesPerReply = 5
	maxTextRunes        = 5000
	maxEventsPerWebhook = 100
	minReplyTokenLength = 10
)

// Channel is the metrics and context label of this surface.
const Channel = "line"

// Replier answers one message of a session.
type Replier interface {
	Handle(ctx context.Context, sessionID, message string) router.Reply
}

type replyAPI interface {
	ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error)
}

// HandlerConfig holds configuration for creating a new Handler
type HandlerConfig struct {
	ChannelSecret    string
	ChannelToken     string
	Replier          Replier
	Logger           *logger.Logger
	Metrics          *metrics.Metrics
	MaxMessageLength int
	EventTimeout     time.Duration
}

// Handler handles LINE webhook events
type Handler struct {
	channelSecret    string
	client           replyAPI
	showLoading      func(chatID string) error
	replier          Replier
	logger           *logger.Logger
	metrics          *metrics.Metrics
	maxMessageLength int
	eventTimeout     time.Duration
	wg               sync.WaitGroup
}

// NewHandler creates a webhook handler with a Messaging API client.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	client, err := messaging_api.NewMessagingApiAPI(cfg.ChannelToken)
	if err != nil {
		return nil, fmt.Errorf("create messaging API client: %w", err)
	}
	h := newHandler(cfg, client)
	h.showLoading = func(chatID string) error {
		_, err := client.ShowLoadingAnimation(&messaging_api.ShowLoadingAnimationRequest{
			ChatId:         chatID,
			LoadingSeconds: 60,
		})
		return err
	}
	return h, nil
}

func newHandler(cfg HandlerConfig, client replyAPI) *Handler {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 2000
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = config.LINEEventProcessing
	}
	return &Handler{
		channelSecret:    cfg.ChannelSecret,
		client:           client,
		showLoading:      func(string) error { return nil },
		replier:          cfg.Replier,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		maxMessageLength: cfg.MaxMessageLength,
		eventTimeout:     cfg.EventTimeout,
	}
}

// Handle is the Gin handler for the webhook endpoint.
//
// The signature is verified against the channel secret first: a bad
// signature answers 400 and any other parse failure answers 500. Valid
// requests answer 200 immediately, as LINE requires, and the events (at most
// maxEventsPerWebhook) are processed in a background goroutine tracked by
// Shutdown. Panics in that goroutine are recovered and reported to Sentry.
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warn("Invalid webhook signature")
			h.metrics.RecordHTTPError("invalid_signature", Channel)
			c.Status(http.StatusBadRequest)
		} else {
			h.logger.WithError(err).Error("Failed to parse webhook request")
			h.metrics.RecordHTTPError("parse_error", Channel)
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	// LINE expects 200 before any processing.
	c.Status(http.StatusOK)

	if len(cb.Events) > maxEventsPerWebhook {
		h.logger.WithField("event_count", len(cb.Events)).Warn("Too many events in webhook batch; truncating")
		cb.Events = cb.Events[:maxEventsPerWebhook]
	}
	events := make([]webhook.EventInterface, len(cb.Events))
	copy(events, cb.Events)

	h.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.WithField("panic", r).Error("Panic in async event processing")
				h.metrics.RecordHTTPError("panic", Channel)
				sentry.CaptureException(context.Background(), fmt.Errorf("line event panic: %v", r), map[string]string{"module": Channel})
			}
		}()
		for _, event := range events {
			h.processEvent(context.Background(), event)
		}
	})
}

// processEvent answers a single text message event. Other events are ignored.
//
// Only messages from a user source are answered; the session key is
// "line:" plus the user ID so LINE conversations never collide with chat API
// sessions. The webhook event ID becomes the request ID for log correlation.
func (h *Handler) processEvent(ctx context.Context, event webhook.EventInterface) {
	e, ok := event.(webhook.MessageEvent)
	if !ok {
		return
	}
	text, ok := e.Message.(webhook.TextMessageContent)
	if !ok {
		return
	}
	user, ok := e.Source.(webhook.UserSource)
	if !ok || user.UserId == "" {
		h.logger.Debug("Ignoring message from non-user source")
		return
	}

	log := h.logger
	if e.WebhookEventId != "" {
		ctx = ctxutil.WithRequestID(ctx, e.WebhookEventId)
		log = log.WithRequestID(e.WebhookEventId)
	}
	ctx, cancel := context.WithTimeout(ctx, h.eventTimeout)
	defer cancel()
	ctx = ctxutil.WithChannel(ctx, Channel)

	if err := h.showLoading(user.UserId); err != nil {
		log.WithError(err).Warn("Failed to show loading animation")
	}

	sessionID := "line:" + user.UserId
	msg := stringutil.Truncate(strings.TrimSpace(text.Text), h.maxMessageLength)
	reply := h.replier.Handle(ctx, sessionID, msg)
	h.metrics.RecordChatRequest(Channel, reply.Source)

	if len(e.ReplyToken) < minReplyTokenLength {
		log.WithField("token_length", len(e.ReplyToken)).Debug("Invalid reply token; skipping reply")
		return
	}
	if _, err := h.client.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: e.ReplyToken,
		Messages:   textMessages(reply.Text),
	}); err != nil {
		if strings.Contains(err.Error(), "Invalid reply token") {
			log.WithError(err).Debug("Reply token already used or invalid")
		} else {
			log.WithError(err).Error("Failed to send reply")
		}
		h.metrics.RecordHTTPError("reply_error", Channel)
		return
	}

	log.WithSessionID(sessionID).WithField("source", reply.Source).Info("Event processed")
}

// Shutdown waits for all async event processing to complete.
// It returns an error if the context is canceled before completion.
func (h *Handler) Shutdown(ctx context.Context) error {
	c := make(chan struct{})
	go func() {
		defer close(c)
		h.wg.Wait()
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
