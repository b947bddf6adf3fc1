package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-chat-app/backend/ai"
	"ai-chat-app/backend/internal/models"
	"ai-chat-app/backend/internal/repository"
	"ai-chat-app/backend/internal/session"
	"ai-chat-app/backend/pkg/logger"
	"ai-chat-app/backend/shared/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrEmptyContent   = errors.New("Message content is required")
	ErrInvalidRole    = errors.New("Invalid message role")
	ErrEmptyTitle     = errors.New("Title is required")
	ErrMessageMissing = errors.New("Message not found")
	ErrChatMissing    = errors.New("Chat not found")
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
	maxTitleLength      = 200
)

var tracer = otel.Tracer("ai-chat-app/chat")

// Caller identifies who is acting and which login session they act through
type Caller struct {
	UserID    uint
	SessionID string
}

// ChatService coordinates the history store, the session cache and the responder.
type ChatService struct {
	store     repository.HistoryStore
	cache     *session.Cache
	responder ai.Responder
	metrics   *observability.Metrics
	log       *logger.Logger

	historyLimit int
	now          func() time.Time
}

// NewChatService creates a chat service. cache and metrics may be nil.
func NewChatService(
	store repository.HistoryStore,
	cache *session.Cache,
	responder ai.Responder,
	metrics *observability.Metrics,
	log *logger.Logger,
) *ChatService {
	if metrics == nil {
		metrics = observability.NoopMetrics()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &ChatService{
		store:        store,
		cache:        cache,
		responder:    responder,
		metrics:      metrics,
		log:          log,
		historyLimit: 10,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SetHistoryLimit changes how many prior messages are sent to the responder
func (s *ChatService) SetHistoryLimit(n int) {
	if n > 0 {
		s.historyLimit = n
	}
}

func (s *ChatService) logFor(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, s.log)
}

// SendMessage persists the user's message together with the assistant's reply.
// A generation failure never fails the send: the fallback reply is stored with
// the error recorded in its metadata. Both messages commit or neither does.
func (s *ChatService) SendMessage(ctx context.Context, caller Caller, req models.SendMessageRequest) (*models.SendMessageResponse, error) {
	started := time.Now()
	req.Normalize()
	if req.Content == "" {
		return nil, ErrEmptyContent
	}
	if !req.Role.Valid() {
		return nil, ErrInvalidRole
	}

	ctx, span := tracer.Start(ctx, "chat.SendMessage")
	defer span.End()
	span.SetAttributes(attribute.Int("chat.user_id", int(caller.UserID)))

	log := s.logFor(ctx)
	if req.Metadata != nil && req.Metadata.Retry {
		s.metrics.Retry(ctx)
		log.Info("Retrying message send", "user_id", caller.UserID)
	}

	recent, err := s.store.FetchWindow(ctx, caller.UserID, s.historyLimit, 0)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "history lookup failed")
		return nil, err
	}

	userMsg := &models.Message{
		SenderID:  fmt.Sprintf("%d", caller.UserID),
		Content:   req.Content,
		Role:      req.Role,
		Timestamp: s.now(),
		Metadata:  models.MessageMetadata{TokenCount: models.EstimateTokens(req.Content)},
	}

	aiMsg := s.reply(ctx, req.Content, recent.Messages)

	chat, err := s.store.AppendMany(ctx, caller.UserID, userMsg, aiMsg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		log.LogError(err, "Failed to persist message pair", "user_id", caller.UserID)
		return nil, err
	}
	s.metrics.MessagesPersisted(ctx, string(userMsg.Role), 1)
	s.metrics.MessagesPersisted(ctx, string(aiMsg.Role), 1)

	if s.cache != nil {
		s.cache.Append(ctx, caller.SessionID, *userMsg, *aiMsg)
	}

	return &models.SendMessageResponse{
		UserMessage:    *userMsg,
		AIMessage:      *aiMsg,
		ChatID:         chat.ExternalID,
		ProcessingTime: time.Since(started).Milliseconds(),
	}, nil
}

// reply builds the assistant message, substituting the fallback on failure.
func (s *ChatService) reply(ctx context.Context, content string, history []models.Message) *models.Message {
	msg := &models.Message{
		SenderID: models.AISenderID,
		Role:     models.RoleAI,
		Metadata: models.MessageMetadata{Model: s.responder.Model()},
	}

	genStart := time.Now()
	text, err := s.responder.Generate(ctx, content, history)
	elapsed := time.Since(genStart)
	s.metrics.AIGeneration(ctx, elapsed, err != nil)

	if err != nil {
		s.logFor(ctx).Warn("AI generation failed, using fallback reply", "error", err.Error())
		msg.Content = ai.FallbackReply
		msg.Metadata.Error = err.Error()
	} else {
		msg.Content = text
		msg.Metadata.ProcessingTime = elapsed.Milliseconds()
		msg.Metadata.TokenCount = models.EstimateTokens(text)
	}
	msg.Timestamp = s.now()
	return msg
}

// GetHistory returns one window of the conversation, serving the session's
// cached window when it satisfies the request.
func (s *ChatService) GetHistory(ctx context.Context, caller Caller, limit, offset int) (*models.HistoryResponse, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	if offset == 0 && s.cache != nil {
		if cached, ok := s.cache.Get(ctx, caller.SessionID); ok && limit >= len(cached) {
			s.metrics.CacheLookup(ctx, true)
			return &models.HistoryResponse{
				Messages:   cached,
				TotalCount: len(cached),
				HasMore:    false,
			}, nil
		}
		s.metrics.CacheLookup(ctx, false)
	}

	window, err := s.store.FetchWindow(ctx, caller.UserID, limit, offset)
	if err != nil {
		return nil, err
	}

	if offset == 0 && s.cache != nil {
		s.cache.Replace(ctx, caller.SessionID, window.Messages)
	}

	resp := &models.HistoryResponse{
		Messages:   window.Messages,
		TotalCount: window.Total,
		HasMore:    window.Total > offset+len(window.Messages),
	}
	if window.Chat != nil {
		meta := window.Chat.Metadata()
		resp.ChatMetadata = &meta
	}
	return resp, nil
}

// ClearHistory wipes the conversation and the session's cached window
func (s *ChatService) ClearHistory(ctx context.Context, caller Caller) error {
	if err := s.store.Clear(ctx, caller.UserID); err != nil {
		return err
	}
	s.invalidate(ctx, caller)
	s.logFor(ctx).Info("Chat history cleared", "user_id", caller.UserID)
	return nil
}

// Stats returns the aggregate snapshot. A user without a conversation gets
// zeroed totals and the configured model.
func (s *ChatService) Stats(ctx context.Context, caller Caller) (*models.ChatMetadata, error) {
	meta, found, err := s.store.Stats(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.ChatMetadata{AIModel: s.responder.Model()}, nil
	}
	return meta, nil
}

// Health probes the AI provider
func (s *ChatService) Health(ctx context.Context) models.AIHealth {
	h := models.AIHealth{Status: "healthy", Service: ai.ServiceName, Timestamp: s.now()}
	if err := s.responder.Ping(ctx); err != nil {
		h.Status = "unhealthy"
		h.Error = err.Error()
	}
	return h
}

// EditMessage rewrites one message; ErrMessageMissing when no such message exists.
func (s *ChatService) EditMessage(ctx context.Context, caller Caller, messageID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyContent
	}
	applied, err := s.store.EditMessage(ctx, caller.UserID, messageID, content)
	if err != nil {
		return err
	}
	if !applied {
		return ErrMessageMissing
	}
	s.invalidate(ctx, caller)
	return nil
}

// DeleteMessage removes one message; ErrMessageMissing when no such message exists.
func (s *ChatService) DeleteMessage(ctx context.Context, caller Caller, messageID string) error {
	applied, err := s.store.DeleteMessage(ctx, caller.UserID, messageID)
	if err != nil {
		return err
	}
	if !applied {
		return ErrMessageMissing
	}
	s.invalidate(ctx, caller)
	return nil
}

// UpdateTitle renames the conversation
func (s *ChatService) UpdateTitle(ctx context.Context, caller Caller, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	if len([]rune(title)) > maxTitleLength {
		title = string([]rune(title)[:maxTitleLength])
	}
	applied, err := s.store.UpdateTitle(ctx, caller.UserID, title)
	if err != nil {
		return err
	}
	if !applied {
		return ErrChatMissing
	}
	return nil
}

// EndSession drops the cached window of a login session
func (s *ChatService) EndSession(ctx context.Context, sessionID string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, sessionID)
	}
}

// Ping checks the history store
func (s *ChatService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *ChatService) invalidate(ctx context.Context, caller Caller) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, caller.SessionID)
	}
}
