package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role of a message author
type Role string

const (
	RoleUser   Role = "user"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAI, RoleSystem:
		return true
	}
	return false
}

// AISenderID is the sender id stamped on AI replies.
const AISenderID = "000000000000000000000000"

// MessageMetadata is stored alongside each message
type MessageMetadata struct {
	TokenCount     int        `json:"tokenCount,omitempty"`
	ProcessingTime int64      `json:"processingTime,omitempty"`
	Model          string     `json:"model,omitempty"`
	Error          string     `json:"error,omitempty"`
	Edited         bool       `json:"edited,omitempty"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
}

// Message is one entry of a conversation. ID orders messages chronologically;
// ExternalID is the permanent identifier exposed to clients.
type Message struct {
	ID         uint            `json:"-" gorm:"primaryKey"`
	ExternalID string          `json:"id" gorm:"size:36;uniqueIndex;not null"`
	ChatID     uint            `json:"-" gorm:"index;not null"`
	UserID     uint            `json:"-" gorm:"index;not null"`
	SenderID   string          `json:"senderId" gorm:"size:36;not null"`
	Content    string          `json:"content" gorm:"type:text;not null"`
	Role       Role            `json:"role" gorm:"size:16;not null"`
	Timestamp  time.Time       `json:"timestamp" gorm:"not null"`
	Metadata   MessageMetadata `json:"metadata" gorm:"embedded;embeddedPrefix:meta_"`
	CreatedAt  time.Time       `json:"-"`
}

// TableName pins the table name
func (Message) TableName() string {
	return "chat_messages"
}

// BeforeCreate assigns the permanent identifier
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ExternalID == "" {
		m.ExternalID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return nil
}

// EstimateTokens is the token estimate used for all messages: length in runes.
func EstimateTokens(content string) int {
	return utf8.RuneCountInString(content)
}

// ChatSettings are per-conversation generation preferences
type ChatSettings struct {
	Temperature  float32 `json:"temperature"`
	MaxTokens    int     `json:"maxTokens"`
	SystemPrompt string  `json:"systemPrompt,omitempty"`
	EnableMemory bool    `json:"enableMemory"`
}

// Chat is the single conversation owned by a user
type Chat struct {
	ID            uint         `json:"-" gorm:"primaryKey"`
	ExternalID    string       `json:"id" gorm:"size:36;uniqueIndex;not null"`
	UserID        uint         `json:"-" gorm:"uniqueIndex;not null"`
	Title         string       `json:"title" gorm:"size:200"`
	IsActive      bool         `json:"isActive" gorm:"default:true"`
	Settings      ChatSettings `json:"settings" gorm:"embedded;embeddedPrefix:setting_"`
	TotalMessages int          `json:"totalMessages" gorm:"not null;default:0"`
	TotalTokens   int          `json:"totalTokens" gorm:"not null;default:0"`
	LastActivity  time.Time    `json:"lastActivity"`
	AIModel       string       `json:"aiModel" gorm:"size:64"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// TableName pins the table name
func (Chat) TableName() string {
	return "chats"
}

// DefaultTitle is the title given to a new conversation
func DefaultTitle(now time.Time) string {
	return fmt.Sprintf("Chat %s", now.Format("1/2/2006"))
}

// ChatMetadata is the aggregate snapshot of a conversation
type ChatMetadata struct {
	TotalMessages int       `json:"totalMessages"`
	TotalTokens   int       `json:"totalTokens"`
	LastActivity  time.Time `json:"lastActivity"`
	AIModel       string    `json:"aiModel"`
}

// Metadata returns the aggregate snapshot of c
func (c *Chat) Metadata() ChatMetadata {
	return ChatMetadata{
		TotalMessages: c.TotalMessages,
		TotalTokens:   c.TotalTokens,
		LastActivity:  c.LastActivity,
		AIModel:       c.AIModel,
	}
}

// RequestMetadata is the client-supplied metadata on a send. Its flags are
// transient and never persisted.
type RequestMetadata struct {
	Retry     bool   `json:"retry,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// SendMessageRequest is the body of POST /chat/message
type SendMessageRequest struct {
	Content  string           `json:"content"`
	Role     Role             `json:"role,omitempty"`
	Metadata *RequestMetadata `json:"metadata,omitempty"`
}

// Normalize trims the content and defaults the role
func (r *SendMessageRequest) Normalize() {
	r.Content = strings.TrimSpace(r.Content)
	if r.Role == "" {
		r.Role = RoleUser
	}
}

// SendMessageResponse is returned by a successful send
type SendMessageResponse struct {
	UserMessage    Message `json:"userMessage"`
	AIMessage      Message `json:"aiMessage"`
	ChatID         string  `json:"chatId"`
	ProcessingTime int64   `json:"processingTime"`
}

// HistoryResponse is one page of history
type HistoryResponse struct {
	Messages     []Message     `json:"messages"`
	TotalCount   int           `json:"totalCount"`
	HasMore      bool          `json:"hasMore"`
	ChatMetadata *ChatMetadata `json:"chatMetadata"`
}

// EditMessageRequest is the body of PUT /chat/messages/:id
type EditMessageRequest struct {
	Content string `json:"content"`
}

// UpdateTitleRequest is the body of PUT /chat/title
type UpdateTitleRequest struct {
	Title string `json:"title"`
}

// AIHealth is the AI provider probe result
type AIHealth struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}
