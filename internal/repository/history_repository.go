package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-chat-app/backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStorageUnavailable wraps every persistence failure. Callers map it to a
// generic server error; the store itself never retries.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Window is one page of a conversation, oldest message first.
type Window struct {
	Messages []models.Message
	Total    int
	Chat     *models.Chat
}

// HistoryStore persists each user's single conversation.
type HistoryStore interface {
	Append(ctx context.Context, userID uint, msg *models.Message) (*models.Chat, error)
	AppendMany(ctx context.Context, userID uint, msgs ...*models.Message) (*models.Chat, error)
	FetchWindow(ctx context.Context, userID uint, limit, offset int) (*Window, error)
	Clear(ctx context.Context, userID uint) error
	Stats(ctx context.Context, userID uint) (*models.ChatMetadata, bool, error)
	EditMessage(ctx context.Context, userID uint, messageID, content string) (bool, error)
	DeleteMessage(ctx context.Context, userID uint, messageID string) (bool, error)
	UpdateTitle(ctx context.Context, userID uint, title string) (bool, error)
	Ping(ctx context.Context) error
}

// GormHistoryStore is the gorm-backed HistoryStore
type GormHistoryStore struct {
	db       *gorm.DB
	settings models.ChatSettings
	model    string
	now      func() time.Time
}

// NewGormHistoryStore creates a store; model and settings seed new conversations.
func NewGormHistoryStore(db *gorm.DB, model string, settings models.ChatSettings) *GormHistoryStore {
	return &GormHistoryStore{db: db, model: model, settings: settings, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates or updates the tables used by the stores in this package.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{}, &models.Chat{}, &models.Message{})
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// ensureChat returns the user's conversation, creating it when absent.
// Concurrent first sends race on the unique user_id index; the loser reads the winner's row.
func (r *GormHistoryStore) ensureChat(tx *gorm.DB, userID uint) (*models.Chat, error) {
	now := r.now()
	fresh := models.Chat{
		ExternalID:   uuid.NewString(),
		UserID:       userID,
		Title:        models.DefaultTitle(now),
		IsActive:     true,
		Settings:     r.settings,
		AIModel:      r.model,
		LastActivity: now,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&fresh).Error; err != nil {
		return nil, err
	}

	var chat models.Chat
	if err := tx.Where("user_id = ?", userID).First(&chat).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *GormHistoryStore) findChat(ctx context.Context, userID uint) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// Append adds one message to the end of the user's conversation
func (r *GormHistoryStore) Append(ctx context.Context, userID uint, msg *models.Message) (*models.Chat, error) {
	return r.AppendMany(ctx, userID, msg)
}

// AppendMany appends msgs in order inside one transaction and bumps the aggregates.
func (r *GormHistoryStore) AppendMany(ctx context.Context, userID uint, msgs ...*models.Message) (*models.Chat, error) {
	if len(msgs) == 0 {
		return nil, errors.New("append: no messages")
	}

	var chat *models.Chat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		chat, err = r.ensureChat(tx, userID)
		if err != nil {
			return err
		}

		tokens := 0
		lastActivity := r.now()
		model := ""
		for _, m := range msgs {
			m.ChatID = chat.ID
			m.UserID = userID
			if err := tx.Create(m).Error; err != nil {
				return err
			}
			tokens += m.Metadata.TokenCount
			if m.Timestamp.After(lastActivity) {
				lastActivity = m.Timestamp
			}
			if m.Role == models.RoleAI && m.Metadata.Model != "" {
				model = m.Metadata.Model
			}
		}

		updates := map[string]any{
			"total_messages": gorm.Expr("total_messages + ?", len(msgs)),
			"total_tokens":   gorm.Expr("total_tokens + ?", tokens),
			"last_activity":  lastActivity,
		}
		if model != "" {
			updates["ai_model"] = model
		}
		if err := tx.Model(&models.Chat{}).Where("id = ?", chat.ID).Updates(updates).Error; err != nil {
			return err
		}

		return tx.First(chat, chat.ID).Error
	})
	if err != nil {
		return nil, storageErr("append", err)
	}
	return chat, nil
}

// FetchWindow returns up to limit messages, skipping the newest offset ones,
// in chronological order, along with the conversation's true total.
func (r *GormHistoryStore) FetchWindow(ctx context.Context, userID uint, limit, offset int) (*Window, error) {
	chat, err := r.findChat(ctx, userID)
	if err != nil {
		return nil, storageErr("fetch window", err)
	}
	if chat == nil {
		return &Window{Messages: []models.Message{}}, nil
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Message{}).Where("chat_id = ?", chat.ID).Count(&total).Error; err != nil {
		return nil, storageErr("fetch window", err)
	}

	window := &Window{Messages: []models.Message{}, Total: int(total), Chat: chat}
	if offset >= int(total) || limit <= 0 {
		return window, nil
	}

	var msgs []models.Message
	err = r.db.WithContext(ctx).
		Where("chat_id = ?", chat.ID).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, storageErr("fetch window", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	window.Messages = msgs
	return window, nil
}

// Clear deletes every message and zeroes the aggregates. Clearing an empty or
// missing conversation is not an error.
func (r *GormHistoryStore) Clear(ctx context.Context, userID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chat models.Chat
		err := tx.Where("user_id = ?", userID).First(&chat).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.Where("chat_id = ?", chat.ID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Chat{}).Where("id = ?", chat.ID).Updates(map[string]any{
			"total_messages": 0,
			"total_tokens":   0,
			"last_activity":  r.now(),
		}).Error
	})
	if err != nil {
		return storageErr("clear", err)
	}
	return nil
}

// Stats returns the aggregate snapshot; found is false when the user has no conversation yet.
func (r *GormHistoryStore) Stats(ctx context.Context, userID uint) (*models.ChatMetadata, bool, error) {
	chat, err := r.findChat(ctx, userID)
	if err != nil {
		return nil, false, storageErr("stats", err)
	}
	if chat == nil {
		return nil, false, nil
	}
	meta := chat.Metadata()
	return &meta, true, nil
}

// EditMessage rewrites the content of one message and marks it edited.
func (r *GormHistoryStore) EditMessage(ctx context.Context, userID uint, messageID, content string) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		err := tx.Where("external_id = ? AND user_id = ?", messageID, userID).First(&msg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		now := r.now()
		tokens := models.EstimateTokens(content)
		if err := tx.Model(&models.Message{}).Where("id = ?", msg.ID).Updates(map[string]any{
			"content":          content,
			"meta_token_count": tokens,
			"meta_edited":      true,
			"meta_edited_at":   now,
		}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Chat{}).Where("id = ?", msg.ChatID).Updates(map[string]any{
			"total_tokens":  gorm.Expr("total_tokens + ?", tokens-msg.Metadata.TokenCount),
			"last_activity": now,
		}).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, storageErr("edit message", err)
	}
	return applied, nil
}

// DeleteMessage removes one message and decrements the aggregates.
func (r *GormHistoryStore) DeleteMessage(ctx context.Context, userID uint, messageID string) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		err := tx.Where("external_id = ? AND user_id = ?", messageID, userID).First(&msg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.Delete(&models.Message{}, msg.ID).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Chat{}).Where("id = ?", msg.ChatID).Updates(map[string]any{
			"total_messages": gorm.Expr("total_messages - 1"),
			"total_tokens":   gorm.Expr("total_tokens - ?", msg.Metadata.TokenCount),
		}).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, storageErr("delete message", err)
	}
	return applied, nil
}

// UpdateTitle renames the user's conversation; false when there is none.
func (r *GormHistoryStore) UpdateTitle(ctx context.Context, userID uint, title string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Chat{}).Where("user_id = ?", userID).Update("title", title)
	if res.Error != nil {
		return false, storageErr("update title", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Ping checks the underlying connection
func (r *GormHistoryStore) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
