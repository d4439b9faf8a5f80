package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrFileNotFound = errors.New("file not found")
)

// Store is the relational side of the application: file records and chat
// transcripts. Every lookup is scoped to the owning user.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateFile(ctx context.Context, f *File) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NewInsert().Model(f).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

func (s *Store) GetFile(ctx context.Context, userID, fileID int64) (*File, error) {
	f := new(File)
	err := s.db.NewSelect().Model(f).
		Where("id = ?", fileID).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

// ListFiles returns the user's files, newest first.
func (s *Store) ListFiles(ctx context.Context, userID int64) ([]File, error) {
	var files []File
	err := s.db.NewSelect().Model(&files).
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC, id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

func (s *Store) DeleteFile(ctx context.Context, userID, fileID int64) error {
	res, err := s.db.NewDelete().Model((*File)(nil)).
		Where("id = ?", fileID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrFileNotFound
	}
	return nil
}

func (s *Store) GetChat(ctx context.Context, userID, chatID int64) (*Chat, error) {
	c := new(Chat)
	err := s.db.NewSelect().Model(c).
		Where("id = ?", chatID).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return c, nil
}

// ListChats returns the user's chats, newest first.
func (s *Store) ListChats(ctx context.Context, userID int64) ([]Chat, error) {
	var chats []Chat
	err := s.db.NewSelect().Model(&chats).
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC, id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return chats, nil
}

// LatestChat returns the most recently created chat of the user.
func (s *Store) LatestChat(ctx context.Context, userID int64) (*Chat, error) {
	c := new(Chat)
	err := s.db.NewSelect().Model(c).
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC, id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest chat: %w", err)
	}
	return c, nil
}

// DeleteChat removes the chat; its messages go with it through the foreign key.
func (s *Store) DeleteChat(ctx context.Context, userID, chatID int64) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().Model((*Chat)(nil)).
			Where("id = ?", chatID).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete chat: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrChatNotFound
		}
		return nil
	})
}

// Messages returns every turn of the chat, oldest first.
func (s *Store) Messages(ctx context.Context, chatID int64) ([]ChatMessage, error) {
	var msgs []ChatMessage
	err := s.db.NewSelect().Model(&msgs).
		Where("chat_id = ?", chatID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// RecentMessages returns at most limit turns of the chat, most recent first.
func (s *Store) RecentMessages(ctx context.Context, chatID int64, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	var msgs []ChatMessage
	err := s.db.NewSelect().Model(&msgs).
		Where("chat_id = ?", chatID).
		OrderExpr("created_at DESC, id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	return msgs, nil
}

// SaveExchange stores a question and its answer atomically. A chat with a
// zero ID is inserted first, in the same transaction.
func (s *Store) SaveExchange(ctx context.Context, chat *Chat, human, assistant *ChatMessage) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if chat.ID == 0 {
			if chat.CreatedAt.IsZero() {
				chat.CreatedAt = time.Now().UTC()
			}
			if _, err := tx.NewInsert().Model(chat).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert chat: %w", err)
			}
		}
		now := time.Now().UTC()
		for _, msg := range []*ChatMessage{human, assistant} {
			msg.ChatID = chat.ID
			if msg.CreatedAt.IsZero() {
				msg.CreatedAt = now
			}
			if _, err := tx.NewInsert().Model(msg).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert %s message: %w", msg.Type, err)
			}
		}
		return nil
	})
}
