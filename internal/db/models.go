package db

import (
	"time"

	"github.com/uptrace/bun"
)

// File records an uploaded source file and the index it was added to.
type File struct {
	bun.BaseModel `bun:"table:files,alias:f"`

	ID             int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID         int64     `bun:"user_id,notnull" json:"user_id"`
	FileName       string    `bun:"filename,notnull" json:"filename"`
	FilePath       string    `bun:"file_path,notnull" json:"file_path"`
	EmbeddingsPath string    `bun:"embeddings_path,notnull" json:"embeddings_path"`
	Chunks         int       `bun:"chunks,notnull,default:0" json:"chunks"`
	CreatedAt      time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

type Chat struct {
	bun.BaseModel `bun:"table:chats,alias:c"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID    int64     `bun:"user_id,notnull" json:"user_id"`
	Title     string    `bun:"title,notnull" json:"title"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// ChatMessage is one turn of a chat. Content is sanitized HTML for display,
// Markdown the raw model text fed back as history.
type ChatMessage struct {
	bun.BaseModel `bun:"table:chat_messages,alias:m"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	ChatID     int64     `bun:"chat_id,notnull" json:"chat_id"`
	Type       string    `bun:"type,notnull" json:"type"`
	Content    string    `bun:"content,notnull" json:"content"`
	Markdown   string    `bun:"markdown,notnull,default:''" json:"-"`
	SourceFile string    `bun:"source_file,nullzero" json:"source_file,omitempty"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
