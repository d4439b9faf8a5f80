package rag

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prajwalprabhu/File-Chat/internal/db"
)

// memStore keeps files and transcripts in memory with the same semantics as
// db.Store.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	clock     time.Time
	files     []db.File
	chats     []db.Chat
	messages  []db.ChatMessage
	createErr error
	saveErr   error
}

func newMemStore() *memStore {
	return &memStore{clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *memStore) tick() (int64, time.Time) {
	m.nextID++
	m.clock = m.clock.Add(time.Second)
	return m.nextID, m.clock
}

func (m *memStore) CreateFile(_ context.Context, f *db.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	f.ID, f.CreatedAt = m.tick()
	m.files = append(m.files, *f)
	return nil
}

func (m *memStore) GetFile(_ context.Context, userID, fileID int64) (*db.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.files {
		if f.ID == fileID && f.UserID == userID {
			f := f
			return &f, nil
		}
	}
	return nil, db.ErrFileNotFound
}

func (m *memStore) ListFiles(_ context.Context, userID int64) ([]db.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.File
	for i := len(m.files) - 1; i >= 0; i-- {
		if m.files[i].UserID == userID {
			out = append(out, m.files[i])
		}
	}
	return out, nil
}

func (m *memStore) DeleteFile(_ context.Context, userID, fileID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, f := range m.files {
		if f.ID == fileID && f.UserID == userID {
			m.files = append(m.files[:i], m.files[i+1:]...)
			return nil
		}
	}
	return db.ErrFileNotFound
}

func (m *memStore) GetChat(_ context.Context, userID, chatID int64) (*db.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.chats {
		if c.ID == chatID && c.UserID == userID {
			c := c
			return &c, nil
		}
	}
	return nil, db.ErrChatNotFound
}

func (m *memStore) ListChats(_ context.Context, userID int64) ([]db.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.Chat
	for i := len(m.chats) - 1; i >= 0; i-- {
		if m.chats[i].UserID == userID {
			out = append(out, m.chats[i])
		}
	}
	return out, nil
}

func (m *memStore) LatestChat(ctx context.Context, userID int64) (*db.Chat, error) {
	chats, _ := m.ListChats(ctx, userID)
	if len(chats) == 0 {
		return nil, db.ErrChatNotFound
	}
	return &chats[0], nil
}

func (m *memStore) Messages(_ context.Context, chatID int64) ([]db.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.ChatMessage
	for _, msg := range m.messages {
		if msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memStore) RecentMessages(ctx context.Context, chatID int64, limit int) ([]db.ChatMessage, error) {
	msgs, _ := m.Messages(ctx, chatID)
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
		}
		return msgs[i].ID > msgs[j].ID
	})
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (m *memStore) SaveExchange(_ context.Context, chat *db.Chat, human, assistant *db.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if chat.ID == 0 {
		chat.ID, chat.CreatedAt = m.tick()
		m.chats = append(m.chats, *chat)
	}
	for _, msg := range []*db.ChatMessage{human, assistant} {
		msg.ChatID = chat.ID
		msg.ID, msg.CreatedAt = m.tick()
		m.messages = append(m.messages, *msg)
	}
	return nil
}

func (m *memStore) DeleteChat(_ context.Context, userID, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.chats {
		if c.ID == chatID && c.UserID == userID {
			m.chats = append(m.chats[:i], m.chats[i+1:]...)
			kept := m.messages[:0]
			for _, msg := range m.messages {
				if msg.ChatID != chatID {
					kept = append(kept, msg)
				}
			}
			m.messages = kept
			return nil
		}
	}
	return db.ErrChatNotFound
}

func (m *memStore) counts() (chats, messages int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chats), len(m.messages)
}
