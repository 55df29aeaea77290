// Package history keeps a log of conversation turns.
package history

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Source string

const (
	SourceText  Source = "text"
	SourceVoice Source = "voice"
	SourceFile  Source = "file"
)

// Turn is one message. A user turn and its reply share ExchangeID.
type Turn struct {
	ID         uuid.UUID `json:"id"`
	ExchangeID uuid.UUID `json:"exchange_id"`
	Role       Role      `json:"role"`
	Source     Source    `json:"source"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewTurn(exchange uuid.UUID, role Role, src Source, content string) Turn {
	return Turn{
		ID:         uuid.New(),
		ExchangeID: exchange,
		Role:       role,
		Source:     src,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
}

type Store interface {
	Save(ctx context.Context, t Turn) error
	// Recent returns up to limit turns, oldest first.
	Recent(ctx context.Context, limit int) ([]Turn, error)
	Close() error
}

// NewStore picks PostgreSQL when databaseURL is set and memory otherwise.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryStore(0), nil
	}
	return NewPostgresStore(ctx, databaseURL)
}
