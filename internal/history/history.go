// Package history persists the turns of each chat session.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrHistoryStore wraps every history backend failure.
var ErrHistoryStore = errors.New("history store error")

// ErrEmptySession is returned when a session id is blank.
var ErrEmptySession = errors.New("session id is empty")

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role      Role      `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// UserTurn and AssistantTurn build turns stamped with now.
func UserTurn(content string, now time.Time) Turn {
	return Turn{Role: RoleUser, Content: content, CreatedAt: now}
}

func AssistantTurn(content string, now time.Time) Turn {
	return Turn{Role: RoleAssistant, Content: content, CreatedAt: now}
}

// Store is an append-only log of turns per session.
type Store interface {
	// Load returns the turns of session in append order. An unseen session
	// yields an empty slice.
	Load(ctx context.Context, session string) ([]Turn, error)
	// Append adds turns to session in order as one atomic write.
	Append(ctx context.Context, session string, turns ...Turn) error
	Health(ctx context.Context) error
	Close(ctx context.Context) error
}

// Namespace scopes stored history to one user and database.
type Namespace struct {
	User       string
	Database   string
	Collection string
}

// Key returns the Redis list key for session.
func (n Namespace) Key(session string) string {
	return fmt.Sprintf("%s:history:%s:%s", n.Database, n.User, session)
}

func checkSession(session string) error {
	if session == "" {
		return fmt.Errorf("%w: %w", ErrHistoryStore, ErrEmptySession)
	}
	return nil
}

// stamp fills in missing creation times.
func stamp(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	now := time.Now().UTC()
	for i, t := range turns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		out[i] = t
	}
	return out
}
