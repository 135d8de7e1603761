// Package session keeps the pending symbol selection of each chat user
// between the search reply and the button press.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/FranksOps/bubblescope/internal/domain"
)

// ErrExpired is returned when a user has no pending selection, either
// because it timed out or it was already consumed.
var ErrExpired = errors.New("session: selection expired")

// DefaultTTL bounds how long a selection waits for a choice.
const DefaultTTL = 10 * time.Minute

// Selection is the list of candidates offered to one user.
type Selection struct {
	Chain      domain.Chain             `json:"chain"`
	Candidates []domain.SearchCandidate `json:"candidates"`
	// MessageID is the chat message carrying the keyboard.
	MessageID int       `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Store holds at most one selection per user. Take consumes it.
type Store interface {
	Put(ctx context.Context, userID int64, sel Selection) error
	Take(ctx context.Context, userID int64) (*Selection, error)
	Close() error
}

// Purger drops expired selections. Stores that expire entries on their own
// do not implement it.
type Purger interface {
	Purge(now time.Time) int
}
