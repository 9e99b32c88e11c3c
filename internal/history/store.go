package history

import (
	"context"
	"errors"

	"github.com/example/deepfake-detector/internal/domain"
)

// DisplayLimit is the number of entries shown in the gallery.
const DisplayLimit = 5

// ErrNotFound is returned when a session has no entry with the requested id.
var ErrNotFound = errors.New("history entry not found")

// Entry is one recorded prediction. Thumbnail is a PNG for the gallery;
// Preview is a display-sized JPEG of the uploaded image.
type Entry struct {
	ID        string                  `json:"id"`
	Result    domain.PredictionResult `json:"result"`
	Thumbnail []byte                  `json:"thumbnail"`
	Preview   []byte                  `json:"preview"`
}

// Store is a session-scoped, append-only log of predictions.
type Store interface {
	// Append adds entry to the end of the session's log.
	Append(ctx context.Context, sessionID string, entry Entry) error
	// Recent returns the last min(n, len) entries, most recent first.
	Recent(ctx context.Context, sessionID string, n int) ([]Entry, error)
	// Get looks up one entry by id.
	Get(ctx context.Context, sessionID, entryID string) (Entry, error)
	// All returns every entry in insertion order.
	All(ctx context.Context, sessionID string) ([]Entry, error)
	// Clear drops the session's log.
	Clear(ctx context.Context, sessionID string) error
}

// recentOf returns the last n entries of log in reverse order.
func recentOf(log []Entry, n int) []Entry {
	if n <= 0 || len(log) == 0 {
		return []Entry{}
	}
	if n > len(log) {
		n = len(log)
	}
	out := make([]Entry, 0, n)
	for i := len(log) - 1; i >= len(log)-n; i-- {
		out = append(out, log[i])
	}
	return out
}

func findEntry(log []Entry, entryID string) (Entry, error) {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].ID == entryID {
			return log[i], nil
		}
	}
	return Entry{}, ErrNotFound
}
