// Package history persists the ordered message log of every room.
package history

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mahaj/chatrelay/pkg/model"
)

var (
	// ErrUnavailable marks failures talking to the backing store.
	ErrUnavailable = errors.New("history store unavailable")
	ErrNotFound    = errors.New("message not found")
)

// Store is an append-only, per-room message log.
type Store interface {
	// Append adds msg at the tail of room's log. Duplicates are kept.
	Append(ctx context.Context, room string, msg model.Message) error
	// ReadAll returns room's log oldest first. Unknown rooms yield an empty
	// slice.
	ReadAll(ctx context.Context, room string) ([]model.Message, error)
}

// Admin covers the maintenance operations on a Store.
type Admin interface {
	Store
	Rooms(ctx context.Context) ([]string, error)
	Count(ctx context.Context, room string) (int64, error)
	Clear(ctx context.Context, room string) error
	Delete(ctx context.Context, room string, id uuid.UUID) (model.Message, error)
	// Trim drops all but the newest keep entries of room.
	Trim(ctx context.Context, room string, keep int64) error
}

// Activity is the number of stored messages in a room.
type Activity struct {
	Room     string `json:"room"`
	Messages int64  `json:"messages"`
}

// RoomActivity lists every stored room with its message count.
func RoomActivity(ctx context.Context, a Admin) ([]Activity, error) {
	rooms, err := a.Rooms(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Activity, 0, len(rooms))
	for _, r := range rooms {
		n, err := a.Count(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, Activity{Room: r, Messages: n})
	}
	return out, nil
}

func unavailable(err error, format string, args ...interface{}) error {
	return errors.Wrapf(errors.Wrap(ErrUnavailable, err.Error()), format, args...)
}
