// Package presence tracks which identities hold an open session per room.
package presence

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/mahaj/chatrelay/pkg/log"
	"github.com/mahaj/chatrelay/pkg/model"
)

const DefaultKeyPrefix = "presence:"

// leaveScript decrements a member's session count and drops the field once
// no session is left.
var leaveScript = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call('HDEL', KEYS[1], ARGV[1])
	n = 0
end
return n
`)

// Tracker keeps one hash per room mapping member to open session count.
type Tracker struct {
	client redis.UniversalClient
	prefix string
}

func NewTracker(client redis.UniversalClient, prefix string) *Tracker {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Tracker{client: client, prefix: prefix}
}

func (t *Tracker) key(room string) string {
	return t.prefix + room
}

func field(id model.Identity) string {
	return strconv.FormatInt(id.ID, 10) + ":" + id.Name
}

func parseField(f string) (model.Identity, bool) {
	idStr, name, ok := strings.Cut(f, ":")
	if !ok {
		return model.Identity{}, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return model.Identity{}, false
	}
	return model.Identity{ID: id, Name: name}, true
}

func (t *Tracker) Join(ctx context.Context, room string, id model.Identity) error {
	if err := t.client.HIncrBy(ctx, t.key(room), field(id), 1).Err(); err != nil {
		return errors.Wrapf(err, "failed to join %s to room %s", id.Name, room)
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldRoom, room).Int64(log.FieldUserID, id.ID).Msg("presence joined")
	return nil
}

func (t *Tracker) Leave(ctx context.Context, room string, id model.Identity) error {
	if err := leaveScript.Run(ctx, t.client, []string{t.key(room)}, field(id)).Err(); err != nil {
		return errors.Wrapf(err, "failed to remove %s from room %s", id.Name, room)
	}

	l := log.Ctx(ctx)
	l.Debug().Str(log.FieldRoom, room).Int64(log.FieldUserID, id.ID).Msg("presence left")
	return nil
}

// Members lists the identities with at least one open session, by name.
func (t *Tracker) Members(ctx context.Context, room string) ([]model.Identity, error) {
	fields, err := t.client.HKeys(ctx, t.key(room)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list members of room %s", room)
	}

	out := make([]model.Identity, 0, len(fields))
	for _, f := range fields {
		if id, ok := parseField(f); ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
