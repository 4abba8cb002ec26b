package history

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/mahaj/chatrelay/pkg/log"
	"github.com/mahaj/chatrelay/pkg/model"
)

const DefaultKeyPrefix = "room:"

// Redis stores each room as one list of JSON encoded messages, newest last.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (s *Redis) key(room string) string {
	return s.prefix + room
}

func (s *Redis) Append(ctx context.Context, room string, msg model.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}
	if err := s.client.RPush(ctx, s.key(room), data).Err(); err != nil {
		return unavailable(err, "failed to append to room %s", room)
	}
	return nil
}

func (s *Redis) ReadAll(ctx context.Context, room string) ([]model.Message, error) {
	raw, err := s.client.LRange(ctx, s.key(room), 0, -1).Result()
	if err != nil {
		return nil, unavailable(err, "failed to read room %s", room)
	}

	out := make([]model.Message, 0, len(raw))
	for _, entry := range raw {
		msg, err := model.Decode([]byte(entry))
		if err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoom, room).Msg("skipping corrupt history entry")
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *Redis) Rooms(ctx context.Context) ([]string, error) {
	var (
		rooms  []string
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return nil, unavailable(err, "failed to scan rooms")
		}
		for _, k := range keys {
			rooms = append(rooms, strings.TrimPrefix(k, s.prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(rooms)
	return rooms, nil
}

func (s *Redis) Count(ctx context.Context, room string) (int64, error) {
	n, err := s.client.LLen(ctx, s.key(room)).Result()
	if err != nil {
		return 0, unavailable(err, "failed to count room %s", room)
	}
	return n, nil
}

func (s *Redis) Clear(ctx context.Context, room string) error {
	if err := s.client.Del(ctx, s.key(room)).Err(); err != nil {
		return unavailable(err, "failed to clear room %s", room)
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, room string, id uuid.UUID) (model.Message, error) {
	raw, err := s.client.LRange(ctx, s.key(room), 0, -1).Result()
	if err != nil {
		return model.Message{}, unavailable(err, "failed to read room %s", room)
	}

	for _, entry := range raw {
		msg, err := model.Decode([]byte(entry))
		if err != nil || msg.ID != id {
			continue
		}
		if err := s.client.LRem(ctx, s.key(room), 1, entry).Err(); err != nil {
			return model.Message{}, unavailable(err, "failed to delete message %s", id)
		}
		return msg, nil
	}
	return model.Message{}, ErrNotFound
}

func (s *Redis) Trim(ctx context.Context, room string, keep int64) error {
	var err error
	if keep <= 0 {
		err = s.client.Del(ctx, s.key(room)).Err()
	} else {
		err = s.client.LTrim(ctx, s.key(room), -keep, -1).Err()
	}
	if err != nil {
		return unavailable(err, "failed to trim room %s", room)
	}
	return nil
}
