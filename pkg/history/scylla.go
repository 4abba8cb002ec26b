package history

import (
	"context"
	"sort"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mahaj/chatrelay/pkg/db"
	"github.com/mahaj/chatrelay/pkg/log"
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/mahaj/chatrelay/pkg/snowflake"
)

const (
	scyllaInsert = `INSERT INTO ` + db.MessagesTable + ` (room, seq, uuid, payload, created_at) VALUES (?, ?, ?, ?, ?)`
	scyllaSelect = `SELECT seq, payload FROM ` + db.MessagesTable + ` WHERE room = ?`
)

// Scylla keeps room logs in one partition per room, clustered by a snowflake
// sequence.
type Scylla struct {
	session *db.Session
	seq     *snowflake.Node
}

func NewScylla(session *db.Session, seq *snowflake.Node) *Scylla {
	return &Scylla{session: session, seq: seq}
}

func (s *Scylla) Append(ctx context.Context, room string, msg model.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}

	err = s.session.Query(scyllaInsert, room, s.seq.Generate().Int64(), gocql.UUID(msg.ID), string(data), msg.Timestamp).
		WithContext(ctx).Exec()
	if err != nil {
		return unavailable(err, "failed to append to room %s", room)
	}
	return nil
}

type scyllaRow struct {
	seq int64
	msg model.Message
}

func (s *Scylla) rows(ctx context.Context, room string) ([]scyllaRow, error) {
	iter := s.session.Query(scyllaSelect, room).WithContext(ctx).Iter()

	var (
		out     []scyllaRow
		seq     int64
		payload string
	)
	for iter.Scan(&seq, &payload) {
		msg, err := model.Decode([]byte(payload))
		if err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoom, room).Int64("seq", seq).Msg("skipping corrupt history entry")
			continue
		}
		out = append(out, scyllaRow{seq: seq, msg: msg})
	}
	if err := iter.Close(); err != nil {
		return nil, unavailable(err, "failed to read room %s", room)
	}
	return out, nil
}

func (s *Scylla) ReadAll(ctx context.Context, room string) ([]model.Message, error) {
	rows, err := s.rows(ctx, room)
	if err != nil {
		return nil, err
	}

	out := make([]model.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.msg)
	}
	return out, nil
}

func (s *Scylla) Rooms(ctx context.Context) ([]string, error) {
	iter := s.session.Query(`SELECT DISTINCT room FROM ` + db.MessagesTable).WithContext(ctx).Iter()

	var (
		rooms []string
		room  string
	)
	for iter.Scan(&room) {
		rooms = append(rooms, room)
	}
	if err := iter.Close(); err != nil {
		return nil, unavailable(err, "failed to list rooms")
	}
	sort.Strings(rooms)
	return rooms, nil
}

func (s *Scylla) Count(ctx context.Context, room string) (int64, error) {
	var n int64
	err := s.session.Query(`SELECT COUNT(*) FROM `+db.MessagesTable+` WHERE room = ?`, room).
		WithContext(ctx).Scan(&n)
	if err != nil {
		return 0, unavailable(err, "failed to count room %s", room)
	}
	return n, nil
}

func (s *Scylla) Clear(ctx context.Context, room string) error {
	err := s.session.Query(`DELETE FROM `+db.MessagesTable+` WHERE room = ?`, room).WithContext(ctx).Exec()
	if err != nil {
		return unavailable(err, "failed to clear room %s", room)
	}
	return nil
}

func (s *Scylla) Delete(ctx context.Context, room string, id uuid.UUID) (model.Message, error) {
	rows, err := s.rows(ctx, room)
	if err != nil {
		return model.Message{}, err
	}

	for _, r := range rows {
		if r.msg.ID != id {
			continue
		}
		err := s.session.Query(`DELETE FROM `+db.MessagesTable+` WHERE room = ? AND seq = ?`, room, r.seq).
			WithContext(ctx).Exec()
		if err != nil {
			return model.Message{}, unavailable(err, "failed to delete message %s", id)
		}
		return r.msg, nil
	}
	return model.Message{}, ErrNotFound
}

func (s *Scylla) Trim(ctx context.Context, room string, keep int64) error {
	if keep <= 0 {
		return s.Clear(ctx, room)
	}

	rows, err := s.rows(ctx, room)
	if err != nil {
		return err
	}
	if int64(len(rows)) <= keep {
		return nil
	}

	cutoff := rows[int64(len(rows))-keep].seq
	err = s.session.Query(`DELETE FROM `+db.MessagesTable+` WHERE room = ? AND seq < ?`, room, cutoff).
		WithContext(ctx).Exec()
	if err != nil {
		return unavailable(err, "failed to trim room %s", room)
	}
	return nil
}
