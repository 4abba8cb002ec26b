package history

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/chatrelay/pkg/config"
	"github.com/mahaj/chatrelay/pkg/db"
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/mahaj/chatrelay/pkg/snowflake"
)

func newRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, ""), mr
}

func backends(t *testing.T) map[string]func(t *testing.T) Admin {
	return map[string]func(t *testing.T) Admin{
		"memory": func(t *testing.T) Admin { return NewMemory() },
		"redis": func(t *testing.T) Admin {
			s, _ := newRedisStore(t)
			return s
		},
	}
}

func msg(author, text string) model.Message {
	m := model.NewMessage(model.KindReceive)
	m.Author = &model.Identity{ID: 1, Name: author}
	m.Content = model.Text(text)
	m.Room = "lobby"
	return m
}

func contents(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ContentText()
	}
	return out
}

func TestStore_RoundTripAndOrder(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			first, second := msg("A", "x"), msg("B", "y")
			require.NoError(t, s.Append(ctx, "lobby", first))
			require.NoError(t, s.Append(ctx, "lobby", second))

			got, err := s.ReadAll(ctx, "lobby")
			require.NoError(t, err)
			require.Len(t, got, 2)
			require.Equal(t, first.ID, got[0].ID)
			require.Equal(t, second.ID, got[1].ID)
			require.Equal(t, "A", got[0].Author.Name)
			require.Equal(t, []string{"x", "y"}, contents(got))
			require.True(t, first.Timestamp.Equal(got[0].Timestamp))
		})
	}
}

func TestStore_StoredHistoryIsNotShared(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			m := msg("A", "original")
			require.NoError(t, s.Append(ctx, "lobby", m))
			*m.Content = "edited before read"
			m.Author.Name = "Z"

			got, err := s.ReadAll(ctx, "lobby")
			require.NoError(t, err)
			require.Len(t, got, 1)
			*got[0].Content = "edited after read"
			got[0].Author.Name = "Y"
			got[0].To = &model.Identity{ID: 9}

			again, err := s.ReadAll(ctx, "lobby")
			require.NoError(t, err)
			require.Equal(t, "original", again[0].ContentText())
			require.Equal(t, "A", again[0].Author.Name)
			require.Nil(t, again[0].To)
		})
	}
}

func TestStore_UnknownRoomIsEmpty(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := open(t).ReadAll(context.Background(), "nobody")
			require.NoError(t, err)
			require.Empty(t, got)
		})
	}
}

func TestStore_DuplicatesKept(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			m := msg("A", "same")
			require.NoError(t, s.Append(ctx, "lobby", m))
			require.NoError(t, s.Append(ctx, "lobby", m))

			n, err := s.Count(ctx, "lobby")
			require.NoError(t, err)
			require.EqualValues(t, 2, n)
		})
	}
}

func TestStore_ConcurrentAppendsPerProducerOrder(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			var wg sync.WaitGroup
			for p := 0; p < 4; p++ {
				wg.Add(1)
				go func(p int) {
					defer wg.Done()
					for i := 0; i < 25; i++ {
						if err := s.Append(ctx, "busy", msg("A", fmt.Sprintf("%d-%d", p, i))); err != nil {
							t.Error(err)
						}
					}
				}(p)
			}
			wg.Wait()

			got, err := s.ReadAll(ctx, "busy")
			require.NoError(t, err)
			require.Len(t, got, 100)

			last := map[int]int{}
			for _, m := range got {
				var p, i int
				_, err := fmt.Sscanf(m.ContentText(), "%d-%d", &p, &i)
				require.NoError(t, err)
				if prev, ok := last[p]; ok {
					require.Greater(t, i, prev)
				}
				last[p] = i
			}
		})
	}
}

func TestAdmin_Operations(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			var ids []uuid.UUID
			for i := 0; i < 5; i++ {
				m := msg("A", fmt.Sprint(i))
				ids = append(ids, m.ID)
				require.NoError(t, s.Append(ctx, "lobby", m))
			}
			require.NoError(t, s.Append(ctx, "games", msg("B", "gg")))

			activity, err := RoomActivity(ctx, s)
			require.NoError(t, err)
			require.Equal(t, []Activity{{Room: "games", Messages: 1}, {Room: "lobby", Messages: 5}}, activity)

			deleted, err := s.Delete(ctx, "lobby", ids[1])
			require.NoError(t, err)
			require.Equal(t, "1", deleted.ContentText())

			_, err = s.Delete(ctx, "lobby", uuid.New())
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Trim(ctx, "lobby", 2))
			got, err := s.ReadAll(ctx, "lobby")
			require.NoError(t, err)
			require.Equal(t, []string{"3", "4"}, contents(got))

			require.NoError(t, s.Trim(ctx, "lobby", 10))
			n, err := s.Count(ctx, "lobby")
			require.NoError(t, err)
			require.EqualValues(t, 2, n)

			require.NoError(t, s.Clear(ctx, "games"))
			rooms, err := s.Rooms(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"lobby"}, rooms)
		})
	}
}

func TestRedis_KeyLayout(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "lobby", msg("A", "x")))

	entries, err := mr.List("room:lobby")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, strings.Contains(entries[0], `"messageType":"receive"`))
}

func TestRedis_SkipsCorruptEntries(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "lobby", msg("A", "before")))
	_, err := mr.Push("room:lobby", "{not json")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "lobby", msg("A", "after")))

	got, err := s.ReadAll(ctx, "lobby")
	require.NoError(t, err)
	require.Equal(t, []string{"before", "after"}, contents(got))
}

func TestRedis_Unavailable(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()

	err := s.Append(context.Background(), "lobby", msg("A", "x"))
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = s.ReadAll(context.Background(), "lobby")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.History.Backend = "redis"
	cfg.Redis.Address = mr.Addr()

	store, closer, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, &Redis{}, store)
	require.NoError(t, closer.Close())

	cfg.History.Backend = "memory"
	store, _, err = Open(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, &Memory{}, store)

	cfg.History.Backend = "nope"
	_, _, err = Open(context.Background(), cfg)
	require.Error(t, err)
}

// Runs against a live cluster when SCYLLA_TEST_HOSTS is set.
func TestScylla_Integration(t *testing.T) {
	hosts := os.Getenv("SCYLLA_TEST_HOSTS")
	if hosts == "" {
		t.Skip("SCYLLA_TEST_HOSTS not set")
	}

	list := strings.Split(hosts, ",")
	require.NoError(t, db.CreateKeyspace(list, "chat_test", 10*time.Second))
	session, err := db.NewSession(list, "chat_test", 10*time.Second)
	require.NoError(t, err)
	defer session.Close()
	require.NoError(t, session.EnsureSchema())

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s := NewScylla(session, node)
	ctx := context.Background()
	room := "it_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(ctx, room, msg("A", fmt.Sprint(i))))
	}
	got, err := s.ReadAll(ctx, room)
	require.NoError(t, err)
	require.Equal(t, []string{"0", "1", "2"}, contents(got))

	require.NoError(t, s.Trim(ctx, room, 1))
	got, err = s.ReadAll(ctx, room)
	require.NoError(t, err)
	require.Equal(t, []string{"2"}, contents(got))

	require.NoError(t, s.Clear(ctx, room))
}
