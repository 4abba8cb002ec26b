package db

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"

	"github.com/mahaj/chatrelay/pkg/log"
)

const MessagesTable = "room_messages"

type Session struct {
	*gocql.Session
	keyspace string
}

func newCluster(hosts []string, keyspace string, timeout time.Duration) *gocql.ClusterConfig {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = timeout
	cluster.ConnectTimeout = timeout

	// Retry policy
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}
	return cluster
}

func NewSession(hosts []string, keyspace string, timeout time.Duration) (*Session, error) {
	session, err := newCluster(hosts, keyspace, timeout).CreateSession()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to scylla keyspace %s", keyspace)
	}

	l := log.L()
	l.Info().Strs("hosts", hosts).Str("keyspace", keyspace).Msg("connected to ScyllaDB cluster")
	return &Session{Session: session, keyspace: keyspace}, nil
}

// CreateKeyspace creates keyspace through the system keyspace if missing.
func CreateKeyspace(hosts []string, keyspace string, timeout time.Duration) error {
	sys, err := NewSession(hosts, "system", timeout)
	if err != nil {
		return err
	}
	defer sys.Close()

	stmt := fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`, keyspace)
	if err := sys.Query(stmt).Exec(); err != nil {
		return errors.Wrapf(err, "failed to create keyspace %s", keyspace)
	}
	return nil
}

// EnsureSchema creates the room message table. seq is a snowflake id, so
// clustering order is append order.
func (s *Session) EnsureSchema() error {
	err := s.Query(`CREATE TABLE IF NOT EXISTS ` + MessagesTable + ` (
		room text,
		seq bigint,
		uuid uuid,
		payload text,
		created_at timestamp,
		PRIMARY KEY (room, seq)
	) WITH CLUSTERING ORDER BY (seq ASC)`).Exec()
	if err != nil {
		return errors.Wrapf(err, "failed to create %s table", MessagesTable)
	}
	return nil
}

func (s *Session) DropSchema() error {
	if err := s.Query("DROP TABLE IF EXISTS " + MessagesTable).Exec(); err != nil {
		return errors.Wrapf(err, "failed to drop %s table", MessagesTable)
	}
	return nil
}

func (s *Session) Keyspace() string {
	return s.keyspace
}
