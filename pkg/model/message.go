package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Plain-text frames that bypass the JSON encoding.
const (
	FramePing  = "Ping"
	FramePong  = "Pong"
	FrameClose = "Close"
)

var ErrUnknownKind = errors.New("unknown message type")

// Kind is the closed set of message types exchanged over a room socket.
type Kind int

const (
	KindSend Kind = iota + 1
	KindReceive
	KindRetrieveMessages
	KindMessagesRetrieved
	KindReconnected
	KindDisconnected
)

var kindNames = map[Kind]string{
	KindSend:              "send",
	KindReceive:           "receive",
	KindRetrieveMessages:  "retrieveMessages",
	KindMessagesRetrieved: "messagesRetrieved",
	KindReconnected:       "reconnected",
	KindDisconnected:      "disconnected",
}

// Kinds lists every message type in declaration order.
func Kinds() []Kind {
	return []Kind{KindSend, KindReceive, KindRetrieveMessages, KindMessagesRetrieved, KindReconnected, KindDisconnected}
}

func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownKind, "%q", s)
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) {
	name, ok := kindNames[k]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownKind, "%d", int(k))
	}
	return []byte(name), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Identity is the snapshot of a user attached to a message.
type Identity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Message struct {
	Kind      Kind      `json:"messageType"`
	ID        uuid.UUID `json:"uuid"`
	Content   *string   `json:"content,omitempty"`
	Author    *Identity `json:"author,omitempty"`
	To        *Identity `json:"to,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Room      string    `json:"room,omitempty"`
}

// NewMessage returns a message of the given kind with a fresh id and timestamp.
func NewMessage(kind Kind) Message {
	return Message{
		Kind:      kind,
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
	}
}

// Text returns a pointer to s, for the optional content field.
func Text(s string) *string {
	return &s
}

// Decode parses one JSON frame. Missing ids and timestamps are filled in so
// that the id is fixed from this point on.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, errors.Wrap(err, "decode message")
	}
	if _, ok := kindNames[m.Kind]; !ok {
		return Message{}, errors.Wrap(ErrUnknownKind, "decode message")
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return m, nil
}

func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrapf(err, "encode message %s", m.ID)
	}
	return data, nil
}

// ContentText returns the content or an empty string for control messages.
func (m Message) ContentText() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// Received is the copy of a sent message that gets persisted and relayed.
func (m Message) Received(room string) Message {
	out := m.Clone()
	out.Kind = KindReceive
	out.Room = room
	out.To = nil
	return out
}

// For is the copy of a stored message replayed privately to recipient.
func (m Message) For(recipient Identity) Message {
	out := m.Clone()
	out.To = &recipient
	return out
}

// IsFor reports whether a client with identity id should render m.
func (m Message) IsFor(id Identity) bool {
	return m.To == nil || m.To.ID == id.ID
}

// Retrieved marks the end of a history replay for requester.
func Retrieved(requester Identity, room string) Message {
	m := NewMessage(KindMessagesRetrieved)
	m.Author = &requester
	m.Room = room
	return m
}

// Clone returns a copy of m that shares no pointers with it.
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		out.Content = Text(*m.Content)
	}
	if m.Author != nil {
		author := *m.Author
		out.Author = &author
	}
	if m.To != nil {
		to := *m.To
		out.To = &to
	}
	return out
}
