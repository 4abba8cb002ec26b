package history

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/mahaj/chatrelay/pkg/model"
)

// Memory keeps every room log in process. Used by tests and local runs.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string][]model.Message
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string][]model.Message)}
}

func (m *Memory) Append(_ context.Context, room string, msg model.Message) error {
	m.mu.Lock()
	m.rooms[room] = append(m.rooms[room], msg.Clone())
	m.mu.Unlock()
	return nil
}

func (m *Memory) ReadAll(_ context.Context, room string) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.rooms[room]
	out := make([]model.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = msg.Clone()
	}
	return out, nil
}

func (m *Memory) Rooms(_ context.Context) ([]string, error) {
	m.mu.RLock()
	out := make([]string, 0, len(m.rooms))
	for r, msgs := range m.rooms {
		if len(msgs) > 0 {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()

	sort.Strings(out)
	return out, nil
}

func (m *Memory) Count(_ context.Context, room string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.rooms[room])), nil
}

func (m *Memory) Clear(_ context.Context, room string) error {
	m.mu.Lock()
	delete(m.rooms, room)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, room string, id uuid.UUID) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.rooms[room]
	for i, msg := range msgs {
		if msg.ID == id {
			m.rooms[room] = append(msgs[:i:i], msgs[i+1:]...)
			return msg, nil
		}
	}
	return model.Message{}, ErrNotFound
}

func (m *Memory) Trim(_ context.Context, room string, keep int64) error {
	if keep < 0 {
		keep = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.rooms[room]
	if int64(len(msgs)) <= keep {
		return nil
	}
	m.rooms[room] = append([]model.Message(nil), msgs[int64(len(msgs))-keep:]...)
	return nil
}
