package dao

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MemoryRoomRepository keeps rooms in process. It stands in for the hosted
// realtime database when none is configured.
type MemoryRoomRepository struct {
	mu     sync.RWMutex
	rooms  map[string]Room
	subs   map[int]memorySub
	nextID int
	now    func() time.Time
	log    logrus.FieldLogger
}

type memorySub struct {
	id string
	ch chan Room
}

func NewMemoryRoomRepository(log logrus.FieldLogger) *MemoryRoomRepository {
	return &MemoryRoomRepository{
		rooms: make(map[string]Room),
		subs:  make(map[int]memorySub),
		now:   time.Now,
		log:   log.WithField("component", "memory_rooms"),
	}
}

func (m *MemoryRoomRepository) Create(ctx context.Context, room Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[room.ID]; ok && !cur.Expired(m.now()) {
		return ErrRoomExists
	}
	m.rooms[room.ID] = cloneRoom(room)
	m.publishLocked(room)
	return nil
}

func (m *MemoryRoomRepository) Get(ctx context.Context, id string) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.liveLocked(id)
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (m *MemoryRoomRepository) List(ctx context.Context) ([]Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Room, 0, len(m.rooms))
	for id := range m.rooms {
		if room, ok := m.liveLocked(id); ok {
			out = append(out, cloneRoom(room))
		}
	}
	return out, nil
}

func (m *MemoryRoomRepository) Update(ctx context.Context, room Room, expectedVersion int64) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.liveLocked(room.ID)
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	if cur.Version != expectedVersion {
		return Room{}, ErrVersionConflict
	}
	room.Version = expectedVersion + 1
	m.rooms[room.ID] = cloneRoom(room)
	m.publishLocked(room)
	return room, nil
}

func (m *MemoryRoomRepository) Touch(ctx context.Context, id, playerID string, at, expiresAt time.Time) (Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.liveLocked(id)
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	room = cloneRoom(room)
	seat := room.seatOf(playerID)
	if seat == nil {
		return Room{}, ErrSeatNotFound
	}
	seat.LastSeen = at
	room.ExpiresAt = expiresAt
	m.rooms[id] = room
	m.publishLocked(room)
	return cloneRoom(room), nil
}

func (m *MemoryRoomRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.liveLocked(id); !ok {
		return ErrRoomNotFound
	}
	delete(m.rooms, id)
	m.publishLocked(closedRoom(id, m.now()))
	return nil
}

func (m *MemoryRoomRepository) Watch(ctx context.Context, id string) (<-chan Room, error) {
	ch := make(chan Room, watchBuffer)
	m.mu.Lock()
	key := m.nextID
	m.nextID++
	m.subs[key] = memorySub{id: id, ch: ch}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, key)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}

// liveLocked drops the room if it has expired.
func (m *MemoryRoomRepository) liveLocked(id string) (Room, bool) {
	room, ok := m.rooms[id]
	if !ok {
		return Room{}, false
	}
	if room.Expired(m.now()) {
		delete(m.rooms, id)
		m.publishLocked(closedRoom(id, m.now()))
		return Room{}, false
	}
	return room, true
}

func (m *MemoryRoomRepository) publishLocked(room Room) {
	for _, sub := range m.subs {
		if sub.id != "" && sub.id != room.ID {
			continue
		}
		if offer(sub.ch, cloneRoom(room)) {
			m.log.WithField("room_id", room.ID).Warn("watcher is not keeping up, dropped an older update")
		}
	}
}

func cloneRoom(r Room) Room {
	if r.White != nil {
		w := *r.White
		r.White = &w
	}
	if r.Black != nil {
		b := *r.Black
		r.Black = &b
	}
	moves := make([]string, len(r.Moves))
	copy(moves, r.Moves)
	r.Moves = moves
	return r
}
