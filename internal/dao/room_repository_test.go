package dao

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmkornilov/chess-demo-backend/internal/config"
	"github.com/gmkornilov/chess-demo-backend/internal/db"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newRoom(now time.Time) Room {
	return Room{
		ID:        uuid.NewString(),
		Name:      "friendly",
		Status:    RoomWaiting,
		White:     &Seat{ID: "alice", Name: "Alice", Rating: 1500, LastSeen: now},
		Board:     "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR",
		Turn:      "white",
		Moves:     []string{},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func receive(t *testing.T, ch <-chan Room) Room {
	t.Helper()
	select {
	case room, ok := <-ch:
		require.True(t, ok, "watch channel closed")
		return room
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for room update")
	}
	return Room{}
}

func runRepositoryContract(t *testing.T, repo RoomRepository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("create get list", func(t *testing.T) {
		room := newRoom(now)
		require.NoError(t, repo.Create(ctx, room))
		assert.ErrorIs(t, repo.Create(ctx, room), ErrRoomExists)

		got, err := repo.Get(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, room.Name, got.Name)
		require.NotNil(t, got.White)
		assert.Equal(t, "alice", got.White.ID)

		rooms, err := repo.List(ctx)
		require.NoError(t, err)
		var found bool
		for _, r := range rooms {
			found = found || r.ID == room.ID
		}
		assert.True(t, found)
	})

	t.Run("missing room", func(t *testing.T) {
		_, err := repo.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrRoomNotFound)
		_, err = repo.Update(ctx, Room{ID: "nope"}, 0)
		assert.ErrorIs(t, err, ErrRoomNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, "nope"), ErrRoomNotFound)
	})

	t.Run("versioned update", func(t *testing.T) {
		room := newRoom(now)
		require.NoError(t, repo.Create(ctx, room))

		room.Status = RoomActive
		room.Black = &Seat{ID: "bob", Name: "Bob", Rating: 1400, LastSeen: now}
		updated, err := repo.Update(ctx, room, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), updated.Version)

		_, err = repo.Update(ctx, room, 0)
		assert.ErrorIs(t, err, ErrVersionConflict)

		got, err := repo.Get(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, RoomActive, got.Status)
		assert.Equal(t, int64(1), got.Version)
		require.NotNil(t, got.Black)
		assert.Equal(t, "bob", got.Black.ID)
	})

	t.Run("touch keeps version", func(t *testing.T) {
		room := newRoom(now)
		require.NoError(t, repo.Create(ctx, room))

		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		ch, err := repo.Watch(wctx, room.ID)
		require.NoError(t, err)

		seen := now.Add(time.Minute)
		touched, err := repo.Touch(ctx, room.ID, "alice", seen, now.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(0), touched.Version)
		require.NotNil(t, touched.White)
		assert.True(t, seen.Equal(touched.White.LastSeen))

		got := receive(t, ch)
		assert.Equal(t, room.ID, got.ID)
		require.NotNil(t, got.White)
		assert.True(t, seen.Equal(got.White.LastSeen))

		// a writer holding version 0 is not invalidated by presence
		room.Status = RoomActive
		updated, err := repo.Update(ctx, room, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), updated.Version)

		_, err = repo.Touch(ctx, room.ID, "mallory", seen, now.Add(2*time.Hour))
		assert.ErrorIs(t, err, ErrSeatNotFound)
		_, err = repo.Touch(ctx, "nope", "alice", seen, now.Add(2*time.Hour))
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		room := newRoom(now)
		require.NoError(t, repo.Create(ctx, room))
		require.NoError(t, repo.Delete(ctx, room.ID))
		_, err := repo.Get(ctx, room.ID)
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("watch one room", func(t *testing.T) {
		room := newRoom(now)
		other := newRoom(now)
		require.NoError(t, repo.Create(ctx, room))
		require.NoError(t, repo.Create(ctx, other))

		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		ch, err := repo.Watch(wctx, room.ID)
		require.NoError(t, err)

		_, err = repo.Update(ctx, other, 0)
		require.NoError(t, err)
		room.Moves = []string{"e2e4"}
		_, err = repo.Update(ctx, room, 0)
		require.NoError(t, err)

		got := receive(t, ch)
		assert.Equal(t, room.ID, got.ID)
		assert.Equal(t, []string{"e2e4"}, got.Moves)

		require.NoError(t, repo.Delete(ctx, room.ID))
		got = receive(t, ch)
		assert.Equal(t, room.ID, got.ID)
		assert.Equal(t, RoomClosed, got.Status)

		cancel()
		for range ch {
		}
	})

	t.Run("watch all rooms", func(t *testing.T) {
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		ch, err := repo.Watch(wctx, "")
		require.NoError(t, err)

		room := newRoom(now)
		require.NoError(t, repo.Create(ctx, room))
		got := receive(t, ch)
		assert.Equal(t, room.ID, got.ID)
	})
}

func TestMemoryRoomRepository(t *testing.T) {
	runRepositoryContract(t, NewMemoryRoomRepository(quietLogger()))
}

func TestMemoryRoomRepositoryExpiry(t *testing.T) {
	repo := NewMemoryRoomRepository(quietLogger())
	now := time.Now()
	repo.now = func() time.Time { return now }

	room := newRoom(now)
	require.NoError(t, repo.Create(context.Background(), room))

	now = now.Add(2 * time.Hour)
	_, err := repo.Get(context.Background(), room.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	rooms, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rooms)
	// an expired id can be reused
	assert.NoError(t, repo.Create(context.Background(), room))
}

func TestMemoryRoomRepositoryReturnsCopies(t *testing.T) {
	repo := NewMemoryRoomRepository(quietLogger())
	room := newRoom(time.Now())
	require.NoError(t, repo.Create(context.Background(), room))

	got, err := repo.Get(context.Background(), room.ID)
	require.NoError(t, err)
	got.White.Name = "Mallory"

	again, err := repo.Get(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", again.White.Name)
}

func TestMemoryRoomRepositorySlowWatcherGetsLatest(t *testing.T) {
	repo := NewMemoryRoomRepository(quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	room := newRoom(time.Now())
	require.NoError(t, repo.Create(ctx, room))

	ch, err := repo.Watch(ctx, room.ID)
	require.NoError(t, err)

	var last Room
	for v := int64(0); v < watchBuffer*2; v++ {
		last, err = repo.Update(ctx, room, v)
		require.NoError(t, err)
	}
	room.Status = RoomFinished
	last, err = repo.Update(ctx, room, last.Version)
	require.NoError(t, err)

	var got Room
	for i := 0; i < watchBuffer; i++ {
		got = receive(t, ch)
	}
	assert.Equal(t, last.Version, got.Version)
	assert.Equal(t, RoomFinished, got.Status)
}

func TestOfferEvictsOldest(t *testing.T) {
	ch := make(chan Room, 2)
	assert.False(t, offer(ch, Room{Version: 1}))
	assert.False(t, offer(ch, Room{Version: 2}))
	assert.True(t, offer(ch, Room{Version: 3}))
	assert.Equal(t, int64(2), (<-ch).Version)
	assert.Equal(t, int64(3), (<-ch).Version)
}

func newMiniredisRepository(t *testing.T) (*RedisRoomRepository, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisRoomRepository(rdb, "test", time.Second, quietLogger()), mr
}

func TestRedisRoomRepository(t *testing.T) {
	repo, _ := newMiniredisRepository(t)
	runRepositoryContract(t, repo)
}

func TestRedisRoomRepositoryExpiry(t *testing.T) {
	repo, mr := newMiniredisRepository(t)
	ctx := context.Background()

	room := newRoom(time.Now())
	require.NoError(t, repo.Create(ctx, room))
	assert.True(t, mr.Exists("test:room:"+room.ID))

	mr.FastForward(2 * time.Hour)
	_, err := repo.Get(ctx, room.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	rooms, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
	assert.False(t, mr.Exists("test:rooms"))
}

// Change streams need a replica set, so this only runs against a real server.
func TestMongoRoomRepository(t *testing.T) {
	addr := os.Getenv("MONGO_TEST_ADDRESS")
	if addr == "" {
		t.Skip("MONGO_TEST_ADDRESS not set")
	}
	var cfg config.Configuration
	cfg.Database.Address = addr
	cfg.Database.DatabaseName = "chess_test"
	cfg.Database.Collection = "rooms_" + uuid.NewString()[:8]

	client, err := db.NewDbClient(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.RoomCollection.Drop(context.Background())
		client.Close()
	})
	runRepositoryContract(t, NewMongoRoomRepository(client, 5*time.Second, quietLogger()))
}
