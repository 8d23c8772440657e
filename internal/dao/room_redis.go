package dao

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisRoomRepository stores each room as JSON with a TTL, keeps an index
// set of room ids and publishes every change on one pub/sub channel.
type RedisRoomRepository struct {
	rdb     *redis.Client
	prefix  string
	timeout time.Duration
	now     func() time.Time
	log     logrus.FieldLogger
}

func NewRedisRoomRepository(rdb *redis.Client, prefix string, timeout time.Duration, log logrus.FieldLogger) *RedisRoomRepository {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &RedisRoomRepository{
		rdb:     rdb,
		prefix:  prefix,
		timeout: timeout,
		now:     time.Now,
		log:     log.WithField("component", "redis_rooms"),
	}
}

func (r *RedisRoomRepository) roomKey(id string) string { return r.prefix + ":room:" + id }
func (r *RedisRoomRepository) indexKey() string         { return r.prefix + ":rooms" }
func (r *RedisRoomRepository) channel() string          { return r.prefix + ":rooms:events" }

func (r *RedisRoomRepository) ttl(room Room) time.Duration {
	ttl := room.ExpiresAt.Sub(r.now())
	if room.ExpiresAt.IsZero() {
		return 0
	}
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	return ttl
}

func (r *RedisRoomRepository) Create(ctx context.Context, room Room) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetNX(ctx, r.roomKey(room.ID), data, r.ttl(room)).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrRoomExists
	}
	if err := r.rdb.SAdd(ctx, r.indexKey(), room.ID).Err(); err != nil {
		return err
	}
	return r.publish(ctx, data)
}

func (r *RedisRoomRepository) Get(ctx context.Context, id string) (Room, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := r.rdb.Get(ctx, r.roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Room{}, ErrRoomNotFound
	}
	if err != nil {
		return Room{}, err
	}
	var room Room
	if err := json.Unmarshal(data, &room); err != nil {
		return Room{}, fmt.Errorf("decode room %s: %w", id, err)
	}
	return room, nil
}

func (r *RedisRoomRepository) List(ctx context.Context) ([]Room, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ids, err := r.rdb.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Room{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.roomKey(id)
	}
	values, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	rooms := make([]Room, 0, len(values))
	stale := make([]interface{}, 0)
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var room Room
		if err := json.Unmarshal([]byte(s), &room); err != nil {
			r.log.WithError(err).WithField("room_id", ids[i]).Warn("skipping undecodable room")
			continue
		}
		rooms = append(rooms, room)
	}
	// expired keys leave their id behind in the index
	if len(stale) > 0 {
		if err := r.rdb.SRem(ctx, r.indexKey(), stale...).Err(); err != nil {
			r.log.WithError(err).Warn("pruning room index")
		}
	}
	return rooms, nil
}

func (r *RedisRoomRepository) Update(ctx context.Context, room Room, expectedVersion int64) (Room, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	key := r.roomKey(room.ID)
	room.Version = expectedVersion + 1
	data, err := json.Marshal(room)
	if err != nil {
		return Room{}, err
	}

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		var stored Room
		if err := json.Unmarshal(cur, &stored); err != nil {
			return fmt.Errorf("decode room %s: %w", room.ID, err)
		}
		if stored.Version != expectedVersion {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl(room))
			return nil
		})
		return err
	}

	err = r.rdb.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return Room{}, ErrVersionConflict
	}
	if err != nil {
		return Room{}, err
	}
	if err := r.publish(ctx, data); err != nil {
		return Room{}, err
	}
	return room, nil
}

// touchAttempts bounds retries when a game update races a presence write.
const touchAttempts = 3

func (r *RedisRoomRepository) Touch(ctx context.Context, id, playerID string, at, expiresAt time.Time) (Room, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	key := r.roomKey(id)
	var room Room
	var data []byte
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		room = Room{}
		if err := json.Unmarshal(cur, &room); err != nil {
			return fmt.Errorf("decode room %s: %w", id, err)
		}
		seat := room.seatOf(playerID)
		if seat == nil {
			return ErrSeatNotFound
		}
		seat.LastSeen = at
		room.ExpiresAt = expiresAt
		if data, err = json.Marshal(room); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl(room))
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < touchAttempts; i++ {
		if err = r.rdb.Watch(ctx, txf, key); !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if errors.Is(err, redis.TxFailedErr) {
		return Room{}, ErrVersionConflict
	}
	if err != nil {
		return Room{}, err
	}
	if err := r.publish(ctx, data); err != nil {
		return Room{}, err
	}
	return room, nil
}

func (r *RedisRoomRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.rdb.Del(ctx, r.roomKey(id)).Result()
	if err != nil {
		return err
	}
	if err := r.rdb.SRem(ctx, r.indexKey(), id).Err(); err != nil {
		return err
	}
	if n == 0 {
		return ErrRoomNotFound
	}
	data, err := json.Marshal(closedRoom(id, r.now()))
	if err != nil {
		return err
	}
	return r.publish(ctx, data)
}

func (r *RedisRoomRepository) publish(ctx context.Context, data []byte) error {
	return r.rdb.Publish(ctx, r.channel(), data).Err()
}

func (r *RedisRoomRepository) Watch(ctx context.Context, id string) (<-chan Room, error) {
	sub := r.rdb.Subscribe(ctx, r.channel())
	// wait for the subscription confirmation so no update is missed after return
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan Room, watchBuffer)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var room Room
				if err := json.Unmarshal([]byte(msg.Payload), &room); err != nil {
					r.log.WithError(err).Warn("undecodable room event")
					continue
				}
				if id != "" && room.ID != id {
					continue
				}
				if offer(out, room) {
					r.log.WithField("room_id", room.ID).Warn("watcher is not keeping up, dropped an older update")
				}
			}
		}
	}()
	return out, nil
}
