package dao

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomExists      = errors.New("room already exists")
	ErrVersionConflict = errors.New("room was updated concurrently")
	ErrSeatNotFound    = errors.New("player has no seat in room")
)

type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomActive   RoomStatus = "active"
	RoomFinished RoomStatus = "finished"
	// RoomClosed is only seen on watch channels, after a room is deleted.
	RoomClosed RoomStatus = "closed"
)

type Seat struct {
	ID          string    `json:"id" bson:"id"`
	Name        string    `json:"name" bson:"name"`
	Rating      int       `json:"rating" bson:"rating"`
	RatingDelta int       `json:"rating_delta,omitempty" bson:"rating_delta,omitempty"`
	LastSeen    time.Time `json:"last_seen" bson:"last_seen"`
}

type Room struct {
	ID        string     `json:"id" bson:"_id"`
	Name      string     `json:"name" bson:"name"`
	Status    RoomStatus `json:"status" bson:"status"`
	White     *Seat      `json:"white,omitempty" bson:"white,omitempty"`
	Black     *Seat      `json:"black,omitempty" bson:"black,omitempty"`
	Board     string     `json:"board" bson:"board"`
	Turn      string     `json:"turn" bson:"turn"`
	Moves     []string   `json:"moves" bson:"moves"`
	Winner    string     `json:"winner,omitempty" bson:"winner,omitempty"`
	Reason    string     `json:"reason,omitempty" bson:"reason,omitempty"`
	Version   int64      `json:"version" bson:"version"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
	ExpiresAt time.Time  `json:"expires_at" bson:"expires_at"`
}

// Expired reports whether the room outlived its session at now.
func (r Room) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// RoomRepository is the realtime database behind the lobby.
type RoomRepository interface {
	Create(ctx context.Context, room Room) error

	Get(ctx context.Context, id string) (Room, error)

	List(ctx context.Context) ([]Room, error)

	// Update stores room if the stored version still equals expectedVersion
	// and returns it with the bumped version.
	Update(ctx context.Context, room Room, expectedVersion int64) (Room, error)

	// Touch marks playerID as seen at and extends the room to expiresAt. It
	// leaves the version alone: presence is not part of the game state.
	Touch(ctx context.Context, id, playerID string, at, expiresAt time.Time) (Room, error)

	Delete(ctx context.Context, id string) error

	// Watch streams room snapshots after every change. An empty id watches
	// every room. The channel is closed once ctx is done.
	Watch(ctx context.Context, id string) (<-chan Room, error)
}

const watchBuffer = 16

func closedRoom(id string, now time.Time) Room {
	return Room{ID: id, Status: RoomClosed, UpdatedAt: now}
}

// seatOf returns the seat held by playerID, or nil.
func (r *Room) seatOf(playerID string) *Seat {
	switch {
	case r.White != nil && r.White.ID == playerID:
		return r.White
	case r.Black != nil && r.Black.ID == playerID:
		return r.Black
	}
	return nil
}

// offer hands room to a watcher without blocking. A watcher that has fallen
// behind loses its oldest buffered snapshot, never the newest one. It
// reports whether a snapshot was evicted.
func offer(ch chan Room, room Room) bool {
	evicted := false
	for {
		select {
		case ch <- room:
			return evicted
		default:
		}
		select {
		case <-ch:
			evicted = true
		default:
		}
	}
}
