// Package lobby runs multiplayer rooms on top of a realtime room store.
// The server checks seats and turn order but holds no hidden state: the
// stored room is the whole game.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gmkornilov/chess-demo-backend/internal/dao"
	"github.com/gmkornilov/chess-demo-backend/pkg/board"
	"github.com/gmkornilov/chess-demo-backend/pkg/rating"
)

var (
	ErrRoomFull        = errors.New("room is full")
	ErrNotSeated       = errors.New("player is not seated in this room")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrRoomNotActive   = errors.New("room is not in play")
	ErrInvalidPlayer   = errors.New("player id is required")
	ErrRoomNameTooLong = errors.New("room name is too long")
)

const (
	ReasonKingCaptured = "king captured"
	ReasonAbandoned    = "abandoned"
	ReasonNoMoves      = "no moves"

	maxNameLength = 64
)

type Options struct {
	RoomTTL         time.Duration
	PresenceTimeout time.Duration
	Validation      board.Validation
}

type Service struct {
	repo dao.RoomRepository
	opts Options
	now  func() time.Time
	log  logrus.FieldLogger
}

type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rating int    `json:"rating"`
}

func NewService(repo dao.RoomRepository, opts Options, log logrus.FieldLogger) *Service {
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = 2 * time.Hour
	}
	if opts.PresenceTimeout <= 0 {
		opts.PresenceTimeout = 30 * time.Second
	}
	return &Service{
		repo: repo,
		opts: opts,
		now:  time.Now,
		log:  log.WithField("component", "lobby"),
	}
}

func (s *Service) seat(p Player) (*dao.Seat, error) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return nil, ErrInvalidPlayer
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = id
	}
	r := p.Rating
	if r <= 0 {
		r = rating.Initial
	}
	return &dao.Seat{ID: id, Name: name, Rating: r, LastSeen: s.now()}, nil
}

func (s *Service) touch(room *dao.Room) {
	now := s.now()
	room.UpdatedAt = now
	room.ExpiresAt = now.Add(s.opts.RoomTTL)
}

func (s *Service) CreateRoom(ctx context.Context, name string, host Player) (RoomView, error) {
	name = strings.TrimSpace(name)
	if len(name) > maxNameLength {
		return RoomView{}, ErrRoomNameTooLong
	}
	seat, err := s.seat(host)
	if err != nil {
		return RoomView{}, err
	}
	if name == "" {
		name = seat.Name + "'s room"
	}
	now := s.now()
	room := dao.Room{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    dao.RoomWaiting,
		White:     seat,
		Board:     board.StandardPlacement,
		Turn:      board.White.String(),
		Moves:     []string{},
		CreatedAt: now,
	}
	s.touch(&room)
	if err := s.repo.Create(ctx, room); err != nil {
		return RoomView{}, fmt.Errorf("create room: %w", err)
	}
	s.log.WithFields(logrus.Fields{"room_id": room.ID, "host": seat.ID}).Info("room created")
	return s.view(room), nil
}

func (s *Service) Get(ctx context.Context, id string) (RoomView, error) {
	room, err := s.repo.Get(ctx, id)
	if err != nil {
		return RoomView{}, err
	}
	return s.view(room), nil
}

// List returns the rooms still open or in play, newest first.
func (s *Service) List(ctx context.Context) ([]RoomView, error) {
	rooms, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]RoomView, 0, len(rooms))
	for _, room := range rooms {
		if room.Status == dao.RoomWaiting || room.Status == dao.RoomActive {
			views = append(views, s.view(room))
		}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].CreatedAt.After(views[j].CreatedAt) })
	return views, nil
}

// updateAttempts bounds how often an optimistic write is retried when only
// unrelated state, such as presence, changed underneath it.
const updateAttempts = 5

// errUnchanged lets a mutation report that there is nothing to store.
var errUnchanged = errors.New("room unchanged")

// update applies mutate to the stored room and writes it back. A non-zero
// expectedVersion must match the stored version. Concurrent writes are
// retried as long as the caller's expectation still holds.
func (s *Service) update(ctx context.Context, id string, expectedVersion int64, mutate func(*dao.Room) error) (RoomView, error) {
	var err error
	for attempt := 0; attempt < updateAttempts; attempt++ {
		var room dao.Room
		room, err = s.repo.Get(ctx, id)
		if err != nil {
			return RoomView{}, err
		}
		if expectedVersion != 0 && expectedVersion != room.Version {
			return RoomView{}, dao.ErrVersionConflict
		}
		if err = mutate(&room); errors.Is(err, errUnchanged) {
			return s.view(room), nil
		}
		if err != nil {
			return RoomView{}, err
		}
		var view RoomView
		view, err = s.save(ctx, room, room.Version)
		if !errors.Is(err, dao.ErrVersionConflict) {
			return view, err
		}
		s.log.WithFields(logrus.Fields{"room_id": id, "attempt": attempt + 1}).Debug("room changed underneath, retrying")
	}
	return RoomView{}, err
}

func (s *Service) JoinRoom(ctx context.Context, id string, p Player) (RoomView, error) {
	seat, err := s.seat(p)
	if err != nil {
		return RoomView{}, err
	}
	return s.update(ctx, id, 0, func(room *dao.Room) error {
		if _, ok := seatColor(*room, seat.ID); ok {
			return errUnchanged
		}
		if room.Status != dao.RoomWaiting {
			return ErrRoomFull
		}
		joined := *seat
		switch {
		case room.White == nil:
			room.White = &joined
		case room.Black == nil:
			room.Black = &joined
		default:
			return ErrRoomFull
		}
		room.Status = dao.RoomActive
		return nil
	})
}

// LeaveRoom deletes a room nobody plays in yet, and forfeits a running game.
func (s *Service) LeaveRoom(ctx context.Context, id, playerID string) (RoomView, error) {
	room, err := s.repo.Get(ctx, id)
	if err != nil {
		return RoomView{}, err
	}
	if _, ok := seatColor(room, playerID); !ok {
		return RoomView{}, ErrNotSeated
	}
	if room.Status == dao.RoomWaiting {
		if err := s.repo.Delete(ctx, id); err != nil {
			return RoomView{}, err
		}
		room.Status = dao.RoomClosed
		return s.view(room), nil
	}
	return s.update(ctx, id, 0, func(room *dao.Room) error {
		color, ok := seatColor(*room, playerID)
		if !ok {
			return ErrNotSeated
		}
		if room.Status != dao.RoomActive {
			return errUnchanged
		}
		winner := color.Opposite()
		s.finish(room, &winner, ReasonAbandoned)
		return nil
	})
}

// Move plays from-to for playerID. expectedVersion 0 accepts whatever
// version is stored.
func (s *Service) Move(ctx context.Context, id, playerID string, mv board.Move, expectedVersion int64) (RoomView, error) {
	return s.update(ctx, id, expectedVersion, func(room *dao.Room) error {
		if room.Status != dao.RoomActive {
			return ErrRoomNotActive
		}
		color, ok := seatColor(*room, playerID)
		if !ok {
			return ErrNotSeated
		}
		turn, err := board.ParseColor(room.Turn)
		if err != nil {
			return fmt.Errorf("room %s: %w", id, err)
		}
		if color != turn {
			return ErrNotYourTurn
		}

		b, err := board.ParsePlacement(room.Board)
		if err != nil {
			return fmt.Errorf("room %s: %w", id, err)
		}
		if err := b.Validate(mv, turn, s.opts.Validation); err != nil {
			return err
		}
		applied, err := b.Apply(mv)
		if err != nil {
			return err
		}

		room.Board = b.Placement()
		room.Moves = append(room.Moves, applied.String())
		seatOf(room, color).LastSeen = s.now()
		switch {
		case applied.KingCapture():
			s.finish(room, &color, ReasonKingCaptured)
		case len(b.PseudoLegalMoves(turn.Opposite())) == 0:
			room.Turn = turn.Opposite().String()
			s.finish(room, nil, ReasonNoMoves)
		default:
			room.Turn = turn.Opposite().String()
		}
		return nil
	})
}

// Heartbeat records that playerID is still connected. Presence is stored
// outside the versioned game state, so it never invalidates a pending move.
func (s *Service) Heartbeat(ctx context.Context, id, playerID string) (RoomView, error) {
	now := s.now()
	room, err := s.repo.Touch(ctx, id, playerID, now, now.Add(s.opts.RoomTTL))
	if errors.Is(err, dao.ErrSeatNotFound) {
		return RoomView{}, ErrNotSeated
	}
	if err != nil {
		return RoomView{}, err
	}
	return s.view(room), nil
}

func (s *Service) Subscribe(ctx context.Context, id string) (<-chan dao.Room, error) {
	return s.repo.Watch(ctx, id)
}

func (s *Service) save(ctx context.Context, room dao.Room, version int64) (RoomView, error) {
	s.touch(&room)
	updated, err := s.repo.Update(ctx, room, version)
	if err != nil {
		return RoomView{}, err
	}
	return s.view(updated), nil
}

// finish closes the game and settles ratings. winner nil is a draw.
func (s *Service) finish(room *dao.Room, winner *board.Color, reason string) {
	room.Status = dao.RoomFinished
	room.Reason = reason
	score := rating.Draw
	if winner != nil {
		room.Winner = winner.String()
		score = rating.BlackWon
		if *winner == board.White {
			score = rating.WhiteWon
		}
	}
	if room.White == nil || room.Black == nil {
		return
	}
	w, b := rating.Update(room.White.Rating, room.Black.Rating, score)
	room.White.RatingDelta = w - room.White.Rating
	room.Black.RatingDelta = b - room.Black.Rating
	room.White.Rating, room.Black.Rating = w, b
	s.log.WithFields(logrus.Fields{"room_id": room.ID, "reason": reason, "winner": room.Winner}).Info("room finished")
}

func seatColor(room dao.Room, playerID string) (board.Color, bool) {
	if playerID == "" {
		return board.White, false
	}
	if room.White != nil && room.White.ID == playerID {
		return board.White, true
	}
	if room.Black != nil && room.Black.ID == playerID {
		return board.Black, true
	}
	return board.White, false
}

func seatOf(room *dao.Room, c board.Color) *dao.Seat {
	if c == board.White {
		return room.White
	}
	return room.Black
}
