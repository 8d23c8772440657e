package lobby

import (
	"time"

	"github.com/gmkornilov/chess-demo-backend/internal/dao"
	"github.com/gmkornilov/chess-demo-backend/pkg/board"
)

type SeatView struct {
	dao.Seat
	Online bool `json:"online"`
}

// RoomView is a room as clients see it: the stored placement plus the
// decoded grid and presence flags.
type RoomView struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    dao.RoomStatus `json:"status"`
	White     *SeatView      `json:"white,omitempty"`
	Black     *SeatView      `json:"black,omitempty"`
	Board     *board.Board   `json:"board,omitempty"`
	Placement string         `json:"placement"`
	Turn      string         `json:"turn"`
	Moves     []string       `json:"moves"`
	Winner    string         `json:"winner,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Version   int64          `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

func (s *Service) View(room dao.Room) RoomView {
	return s.view(room)
}

func (s *Service) view(room dao.Room) RoomView {
	v := RoomView{
		ID:        room.ID,
		Name:      room.Name,
		Status:    room.Status,
		Placement: room.Board,
		Turn:      room.Turn,
		Moves:     room.Moves,
		Winner:    room.Winner,
		Reason:    room.Reason,
		Version:   room.Version,
		CreatedAt: room.CreatedAt,
		UpdatedAt: room.UpdatedAt,
		ExpiresAt: room.ExpiresAt,
	}
	if v.Moves == nil {
		v.Moves = []string{}
	}
	if room.Board != "" {
		if b, err := board.ParsePlacement(room.Board); err == nil {
			v.Board = b
		} else {
			s.log.WithError(err).WithField("room_id", room.ID).Warn("stored board does not decode")
		}
	}
	now := s.now()
	v.White = s.seatView(room.White, now)
	v.Black = s.seatView(room.Black, now)
	return v
}

func (s *Service) seatView(seat *dao.Seat, now time.Time) *SeatView {
	if seat == nil {
		return nil
	}
	return &SeatView{
		Seat:   *seat,
		Online: now.Sub(seat.LastSeen) <= s.opts.PresenceTimeout,
	}
}
