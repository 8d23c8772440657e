// Package session keeps the in-memory local board games, hot-seat or
// against the computer. Sessions are dropped after a period of inactivity.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gmkornilov/chess-demo-backend/pkg/ai"
	"github.com/gmkornilov/chess-demo-backend/pkg/board"
)

type Options struct {
	Validation board.Validation
	TTL        time.Duration
	AITimeout  time.Duration
}

type entry struct {
	mu   sync.Mutex
	game *Game
}

type Manager struct {
	mu       sync.RWMutex
	games    map[string]*entry
	strategy ai.Strategy
	opts     Options
	now      func() time.Time
	log      logrus.FieldLogger
}

func NewManager(strategy ai.Strategy, opts Options, log logrus.FieldLogger) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.AITimeout <= 0 {
		opts.AITimeout = 5 * time.Second
	}
	return &Manager{
		games:    make(map[string]*entry),
		strategy: strategy,
		opts:     opts,
		now:      time.Now,
		log:      log.WithField("component", "sessions"),
	}
}

func (m *Manager) Create(ctx context.Context, mode Mode, aiColor board.Color) (View, error) {
	g := newGame(uuid.NewString(), mode, aiColor, m.now())
	e := &entry{game: g}

	e.mu.Lock()
	defer e.mu.Unlock()
	m.mu.Lock()
	m.games[g.ID] = e
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"game_id": g.ID, "mode": mode}).Info("game created")
	if err := m.aiReply(ctx, g); err != nil {
		m.mu.Lock()
		delete(m.games, g.ID)
		m.mu.Unlock()
		return View{}, err
	}
	return g.View(), nil
}

func (m *Manager) lookup(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.games[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrGameNotFound)
	}
	return e, nil
}

func (m *Manager) Get(id string) (View, error) {
	e, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.game.View(), nil
}

// List returns every live game, most recently updated first.
func (m *Manager) List() []View {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.games))
	for _, e := range m.games {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	views := make([]View, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		views = append(views, e.game.View())
		e.mu.Unlock()
	}
	sort.Slice(views, func(i, j int) bool { return views[i].UpdatedAt.After(views[j].UpdatedAt) })
	return views
}

func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrGameNotFound)
	}
	delete(m.games, id)
	return nil
}

// Targets returns where the piece on from may go. It is empty when the
// piece's side is not to move or the game is over.
func (m *Manager) Targets(id string, from board.Square) ([]board.Square, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	g := e.game
	p := g.Board.At(from)
	if g.Status != StatusActive || p == nil || p.Color != g.Turn || g.aiToMove() {
		return []board.Square{}, nil
	}
	targets := g.Board.Targets(from)
	if targets == nil {
		targets = []board.Square{}
	}
	return targets, nil
}

// Move plays a move for the side to move. Against the computer the reply is
// played before Move returns. If the computer cannot reply, the move is taken
// back so the player can try again.
func (m *Manager) Move(ctx context.Context, id string, mv board.Move) (View, error) {
	e, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	g := e.game
	if g.aiToMove() {
		// a reply owed since a failed Reset is played first
		if err := m.aiReply(ctx, g); err != nil {
			return g.View(), err
		}
		return g.View(), ErrNotYourTurn
	}
	if err := g.play(mv, m.opts.Validation, m.now()); err != nil {
		return g.View(), err
	}
	if err := m.aiReply(ctx, g); err != nil {
		if undoErr := g.takeBack(); undoErr != nil {
			m.log.WithError(undoErr).WithField("game_id", g.ID).Error("taking back move after failed computer reply")
		}
		return g.View(), err
	}
	return g.View(), nil
}

// Undo takes back the last move, or the last full turn against the computer.
func (m *Manager) Undo(id string) (View, error) {
	e, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	g := e.game
	if g.Mode == ModeAI && !g.humanMoved() {
		return g.View(), ErrNothingToUndo
	}
	if err := g.takeBack(); err != nil {
		return g.View(), err
	}
	for g.Mode == ModeAI && g.Turn == g.AIColor && len(g.History) > 0 {
		if err := g.takeBack(); err != nil {
			return g.View(), err
		}
	}
	g.UpdatedAt = m.now()
	return g.View(), nil
}

func (m *Manager) Reset(ctx context.Context, id string) (View, error) {
	e, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	g := e.game
	g.reset(m.now())
	if err := m.aiReply(ctx, g); err != nil {
		return g.View(), err
	}
	return g.View(), nil
}

// aiReply lets the computer move if it is its turn. Callers hold the game lock.
// The search outlives the caller's context and is bounded by AITimeout only,
// so a dropped request does not leave the game waiting on the computer.
func (m *Manager) aiReply(ctx context.Context, g *Game) error {
	if !g.aiToMove() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.AITimeout)
	defer cancel()

	mv, err := m.strategy.ChooseMove(ctx, g.Board.Clone(), g.Turn)
	if errors.Is(err, ai.ErrNoMoves) {
		g.finish(nil, ReasonNoMoves)
		return nil
	}
	if err != nil {
		return fmt.Errorf("computer move: %w", err)
	}
	// the computer's pick is always shape-correct, even when clients may play loosely
	if err := g.play(mv, board.ValidatePseudoLegal, m.now()); err != nil {
		return fmt.Errorf("computer move %s: %w", mv, err)
	}
	m.log.WithFields(logrus.Fields{"game_id": g.ID, "move": mv.String()}).Debug("computer moved")
	return nil
}

// Sweep drops games idle since before now minus the TTL and returns how many.
// A game busy with a computer reply holds only its own lock, never the map's.
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.opts.TTL)

	m.mu.RLock()
	entries := make(map[string]*entry, len(m.games))
	for id, e := range m.games {
		entries[id] = e
	}
	m.mu.RUnlock()

	idle := make(map[string]*entry)
	for id, e := range entries {
		e.mu.Lock()
		if e.game.UpdatedAt.Before(cutoff) {
			idle[id] = e
		}
		e.mu.Unlock()
	}
	if len(idle) == 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range idle {
		// the id may have been deleted or the game touched since the check
		if cur, ok := m.games[id]; !ok || cur != e || !e.stale(cutoff) {
			continue
		}
		delete(m.games, id)
		removed++
	}
	return removed
}

func (e *entry) stale(cutoff time.Time) bool {
	if !e.mu.TryLock() {
		return false
	}
	defer e.mu.Unlock()
	return e.game.UpdatedAt.Before(cutoff)
}

// Run sweeps idle games until ctx is done.
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(m.now()); n > 0 {
				m.log.WithField("removed", n).Info("expired idle games")
			}
		}
	}
}
