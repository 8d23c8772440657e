package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/freeeve/uci"
	"github.com/sirupsen/logrus"

	"github.com/gmkornilov/chess-demo-backend/pkg/board"
)

const defaultDepth = 8

func setupEngine(path string, arg ...string) (*uci.Engine, error) {
	e, err := uci.NewEngine(path, arg...)
	if err != nil {
		return nil, err
	}

	err = e.SetOptions(uci.Options{
		MultiPV: 1,
		Hash:    128,
		Ponder:  false,
		OwnBook: true,
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// Engine asks an external UCI engine for a move. The engine knows full chess
// rules, so any answer outside the pseudo-legal set, or any failure, falls
// back to the fallback strategy.
type Engine struct {
	mu       sync.Mutex
	engine   *uci.Engine
	depth    int
	fallback Strategy
	log      logrus.FieldLogger
}

func NewEngine(path string, depth int, fallback Strategy, log logrus.FieldLogger, arg ...string) (*Engine, error) {
	e, err := setupEngine(path, arg...)
	if err != nil {
		return nil, fmt.Errorf("start uci engine %s: %w", path, err)
	}
	if depth <= 0 {
		depth = defaultDepth
	}
	return &Engine{
		engine:   e,
		depth:    depth,
		fallback: fallback,
		log:      log.WithField("component", "uci"),
	}, nil
}

// Close stops the engine process. It does not wait for a running search,
// which fails once the process is gone.
func (e *Engine) Close() {
	e.engine.Close()
}

func (e *Engine) ChooseMove(ctx context.Context, b *board.Board, side board.Color) (board.Move, error) {
	moves := b.PseudoLegalMoves(side)
	if len(moves) == 0 {
		return board.Move{}, ErrNoMoves
	}

	type answer struct {
		move string
		err  error
	}
	fen := b.FEN(side)
	done := make(chan answer, 1)
	go func() {
		move, err := e.search(fen)
		done <- answer{move, err}
	}()

	var best string
	select {
	case <-ctx.Done():
		e.log.WithField("fen", fen).Warn("engine search cancelled, using fallback")
		return e.fallback.ChooseMove(context.Background(), b, side)
	case a := <-done:
		if a.err != nil {
			e.log.WithError(a.err).WithField("fen", fen).Warn("engine search failed, using fallback")
			return e.fallback.ChooseMove(ctx, b, side)
		}
		best = a.move
	}

	chosen, err := board.ParseMove(best)
	if err == nil {
		for _, m := range moves {
			if m.From == chosen.From && m.To == chosen.To {
				return m, nil
			}
		}
	}
	e.log.WithField("fen", fen).WithField("best", best).Debug("engine move not pseudo-legal here, using fallback")
	return e.fallback.ChooseMove(ctx, b, side)
}

func (e *Engine) search(fen string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.engine.SetFEN(fen); err != nil {
		return "", err
	}
	results, err := e.engine.GoDepth(e.depth)
	if err != nil {
		return "", err
	}
	if results.BestMove != "" {
		return results.BestMove, nil
	}
	if len(results.Results) == 0 || len(results.Results[0].BestMoves) == 0 {
		return "", fmt.Errorf("engine returned no move")
	}
	return results.Results[0].BestMoves[0], nil
}
