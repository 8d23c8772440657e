package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gmkornilov/chess-demo-backend/internal/config"
	"github.com/gmkornilov/chess-demo-backend/internal/logging"
	"github.com/gmkornilov/chess-demo-backend/pkg/ai"
	"github.com/gmkornilov/chess-demo-backend/pkg/board"
)

type result struct {
	Board  *board.Board
	Moves  []board.Move
	Winner *board.Color
	Reason string
}

func (r result) String() string {
	outcome := "draw"
	if r.Winner != nil {
		outcome = r.Winner.String() + " wins"
	}
	return fmt.Sprintf("%s (%s) after %d plies", outcome, r.Reason, len(r.Moves))
}

// play runs one game between two strategies. It stops on a king capture, on
// a side with no moves, or after maxPlies.
func play(ctx context.Context, white, black ai.Strategy, maxPlies int, timeout time.Duration, onMove func(board.Move, *board.Board)) (result, error) {
	res := result{Board: board.NewStandard()}
	turn := board.White
	for len(res.Moves) < maxPlies {
		strategy := white
		if turn == board.Black {
			strategy = black
		}

		moveCtx, cancel := context.WithTimeout(ctx, timeout)
		mv, err := strategy.ChooseMove(moveCtx, res.Board, turn)
		cancel()
		if errors.Is(err, ai.ErrNoMoves) {
			res.Reason = "no moves"
			return res, nil
		}
		if err != nil {
			return res, fmt.Errorf("%s to move: %w", turn, err)
		}

		applied, err := res.Board.Apply(mv)
		if err != nil {
			return res, fmt.Errorf("%s played %s: %w", turn, mv, err)
		}
		res.Moves = append(res.Moves, applied)
		if onMove != nil {
			onMove(applied, res.Board)
		}
		if applied.KingCapture() {
			w := turn
			res.Winner = &w
			res.Reason = "king captured"
			return res, nil
		}
		turn = turn.Opposite()
	}
	res.Reason = "move limit"
	return res, nil
}

func newStrategy(kind string, seed int64, cfg *config.SelfplayConfiguration, log logrus.FieldLogger) (ai.Strategy, func(), error) {
	random := ai.NewRandom(seed)
	if kind != config.EngineUCI {
		return random, func() {}, nil
	}
	engine, err := ai.NewEngine(cfg.Stockfish.Path, cfg.Stockfish.Depth, random, log, cfg.Stockfish.Args...)
	if err != nil {
		return nil, nil, err
	}
	return engine, engine.Close, nil
}

func main() {
	cfg, err := config.InitSelfplayConfig()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic(err)
	}

	seed := cfg.Selfplay.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	white, closeWhite, err := newStrategy(cfg.Selfplay.White, seed, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("init white")
	}
	defer closeWhite()
	black, closeBlack, err := newStrategy(cfg.Selfplay.Black, seed+1, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("init black")
	}
	defer closeBlack()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var onMove func(board.Move, *board.Board)
	if cfg.Selfplay.Verbose {
		onMove = func(m board.Move, b *board.Board) {
			fmt.Printf("%s\n%s\n", m, b)
		}
	}

	log.WithFields(logrus.Fields{"white": cfg.Selfplay.White, "black": cfg.Selfplay.Black, "seed": seed}).Info("starting game")
	res, err := play(ctx, white, black, cfg.Selfplay.MaxPlies, cfg.Selfplay.Timeout, onMove)
	if err != nil {
		log.WithError(err).Fatal("game aborted")
	}

	fmt.Print(res.Board)
	fmt.Println(res.Board.Placement())
	fmt.Println(res)
}
