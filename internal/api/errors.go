package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gmkornilov/chess-demo-backend/internal/dao"
	"github.com/gmkornilov/chess-demo-backend/internal/lobby"
	"github.com/gmkornilov/chess-demo-backend/internal/session"
	"github.com/gmkornilov/chess-demo-backend/pkg/board"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrGameNotFound), errors.Is(err, dao.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, lobby.ErrNotSeated):
		return http.StatusForbidden
	case errors.Is(err, session.ErrGameFinished),
		errors.Is(err, session.ErrNotYourTurn),
		errors.Is(err, session.ErrNothingToUndo),
		errors.Is(err, lobby.ErrRoomFull),
		errors.Is(err, lobby.ErrNotYourTurn),
		errors.Is(err, lobby.ErrRoomNotActive),
		errors.Is(err, dao.ErrVersionConflict),
		errors.Is(err, dao.ErrRoomExists):
		return http.StatusConflict
	case errors.Is(err, board.ErrNoOpMove),
		errors.Is(err, board.ErrEmptySquare),
		errors.Is(err, board.ErrWrongSide),
		errors.Is(err, board.ErrSelfCapture),
		errors.Is(err, board.ErrIllegalShape),
		errors.Is(err, lobby.ErrInvalidPlayer),
		errors.Is(err, lobby.ErrRoomNameTooLong):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// abortWithError writes the {"error": ...} body. Internal errors are kept
// off the wire and recorded on the context for the request logger.
func abortWithError(ctx *gin.Context, err error) {
	status := statusFor(err)
	_ = ctx.Error(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	ctx.AbortWithStatusJSON(status, gin.H{
		"error": msg,
	})
}

func badRequest(ctx *gin.Context, msg string) {
	ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error": msg,
	})
}
