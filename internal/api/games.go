package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gmkornilov/chess-demo-backend/internal/session"
	"github.com/gmkornilov/chess-demo-backend/pkg/board"
)

type GameApi struct {
	Sessions *session.Manager
}

func NewGameApi(sessions *session.Manager) *GameApi {
	return &GameApi{Sessions: sessions}
}

type createGameBody struct {
	Mode    string `json:"mode" binding:"required"`
	AIColor string `json:"ai_color"`
}

type moveBody struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

func (b moveBody) move() (board.Move, error) {
	from, err := board.ParseSquare(b.From)
	if err != nil {
		return board.Move{}, err
	}
	to, err := board.ParseSquare(b.To)
	if err != nil {
		return board.Move{}, err
	}
	return board.Move{From: from, To: to}, nil
}

func (g *GameApi) Create(ctx *gin.Context) {
	var body createGameBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	mode, err := session.ParseMode(body.Mode)
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}
	aiColor := board.Black
	if body.AIColor != "" {
		if aiColor, err = board.ParseColor(body.AIColor); err != nil {
			badRequest(ctx, err.Error())
			return
		}
	}

	game, err := g.Sessions.Create(ctx.Request.Context(), mode, aiColor)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, game)
}

func (g *GameApi) Get(ctx *gin.Context) {
	game, err := g.Sessions.Get(ctx.Param("id"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, game)
}

func (g *GameApi) Delete(ctx *gin.Context) {
	if err := g.Sessions.Delete(ctx.Param("id")); err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (g *GameApi) Targets(ctx *gin.Context) {
	from, err := board.ParseSquare(ctx.Query("from"))
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}
	targets, err := g.Sessions.Targets(ctx.Param("id"), from)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"from":    from,
		"targets": targets,
	})
}

func (g *GameApi) Move(ctx *gin.Context) {
	var body moveBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	mv, err := body.move()
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}
	game, err := g.Sessions.Move(ctx.Request.Context(), ctx.Param("id"), mv)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, game)
}

func (g *GameApi) Undo(ctx *gin.Context) {
	game, err := g.Sessions.Undo(ctx.Param("id"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, game)
}

func (g *GameApi) Reset(ctx *gin.Context) {
	game, err := g.Sessions.Reset(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, game)
}
