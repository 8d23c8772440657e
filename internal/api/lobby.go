package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/gmkornilov/chess-demo-backend/internal/lobby"
)

type LobbyApi struct {
	Lobby *lobby.Service
	log   logrus.FieldLogger
}

func NewLobbyApi(svc *lobby.Service, log logrus.FieldLogger) *LobbyApi {
	return &LobbyApi{Lobby: svc, log: log.WithField("component", "lobby_api")}
}

type createRoomBody struct {
	Name   string       `json:"name"`
	Player lobby.Player `json:"player"`
}

type playerBody struct {
	PlayerID string `json:"player_id" binding:"required"`
}

type roomMoveBody struct {
	moveBody
	PlayerID string `json:"player_id" binding:"required"`
	Version  int64  `json:"version"`
}

func (l *LobbyApi) List(ctx *gin.Context) {
	rooms, err := l.Lobby.List(ctx.Request.Context())
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"rooms": rooms,
	})
}

func (l *LobbyApi) Create(ctx *gin.Context) {
	var body createRoomBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	room, err := l.Lobby.CreateRoom(ctx.Request.Context(), body.Name, body.Player)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, room)
}

func (l *LobbyApi) Get(ctx *gin.Context) {
	room, err := l.Lobby.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

func (l *LobbyApi) Join(ctx *gin.Context) {
	var player lobby.Player
	if err := ctx.ShouldBindJSON(&player); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	room, err := l.Lobby.JoinRoom(ctx.Request.Context(), ctx.Param("id"), player)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

func (l *LobbyApi) Leave(ctx *gin.Context) {
	var body playerBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	room, err := l.Lobby.LeaveRoom(ctx.Request.Context(), ctx.Param("id"), body.PlayerID)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

func (l *LobbyApi) Heartbeat(ctx *gin.Context) {
	var body playerBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	room, err := l.Lobby.Heartbeat(ctx.Request.Context(), ctx.Param("id"), body.PlayerID)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}

func (l *LobbyApi) Move(ctx *gin.Context) {
	var body roomMoveBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	mv, err := body.move()
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}
	room, err := l.Lobby.Move(ctx.Request.Context(), ctx.Param("id"), body.PlayerID, mv, body.Version)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, room)
}
