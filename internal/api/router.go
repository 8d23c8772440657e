package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/gmkornilov/chess-demo-backend/internal/logging"
)

type modeInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

var modes = []modeInfo{
	{ID: "local", Title: "Local game", Description: "Two players share one board."},
	{ID: "ai", Title: "Play the computer", Description: "The computer picks a random pseudo-legal move."},
	{ID: "online", Title: "Online lobby", Description: "Create or join a room and play someone else."},
}

func Modes(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"modes": modes,
	})
}

func NewRouter(games *GameApi, rooms *LobbyApi, log logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(log))

	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "ok")
	})

	api := r.Group("/api")
	api.GET("/modes", Modes)

	g := api.Group("/games")
	g.POST("", games.Create)
	g.GET("/:id", games.Get)
	g.DELETE("/:id", games.Delete)
	g.GET("/:id/targets", games.Targets)
	g.POST("/:id/move", games.Move)
	g.POST("/:id/undo", games.Undo)
	g.POST("/:id/reset", games.Reset)

	l := api.Group("/lobby")
	l.GET("/stream", rooms.Stream)
	l.GET("/rooms", rooms.List)
	l.POST("/rooms", rooms.Create)
	l.GET("/rooms/:id", rooms.Get)
	l.GET("/rooms/:id/stream", rooms.Stream)
	l.POST("/rooms/:id/join", rooms.Join)
	l.POST("/rooms/:id/leave", rooms.Leave)
	l.POST("/rooms/:id/heartbeat", rooms.Heartbeat)
	l.POST("/rooms/:id/move", rooms.Move)
	return r
}
