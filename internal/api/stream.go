package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/gmkornilov/chess-demo-backend/internal/dao"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxFrame   = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientFrame is what browsers may send on a room stream.
type clientFrame struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id"`
}

type serverFrame struct {
	Type string      `json:"type"`
	Room interface{} `json:"room,omitempty"`
}

// Stream pushes every room change to the browser. Without an :id param it
// follows the whole lobby.
func (l *LobbyApi) Stream(ctx *gin.Context) {
	roomID := ctx.Param("id")
	log := l.log.WithField("room_id", roomID)

	if roomID != "" {
		// fail with a plain HTTP status before upgrading
		if _, err := l.Lobby.Get(ctx.Request.Context(), roomID); err != nil {
			abortWithError(ctx, err)
			return
		}
	}

	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	streamCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := l.Lobby.Subscribe(streamCtx, roomID)
	if err != nil {
		log.WithError(err).Error("subscribe to rooms")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(writeWait))
		return
	}

	go l.readFrames(conn, roomID, cancel, log)

	if roomID != "" {
		if room, err := l.Lobby.Get(streamCtx, roomID); err == nil {
			if err := writeFrame(conn, serverFrame{Type: "room", Room: room}); err != nil {
				return
			}
		}
	}
	l.writeFrames(streamCtx, conn, updates, log)
}

// writeFrames drains the update channel into the socket until the client
// goes away or the channel closes.
func (l *LobbyApi) writeFrames(ctx context.Context, conn *websocket.Conn, updates <-chan dao.Room, log logrus.FieldLogger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case room, ok := <-updates:
			if !ok {
				return
			}
			frame := serverFrame{Type: "room", Room: l.Lobby.View(room)}
			if room.Status == dao.RoomClosed {
				frame = serverFrame{Type: "closed", Room: gin.H{"id": room.ID}}
			}
			if err := writeFrame(conn, frame); err != nil {
				log.WithError(err).Debug("stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readFrames handles heartbeats and notices the client leaving.
func (l *LobbyApi) readFrames(conn *websocket.Conn, roomID string, cancel context.CancelFunc, log logrus.FieldLogger) {
	defer cancel()
	conn.SetReadLimit(maxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("stream read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if frame.Type != "heartbeat" || roomID == "" {
			continue
		}
		ctx, done := context.WithTimeout(context.Background(), writeWait)
		if _, err := l.Lobby.Heartbeat(ctx, roomID, frame.PlayerID); err != nil {
			log.WithError(err).WithField("player_id", frame.PlayerID).Debug("heartbeat rejected")
		}
		done()
	}
}

func writeFrame(conn *websocket.Conn, frame serverFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}
