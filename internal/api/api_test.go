package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmkornilov/chess-demo-backend/internal/dao"
	"github.com/gmkornilov/chess-demo-backend/internal/lobby"
	"github.com/gmkornilov/chess-demo-backend/internal/session"
	"github.com/gmkornilov/chess-demo-backend/pkg/ai"
	"github.com/gmkornilov/chess-demo-backend/pkg/board"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	sessions := session.NewManager(ai.NewRandom(3), session.Options{Validation: board.ValidatePseudoLegal}, log)
	repo := dao.NewMemoryRoomRepository(log)
	svc := lobby.NewService(repo, lobby.Options{}, log)
	return NewRouter(NewGameApi(sessions), NewLobbyApi(svc, log), log)
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

type gameResponse struct {
	ID        string      `json:"id"`
	Mode      string      `json:"mode"`
	Turn      string      `json:"turn"`
	History   []string    `json:"history"`
	Placement string      `json:"placement"`
	Board     [][]*string `json:"board"`
	Status    string      `json:"status"`
}

func TestHealthAndModes(t *testing.T) {
	r := newTestRouter(t)
	rec := do(t, r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(t, r, http.MethodGet, "/api/modes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Modes []modeInfo `json:"modes"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Modes, 3)
	assert.Equal(t, "online", body.Modes[2].ID)
}

func TestLocalGameFlow(t *testing.T) {
	r := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/api/games", gin.H{"mode": "local"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var game gameResponse
	decode(t, rec, &game)
	assert.Equal(t, "white", game.Turn)
	require.Len(t, game.Board, 8)
	assert.Equal(t, "wK", *game.Board[7][4])

	rec = do(t, r, http.MethodGet, "/api/games/"+game.ID+"/targets?from=g1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var targets struct {
		From    string   `json:"from"`
		Targets []string `json:"targets"`
	}
	decode(t, rec, &targets)
	assert.Equal(t, "g1", targets.From)
	assert.ElementsMatch(t, []string{"f3", "h3"}, targets.Targets)

	rec = do(t, r, http.MethodPost, "/api/games/"+game.ID+"/move", gin.H{"from": "g1", "to": "f3"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &game)
	assert.Equal(t, []string{"g1f3"}, game.History)
	assert.Equal(t, "black", game.Turn)

	rec = do(t, r, http.MethodPost, "/api/games/"+game.ID+"/move", gin.H{"from": "a1", "to": "a2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/games/"+game.ID+"/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &game)
	assert.Empty(t, game.History)

	rec = do(t, r, http.MethodPost, "/api/games/"+game.ID+"/undo", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/games/"+game.ID+"/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodDelete, "/api/games/"+game.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, r, http.MethodGet, "/api/games/"+game.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAIPlaysFirstOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	rec := do(t, r, http.MethodPost, "/api/games", gin.H{"mode": "ai", "ai_color": "white"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var game gameResponse
	decode(t, rec, &game)
	assert.Len(t, game.History, 1)
	assert.Equal(t, "black", game.Turn)
}

func TestGameBadRequests(t *testing.T) {
	r := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/api/games", gin.H{"mode": "online"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, r, http.MethodPost, "/api/games", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, r, http.MethodPost, "/api/games", gin.H{"mode": "ai", "ai_color": "green"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/games", gin.H{"mode": "local"})
	var game gameResponse
	decode(t, rec, &game)
	rec = do(t, r, http.MethodGet, "/api/games/"+game.ID+"/targets?from=z9", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, r, http.MethodPost, "/api/games/"+game.ID+"/move", gin.H{"from": "e2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	decode(t, rec, &body)
	assert.NotEmpty(t, body["error"])
}

type roomResponse struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Turn    string   `json:"turn"`
	Moves   []string `json:"moves"`
	Version int64    `json:"version"`
	Winner  string   `json:"winner"`
}

func TestLobbyFlow(t *testing.T) {
	r := newTestRouter(t)

	rec := do(t, r, http.MethodPost, "/api/lobby/rooms", gin.H{
		"name":   "friendly",
		"player": gin.H{"id": "alice", "name": "Alice", "rating": 1600},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var room roomResponse
	decode(t, rec, &room)
	assert.Equal(t, "waiting", room.Status)

	rec = do(t, r, http.MethodGet, "/api/lobby/rooms", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rooms []roomResponse `json:"rooms"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Rooms, 1)

	rec = do(t, r, http.MethodPost, "/api/lobby/rooms/"+room.ID+"/join", gin.H{"id": "bob", "name": "Bob"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &room)
	assert.Equal(t, "active", room.Status)

	rec = do(t, r, http.MethodPost, "/api/lobby/rooms/"+room.ID+"/join", gin.H{"id": "carol"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/lobby/rooms/"+room.ID+"/move", gin.H{"player_id": "bob", "from": "e7", "to": "e5"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = do(t, r, http.MethodPost, "/api/lobby/rooms/"+room.ID+"/move", gin.H{"player_id": "carol", "from": "e2", "to": "e4"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/lobby/rooms/"+room.ID+"/move", gin.H{
		"player_id": "alice", "from": "e2", "to": "e4", "version": room.Version,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &room)
	assert.Equal(t, []string{"e2e4"}, room.Moves)
	assert.Equal(t, "black", room.Turn)

	rec = do(t, r, http.MethodPost, "/api/lobby/rooms/"+room.ID+"/move", gin.H{
		"player_id": "bob", "from": "e7", "to": "e5", "version": room.Version - 1,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/lobby/rooms/"+room.ID+"/heartbeat", gin.H{"player_id": "bob"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// the heartbeat leaves the version black last saw valid
	rec = do(t, r, http.MethodPost, "/api/lobby/rooms/"+room.ID+"/move", gin.H{
		"player_id": "bob", "from": "e7", "to": "e5", "version": room.Version,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, r, http.MethodPost, "/api/lobby/rooms/"+room.ID+"/leave", gin.H{"player_id": "bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &room)
	assert.Equal(t, "finished", room.Status)
	assert.Equal(t, "white", room.Winner)

	rec = do(t, r, http.MethodGet, "/api/lobby/rooms/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, r, http.MethodPost, "/api/lobby/rooms", gin.H{"player": gin.H{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoomStream(t *testing.T) {
	r := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	rec := do(t, r, http.MethodPost, "/api/lobby/rooms", gin.H{"player": gin.H{"id": "alice"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	var room roomResponse
	decode(t, rec, &room)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/lobby/rooms/" + room.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var frame struct {
		Type string       `json:"type"`
		Room roomResponse `json:"room"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "room", frame.Type)
	assert.Equal(t, "waiting", frame.Room.Status)

	rec = do(t, r, http.MethodPost, "/api/lobby/rooms/"+room.ID+"/join", gin.H{"id": "bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "room", frame.Type)
	assert.Equal(t, "active", frame.Room.Status)

	require.NoError(t, conn.WriteJSON(gin.H{"type": "heartbeat", "player_id": "bob"}))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "active", frame.Room.Status)
	// presence does not bump the game version
	assert.Equal(t, int64(1), frame.Room.Version)
}

func TestRoomStreamUnknownRoom(t *testing.T) {
	r := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/lobby/rooms/missing/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(session.ErrGameNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(dao.ErrVersionConflict))
	assert.Equal(t, http.StatusBadRequest, statusFor(board.ErrSelfCapture))
	assert.Equal(t, http.StatusForbidden, statusFor(lobby.ErrNotSeated))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.DeadlineExceeded))
}
