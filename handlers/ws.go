package handlers

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/olahol/melody"

	"github.com/LovationAdmin/finance-tracker/middleware"
	"github.com/LovationAdmin/finance-tracker/utils"
)

// WSHandler keeps one melody hub; sessions are tagged with their user id
// so ledger changes reach only the owner's open clients.
type WSHandler struct {
	M *melody.Melody
}

type wsEvent struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
}

func NewWSHandler() *WSHandler {
	m := melody.New()

	m.Config.MaxMessageSize = 1024
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	m.HandleConnect(func(s *melody.Session) {
		utils.LogWebSocket("connect", sessionUser(s))
	})

	m.HandleDisconnect(func(s *melody.Session) {
		utils.LogWebSocket("disconnect", sessionUser(s))
	})

	m.HandleError(func(s *melody.Session, err error) {
		utils.SafeWarn("[WS] session error: %v", err)
	})

	return &WSHandler{M: m}
}

func sessionUser(s *melody.Session) string {
	v, _ := s.Get("user_id")
	id, _ := v.(string)
	return id
}

// HandleWS upgrades an authenticated request.
func (h *WSHandler) HandleWS(c *gin.Context) {
	userID := middleware.GetUserID(c)

	err := h.M.HandleRequestWithKeys(c.Writer, c.Request, map[string]any{"user_id": userID})
	if err != nil {
		utils.SafeWarn("[WS] failed to upgrade websocket: %v", err)
	}
}

// NotifyUser sends a change event to every open session of userID.
func (h *WSHandler) NotifyUser(userID, event string) {
	msg, err := json.Marshal(wsEvent{Type: event, At: time.Now().UTC()})
	if err != nil {
		return
	}

	err = h.M.BroadcastFilter(msg, func(q *melody.Session) bool {
		id, exists := q.Get("user_id")
		return exists && id == userID
	})
	if err != nil {
		utils.SafeWarn("[WS] broadcast to %s failed: %v", utils.MaskID(userID), err)
	}
}

func (h *WSHandler) Close() error {
	return h.M.Close()
}
