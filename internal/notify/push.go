package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/olahol/melody"

	"coparent/internal/log"
)

const (
	sessionAccountKey = "account_id"
	sessionUserKey    = "user_id"
)

// Hub keeps websocket sessions grouped by account and user.
type Hub struct {
	m      *melody.Melody
	logger *log.Logger
}

type pushFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data any    `json:"data,omitempty"`
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Discard()
	}
	m := melody.New()
	m.Config.MaxMessageSize = 1024
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	h := &Hub{m: m, logger: logger.WithComponent(log.ComponentNotify)}

	m.HandleConnect(func(s *melody.Session) {
		accountID, _ := s.Get(sessionAccountKey)
		h.logger.Debug("Push client connected", log.FieldAccountID, accountID)
	})
	m.HandleDisconnect(func(s *melody.Session) {
		accountID, _ := s.Get(sessionAccountKey)
		h.logger.Debug("Push client disconnected", log.FieldAccountID, accountID)
	})
	m.HandleError(func(s *melody.Session, err error) {
		h.logger.Warn("Websocket error", log.FieldError, err)
	})
	return h
}

// Serve upgrades the request and tags the session with the account and user.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, accountID, userID string) error {
	return h.m.HandleRequestWithKeys(w, r, map[string]any{
		sessionAccountKey: accountID,
		sessionUserKey:    userID,
	})
}

// BroadcastAccount sends a frame to every session of an account.
func (h *Hub) BroadcastAccount(accountID, eventType string, data any) error {
	return h.broadcast(pushFrame{Type: eventType, Data: data}, func(s *melody.Session) bool {
		id, ok := s.Get(sessionAccountKey)
		return ok && id == accountID
	})
}

func (h *Hub) broadcast(frame pushFrame, filter func(*melody.Session) bool) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return h.m.BroadcastFilter(raw, filter)
}

func (h *Hub) Close() error { return h.m.Close() }

func (h *Hub) Name() string  { return "push" }
func (h *Hub) Enabled() bool { return !h.m.IsClosed() }

// Send pushes to the recipient's open sessions in the message's account.
// Having no open session is not an error.
func (h *Hub) Send(_ context.Context, msg Message) error {
	return h.broadcast(pushFrame{Type: msg.Event, Text: msg.Text, Data: msg.Data}, func(s *melody.Session) bool {
		acct, _ := s.Get(sessionAccountKey)
		user, _ := s.Get(sessionUserKey)
		return acct == msg.AccountID && user == msg.To.UserID
	})
}
