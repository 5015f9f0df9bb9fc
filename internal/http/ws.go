package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/olahol/melody"

	"budgetbuddy/internal/core"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/middleware/auth"
)

const (
	keyUserID  = "user_id"
	keySession = "user_session"
	keyCancel  = "cancel"
)

// Frame types pushed over the websocket.
const (
	frameCurrent    = "current"
	frameHistorical = "historical"
	frameLoading    = "loading"
)

// stateHub streams a user's observable period state over websockets. Each
// connection subscribes to the manager's current, historical and loading
// states and forwards every value it sees as one JSON frame.
type stateHub struct {
	m        *melody.Melody
	registry *managerRegistry
	logger   *log.Logger

	mu     sync.Mutex
	byUser map[string]map[*melody.Session]struct{}
}

func newStateHub(registry *managerRegistry, logger *log.Logger) *stateHub {
	m := melody.New()
	m.Config.MaxMessageSize = 512
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	h := &stateHub{
		m:        m,
		registry: registry,
		logger:   logger,
		byUser:   make(map[string]map[*melody.Session]struct{}),
	}
	m.HandleConnect(h.onConnect)
	m.HandleDisconnect(h.onDisconnect)
	m.HandleError(func(s *melody.Session, err error) {
		uid, _ := s.Get(keyUserID)
		h.logger.Debug("WebSocket error", log.FieldUserID, uid, log.FieldError, err)
	})
	return h
}

// handleWS upgrades an authenticated request to a state feed.
func (h *stateHub) handleWS(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		UnauthorizedError("not authenticated").Write(w)
		return
	}
	keys := map[string]any{
		keyUserID:  u.ID,
		keySession: h.registry.get(u),
	}
	if err := h.m.HandleRequestWithKeys(w, r, keys); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "WebSocket upgrade failed", log.FieldError, err)
	}
}

func (h *stateHub) onConnect(s *melody.Session) {
	uid := s.MustGet(keyUserID).(string)
	us := s.MustGet(keySession).(*userSession)

	h.mu.Lock()
	if h.byUser[uid] == nil {
		h.byUser[uid] = make(map[*melody.Session]struct{})
	}
	h.byUser[uid][s] = struct{}{}
	h.mu.Unlock()

	current, cancelCurrent := us.manager.Current().Subscribe()
	historical, cancelHistorical := us.manager.Historical().Subscribe()
	loading, cancelLoading := us.manager.Loading().Subscribe()
	s.Set(keyCancel, func() {
		cancelCurrent()
		cancelHistorical()
		cancelLoading()
	})

	go h.pump(s, current, historical, loading)
	h.logger.Debug("WebSocket connected", log.FieldUserID, uid)
}

// pump forwards state values until every subscription is cancelled.
func (h *stateHub) pump(s *melody.Session, current <-chan *core.BudgetPeriod, historical <-chan []core.BudgetPeriod, loading <-chan bool) {
	for current != nil || historical != nil || loading != nil {
		var frame stateDTO
		select {
		case p, ok := <-current:
			if !ok {
				current = nil
				continue
			}
			frame = stateDTO{Type: frameCurrent}
			if p != nil {
				dto := toPeriodDTO(*p)
				frame.Current = &dto
			}
		case list, ok := <-historical:
			if !ok {
				historical = nil
				continue
			}
			frame = stateDTO{Type: frameHistorical, Historical: toPeriodDTOs(list)}
		case v, ok := <-loading:
			if !ok {
				loading = nil
				continue
			}
			frame = stateDTO{Type: frameLoading, Loading: &v}
		}

		data, err := json.Marshal(frame)
		if err != nil {
			h.logger.Error("Failed to encode state frame", log.FieldError, err)
			continue
		}
		if err := s.Write(data); err != nil && s.IsClosed() {
			h.cancel(s)
		}
	}
}

func (h *stateHub) onDisconnect(s *melody.Session) {
	h.cancel(s)

	uid, _ := s.Get(keyUserID)
	id, _ := uid.(string)
	h.mu.Lock()
	delete(h.byUser[id], s)
	if len(h.byUser[id]) == 0 {
		delete(h.byUser, id)
	}
	h.mu.Unlock()
	h.logger.Debug("WebSocket disconnected", log.FieldUserID, id)
}

func (h *stateHub) cancel(s *melody.Session) {
	if v, ok := s.Get(keyCancel); ok {
		v.(func())()
	}
}

// closeUser drops every feed of userID. Clients reconnect and get a
// fresh manager.
func (h *stateHub) closeUser(userID string) {
	h.mu.Lock()
	sessions := make([]*melody.Session, 0, len(h.byUser[userID]))
	for s := range h.byUser[userID] {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		_ = s.CloseWithMsg(melody.FormatCloseMessage(1012, "session restarted"))
	}
}

// connections reports the number of open feeds.
func (h *stateHub) connections() int {
	return h.m.Len()
}

func (h *stateHub) close() error {
	return h.m.CloseWithMsg(melody.FormatCloseMessage(1001, "server shutting down"))
}
