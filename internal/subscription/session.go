package subscription

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/streamspace/nmos-registry/internal/apierrors"
	"github.com/streamspace/nmos-registry/internal/logger"
	"github.com/streamspace/nmos-registry/internal/models"
	"github.com/streamspace/nmos-registry/internal/router"
	"github.com/streamspace/nmos-registry/internal/tai"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Session is one WebSocket connection bound to exactly one subscription.
type Session struct {
	entry       *entry
	conn        *websocket.Conn
	send        chan []byte
	limiter     *rate.Limiter
	pending     []models.Change
	lastSendTAI tai.Timestamp
	closed      chan struct{}
}

// Connect upgrades r into a WebSocket session bound to the subscription
// named by id, per the router's relPath/params convention (used as a
// router.Handler). It replies 404 without upgrading if the subscription
// is unknown.
func (m *Manager) Connect(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
	id := params["id"]

	m.mu.Lock()
	e, ok := m.byID[id]
	m.mu.Unlock()
	if !ok {
		apierrors.WriteJSON(w, apierrors.NotFound(id))
		return false
	}

	raw := router.Raw(w)
	conn, err := upgrader.Upgrade(raw, r, nil)
	if err != nil {
		logger.Subscription().Warn().Err(err).Str("subscription_id", id).Msg("websocket upgrade failed")
		return false
	}
	router.MarkHijacked(w)

	sess := &Session{
		entry:   e,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: rateLimiter(e.sub.MaxUpdateRateMs),
		closed:  make(chan struct{}),
	}

	m.mu.Lock()
	e.sessions[sess] = struct{}{}
	m.mu.Unlock()

	m.sendSyncGrain(e, sess)

	go sess.writePump()
	go m.readPump(e, sess)

	return false
}

// sendSyncGrain enqueues the subscription's current matching resource
// set as a batch of (pre=nil, post=current) changes, per the
// first-attach / reconnect contract.
func (m *Manager) sendSyncGrain(e *entry, sess *Session) {
	matches := m.currentMatches(e)
	changes := make([]models.Change, 0, len(matches))
	for _, r := range matches {
		changes = append(changes, models.Change{Path: r.ID, Post: r.Data})
	}
	grain := models.NewGrain(e.sub.ResourcePath, tai.Now().String(), changes)
	sess.lastSendTAI = tai.Now()
	sess.enqueue(grain)
}

func (sess *Session) enqueue(grain *models.Grain) {
	b, err := grainJSON(grain)
	if err != nil {
		return
	}
	select {
	case sess.send <- b:
	default:
		// Slow consumer: drop rather than block the fanout worker, mirroring
		// the teacher's buffered-channel-with-drop hub semantics.
	}
}

func (sess *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = sess.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-sess.send:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sess.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sess.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sess.closed:
			return
		}
	}
}

// readPump only exists to drive the pong deadline and notice the peer
// closing; subscription sessions are server-push-only.
func (m *Manager) readPump(e *entry, sess *Session) {
	defer m.detach(e, sess)
	_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sess.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (m *Manager) detach(e *entry, sess *Session) {
	close(sess.closed)
	m.mu.Lock()
	delete(e.sessions, sess)
	empty := len(e.sessions) == 0
	persist := e.sub.Persist
	m.mu.Unlock()

	if empty && !persist {
		m.mu.Lock()
		delete(m.byID, e.sub.ID)
		for k, v := range m.byKey {
			if v == e {
				delete(m.byKey, k)
				break
			}
		}
		m.mu.Unlock()
	}
}
