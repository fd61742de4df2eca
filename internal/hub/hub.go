// Package hub fans out scoring frames to WebSocket subscribers. Each
// match is a room; a subscriber attaches with a credential, receives a
// full snapshot, and then gets every frame the scoring pipeline
// publishes for that match, in log order.
package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thirdumpire/crease/internal/auth"
	"github.com/thirdumpire/crease/internal/config"
	"github.com/thirdumpire/crease/internal/domain"
	"github.com/thirdumpire/crease/internal/events"
	"github.com/thirdumpire/crease/internal/scoring"
	"github.com/thirdumpire/crease/internal/telemetry"
)

const (
	writeDeadline = 5 * time.Second
	pongWait      = 60 * time.Second
	pingInterval  = 20 * time.Second

	// closeTimeout is the app-reserved close code for a subscriber that
	// sent no traffic, not even a pong, within pongWait.
	closeTimeout = 4008
)

type client struct {
	matchID string
	subject string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	closing sync.Once
}

// Hub owns the rooms and the bus subscription.
type Hub struct {
	svc    *scoring.Service
	signer *auth.Signer
	cfg    *config.Config

	// now is swapped by tests that pin credential expiry.
	now func() time.Time

	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
}

func New(svc *scoring.Service, signer *auth.Signer, cfg *config.Config, bus *events.Bus) *Hub {
	h := &Hub{
		svc:    svc,
		signer: signer,
		cfg:    cfg,
		now:    time.Now,
		rooms:  make(map[string]map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if cfg.AllowedOrigin == "*" {
				return true
			}
			return r.Header.Get("Origin") == cfg.AllowedOrigin
		},
	}
	bus.SubscribeAll(h.forward)
	return h
}

// forward runs on the publisher's goroutine. It serializes the frame
// once and enqueues it to every subscriber of the match's room. A
// subscriber whose buffer is full is cut loose with a try-again-later
// close; on reconnect the snapshot and resume flow catch it up.
func (h *Hub) forward(evt events.Event) error {
	data, err := MarshalEvent(evt)
	if err != nil {
		telemetry.Warnf("hub: marshal %s frame: %v", evt.Type, err)
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[evt.MatchID] {
		select {
		case c.send <- data:
			telemetry.Metrics.FramesSent.Inc()
		default:
			telemetry.Metrics.SocketDrops.Inc()
			telemetry.Warnf("hub: subscriber %s too slow on match %s, disconnecting", c.subject, c.matchID)
			// The close reason carries the seq to hand back as
			// ?resume_from= on reconnect.
			go c.kick(websocket.CloseTryAgainLater, fmt.Sprintf(`{"resumeFrom":%d}`, evt.Seq))
		}
	}
	return nil
}

// HandleWS upgrades a subscription request. The credential comes as a
// bearer header or ?token=; auth failures are reported as a policy
// close after the upgrade so browser clients can read the reason.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	matchID := r.PathValue("id")
	if matchID == "" {
		matchID = r.URL.Query().Get("match")
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		telemetry.Warnf("hub: upgrade failed: %v", err)
		return
	}

	claims, err := h.signer.Verify(bearerToken(r), h.now())
	if err != nil {
		policyClose(conn, "unauthenticated", err.Error())
		return
	}
	if matchID == "" {
		policyClose(conn, "invalid_argument", "match id required")
		return
	}
	if claims.MatchID != "" && claims.MatchID != matchID {
		policyClose(conn, "permission_denied", "credential is scoped to another match")
		return
	}

	snapshot, err := h.svc.Snapshot(r.Context(), matchID)
	if err != nil {
		policyClose(conn, string(domain.KindOf(err)), err.Error())
		return
	}

	c := &client{
		matchID: matchID,
		subject: claims.Subject,
		conn:    conn,
		send:    make(chan []byte, h.cfg.ClientSendBuffer),
		done:    make(chan struct{}),
	}
	// The snapshot and any catch-up frames are queued before the pumps
	// start, so they always precede live frames.
	c.enqueue(envelope(events.TypeConnectionEstablished, matchID, snapshotSeq(snapshot), h.now(), snapshot))
	if from := r.URL.Query().Get("resume_from"); from != "" {
		if seq, perr := strconv.ParseInt(from, 10, 64); perr == nil {
			rec, rerr := h.svc.Resume(r.Context(), matchID, seq)
			if rerr == nil && rec != nil {
				if raw, merr := json.Marshal(rec); merr == nil {
					c.enqueue(envelope(events.TypeReconciliation, matchID, snapshotSeq(snapshot), h.now(), raw))
				}
			}
		}
	}

	h.attach(c)
	telemetry.Infof("hub: %s subscribed to match %s", claims.Subject, matchID)
	go h.writePump(c)
	go h.readPump(c)
}

// Close disconnects every subscriber, for shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*client
	for _, room := range h.rooms {
		for c := range room {
			all = append(all, c)
		}
	}
	h.mu.Unlock()
	for _, c := range all {
		c.kick(websocket.CloseGoingAway, "server shutting down")
	}
}

func (h *Hub) attach(c *client) {
	h.mu.Lock()
	room := h.rooms[c.matchID]
	if room == nil {
		room = make(map[*client]struct{})
		h.rooms[c.matchID] = room
	}
	room[c] = struct{}{}
	h.mu.Unlock()
	telemetry.Metrics.SocketClients.Inc()
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	if room, ok := h.rooms[c.matchID]; ok {
		if _, ok := room[c]; ok {
			delete(room, c)
			telemetry.Metrics.SocketClients.Dec()
		}
		if len(room) == 0 {
			delete(h.rooms, c.matchID)
		}
	}
	h.mu.Unlock()
}

// writePump owns the connection's write side and the client lifecycle:
// on exit it detaches the client so forward never sends to a stale
// channel, then closes the connection.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		h.detach(c)
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the connection alive: protocol pongs reset the read
// deadline, and a bare "ping" text from simple clients gets a "pong"
// back. Anything else from the subscriber is ignored.
func (h *Hub) readPump(c *client) {
	defer close(c.done)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				c.kick(closeTimeout, "no traffic for 60s")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if strings.TrimSpace(string(msg)) == "ping" {
			c.enqueue([]byte("pong"))
		}
	}
}

func (c *client) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

// kick closes the connection with a reasoned close frame. Safe to call
// more than once; the pumps shut down when the connection dies.
func (c *client) kick(code int, reason string) {
	c.closing.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeDeadline))
		c.conn.Close()
	})
}

// policyClose rejects a connection that upgraded but failed admission.
func policyClose(conn *websocket.Conn, code, message string) {
	if raw, err := json.Marshal(events.ErrorPayload{Code: code, Message: message}); err == nil {
		env := envelope(events.TypeError, "", 0, time.Now(), raw)
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		_ = conn.WriteMessage(websocket.TextMessage, env)
	}
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeDeadline))
	conn.Close()
}

func envelope(t events.Type, matchID string, seq int64, ts time.Time, payload json.RawMessage) []byte {
	raw, err := json.Marshal(Envelope{
		Type:      string(t),
		MatchID:   matchID,
		Seq:       seq,
		Timestamp: ts.UTC(),
		Data:      payload,
	})
	if err != nil {
		return nil
	}
	return raw
}

// snapshotSeq pulls the log sequence out of an encoded snapshot so the
// attach frame carries the resume point.
func snapshotSeq(snapshot json.RawMessage) int64 {
	var meta struct {
		LastSeq int64 `json:"lastSeq"`
	}
	if err := json.Unmarshal(snapshot, &meta); err != nil {
		return 0
	}
	return meta.LastSeq
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
