package hub

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"fleettrack/internal/domain"
)

// ConnOptions carries the socket deadlines for one connection.
type ConnOptions struct {
	WriteTimeout time.Duration
	PongTimeout  time.Duration
}

// clientCommand is the inbound control frame. Topic-scoped actions carry
// the tracker or geofence id; "subscribe:alerts" and "unsubscribe:*" do not.
type clientCommand struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
}

type serverError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ServeConn runs the read and write pumps for an authenticated session
// and blocks until the connection drops or the session is closed. The
// caller owns the upgrade; ServeConn owns teardown.
func (h *Hub) ServeConn(conn *websocket.Conn, s *Session, opts ConnOptions) {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}

	done := make(chan struct{})
	go h.writePump(conn, s, opts, done)
	h.readPump(conn, s, opts)

	h.Disconnect(s)
	<-done
	conn.Close()
}

func (h *Hub) readPump(conn *websocket.Conn, s *Session, opts ConnOptions) {
	conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Str("session_id", s.ID).Msg("read error")
			}
			return
		}

		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			h.sendError(s, "malformed command")
			continue
		}
		if err := h.apply(s, cmd); err != nil {
			h.sendError(s, err.Error())
		}
	}
}

func (h *Hub) apply(s *Session, cmd clientCommand) error {
	switch cmd.Action {
	case "subscribe:tracker":
		if cmd.ID == "" {
			return domain.ErrInvalidInput
		}
		return h.Subscribe(s, domain.TopicTracker(cmd.ID))
	case "subscribe:geofence":
		if cmd.ID == "" {
			return domain.ErrInvalidInput
		}
		return h.Subscribe(s, domain.TopicGeofence(cmd.ID))
	case "subscribe:alerts":
		return h.Subscribe(s, domain.TopicAlerts)
	case "unsubscribe:tracker":
		h.Unsubscribe(s, domain.TopicTracker(cmd.ID))
		return nil
	case "unsubscribe:geofence":
		h.Unsubscribe(s, domain.TopicGeofence(cmd.ID))
		return nil
	case "unsubscribe:alerts":
		h.Unsubscribe(s, domain.TopicAlerts)
		return nil
	case "unsubscribe:*":
		h.UnsubscribeAll(s)
		return nil
	default:
		return domain.ErrInvalidInput
	}
}

func (h *Hub) sendError(s *Session, msg string) {
	frame, err := json.Marshal(serverError{Type: "error", Error: msg})
	if err != nil {
		return
	}
	s.enqueue(frame)
}

func (h *Hub) writePump(conn *websocket.Conn, s *Session, opts ConnOptions, done chan<- struct{}) {
	defer close(done)

	pingInterval := opts.PongTimeout * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.send:
			conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-s.Done():
			conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
