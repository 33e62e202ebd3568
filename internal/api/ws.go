package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mailstash/mailstash/internal/notify"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsConn adapts a websocket to subscribe.Conn. gorilla permits one
// concurrent writer, so sends and the close frame share a mutex.
type wsConn struct {
	mu   sync.Mutex
	ws   *websocket.Conn
	once sync.Once
}

func (c *wsConn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.ws.WriteJSON(v)
}

// Close sends a close frame when the peer is still there, then tears
// the connection down. Callable from both the read loop teardown and
// registry shutdown.
func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.mu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// handleWS upgrades the request and registers the subscriber named by
// the email query parameter. A rejected registration is reported to
// the client as an error event before closing, in the same envelope
// notification clients already parse.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error to the client.
		s.log.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn := &wsConn{ws: ws}

	email := r.URL.Query().Get("email")
	if err := s.registry.Subscribe(email, conn); err != nil {
		_ = conn.Send(notify.ErrorEvent(err.Error()))
		_ = conn.Close()
		return
	}
	s.log.Info("subscriber connected", "email", email)

	defer func() {
		s.registry.Unsubscribe(email)
		_ = conn.Close()
		s.log.Info("subscriber disconnected", "email", email)
	}()

	// Subscribers are not expected to send anything; reading just
	// surfaces control frames and disconnects.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
