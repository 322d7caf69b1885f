package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/drewpri411/kaathumaaa/pkg/agent"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The transport carries raw PCM from trusted capture clients; origin
	// policy is enforced upstream.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConn serializes writes; the output pump and status replies share the
// connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) write(messageType int, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(messageType, data)
}

// handleStream is the audio transport: binary messages carry one capture
// frame of 16-bit PCM in, and the mixed output stream flows back the same
// way. A text message "status" answers with the session snapshot.
func (s *Server) handleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	ws := &wsConn{conn: conn}
	defer conn.Close()

	collab, err := s.factory()
	if err != nil {
		s.log.Error("collaborator setup failed", "error", err)
		_ = ws.write(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "collaborator setup failed"))
		return
	}

	sess, err := agent.NewSession(uuid.NewString(), s.cfg, collab, s.lib, s.log)
	if err != nil {
		s.log.Error("session setup failed", "error", err)
		return
	}
	s.metrics.Observe(sess)
	s.registry.Add(sess)
	s.metrics.SessionsActive.Inc()
	defer func() {
		s.registry.Remove(sess.ID)
		s.metrics.SessionsActive.Dec()
		sess.Close()
	}()

	ctx := c.Request.Context()
	sess.Start(ctx)
	s.log.Info("stream connected", "session", sess.ID)

	// Output pump: one mixed frame per frame period back to the client.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-sess.Output():
				if !ok {
					return
				}
				if err := ws.write(websocket.BinaryMessage, frame.Data); err != nil {
					return
				}
			}
		}
	}()

read:
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		switch messageType {
		case websocket.BinaryMessage:
			if err := sess.PushAudio(data, time.Now()); err != nil {
				s.log.Warn("bad audio frame", "session", sess.ID, "error", err)
			}
		case websocket.TextMessage:
			if string(data) == "status" {
				body, _ := json.Marshal(sess.Snapshot())
				if err := ws.write(websocket.TextMessage, body); err != nil {
					break read
				}
			}
		}
	}
	<-done
	s.log.Info("stream disconnected", "session", sess.ID)
}
