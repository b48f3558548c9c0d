package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The socket is bearer-authenticated; origin checks add nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// shellMessage is the client-to-server frame on the shell socket.
type shellMessage struct {
	Type string `json:"type"` // "input" or "resize"
	Data string `json:"data,omitempty"`
	Cols uint16 `json:"cols,omitempty"`
	Rows uint16 `json:"rows,omitempty"`
}

// ShellSocket attaches the caller's terminal to the session shell.
// Client frames are JSON input/resize messages; server frames are raw
// output bytes from the shell and any background commands.
func (a *API) ShellSocket(w http.ResponseWriter, r *http.Request) {
	s, ok := a.ownedSession(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("shell socket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	out := &wsWriter{conn: conn}
	detach := s.AttachOutput(out)
	defer detach()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg shellMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		s.Touch()
		switch msg.Type {
		case "input":
			if err := s.WriteInput([]byte(msg.Data)); err != nil {
				a.log.Warn("shell input rejected", zap.String("session_id", s.ID), zap.Error(err))
			}
		case "resize":
			_ = s.ResizeShell(msg.Cols, msg.Rows)
		}
	}
}

// wsWriter serializes writes onto the socket; output arrives from the
// shell pump and background-command pumps concurrently.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
