package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ebbing-ai/memorybank/memory"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Auth happens in middleware; browser clients connect cross-origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 30 * time.Second

// wsChatRequest is one inbound chat turn over the socket.
type wsChatRequest struct {
	Message string            `json:"message"`
	TopK    int               `json:"top_k"`
	Filter  map[string]string `json:"filter"`
}

type wsError struct {
	Error string `json:"error"`
}

// handleWebsocket runs an interactive chat session: one JSON request
// per message, one JSON response per message, on a single connection.
// Turns are sequential per connection, which matches how conversation
// memory accumulates.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "no llm configured")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[HTTP] Websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req wsChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[HTTP] Websocket read: %v", err)
			}
			return
		}
		if req.Message == "" {
			s.wsReply(conn, wsError{Error: "message required"})
			continue
		}

		result, err := s.chat.Chat(r.Context(), req.Message, req.TopK, memory.Metadata(req.Filter))
		if err != nil {
			s.wsReply(conn, wsError{Error: err.Error()})
			continue
		}
		s.wsReply(conn, result)
	}
}

func (s *Server) wsReply(conn *websocket.Conn, v any) {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(v); err != nil {
		log.Printf("[HTTP] Websocket write: %v", err)
	}
}
