package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const wsWriteTimeout = 10 * time.Second

// wsMessage is one server-to-client frame. Exactly one of Reply or Error
// is set.
type wsMessage struct {
	Type  string `json:"type"` // "answer" or "error"
	Reply any    `json:"reply,omitempty"`
	Error string `json:"error,omitempty"`
}

// handleChatWS carries chat requests over a websocket: every text frame is
// a chatRequest, answered in order with one wsMessage.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	s.logger.Debug("websocket client connected", slog.String("remote", r.RemoteAddr))

	for {
		var req chatRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				s.logger.Debug("websocket client disconnected")
			} else {
				s.logger.Debug("websocket read ended", slog.String("error", err.Error()))
			}

			return
		}

		msg := s.wsAnswer(ctx, req)

		writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		err := wsjson.Write(writeCtx, conn, msg)
		cancel()

		if err != nil {
			s.logger.Warn("websocket write failed", slog.String("error", err.Error()))
			return
		}
	}
}

func (s *Server) wsAnswer(ctx context.Context, req chatRequest) wsMessage {
	if req.Query == "" || req.ProjectName == "" {
		return wsMessage{Type: "error", Error: "Missing query or projectName"}
	}

	reply, err := s.answer(ctx, req)
	if err != nil {
		s.logger.Error("websocket chat failed", slog.String("error", err.Error()))
		return wsMessage{Type: "error", Error: err.Error()}
	}

	return wsMessage{Type: "answer", Reply: reply}
}
