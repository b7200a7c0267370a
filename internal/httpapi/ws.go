package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ombralab/mentora/internal/coach"
)

type wsClientMessage struct {
	Message string `json:"message"`
}

type wsServerMessage struct {
	AIResponse string `json:"ai_response,omitempty"`
	Error      string `json:"error,omitempty"`
	Code       string `json:"code,omitempty"`
}

// handleChatWS serves a simple live chat channel: the client sends
// {"message": ...} frames and receives {"ai_response": ...} frames. Each
// inbound frame goes through the same orchestrator path as the REST
// endpoint, so loop detection and persistence behave identically.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "missing_user_id", "query parameter user_id is required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		var msg wsClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		s.metrics.WSMessages.WithLabelValues("inbound").Inc()

		reply, err := s.orchestrator.Handle(r.Context(), userID, msg.Message)
		out := wsServerMessage{AIResponse: reply}
		if err != nil {
			out = wsServerMessage{Error: err.Error(), Code: wsErrorCode(err)}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(out); err != nil {
			return
		}
		s.metrics.WSMessages.WithLabelValues("outbound").Inc()
	}
}

func wsErrorCode(err error) string {
	switch {
	case errors.Is(err, coach.ErrEmptyMessage):
		return "invalid_request"
	case errors.Is(err, coach.ErrModel):
		return "model_error"
	default:
		return "internal_error"
	}
}
