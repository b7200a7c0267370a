package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ombralab/mentora/internal/chat"
	"github.com/ombralab/mentora/internal/coach"
	"github.com/ombralab/mentora/internal/config"
	"github.com/ombralab/mentora/internal/memory"
	"github.com/ombralab/mentora/internal/observability"
)

type Server struct {
	cfg          config.Config
	store        memory.Store
	orchestrator *coach.Orchestrator
	chatProvider chat.Provider
	metrics      *observability.Metrics
	storeMode    string
	brainMode    string
	upgrader     websocket.Upgrader
}

func New(
	cfg config.Config,
	store memory.Store,
	orchestrator *coach.Orchestrator,
	chatProvider chat.Provider,
	metrics *observability.Metrics,
	storeMode, brainMode string,
) *Server {
	return &Server{
		cfg:          cfg,
		store:        store,
		orchestrator: orchestrator,
		chatProvider: chatProvider,
		metrics:      metrics,
		storeMode:    storeMode,
		brainMode:    brainMode,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same
				// origin unless explicitly opened up; other sites must not
				// be able to drive a user's chat session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/users", s.handleRegisterUser)
	r.Post("/v1/chat/token", s.handleCreateToken)
	r.Post("/v1/chat/channel", s.handleCreateChannel)
	r.Post("/v1/chat/message", s.handleChatMessage)
	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Post("/v1/memory/{userID}", s.handleUpdateMemory)
	r.Get("/v1/memory/{userID}", s.handleGetMemory)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"store_mode":     s.storeMode,
		"brain_provider": s.brainMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"store_mode":     s.storeMode,
		"brain_provider": s.brainMode,
	})
}

type registerUserRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "user id is required")
		return
	}
	role, err := memory.ParseRole(req.Role)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_role", err.Error())
		return
	}

	// The messaging provider learns about the user first; its failure
	// should not leave a registered user it does not know about.
	if err := s.chatProvider.UpsertUser(r.Context(), req.ID, req.Name); err != nil {
		log.Printf("chat provider upsert failed for %s: %v", req.ID, err)
		respondError(w, http.StatusBadGateway, "chat_provider_error", err.Error())
		return
	}

	if err := s.store.Create(r.Context(), req.ID, req.Name, role); err != nil {
		if errors.Is(err, memory.ErrAlreadyExists) {
			respondError(w, http.StatusConflict, "already_exists", "user is already registered")
			return
		}
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	s.metrics.UsersRegistered.Inc()
	respondJSON(w, http.StatusCreated, map[string]string{"message": "user created successfully"})
}

type tokenRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "user id is required")
		return
	}

	token, err := s.chatProvider.CreateToken(r.Context(), req.UserID)
	if err != nil {
		respondError(w, http.StatusBadGateway, "chat_provider_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

type channelRequest struct {
	LearnerID string `json:"learner_id"`
	CoachID   string `json:"coach_id"`
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.LearnerID) == "" || strings.TrimSpace(req.CoachID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "learner_id and coach_id are required")
		return
	}

	channelID, err := s.chatProvider.CreateChannel(r.Context(), req.LearnerID, req.CoachID)
	if err != nil {
		respondError(w, http.StatusBadGateway, "chat_provider_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"channel_id": channelID})
}

type chatMessageRequest struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	Message   string `json:"message"`
}

type chatMessageResponse struct {
	AIResponse string `json:"ai_response"`
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "user id is required")
		return
	}

	reply, err := s.orchestrator.Handle(r.Context(), req.UserID, req.Message)
	if err != nil {
		s.respondHandleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, chatMessageResponse{AIResponse: reply})
}

func (s *Server) respondHandleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coach.ErrEmptyMessage):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, coach.ErrModel):
		respondError(w, http.StatusBadGateway, "model_error", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if strings.TrimSpace(userID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "missing user id")
		return
	}

	var patch memory.Patch
	if err := decodeJSON(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	state, err := s.store.Merge(r.Context(), userID, patch)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	s.metrics.MemoryUpdates.Inc()
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if strings.TrimSpace(userID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "missing user id")
		return
	}

	state, err := s.store.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, state)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
