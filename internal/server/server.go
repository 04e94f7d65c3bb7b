// Package server exposes the quiz service over HTTP and websockets.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/eduquiz/quizforge/internal/auth"
	"github.com/eduquiz/quizforge/internal/quiz"
)

// ReadinessCheck probes one dependency for the readiness endpoint.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config wires a Server.
type Config struct {
	Service   *quiz.Service
	Users     quiz.UserStore
	Tokens    *auth.TokenIssuer
	Hub       *RankingHub
	Readiness []ReadinessCheck
}

// Server is the HTTP transport over the quiz service.
type Server struct {
	service   *quiz.Service
	users     quiz.UserStore
	tokens    *auth.TokenIssuer
	hub       *RankingHub
	readiness []ReadinessCheck
	mux       *http.ServeMux
}

// New creates a Server with all routes registered.
func New(cfg Config) *Server {
	s := &Server{
		service:   cfg.Service,
		users:     cfg.Users,
		tokens:    cfg.Tokens,
		hub:       cfg.Hub,
		readiness: cfg.Readiness,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the root handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return requestLogger(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)

	s.mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	s.mux.Handle("POST /api/quizzes", s.authed(s.handleCreateQuiz))
	s.mux.Handle("GET /api/quizzes/{id}", s.authed(s.handleGetQuiz))
	s.mux.Handle("GET /api/quizzes/{id}/questions", s.authed(s.handleQuestions))
	s.mux.Handle("POST /api/quizzes/{id}/attempts", s.authed(s.handleScoreAttempt))
	s.mux.Handle("PUT /api/quizzes/{id}/finalize", s.authed(s.handleFinalizeQuiz))
	s.mux.HandleFunc("GET /api/quizzes/{id}/ranking", s.handleQuizRanking)
	s.mux.HandleFunc("GET /api/quizzes/{id}/ranking/export", s.handleQuizRankingExport)

	s.mux.Handle("POST /api/groups", s.authed(s.handleCreateGroup))
	s.mux.Handle("POST /api/groups/join", s.authed(s.handleJoinGroup))
	s.mux.Handle("GET /api/groups/{id}", s.authed(s.handleGroupDetail))
	s.mux.Handle("POST /api/groups/{id}/leave", s.authed(s.handleLeaveGroup))
	s.mux.Handle("GET /api/groups/{id}/members", s.authed(s.handleGroupMembers))
	s.mux.Handle("POST /api/groups/{id}/quizzes", s.authed(s.handleCreateGroupQuiz))
	s.mux.HandleFunc("GET /api/groups/{id}/ranking", s.handleGroupRanking)
	s.mux.HandleFunc("GET /api/groups/{id}/ranking/export", s.handleGroupRankingExport)

	s.mux.Handle("GET /api/me", s.authed(s.handleProfile))
	s.mux.Handle("GET /api/me/history", s.authed(s.handleHistory))
	s.mux.Handle("GET /api/me/groups", s.authed(s.handleMyGroups))

	if s.hub != nil {
		s.mux.HandleFunc("GET /ws/rankings", s.hub.handleSubscribe)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.readiness))
	for _, rc := range s.readiness {
		if err := rc.Check(ctx); err != nil {
			checks[rc.Name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks[rc.Name] = "ok"
		}
	}

	body := map[string]any{"status": "ready", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "not ready"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return quiz.ErrInvalidRequest
	}
	return nil
}

// writeError maps service errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, quiz.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, quiz.ErrNotCreator), errors.Is(err, quiz.ErrNotMember):
		status = http.StatusForbidden
	case errors.Is(err, quiz.ErrUserNotFound),
		errors.Is(err, quiz.ErrQuizNotFound),
		errors.Is(err, quiz.ErrGroupNotFound):
		status = http.StatusNotFound
	case errors.Is(err, quiz.ErrEmailTaken),
		errors.Is(err, quiz.ErrAlreadyMember),
		errors.Is(err, quiz.ErrQuizFinalized),
		errors.Is(err, quiz.ErrGroupEmpty):
		status = http.StatusConflict
	case errors.Is(err, quiz.ErrBudgetExhausted):
		status = http.StatusTooManyRequests
	case errors.Is(err, quiz.ErrContractViolated):
		status = http.StatusBadGateway
	case errors.Is(err, quiz.ErrUpstreamUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
