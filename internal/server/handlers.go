package server

import (
	"net/http"
	"strings"

	"github.com/eduquiz/quizforge/internal/auth"
	"github.com/eduquiz/quizforge/internal/quiz"
)

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string    `json:"token"`
	User  quiz.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(body.Name) == "" || strings.TrimSpace(body.Email) == "" || len(body.Password) < 8 {
		writeError(w, quiz.ErrInvalidRequest)
		return
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := s.users.CreateUser(r.Context(), quiz.User{
		Name:         strings.TrimSpace(body.Name),
		Email:        body.Email,
		PasswordHash: hash,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := s.tokens.Issue(user.ID, user.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	user, err := s.users.GetUserByEmail(r.Context(), body.Email)
	if err != nil {
		// Same answer as a wrong password.
		writeError(w, auth.ErrInvalidCredentials)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, body.Password); err != nil {
		writeError(w, err)
		return
	}

	token, err := s.tokens.Issue(user.ID, user.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: user})
}

type createdQuizResponse struct {
	Quiz      quiz.Quiz       `json:"quiz"`
	Questions []quiz.Question `json:"questions"`
	Findings  []quiz.Finding  `json:"findings,omitempty"`
}

func (s *Server) handleCreateQuiz(w http.ResponseWriter, r *http.Request) {
	var req quiz.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	created, questions, findings, err := s.service.CreateQuiz(r.Context(), claimsFrom(r).UserID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdQuizResponse{Quiz: created, Questions: questions, Findings: findings})
}

func (s *Server) handleCreateGroupQuiz(w http.ResponseWriter, r *http.Request) {
	var req quiz.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	created, questions, findings, err := s.service.CreateGroupQuiz(r.Context(), claimsFrom(r).UserID, r.PathValue("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdQuizResponse{Quiz: created, Questions: questions, Findings: findings})
}

func (s *Server) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	q, err := s.service.Quiz(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// questionView is a question as shown to someone about to answer it: the
// correct alternative and justification stay server-side.
type questionView struct {
	ID           string `json:"id"`
	Topic        string `json:"topic"`
	Difficulty   string `json:"difficulty"`
	Text         string `json:"text"`
	AlternativeA string `json:"alternative_a"`
	AlternativeB string `json:"alternative_b"`
	AlternativeC string `json:"alternative_c"`
	AlternativeD string `json:"alternative_d"`
	Points       int    `json:"points"`
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := s.service.Questions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]questionView, len(questions))
	for i, q := range questions {
		views[i] = questionView{
			ID:           q.ID,
			Topic:        q.Topic,
			Difficulty:   q.Difficulty,
			Text:         q.Text,
			AlternativeA: q.AlternativeA,
			AlternativeB: q.AlternativeB,
			AlternativeC: q.AlternativeC,
			AlternativeD: q.AlternativeD,
			Points:       quiz.QuestionPoints(q.Difficulty),
		}
	}
	writeJSON(w, http.StatusOK, views)
}

type attemptRequest struct {
	AttemptKey string        `json:"attempt_key"`
	Answers    []quiz.Answer `json:"answers"`
}

func (s *Server) handleScoreAttempt(w http.ResponseWriter, r *http.Request) {
	var body attemptRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.service.ScoreAttempt(r.Context(), claimsFrom(r).UserID, r.PathValue("id"), body.AttemptKey, body.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFinalizeQuiz(w http.ResponseWriter, r *http.Request) {
	if err := s.service.FinalizeQuiz(r.Context(), claimsFrom(r).UserID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "finalized"})
}

func (s *Server) handleQuizRanking(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.QuizRanking(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGroupRanking(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.GroupRanking(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var body createGroupRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	group, err := s.service.CreateGroup(r.Context(), claimsFrom(r).UserID, quiz.Group{
		Name:        body.Name,
		Description: body.Description,
		Icon:        body.Icon,
		Color:       body.Color,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccessCode string `json:"access_code"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}

	group, err := s.service.JoinGroup(r.Context(), claimsFrom(r).UserID, body.AccessCode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) handleLeaveGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.service.LeaveGroup(r.Context(), claimsFrom(r).UserID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (s *Server) handleGroupDetail(w http.ResponseWriter, r *http.Request) {
	details, err := s.service.GroupDetail(r.Context(), r.PathValue("id"), claimsFrom(r).UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleGroupMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.service.GroupMembers(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, created, err := s.service.Profile(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":            user,
		"quizzes_created": created,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.service.UserHistory(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleMyGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.service.UserGroups(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}
