package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eduquiz/quizforge/internal/ai"
	"github.com/eduquiz/quizforge/internal/auth"
	"github.com/eduquiz/quizforge/internal/quiz"
	"github.com/eduquiz/quizforge/internal/server"
)

const generationResponse = `[
  {
    "tema": "Matemática",
    "dificuldade": "Médio",
    "perguntaTexto": "Quanto é 3x3?",
    "alternativaA": "6",
    "alternativaB": "9",
    "alternativaC": "12",
    "alternativaD": "27",
    "respostaCorreta": "B",
    "justificativa": "3x3=9.",
    "referencia": ""
  }
]`

const reviewResponse = `[{"index": 0, "valid": true, "issues": [], "correctAnswerVerified": true}]`

var quizRequest = quiz.Request{
	SchoolLevel:   "Ensino Médio",
	Topics:        []string{"Matemática"},
	QuestionCount: 1,
	Difficulties:  []string{quiz.DifficultyMedium},
}

type testEnv struct {
	ts    *httptest.Server
	store *quiz.MemoryStore
	hub   *server.RankingHub
}

func newTestEnv(t *testing.T, provider *ai.MockProvider) *testEnv {
	t.Helper()

	store := quiz.NewMemoryStore()
	hub := server.NewRankingHub()
	service := quiz.NewService(quiz.ServiceConfig{
		Store:     store,
		Generator: quiz.NewGenerator(quiz.GeneratorConfig{AI: provider}),
		Notifier:  hub,
	})

	srv := server.New(server.Config{
		Service: service,
		Users:   store,
		Tokens:  auth.NewTokenIssuer("test-secret", time.Hour),
		Hub:     hub,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, store: store, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

type sessionResponse struct {
	Token string    `json:"token"`
	User  quiz.User `json:"user"`
}

func (e *testEnv) register(t *testing.T, name, email string) sessionResponse {
	t.Helper()

	resp := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "segredo123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}
	return decodeBody[sessionResponse](t, resp)
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t, ai.NewMockProvider(generationResponse))

	session := env.register(t, "Ana", "ana@example.com")
	if session.Token == "" || session.User.ID == "" {
		t.Fatalf("register response = %+v, want token and user", session)
	}

	resp := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Clone", "email": "ana@example.com", "password": "segredo123",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Curta", "email": "curta@example.com", "password": "123",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("short password status = %d, want 400", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ana@example.com", "password": "segredo123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	login := decodeBody[sessionResponse](t, resp)
	if login.Token == "" {
		t.Error("login returned no token")
	}

	resp = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ana@example.com", "password": "errada",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, ai.NewMockProvider(generationResponse))

	resp := env.do(t, http.MethodPost, "/api/quizzes", "", quizRequest)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/quizzes", "not-a-token", quizRequest)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", resp.StatusCode)
	}
}

type createdQuizResponse struct {
	Quiz      quiz.Quiz       `json:"quiz"`
	Questions []quiz.Question `json:"questions"`
	Findings  []quiz.Finding  `json:"findings"`
}

func TestCreateQuizAndAnswer(t *testing.T) {
	env := newTestEnv(t, ai.NewScriptedProvider(generationResponse, reviewResponse))
	session := env.register(t, "Ana", "ana@example.com")

	resp := env.do(t, http.MethodPost, "/api/quizzes", session.Token, quizRequest)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create quiz status = %d, want 201", resp.StatusCode)
	}
	created := decodeBody[createdQuizResponse](t, resp)
	if len(created.Questions) != 1 || len(created.Findings) != 1 {
		t.Fatalf("created = %+v, want 1 question and 1 finding", created)
	}

	// The answering view must not leak the correct alternative.
	resp = env.do(t, http.MethodGet, "/api/quizzes/"+created.Quiz.ID+"/questions", session.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("questions status = %d, want 200", resp.StatusCode)
	}
	views := decodeBody[[]map[string]any](t, resp)
	if len(views) != 1 {
		t.Fatalf("questions = %d, want 1", len(views))
	}
	if _, leaked := views[0]["correct_alternative"]; leaked {
		t.Error("questions endpoint leaked the correct alternative")
	}
	if views[0]["points"].(float64) != 20 {
		t.Errorf("points = %v, want 20 for medium difficulty", views[0]["points"])
	}

	resp = env.do(t, http.MethodPost, "/api/quizzes/"+created.Quiz.ID+"/attempts", session.Token, map[string]any{
		"attempt_key": "key-1",
		"answers": []quiz.Answer{
			{QuestionID: created.Questions[0].ID, Alternative: created.Questions[0].CorrectAlternative},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("attempt status = %d, want 200", resp.StatusCode)
	}
	result := decodeBody[quiz.Result](t, resp)
	if result.CorrectCount != 1 || result.PointsObtained != 20 {
		t.Errorf("result = %+v, want 1 correct and 20 points", result)
	}

	resp = env.do(t, http.MethodGet, "/api/quizzes/"+created.Quiz.ID+"/ranking", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ranking status = %d, want 200", resp.StatusCode)
	}
	ranking := decodeBody[[]quiz.RankingEntry](t, resp)
	if len(ranking) != 1 || ranking[0].DisplayName != "Ana" {
		t.Errorf("ranking = %+v, want Ana on top", ranking)
	}

	resp = env.do(t, http.MethodGet, "/api/me/history", session.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d, want 200", resp.StatusCode)
	}
	history := decodeBody[[]quiz.Result](t, resp)
	if len(history) != 1 {
		t.Errorf("history = %d entries, want 1", len(history))
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, ai.NewMockProvider("sem json aqui"))
	session := env.register(t, "Ana", "ana@example.com")

	// Broken model output surfaces as a bad gateway.
	resp := env.do(t, http.MethodPost, "/api/quizzes", session.Token, quizRequest)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("contract violation status = %d, want 502", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/quizzes/missing/ranking", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing quiz status = %d, want 404", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/quizzes", session.Token, quiz.Request{QuestionCount: 0})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid request status = %d, want 400", resp.StatusCode)
	}
}

func TestGroupFlow(t *testing.T) {
	env := newTestEnv(t, ai.NewScriptedProvider(generationResponse, reviewResponse))
	ana := env.register(t, "Ana", "ana@example.com")
	bruno := env.register(t, "Bruno", "bruno@example.com")

	resp := env.do(t, http.MethodPost, "/api/groups", ana.Token, map[string]string{"name": "Turma A"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create group status = %d, want 201", resp.StatusCode)
	}
	group := decodeBody[quiz.Group](t, resp)

	resp = env.do(t, http.MethodPost, "/api/groups/join", bruno.Token, map[string]string{"access_code": group.AccessCode})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("join status = %d, want 200", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/groups/"+group.ID+"/quizzes", ana.Token, quizRequest)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("group quiz status = %d, want 201", resp.StatusCode)
	}
	created := decodeBody[createdQuizResponse](t, resp)
	if created.Quiz.GroupID != group.ID {
		t.Errorf("GroupID = %q, want %q", created.Quiz.GroupID, group.ID)
	}

	resp = env.do(t, http.MethodGet, "/api/groups/"+group.ID, bruno.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("group detail status = %d, want 200", resp.StatusCode)
	}
	detail := decodeBody[quiz.GroupDetails](t, resp)
	if detail.MemberCount != 2 || len(detail.Quizzes) != 1 {
		t.Errorf("detail = %+v, want 2 members and 1 quiz", detail)
	}

	resp = env.do(t, http.MethodPost, "/api/groups/"+group.ID+"/leave", bruno.Token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("leave status = %d, want 200", resp.StatusCode)
	}
}

func TestFinalizeQuiz(t *testing.T) {
	env := newTestEnv(t, ai.NewScriptedProvider(generationResponse, reviewResponse))
	ana := env.register(t, "Ana", "ana@example.com")
	bruno := env.register(t, "Bruno", "bruno@example.com")

	resp := env.do(t, http.MethodPost, "/api/quizzes", ana.Token, quizRequest)
	created := decodeBody[createdQuizResponse](t, resp)

	resp = env.do(t, http.MethodPut, "/api/quizzes/"+created.Quiz.ID+"/finalize", bruno.Token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("finalize by non-creator status = %d, want 403", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPut, "/api/quizzes/"+created.Quiz.ID+"/finalize", ana.Token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("finalize status = %d, want 200", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/quizzes/"+created.Quiz.ID+"/attempts", bruno.Token, map[string]any{
		"answers": []quiz.Answer{},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("attempt on finalized quiz status = %d, want 409", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	store := quiz.NewMemoryStore()
	service := quiz.NewService(quiz.ServiceConfig{
		Store:     store,
		Generator: quiz.NewGenerator(quiz.GeneratorConfig{AI: ai.NewMockProvider("[]")}),
	})
	srv := server.New(server.Config{
		Service: service,
		Users:   store,
		Tokens:  auth.NewTokenIssuer("test-secret", time.Hour),
		Readiness: []server.ReadinessCheck{
			{Name: "database", Check: func(ctx context.Context) error { return nil }},
			{Name: "ai", Check: func(ctx context.Context) error { return fmt.Errorf("no providers") }},
		},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	body := decodeBody[map[string]any](t, resp)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503 with a failing check", resp.StatusCode)
	}
	checks := body["checks"].(map[string]any)
	if checks["database"] != "ok" || checks["ai"] == "ok" {
		t.Errorf("checks = %v, want database ok and ai failing", checks)
	}
}
