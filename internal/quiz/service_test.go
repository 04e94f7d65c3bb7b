package quiz_test

import (
	"context"
	"errors"
	"testing"

	"github.com/eduquiz/quizforge/internal/ai"
	"github.com/eduquiz/quizforge/internal/quiz"
)

type captureNotifier struct {
	scopes  []string
	entries map[string][]quiz.RankingEntry
}

func (n *captureNotifier) Publish(scope string, entries []quiz.RankingEntry) {
	if n.entries == nil {
		n.entries = make(map[string][]quiz.RankingEntry)
	}
	n.scopes = append(n.scopes, scope)
	n.entries[scope] = entries
}

type serviceFixture struct {
	store    *quiz.MemoryStore
	events   *quiz.MemoryEventLogger
	notifier *captureNotifier
	service  *quiz.Service
}

func newServiceFixture(provider *ai.MockProvider, budget ai.BudgetChecker) *serviceFixture {
	f := &serviceFixture{
		store:    quiz.NewMemoryStore(),
		events:   quiz.NewMemoryEventLogger(),
		notifier: &captureNotifier{},
	}
	f.service = quiz.NewService(quiz.ServiceConfig{
		Store:     f.store,
		Generator: quiz.NewGenerator(quiz.GeneratorConfig{AI: provider}),
		Events:    f.events,
		Notifier:  f.notifier,
		Budget:    budget,
	})
	return f
}

func (f *serviceFixture) user(t *testing.T, name, email string) quiz.User {
	t.Helper()
	u, err := f.store.CreateUser(context.Background(), quiz.User{Name: name, Email: email})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return u
}

func TestService_CreateQuiz(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(ai.NewScriptedProvider(generationResponse, reviewResponse), nil)
	creator := f.user(t, "Ana", "ana@example.com")

	created, questions, findings, err := f.service.CreateQuiz(ctx, creator.ID, parseRequest)
	if err != nil {
		t.Fatalf("CreateQuiz() error = %v", err)
	}

	if created.Title != "Quiz sobre Matemática" {
		t.Errorf("Title = %q, want default built from topics", created.Title)
	}
	if created.QuestionCount != 1 || len(questions) != 1 {
		t.Errorf("QuestionCount = %d, questions = %d, want 1 each", created.QuestionCount, len(questions))
	}
	if len(findings) != 1 {
		t.Errorf("findings = %d, want 1", len(findings))
	}

	stored, err := f.store.Questions(ctx, created.ID)
	if err != nil || len(stored) != 1 {
		t.Fatalf("persisted questions = %d (err %v), want 1", len(stored), err)
	}

	events := f.events.Events()
	if len(events) != 1 || events[0].EventType != quiz.EventQuizGenerated {
		t.Errorf("events = %+v, want one quiz_generated", events)
	}
}

func TestService_CreateQuiz_NoPartialPersist(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(ai.NewMockProvider("não consegui gerar"), nil)
	creator := f.user(t, "Ana", "ana@example.com")

	_, _, _, err := f.service.CreateQuiz(ctx, creator.ID, parseRequest)
	if !errors.Is(err, quiz.ErrContractViolated) {
		t.Fatalf("CreateQuiz() error = %v, want ErrContractViolated", err)
	}

	if n, _ := f.store.CountQuizzesCreated(ctx, creator.ID); n != 0 {
		t.Errorf("quizzes persisted after failed generation = %d, want 0", n)
	}
	if events := f.events.Events(); len(events) != 0 {
		t.Errorf("events after failed generation = %+v, want none", events)
	}
}

func TestService_CreateQuiz_ReviewFailureStillPersists(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(ai.NewScriptedProvider(generationResponse, "sem json aqui"), nil)
	creator := f.user(t, "Ana", "ana@example.com")

	created, _, findings, err := f.service.CreateQuiz(ctx, creator.ID, parseRequest)
	if err != nil {
		t.Fatalf("CreateQuiz() error = %v, review failures must not abort", err)
	}
	if findings != nil {
		t.Errorf("findings = %+v, want nil when review is unparsable", findings)
	}
	if _, err := f.store.GetQuiz(ctx, created.ID); err != nil {
		t.Errorf("GetQuiz() after review failure error = %v", err)
	}

	var types []string
	for _, e := range f.events.Events() {
		types = append(types, e.EventType)
	}
	want := []string{quiz.EventQuizGenerated, quiz.EventReviewFailed}
	if len(types) != 2 || types[0] != want[0] || types[1] != want[1] {
		t.Errorf("event types = %v, want %v", types, want)
	}
}

func TestService_CreateQuiz_BudgetExhausted(t *testing.T) {
	ctx := context.Background()
	budget := ai.NewInMemoryBudget(100)
	f := newServiceFixture(ai.NewScriptedProvider(generationResponse, reviewResponse), budget)
	creator := f.user(t, "Ana", "ana@example.com")

	if err := budget.Record(creator.ID, 100); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	_, _, _, err := f.service.CreateQuiz(ctx, creator.ID, parseRequest)
	if !errors.Is(err, quiz.ErrBudgetExhausted) {
		t.Errorf("CreateQuiz() error = %v, want ErrBudgetExhausted", err)
	}
}

func TestService_CreateQuiz_RecordsTokenUsage(t *testing.T) {
	ctx := context.Background()
	budget := ai.NewInMemoryBudget(1_000_000)
	f := newServiceFixture(ai.NewScriptedProvider(generationResponse, reviewResponse), budget)
	creator := f.user(t, "Ana", "ana@example.com")

	if _, _, _, err := f.service.CreateQuiz(ctx, creator.ID, parseRequest); err != nil {
		t.Fatalf("CreateQuiz() error = %v", err)
	}

	used, _, err := budget.Usage(creator.ID)
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if used <= 0 {
		t.Errorf("recorded usage = %d, want tokens from both model calls", used)
	}
}

func TestService_CreateGroupQuiz(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(ai.NewScriptedProvider(generationResponse, reviewResponse), nil)
	creator := f.user(t, "Ana", "ana@example.com")
	outsider := f.user(t, "Bruno", "bruno@example.com")

	group, err := f.service.CreateGroup(ctx, creator.ID, quiz.Group{Name: "Turma A"})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if group.AccessCode == "" {
		t.Fatal("CreateGroup() did not assign an access code")
	}

	if _, _, _, err := f.service.CreateGroupQuiz(ctx, outsider.ID, group.ID, parseRequest); !errors.Is(err, quiz.ErrNotMember) {
		t.Errorf("CreateGroupQuiz() by outsider error = %v, want ErrNotMember", err)
	}
	if _, _, _, err := f.service.CreateGroupQuiz(ctx, creator.ID, "missing", parseRequest); !errors.Is(err, quiz.ErrGroupNotFound) {
		t.Errorf("CreateGroupQuiz() missing group error = %v, want ErrGroupNotFound", err)
	}

	created, _, _, err := f.service.CreateGroupQuiz(ctx, creator.ID, group.ID, parseRequest)
	if err != nil {
		t.Fatalf("CreateGroupQuiz() error = %v", err)
	}
	if created.GroupID != group.ID {
		t.Errorf("GroupID = %q, want %q", created.GroupID, group.ID)
	}
}

func TestService_ScoreAttempt(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(ai.NewScriptedProvider(generationResponse, reviewResponse), nil)
	creator := f.user(t, "Ana", "ana@example.com")

	group, _ := f.service.CreateGroup(ctx, creator.ID, quiz.Group{Name: "Turma"})
	created, questions, _, err := f.service.CreateGroupQuiz(ctx, creator.ID, group.ID, parseRequest)
	if err != nil {
		t.Fatalf("CreateGroupQuiz() error = %v", err)
	}

	answers := []quiz.Answer{{QuestionID: questions[0].ID, Alternative: questions[0].CorrectAlternative}}
	result, err := f.service.ScoreAttempt(ctx, creator.ID, created.ID, "key-1", answers)
	if err != nil {
		t.Fatalf("ScoreAttempt() error = %v", err)
	}

	if result.Replayed {
		t.Error("Replayed = true on first submission")
	}
	if result.CorrectCount != 1 {
		t.Errorf("CorrectCount = %d, want 1", result.CorrectCount)
	}
	if result.QuizTitle != created.Title {
		t.Errorf("QuizTitle = %q, want %q", result.QuizTitle, created.Title)
	}
	if result.UserTotalPoints != result.PointsObtained {
		t.Errorf("UserTotalPoints = %d, want %d", result.UserTotalPoints, result.PointsObtained)
	}

	// Both the quiz and the group feed got a snapshot.
	wantScopes := map[string]bool{
		quiz.QuizScope(created.ID): true,
		quiz.GroupScope(group.ID):  true,
	}
	if len(f.notifier.scopes) != 2 {
		t.Fatalf("notifier scopes = %v, want quiz and group", f.notifier.scopes)
	}
	for _, scope := range f.notifier.scopes {
		if !wantScopes[scope] {
			t.Errorf("unexpected scope %q published", scope)
		}
	}
	entries := f.notifier.entries[quiz.QuizScope(created.ID)]
	if len(entries) != 1 || entries[0].UserID != creator.ID {
		t.Errorf("published ranking = %+v, want the scoring user on top", entries)
	}
}

func TestService_ScoreAttempt_Replay(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(ai.NewScriptedProvider(generationResponse, reviewResponse), nil)
	creator := f.user(t, "Ana", "ana@example.com")
	created, questions, _, _ := f.service.CreateQuiz(ctx, creator.ID, parseRequest)

	answers := []quiz.Answer{{QuestionID: questions[0].ID, Alternative: questions[0].CorrectAlternative}}
	first, err := f.service.ScoreAttempt(ctx, creator.ID, created.ID, "key-1", answers)
	if err != nil {
		t.Fatalf("ScoreAttempt() error = %v", err)
	}
	publishesAfterFirst := len(f.notifier.scopes)

	replay, err := f.service.ScoreAttempt(ctx, creator.ID, created.ID, "key-1", answers)
	if err != nil {
		t.Fatalf("ScoreAttempt() replay error = %v", err)
	}

	if !replay.Replayed {
		t.Error("Replayed = false on second submission with the same key")
	}
	if replay.Attempt.ID != first.Attempt.ID {
		t.Errorf("replay attempt id = %q, want the original %q", replay.Attempt.ID, first.Attempt.ID)
	}
	if replay.UserTotalPoints != first.UserTotalPoints {
		t.Errorf("UserTotalPoints = %d after replay, want unchanged %d", replay.UserTotalPoints, first.UserTotalPoints)
	}
	if len(f.notifier.scopes) != publishesAfterFirst {
		t.Error("replay triggered a ranking publish")
	}
}

func TestService_ScoreAttempt_Finalized(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(ai.NewScriptedProvider(generationResponse, reviewResponse), nil)
	creator := f.user(t, "Ana", "ana@example.com")
	other := f.user(t, "Bruno", "bruno@example.com")
	created, questions, _, _ := f.service.CreateQuiz(ctx, creator.ID, parseRequest)

	if err := f.service.FinalizeQuiz(ctx, other.ID, created.ID); !errors.Is(err, quiz.ErrNotCreator) {
		t.Errorf("FinalizeQuiz() by non-creator error = %v, want ErrNotCreator", err)
	}
	if err := f.service.FinalizeQuiz(ctx, creator.ID, created.ID); err != nil {
		t.Fatalf("FinalizeQuiz() error = %v", err)
	}

	answers := []quiz.Answer{{QuestionID: questions[0].ID, Alternative: "A"}}
	if _, err := f.service.ScoreAttempt(ctx, other.ID, created.ID, "", answers); !errors.Is(err, quiz.ErrQuizFinalized) {
		t.Errorf("ScoreAttempt() on finalized quiz error = %v, want ErrQuizFinalized", err)
	}
}

func TestService_UserHistory(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(ai.NewScriptedProvider(generationResponse, reviewResponse), nil)
	user := f.user(t, "Ana", "ana@example.com")
	created, questions, _, _ := f.service.CreateQuiz(ctx, user.ID, parseRequest)

	if _, err := f.service.ScoreAttempt(ctx, user.ID, created.ID, "key-1", []quiz.Answer{
		{QuestionID: questions[0].ID, Alternative: questions[0].CorrectAlternative},
	}); err != nil {
		t.Fatalf("ScoreAttempt() error = %v", err)
	}

	// An older attempt whose question no longer exists.
	if _, _, err := f.store.RecordAttempt(ctx, quiz.Attempt{
		Key:    "key-ghost",
		QuizID: created.ID,
		UserID: user.ID,
		Answers: []quiz.AnswerDetail{
			{QuestionID: "deleted-question", Chosen: "A"},
		},
	}); err != nil {
		t.Fatalf("RecordAttempt() error = %v", err)
	}

	history, err := f.service.UserHistory(ctx, user.ID)
	if err != nil {
		t.Fatalf("UserHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("UserHistory() = %d entries, want 2", len(history))
	}

	// Newest first: the ghost attempt was recorded last.
	if history[0].Answers[0].QuestionText != quiz.RemovedQuestionText {
		t.Errorf("QuestionText = %q, want removed-question placeholder", history[0].Answers[0].QuestionText)
	}
	if history[1].QuizTitle != created.Title {
		t.Errorf("QuizTitle = %q, want %q", history[1].QuizTitle, created.Title)
	}
	if history[1].Answers[0].QuestionText != questions[0].Text {
		t.Errorf("QuestionText = %q, want hydrated question text", history[1].Answers[0].QuestionText)
	}
}

func TestService_JoinAndLeaveGroup(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(nil, nil)
	creator := f.user(t, "Ana", "ana@example.com")
	joiner := f.user(t, "Bruno", "bruno@example.com")

	group, err := f.service.CreateGroup(ctx, creator.ID, quiz.Group{Name: "Turma"})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}

	// Access codes are matched case-insensitively on input.
	joined, err := f.service.JoinGroup(ctx, joiner.ID, "  "+group.AccessCode+"  ")
	if err != nil {
		t.Fatalf("JoinGroup() error = %v", err)
	}
	if joined.ID != group.ID {
		t.Errorf("JoinGroup() = %q, want group %q", joined.ID, group.ID)
	}

	if _, err := f.service.JoinGroup(ctx, joiner.ID, group.AccessCode); !errors.Is(err, quiz.ErrAlreadyMember) {
		t.Errorf("JoinGroup() twice error = %v, want ErrAlreadyMember", err)
	}
	if _, err := f.service.JoinGroup(ctx, joiner.ID, "WRONGCODE"); !errors.Is(err, quiz.ErrGroupNotFound) {
		t.Errorf("JoinGroup() wrong code error = %v, want ErrGroupNotFound", err)
	}

	if err := f.service.LeaveGroup(ctx, joiner.ID, group.ID); err != nil {
		t.Fatalf("LeaveGroup() error = %v", err)
	}

	groups, _ := f.service.UserGroups(ctx, joiner.ID)
	if len(groups) != 0 {
		t.Errorf("UserGroups() after leaving = %+v, want none", groups)
	}
}

func TestService_GroupDetail(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(ai.NewScriptedProvider(generationResponse, reviewResponse), nil)
	creator := f.user(t, "Ana", "ana@example.com")

	group, _ := f.service.CreateGroup(ctx, creator.ID, quiz.Group{Name: "Turma"})
	created, questions, _, err := f.service.CreateGroupQuiz(ctx, creator.ID, group.ID, parseRequest)
	if err != nil {
		t.Fatalf("CreateGroupQuiz() error = %v", err)
	}

	before, err := f.service.GroupDetail(ctx, group.ID, creator.ID)
	if err != nil {
		t.Fatalf("GroupDetail() error = %v", err)
	}
	if before.MemberCount != 1 {
		t.Errorf("MemberCount = %d, want 1", before.MemberCount)
	}
	if len(before.Quizzes) != 1 || before.Quizzes[0].Answered {
		t.Errorf("Quizzes = %+v, want one unanswered quiz", before.Quizzes)
	}

	if _, err := f.service.ScoreAttempt(ctx, creator.ID, created.ID, "", []quiz.Answer{
		{QuestionID: questions[0].ID, Alternative: "A"},
	}); err != nil {
		t.Fatalf("ScoreAttempt() error = %v", err)
	}

	after, _ := f.service.GroupDetail(ctx, group.ID, creator.ID)
	if !after.Quizzes[0].Answered {
		t.Error("Answered = false after the viewer attempted the quiz")
	}
}

func TestService_Profile(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(ai.NewScriptedProvider(generationResponse, reviewResponse), nil)
	user := f.user(t, "Ana", "ana@example.com")

	if _, _, _, err := f.service.CreateQuiz(ctx, user.ID, parseRequest); err != nil {
		t.Fatalf("CreateQuiz() error = %v", err)
	}

	profile, created, err := f.service.Profile(ctx, user.ID)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile.ID != user.ID || created != 1 {
		t.Errorf("Profile() = %q created=%d, want user with 1 quiz created", profile.ID, created)
	}
}

func TestService_Rankings(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(ai.NewScriptedProvider(generationResponse, reviewResponse), nil)
	ana := f.user(t, "Ana", "ana@example.com")
	bruno := f.user(t, "Bruno", "bruno@example.com")
	created, questions, _, _ := f.service.CreateQuiz(ctx, ana.ID, parseRequest)

	right := []quiz.Answer{{QuestionID: questions[0].ID, Alternative: questions[0].CorrectAlternative}}
	wrong := []quiz.Answer{{QuestionID: questions[0].ID, Alternative: "Z"}}

	if _, err := f.service.ScoreAttempt(ctx, bruno.ID, created.ID, "", wrong); err != nil {
		t.Fatalf("ScoreAttempt() error = %v", err)
	}
	if _, err := f.service.ScoreAttempt(ctx, ana.ID, created.ID, "", right); err != nil {
		t.Fatalf("ScoreAttempt() error = %v", err)
	}

	ranking, err := f.service.QuizRanking(ctx, created.ID)
	if err != nil {
		t.Fatalf("QuizRanking() error = %v", err)
	}
	if len(ranking) != 2 {
		t.Fatalf("QuizRanking() = %d entries, want 2", len(ranking))
	}
	if ranking[0].UserID != ana.ID || ranking[0].DisplayName != "Ana" {
		t.Errorf("top entry = %+v, want Ana", ranking[0])
	}

	if _, err := f.service.QuizRanking(ctx, "missing"); !errors.Is(err, quiz.ErrQuizNotFound) {
		t.Errorf("QuizRanking() missing quiz error = %v, want ErrQuizNotFound", err)
	}
	if _, err := f.service.GroupRanking(ctx, "missing"); !errors.Is(err, quiz.ErrGroupNotFound) {
		t.Errorf("GroupRanking() missing group error = %v, want ErrGroupNotFound", err)
	}
}
