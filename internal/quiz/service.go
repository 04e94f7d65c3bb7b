package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eduquiz/quizforge/internal/ai"
)

// RemovedQuestionText is shown in history entries whose question no longer
// exists.
const RemovedQuestionText = "Pergunta removida."

// QuestionSource is where scoring reads questions from: the store directly
// or a QuestionCache in front of it.
type QuestionSource interface {
	Questions(ctx context.Context, quizID string) ([]Question, error)
}

// RankingNotifier receives ranking snapshots after each scored attempt.
// Implementations must not block.
type RankingNotifier interface {
	Publish(scope string, entries []RankingEntry)
}

// Ranking scopes used by the live feed.
func QuizScope(quizID string) string   { return "quiz:" + quizID }
func GroupScope(groupID string) string { return "group:" + groupID }

// ServiceConfig wires a Service. Store and Generator are required; the rest
// default to inert implementations.
type ServiceConfig struct {
	Store     Store
	Generator *Generator
	Questions QuestionSource   // defaults to Store
	Events    EventLogger      // defaults to NopEventLogger
	Notifier  RankingNotifier  // optional
	Budget    ai.BudgetChecker // optional per-user generation budget
}

// Service implements the quiz operations on top of the store and the
// generation pipeline.
type Service struct {
	store     Store
	gen       *Generator
	questions QuestionSource
	events    EventLogger
	notifier  RankingNotifier
	budget    ai.BudgetChecker
}

// NewService creates a Service with defaults applied.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		store:     cfg.Store,
		gen:       cfg.Generator,
		questions: cfg.Questions,
		events:    cfg.Events,
		notifier:  cfg.Notifier,
		budget:    cfg.Budget,
	}
	if s.questions == nil {
		s.questions = cfg.Store
	}
	if s.events == nil {
		s.events = NopEventLogger{}
	}
	return s
}

// CreateQuiz runs the generation pipeline and persists the quiz with its
// questions. Nothing is persisted when generation fails; a failed review
// pass is logged and the quiz is created anyway.
func (s *Service) CreateQuiz(ctx context.Context, creatorID string, req Request) (Quiz, []Question, []Finding, error) {
	return s.createQuiz(ctx, creatorID, "", req)
}

// CreateGroupQuiz is CreateQuiz bound to a group. The creator must be a
// member and the group must have members to answer the quiz.
func (s *Service) CreateGroupQuiz(ctx context.Context, creatorID, groupID string, req Request) (Quiz, []Question, []Finding, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return Quiz{}, nil, nil, err
	}
	member, err := s.store.IsMember(ctx, groupID, creatorID)
	if err != nil {
		return Quiz{}, nil, nil, err
	}
	if !member {
		return Quiz{}, nil, nil, ErrNotMember
	}

	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return Quiz{}, nil, nil, err
	}
	if len(members) == 0 {
		return Quiz{}, nil, nil, ErrGroupEmpty
	}

	return s.createQuiz(ctx, creatorID, groupID, req)
}

func (s *Service) createQuiz(ctx context.Context, creatorID, groupID string, req Request) (Quiz, []Question, []Finding, error) {
	if _, err := s.store.GetUser(ctx, creatorID); err != nil {
		return Quiz{}, nil, nil, err
	}

	if s.budget != nil {
		ok, err := s.budget.Check(creatorID)
		if err != nil {
			return Quiz{}, nil, nil, fmt.Errorf("check budget: %w", err)
		}
		if !ok {
			return Quiz{}, nil, nil, ErrBudgetExhausted
		}
	}

	outcome, err := s.gen.Generate(ctx, req)
	if err != nil {
		return Quiz{}, nil, nil, err
	}
	if s.budget != nil {
		if err := s.budget.Record(creatorID, outcome.TokensUsed); err != nil {
			slog.Warn("budget record failed", "user_id", creatorID, "error", err)
		}
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Quiz sobre " + strings.Join(req.Topics, ", ")
	}

	quiz, err := s.store.CreateQuiz(ctx, Quiz{
		Title:        title,
		SchoolLevel:  req.SchoolLevel,
		Objective:    req.Objective,
		Topics:       req.Topics,
		Difficulties: req.Difficulties,
		Reference:    req.Reference,
		CreatorID:    creatorID,
		GroupID:      groupID,
	}, outcome.Questions)
	if err != nil {
		return Quiz{}, nil, nil, fmt.Errorf("persist quiz: %w", err)
	}

	s.logEvent(Event{
		QuizID:    quiz.ID,
		UserID:    creatorID,
		EventType: EventQuizGenerated,
		Data: map[string]any{
			"question_count": len(outcome.Questions),
			"tokens_used":    outcome.TokensUsed,
			"group_id":       groupID,
		},
	})
	if outcome.ReviewErr != nil {
		s.logEvent(Event{
			QuizID:    quiz.ID,
			UserID:    creatorID,
			EventType: EventReviewFailed,
			Data:      map[string]any{"error": outcome.ReviewErr.Error()},
		})
	}

	return quiz, outcome.Questions, outcome.Findings, nil
}

// Quiz returns quiz metadata.
func (s *Service) Quiz(ctx context.Context, quizID string) (Quiz, error) {
	return s.store.GetQuiz(ctx, quizID)
}

// Questions returns the questions of a quiz.
func (s *Service) Questions(ctx context.Context, quizID string) ([]Question, error) {
	return s.questions.Questions(ctx, quizID)
}

// ScoreAttempt grades a submission, records it idempotently and pushes
// fresh rankings to live subscribers. Replaying an attempt key returns the
// originally stored attempt without touching the user's running total.
func (s *Service) ScoreAttempt(ctx context.Context, userID, quizID, attemptKey string, answers []Answer) (Result, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return Result{}, err
	}
	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Result{}, err
	}
	if quiz.Finalized {
		return Result{}, ErrQuizFinalized
	}

	questions, err := s.questions.Questions(ctx, quizID)
	if err != nil {
		return Result{}, err
	}

	result := Score(questions, answers)
	result.QuizTitle = quiz.Title

	if attemptKey == "" {
		attemptKey = NewAttemptKey()
	}
	attempt := result.Attempt
	attempt.Key = attemptKey
	attempt.QuizID = quizID
	attempt.UserID = userID

	stored, applied, err := s.store.RecordAttempt(ctx, attempt)
	if err != nil {
		return Result{}, err
	}
	result.Attempt = stored
	result.Replayed = !applied
	result.Tier = TierFor(stored.Percentage)
	result.Message = TierMessage(result.Tier)

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	result.UserTotalPoints = user.Points

	if applied {
		s.logEvent(Event{
			QuizID:    quizID,
			UserID:    userID,
			EventType: EventAttemptScored,
			Data: map[string]any{
				"points_obtained": stored.PointsObtained,
				"percentage":      stored.Percentage,
			},
		})
		s.publishRankings(ctx, quiz)
	}

	return result, nil
}

func (s *Service) publishRankings(ctx context.Context, quiz Quiz) {
	if s.notifier == nil {
		return
	}

	if entries, err := s.QuizRanking(ctx, quiz.ID); err == nil {
		s.notifier.Publish(QuizScope(quiz.ID), entries)
	} else {
		slog.Warn("quiz ranking publish failed", "quiz_id", quiz.ID, "error", err)
	}

	if quiz.GroupID == "" {
		return
	}
	if entries, err := s.GroupRanking(ctx, quiz.GroupID); err == nil {
		s.notifier.Publish(GroupScope(quiz.GroupID), entries)
	} else {
		slog.Warn("group ranking publish failed", "group_id", quiz.GroupID, "error", err)
	}
}

// QuizRanking ranks all attempts of one quiz.
func (s *Service) QuizRanking(ctx context.Context, quizID string) ([]RankingEntry, error) {
	if _, err := s.store.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}
	attempts, err := s.store.AttemptsByQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return s.rank(ctx, attempts)
}

// GroupRanking ranks all attempts across a group's quizzes.
func (s *Service) GroupRanking(ctx context.Context, groupID string) ([]RankingEntry, error) {
	if _, err := s.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	attempts, err := s.store.AttemptsByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return s.rank(ctx, attempts)
}

func (s *Service) rank(ctx context.Context, attempts []Attempt) ([]RankingEntry, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, a := range attempts {
		if !seen[a.UserID] {
			seen[a.UserID] = true
			ids = append(ids, a.UserID)
		}
	}

	names, err := s.store.UserNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	return BuildRanking(attempts, names), nil
}

// UserHistory returns the user's attempts, newest first, with per-answer
// detail. Questions deleted since the attempt render a placeholder.
func (s *Service) UserHistory(ctx context.Context, userID string) ([]Result, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	attempts, err := s.store.AttemptsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	questionsByQuiz := make(map[string]map[string]Question)
	titles := make(map[string]string)

	results := make([]Result, len(attempts))
	for i, a := range attempts {
		if _, ok := questionsByQuiz[a.QuizID]; !ok {
			byID := make(map[string]Question)
			if qs, err := s.store.Questions(ctx, a.QuizID); err == nil {
				for _, q := range qs {
					byID[q.ID] = q
				}
			}
			questionsByQuiz[a.QuizID] = byID

			if quiz, err := s.store.GetQuiz(ctx, a.QuizID); err == nil {
				titles[a.QuizID] = quiz.Title
			}
		}

		byID := questionsByQuiz[a.QuizID]
		for j, ans := range a.Answers {
			if q, ok := byID[ans.QuestionID]; ok {
				a.Answers[j].QuestionText = q.Text
				a.Answers[j].CorrectAlternative = q.CorrectAlternative
			} else {
				a.Answers[j].QuestionText = RemovedQuestionText
			}
		}

		tier := TierFor(a.Percentage)
		results[i] = Result{
			Attempt:         a,
			QuizTitle:       titles[a.QuizID],
			Tier:            tier,
			Message:         TierMessage(tier),
			UserTotalPoints: user.Points,
		}
	}
	return results, nil
}

// Profile returns the user together with how many quizzes they created.
func (s *Service) Profile(ctx context.Context, userID string) (User, int, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return User{}, 0, err
	}
	created, err := s.store.CountQuizzesCreated(ctx, userID)
	if err != nil {
		return User{}, 0, err
	}
	return user, created, nil
}

// CreateGroup creates a group owned by the user, with a fresh access code.
func (s *Service) CreateGroup(ctx context.Context, creatorID string, g Group) (Group, error) {
	if _, err := s.store.GetUser(ctx, creatorID); err != nil {
		return Group{}, err
	}
	if strings.TrimSpace(g.Name) == "" {
		return Group{}, fmt.Errorf("%w: group name is required", ErrInvalidRequest)
	}

	g.CreatorID = creatorID
	g.AccessCode = NewAccessCode()
	return s.store.CreateGroup(ctx, g)
}

// JoinGroup adds the user to the group matching the access code.
func (s *Service) JoinGroup(ctx context.Context, userID, accessCode string) (Group, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return Group{}, err
	}
	group, err := s.store.GetGroupByAccessCode(ctx, strings.ToUpper(strings.TrimSpace(accessCode)))
	if err != nil {
		return Group{}, err
	}
	if err := s.store.AddMember(ctx, group.ID, userID); err != nil {
		return Group{}, err
	}
	return group, nil
}

// LeaveGroup removes the user from the group.
func (s *Service) LeaveGroup(ctx context.Context, userID, groupID string) error {
	return s.store.RemoveMember(ctx, groupID, userID)
}

// GroupMembers lists the group's members.
func (s *Service) GroupMembers(ctx context.Context, groupID string) ([]User, error) {
	return s.store.ListMembers(ctx, groupID)
}

// UserGroups lists the groups the user belongs to.
func (s *Service) UserGroups(ctx context.Context, userID string) ([]Group, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.GroupsOf(ctx, userID)
}

// GroupQuizSummary is a group quiz annotated for one viewer.
type GroupQuizSummary struct {
	Quiz
	Answered bool `json:"answered"`
}

// GroupDetails is a group with its quizzes as seen by one member.
type GroupDetails struct {
	Group
	MemberCount int                `json:"member_count"`
	Quizzes     []GroupQuizSummary `json:"quizzes"`
}

// GroupDetail returns the group, member count and quizzes annotated with
// whether the viewer already answered each one.
func (s *Service) GroupDetail(ctx context.Context, groupID, viewerID string) (GroupDetails, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return GroupDetails{}, err
	}
	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return GroupDetails{}, err
	}
	quizzes, err := s.store.QuizzesByGroup(ctx, groupID)
	if err != nil {
		return GroupDetails{}, err
	}

	details := GroupDetails{
		Group:       group,
		MemberCount: len(members),
		Quizzes:     make([]GroupQuizSummary, len(quizzes)),
	}
	for i, q := range quizzes {
		answered, err := s.store.HasAttempted(ctx, viewerID, q.ID)
		if err != nil {
			return GroupDetails{}, err
		}
		details.Quizzes[i] = GroupQuizSummary{Quiz: q, Answered: answered}
	}
	return details, nil
}

// FinalizeQuiz closes a quiz for new attempts. Creator only.
func (s *Service) FinalizeQuiz(ctx context.Context, userID, quizID string) error {
	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if quiz.CreatorID != userID {
		return ErrNotCreator
	}
	return s.store.FinalizeQuiz(ctx, quizID)
}

func (s *Service) logEvent(event Event) {
	if err := s.events.LogEvent(event); err != nil {
		slog.Warn("event log failed", "type", event.EventType, "error", err)
	}
}
