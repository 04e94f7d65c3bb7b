// Package quiz implements quiz generation, review, scoring and ranking.
package quiz

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

// Difficulty literals as they appear in requests, prompts and stored questions.
const (
	DifficultyEasy   = "Fácil"
	DifficultyMedium = "Médio"
	DifficultyHard   = "Difícil"
)

// Alternative letters of a multiple-choice question.
const (
	AlternativeA = "A"
	AlternativeB = "B"
	AlternativeC = "C"
	AlternativeD = "D"
)

// Request describes a quiz to generate.
type Request struct {
	Title         string   `json:"title"`
	SchoolLevel   string   `json:"school_level"`
	Objective     string   `json:"objective"`
	Topics        []string `json:"topics"`
	QuestionCount int      `json:"question_count"`
	Difficulties  []string `json:"difficulties"`
	Reference     string   `json:"reference,omitempty"`
}

// Validate checks that the request can produce a well-formed prompt.
func (r Request) Validate() error {
	if r.QuestionCount < 1 {
		return fmt.Errorf("%w: question_count must be at least 1", ErrInvalidRequest)
	}
	if len(r.Topics) == 0 {
		return fmt.Errorf("%w: at least one topic is required", ErrInvalidRequest)
	}
	if len(r.Difficulties) == 0 {
		return fmt.Errorf("%w: at least one difficulty is required", ErrInvalidRequest)
	}
	for _, d := range r.Difficulties {
		switch d {
		case DifficultyEasy, DifficultyMedium, DifficultyHard:
		default:
			return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidRequest, d)
		}
	}
	return nil
}

// Question is a generated multiple-choice question.
type Question struct {
	ID                 string `json:"id"`
	QuizID             string `json:"quiz_id,omitempty"`
	Topic              string `json:"topic"`
	Difficulty         string `json:"difficulty"`
	SchoolLevel        string `json:"school_level"`
	Text               string `json:"text"`
	AlternativeA       string `json:"alternative_a"`
	AlternativeB       string `json:"alternative_b"`
	AlternativeC       string `json:"alternative_c"`
	AlternativeD       string `json:"alternative_d"`
	CorrectAlternative string `json:"correct_alternative"`
	Justification      string `json:"justification"`
	Reference          string `json:"reference,omitempty"`
}

// Finding is one entry of the advisory review pass, correlated to the
// generated question at the same index.
type Finding struct {
	Index                 int               `json:"index"`
	Valid                 bool              `json:"valid"`
	Issues                []string          `json:"issues"`
	CorrectAnswerVerified bool              `json:"correct_answer_verified"`
	Justification         string            `json:"justification,omitempty"`
	SuggestedCorrections  map[string]string `json:"suggested_corrections,omitempty"`
	SuggestedDifficulty   string            `json:"suggested_difficulty,omitempty"`
}

// Quiz is persisted quiz metadata. Questions are stored separately.
type Quiz struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	SchoolLevel   string     `json:"school_level"`
	Objective     string     `json:"objective"`
	QuestionCount int        `json:"question_count"`
	Topics        []string   `json:"topics"`
	Difficulties  []string   `json:"difficulties"`
	Reference     string     `json:"reference,omitempty"`
	CreatorID     string     `json:"creator_id"`
	GroupID       string     `json:"group_id,omitempty"`
	StartAt       *time.Time `json:"start_at,omitempty"`
	EndAt         *time.Time `json:"end_at,omitempty"`
	Finalized     bool       `json:"finalized"`
	CreatedAt     time.Time  `json:"created_at"`
}

// User is a registered account with a running point total.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Points       int       `json:"points"`
	CreatedAt    time.Time `json:"created_at"`
}

// Group is a study group users join via access code.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	AccessCode  string    `json:"access_code"`
	Icon        string    `json:"icon,omitempty"`
	Color       string    `json:"color,omitempty"`
	CreatorID   string    `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// Answer is a single submitted answer.
type Answer struct {
	QuestionID  string `json:"question_id"`
	Alternative string `json:"alternative"`
}

// AnswerDetail is a scored answer with the question it refers to.
type AnswerDetail struct {
	QuestionID         string `json:"question_id"`
	QuestionText       string `json:"question_text"`
	Chosen             string `json:"chosen"`
	CorrectAlternative string `json:"correct_alternative"`
	Correct            bool   `json:"correct"`
}

// TopicBreakdown tallies answered and correct counts for one topic.
type TopicBreakdown struct {
	Answered int `json:"answered"`
	Correct  int `json:"correct"`
}

// Attempt is a persisted scored attempt. Key is the idempotency key: the
// store applies the point delta at most once per key.
type Attempt struct {
	ID             string         `json:"id"`
	Key            string         `json:"-"`
	QuizID         string         `json:"quiz_id"`
	UserID         string         `json:"user_id"`
	CorrectCount   int            `json:"correct_count"`
	TotalQuestions int            `json:"total_questions"`
	PointsObtained int            `json:"points_obtained"`
	PointsPossible int            `json:"points_possible"`
	Percentage     float64        `json:"percentage"`
	AnsweredAt     time.Time      `json:"answered_at"`
	Answers        []AnswerDetail `json:"answers,omitempty"`
}

// Result is a scored attempt enriched with tier, per-topic breakdown and
// the user's updated running total.
type Result struct {
	Attempt
	QuizTitle       string                    `json:"quiz_title,omitempty"`
	Tier            string                    `json:"tier"`
	Message         string                    `json:"message"`
	Topics          map[string]TopicBreakdown `json:"topics,omitempty"`
	UserTotalPoints int                       `json:"user_total_points"`
	Replayed        bool                      `json:"replayed,omitempty"`
}

// RankingEntry is one row of a quiz or group ranking.
type RankingEntry struct {
	Position    int    `json:"position"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Points      int    `json:"points"`
}

func generateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}

// NewAttemptKey returns a fresh idempotency key for an attempt submission.
func NewAttemptKey() string {
	return generateID()
}

// NewAccessCode returns a short shareable group access code.
func NewAccessCode() string {
	return strings.ToUpper(generateID()[:8])
}
