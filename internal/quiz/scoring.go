package quiz

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Points awarded per question difficulty. Unknown difficulty strings score
// zero so a corrupted row can never inflate totals.
var pointsByDifficulty = map[string]int{
	DifficultyEasy:   15,
	DifficultyMedium: 20,
	DifficultyHard:   30,
}

// QuestionPoints returns the point value of a question.
func QuestionPoints(difficulty string) int {
	return pointsByDifficulty[difficulty]
}

// Result tiers, cut at 60% and 85%.
const (
	TierNeedsImprovement = "needs_improvement"
	TierDoingWell        = "doing_well"
	TierExpert           = "expert"
)

// TierFor maps a percentage to its tier.
func TierFor(percentage float64) string {
	switch {
	case percentage <= 60:
		return TierNeedsImprovement
	case percentage <= 85:
		return TierDoingWell
	default:
		return TierExpert
	}
}

// TierMessage returns the user-facing message for a tier.
func TierMessage(tier string) string {
	switch tier {
	case TierNeedsImprovement:
		return "Você está indo bem, mas pode melhorar! Continue praticando."
	case TierDoingWell:
		return "Muito bem! Continue assim."
	case TierExpert:
		return "Temos um expert aqui! Parabéns!"
	default:
		return ""
	}
}

// Score grades submitted answers against the quiz questions. Points
// possible always covers every question in the quiz, answered or not.
// Answers referencing unknown question ids are silently ignored. Letter
// comparison is case-sensitive: stored answers are normalized to uppercase
// at parse time, submissions are the client's responsibility.
func Score(questions []Question, answers []Answer) Result {
	byID := make(map[string]Question, len(questions))
	pointsPossible := 0
	for _, q := range questions {
		byID[q.ID] = q
		pointsPossible += QuestionPoints(q.Difficulty)
	}

	topics := make(map[string]TopicBreakdown)
	topicNames := make(map[string]string)

	var details []AnswerDetail
	correct := 0
	obtained := 0
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}

		hit := a.Alternative == q.CorrectAlternative
		if hit {
			correct++
			obtained += QuestionPoints(q.Difficulty)
		}
		details = append(details, AnswerDetail{
			QuestionID:         q.ID,
			QuestionText:       q.Text,
			Chosen:             a.Alternative,
			CorrectAlternative: q.CorrectAlternative,
			Correct:            hit,
		})

		key := topicKey(q.Topic)
		if _, seen := topicNames[key]; !seen {
			topicNames[key] = q.Topic
		}
		tb := topics[key]
		tb.Answered++
		if hit {
			tb.Correct++
		}
		topics[key] = tb
	}

	total := len(questions)
	percentage := 0.0
	if total > 0 {
		percentage = float64(correct) * 100 / float64(total)
	}

	// Re-key the breakdown by the first-seen display name of each topic.
	byName := make(map[string]TopicBreakdown, len(topics))
	for key, tb := range topics {
		byName[topicNames[key]] = tb
	}

	tier := TierFor(percentage)
	return Result{
		Attempt: Attempt{
			CorrectCount:   correct,
			TotalQuestions: total,
			PointsObtained: obtained,
			PointsPossible: pointsPossible,
			Percentage:     percentage,
			Answers:        details,
		},
		Tier:    tier,
		Message: TierMessage(tier),
		Topics:  byName,
	}
}

// topicKey folds case and strips diacritics so "Matemática" and "matematica"
// tally under one topic.
func topicKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}
