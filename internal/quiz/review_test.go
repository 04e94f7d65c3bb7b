package quiz_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/eduquiz/quizforge/internal/quiz"
)

func TestQuestionsContractJSON(t *testing.T) {
	questions := []quiz.Question{
		{
			Topic:              "Matemática",
			Difficulty:         quiz.DifficultyEasy,
			Text:               "Quanto é 1+1?",
			AlternativeA:       "1",
			AlternativeB:       "2",
			AlternativeC:       "3",
			AlternativeD:       "4",
			CorrectAlternative: "B",
			Justification:      "1+1=2.",
		},
	}

	out, err := quiz.QuestionsContractJSON(questions)
	if err != nil {
		t.Fatalf("QuestionsContractJSON() error = %v", err)
	}

	for _, want := range []string{`"tema"`, `"perguntaTexto"`, `"respostaCorreta": "B"`, "Quanto é 1+1?"} {
		if !strings.Contains(out, want) {
			t.Errorf("QuestionsContractJSON() missing %q in output", want)
		}
	}
	if strings.Contains(out, `"topic"`) {
		t.Error("QuestionsContractJSON() leaked internal field names into the wire contract")
	}
}

func TestParseFindings(t *testing.T) {
	raw := "```json\n" + `[
  {"index": 1, "valid": false, "issues": ["alternativa C ambígua"], "correctAnswerVerified": false, "suggestedDifficulty": "Fácil"},
  {"index": 0, "valid": true, "correctAnswerVerified": true}
]` + "\n```"

	findings, err := quiz.ParseFindings(raw)
	if err != nil {
		t.Fatalf("ParseFindings() error = %v", err)
	}
	if len(findings) != 2 {
		t.Fatalf("ParseFindings() returned %d findings, want 2", len(findings))
	}

	// Sorted by index regardless of the reviewer's output order.
	if findings[0].Index != 0 || findings[1].Index != 1 {
		t.Errorf("findings order = [%d %d], want [0 1]", findings[0].Index, findings[1].Index)
	}
	if !findings[0].Valid || findings[1].Valid {
		t.Error("Valid flags did not follow their findings through the sort")
	}

	// Omitted issues decode as an empty slice, never nil.
	if findings[0].Issues == nil {
		t.Error("ParseFindings() left Issues nil for a finding without issues")
	}
	if len(findings[1].Issues) != 1 || findings[1].Issues[0] != "alternativa C ambígua" {
		t.Errorf("Issues = %v, want the reviewer's issue list", findings[1].Issues)
	}
	if findings[1].SuggestedDifficulty != quiz.DifficultyEasy {
		t.Errorf("SuggestedDifficulty = %q, want %q", findings[1].SuggestedDifficulty, quiz.DifficultyEasy)
	}
}

func TestParseFindings_Unparsable(t *testing.T) {
	for _, raw := range []string{"não consegui avaliar", `[{"index": "zero"}]`, ""} {
		if _, err := quiz.ParseFindings(raw); !errors.Is(err, quiz.ErrReviewUnparsable) {
			t.Errorf("ParseFindings(%q) error = %v, want ErrReviewUnparsable", raw, err)
		}
	}
}
