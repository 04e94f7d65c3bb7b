package quiz

import (
	"encoding/json"
	"fmt"
	"sort"
)

// QuestionsContractJSON serializes questions back into the wire contract
// for the review prompt, so the reviewer sees exactly the generated shape.
func QuestionsContractJSON(questions []Question) (string, error) {
	raw := make([]rawQuestion, len(questions))
	for i, q := range questions {
		raw[i] = rawQuestion{
			Tema:            q.Topic,
			Dificuldade:     q.Difficulty,
			PerguntaTexto:   q.Text,
			AlternativaA:    q.AlternativeA,
			AlternativaB:    q.AlternativeB,
			AlternativaC:    q.AlternativeC,
			AlternativaD:    q.AlternativeD,
			RespostaCorreta: q.CorrectAlternative,
			Justificativa:   q.Justification,
			Referencia:      q.Reference,
		}
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal questions: %w", err)
	}
	return string(data), nil
}

// rawFinding mirrors the reviewer wire contract.
type rawFinding struct {
	Index                 int               `json:"index"`
	Valid                 bool              `json:"valid"`
	Issues                []string          `json:"issues"`
	CorrectAnswerVerified bool              `json:"correctAnswerVerified"`
	Justification         string            `json:"justification"`
	SuggestedCorrections  map[string]string `json:"suggestedCorrections"`
	SuggestedDifficulty   string            `json:"suggestedDifficulty"`
}

// ParseFindings decodes the reviewer output. Findings are advisory, so any
// failure here is ErrReviewUnparsable and never aborts quiz creation.
func ParseFindings(raw string) ([]Finding, error) {
	payload, err := ExtractContract(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReviewUnparsable, err)
	}

	var rawFindings []rawFinding
	if err := json.Unmarshal([]byte(payload), &rawFindings); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrReviewUnparsable, err)
	}

	findings := make([]Finding, len(rawFindings))
	for i, rf := range rawFindings {
		issues := rf.Issues
		if issues == nil {
			issues = []string{}
		}
		findings[i] = Finding{
			Index:                 rf.Index,
			Valid:                 rf.Valid,
			Issues:                issues,
			CorrectAnswerVerified: rf.CorrectAnswerVerified,
			Justification:         rf.Justification,
			SuggestedCorrections:  rf.SuggestedCorrections,
			SuggestedDifficulty:   rf.SuggestedDifficulty,
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Index < findings[j].Index
	})
	return findings, nil
}
