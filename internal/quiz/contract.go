package quiz

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Sentinel values filled in when the model omits a field. They are stored
// as-is so broken generations stay visible to users and reviewers.
const (
	MissingQuestionText  = "Pergunta não gerada corretamente."
	MissingJustification = "Justificativa não gerada corretamente."
)

// questionArraySchema is deliberately lenient: it pins the shape (an array
// of objects with string fields) without requiring every field, since the
// normalizer fills gaps per field. Type mismatches are contract violations.
const questionArraySchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "tema": {"type": "string"},
      "dificuldade": {"type": "string"},
      "perguntaTexto": {"type": "string"},
      "alternativaA": {"type": "string"},
      "alternativaB": {"type": "string"},
      "alternativaC": {"type": "string"},
      "alternativaD": {"type": "string"},
      "respostaCorreta": {"type": "string"},
      "justificativa": {"type": "string"},
      "referencia": {"type": "string"}
    }
  }
}`

// ExtractContract cuts the JSON array out of raw model output: everything
// from the first '[' to the last ']' inclusive. Models often wrap the array
// in prose or markdown fences; anything outside the brackets is discarded.
func ExtractContract(raw string) (string, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return "", ErrNoContract
	}
	return raw[start : end+1], nil
}

// rawQuestion mirrors the wire contract. encoding/json matches field names
// case-insensitively, so "Tema" and "TEMA" decode as well.
type rawQuestion struct {
	Tema            string `json:"tema"`
	Dificuldade     string `json:"dificuldade"`
	PerguntaTexto   string `json:"perguntaTexto"`
	AlternativaA    string `json:"alternativaA"`
	AlternativaB    string `json:"alternativaB"`
	AlternativaC    string `json:"alternativaC"`
	AlternativaD    string `json:"alternativaD"`
	RespostaCorreta string `json:"respostaCorreta"`
	Justificativa   string `json:"justificativa"`
	Referencia      string `json:"referencia"`
}

// ParseQuestions extracts, validates and normalizes the model output into
// questions. Zero usable questions is a contract violation; per-field gaps
// are not, they get defaults instead.
func ParseQuestions(raw string, req Request) ([]Question, error) {
	payload, err := ExtractContract(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContractViolated, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(questionArraySchema),
		gojsonschema.NewStringLoader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrContractViolated, err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			issues = append(issues, e.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrContractViolated, strings.Join(issues, "; "))
	}

	var rawQuestions []rawQuestion
	if err := json.Unmarshal([]byte(payload), &rawQuestions); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrContractViolated, err)
	}
	if len(rawQuestions) == 0 {
		return nil, fmt.Errorf("%w: model returned zero questions", ErrContractViolated)
	}

	questions := make([]Question, len(rawQuestions))
	for i, rq := range rawQuestions {
		questions[i] = normalizeQuestion(rq, req)
	}
	return questions, nil
}

// normalizeQuestion applies per-field defaults independently: a question is
// never dropped for a missing field.
func normalizeQuestion(rq rawQuestion, req Request) Question {
	q := Question{
		Topic:              strings.TrimSpace(rq.Tema),
		Difficulty:         strings.TrimSpace(rq.Dificuldade),
		SchoolLevel:        req.SchoolLevel,
		Text:               strings.TrimSpace(rq.PerguntaTexto),
		AlternativeA:       strings.TrimSpace(rq.AlternativaA),
		AlternativeB:       strings.TrimSpace(rq.AlternativaB),
		AlternativeC:       strings.TrimSpace(rq.AlternativaC),
		AlternativeD:       strings.TrimSpace(rq.AlternativaD),
		CorrectAlternative: normalizeCorrect(rq.RespostaCorreta),
		Justification:      strings.TrimSpace(rq.Justificativa),
		Reference:          strings.TrimSpace(rq.Referencia),
	}

	if q.Topic == "" && len(req.Topics) > 0 {
		q.Topic = req.Topics[0]
	}
	if q.Difficulty == "" && len(req.Difficulties) > 0 {
		q.Difficulty = req.Difficulties[0]
	}
	if q.Text == "" {
		q.Text = MissingQuestionText
	}
	if q.AlternativeA == "" {
		q.AlternativeA = AlternativeA
	}
	if q.AlternativeB == "" {
		q.AlternativeB = AlternativeB
	}
	if q.AlternativeC == "" {
		q.AlternativeC = AlternativeC
	}
	if q.AlternativeD == "" {
		q.AlternativeD = AlternativeD
	}
	if q.Justification == "" {
		q.Justification = MissingJustification
	}
	return q
}

// normalizeCorrect uppercases the model's answer letter and defaults to "A"
// when it is missing or outside A-D.
func normalizeCorrect(s string) string {
	letter := strings.ToUpper(strings.TrimSpace(s))
	switch letter {
	case AlternativeA, AlternativeB, AlternativeC, AlternativeD:
		return letter
	}
	return AlternativeA
}
