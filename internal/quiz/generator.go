package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eduquiz/quizforge/internal/ai"
)

// Completer is the slice of the AI gateway the generator needs. *ai.Router
// satisfies it.
type Completer interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (ai.CompletionResponse, error)
}

// Sampling policy: generation wants diverse questions, review wants
// deterministic judgments.
const (
	generationTemperature = 0.9
	reviewTemperature     = 0.0
	reviewTopP            = 1.0
)

const (
	defaultMaxTokens   = 4096
	defaultCallTimeout = 90 * time.Second
)

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	AI            Completer
	Model         string        // model passed to the gateway; empty uses provider default
	MaxTokens     int           // per-call completion budget
	CallTimeout   time.Duration // per model call
	ReferenceInfo func(tag string) string // optional catalog lookup for reference exams
}

// Generator runs the generate-then-review pipeline against the AI gateway.
type Generator struct {
	ai            Completer
	model         string
	maxTokens     int
	callTimeout   time.Duration
	referenceInfo func(tag string) string
}

// NewGenerator creates a Generator with defaults applied.
func NewGenerator(cfg GeneratorConfig) *Generator {
	g := &Generator{
		ai:            cfg.AI,
		model:         cfg.Model,
		maxTokens:     cfg.MaxTokens,
		callTimeout:   cfg.CallTimeout,
		referenceInfo: cfg.ReferenceInfo,
	}
	if g.maxTokens <= 0 {
		g.maxTokens = defaultMaxTokens
	}
	if g.callTimeout <= 0 {
		g.callTimeout = defaultCallTimeout
	}
	return g
}

// Outcome is the result of one generation pipeline run. ReviewErr is
// advisory: when set, Findings is nil but Questions are still usable.
type Outcome struct {
	Questions  []Question
	Findings   []Finding
	TokensUsed int
	ReviewErr  error
}

// Generate produces questions for the request and runs the advisory review
// pass over them. Generation failures abort; review failures do not.
func (g *Generator) Generate(ctx context.Context, req Request) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}

	var refInfo string
	if req.Reference != "" && g.referenceInfo != nil {
		refInfo = g.referenceInfo(req.Reference)
	}

	system, user := GenerationPrompt(req, refInfo)
	resp, err := g.complete(ctx, system, user, ai.CompletionRequest{
		Task:        ai.TaskGeneration,
		Temperature: ai.Float(generationTemperature),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	outcome := Outcome{TokensUsed: resp.TotalTokens()}

	outcome.Questions, err = ParseQuestions(resp.Content, req)
	if err != nil {
		return Outcome{}, err
	}

	g.review(ctx, req, &outcome)
	return outcome, nil
}

// review runs the second model pass. Any failure is recorded on the outcome
// and logged, never returned: findings are advisory.
func (g *Generator) review(ctx context.Context, req Request, outcome *Outcome) {
	questionsJSON, err := QuestionsContractJSON(outcome.Questions)
	if err != nil {
		outcome.ReviewErr = fmt.Errorf("%w: %v", ErrReviewUnparsable, err)
		slog.Warn("question review skipped", "error", outcome.ReviewErr)
		return
	}

	system, user := ReviewPrompt(req, questionsJSON)
	resp, err := g.complete(ctx, system, user, ai.CompletionRequest{
		Task:        ai.TaskReview,
		Temperature: ai.Float(reviewTemperature),
		TopP:        ai.Float(reviewTopP),
	})
	if err != nil {
		outcome.ReviewErr = fmt.Errorf("review call: %w", err)
		slog.Warn("question review failed", "error", err)
		return
	}
	outcome.TokensUsed += resp.TotalTokens()

	findings, err := ParseFindings(resp.Content)
	if err != nil {
		outcome.ReviewErr = err
		slog.Warn("question review unparsable", "error", err)
		return
	}
	outcome.Findings = findings
}

func (g *Generator) complete(ctx context.Context, system, user string, req ai.CompletionRequest) (ai.CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	req.Messages = []ai.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	req.Model = g.model
	req.MaxTokens = g.maxTokens
	return g.ai.Complete(ctx, req)
}
