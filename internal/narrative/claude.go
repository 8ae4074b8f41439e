package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/edusignal/exam-intel/internal/model"
	"github.com/edusignal/exam-intel/pkg/anthropic"
)

const subjectSystemPrompt = "You are a senior academic mentor writing faculty-grade feedback. " +
	"Your tone is calm, encouraging, and constructive. Write complete, well-structured paragraphs. " +
	"Explain performance clearly without inventing data. " +
	"The output will be read by students, parents, and teachers. Return ONLY valid JSON."

const overviewSystemPrompt = "You are a senior academic advisor generating a consolidated assessment " +
	"across subjects. Use ONLY the provided data. Identify cross-subject patterns. " +
	"Be concrete, structured, and professional. Return ONLY valid JSON."

// ClaudeOptions bounds the Claude-backed generator.
type ClaudeOptions struct {
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
}

// ClaudeGenerator implements Generator against the Anthropic API. Every call
// is rate limited, bounded by a timeout, and retried a fixed number of times
// before the caller falls back.
type ClaudeGenerator struct {
	client  anthropic.Client
	opts    ClaudeOptions
	limiter *rate.Limiter

	mu    sync.Mutex
	usage anthropic.TokenUsage
}

// NewClaudeGenerator creates a ClaudeGenerator.
func NewClaudeGenerator(client anthropic.Client, opts ClaudeOptions) *ClaudeGenerator {
	if opts.Timeout == 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 2
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &ClaudeGenerator{
		client:  client,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Provider names the backing service for provenance columns.
func (g *ClaudeGenerator) Provider() string {
	return "claude"
}

// Model returns the configured model name.
func (g *ClaudeGenerator) Model() string {
	return g.opts.Model
}

// Usage returns cumulative token usage across all calls.
func (g *ClaudeGenerator) Usage() anthropic.TokenUsage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usage
}

// SubjectSummary renders one insight as prose under the strict schema.
func (g *ClaudeGenerator) SubjectSummary(ctx context.Context, in model.SubjectInsight) (*model.SubjectNarrative, error) {
	prompt, err := subjectPrompt(in)
	if err != nil {
		return nil, err
	}

	var parsed subjectSummary
	if err := g.generate(ctx, subjectSystemPrompt, prompt, &parsed, func() bool { return parsed.valid() }); err != nil {
		return nil, err
	}

	return &model.SubjectNarrative{
		StudentID:          in.StudentID,
		Grade:              in.Grade,
		Subject:            in.Subject,
		PerformanceSummary: parsed.PerformanceSummary,
		ImprovementPlan:    parsed.ImprovementPlan,
		MotivationNote:     parsed.MotivationNote,
		Confidence:         parsed.Confidence,
		Provider:           g.Provider(),
	}, nil
}

// StudentOverview renders a cross-subject overview under the strict schema.
func (g *ClaudeGenerator) StudentOverview(ctx context.Context, req OverviewRequest) (*Overview, error) {
	prompt, err := overviewPrompt(req)
	if err != nil {
		return nil, err
	}

	var parsed Overview
	if err := g.generate(ctx, overviewSystemPrompt, prompt, &parsed, func() bool { return parsed.valid() }); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// generate runs the bounded request/parse/validate loop shared by both calls.
func (g *ClaudeGenerator) generate(ctx context.Context, system, prompt string, out any, valid func() bool) error {
	var lastErr error
	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "narrative: rate limit wait")
		}

		callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		resp, err := g.client.CreateMessage(callCtx, anthropic.MessageRequest{
			Model:     g.opts.Model,
			MaxTokens: 700,
			System:    system,
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
		cancel()

		if err != nil {
			lastErr = err
			zap.L().Warn("narrative: generation attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		g.mu.Lock()
		g.usage.InputTokens += resp.Usage.InputTokens
		g.usage.OutputTokens += resp.Usage.OutputTokens
		g.mu.Unlock()

		if err := decodeStrictJSON(resp.Text(), out); err != nil {
			lastErr = err
			continue
		}
		if !valid() {
			lastErr = eris.New("narrative: response violates schema")
			continue
		}
		return nil
	}
	return eris.Wrap(lastErr, "narrative: generation exhausted retries")
}

func subjectPrompt(in model.SubjectInsight) (string, error) {
	payload, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "narrative: marshal insight")
	}
	return fmt.Sprintf(
		"Subject insight for grade %d %s:\n%s\n\n"+
			"Write a detailed but readable academic summary.\n"+
			"Return ONLY valid JSON in this exact schema:\n"+
			"{\n"+
			"  \"performance_summary\": \"2-4 sentences explaining current performance and pattern\",\n"+
			"  \"improvement_plan\": \"Concrete, actionable steps written as guidance, not commands\",\n"+
			"  \"motivation_note\": \"Encouraging message focused on confidence and growth mindset\",\n"+
			"  \"confidence_note\": \"high | medium | low\"\n"+
			"}",
		in.Grade, in.Subject, payload,
	), nil
}

func overviewPrompt(req OverviewRequest) (string, error) {
	payload, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "narrative: marshal overview request")
	}
	return fmt.Sprintf(
		"Consolidated academic data for student %s (grade %d):\n%s\n\n"+
			"Return ONLY valid JSON in this exact schema:\n"+
			"{\n"+
			"  \"overall_summary\": \"...\",\n"+
			"  \"key_strengths\": \"...\",\n"+
			"  \"areas_to_improve\": \"...\",\n"+
			"  \"recommended_next_steps\": \"...\",\n"+
			"  \"confidence_note\": \"high | medium | low\"\n"+
			"}",
		req.StudentID, req.Grade, payload,
	), nil
}
