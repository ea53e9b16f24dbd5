// Package extract runs the per-page language-model passes: it renders the
// versioned prompt, enforces the prompt token limit, calls the model with a
// forced response tool under the retry policy, and validates the answer.
package extract

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/childcare-cli/internal/citation"
	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/internal/resilience"
	"github.com/sells-group/childcare-cli/pkg/anthropic"
)

const (
	// DefaultMaxPromptTokens is the largest prompt sent to the model.
	DefaultMaxPromptTokens int64 = 100_000
	// DefaultMaxTokens is the output budget per call.
	DefaultMaxTokens int64 = 2048
)

// UsageFunc receives the token usage of every model response.
type UsageFunc func(pass model.Pass, modelName string, usage anthropic.TokenUsage)

// Engine performs structured model calls.
type Engine struct {
	client          anthropic.Client
	counter         TokenCounter
	limiter         *rate.Limiter
	retry           resilience.RetryConfig
	maxPromptTokens int64
	maxTokens       int64
	onUsage         UsageFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithTokenCounter replaces the count-tokens endpoint counter.
func WithTokenCounter(c TokenCounter) Option {
	return func(e *Engine) { e.counter = c }
}

// WithLimiter paces model calls. A nil limiter disables pacing.
func WithLimiter(l *rate.Limiter) Option {
	return func(e *Engine) { e.limiter = l }
}

// WithRetryConfig sets the retry policy around model calls.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(e *Engine) { e.retry = cfg }
}

// WithMaxPromptTokens sets the prompt token limit.
func WithMaxPromptTokens(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPromptTokens = n
		}
	}
}

// WithMaxTokens sets the output token budget.
func WithMaxTokens(n int64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithUsageHook registers fn to receive per-call token usage.
func WithUsageHook(fn UsageFunc) Option {
	return func(e *Engine) { e.onUsage = fn }
}

// New creates an Engine. Token counting defaults to the client's
// count-tokens endpoint and retries to resilience.ModelRetryConfig.
func New(client anthropic.Client, opts ...Option) *Engine {
	e := &Engine{
		client:          client,
		counter:         AnthropicCounter{Client: client},
		retry:           resilience.ModelRetryConfig(),
		maxPromptTokens: DefaultMaxPromptTokens,
		maxTokens:       DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request describes one structured call.
type Request[T any] struct {
	Key         model.ExtractionKey
	Prompt      Prompt
	Schema      ResponseSchema[T]
	Temperature *float64
	LogFields   []zap.Field
}

// Structured sends req to the model and returns the validated answer.
// Prompts over the token limit fail with *DocumentTooLongError before any
// model call. Failed calls and malformed answers are retried per the
// engine's retry policy; the last error is returned after exhaustion.
func Structured[T any](ctx context.Context, e *Engine, req Request[T]) (T, error) {
	var zero T
	pass := req.Schema.Pass
	fields := append([]zap.Field{
		zap.String("pass", string(pass)),
		zap.String("model", req.Key.Model),
		zap.String("prompt_version", req.Key.PromptVersion),
	}, req.LogFields...)

	cfg := e.retry
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = IsRetryable
	}
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("anthropic", string(pass), fields...)
	}

	tokens, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (int64, error) {
		return e.counter.Count(ctx, req.Key.Model, req.Prompt)
	})
	if err != nil {
		return zero, eris.Wrapf(err, "extract: %s pass", pass)
	}
	if tokens > e.maxPromptTokens {
		return zero, &DocumentTooLongError{Tokens: tokens, Limit: e.maxPromptTokens}
	}

	tool := req.Schema.Tool()
	msg := anthropic.MessageRequest{
		Model:       req.Key.Model,
		MaxTokens:   e.maxTokens,
		System:      systemBlocks(req.Prompt.System),
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt.User}},
		Temperature: req.Temperature,
		Tools:       []anthropic.Tool{tool},
		ToolChoice:  tool.Name,
	}

	out, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return zero, err
			}
		}
		resp, err := e.client.CreateMessage(ctx, msg)
		if err != nil {
			return zero, err
		}
		e.recordUsage(pass, resp)
		return req.Schema.Parse(responseJSON(resp, tool.Name))
	})
	if err != nil {
		return zero, eris.Wrapf(err, "extract: %s pass", pass)
	}

	zap.L().Debug("structured call complete", append(fields, zap.Int64("prompt_tokens", tokens))...)
	return out, nil
}

func (e *Engine) recordUsage(pass model.Pass, resp *anthropic.MessageResponse) {
	if resp == nil {
		return
	}
	resp.Usage.LogCost(resp.Model, string(pass))
	if e.onUsage != nil {
		e.onUsage(pass, resp.Model, resp.Usage)
	}
}

// ExtractContact runs the contact pass on one page.
func (e *Engine) ExtractContact(ctx context.Context, page model.CrawledPage, key model.ExtractionKey) (*model.ExtractionRecord, error) {
	prompt, err := ContactPrompt(key.PromptVersion, page)
	if err != nil {
		return nil, err
	}

	resp, err := Structured(ctx, e, Request[ContactResponse]{
		Key:       key,
		Prompt:    prompt,
		Schema:    ContactSchema,
		LogFields: pageFields(page),
	})
	if err != nil {
		return nil, err
	}

	return &model.ExtractionRecord{
		SchoolID:      page.SchoolID,
		SchoolType:    page.SchoolType,
		PageURL:       page.URL,
		Emails:        uniqueEmails(resp.Emails),
		IsContactPage: resp.IsContactPage,
		CareDetails:   resp.CareDetails,
		Model:         key.Model,
		PromptVersion: key.PromptVersion,
	}, nil
}

// ExtractChildcare runs the childcare pass on one page and verifies the
// returned quote snippets against the page body.
func (e *Engine) ExtractChildcare(ctx context.Context, page model.CrawledPage, key model.ExtractionKey) (*model.ChildcareExtraction, error) {
	prompt, err := ChildcarePrompt(key.PromptVersion, page)
	if err != nil {
		return nil, err
	}

	resp, err := Structured(ctx, e, Request[ChildcareResponse]{
		Key:         key,
		Prompt:      prompt,
		Schema:      ChildcareSchema,
		Temperature: model.Ptr(0.0),
		LogFields:   pageFields(page),
	})
	if err != nil {
		return nil, err
	}

	return &model.ChildcareExtraction{
		SchoolID:    page.SchoolID,
		PageURL:     page.URL,
		WebpageYear: resp.WebpageYear,

		ProvidesBeforeCare:             resp.ProvidesBeforeCare,
		BeforeCareStartTime:            resp.BeforeCareStartTime,
		BeforeCareProvider:             resp.BeforeCareProvider,
		BeforeCareQuoteSnippet:         resp.BeforeCareQuoteSnippet,
		BeforeCareQuoteSnippetVerified: citation.Verify(resp.BeforeCareQuoteSnippet, page.Markdown),

		ProvidesAfterCare:             resp.ProvidesAfterCare,
		AfterCareEndTime:              resp.AfterCareEndTime,
		AfterCareProvider:             resp.AfterCareProvider,
		AfterCareQuoteSnippet:         resp.AfterCareQuoteSnippet,
		AfterCareQuoteSnippetVerified: citation.Verify(resp.AfterCareQuoteSnippet, page.Markdown),

		Model:         key.Model,
		PromptVersion: key.PromptVersion,
	}, nil
}

// IsDocumentTooLong reports whether err carries a *DocumentTooLongError.
func IsDocumentTooLong(err error) bool {
	var tooLong *DocumentTooLongError
	return errors.As(err, &tooLong)
}

func pageFields(page model.CrawledPage) []zap.Field {
	return []zap.Field{
		zap.Int64("school_id", page.SchoolID),
		zap.String("page_url", page.URL),
	}
}

// uniqueEmails drops blanks and duplicates, keeping first-seen order.
func uniqueEmails(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, e := range in {
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
