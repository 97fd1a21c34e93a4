// Package rag answers questions about an indexed document: retrieval,
// prompt assembly, generation with fallback, history, and cleanup.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/pdfinsight/internal/generation"
	"github.com/hyperjump/pdfinsight/internal/memory"
	"github.com/hyperjump/pdfinsight/internal/models"
	"github.com/hyperjump/pdfinsight/internal/postprocess"
	"github.com/hyperjump/pdfinsight/internal/prompt"
	"github.com/hyperjump/pdfinsight/internal/vector"
)

const (
	// DefaultTopK is used by callers that omit top_k.
	DefaultTopK = 5
	// MaxTopK is the largest accepted top_k.
	MaxTopK = 12
)

// Indexes opens per-document vector indexes.
type Indexes interface {
	Exists(docID string) bool
	Load(ctx context.Context, docID string) (*vector.Index, error)
}

// Generator produces an answer under the primary/fallback model policy.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (generation.Result, error)
}

// Observer receives one event per Ask call. outcome is "ok" or an error class;
// model is the resolution kind that answered.
type Observer interface {
	ObserveAsk(outcome, model string, d time.Duration)
}

// Pipeline answers questions. It is safe for concurrent use; requests on the
// same session key are serialized.
type Pipeline struct {
	indexes       Indexes
	conversations *memory.Conversations
	generator     Generator
	version       prompt.Version
	temperature   float64
	maxTopK       int
	maxBullets    int
	snippetChars  int
	logger        *zap.Logger
	observer      Observer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPromptVersion selects the prompt template.
func WithPromptVersion(v prompt.Version) Option {
	return func(p *Pipeline) { p.version = v }
}

// WithTemperature sets the sampling temperature sent to the model.
func WithTemperature(t float64) Option {
	return func(p *Pipeline) { p.temperature = t }
}

// WithMaxTopK lowers the largest accepted top_k. Values outside 1..MaxTopK are ignored.
func WithMaxTopK(k int) Option {
	return func(p *Pipeline) {
		if k >= 1 && k <= MaxTopK {
			p.maxTopK = k
		}
	}
}

// WithMaxBullets sets the bullet cap applied by the postprocessor.
func WithMaxBullets(n int) Option {
	return func(p *Pipeline) { p.maxBullets = n }
}

// WithSnippetChars sets the source snippet length in graphemes.
func WithSnippetChars(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.snippetChars = n
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithObserver registers a metrics sink.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// NewPipeline wires the answer pipeline.
func NewPipeline(indexes Indexes, conversations *memory.Conversations, generator Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		indexes:       indexes,
		conversations: conversations,
		generator:     generator,
		version:       prompt.Default,
		maxTopK:       MaxTopK,
		maxBullets:    postprocess.DefaultMaxBullets,
		snippetChars:  DefaultSnippetChars,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ask answers req.Question from the document's top-k chunks and the
// session's history. History is extended only when generation succeeds.
func (p *Pipeline) Ask(ctx context.Context, req models.AskRequest) (*models.AskResponse, error) {
	start := time.Now()
	resp, kind, err := p.ask(ctx, req)
	if p.observer != nil {
		p.observer.ObserveAsk(outcome(err), kind.String(), time.Since(start))
	}
	return resp, err
}

func (p *Pipeline) ask(ctx context.Context, req models.AskRequest) (*models.AskResponse, generation.Kind, error) {
	question, lang, err := p.validate(req)
	if err != nil {
		return nil, generation.Unavailable, err
	}
	key := models.NewSessionKey(req.DocID, req.SessionID)

	if !p.indexes.Exists(req.DocID) {
		return nil, generation.Unavailable, fmt.Errorf("%w: %q", ErrUnknownDocument, req.DocID)
	}
	ix, err := p.indexes.Load(ctx, req.DocID)
	if err != nil {
		return nil, generation.Unavailable, fmt.Errorf("load index %s: %w", req.DocID, err)
	}
	results, err := ix.Query(ctx, question, req.TopK)
	if err != nil {
		return nil, generation.Unavailable, fmt.Errorf("retrieve: %w", err)
	}
	docContext := FormatContext(results)

	unlock := p.conversations.Lock(key)
	defer unlock()
	h := p.conversations.GetOrCreate(key)

	history, err := p.conversations.Read(ctx, h)
	if err != nil {
		return nil, generation.Unavailable, err
	}
	genReq := p.version.Build(prompt.Input{
		History:     history,
		Context:     docContext,
		Question:    question,
		Language:    lang,
		Temperature: p.temperature,
	})

	res, err := p.generator.Generate(ctx, genReq)
	if err != nil {
		p.logger.Error("generation failed",
			zap.String("doc_id", key.DocID), zap.String("session_id", key.SessionID), zap.Error(err))
		return nil, res.Kind, err
	}
	if err := p.conversations.AppendExchange(ctx, h, question, res.Text); err != nil {
		return nil, res.Kind, err
	}

	answer := postprocess.Clean(res.Text, p.maxBullets)
	p.logger.Info("ask served",
		zap.String("doc_id", key.DocID),
		zap.String("session_id", key.SessionID),
		zap.Int("top_k", req.TopK),
		zap.Int("retrieved", len(results)),
		zap.String("language", string(lang)),
		zap.Stringer("resolution", res.Kind),
		zap.String("model", res.Model),
	)
	return &models.AskResponse{
		Answer:  answer,
		Sources: Sources(results, p.snippetChars),
	}, res.Kind, nil
}

func (p *Pipeline) validate(req models.AskRequest) (string, models.Language, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return "", "", fmt.Errorf("%w: empty question", ErrInvalidArgument)
	}
	if req.TopK < 1 || req.TopK > p.maxTopK {
		return "", "", fmt.Errorf("%w: top_k must be between 1 and %d", ErrInvalidArgument, p.maxTopK)
	}
	lang := models.Language(strings.ToLower(strings.TrimSpace(string(req.Language))))
	if lang == "" {
		lang = models.DefaultLanguage
	}
	if !lang.Valid() {
		return "", "", fmt.Errorf("%w: language must be bn or en", ErrInvalidArgument)
	}
	if strings.TrimSpace(req.DocID) == "" {
		return "", "", fmt.Errorf("%w: doc_id is required", ErrInvalidArgument)
	}
	return question, lang, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrUnknownDocument):
		return "unknown_document"
	case errors.Is(err, generation.ErrUnavailable):
		return "generation_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
