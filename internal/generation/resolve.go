package generation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Kind tags which model a Resolution or Result settled on.
type Kind int

const (
	Unavailable Kind = iota
	Primary
	Fallback
)

func (k Kind) String() string {
	switch k {
	case Primary:
		return "primary"
	case Fallback:
		return "fallback"
	default:
		return "unavailable"
	}
}

// Resolution is the outcome of constructing a generator under the
// primary/fallback policy. Generator is nil and Err is set when Kind is Unavailable.
type Resolution struct {
	Kind      Kind
	Model     string
	Generator Generator
	Err       error
}

// Resolve constructs the primary model's generator, substituting the
// fallback model when construction fails.
func Resolve(factory Factory, primary, fallback string) Resolution {
	g, err := factory(primary)
	if err == nil {
		return Resolution{Kind: Primary, Model: primary, Generator: g}
	}
	fg, ferr := factory(fallback)
	if ferr == nil {
		return Resolution{Kind: Fallback, Model: fallback, Generator: fg, Err: err}
	}
	return Resolution{
		Kind: Unavailable,
		Err:  errors.Join(fmt.Errorf("primary %s: %w", primary, err), fmt.Errorf("fallback %s: %w", fallback, ferr)),
	}
}

// Result is generated text plus which model produced it.
type Result struct {
	Text  string
	Kind  Kind
	Model string
}

// Router applies the primary/fallback policy to every request: a failure to
// construct or invoke the primary model triggers exactly one attempt with the
// fallback model. It never retries beyond that.
type Router struct {
	factory  Factory
	primary  string
	fallback string
	logger   *zap.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLogger sets the logger for fallback and failure events.
func WithLogger(l *zap.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter returns a router over the two named models.
func NewRouter(factory Factory, primary, fallback string, opts ...RouterOption) *Router {
	r := &Router{factory: factory, primary: primary, fallback: fallback, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate produces an answer for req. It returns an error wrapping
// ErrUnavailable when both models fail, or the context error when ctx ends
// before a model answered.
func (r *Router) Generate(ctx context.Context, req Request) (Result, error) {
	res := Resolve(r.factory, r.primary, r.fallback)
	switch res.Kind {
	case Unavailable:
		r.logger.Error("no generation model could be constructed", zap.Error(res.Err))
		return Result{Kind: Unavailable}, fmt.Errorf("%w: %w", ErrUnavailable, res.Err)
	case Fallback:
		r.logger.Warn("primary model unavailable, using fallback",
			zap.String("primary", r.primary), zap.String("fallback", res.Model), zap.Error(res.Err))
		text, err := res.Generator.Generate(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{Kind: Unavailable}, ctxErr
			}
			return Result{Kind: Unavailable}, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(res.Err, err))
		}
		return Result{Text: text, Kind: Fallback, Model: res.Model}, nil
	}

	text, err := res.Generator.Generate(ctx, req)
	if err == nil {
		return Result{Text: text, Kind: Primary, Model: res.Model}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{Kind: Unavailable}, ctxErr
	}
	r.logger.Warn("primary model failed, retrying with fallback",
		zap.String("primary", r.primary), zap.String("fallback", r.fallback), zap.Error(err))

	fg, ferr := r.factory(r.fallback)
	if ferr != nil {
		return Result{Kind: Unavailable}, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(err, ferr))
	}
	text, ferr = fg.Generate(ctx, req)
	if ferr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{Kind: Unavailable}, ctxErr
		}
		r.logger.Error("fallback model failed", zap.String("fallback", r.fallback), zap.Error(ferr))
		return Result{Kind: Unavailable}, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(err, ferr))
	}
	return Result{Text: text, Kind: Fallback, Model: r.fallback}, nil
}
