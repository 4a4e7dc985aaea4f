// Package analysis wraps the external AI estimation call behind a
// single-flight, timeout-bounded orchestrator that validates the response
// shape before accepting it.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mealsnap/mealsnap/internal/gemini"
	"github.com/mealsnap/mealsnap/internal/ollama"
	"github.com/mealsnap/mealsnap/internal/openai"
	"github.com/mealsnap/mealsnap/internal/providers"
	"github.com/mealsnap/mealsnap/internal/scan"
)

// DefaultTimeout bounds one analysis round trip.
const DefaultTimeout = 45 * time.Second

// Optimizer shrinks an image to fit upload size limits. It must be a pure
// function of its input.
type Optimizer func(image []byte) []byte

// Orchestrator owns the single external analysis call. A second Analyze
// while one is outstanding fails immediately with
// scan.ErrAnalysisAlreadyInFlight.
type Orchestrator struct {
	provider    providers.Provider
	model       string
	temperature float64
	timeout     time.Duration
	optimize    Optimizer

	mu       sync.Mutex
	inFlight bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout overrides the analysis deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithOptimizer installs an image optimizer applied before upload.
func WithOptimizer(fn Optimizer) Option {
	return func(o *Orchestrator) { o.optimize = fn }
}

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(o *Orchestrator) { o.model = model }
}

// New creates an Orchestrator over the given provider.
func New(provider providers.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:    provider,
		temperature: 0.1,
		timeout:     DefaultTimeout,
		optimize:    func(img []byte) []byte { return img },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewFromEnv selects the provider named by name ("gemini", "openai",
// "ollama"), falling back to the ANALYSIS_PROVIDER environment variable and
// then to gemini.
func NewFromEnv(name string, opts ...Option) (*Orchestrator, error) {
	if name == "" {
		name = os.Getenv("ANALYSIS_PROVIDER")
	}
	if name == "" {
		name = "gemini"
	}

	var provider providers.Provider
	var model string
	switch name {
	case "gemini":
		provider = gemini.New()
		model = envOr("GEMINI_MODEL", "gemini-1.5-flash")
	case "openai":
		provider = openai.New()
		model = envOr("OPENAI_MODEL", "gpt-4o")
	case "ollama":
		provider = ollama.New()
		model = envOr("OLLAMA_MODEL", "llava:13b")
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}

	o := New(provider, opts...)
	if o.model == "" {
		o.model = model
	}
	return o, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Analyze runs one estimation round trip for the given image. The call is
// single-flight, bounded by the configured timeout, and its response is
// validated before being returned.
func (o *Orchestrator) Analyze(ctx context.Context, image []byte) (scan.AnalysisResult, error) {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return scan.AnalysisResult{}, scan.ErrAnalysisAlreadyInFlight
	}
	o.inFlight = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	started := time.Now()
	raw, err := o.provider.DescribeFood(ctx, providers.Config{
		Model:       o.model,
		Temperature: o.temperature,
		Prompt:      providers.EstimationPrompt,
		ImageBytes:  o.optimize(image),
		ImageMIME:   "image/jpeg",
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			slog.Warn("analysis timed out", "elapsed", time.Since(started))
			return scan.AnalysisResult{}, scan.ErrAnalysisTimeout
		}
		return scan.AnalysisResult{}, fmt.Errorf("analysis call failed: %w", err)
	}

	result, err := ParseResult(raw)
	if err != nil {
		return scan.AnalysisResult{}, err
	}

	slog.Info("analysis complete",
		"item", result.OverallFoodItem,
		"total_grams", result.TotalWeightGrams,
		"confidence", result.ConfidencePercentage,
		"elapsed", time.Since(started))
	return result, nil
}

// ParseResult decodes and validates a raw model response. A response
// failing validation is surfaced as scan.ErrInvalidAnalysisResponse, never
// silently coerced.
func ParseResult(raw string) (scan.AnalysisResult, error) {
	var result scan.AnalysisResult
	if err := json.Unmarshal([]byte(providers.ExtractJSON(raw)), &result); err != nil {
		return scan.AnalysisResult{}, fmt.Errorf("%w: %v", scan.ErrInvalidAnalysisResponse, err)
	}
	if err := Validate(result); err != nil {
		return scan.AnalysisResult{}, err
	}
	return result, nil
}

// Validate checks the response shape. The total weight is not required to
// equal the sum of the constituents; the upstream model is not held to
// that.
func Validate(r scan.AnalysisResult) error {
	if r.TotalWeightGrams < 0 {
		return fmt.Errorf("%w: total weight %d is negative", scan.ErrInvalidAnalysisResponse, r.TotalWeightGrams)
	}
	if r.ConfidencePercentage < 0 || r.ConfidencePercentage > 100 {
		return fmt.Errorf("%w: confidence %d outside [0,100]", scan.ErrInvalidAnalysisResponse, r.ConfidencePercentage)
	}
	if r.OverallFoodItem == "" && len(r.ConstituentFoodItems) == 0 {
		return fmt.Errorf("%w: neither overall item nor constituents present", scan.ErrInvalidAnalysisResponse)
	}
	for _, item := range r.ConstituentFoodItems {
		if item.WeightGrams < 0 {
			return fmt.Errorf("%w: constituent %q has negative weight %d", scan.ErrInvalidAnalysisResponse, item.Name, item.WeightGrams)
		}
	}
	return nil
}
