// Package verify decides whether an image shows a plant before any
// diagnosis is attempted, using a general-purpose label classifier.
package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agrisense/cropdoc/internal/ingest"
)

// ErrModelUnavailable is returned when the label classifier cannot be
// loaded. Verification then fails closed.
var ErrModelUnavailable = errors.New("verification model unavailable")

// DefaultKeywords are matched case-insensitively as substrings of predicted
// labels. The list favours accepting non-crop plants over rejecting crops.
var DefaultKeywords = []string{
	"plant", "leaf", "tree", "flower", "vegetation", "crop",
	"corn", "wheat", "hay", "ear", "spike", "capitulum", "grass",
}

// Label is one ranked prediction of the label classifier.
type Label struct {
	Name  string  `json:"name"`
	Score float32 `json:"score"`
}

// LabelClassifier is a pretrained multi-class image labeller.
type LabelClassifier interface {
	Classify(ctx context.Context, t *ingest.Tensor) ([]Label, error)
}

// Provider hands out the label classifier, loading it on first use.
type Provider interface {
	Get(ctx context.Context) (LabelClassifier, error)
}

// Verdict is the outcome of a verification.
type Verdict struct {
	IsPlant bool    `json:"isPlant"`
	Labels  []Label `json:"labels"`
	// Matched is the first label that contained a keyword.
	Matched string `json:"matched,omitempty"`
	Keyword string `json:"keyword,omitempty"`
}

// Verifier is the plant gate.
type Verifier struct {
	provider Provider
	keywords []string
	timeout  time.Duration
	logger   *zap.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithKeywords replaces DefaultKeywords.
func WithKeywords(keywords []string) Option {
	return func(v *Verifier) {
		if len(keywords) > 0 {
			v.keywords = normalize(keywords)
		}
	}
}

// WithTimeout bounds each classification call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) { v.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// New returns a Verifier backed by provider.
func New(provider Provider, opts ...Option) *Verifier {
	v := &Verifier{
		provider: provider,
		keywords: normalize(DefaultKeywords),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func normalize(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// IsPlant classifies t and reports whether any predicted label contains a
// plant keyword. A provider failure yields ErrModelUnavailable unless ctx
// ended first, in which case the context error is returned. The gate never
// passes an image it could not check.
func (v *Verifier) IsPlant(ctx context.Context, t *ingest.Tensor) (Verdict, error) {
	if v.provider == nil {
		return Verdict{}, fmt.Errorf("%w: no provider configured", ErrModelUnavailable)
	}
	clf, err := v.provider.Get(ctx)
	if err != nil {
		// The caller gave up waiting; the model may still be loading.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Verdict{}, fmt.Errorf("waiting for verification model: %w", ctxErr)
		}
		if errors.Is(err, ErrModelUnavailable) {
			return Verdict{}, err
		}
		return Verdict{}, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}
	labels, err := clf.Classify(ctx, t)
	if err != nil {
		return Verdict{}, fmt.Errorf("label classification: %w", err)
	}

	verdict := v.Match(labels)
	v.logger.Debug("plant verification",
		zap.Bool("plant", verdict.IsPlant),
		zap.String("matched", verdict.Matched),
		zap.Any("labels", labels))
	return verdict, nil
}

// Match applies the keyword rule to already computed labels.
func (v *Verifier) Match(labels []Label) Verdict {
	verdict := Verdict{Labels: labels}
	for _, l := range labels {
		name := strings.ToLower(l.Name)
		for _, k := range v.keywords {
			if strings.Contains(name, k) {
				verdict.IsPlant = true
				verdict.Matched = l.Name
				verdict.Keyword = k
				return verdict
			}
		}
	}
	return verdict
}
