// Package crophealth runs the crop photo diagnosis pipeline: decode, plant
// verification, colour feature extraction, condition classification and
// remedy lookup.
package crophealth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agrisense/cropdoc/internal/classify"
	"github.com/agrisense/cropdoc/internal/features"
	"github.com/agrisense/cropdoc/internal/ingest"
	"github.com/agrisense/cropdoc/internal/model"
	"github.com/agrisense/cropdoc/internal/remedy"
	"github.com/agrisense/cropdoc/internal/verify"
)

// Prediction is the diagnosis of one image.
type Prediction struct {
	ID           string             `json:"id"`
	Condition    classify.Condition `json:"condition"`
	Confidence   float64            `json:"confidence"`
	DiseaseIndex int                `json:"diseaseIndex"`
	DiseaseName  string             `json:"diseaseName,omitempty"`
	Remedy       string             `json:"remedy,omitempty"`
	Rule         string             `json:"rule"`

	// Diagnostics. Absent for Classify calls that skip the image stages.
	Features *features.FeatureVector `json:"features,omitempty"`
	Texture  *float64                `json:"texture,omitempty"`
	Labels   []verify.Label          `json:"labels,omitempty"`
}

// Gate decides whether an image shows a plant.
type Gate interface {
	IsPlant(ctx context.Context, t *ingest.Tensor) (verify.Verdict, error)
}

// NetworkProvider hands out the optional trained condition network.
type NetworkProvider interface {
	Get(ctx context.Context) (model.DiseaseNetwork, error)
}

// Analyzer runs the pipeline. It is safe for concurrent use; analyses share
// only the model caches.
type Analyzer struct {
	ingestor      *ingest.Ingestor
	gate          Gate
	classifier    *classify.Classifier
	network       NetworkProvider
	textureWindow int
	timeout       time.Duration
	logger        *zap.Logger

	extract func(*ingest.Tensor) features.FeatureVector
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithNetwork enables the trained condition network.
func WithNetwork(p NetworkProvider) Option {
	return func(a *Analyzer) { a.network = p }
}

// WithTextureWindow sets the pooling window of the texture descriptor.
func WithTextureWindow(n int) Option {
	return func(a *Analyzer) { a.textureWindow = n }
}

// WithInferenceTimeout bounds each call into the condition network.
func WithInferenceTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// New returns an Analyzer. gate is mandatory: there is no path that skips
// plant verification.
func New(ingestor *ingest.Ingestor, gate Gate, classifier *classify.Classifier, opts ...Option) *Analyzer {
	a := &Analyzer{
		ingestor:      ingestor,
		gate:          gate,
		classifier:    classifier,
		textureWindow: features.DefaultTextureWindow,
		logger:        zap.NewNop(),
		extract:       features.Extract,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze diagnoses the image in data. On failure no Prediction is
// returned and the error matches one of ErrImageDecode,
// ErrModelUnavailable, ErrNotAPlant or ErrAnalysisFailed. Decode buffers
// and tensors are released before Analyze returns, whatever the outcome.
func (a *Analyzer) Analyze(ctx context.Context, data []byte) (pred *Prediction, err error) {
	id := uuid.NewString()
	start := time.Now()
	log := a.logger.With(zap.String("analysis", id))

	defer func() {
		if r := recover(); r != nil {
			log.Error("analysis panicked", zap.Any("panic", r), zap.Stack("stack"))
			pred, err = nil, fmt.Errorf("%w: panic: %v", ErrAnalysisFailed, r)
		}
		if err == nil {
			return
		}
		fields := []zap.Field{zap.String("kind", Kind(err)), zap.Error(err), zap.Duration("took", time.Since(start))}
		if Kind(err) == "analysis_failed" {
			log.Error("analysis failed", fields...)
		} else {
			log.Info("analysis rejected", fields...)
		}
	}()

	tensor, err := a.ingestor.Load(ctx, data)
	if err != nil {
		return nil, classifyErr("decode", err)
	}
	defer tensor.Release()

	verdict, err := a.gate.IsPlant(ctx, tensor)
	if err != nil {
		return nil, classifyErr("verify", err)
	}
	if !verdict.IsPlant {
		top := "none"
		if len(verdict.Labels) > 0 {
			top = verdict.Labels[0].Name
		}
		return nil, fmt.Errorf("%w: top label %q", ErrNotAPlant, top)
	}

	fv := a.extract(tensor)
	texture := features.TextureVariance(tensor, a.textureWindow)
	log.Debug("extracted features", zap.Any("features", fv), zap.Float64("texture", texture))

	res, err := a.classify(ctx, log, tensor, fv)
	if err != nil {
		return nil, classifyErr("classify", err)
	}

	pred, err = a.resolve(log, id, res)
	if err != nil {
		return nil, err
	}
	pred.Features = &fv
	pred.Texture = &texture
	pred.Labels = verdict.Labels

	log.Info("analysis complete",
		zap.Stringer("condition", pred.Condition),
		zap.Float64("confidence", pred.Confidence),
		zap.String("disease", pred.DiseaseName),
		zap.String("rule", pred.Rule),
		zap.Duration("took", time.Since(start)))
	return pred, nil
}

// Classify diagnoses precomputed features with the rule cascade, skipping
// decoding and verification.
func (a *Analyzer) Classify(fv features.FeatureVector) (*Prediction, error) {
	id := uuid.NewString()
	pred, err := a.resolve(a.logger.With(zap.String("analysis", id)), id, a.classifier.Classify(fv))
	if err != nil {
		return nil, err
	}
	pred.Features = &fv
	return pred, nil
}

func (a *Analyzer) classify(ctx context.Context, log *zap.Logger, t *ingest.Tensor, fv features.FeatureVector) (classify.Result, error) {
	if a.network == nil {
		return a.classifier.Classify(fv), nil
	}

	res, err := a.classifyNetwork(ctx, t, fv)
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return classify.Result{}, ctxErr
	}
	log.Warn("condition network unavailable, using rules", zap.Error(err))
	return a.classifier.Classify(fv), nil
}

func (a *Analyzer) classifyNetwork(ctx context.Context, t *ingest.Tensor, fv features.FeatureVector) (classify.Result, error) {
	net, err := a.network.Get(ctx)
	if err != nil {
		return classify.Result{}, err
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	probs, err := net.Probabilities(ctx, t)
	if err != nil {
		return classify.Result{}, err
	}
	return a.classifier.ClassifyNetwork(probs, fv)
}

func (a *Analyzer) resolve(log *zap.Logger, id string, res classify.Result) (*Prediction, error) {
	entry, err := remedy.Resolve(res.DiseaseIndex)
	if err != nil {
		log.Error("classifier produced an index outside the disease catalog",
			zap.Int("index", res.DiseaseIndex), zap.String("rule", res.Rule), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	return &Prediction{
		ID:           id,
		Condition:    res.Condition,
		Confidence:   classify.Clamp(res.Confidence),
		DiseaseIndex: res.DiseaseIndex,
		DiseaseName:  entry.Name,
		Remedy:       entry.Remedy,
		Rule:         res.Rule,
	}, nil
}
