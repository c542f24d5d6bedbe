package crophealth

import (
	"errors"

	"go.uber.org/zap"

	"github.com/agrisense/cropdoc/internal/classify"
	"github.com/agrisense/cropdoc/internal/config"
	"github.com/agrisense/cropdoc/internal/ingest"
	"github.com/agrisense/cropdoc/internal/model"
	"github.com/agrisense/cropdoc/internal/verify"
)

// Service is an Analyzer together with the model caches it owns.
type Service struct {
	*Analyzer

	verifier *model.Cache[verify.LabelClassifier]
	disease  *model.Cache[model.DiseaseNetwork]
}

// FromConfig wires an Analyzer backed by lazily loaded ONNX models. No
// model is loaded until the first analysis.
func FromConfig(cfg *config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.Analysis.ImageSize

	svc := &Service{
		verifier: model.NewVerifierCache(cfg.Models, size, logger),
		disease:  model.NewDiseaseCache(cfg.Models, size, logger),
	}

	var picker classify.Picker = classify.FingerprintPicker{}
	if seed := cfg.Analysis.FallbackSeed; seed != nil {
		picker = classify.NewRandomPicker(*seed)
	}

	gate := verify.New(svc.verifier,
		verify.WithKeywords(cfg.Analysis.PlantKeywords),
		verify.WithTimeout(cfg.InferenceTimeout()),
		verify.WithLogger(logger))

	opts := []Option{
		WithTextureWindow(cfg.Analysis.TextureWindow),
		WithInferenceTimeout(cfg.InferenceTimeout()),
		WithLogger(logger),
	}
	if svc.disease != nil {
		opts = append(opts, WithNetwork(svc.disease))
	}

	svc.Analyzer = New(
		ingest.New(ingest.WithSize(size), ingest.WithLogger(logger)),
		gate,
		classify.New(classify.WithThresholds(cfg.Analysis.Thresholds), classify.WithPicker(picker)),
		opts...,
	)
	return svc
}

// Close releases any loaded models.
func (s *Service) Close() error {
	var errs []error
	errs = append(errs, s.verifier.Close())
	if s.disease != nil {
		errs = append(errs, s.disease.Close())
	}
	return errors.Join(errs...)
}
