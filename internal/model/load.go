package model

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agrisense/cropdoc/internal/config"
	"github.com/agrisense/cropdoc/internal/verify"
)

// Cache names.
const (
	VerifierName = "verifier"
	DiseaseName  = "disease"
)

// NewVerifierCache returns a lazily loaded ONNX label classifier for the
// plant gate.
func NewVerifierCache(cfg config.ModelsConfig, imageSize int, logger *zap.Logger) *Cache[verify.LabelClassifier] {
	return NewCache(VerifierName, func(ctx context.Context) (verify.LabelClassifier, error) {
		sess, err := openSession(cfg.RuntimeLibrary, cfg.VerifierModel, cfg.VerifierMetadata, imageSize)
		if err != nil {
			return nil, err
		}
		return NewLabelModel(sess, sess.Metadata, cfg.VerifierTopK), nil
	}, logger)
}

// NewDiseaseCache returns a lazily loaded condition network, or nil when
// none is configured.
func NewDiseaseCache(cfg config.ModelsConfig, imageSize int, logger *zap.Logger) *Cache[DiseaseNetwork] {
	if cfg.DiseaseModel == "" {
		return nil
	}
	return NewCache(DiseaseName, func(ctx context.Context) (DiseaseNetwork, error) {
		sess, err := openSession(cfg.RuntimeLibrary, cfg.DiseaseModel, cfg.DiseaseMetadata, imageSize)
		if err != nil {
			return nil, err
		}
		m, err := NewDiseaseModel(sess, sess.Metadata)
		if err != nil {
			sess.Close()
			return nil, err
		}
		return m, nil
	}, logger)
}

func openSession(libPath, modelPath, metadataPath string, imageSize int) (*Session, error) {
	md, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}
	if md.ImageSize != imageSize {
		return nil, fmt.Errorf("model %s expects %dx%d images, pipeline produces %dx%d",
			modelPath, md.ImageSize, md.ImageSize, imageSize, imageSize)
	}
	return NewSession(libPath, modelPath, md)
}
