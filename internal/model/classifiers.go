package model

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/agrisense/cropdoc/internal/ingest"
	"github.com/agrisense/cropdoc/internal/verify"
)

// DefaultTopK is the number of labels a LabelModel reports.
const DefaultTopK = 5

// Runner executes a graph on a flat float32 input.
type Runner interface {
	Run(ctx context.Context, input []float32) ([]float32, error)
	Close() error
}

// LabelModel is a general-purpose image labeller (ImageNet style) backed
// by a Runner.
type LabelModel struct {
	runner Runner
	md     Metadata
	topK   int
}

// NewLabelModel wraps runner. topK <= 0 means DefaultTopK.
func NewLabelModel(runner Runner, md Metadata, topK int) *LabelModel {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &LabelModel{runner: runner, md: md, topK: topK}
}

// Classify implements verify.LabelClassifier. Labels are returned by
// descending score.
func (m *LabelModel) Classify(ctx context.Context, t *ingest.Tensor) ([]verify.Label, error) {
	out, err := run(ctx, m.runner, m.md, t)
	if err != nil {
		return nil, err
	}

	labels := make([]verify.Label, 0, len(m.md.Classes))
	for i, name := range m.md.Classes {
		labels = append(labels, verify.Label{Name: name, Score: out[i]})
	}
	slices.SortStableFunc(labels, func(a, b verify.Label) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(labels) > m.topK {
		labels = labels[:m.topK]
	}
	return labels, nil
}

// Close releases the runner.
func (m *LabelModel) Close() error {
	return m.runner.Close()
}

// DiseaseNetwork returns probabilities over {Healthy, NeedsAttention,
// DiseaseDetected} for an image.
type DiseaseNetwork interface {
	Probabilities(ctx context.Context, t *ingest.Tensor) ([]float32, error)
}

// DiseaseModel is the trained three-way condition network.
type DiseaseModel struct {
	runner Runner
	md     Metadata
}

// NewDiseaseModel wraps runner. The metadata must declare exactly three
// classes in the order Healthy, NeedsAttention, DiseaseDetected.
func NewDiseaseModel(runner Runner, md Metadata) (*DiseaseModel, error) {
	if len(md.Classes) != 3 {
		return nil, fmt.Errorf("disease network must have 3 classes, metadata lists %d", len(md.Classes))
	}
	return &DiseaseModel{runner: runner, md: md}, nil
}

// Probabilities returns the network's probability per condition.
func (m *DiseaseModel) Probabilities(ctx context.Context, t *ingest.Tensor) ([]float32, error) {
	out, err := run(ctx, m.runner, m.md, t)
	if err != nil {
		return nil, err
	}
	return out[:3], nil
}

// Close releases the runner.
func (m *DiseaseModel) Close() error {
	return m.runner.Close()
}

func run(ctx context.Context, r Runner, md Metadata, t *ingest.Tensor) ([]float32, error) {
	if t.Size != md.ImageSize {
		return nil, fmt.Errorf("tensor is %dx%d, model expects %dx%d", t.Size, t.Size, md.ImageSize, md.ImageSize)
	}
	out, err := r.Run(ctx, Preprocess(t, md))
	if err != nil {
		return nil, err
	}
	if len(out) < len(md.Classes) {
		return nil, fmt.Errorf("model returned %d values for %d classes", len(out), len(md.Classes))
	}
	out = out[:len(md.Classes)]
	if md.Softmax {
		out = Softmax(out)
	}
	return out, nil
}

// Preprocess copies the tensor into a model input, applying the metadata's
// per-channel normalisation.
func Preprocess(t *ingest.Tensor, md Metadata) []float32 {
	input := make([]float32, len(t.Data))
	copy(input, t.Data)
	plane := t.Size * t.Size
	for c := 0; c < ingest.Channels; c++ {
		std := md.Std[c]
		if std == 0 {
			continue
		}
		mean := md.Mean[c]
		for i := c * plane; i < (c+1)*plane; i++ {
			input[i] = (input[i] - mean) / std
		}
	}
	return input
}

// Softmax returns a normalised copy of logits.
func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxVal := slices.Max(logits)
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxVal))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}
