package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/cropdoc/internal/ingest"
)

type fakeRunner struct {
	out    []float32
	err    error
	input  []float32
	closed bool
}

func (f *fakeRunner) Run(ctx context.Context, input []float32) ([]float32, error) {
	f.input = input
	return f.out, f.err
}

func (f *fakeRunner) Close() error {
	f.closed = true
	return nil
}

func labelMetadata(classes ...string) Metadata {
	return Metadata{
		InputShape:  []int64{1, 3, 2, 2},
		OutputShape: []int64{1, int64(len(classes))},
		Classes:     classes,
		ImageSize:   2,
	}
}

func TestLabelModelRanksAndTruncates(t *testing.T) {
	r := &fakeRunner{out: []float32{0.1, 0.5, 0.05, 0.3, 0.05}}
	m := NewLabelModel(r, labelMetadata("car", "ear", "dog", "daisy", "hay"), 3)

	labels, err := m.Classify(context.Background(), ingest.NewTensor(2))
	require.NoError(t, err)
	require.Len(t, labels, 3)
	assert.Equal(t, "ear", labels[0].Name)
	assert.Equal(t, "daisy", labels[1].Name)
	assert.Equal(t, "car", labels[2].Name)

	require.NoError(t, m.Close())
	assert.True(t, r.closed)
}

func TestLabelModelSoftmax(t *testing.T) {
	md := labelMetadata("a", "b")
	md.Softmax = true
	m := NewLabelModel(&fakeRunner{out: []float32{0, 0}}, md, 0)
	labels, err := m.Classify(context.Background(), ingest.NewTensor(2))
	require.NoError(t, err)
	require.Len(t, labels, 2)
	assert.InDelta(t, 0.5, labels[0].Score, 1e-6)
}

func TestLabelModelErrors(t *testing.T) {
	boom := errors.New("boom")
	m := NewLabelModel(&fakeRunner{err: boom}, labelMetadata("a"), 1)
	_, err := m.Classify(context.Background(), ingest.NewTensor(2))
	assert.ErrorIs(t, err, boom)

	_, err = m.Classify(context.Background(), ingest.NewTensor(3))
	assert.Error(t, err)

	short := NewLabelModel(&fakeRunner{out: []float32{1}}, labelMetadata("a", "b"), 1)
	_, err = short.Classify(context.Background(), ingest.NewTensor(2))
	assert.Error(t, err)
}

func TestDiseaseModel(t *testing.T) {
	_, err := NewDiseaseModel(&fakeRunner{}, labelMetadata("a", "b"))
	assert.Error(t, err)

	r := &fakeRunner{out: []float32{0.2, 0.1, 0.7}}
	m, err := NewDiseaseModel(r, labelMetadata("healthy", "attention", "disease"))
	require.NoError(t, err)
	probs, err := m.Probabilities(context.Background(), ingest.NewTensor(2))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.2, 0.1, 0.7}, probs)
	require.NoError(t, m.Close())
	assert.True(t, r.closed)
}

func TestPreprocessNormalises(t *testing.T) {
	tensor := ingest.NewTensor(1)
	tensor.Set(0, 0, 0, 0.5)
	tensor.Set(1, 0, 0, 0.5)
	tensor.Set(2, 0, 0, 0.5)

	md := Metadata{Mean: [3]float32{0.5, 0.25, 0}, Std: [3]float32{0.5, 0.25, 0}}
	in := Preprocess(tensor, md)
	assert.InDelta(t, 0.0, in[0], 1e-6)
	assert.InDelta(t, 1.0, in[1], 1e-6)
	assert.InDelta(t, 0.5, in[2], 1e-6, "zero std leaves channel untouched")
	assert.InDelta(t, 0.5, tensor.At(0, 0, 0), 1e-6, "input tensor not modified")
}

func TestSoftmax(t *testing.T) {
	out := Softmax([]float32{1000, 1000, 1000, 1000})
	for _, v := range out {
		assert.InDelta(t, 0.25, v, 1e-6)
	}
	assert.Empty(t, Softmax(nil))
}

func TestLoadMetadata(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels.txt"), []byte("tench\n\ngoldfish\near\n"), 0o644))
	path := filepath.Join(dir, "meta.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"input_shape": [1, 3, 224, 224],
		"output_shape": [1, 3],
		"labels_file": "labels.txt",
		"image_size": 224,
		"softmax": true
	}`), 0o644))

	md, err := LoadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"tench", "goldfish", "ear"}, md.Classes)
	assert.Equal(t, "input", md.InputName)
	assert.Equal(t, "output", md.OutputName)
	assert.Equal(t, 3*224*224, md.InputSize())
	assert.True(t, md.Softmax)
}

func TestLoadMetadataInvalid(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"bad-json.json":   `{`,
		"no-classes.json": `{"input_shape":[1,3,2,2],"output_shape":[1,2],"image_size":2}`,
		"shape.json":      `{"input_shape":[1,3,4,4],"output_shape":[1,1],"classes":["a"],"image_size":2}`,
		"too-many.json":   `{"input_shape":[1,3,2,2],"output_shape":[1,1],"classes":["a","b"],"image_size":2}`,
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := LoadMetadata(path)
		assert.Error(t, err, name)
	}
	_, err := LoadMetadata(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
