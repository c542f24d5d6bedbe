package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrisense/cropdoc/internal/ingest"
)

type fakeClassifier struct {
	labels []Label
	err    error
	delay  time.Duration
}

func (f *fakeClassifier) Classify(ctx context.Context, t *ingest.Tensor) ([]Label, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.labels, f.err
}

type fakeProvider struct {
	clf LabelClassifier
	err error
}

func (p *fakeProvider) Get(context.Context) (LabelClassifier, error) {
	return p.clf, p.err
}

func verifierFor(labels ...Label) *Verifier {
	return New(&fakeProvider{clf: &fakeClassifier{labels: labels}})
}

func TestIsPlantAcceptsPlantLabels(t *testing.T) {
	tests := []struct {
		labels  []Label
		matched string
		keyword string
	}{
		{[]Label{{"ear", 0.6}}, "ear", "ear"},
		{[]Label{{"pot, flowerpot", 0.4}, {"daisy", 0.3}}, "pot, flowerpot", "flower"},
		{[]Label{{"sports car", 0.5}, {"Corn", 0.2}}, "Corn", "corn"},
		{[]Label{{"hay", 0.9}}, "hay", "hay"},
		{[]Label{{"cardoon", 0.1}, {"Leaf beetle", 0.1}}, "Leaf beetle", "leaf"},
	}
	for _, tt := range tests {
		v, err := verifierFor(tt.labels...).IsPlant(context.Background(), ingest.NewTensor(2))
		require.NoError(t, err)
		assert.True(t, v.IsPlant, "%v", tt.labels)
		assert.Equal(t, tt.matched, v.Matched)
		assert.Equal(t, tt.keyword, v.Keyword)
	}
}

func TestIsPlantRejectsCar(t *testing.T) {
	v, err := verifierFor(Label{"sports car", 0.9}, Label{"wheel", 0.05}).IsPlant(context.Background(), ingest.NewTensor(2))
	require.NoError(t, err)
	assert.False(t, v.IsPlant)
	assert.Empty(t, v.Matched)
	assert.Len(t, v.Labels, 2)
}

func TestCustomKeywords(t *testing.T) {
	v := New(&fakeProvider{clf: &fakeClassifier{labels: []Label{{"sports car", 0.9}}}}, WithKeywords([]string{" CAR "}))
	verdict, err := v.IsPlant(context.Background(), ingest.NewTensor(2))
	require.NoError(t, err)
	assert.True(t, verdict.IsPlant)
	assert.Equal(t, "car", verdict.Keyword)
}

func TestProviderFailureFailsClosed(t *testing.T) {
	v := New(&fakeProvider{err: errors.New("weights missing")})
	_, err := v.IsPlant(context.Background(), ingest.NewTensor(2))
	assert.ErrorIs(t, err, ErrModelUnavailable)

	_, err = New(nil).IsPlant(context.Background(), ingest.NewTensor(2))
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestClassifierErrorIsNotUnavailable(t *testing.T) {
	boom := errors.New("inference blew up")
	v := New(&fakeProvider{clf: &fakeClassifier{err: boom}})
	_, err := v.IsPlant(context.Background(), ingest.NewTensor(2))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrModelUnavailable)
}

func TestProviderErrorKeepsCause(t *testing.T) {
	cause := errors.New("weights missing")
	_, err := New(&fakeProvider{err: cause}).IsPlant(context.Background(), ingest.NewTensor(2))
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.ErrorIs(t, err, cause)
}

func TestCallerGivingUpIsNotUnavailable(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(&fakeProvider{err: context.Canceled}).IsPlant(ctx, ingest.NewTensor(2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrModelUnavailable)
}

func TestTimeout(t *testing.T) {
	v := New(&fakeProvider{clf: &fakeClassifier{delay: time.Second, labels: []Label{{"leaf", 1}}}},
		WithTimeout(10*time.Millisecond))
	_, err := v.IsPlant(context.Background(), ingest.NewTensor(2))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
