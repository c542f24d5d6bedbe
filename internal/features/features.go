// Package features computes colour statistics over an RGB tensor.
package features

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/agrisense/cropdoc/internal/ingest"
)

// DefaultTextureWindow is the edge length of the pooling window used by
// TextureVariance.
const DefaultTextureWindow = 5

// FeatureVector is the per-channel mean and population standard deviation of
// an image, each in [0,1].
type FeatureVector struct {
	RedMean   float64 `json:"redMean"`
	GreenMean float64 `json:"greenMean"`
	BlueMean  float64 `json:"blueMean"`
	RedStd    float64 `json:"redStd"`
	GreenStd  float64 `json:"greenStd"`
	BlueStd   float64 `json:"blueStd"`
}

// Fingerprint folds the vector into one weighted scalar. Distinct images
// usually land on distinct fingerprints.
func (f FeatureVector) Fingerprint() float64 {
	return f.RedMean + f.GreenMean*2 + f.BlueMean*3 + f.RedStd*4 + f.GreenStd*5 + f.BlueStd*6
}

// Extract computes the FeatureVector of t. It does not modify t.
func Extract(t *ingest.Tensor) FeatureVector {
	buf := make([]float64, t.Size*t.Size)
	var mean, std [ingest.Channels]float64
	for c := 0; c < ingest.Channels; c++ {
		for i, v := range t.Plane(c) {
			buf[i] = float64(v)
		}
		mean[c], std[c] = stat.PopMeanStdDev(buf, nil)
	}
	return FeatureVector{
		RedMean:   mean[0],
		GreenMean: mean[1],
		BlueMean:  mean[2],
		RedStd:    std[0],
		GreenStd:  std[1],
		BlueStd:   std[2],
	}
}

// TextureVariance average-pools every channel of t with a window x window
// kernel (valid padding, stride 1) and returns the mean of the pooled
// values. It returns 0 when the window does not fit inside the image.
func TextureVariance(t *ingest.Tensor, window int) float64 {
	if window <= 0 {
		window = DefaultTextureWindow
	}
	out := t.Size - window + 1
	if out <= 0 {
		return 0
	}

	// Summed-area table with a zero border row and column.
	stride := t.Size + 1
	sat := make([]float64, stride*stride)
	pooled := make([]float64, 0, ingest.Channels*out*out)
	area := float64(window * window)

	for c := 0; c < ingest.Channels; c++ {
		plane := t.Plane(c)
		for y := 0; y < t.Size; y++ {
			var row float64
			for x := 0; x < t.Size; x++ {
				row += float64(plane[y*t.Size+x])
				sat[(y+1)*stride+x+1] = sat[y*stride+x+1] + row
			}
		}
		for y := 0; y < out; y++ {
			for x := 0; x < out; x++ {
				y2, x2 := y+window, x+window
				sum := sat[y2*stride+x2] - sat[y*stride+x2] - sat[y2*stride+x] + sat[y*stride+x]
				pooled = append(pooled, sum/area)
			}
		}
	}
	return floats.Sum(pooled) / float64(len(pooled))
}
