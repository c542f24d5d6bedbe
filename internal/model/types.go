package model

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Metadata describes an exported ONNX graph: tensor names and shapes, the
// class list and the input normalisation it was trained with.
type Metadata struct {
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	// LabelsFile, relative to the metadata file, holds one class name per
	// line. Used when Classes is empty (e.g. 1000 ImageNet labels).
	LabelsFile string `json:"labels_file"`
	ImageSize  int    `json:"image_size"`
	// Mean and Std normalise each input channel as (v-mean)/std. Zero Std
	// leaves the channel in [0,1].
	Mean [3]float32 `json:"mean"`
	Std  [3]float32 `json:"std"`
	// Softmax is set when the graph emits logits rather than probabilities.
	Softmax bool `json:"softmax"`
}

// InputSize returns the number of float32 values the graph consumes.
func (m Metadata) InputSize() int {
	return product(m.InputShape)
}

// OutputSize returns the number of float32 values the graph produces.
func (m Metadata) OutputSize() int {
	return product(m.OutputShape)
}

func product(shape []int64) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

// LoadMetadata reads and validates a metadata JSON file.
func LoadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if md.InputName == "" {
		md.InputName = "input"
	}
	if md.OutputName == "" {
		md.OutputName = "output"
	}
	if len(md.Classes) == 0 && md.LabelsFile != "" {
		labelsPath := md.LabelsFile
		if !filepath.IsAbs(labelsPath) {
			labelsPath = filepath.Join(filepath.Dir(path), labelsPath)
		}
		if md.Classes, err = readLabels(labelsPath); err != nil {
			return Metadata{}, err
		}
	}
	if err := md.validate(); err != nil {
		return Metadata{}, fmt.Errorf("invalid metadata %s: %w", path, err)
	}
	return md, nil
}

func (m Metadata) validate() error {
	if m.InputSize() <= 0 {
		return fmt.Errorf("input_shape %v is empty", m.InputShape)
	}
	if m.OutputSize() <= 0 {
		return fmt.Errorf("output_shape %v is empty", m.OutputShape)
	}
	if len(m.Classes) == 0 {
		return fmt.Errorf("no classes")
	}
	if len(m.Classes) > m.OutputSize() {
		return fmt.Errorf("%d classes for %d outputs", len(m.Classes), m.OutputSize())
	}
	if m.ImageSize <= 0 {
		return fmt.Errorf("image_size must be positive")
	}
	if want := 3 * m.ImageSize * m.ImageSize; m.InputSize() != want {
		return fmt.Errorf("input_shape %v does not hold a 3x%dx%d image", m.InputShape, m.ImageSize, m.ImageSize)
	}
	return nil
}

func readLabels(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			labels = append(labels, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	return labels, nil
}
