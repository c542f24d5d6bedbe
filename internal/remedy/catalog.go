// Package remedy holds the fixed disease catalog and resolves classifier
// output indices to a disease name and treatment advice.
package remedy

import (
	"errors"
	"fmt"
)

// ErrIndexOutOfRange is returned when a disease index has no catalog entry.
// The classifier only produces catalog indices, so seeing it means an
// internal inconsistency rather than bad input.
var ErrIndexOutOfRange = errors.New("disease index out of range")

// Entry is one row of the disease catalog.
type Entry struct {
	Name   string `json:"name"`
	Remedy string `json:"remedy"`
}

// Catalog indices. Order is fixed; classifiers refer to entries by position.
const (
	Healthy = iota
	EarlyBlight
	LateBlight
	PowderyMildew
	LeafSpot
	NutrientDeficiency
	PestInfestation
)

var catalog = [...]Entry{
	Healthy:            {Name: "Healthy", Remedy: "No action needed. Maintain proper care."},
	EarlyBlight:        {Name: "Early Blight", Remedy: "Apply fungicides like Mancozeb. Avoid overhead watering."},
	LateBlight:         {Name: "Late Blight", Remedy: "Use copper-based fungicides. Remove infected leaves immediately."},
	PowderyMildew:      {Name: "Powdery Mildew", Remedy: "Apply sulfur-based fungicides. Ensure proper air circulation."},
	LeafSpot:           {Name: "Leaf Spot", Remedy: "Use neem oil spray. Remove and destroy affected leaves."},
	NutrientDeficiency: {Name: "Nutrient Deficiency", Remedy: "Apply balanced fertilizer with micronutrients. Test soil pH."},
	PestInfestation:    {Name: "Pest Infestation", Remedy: "Use neem oil or appropriate insecticide. Introduce beneficial insects."},
}

// Len returns the number of catalog entries.
func Len() int {
	return len(catalog)
}

// Resolve returns the catalog entry at index.
func Resolve(index int) (Entry, error) {
	if index < 0 || index >= len(catalog) {
		return Entry{}, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, len(catalog))
	}
	return catalog[index], nil
}

// All returns a copy of the catalog in index order.
func All() []Entry {
	out := make([]Entry, len(catalog))
	copy(out, catalog[:])
	return out
}
