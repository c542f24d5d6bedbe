package classify

import "fmt"

// Condition is the overall health verdict for a crop image.
type Condition int

const (
	Healthy Condition = iota
	NeedsAttention
	DiseaseDetected
)

var conditionNames = [...]string{
	Healthy:         "Healthy",
	NeedsAttention:  "Needs Attention",
	DiseaseDetected: "Disease Detected",
}

func (c Condition) String() string {
	if c < 0 || int(c) >= len(conditionNames) {
		return fmt.Sprintf("Condition(%d)", int(c))
	}
	return conditionNames[c]
}

// MarshalText implements encoding.TextMarshaler.
func (c Condition) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= len(conditionNames) {
		return nil, fmt.Errorf("unknown condition %d", int(c))
	}
	return []byte(conditionNames[c]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Condition) UnmarshalText(text []byte) error {
	for i, name := range conditionNames {
		if name == string(text) {
			*c = Condition(i)
			return nil
		}
	}
	return fmt.Errorf("unknown condition %q", text)
}
