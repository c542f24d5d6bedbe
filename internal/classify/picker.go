package classify

import (
	"math"
	"math/rand"
	"sync"

	"github.com/agrisense/cropdoc/internal/features"
	"github.com/agrisense/cropdoc/internal/remedy"
)

// fallbackDiseases is the set the fallback branch chooses from.
var fallbackDiseases = [...]int{
	remedy.EarlyBlight,
	remedy.LateBlight,
	remedy.PowderyMildew,
	remedy.LeafSpot,
}

// Picker selects a disease index for the fallback branch. Implementations
// must only return members of the fallback set.
type Picker interface {
	Pick(fv features.FeatureVector) int
}

// FingerprintPicker derives the index from the feature fingerprint, so the
// same image always gets the same pick.
type FingerprintPicker struct{}

// Pick implements Picker.
func (FingerprintPicker) Pick(fv features.FeatureVector) int {
	bucket := int(math.Floor(fv.Fingerprint()*10)) % len(fallbackDiseases)
	if bucket < 0 {
		bucket += len(fallbackDiseases)
	}
	return fallbackDiseases[bucket]
}

// RandomPicker draws uniformly from the fallback set. It is safe for
// concurrent use.
type RandomPicker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomPicker returns a RandomPicker seeded with seed.
func NewRandomPicker(seed int64) *RandomPicker {
	return &RandomPicker{rng: rand.New(rand.NewSource(seed))}
}

// Pick implements Picker.
func (p *RandomPicker) Pick(features.FeatureVector) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fallbackDiseases[p.rng.Intn(len(fallbackDiseases))]
}
