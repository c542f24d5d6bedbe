package classify

// Thresholds are the cut points of the rule cascade. The defaults were
// picked by eye on sample photos and are not calibrated against a dataset.
type Thresholds struct {
	HealthyGreenMin    float64 `yaml:"healthy_green_min" json:"healthy_green_min"`
	HealthyRedStdMax   float64 `yaml:"healthy_red_std_max" json:"healthy_red_std_max"`
	HealthyGreenStdMax float64 `yaml:"healthy_green_std_max" json:"healthy_green_std_max"`
	HealthyBlueMax     float64 `yaml:"healthy_blue_max" json:"healthy_blue_max"`

	// Lower edge of the moderately healthy green band; the upper edge is
	// HealthyGreenMin.
	ModerateGreenMin  float64 `yaml:"moderate_green_min" json:"moderate_green_min"`
	ModerateRedStdMax float64 `yaml:"moderate_red_std_max" json:"moderate_red_std_max"`

	LateBlightRedMin     float64 `yaml:"late_blight_red_min" json:"late_blight_red_min"`
	LateBlightGreenMax   float64 `yaml:"late_blight_green_max" json:"late_blight_green_max"`
	LateBlightBlueStdMin float64 `yaml:"late_blight_blue_std_min" json:"late_blight_blue_std_min"`

	EarlyBlightGreenMax float64 `yaml:"early_blight_green_max" json:"early_blight_green_max"`
	EarlyBlightRedMin   float64 `yaml:"early_blight_red_min" json:"early_blight_red_min"`

	MildewRedMin     float64 `yaml:"mildew_red_min" json:"mildew_red_min"`
	MildewGreenMin   float64 `yaml:"mildew_green_min" json:"mildew_green_min"`
	MildewBlueStdMax float64 `yaml:"mildew_blue_std_max" json:"mildew_blue_std_max"`

	// Leaf spot green band is (LeafSpotGreenMin, ModerateGreenMin).
	LeafSpotGreenMin  float64 `yaml:"leaf_spot_green_min" json:"leaf_spot_green_min"`
	LeafSpotRedStdMin float64 `yaml:"leaf_spot_red_std_min" json:"leaf_spot_red_std_min"`

	DeficiencyBlueMin  float64 `yaml:"deficiency_blue_min" json:"deficiency_blue_min"`
	DeficiencyGreenMax float64 `yaml:"deficiency_green_max" json:"deficiency_green_max"`

	// All three channel deviations must exceed this for a pest verdict.
	PestStdMin float64 `yaml:"pest_std_min" json:"pest_std_min"`
}

// DefaultThresholds returns the stock rule cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HealthyGreenMin:    0.5,
		HealthyRedStdMax:   0.2,
		HealthyGreenStdMax: 0.25,
		HealthyBlueMax:     0.4,

		ModerateGreenMin:  0.45,
		ModerateRedStdMax: 0.25,

		LateBlightRedMin:     0.55,
		LateBlightGreenMax:   0.4,
		LateBlightBlueStdMin: 0.2,

		EarlyBlightGreenMax: 0.35,
		EarlyBlightRedMin:   0.45,

		MildewRedMin:     0.6,
		MildewGreenMin:   0.5,
		MildewBlueStdMax: 0.15,

		LeafSpotGreenMin:  0.4,
		LeafSpotRedStdMin: 0.2,

		DeficiencyBlueMin:  0.5,
		DeficiencyGreenMax: 0.5,

		PestStdMin: 0.25,
	}
}
