package cascade

// Options tunes tier gating, padding and the heuristic crop.
type Options struct {
	// ConfidenceFloor is the confidence a tier-one candidate must exceed.
	ConfidenceFloor float64 `yaml:"confidence_floor" json:"confidence_floor"`
	// MaxPerTier caps the crops taken from tiers one and two.
	MaxPerTier int `yaml:"max_per_tier" json:"max_per_tier"`

	DetectorPadding        int     `yaml:"detector_padding" json:"detector_padding"`
	ModelPadding           int     `yaml:"model_padding" json:"model_padding"`
	DefaultModelConfidence float64 `yaml:"default_model_confidence" json:"default_model_confidence"`

	// HeuristicTop and HeuristicBottom bound the last-resort crop as
	// fractions of the page height.
	HeuristicTop        float64 `yaml:"heuristic_top" json:"heuristic_top"`
	HeuristicBottom     float64 `yaml:"heuristic_bottom" json:"heuristic_bottom"`
	HeuristicConfidence float64 `yaml:"heuristic_confidence" json:"heuristic_confidence"`

	// Keywords mark a question as referring to a diagram. Matching is a
	// case-insensitive substring test.
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// DefaultKeywords are the words that suggest a question needs its figure.
var DefaultKeywords = []string{
	"diagram", "figure", "graph", "chart", "plot", "sketch", "grid", "map",
	"shape", "triangle", "circle", "polygon", "quadrilateral", "coordinate",
	"dot diagram",
}

// DefaultOptions returns the tuned defaults.
func DefaultOptions() Options {
	return Options{
		ConfidenceFloor:        85,
		MaxPerTier:             3,
		DetectorPadding:        40,
		ModelPadding:           50,
		DefaultModelConfidence: 60,
		HeuristicTop:           0.25,
		HeuristicBottom:        0.75,
		HeuristicConfidence:    70,
		Keywords:               append([]string(nil), DefaultKeywords...),
	}
}
