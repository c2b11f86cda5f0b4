package detection

import "github.com/ironsheep/exam-diagrams/internal/imaging"

// Params gathers every tunable constant of the detectors. The defaults are
// empirically tuned values for 300 DPI exam pages; they carry no deeper
// derivation and are meant to be overridden from configuration.
type Params struct {
	Regions        RegionParams         `yaml:"regions" json:"regions"`
	ContourDensity ContourDensityParams `yaml:"contour_density" json:"contour_density"`
	Grid           GridParams           `yaml:"grid" json:"grid"`
	Morph          MorphParams          `yaml:"morph" json:"morph"`
	Blob           BlobParams           `yaml:"blob" json:"blob"`
	Layout         LayoutParams         `yaml:"layout" json:"layout"`

	// OverlapThreshold is the fraction of the smaller box's area above which
	// two candidates are considered duplicates.
	OverlapThreshold float64 `yaml:"overlap_threshold" json:"overlap_threshold"`
}

// RegionParams drives page region classification.
type RegionParams struct {
	EdgeMap imaging.EdgeMapOptions `yaml:"edge_map" json:"edge_map"`

	MinArea        int     `yaml:"min_area" json:"min_area"`
	DiagramMinArea int     `yaml:"diagram_min_area" json:"diagram_min_area"`
	DiagramMinAR   float64 `yaml:"diagram_min_aspect" json:"diagram_min_aspect"`
	DiagramMaxAR   float64 `yaml:"diagram_max_aspect" json:"diagram_max_aspect"`
	MinEdgeDensity float64 `yaml:"min_edge_density" json:"min_edge_density"`
	MaxFillRatio   float64 `yaml:"max_fill_ratio" json:"max_fill_ratio"`
	TextMinAR      float64 `yaml:"text_min_aspect" json:"text_min_aspect"`

	Hough         HoughParams `yaml:"hough" json:"hough"`
	HoughMinLines int         `yaml:"hough_min_lines" json:"hough_min_lines"`
	HoughPadding  int         `yaml:"hough_padding" json:"hough_padding"`
	HoughMinArea  int         `yaml:"hough_min_area" json:"hough_min_area"`
	HoughMinSide  int         `yaml:"hough_min_side" json:"hough_min_side"`
}

// ContourDensityParams drives contour scoring for diagram candidates.
type ContourDensityParams struct {
	CannyLow         float64 `yaml:"canny_low" json:"canny_low"`
	CannyHigh        float64 `yaml:"canny_high" json:"canny_high"`
	DilateKernel     int     `yaml:"dilate_kernel" json:"dilate_kernel"`
	DilateIterations int     `yaml:"dilate_iterations" json:"dilate_iterations"`

	// CellSize is the side of the square cells of the local density grid.
	CellSize int `yaml:"cell_size" json:"cell_size"`
	// Percentile of cell densities used as the dense-cell threshold.
	Percentile float64 `yaml:"percentile" json:"percentile"`
	// DensityFactor scales the threshold a contour's cell must exceed.
	DensityFactor float64 `yaml:"density_factor" json:"density_factor"`

	MinArea         int     `yaml:"min_area" json:"min_area"`
	MaxPageFraction float64 `yaml:"max_page_fraction" json:"max_page_fraction"`
	MaxWidthFrac    float64 `yaml:"max_width_fraction" json:"max_width_fraction"`
	MaxHeightFrac   float64 `yaml:"max_height_fraction" json:"max_height_fraction"`
	MinAR           float64 `yaml:"min_aspect" json:"min_aspect"`
	MaxAR           float64 `yaml:"max_aspect" json:"max_aspect"`
}

// GridParams drives coordinate-grid detection.
type GridParams struct {
	CannyLow  float64 `yaml:"canny_low" json:"canny_low"`
	CannyHigh float64 `yaml:"canny_high" json:"canny_high"`

	// LineKernel is the length of the 1-pixel-thick opening element used to
	// isolate horizontal and vertical rulings.
	LineKernel int `yaml:"line_kernel" json:"line_kernel"`
	// JoinKernel dilates the ruling maps before intersecting them, so corners
	// rounded by edge thinning still meet.
	JoinKernel int `yaml:"join_kernel" json:"join_kernel"`
	// ClusterGap is the largest distance between neighbouring crossings of
	// the same grid.
	ClusterGap int `yaml:"cluster_gap" json:"cluster_gap"`
	// PositionTolerance merges crossing rows or columns closer than this.
	PositionTolerance int `yaml:"position_tolerance" json:"position_tolerance"`

	MinClusterArea int     `yaml:"min_cluster_area" json:"min_cluster_area"`
	MinPoints      int     `yaml:"min_points" json:"min_points"`
	MinRows        int     `yaml:"min_rows" json:"min_rows"`
	MinCols        int     `yaml:"min_cols" json:"min_cols"`
	MaxCV          float64 `yaml:"max_cv" json:"max_cv"`
	MinSpacing     float64 `yaml:"min_spacing" json:"min_spacing"`
	MinArea        int     `yaml:"min_area" json:"min_area"`

	AdaptiveBlock  int         `yaml:"adaptive_block" json:"adaptive_block"`
	AdaptiveC      float64     `yaml:"adaptive_c" json:"adaptive_c"`
	Hough          HoughParams `yaml:"hough" json:"hough"`
	MinLines       int         `yaml:"min_lines" json:"min_lines"`
	LineMinSpacing float64     `yaml:"line_min_spacing" json:"line_min_spacing"`
	LineMinArea    int         `yaml:"line_min_area" json:"line_min_area"`
}

// MorphParams drives the closing + Otsu detector.
type MorphParams struct {
	CloseKernel     int     `yaml:"close_kernel" json:"close_kernel"`
	MinArea         int     `yaml:"min_area" json:"min_area"`
	MaxPageFraction float64 `yaml:"max_page_fraction" json:"max_page_fraction"`
	MinAR           float64 `yaml:"min_aspect" json:"min_aspect"`
	MaxAR           float64 `yaml:"max_aspect" json:"max_aspect"`
	MaxSideFraction float64 `yaml:"max_side_fraction" json:"max_side_fraction"`
	MaxConfidence   float64 `yaml:"max_confidence" json:"max_confidence"`
}

// BlobParams drives keypoint detection over multiple thresholds.
type BlobParams struct {
	MinThreshold     int     `yaml:"min_threshold" json:"min_threshold"`
	MaxThreshold     int     `yaml:"max_threshold" json:"max_threshold"`
	ThresholdStep    int     `yaml:"threshold_step" json:"threshold_step"`
	MinArea          int     `yaml:"min_area" json:"min_area"`
	MaxArea          int     `yaml:"max_area" json:"max_area"`
	MinDistance      float64 `yaml:"min_distance" json:"min_distance"`
	MinRepeatability int     `yaml:"min_repeatability" json:"min_repeatability"`
	MinKeypoints     int     `yaml:"min_keypoints" json:"min_keypoints"`
	MinEnvelopeArea  int     `yaml:"min_envelope_area" json:"min_envelope_area"`
	Confidence       float64 `yaml:"confidence" json:"confidence"`
}

// LayoutParams drives the adaptive-threshold layout fallback.
type LayoutParams struct {
	AdaptiveBlock int     `yaml:"adaptive_block" json:"adaptive_block"`
	AdaptiveC     float64 `yaml:"adaptive_c" json:"adaptive_c"`
	MinArea       int     `yaml:"min_area" json:"min_area"`
	MaxArea       int     `yaml:"max_area" json:"max_area"`
	MinAR         float64 `yaml:"min_aspect" json:"min_aspect"`
	MaxAR         float64 `yaml:"max_aspect" json:"max_aspect"`
	MaxConfidence float64 `yaml:"max_confidence" json:"max_confidence"`
	MaxResults    int     `yaml:"max_results" json:"max_results"`
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		Regions: RegionParams{
			EdgeMap:        imaging.DefaultEdgeMapOptions(),
			MinArea:        2000,
			DiagramMinArea: 10000,
			DiagramMinAR:   0.2,
			DiagramMaxAR:   4.0,
			MinEdgeDensity: 0.005,
			MaxFillRatio:   0.95,
			TextMinAR:      3.0,
			Hough:          HoughParams{Threshold: 80, MinLineLength: 80, MaxLineGap: 30},
			HoughMinLines:  5,
			HoughPadding:   40,
			HoughMinArea:   8000,
			HoughMinSide:   100,
		},
		ContourDensity: ContourDensityParams{
			CannyLow:         30,
			CannyHigh:        100,
			DilateKernel:     5,
			DilateIterations: 3,
			CellSize:         100,
			Percentile:       90,
			DensityFactor:    0.65,
			MinArea:          10000,
			MaxPageFraction:  0.35,
			MaxWidthFrac:     0.65,
			MaxHeightFrac:    0.60,
			MinAR:            0.3,
			MaxAR:            4.0,
		},
		Grid: GridParams{
			CannyLow:          50,
			CannyHigh:         150,
			LineKernel:        40,
			JoinKernel:        5,
			ClusterGap:        150,
			PositionTolerance: 6,
			MinClusterArea:    1000,
			MinPoints:         9,
			MinRows:           3,
			MinCols:           3,
			MaxCV:             2.0,
			MinSpacing:        5,
			MinArea:           10000,
			AdaptiveBlock:     15,
			AdaptiveC:         4,
			Hough:             HoughParams{Threshold: 50, MinLineLength: 50, MaxLineGap: 10},
			MinLines:          7,
			LineMinSpacing:    15,
			LineMinArea:       8000,
		},
		Morph: MorphParams{
			CloseKernel:     15,
			MinArea:         15000,
			MaxPageFraction: 0.4,
			MinAR:           0.2,
			MaxAR:           5.0,
			MaxSideFraction: 0.7,
			MaxConfidence:   95,
		},
		Blob: BlobParams{
			MinThreshold:     10,
			MaxThreshold:     220,
			ThresholdStep:    10,
			MinArea:          1000,
			MaxArea:          5000,
			MinDistance:      10,
			MinRepeatability: 2,
			MinKeypoints:     6,
			MinEnvelopeArea:  20000,
			Confidence:       75,
		},
		Layout: LayoutParams{
			AdaptiveBlock: 11,
			AdaptiveC:     2,
			MinArea:       15000,
			MaxArea:       400000,
			MinAR:         0.2,
			MaxAR:         5.0,
			MaxConfidence: 85,
			MaxResults:    5,
		},
		OverlapThreshold: 0.5,
	}
}
