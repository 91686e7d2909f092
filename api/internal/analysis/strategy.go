package analysis

// Strategy is one of the six OCR processing modes. Each maps to a model
// chain and a prompt template downstream.
type Strategy string

const (
	StrategyLightweight Strategy = "lightweight"
	StrategyStandard    Strategy = "standard"
	StrategyHandwriting Strategy = "handwriting"
	StrategyBatch       Strategy = "batch"
	StrategyMixed       Strategy = "mixed"
	StrategyFallback    Strategy = "fallback"
)

// Strategies lists every mode in decision-priority-independent order.
func Strategies() []Strategy {
	return []Strategy{
		StrategyLightweight,
		StrategyStandard,
		StrategyHandwriting,
		StrategyBatch,
		StrategyMixed,
		StrategyFallback,
	}
}

func (s Strategy) Valid() bool {
	switch s {
	case StrategyLightweight, StrategyStandard, StrategyHandwriting,
		StrategyBatch, StrategyMixed, StrategyFallback:
		return true
	}
	return false
}

// Thresholds holds the empirically chosen decision constants. They are
// calibration data, not tuning targets: the defaults mirror observed
// receipt behavior and stay overridable instead of being "fixed".
type Thresholds struct {
	// pixel classification
	TextGrayMax uint8 // gray below this counts as a text pixel

	// line consistency
	RowTextRatio   float64 // share of text pixels marking a text-bearing row
	RowGapMax      int     // vertical gap (px) still merged into one line
	MinRowsPerLine int     // a line needs more rows than this to count
	MinLines       int     // lines needed for isConsistent

	// character spacing
	SpacingCVMax float64 // coefficient of variation below this is uniform

	// stroke sampling
	StrokeRegions         int     // random square regions sampled
	StrokeRegionEdgeMax   int     // region edge cap (px)
	StrokeDensityLow      float64 // region density above this is text-bearing
	StrokeDensityHigh     float64 // and below this still counts as uniform
	StrokeConsistentRatio float64 // uniform-region share for consistency

	// complexity
	EdgeGradientMin int     // |Δgray| above this flags an edge pixel
	HighEdgeDensity float64 // edge density above this is high complexity

	// strategy decision
	BatchDensityMin       float64 // batch needs density above this
	MixedDensityMin       float64 // mixed needs density above this
	LightweightDensityMax float64 // lightweight needs density below this
	HandwritingSignals    int     // disagreeing indicators that trigger handwriting

	// decode guard
	MaxAnalyzeDim int // larger images are downscaled before pixel work
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		TextGrayMax: 128,

		RowTextRatio:   0.02,
		RowGapMax:      3,
		MinRowsPerLine: 2,
		MinLines:       3,

		SpacingCVMax: 0.4,

		StrokeRegions:         10,
		StrokeRegionEdgeMax:   50,
		StrokeDensityLow:      0.1,
		StrokeDensityHigh:     0.8,
		StrokeConsistentRatio: 0.6,

		EdgeGradientMin: 30,
		HighEdgeDensity: 0.1,

		BatchDensityMin:       0.4,
		MixedDensityMin:       0.3,
		LightweightDensityMax: 0.1,
		HandwritingSignals:    2,

		MaxAnalyzeDim: 1600,
	}
}

// decide picks the strategy in strict priority order. Batch outranks
// handwriting even when both match: the ordering is part of the
// calibration, not an accident.
func (t Thresholds) decide(td TextDensity, la LineAnalysis, sa SpacingAnalysis, st StrokeAnalysis, cs ComplexityScore) Strategy {
	disagree := disagreements(la, sa, st)

	switch {
	case td.Density > t.BatchDensityMin && cs.Complexity == ComplexityHigh:
		return StrategyBatch
	case disagree >= t.HandwritingSignals:
		return StrategyHandwriting
	case td.Density > t.MixedDensityMin && cs.Complexity == ComplexityHigh &&
		(!la.IsConsistent || !sa.Uniform):
		return StrategyMixed
	case td.Density < t.LightweightDensityMax:
		return StrategyLightweight
	default:
		return StrategyStandard
	}
}

// disagreements counts the regularity indicators voting "handwritten".
func disagreements(la LineAnalysis, sa SpacingAnalysis, st StrokeAnalysis) int {
	n := 0
	if !la.IsConsistent {
		n++
	}
	if !sa.Uniform {
		n++
	}
	if !st.Consistent {
		n++
	}
	return n
}
