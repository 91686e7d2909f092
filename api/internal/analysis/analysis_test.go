package analysis

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func solidImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func checkerImage(w, h, cell int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	return img
}

// barsImage draws count full-width black bars of height barH separated
// by white gaps of height gap, starting at the top.
func barsImage(w, h, barH, gap, count int) *image.NRGBA {
	img := solidImage(w, h, color.White)
	y := 0
	for i := 0; i < count && y+barH <= h; i++ {
		for dy := 0; dy < barH; dy++ {
			for x := 0; x < w; x++ {
				img.Set(x, y+dy, color.Black)
			}
		}
		y += barH + gap
	}
	return img
}

// stripesImage draws full-height vertical black stripes of width
// stripeW, separated by the given white gaps.
func stripesImage(w, h, stripeW int, gaps []int) *image.NRGBA {
	img := solidImage(w, h, color.White)
	x := 0
	paint := func(from, to int) {
		for y := 0; y < h; y++ {
			for px := from; px < to && px < w; px++ {
				img.Set(px, y, color.Black)
			}
		}
	}
	paint(x, x+stripeW)
	x += stripeW
	for _, g := range gaps {
		x += g
		paint(x, x+stripeW)
		x += stripeW
	}
	return img
}

func TestAnalyzeBlankImage(t *testing.T) {
	a := New().WithSeed(1)
	res := a.Analyze(encodePNG(t, solidImage(800, 600, color.White)))

	if res.IsFallback {
		t.Errorf("blank image marked fallback")
	}
	if res.TextDensity.Density > 0.01 {
		t.Errorf("blank density = %v, want ~0", res.TextDensity.Density)
	}
	if res.RecommendedStrategy != StrategyLightweight {
		t.Errorf("strategy = %q, want %q", res.RecommendedStrategy, StrategyLightweight)
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		t.Errorf("confidence = %v, want in [0,1]", res.Confidence)
	}
}

func TestAnalyzeCheckerboard(t *testing.T) {
	a := New().WithSeed(1)
	res := a.Analyze(encodePNG(t, checkerImage(200, 200, 1)))

	if res.TextDensity.Density < 0.45 || res.TextDensity.Density > 0.55 {
		t.Errorf("checker density = %v, want ~0.5", res.TextDensity.Density)
	}
	if res.ComplexityScore.Complexity != ComplexityHigh {
		t.Errorf("complexity = %q, want high", res.ComplexityScore.Complexity)
	}
	if res.RecommendedStrategy != StrategyBatch {
		t.Errorf("strategy = %q, want %q", res.RecommendedStrategy, StrategyBatch)
	}
}

func TestAnalyzeUndecodableFallsBackBySize(t *testing.T) {
	tests := []struct {
		name string
		size int
		want Strategy
	}{
		{"small", 1 << 10, StrategyLightweight},
		{"medium", 600 << 10, StrategyMixed},
		{"large", 3 << 20, StrategyBatch},
	}
	a := New().WithSeed(1)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.Analyze(bytes.Repeat([]byte{0xAB}, tt.size))
			if !res.IsFallback {
				t.Fatalf("IsFallback = false, want true")
			}
			if res.Confidence != 0.6 {
				t.Errorf("confidence = %v, want 0.6", res.Confidence)
			}
			if res.RecommendedStrategy != tt.want {
				t.Errorf("strategy = %q, want %q", res.RecommendedStrategy, tt.want)
			}
		})
	}
}

func TestDecidePriorityOrder(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name                    string
		density                 float64
		cmplx                   Complexity
		lines, spacing, strokes bool
		want                    Strategy
	}{
		{"dense busy beats handwriting signals", 0.5, ComplexityHigh, false, false, false, StrategyBatch},
		{"two disagreements read as handwriting", 0.2, ComplexityLow, false, true, false, StrategyHandwriting},
		{"dense busy single disagreement is mixed", 0.35, ComplexityHigh, false, true, true, StrategyMixed},
		{"sparse clean is lightweight", 0.05, ComplexityLow, true, true, true, StrategyLightweight},
		{"moderate clean is standard", 0.2, ComplexityLow, true, true, true, StrategyStandard},
		{"batch threshold is strict", 0.4, ComplexityHigh, true, true, true, StrategyStandard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := th.decide(
				TextDensity{Density: tt.density},
				LineAnalysis{IsConsistent: tt.lines},
				SpacingAnalysis{Uniform: tt.spacing},
				StrokeAnalysis{Consistent: tt.strokes},
				ComplexityScore{Complexity: tt.cmplx},
			)
			if got != tt.want {
				t.Errorf("decide() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTextDensityHalfBlack(t *testing.T) {
	a := New().WithSeed(1)
	img := solidImage(100, 100, color.White)
	for y := 0; y < 100; y++ {
		for x := 0; x < 50; x++ {
			img.Set(x, y, color.Black)
		}
	}
	p := a.buildPlane(img)
	td := a.textDensity(p)

	if td.TotalPixels != 10000 {
		t.Fatalf("total = %d, want 10000", td.TotalPixels)
	}
	if td.TextPixelCount != 5000 {
		t.Errorf("text pixels = %d, want 5000", td.TextPixelCount)
	}
	if td.Density != 0.5 {
		t.Errorf("density = %v, want 0.5", td.Density)
	}
}

func TestLineAnalysisCountsBars(t *testing.T) {
	a := New().WithSeed(1)

	tests := []struct {
		name           string
		img            *image.NRGBA
		wantCount      int
		wantConsistent bool
	}{
		{"five tall bars", barsImage(200, 100, 4, 10, 5), 5, true},
		{"single bar", barsImage(200, 100, 4, 10, 1), 1, false},
		{"bars too thin to count", barsImage(200, 100, 2, 10, 5), 0, false},
		{"blank", solidImage(200, 100, color.White), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			la := a.lineAnalysis(a.buildPlane(tt.img))
			if la.LineCount != tt.wantCount {
				t.Errorf("lineCount = %d, want %d", la.LineCount, tt.wantCount)
			}
			if la.IsConsistent != tt.wantConsistent {
				t.Errorf("isConsistent = %v, want %v", la.IsConsistent, tt.wantConsistent)
			}
		})
	}
}

func TestLineAnalysisMergesSmallGaps(t *testing.T) {
	a := New().WithSeed(1)
	// Two 3-row bands separated by a 2-row gap merge into one line of
	// 6 text rows.
	img := solidImage(100, 40, color.White)
	for _, y := range []int{0, 1, 2, 5, 6, 7} {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.Black)
		}
	}
	la := a.lineAnalysis(a.buildPlane(img))
	if la.LineCount != 1 {
		t.Errorf("lineCount = %d, want 1 (gap of 2 rows should merge)", la.LineCount)
	}
}

func TestSpacingAnalysis(t *testing.T) {
	a := New().WithSeed(1)

	even := stripesImage(100, 20, 4, []int{6, 6, 6, 6})
	sa := a.spacingAnalysis(a.buildPlane(even))
	if !sa.Uniform {
		t.Errorf("even stripes: uniform = false (cv = %v), want true", sa.CoefficientOfVariation)
	}
	if sa.CoefficientOfVariation != 0 {
		t.Errorf("even stripes: cv = %v, want 0", sa.CoefficientOfVariation)
	}

	ragged := stripesImage(120, 20, 4, []int{4, 20, 4, 30})
	sa = a.spacingAnalysis(a.buildPlane(ragged))
	if sa.Uniform {
		t.Errorf("ragged stripes: uniform = true (cv = %v), want false", sa.CoefficientOfVariation)
	}

	blank := solidImage(100, 20, color.White)
	sa = a.spacingAnalysis(a.buildPlane(blank))
	if !sa.Uniform {
		t.Errorf("no gaps at all should read as uniform")
	}
}

func TestStrokeAnalysis(t *testing.T) {
	a := New().WithSeed(42)

	// Checker cells keep every sampled region near 0.5 text density.
	st := a.strokeAnalysis(a.buildPlane(checkerImage(100, 100, 2)), TextDensity{TextPixelCount: 5000})
	if !st.Consistent || st.ConsistencyRatio != 1 {
		t.Errorf("checker: consistent = %v ratio = %v, want true/1", st.Consistent, st.ConsistencyRatio)
	}

	// Solid black saturates every region past the uniform band.
	st = a.strokeAnalysis(a.buildPlane(solidImage(100, 100, color.Black)), TextDensity{TextPixelCount: 10000})
	if st.Consistent {
		t.Errorf("solid black: consistent = true, want false")
	}

	// No text anywhere is vacuously consistent.
	st = a.strokeAnalysis(a.buildPlane(solidImage(100, 100, color.White)), TextDensity{})
	if !st.Consistent || st.ConsistencyRatio != 1 {
		t.Errorf("blank: consistent = %v ratio = %v, want true/1", st.Consistent, st.ConsistencyRatio)
	}
}

func TestComplexityScore(t *testing.T) {
	a := New().WithSeed(1)

	cs := a.complexityScore(a.buildPlane(solidImage(100, 100, color.White)))
	if cs.Complexity != ComplexityLow || cs.EdgeDensity != 0 {
		t.Errorf("blank: complexity = %q density = %v, want low/0", cs.Complexity, cs.EdgeDensity)
	}

	cs = a.complexityScore(a.buildPlane(checkerImage(100, 100, 1)))
	if cs.Complexity != ComplexityHigh {
		t.Errorf("checker: complexity = %q, want high", cs.Complexity)
	}
}

func TestConfidenceClamped(t *testing.T) {
	a := New().WithSeed(1)

	// All signals agreeing on a sparse, calm image overflows the raw
	// sum and must clamp to 1.
	c := a.confidence(
		TextDensity{Density: 0.05},
		LineAnalysis{IsConsistent: true},
		SpacingAnalysis{Uniform: true},
		StrokeAnalysis{Consistent: true},
		ComplexityScore{Complexity: ComplexityLow},
	)
	if c != 1 {
		t.Errorf("confidence = %v, want clamped to 1", c)
	}

	// Worst case still has the base.
	c = a.confidence(TextDensity{}, LineAnalysis{}, SpacingAnalysis{}, StrokeAnalysis{}, ComplexityScore{})
	if c < 0 || c > 1 {
		t.Errorf("confidence = %v, want in [0,1]", c)
	}
}

func TestBuildPlaneDownscales(t *testing.T) {
	a := New().WithSeed(1)
	p := a.buildPlane(solidImage(2000, 500, color.White))
	if p.w != 1600 || p.h != 400 {
		t.Errorf("plane = %dx%d, want 1600x400", p.w, p.h)
	}
}
