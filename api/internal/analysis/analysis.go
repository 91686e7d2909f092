// Package analysis inspects raw receipt images and recommends an OCR
// strategy from low-level pixel statistics: text density, line
// regularity, character spacing, stroke consistency and edge density.
// It makes no network calls and never fails: undecodable input
// degrades to a file-size heuristic.
package analysis

import (
	"bytes"
	"image"
	"math"
	"math/rand"
	"time"

	"github.com/anthonynsimon/bild/transform"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register webp decoder
)

// TextDensity reports what share of pixels reads as dark text.
type TextDensity struct {
	Density        float64 `json:"density"`
	TextPixelCount int     `json:"textPixelCount"`
	TotalPixels    int     `json:"totalPixels"`
}

// LineAnalysis reports whether text is arranged in regular lines.
type LineAnalysis struct {
	IsConsistent bool `json:"isConsistent"`
	LineCount    int  `json:"lineCount"`
}

// SpacingAnalysis reports horizontal gap uniformity between text runs.
type SpacingAnalysis struct {
	Uniform                bool    `json:"uniform"`
	CoefficientOfVariation float64 `json:"coefficientOfVariation"`
}

// StrokeAnalysis reports stroke-thickness consistency from sampled
// regions.
type StrokeAnalysis struct {
	Consistent       bool    `json:"consistent"`
	ConsistencyRatio float64 `json:"consistencyRatio"`
}

type Complexity string

const (
	ComplexityLow  Complexity = "low"
	ComplexityHigh Complexity = "high"
)

// ComplexityScore reports visual busyness via gradient edge density.
type ComplexityScore struct {
	Complexity  Complexity `json:"complexity"`
	EdgeDensity float64    `json:"edgeDensity"`
}

// Result is the full characteristics report for one image. It is
// produced fresh per image and consumed synchronously by the router;
// nothing persists it.
type Result struct {
	TextDensity         TextDensity     `json:"textDensity"`
	LineAnalysis        LineAnalysis    `json:"lineAnalysis"`
	SpacingAnalysis     SpacingAnalysis `json:"spacingAnalysis"`
	StrokeAnalysis      StrokeAnalysis  `json:"strokeAnalysis"`
	ComplexityScore     ComplexityScore `json:"complexityScore"`
	RecommendedStrategy Strategy        `json:"recommendedStrategy"`
	Confidence          float64         `json:"confidence"`
	IsFallback          bool            `json:"isFallback"`
}

// Analyzer computes image characteristics. A zero-value Analyzer is not
// usable; construct with New.
type Analyzer struct {
	T   Thresholds
	rng *rand.Rand
}

func New() *Analyzer {
	return &Analyzer{
		T:   DefaultThresholds(),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithSeed pins the stroke-sampling RNG so tests are deterministic.
func (a *Analyzer) WithSeed(seed int64) *Analyzer {
	a.rng = rand.New(rand.NewSource(seed))
	return a
}

// Analyze never returns an error: decode failures degrade to the
// file-size heuristic with IsFallback set.
func (a *Analyzer) Analyze(data []byte) *Result {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return a.fallbackFromSize(len(data))
	}

	g := a.buildPlane(img)

	td := a.textDensity(g)
	la := a.lineAnalysis(g)
	sa := a.spacingAnalysis(g)
	st := a.strokeAnalysis(g, td)
	cs := a.complexityScore(g)

	return &Result{
		TextDensity:         td,
		LineAnalysis:        la,
		SpacingAnalysis:     sa,
		StrokeAnalysis:      st,
		ComplexityScore:     cs,
		RecommendedStrategy: a.T.decide(td, la, sa, st, cs),
		Confidence:          a.confidence(td, la, sa, st, cs),
	}
}

// --- pixel plane ---

// plane is a row-major grayscale buffer. Gray is the plain channel mean,
// not luminance: receipts are near-monochrome and the strategy
// thresholds were calibrated against the mean.
type plane struct {
	w, h int
	pix  []uint8
}

func (p *plane) at(x, y int) uint8 { return p.pix[y*p.w+x] }

func (a *Analyzer) buildPlane(img image.Image) *plane {
	b := img.Bounds()
	if m := a.T.MaxAnalyzeDim; m > 0 && (b.Dx() > m || b.Dy() > m) {
		w, h := b.Dx(), b.Dy()
		scale := float64(m) / float64(max(w, h))
		img = transform.Resize(img, max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale)), transform.Linear)
	}

	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	p := &plane{w: w, h: h, pix: make([]uint8, w*h)}
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for x := 0; x < w; x++ {
			r := int(row[x*4])
			g := int(row[x*4+1])
			b := int(row[x*4+2])
			p.pix[y*w+x] = uint8((r + g + b) / 3)
		}
	}
	return p
}

func (a *Analyzer) isText(g uint8) bool { return g < a.T.TextGrayMax }

// --- statistics ---

func (a *Analyzer) textDensity(p *plane) TextDensity {
	total := p.w * p.h
	if total == 0 {
		return TextDensity{}
	}
	count := 0
	for _, g := range p.pix {
		if a.isText(g) {
			count++
		}
	}
	return TextDensity{
		Density:        float64(count) / float64(total),
		TextPixelCount: count,
		TotalPixels:    total,
	}
}

// lineAnalysis marks rows with enough text pixels, merges rows separated
// by small gaps into lines, and counts lines tall enough to be real.
func (a *Analyzer) lineAnalysis(p *plane) LineAnalysis {
	if p.w == 0 || p.h == 0 {
		return LineAnalysis{}
	}

	textRow := make([]bool, p.h)
	for y := 0; y < p.h; y++ {
		count := 0
		for x := 0; x < p.w; x++ {
			if a.isText(p.at(x, y)) {
				count++
			}
		}
		textRow[y] = float64(count)/float64(p.w) >= a.T.RowTextRatio
	}

	lineCount := 0
	rowsInLine := 0
	gap := 0
	inLine := false
	closeLine := func() {
		if rowsInLine > a.T.MinRowsPerLine {
			lineCount++
		}
		inLine = false
		rowsInLine = 0
		gap = 0
	}
	for y := 0; y < p.h; y++ {
		switch {
		case textRow[y]:
			if !inLine {
				inLine = true
			}
			rowsInLine++
			gap = 0
		case inLine:
			gap++
			if gap > a.T.RowGapMax {
				closeLine()
			}
		}
	}
	if inLine {
		closeLine()
	}

	return LineAnalysis{
		IsConsistent: lineCount >= a.T.MinLines,
		LineCount:    lineCount,
	}
}

// spacingAnalysis measures the gaps between consecutive horizontal text
// runs across all rows. Fewer than two gaps means there is nothing to
// disagree about, so the image counts as uniform.
func (a *Analyzer) spacingAnalysis(p *plane) SpacingAnalysis {
	var gaps []float64
	for y := 0; y < p.h; y++ {
		inRun := false
		prevEnd := -1
		for x := 0; x < p.w; x++ {
			if a.isText(p.at(x, y)) {
				if !inRun {
					if prevEnd >= 0 {
						gaps = append(gaps, float64(x-prevEnd))
					}
					inRun = true
				}
			} else if inRun {
				prevEnd = x
				inRun = false
			}
		}
	}

	if len(gaps) < 2 {
		return SpacingAnalysis{Uniform: true}
	}

	var sum float64
	for _, g := range gaps {
		sum += g
	}
	mean := sum / float64(len(gaps))
	var varsum float64
	for _, g := range gaps {
		d := g - mean
		varsum += d * d
	}
	cv := math.Sqrt(varsum/float64(len(gaps))) / mean

	return SpacingAnalysis{
		Uniform:                cv < a.T.SpacingCVMax,
		CoefficientOfVariation: cv,
	}
}

// strokeAnalysis samples random square regions and checks how many have
// a text density typical of even stroke weight. Images with no text at
// all are vacuously consistent, so blank pages do not read as
// handwriting.
func (a *Analyzer) strokeAnalysis(p *plane, td TextDensity) StrokeAnalysis {
	if td.TextPixelCount == 0 {
		return StrokeAnalysis{Consistent: true, ConsistencyRatio: 1}
	}

	edge := min(a.T.StrokeRegionEdgeMax, p.w/10)
	if edge < 1 {
		edge = 1
	}
	if edge > p.w {
		edge = p.w
	}
	if edge > p.h {
		edge = p.h
	}

	uniform := 0
	sampledText := 0
	for i := 0; i < a.T.StrokeRegions; i++ {
		x0 := a.rng.Intn(p.w - edge + 1)
		y0 := a.rng.Intn(p.h - edge + 1)
		count := 0
		for y := y0; y < y0+edge; y++ {
			for x := x0; x < x0+edge; x++ {
				if a.isText(p.at(x, y)) {
					count++
				}
			}
		}
		sampledText += count
		density := float64(count) / float64(edge*edge)
		if density > a.T.StrokeDensityLow && density < a.T.StrokeDensityHigh {
			uniform++
		}
	}

	if sampledText == 0 {
		return StrokeAnalysis{Consistent: true, ConsistencyRatio: 1}
	}

	ratio := float64(uniform) / float64(a.T.StrokeRegions)
	return StrokeAnalysis{
		Consistent:       ratio > a.T.StrokeConsistentRatio,
		ConsistencyRatio: ratio,
	}
}

func (a *Analyzer) complexityScore(p *plane) ComplexityScore {
	total := p.w * p.h
	if total == 0 {
		return ComplexityScore{Complexity: ComplexityLow}
	}

	edges := 0
	limit := a.T.EdgeGradientMin
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			g := int(p.at(x, y))
			if x+1 < p.w && abs(g-int(p.at(x+1, y))) > limit {
				edges++
				continue
			}
			if y+1 < p.h && abs(g-int(p.at(x, y+1))) > limit {
				edges++
			}
		}
	}

	density := float64(edges) / float64(total)
	c := ComplexityLow
	if density > a.T.HighEdgeDensity {
		c = ComplexityHigh
	}
	return ComplexityScore{Complexity: c, EdgeDensity: density}
}

// confidence scores how much the independent signals corroborate each
// other. Strong agreement or strong disagreement both read as clear
// verdicts; mid-range density adds a little, coherent
// complexity/density pairs add a little more.
func (a *Analyzer) confidence(td TextDensity, la LineAnalysis, sa SpacingAnalysis, st StrokeAnalysis, cs ComplexityScore) float64 {
	agree := 0
	if la.IsConsistent {
		agree++
	}
	if sa.Uniform {
		agree++
	}
	if st.Consistent {
		agree++
	}

	c := 0.4
	switch agree {
	case 3:
		c += 0.4
	case 2:
		c += 0.25
	case 1:
		c += 0.15
	}
	if disagreements(la, sa, st) >= a.T.HandwritingSignals {
		c += 0.3
	}
	if td.Density > 0.02 && td.Density < 0.7 {
		c += 0.1
	}
	switch {
	case cs.Complexity == ComplexityLow && td.Density < a.T.LightweightDensityMax:
		c += 0.15
	case cs.Complexity == ComplexityHigh && td.Density > a.T.MixedDensityMin:
		c += 0.1
	}
	c += float64(agree) / 3 * 0.2

	return clamp01(c)
}

// --- decode fallback ---

const (
	fallbackSmallMax  = 512 << 10
	fallbackMediumMax = 2 << 20

	fallbackConfidence = 0.6
)

// fallbackFromSize guesses characteristics from byte size alone: bigger
// files tend to be denser, busier, less regular scans. The synthetic
// stats are chosen so decide() reproduces the tier's strategy.
func (a *Analyzer) fallbackFromSize(size int) *Result {
	r := &Result{
		IsFallback: true,
		Confidence: fallbackConfidence,
	}

	switch {
	case size >= fallbackMediumMax:
		r.TextDensity = TextDensity{Density: 0.5}
		r.LineAnalysis = LineAnalysis{IsConsistent: false}
		r.SpacingAnalysis = SpacingAnalysis{Uniform: false, CoefficientOfVariation: 0.6}
		r.StrokeAnalysis = StrokeAnalysis{Consistent: false}
		r.ComplexityScore = ComplexityScore{Complexity: ComplexityHigh, EdgeDensity: 0.15}
	case size >= fallbackSmallMax:
		r.TextDensity = TextDensity{Density: 0.35}
		r.LineAnalysis = LineAnalysis{IsConsistent: false}
		r.SpacingAnalysis = SpacingAnalysis{Uniform: true, CoefficientOfVariation: 0.2}
		r.StrokeAnalysis = StrokeAnalysis{Consistent: true, ConsistencyRatio: 0.8}
		r.ComplexityScore = ComplexityScore{Complexity: ComplexityHigh, EdgeDensity: 0.12}
	default:
		r.TextDensity = TextDensity{Density: 0.05}
		r.LineAnalysis = LineAnalysis{IsConsistent: true, LineCount: 3}
		r.SpacingAnalysis = SpacingAnalysis{Uniform: true}
		r.StrokeAnalysis = StrokeAnalysis{Consistent: true, ConsistencyRatio: 1}
		r.ComplexityScore = ComplexityScore{Complexity: ComplexityLow, EdgeDensity: 0.02}
	}

	r.RecommendedStrategy = a.T.decide(r.TextDensity, r.LineAnalysis, r.SpacingAnalysis, r.StrokeAnalysis, r.ComplexityScore)
	return r
}

// --- small helpers ---

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
