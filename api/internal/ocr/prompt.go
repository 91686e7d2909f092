package ocr

import (
	"fmt"
	"strings"

	"receipt-ocr/api/internal/analysis"
)

// promptCore lists the fields every strategy asks for. The per-strategy
// templates add a preamble and optional extra fields around it, so the
// six variants stay in parity.
var promptCore = fmt.Sprintf(`Return ONLY a JSON object with these fields:
- "amount": the final total paid, as a plain number without currency symbols
- "date": the purchase date in YYYY-MM-DD format
- "description": a short human-readable summary of the purchase
- "merchantName": the store or vendor name as shown on the receipt
- "category": the best match from: %s
- "confidence": your confidence in the extraction, from 0.0 to 1.0`,
	strings.Join(AllowedCategories, ", "))

type promptTemplate struct {
	preamble string
	extras   string
}

var promptTemplates = map[analysis.Strategy]promptTemplate{
	analysis.StrategyLightweight: {
		preamble: `You are reading a simple receipt with sparse printed text.
Extract the key fields quickly. Do not guess at items that are not clearly visible; null beats invention.`,
	},
	analysis.StrategyStandard: {
		preamble: `You are reading a typical printed retail receipt.
Read the line items carefully and report the final total actually paid, after tax and any discounts.`,
	},
	analysis.StrategyHandwriting: {
		preamble: `You are reading a handwritten or partially handwritten receipt.
Transcribe cautiously: prefer a low confidence over a confident misreading, and never normalize what you cannot read.`,
		extras: `
- "handwritingNotes": anything handwritten you could not read with certainty`,
	},
	analysis.StrategyBatch: {
		preamble: `The image contains multiple receipts or a dense multi-column scan.
Treat it as one submission: "amount" is the combined total across every receipt you can read.`,
		extras: `
- "receiptCount": how many distinct receipts are visible`,
	},
	analysis.StrategyMixed: {
		preamble: `You are reading a printed receipt with handwritten additions such as tips, corrections or annotations.
When a handwritten value conflicts with a printed one, the handwritten correction wins.`,
		extras: `
- "handwrittenParts": which reported values came from handwriting rather than print`,
	},
	analysis.StrategyFallback: {
		preamble: `The image content or quality is uncertain.
Extract whatever receipt fields you can identify and use null for anything unreadable. A partial answer is better than none.`,
	},
}

// BuildPrompt renders the strategy template plus a summary of the
// analyzer's findings, so the model knows what kind of image it is
// looking at. Unknown strategies render the fallback template.
func BuildPrompt(s analysis.Strategy, a *analysis.Result) string {
	t, ok := promptTemplates[s]
	if !ok {
		t = promptTemplates[analysis.StrategyFallback]
	}

	var b strings.Builder
	b.WriteString(t.preamble)
	b.WriteString("\n\n")
	b.WriteString(promptCore)
	b.WriteString(t.extras)
	if a != nil {
		b.WriteString("\n\n")
		b.WriteString(summarize(a))
	}
	return b.String()
}

func summarize(a *analysis.Result) string {
	textType := "printed text"
	switch a.RecommendedStrategy {
	case analysis.StrategyHandwriting:
		textType = "handwritten text"
	case analysis.StrategyMixed:
		textType = "mixed printed and handwritten text"
	}

	s := fmt.Sprintf("Image analysis: %s, %s complexity, text density %.3f, analyzer confidence %.2f.",
		textType, a.ComplexityScore.Complexity, a.TextDensity.Density, a.Confidence)
	if a.IsFallback {
		s += " (Estimated from file size; the image could not be decoded.)"
	}
	return s
}
