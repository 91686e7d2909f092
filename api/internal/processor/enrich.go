package processor

import (
	"strings"

	"receipt-ocr/api/internal/analysis"
	"receipt-ocr/api/internal/ocr"
)

// EnrichedResult is the externally visible outcome of one scan: the
// router's extraction plus category inference, a blended confidence
// score, and spotlighting of the free-text fields that came straight
// out of the model.
type EnrichedResult struct {
	ocr.Result

	SuggestedCategory string  `json:"suggestedCategory"`
	ConfidenceScore   float64 `json:"confidenceScore"`
	IsFallback        bool    `json:"isFallback"`

	// UntrustedFields names the fields whose content is model-authored
	// free text. Consumers must treat them as data, never instructions.
	UntrustedFields []string `json:"untrustedFields"`
}

type categoryRule struct {
	category string
	keywords []string
}

// categoryRules is checked top to bottom; the first category with a
// keyword hit wins. Narrow categories sit above broad ones (fuel before
// transport, dining before shopping).
var categoryRules = []categoryRule{
	{"groceries", []string{"grocery", "supermarket", "market", "mart", "foods", "aldi", "lidl", "costco", "tesco"}},
	{"dining", []string{"restaurant", "cafe", "coffee", "pizza", "burger", "diner", "bistro", "bakery", "sushi", "grill"}},
	{"fuel", []string{"fuel", "gas station", "petrol", "shell", "chevron", "exxon"}},
	{"transport", []string{"taxi", "uber", "lyft", "bus ", "train", "metro", "parking", "toll"}},
	{"entertainment", []string{"cinema", "movie", "theater", "theatre", "concert", "netflix", "spotify", "arcade"}},
	{"health", []string{"pharmacy", "drug", "clinic", "hospital", "dental", "optic", "medic"}},
	{"utilities", []string{"electric", "water bill", "internet", "telecom", "mobile", "broadband", "utility"}},
	{"travel", []string{"hotel", "hostel", "airline", "flight", "airways", "booking", "airbnb"}},
	{"shopping", []string{"store", "shop", "mall", "outlet", "amazon", "retail", "boutique"}},
}

// suggestCategory keyword-matches the description and merchant name
// against the rule table. No hit keeps the model's own category when it
// is in the allowed set, otherwise other-expense.
func suggestCategory(r *ocr.Result) string {
	hay := strings.ToLower(r.Description + " " + r.MerchantName)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(hay, kw) {
				return rule.category
			}
		}
	}
	if ocr.AllowedCategory(r.Category) {
		return r.Category
	}
	return ocr.CategoryOther
}

// strategyPriors are the fixed per-strategy confidence priors blended
// into the final score. Cheaper chains earn higher priors because they
// only run on images the analyzer judged easy.
var strategyPriors = map[analysis.Strategy]float64{
	analysis.StrategyLightweight: 0.9,
	analysis.StrategyStandard:    0.8,
	analysis.StrategyBatch:       0.7,
	analysis.StrategyHandwriting: 0.6,
	analysis.StrategyMixed:       0.6,
	analysis.StrategyFallback:    0.4,
}

// blendConfidence averages the router confidence, penalized 0.1 per
// validation warning and 0.3 when any validation error exists, with the
// strategy prior.
func blendConfidence(routerConf float64, v ocr.Validation, strategy analysis.Strategy) float64 {
	adjusted := routerConf - 0.1*float64(len(v.Warnings))
	if len(v.Errors) > 0 {
		adjusted -= 0.3
	}
	prior, ok := strategyPriors[strategy]
	if !ok {
		prior = strategyPriors[analysis.StrategyFallback]
	}
	return clamp01((adjusted + prior) / 2)
}

// untrustedFreeText lists the result fields carrying text verbatim from
// the model response.
func untrustedFreeText(r *ocr.Result) []string {
	fields := []string{"description", "merchantName"}
	if r.Note != "" {
		fields = append(fields, "note")
	}
	return fields
}

// enrich re-validates the routed result and layers the business fields
// on top. The router already validated once; enrichment repeats it so a
// rescued or mutated result is judged on its final field values.
func enrich(r *ocr.Result) *EnrichedResult {
	r.Validation = ocr.Validate(r)
	out := &EnrichedResult{
		Result:            *r,
		SuggestedCategory: suggestCategory(r),
		UntrustedFields:   untrustedFreeText(r),
	}
	out.ConfidenceScore = blendConfidence(r.Confidence, r.Validation, r.Strategy)
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
