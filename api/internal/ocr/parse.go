package ocr

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"receipt-ocr/api/internal/util"
)

const (
	// MaxAmount is the hard sanitization ceiling on extracted totals.
	MaxAmount = 1e7

	// highAmountWarn flags totals that are technically valid but almost
	// certainly a misread decimal point on a personal receipt.
	highAmountWarn = 100_000

	recoveredNote = "fields recovered from non-JSON model response"
)

// wireReceipt is the tolerant shape model output is decoded into.
// Amount stays untyped because models return it as number or string
// interchangeably; strategy-specific extras are simply ignored.
type wireReceipt struct {
	Amount       any      `json:"amount"`
	Date         string   `json:"date"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	MerchantName string   `json:"merchantName"`
	Confidence   *float64 `json:"confidence"`
}

// ParseStructured reads model text as a receipt object: strip code
// fences, try the whole text as JSON, then the first balanced brace
// block inside it.
func ParseStructured(text string) (*wireReceipt, error) {
	clean := util.StripCodeFences(strings.TrimSpace(text))

	var w wireReceipt
	err := json.Unmarshal([]byte(clean), &w)
	if err == nil {
		return &w, nil
	}

	if obj := extractJSONObject(clean); obj != "" {
		var inner wireReceipt
		if innerErr := json.Unmarshal([]byte(obj), &inner); innerErr == nil {
			return &inner, nil
		}
	}
	return nil, &ResponseParseError{Err: err}
}

// extractJSONObject returns the first balanced {...} block, tracking
// strings and escapes so braces inside values do not break the scan.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

var (
	amountRe  = regexp.MustCompile(`(?i)(?:grand\s*total|total|amount|sum|paid)\s*[:=\-]?\s*[^0-9\n-]{0,8}([0-9][0-9.,\s]*)`)
	isoDateRe = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
)

// RecoverFields pulls what it can out of free-form prose: a number next
// to a total/amount keyword (currency symbols and thousands separators
// tolerated), an ISO date, and the first meaningful line as the
// description.
func RecoverFields(text string) *wireReceipt {
	w := &wireReceipt{}

	if m := amountRe.FindStringSubmatch(text); m != nil {
		w.Amount = strings.TrimRight(m[1], " .,\t")
	}
	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		if _, err := time.Parse("2006-01-02", m[1]); err == nil {
			w.Date = m[1]
		}
	}
	w.Description = util.FirstMeaningfulLine(text, 4)
	return w
}

// parseAndValidate turns raw model text into a normalized, validated
// result. It cannot fail: unchecked, the recovery path always yields a
// best-effort object.
func parseAndValidate(text, raw string) *Result {
	w, err := ParseStructured(text)
	recovered := false
	if err != nil {
		w = RecoverFields(text)
		recovered = true
	}

	r := normalize(w, recovered)
	r.RawResponse = raw
	r.Validation = Validate(r)
	return r
}

// normalize applies the field defaults and sanitization clamps.
func normalize(w *wireReceipt, recovered bool) *Result {
	r := &Result{}

	if amt, ok := coerceAmount(w.Amount); ok {
		r.Amount = amt
	}
	if math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) || r.Amount < 0 {
		r.Amount = 0
	}
	if r.Amount > MaxAmount {
		r.Amount = MaxAmount
	}

	r.Date = parseDate(w.Date)
	if r.Date.IsZero() {
		r.Date = time.Now()
	}

	r.Description = strings.TrimSpace(w.Description)
	if r.Description == "" {
		r.Description = "Receipt scan"
	}
	r.MerchantName = strings.TrimSpace(w.MerchantName)
	if r.MerchantName == "" {
		r.MerchantName = "Unknown Merchant"
	}

	r.Category = strings.ToLower(strings.TrimSpace(w.Category))
	if !AllowedCategory(r.Category) {
		r.Category = CategoryOther
	}

	switch {
	case w.Confidence != nil:
		r.Confidence = clamp01(*w.Confidence)
	case recovered:
		r.Confidence = 0.5
	default:
		r.Confidence = 0.8
	}
	if recovered {
		r.Note = recoveredNote
	}
	return r
}

func coerceAmount(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		return parseAmountString(t)
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

// parseAmountString strips currency symbols, spaces and thousands
// separators before parsing. Comma-decimal locales are not
// disambiguated; commas always read as separators.
func parseAmountString(s string) (float64, bool) {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return -1
	}, s)
	if clean == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Validate checks extracted fields. Only a non-positive amount or a
// broken date flag the result invalid; everything else is a warning,
// because partial data still has value in an expense-capture flow.
func Validate(r *Result) Validation {
	v := Validation{Valid: true, Errors: []string{}, Warnings: []string{}}

	if r.Amount <= 0 {
		v.Errors = append(v.Errors, "amount is missing or not positive")
	}
	if r.Date.IsZero() {
		v.Errors = append(v.Errors, "date is missing or invalid")
	} else {
		if r.Date.After(time.Now()) {
			v.Warnings = append(v.Warnings, "date is in the future")
		}
		if r.Date.Year() < 1900 {
			v.Warnings = append(v.Warnings, "date predates 1900")
		}
	}
	if len(strings.TrimSpace(r.Description)) < 4 {
		v.Warnings = append(v.Warnings, "description is missing or very short")
	}
	if r.Amount > highAmountWarn {
		v.Warnings = append(v.Warnings, "amount is unusually high")
	}

	v.Valid = len(v.Errors) == 0
	return v
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
