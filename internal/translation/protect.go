package translation

import "regexp"

// protectedPattern matches dosage (e.g. "400mg"), clock-time (e.g.
// "14:30" or "2:30 pm"), and bare numeric spans, in that priority order
// within a single pass so a dosage or time match is never re-matched as a
// bare number.
var protectedPattern = regexp.MustCompile(
	`\d+(\.\d+)?\s?(?:mg|ml|mcg|g|kg|mmHg)\b` +
		`|\d{1,2}:\d{2}(?:\s?[aApP][mM])?` +
		`|\d+(\.\d+)?`,
)

const (
	protectOpen  = "⸨" // LEFT DOUBLE PARENTHESIS: unlikely to appear in MT input/output
	protectClose = "⸩"
)

var unwrapPattern = regexp.MustCompile(protectOpen + `([^` + protectClose + `]*)` + protectClose)

// protectSpans wraps every protected-pattern match in balanced tokens so the
// provider is hinted to leave the enclosed text untranslated.
func protectSpans(text string) string {
	return protectedPattern.ReplaceAllStringFunc(text, func(m string) string {
		return protectOpen + m + protectClose
	})
}

// unwrapSpans strips the protect-token wrapper after translation, leaving
// the original dosage/time/numeric text in place.
func unwrapSpans(text string) string {
	return unwrapPattern.ReplaceAllString(text, "$1")
}
