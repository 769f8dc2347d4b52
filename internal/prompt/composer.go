// Package prompt fills the fixed instruction template with one turn's context.
package prompt

import (
	"fmt"
	"strings"

	"github.com/bank-assistant/backend/internal/calc"
)

const CalculationFailedText = "Error: Could not calculate spending."

// Bundle is everything gathered for a single question. It is consumed once.
type Bundle struct {
	PublicContext   string
	PersonalContext string
	PreComputed     calc.Result
	Question        string
}

// Compose substitutes the bundle into MasterPrompt in a single pass, so
// placeholder-like text inside the inputs is left untouched.
func Compose(b Bundle) string {
	r := strings.NewReplacer(
		"{public_context}", b.PublicContext,
		"{personal_context}", b.PersonalContext,
		"{pre_computed_result}", FormatResult(b.PreComputed),
		"{question}", b.Question,
	)
	return r.Replace(MasterPrompt)
}

// FormatResult renders a calculation result as the sentence shown to the
// model. NoResult (or nil) renders as the empty string.
func FormatResult(res calc.Result) string {
	switch r := res.(type) {
	case calc.CalculatedAmount:
		total := r.Currency + r.Total.StringFixed(2)
		if r.Category == "" {
			return fmt.Sprintf("The total amount spent %s is %s.", r.Window.Label(), total)
		}
		return fmt.Sprintf("The total amount spent on '%s' %s is %s.", r.Category, r.Window.Label(), total)
	case calc.CalculationFailed:
		return CalculationFailedText
	default:
		return ""
	}
}
