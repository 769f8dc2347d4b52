package router

import "github.com/bank-assistant/backend/internal/calc"

// Phrase tables are matched against the lower-cased question by substring.
// Within each table the first matching row wins.

type Intent string

const (
	IntentCalculation Intent = "calculation"
	IntentGeneral     Intent = "general"
)

// IntentRule fires when, for every group in AllOf, at least one phrase in
// that group occurs in the question.
type IntentRule struct {
	Intent Intent
	Tool   string
	AllOf  [][]string
}

type CategoryRule struct {
	Phrases  []string
	Category string
}

type WindowRule struct {
	Phrase string
	Window calc.Window
}

type Lexicon struct {
	Intents       []IntentRule
	Categories    []CategoryRule
	Windows       []WindowRule
	DefaultWindow calc.Window
}

const ToolTotalSpending = "total_spending"

func DefaultLexicon() Lexicon {
	return Lexicon{
		Intents: []IntentRule{
			{
				Intent: IntentCalculation,
				Tool:   ToolTotalSpending,
				AllOf:  [][]string{{"how much"}, {"spend"}},
			},
		},
		Categories: []CategoryRule{
			{Phrases: []string{"groceries", "grocery"}, Category: "Grocery"},
			{Phrases: []string{"transport"}, Category: "Transport"},
		},
		Windows: []WindowRule{
			{Phrase: "this week", Window: calc.ThisWeek},
			{Phrase: "last month", Window: calc.LastMonth},
		},
		DefaultWindow: calc.ThisMonth,
	}
}
