// Package router classifies a question by keyword and, for spend questions,
// runs the matching calculation before the model is consulted.
package router

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/calc"
	"github.com/bank-assistant/backend/pkg/logger"
)

type Decision struct {
	Intent   Intent
	Tool     string
	Category string
	Window   calc.Window
}

// SpendCalculator is satisfied by *calc.Engine.
type SpendCalculator interface {
	ComputeSpend(ctx context.Context, customerID int64, window calc.Window, category string) calc.Result
}

type Router struct {
	lexicon Lexicon
	calc    SpendCalculator
}

func New(calculator SpendCalculator, lexicon Lexicon) *Router {
	return &Router{lexicon: lexicon, calc: calculator}
}

// Classify is pure: the same question always yields the same decision.
func Classify(question string, lex Lexicon) Decision {
	q := strings.ToLower(question)

	decision := Decision{Intent: IntentGeneral, Window: lex.DefaultWindow}
	if decision.Window == "" {
		decision.Window = calc.ThisMonth
	}

	for _, rule := range lex.Intents {
		if matchesAll(q, rule.AllOf) {
			decision.Intent = rule.Intent
			decision.Tool = rule.Tool
			break
		}
	}
	if decision.Intent != IntentCalculation {
		return decision
	}

categories:
	for _, rule := range lex.Categories {
		for _, phrase := range rule.Phrases {
			if strings.Contains(q, phrase) {
				decision.Category = rule.Category
				break categories
			}
		}
	}

	for _, rule := range lex.Windows {
		if strings.Contains(q, rule.Phrase) {
			decision.Window = rule.Window
			break
		}
	}

	return decision
}

// Route classifies the question and, when it asks for a calculation, runs it.
// General questions yield calc.NoResult.
func (r *Router) Route(ctx context.Context, question string, customerID int64) (Decision, calc.Result) {
	decision := Classify(question, r.lexicon)
	if decision.Intent != IntentCalculation {
		return decision, calc.NoResult{}
	}

	logger.Debug("Routed to calculation",
		zap.Int64("customer_id", customerID),
		zap.String("tool", decision.Tool),
		zap.String("category", decision.Category),
		zap.String("window", string(decision.Window)),
	)

	return decision, r.calc.ComputeSpend(ctx, customerID, decision.Window, decision.Category)
}

func matchesAll(q string, groups [][]string) bool {
	if len(groups) == 0 {
		return false
	}
	for _, group := range groups {
		if !containsAny(q, group) {
			return false
		}
	}
	return true
}

func containsAny(q string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(q, p) {
			return true
		}
	}
	return false
}
