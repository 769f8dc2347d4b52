// Package calc computes deterministic spend totals from the financial store.
// Totals are never delegated to the language model.
package calc

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/financial"
	"github.com/bank-assistant/backend/internal/metrics"
	"github.com/bank-assistant/backend/internal/storage/models"
	"github.com/bank-assistant/backend/pkg/logger"
)

const debitType = "debit"

// Result is the outcome of a calculation, one of NoResult, CalculatedAmount
// or CalculationFailed.
type Result interface {
	isResult()
}

// NoResult means no calculation was requested.
type NoResult struct{}

type CalculatedAmount struct {
	Window   Window
	Category string
	Total    decimal.Decimal
	Currency string
}

type CalculationFailed struct {
	Reason string
}

func (NoResult) isResult()          {}
func (CalculatedAmount) isResult()  {}
func (CalculationFailed) isResult() {}

type Clock func() time.Time

type Engine struct {
	store    financial.Store
	now      Clock
	week     WeekStart
	currency string
}

type Option func(*Engine)

func WithClock(c Clock) Option {
	return func(e *Engine) { e.now = c }
}

// WithReferenceDate pins "today" to a fixed day.
func WithReferenceDate(day time.Time) Option {
	return WithClock(func() time.Time { return day })
}

func WithWeekStart(w WeekStart) Option {
	return func(e *Engine) { e.week = w }
}

func WithCurrencySymbol(symbol string) Option {
	return func(e *Engine) { e.currency = symbol }
}

func NewEngine(store financial.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		now:      time.Now,
		week:     WeekStartSunday,
		currency: "€",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ComputeSpend sums the customer's debits inside window, optionally only
// those whose description contains category (case-insensitive). It never
// returns an error: failures come back as CalculationFailed.
func (e *Engine) ComputeSpend(ctx context.Context, customerID int64, window Window, category string) Result {
	span := window.Resolve(e.now(), e.week)
	log := logger.GetLogger().With(
		zap.Int64("customer_id", customerID),
		zap.String("window", string(window)),
		zap.String("category", category),
	)

	fail := func(reason string, err error) Result {
		log.Warn("Spend calculation failed", zap.String("reason", reason), zap.Error(err))
		metrics.CalculationsTotal.WithLabelValues(string(window), "failed").Inc()
		return CalculationFailed{Reason: reason}
	}

	if _, err := e.store.GetCustomer(ctx, customerID); err != nil {
		return fail("customer lookup", err)
	}

	products, err := e.store.ListProductsByCustomer(ctx, customerID)
	if err != nil {
		return fail("product lookup", err)
	}

	productIDs := make([]int64, 0, len(products))
	for _, p := range products {
		productIDs = append(productIDs, p.ID)
	}

	txs, err := e.store.ListTransactions(ctx, models.TransactionFilter{
		ProductIDs: productIDs,
		From:       &span.From,
		To:         &span.To,
		Type:       debitType,
	})
	if err != nil {
		return fail("transaction lookup", err)
	}

	needle := strings.ToLower(category)
	total := decimal.Zero
	matched := 0
	for _, tx := range txs {
		if tx.Date == nil || !span.Contains(*tx.Date) || !strings.EqualFold(tx.Type, debitType) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(tx.Description), needle) {
			continue
		}
		total = total.Add(tx.Amount)
		matched++
	}

	log.Debug("Spend calculated",
		zap.Time("from", span.From),
		zap.Time("to", span.To),
		zap.Int("transactions", matched),
		zap.String("total", total.StringFixed(2)),
	)
	metrics.CalculationsTotal.WithLabelValues(string(window), "ok").Inc()

	return CalculatedAmount{
		Window:   window,
		Category: category,
		Total:    total,
		Currency: e.currency,
	}
}
