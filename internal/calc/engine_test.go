package calc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bank-assistant/backend/internal/financial"
	"github.com/bank-assistant/backend/internal/storage/models"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func datep(s string) *time.Time {
	t := date(s)
	return &t
}

type fakeStore struct {
	customers    map[int64]models.Customer
	products     []models.Product
	transactions []models.Transaction
	txErr        error
}

func (f *fakeStore) GetCustomer(_ context.Context, id int64) (*models.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return nil, financial.ErrCustomerNotFound
	}
	return &c, nil
}

func (f *fakeStore) ListProductsByCustomer(_ context.Context, id int64) ([]models.Product, error) {
	var out []models.Product
	for _, p := range f.products {
		if p.CustomerID == id && !p.Closed {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTransactions(_ context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	if f.txErr != nil {
		return nil, f.txErr
	}
	owned := map[int64]bool{}
	for _, id := range filter.ProductIDs {
		owned[id] = true
	}
	var out []models.Transaction
	for _, tx := range f.transactions {
		if !owned[tx.ProductID] {
			continue
		}
		if filter.From != nil && (tx.Date == nil || tx.Date.Before(*filter.From)) {
			continue
		}
		if filter.To != nil && (tx.Date == nil || tx.Date.After(*filter.To)) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func debit(id, product int64, day, amount, description string) models.Transaction {
	return models.Transaction{
		ID: id, ProductID: product, Date: datep(day),
		Amount: decimal.RequireFromString(amount), Currency: "EUR",
		Description: description, Type: "Debit",
	}
}

func newStore() *fakeStore {
	return &fakeStore{
		customers: map[int64]models.Customer{
			1001: {ID: 1001, Name: "Anna Peeters", SegmentCode: "RETAIL"},
			1002: {ID: 1002, Name: "Bram Claes", SegmentCode: "RETAIL"},
		},
		products: []models.Product{
			{ID: 1, CustomerID: 1001, Name: "Current Account", Status: "Active"},
			{ID: 2, CustomerID: 1001, Name: "Credit Card", Status: "Active"},
			{ID: 3, CustomerID: 1002, Name: "Current Account", Status: "Active"},
		},
		transactions: []models.Transaction{
			debit(1, 1, "2025-10-03", "20.25", "GROCERY Delhaize"),
			debit(2, 2, "2025-10-27", "25.25", "Carrefour grocery"),
			debit(3, 1, "2025-10-28", "12.40", "Transport STIB"),
			debit(4, 1, "2025-09-15", "60.00", "Grocery Colruyt"),
			debit(5, 1, "2025-09-30", "4.00", "Transport NMBS"),
			debit(6, 3, "2025-10-10", "999.99", "Grocery"),
			{ID: 7, ProductID: 1, Date: datep("2025-10-12"), Amount: decimal.RequireFromString("1500"), Description: "Salary grocery bonus", Type: "Credit"},
			debit(8, 1, "2025-10-30", "8.00", "Grocery future-dated"),
		},
	}
}

func newEngine(store financial.Store, opts ...Option) *Engine {
	opts = append([]Option{WithReferenceDate(date("2025-10-29"))}, opts...)
	return NewEngine(store, opts...)
}

func TestResolveWindows(t *testing.T) {
	tests := []struct {
		name     string
		window   Window
		today    string
		week     WeekStart
		from, to string
	}{
		{"this month", ThisMonth, "2025-10-29", WeekStartSunday, "2025-10-01", "2025-10-29"},
		{"last month", LastMonth, "2025-10-29", WeekStartSunday, "2025-09-01", "2025-09-30"},
		{"last month across year", LastMonth, "2025-01-15", WeekStartSunday, "2024-12-01", "2024-12-31"},
		{"last month leap february", LastMonth, "2024-03-01", WeekStartSunday, "2024-02-01", "2024-02-29"},
		{"week from wednesday", ThisWeek, "2025-10-29", WeekStartSunday, "2025-10-26", "2025-10-29"},
		{"week from monday", ThisWeek, "2025-10-27", WeekStartSunday, "2025-10-26", "2025-10-27"},
		{"week from sunday", ThisWeek, "2025-10-26", WeekStartSunday, "2025-10-19", "2025-10-26"},
		{"monday week from wednesday", ThisWeek, "2025-10-29", WeekStartMonday, "2025-10-27", "2025-10-29"},
		{"monday week from monday", ThisWeek, "2025-10-27", WeekStartMonday, "2025-10-27", "2025-10-27"},
		{"unknown window", Window("fortnight"), "2025-10-29", WeekStartSunday, "2025-10-01", "2025-10-29"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.window.Resolve(date(tt.today).Add(15*time.Hour), tt.week)
			assert.Equal(t, date(tt.from), r.From)
			assert.Equal(t, date(tt.to), r.To)
		})
	}
}

func TestParseWindowDefaultsToThisMonth(t *testing.T) {
	assert.Equal(t, ThisWeek, ParseWindow("this_week"))
	assert.Equal(t, LastMonth, ParseWindow(" LAST_MONTH "))
	assert.Equal(t, ThisMonth, ParseWindow("yesterday"))
	assert.Equal(t, ThisMonth, ParseWindow(""))
	assert.Equal(t, "last month", LastMonth.Label())
	assert.Equal(t, "this week", ThisWeek.Label())
}

func TestComputeSpendByCategory(t *testing.T) {
	e := newEngine(newStore())

	res := e.ComputeSpend(context.Background(), 1001, ThisMonth, "Grocery")

	amount, ok := res.(CalculatedAmount)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, "45.50", amount.Total.StringFixed(2))
	assert.Equal(t, "Grocery", amount.Category)
	assert.Equal(t, ThisMonth, amount.Window)
	assert.Equal(t, "€", amount.Currency)
}

func TestComputeSpendWindows(t *testing.T) {
	e := newEngine(newStore())
	ctx := context.Background()

	tests := []struct {
		window   Window
		category string
		want     string
	}{
		{ThisMonth, "", "57.90"},
		{LastMonth, "", "64.00"},
		{LastMonth, "transport", "4.00"},
		{ThisWeek, "", "37.65"},
		{ThisWeek, "grocery", "25.25"},
		{ThisMonth, "pharmacy", "0.00"},
	}

	for _, tt := range tests {
		t.Run(string(tt.window)+"/"+tt.category, func(t *testing.T) {
			res := e.ComputeSpend(ctx, 1001, tt.window, tt.category)
			amount, ok := res.(CalculatedAmount)
			require.True(t, ok)
			assert.Equal(t, tt.want, amount.Total.StringFixed(2))
		})
	}
}

func TestComputeSpendIsIdempotent(t *testing.T) {
	e := newEngine(newStore())
	ctx := context.Background()

	first := e.ComputeSpend(ctx, 1001, ThisMonth, "Grocery")
	second := e.ComputeSpend(ctx, 1001, ThisMonth, "Grocery")
	assert.Equal(t, first, second)
}

func TestComputeSpendUnknownCustomerFails(t *testing.T) {
	e := newEngine(newStore())

	res := e.ComputeSpend(context.Background(), 4242, ThisMonth, "")
	assert.IsType(t, CalculationFailed{}, res)
}

func TestComputeSpendStoreErrorFails(t *testing.T) {
	store := newStore()
	store.txErr = errors.New("disk on fire")
	e := newEngine(store)

	res := e.ComputeSpend(context.Background(), 1001, ThisMonth, "")
	assert.IsType(t, CalculationFailed{}, res)
}

func TestComputeSpendCustomerWithoutProducts(t *testing.T) {
	store := newStore()
	store.customers[1003] = models.Customer{ID: 1003, Name: "Cas Janssens"}
	e := newEngine(store)

	res := e.ComputeSpend(context.Background(), 1003, ThisMonth, "")
	amount, ok := res.(CalculatedAmount)
	require.True(t, ok)
	assert.True(t, amount.Total.IsZero())
}

func TestComputeSpendCustomCurrencyAndWeek(t *testing.T) {
	e := newEngine(newStore(), WithCurrencySymbol("$"), WithWeekStart(WeekStartMonday))

	res := e.ComputeSpend(context.Background(), 1001, ThisWeek, "")
	amount, ok := res.(CalculatedAmount)
	require.True(t, ok)
	assert.Equal(t, "$", amount.Currency)
	assert.Equal(t, "37.65", amount.Total.StringFixed(2))
}
