package ingestion

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/financial"
	"github.com/bank-assistant/backend/internal/storage/models"
	"github.com/bank-assistant/backend/pkg/logger"
)

// TablePaths locates the delimited source files. ClosedProducts is optional.
type TablePaths struct {
	Customers      string
	Products       string
	ClosedProducts string
	Transactions   string
}

// LoadReport counts rows dropped because a required value could not be
// coerced (ids, amounts).
type LoadReport struct {
	Customers      int
	Products       int
	Transactions   int
	SkippedRows    map[string]int
	NullifiedDates int
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
}

// header maps lower-cased column names to their position.
type header map[string]int

func (h header) require(table string, cols ...string) error {
	var missing []string
	for _, c := range cols {
		if _, ok := h[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing columns %s", table, strings.Join(missing, ", "))
	}
	return nil
}

func (h header) get(row []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

type tableReader struct {
	name    string
	report  *LoadReport
	nullify *int
}

func (t tableReader) skip() {
	t.report.SkippedRows[t.name]++
}

func readCSV(r io.Reader, table string, required ...string) (header, [][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%s: empty file", table)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to read header: %w", table, err)
	}

	h := make(header, len(head))
	for i, col := range head {
		h[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))] = i
	}
	if err := h.require(table, required...); err != nil {
		return nil, nil, err
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to read rows: %w", table, err)
	}
	return h, rows, nil
}

// ParseID accepts integral values written as "1001" or "1001.0".
func ParseID(s string) (int64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int64(f), nil
}

// ParseDate returns nil for anything it cannot read.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}

func (t tableReader) date(s string) *time.Time {
	d := ParseDate(s)
	if d == nil && strings.TrimSpace(s) != "" {
		*t.nullify++
	}
	return d
}

func ReadCustomers(r io.Reader, report *LoadReport) ([]models.Customer, error) {
	h, rows, err := readCSV(r, "customers", "customer_id", "name")
	if err != nil {
		return nil, err
	}
	t := tableReader{name: "customers", report: report, nullify: &report.NullifiedDates}

	out := make([]models.Customer, 0, len(rows))
	for _, row := range rows {
		id, err := ParseID(h.get(row, "customer_id"))
		if err != nil {
			t.skip()
			continue
		}
		out = append(out, models.Customer{
			ID:          id,
			Name:        h.get(row, "name"),
			SegmentCode: h.get(row, "segment_code"),
			Birthdate:   t.date(h.get(row, "birthdate")),
		})
	}
	return out, nil
}

func ReadProducts(r io.Reader, closed bool, report *LoadReport) ([]models.Product, error) {
	name := "products"
	if closed {
		name = "products_closed"
	}
	h, rows, err := readCSV(r, name, "product_id", "customer_id", "product_name")
	if err != nil {
		return nil, err
	}
	t := tableReader{name: name, report: report, nullify: &report.NullifiedDates}

	out := make([]models.Product, 0, len(rows))
	for _, row := range rows {
		id, err := ParseID(h.get(row, "product_id"))
		if err != nil {
			t.skip()
			continue
		}
		customerID, err := ParseID(h.get(row, "customer_id"))
		if err != nil {
			t.skip()
			continue
		}
		out = append(out, models.Product{
			ID:         id,
			CustomerID: customerID,
			Name:       h.get(row, "product_name"),
			Status:     h.get(row, "status"),
			OpenedDate: t.date(h.get(row, "opened_date")),
			Closed:     closed,
		})
	}
	return out, nil
}

func ReadTransactions(r io.Reader, report *LoadReport) ([]models.Transaction, error) {
	h, rows, err := readCSV(r, "transactions", "transaction_id", "product_id", "amount")
	if err != nil {
		return nil, err
	}
	t := tableReader{name: "transactions", report: report, nullify: &report.NullifiedDates}

	out := make([]models.Transaction, 0, len(rows))
	for _, row := range rows {
		id, err := ParseID(h.get(row, "transaction_id"))
		if err != nil {
			t.skip()
			continue
		}
		productID, err := ParseID(h.get(row, "product_id"))
		if err != nil {
			t.skip()
			continue
		}
		amount, err := decimal.NewFromString(h.get(row, "amount"))
		if err != nil {
			t.skip()
			continue
		}
		out = append(out, models.Transaction{
			ID:          id,
			ProductID:   productID,
			Date:        t.date(h.get(row, "date")),
			Amount:      amount,
			Currency:    h.get(row, "currency"),
			Description: h.get(row, "description"),
			Type:        h.get(row, "transaction_type"),
		})
	}
	return out, nil
}

func readFile[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return read(f)
}

// LoadTables reads every configured file into one snapshot.
func LoadTables(paths TablePaths) (financial.Tables, LoadReport, error) {
	report := LoadReport{SkippedRows: map[string]int{}}
	var tables financial.Tables
	var err error

	tables.Customers, err = readFile(paths.Customers, func(r io.Reader) ([]models.Customer, error) {
		return ReadCustomers(r, &report)
	})
	if err != nil {
		return tables, report, err
	}

	tables.Products, err = readFile(paths.Products, func(r io.Reader) ([]models.Product, error) {
		return ReadProducts(r, false, &report)
	})
	if err != nil {
		return tables, report, err
	}

	if paths.ClosedProducts != "" {
		closed, err := readFile(paths.ClosedProducts, func(r io.Reader) ([]models.Product, error) {
			return ReadProducts(r, true, &report)
		})
		if err != nil {
			return tables, report, err
		}
		tables.Products = append(tables.Products, closed...)
	}

	tables.Transactions, err = readFile(paths.Transactions, func(r io.Reader) ([]models.Transaction, error) {
		return ReadTransactions(r, &report)
	})
	if err != nil {
		return tables, report, err
	}

	report.Customers = len(tables.Customers)
	report.Products = len(tables.Products)
	report.Transactions = len(tables.Transactions)

	logger.Info("Source tables read",
		zap.Int("customers", report.Customers),
		zap.Int("products", report.Products),
		zap.Int("transactions", report.Transactions),
		zap.Any("skipped_rows", report.SkippedRows),
		zap.Int("nullified_dates", report.NullifiedDates),
	)
	return tables, report, nil
}
