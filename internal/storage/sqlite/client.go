package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/financial"
	"github.com/bank-assistant/backend/internal/storage/models"
	"github.com/bank-assistant/backend/pkg/logger"
)

const dateLayout = "2006-01-02"

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database lives and dies with a single connection.
	if strings.Contains(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		customer_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		segment_code TEXT,
		birthdate TEXT
	);

	CREATE TABLE IF NOT EXISTS products (
		product_id INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL,
		product_name TEXT NOT NULL,
		status TEXT,
		opened_date TEXT,
		closed INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_products_customer ON products(customer_id);

	CREATE TABLE IF NOT EXISTS transactions (
		transaction_id INTEGER PRIMARY KEY,
		product_id INTEGER NOT NULL,
		date TEXT,
		amount TEXT NOT NULL,
		currency TEXT,
		description TEXT,
		transaction_type TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_product ON transactions(product_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// Load replaces the contents of all three tables in one transaction.
func (c *Client) Load(ctx context.Context, tables financial.Tables) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin load: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"transactions", "products", "customers"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, cu := range tables.Customers {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO customers (customer_id, name, segment_code, birthdate) VALUES (?, ?, ?, ?)`,
			cu.ID, cu.Name, cu.SegmentCode, formatDate(cu.Birthdate),
		)
		if err != nil {
			return fmt.Errorf("failed to insert customer %d: %w", cu.ID, err)
		}
	}

	for _, p := range tables.Products {
		closed := 0
		if p.Closed {
			closed = 1
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO products (product_id, customer_id, product_name, status, opened_date, closed) VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.CustomerID, p.Name, p.Status, formatDate(p.OpenedDate), closed,
		)
		if err != nil {
			return fmt.Errorf("failed to insert product %d: %w", p.ID, err)
		}
	}

	for _, t := range tables.Transactions {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO transactions (transaction_id, product_id, date, amount, currency, description, transaction_type) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.ProductID, formatDate(t.Date), t.Amount.String(), t.Currency, t.Description, t.Type,
		)
		if err != nil {
			return fmt.Errorf("failed to insert transaction %d: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit load: %w", err)
	}

	logger.Info("Financial tables loaded",
		zap.Int("customers", len(tables.Customers)),
		zap.Int("products", len(tables.Products)),
		zap.Int("transactions", len(tables.Transactions)),
	)
	return nil
}

func (c *Client) GetCustomer(ctx context.Context, customerID int64) (*models.Customer, error) {
	query := `SELECT customer_id, name, segment_code, birthdate FROM customers WHERE customer_id = ?`

	var cu models.Customer
	var segment, birthdate sql.NullString

	err := c.db.QueryRowContext(ctx, query, customerID).Scan(&cu.ID, &cu.Name, &segment, &birthdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %d: %w", customerID, financial.ErrCustomerNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	cu.SegmentCode = segment.String
	cu.Birthdate = parseDate(birthdate)
	return &cu, nil
}

func (c *Client) ListProductsByCustomer(ctx context.Context, customerID int64) ([]models.Product, error) {
	query := `
		SELECT product_id, customer_id, product_name, status, opened_date
		FROM products
		WHERE customer_id = ? AND closed = 0
		ORDER BY product_id
	`

	rows, err := c.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		var status, opened sql.NullString

		if err := rows.Scan(&p.ID, &p.CustomerID, &p.Name, &status, &opened); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}

		p.Status = status.String
		p.OpenedDate = parseDate(opened)
		products = append(products, p)
	}

	return products, rows.Err()
}

func (c *Client) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	if len(filter.ProductIDs) == 0 {
		return nil, nil
	}

	var (
		conds []string
		args  []any
	)

	placeholders := make([]string, len(filter.ProductIDs))
	for i, id := range filter.ProductIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	conds = append(conds, "product_id IN ("+strings.Join(placeholders, ", ")+")")

	if filter.From != nil {
		conds = append(conds, "date >= ?")
		args = append(args, filter.From.Format(dateLayout))
	}
	if filter.To != nil {
		conds = append(conds, "date <= ?")
		args = append(args, filter.To.Format(dateLayout))
	}
	if filter.Type != "" {
		conds = append(conds, "LOWER(transaction_type) = ?")
		args = append(args, strings.ToLower(filter.Type))
	}

	query := `
		SELECT transaction_id, product_id, date, amount, currency, description, transaction_type
		FROM transactions
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY date DESC, transaction_id DESC
	`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var date, currency, description, txType sql.NullString
		var amount string

		if err := rows.Scan(&t.ID, &t.ProductID, &date, &amount, &currency, &description, &txType); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		t.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("transaction %d has malformed amount %q: %w", t.ID, amount, err)
		}
		t.Date = parseDate(date)
		t.Currency = currency.String
		t.Description = description.String
		t.Type = txType.String
		txs = append(txs, t)
	}

	return txs, rows.Err()
}

func (c *Client) Stats(ctx context.Context) (models.TableStats, error) {
	var stats models.TableStats
	counts := []struct {
		table string
		dest  *int
	}{
		{"customers", &stats.Customers},
		{"products", &stats.Products},
		{"transactions", &stats.Transactions},
	}

	for _, cnt := range counts {
		if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+cnt.table).Scan(cnt.dest); err != nil {
			return stats, fmt.Errorf("failed to count %s: %w", cnt.table, err)
		}
	}
	return stats, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func formatDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func parseDate(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}
