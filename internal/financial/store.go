// Package financial declares the read-only view of customer records that the
// answer pipeline depends on.
package financial

import (
	"context"
	"errors"

	"github.com/bank-assistant/backend/internal/storage/models"
)

var ErrCustomerNotFound = errors.New("customer not found")

type Store interface {
	GetCustomer(ctx context.Context, customerID int64) (*models.Customer, error)
	// ListProductsByCustomer returns the customer's open products ordered by id.
	ListProductsByCustomer(ctx context.Context, customerID int64) ([]models.Product, error)
	// ListTransactions returns matching transactions newest first.
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
}

// Tables is a bulk snapshot of the source tables, as produced by the loaders.
type Tables struct {
	Customers    []models.Customer
	Products     []models.Product
	Transactions []models.Transaction
}
