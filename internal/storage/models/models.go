package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID          int64
	Name        string
	SegmentCode string
	Birthdate   *time.Time
}

type Product struct {
	ID         int64
	CustomerID int64
	Name       string
	Status     string
	OpenedDate *time.Time
	Closed     bool
}

type Transaction struct {
	ID          int64
	ProductID   int64
	Date        *time.Time
	Amount      decimal.Decimal
	Currency    string
	Description string
	Type        string
}

// TransactionFilter narrows ListTransactions. Zero values mean "no bound".
type TransactionFilter struct {
	ProductIDs []int64
	From       *time.Time
	To         *time.Time
	Type       string
}

// DocumentChunk is one passage of public bank knowledge. ID carries the
// language prefix ("en_12") and is unique across the whole index.
type DocumentChunk struct {
	ID       string
	Language string
	Title    string
	URL      string
	Number   int
	Content  string
}

type TableStats struct {
	Customers    int
	Products     int
	Transactions int
}
