// Package personal renders a customer's own records as prompt context.
package personal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/bank-assistant/backend/internal/financial"
	"github.com/bank-assistant/backend/internal/metrics"
	"github.com/bank-assistant/backend/internal/storage/models"
	"github.com/bank-assistant/backend/pkg/logger"
)

const (
	retrievalFailed  = "Error: Could not retrieve customer data."
	noProducts       = "No active products."
	noTransactions   = "No recent transactions."
	customerNotFound = "Error: Customer with ID '%d' not found."
)

// NotFoundMessage is the context text used for an unknown customer.
func NotFoundMessage(customerID int64) string {
	return fmt.Sprintf(customerNotFound, customerID)
}

type Assembler struct {
	store financial.Store
}

func NewAssembler(store financial.Store) *Assembler {
	return &Assembler{store: store}
}

// RetrievePersonal never fails: lookup problems are reported as context
// text so the model can answer gracefully.
func (a *Assembler) RetrievePersonal(ctx context.Context, customerID int64, includeTransactions bool) string {
	log := logger.GetLogger().With(zap.Int64("customer_id", customerID))

	customer, err := a.store.GetCustomer(ctx, customerID)
	if errors.Is(err, financial.ErrCustomerNotFound) {
		log.Info("Customer not found")
		metrics.PersonalContextTotal.WithLabelValues("not_found").Inc()
		return NotFoundMessage(customerID)
	}
	if err != nil {
		log.Error("Failed to load customer", zap.Error(err))
		metrics.PersonalContextTotal.WithLabelValues("error").Inc()
		return retrievalFailed
	}

	products, err := a.store.ListProductsByCustomer(ctx, customerID)
	if err != nil {
		log.Error("Failed to load products", zap.Error(err))
		metrics.PersonalContextTotal.WithLabelValues("error").Inc()
		return retrievalFailed
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Customer Profile:\n- Name: %s\n- Segment: %s\n\nOwned Products (Active):\n", customer.Name, customer.SegmentCode)
	if len(products) == 0 {
		b.WriteString(noProducts + "\n")
	} else {
		writeProducts(&b, products)
	}

	if includeTransactions {
		ids := make([]int64, len(products))
		for i, p := range products {
			ids[i] = p.ID
		}

		txs, err := a.store.ListTransactions(ctx, models.TransactionFilter{ProductIDs: ids})
		if err != nil {
			log.Error("Failed to load transactions", zap.Error(err))
			metrics.PersonalContextTotal.WithLabelValues("error").Inc()
			return retrievalFailed
		}

		b.WriteString("\nRecent Transactions:\n")
		if len(txs) == 0 {
			b.WriteString(noTransactions + "\n")
		} else {
			writeTransactions(&b, txs)
		}
	}

	metrics.PersonalContextTotal.WithLabelValues("ok").Inc()
	return b.String()
}

func writeProducts(b *strings.Builder, products []models.Product) {
	w := tabwriter.NewWriter(b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "product_name\tstatus")
	for _, p := range products {
		fmt.Fprintf(w, "%s\t%s\n", p.Name, p.Status)
	}
	_ = w.Flush()
}

func writeTransactions(b *strings.Builder, txs []models.Transaction) {
	w := tabwriter.NewWriter(b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "date\tdescription\tamount\tcurrency")
	for _, t := range txs {
		date := "unknown"
		if t.Date != nil {
			date = t.Date.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", date, t.Description, t.Amount.StringFixed(2), t.Currency)
	}
	_ = w.Flush()
}
