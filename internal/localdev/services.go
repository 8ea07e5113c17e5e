// Package localdev provides in-memory service implementations so workflows
// can run end to end without external billing infrastructure. Not for
// production use.
package localdev

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerflow/ledgerflow/pkg/services"
)

// NewDependencies builds a fully wired in-memory service bundle.
func NewDependencies(logger *slog.Logger) *services.Dependencies {
	store := &memoryStore{
		customers: make(map[string]*services.Customer),
		invoices:  make(map[string]*services.Invoice),
	}

	return &services.Dependencies{
		Customers: store,
		Invoices:  store,
		Payments:  &paymentGateway{},
		Tax:       &taxService{},
		Notifier:  &logNotifier{logger: logger.With("module", "notifier")},
	}
}

type memoryStore struct {
	mu        sync.RWMutex
	customers map[string]*services.Customer
	invoices  map[string]*services.Invoice
	usage     []*services.UsageRecord
}

func (s *memoryStore) GetCustomer(_ context.Context, id string) (*services.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %s not found", id)
	}

	copied := *customer

	return &copied, nil
}

func (s *memoryStore) SaveCustomer(_ context.Context, customer *services.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *customer
	s.customers[customer.ID] = &copied

	return nil
}

func (s *memoryStore) SaveInvoice(_ context.Context, invoice *services.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *invoice
	s.invoices[invoice.ID] = &copied

	return nil
}

func (s *memoryStore) GetInvoice(_ context.Context, id string) (*services.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, ok := s.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %s not found", id)
	}

	copied := *invoice

	return &copied, nil
}

// AddUsage seeds usage records for local runs.
func (s *memoryStore) AddUsage(records ...*services.UsageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.usage = append(s.usage, records...)
}

func (s *memoryStore) UsageRecords(_ context.Context, customerID string, _ time.Time) ([]*services.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*services.UsageRecord

	for _, record := range s.usage {
		if record.CustomerID == customerID {
			matched = append(matched, record)
		}
	}

	return matched, nil
}

// paymentGateway captures every charge and remembers nothing across restarts.
type paymentGateway struct{}

func (g *paymentGateway) Charge(_ context.Context, req *services.ChargeRequest) (*services.ChargeResult, error) {
	return &services.ChargeResult{
		PaymentID: "pay-" + uuid.New().String()[:8],
		Amount:    req.Amount,
		Captured:  true,
	}, nil
}

func (g *paymentGateway) Refund(_ context.Context, _ string, _ decimal.Decimal) error {
	return nil
}

func (g *paymentGateway) PaymentMethods(_ context.Context, _ string) ([]*services.PaymentMethod, error) {
	return []*services.PaymentMethod{
		{ID: "pm-card", Type: "card", Last4: "4242", Default: true},
	}, nil
}

// taxService applies a flat 10% rate everywhere.
type taxService struct{}

func (t *taxService) CalculateTax(_ context.Context, req *services.TaxRequest) (*services.TaxResult, error) {
	rate := decimal.NewFromFloat(0.10)

	return &services.TaxResult{
		Tax:  req.Amount.Mul(rate).Round(2),
		Rate: rate,
	}, nil
}

func (t *taxService) TaxRate(_ context.Context, _ string) (decimal.Decimal, error) {
	return decimal.NewFromFloat(0.10), nil
}

type logNotifier struct {
	logger *slog.Logger
}

func (n *logNotifier) SendInvoiceNotification(ctx context.Context, customerID, invoiceID string) error {
	n.logger.InfoContext(ctx, "Invoice notification", "customer_id", customerID, "invoice_id", invoiceID)

	return nil
}

func (n *logNotifier) SendPaymentNotification(ctx context.Context, customerID, paymentID string) error {
	n.logger.InfoContext(ctx, "Payment notification", "customer_id", customerID, "payment_id", paymentID)

	return nil
}

func (n *logNotifier) SendApprovalRequest(ctx context.Context, workflowID string, approvalData map[string]any) error {
	n.logger.InfoContext(ctx, "Approval requested", "workflow_id", workflowID, "approval_data", approvalData)

	return nil
}
