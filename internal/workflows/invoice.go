package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerflow/ledgerflow/pkg/models"
	"github.com/ledgerflow/ledgerflow/pkg/services"
	"github.com/ledgerflow/ledgerflow/pkg/workflow"
)

// InvoiceSteps implements invoice generation: usage collection, tax
// calculation, invoice issuance, and customer notification.
type InvoiceSteps struct {
	workflow.Base

	customers services.CustomerRepository
	invoices  services.InvoiceRepository
	tax       services.TaxService
	notifier  services.NotificationService
}

var invoiceStepOrder = []string{
	"collect_usage",
	"calculate_tax",
	"issue_invoice",
	"notify_customer",
}

func (s *InvoiceSteps) ValidateBusinessRules(ctx context.Context, wc *workflow.Context) (*models.WorkflowResult, error) {
	customerID := wc.StringParam("customer_id")
	if customerID == "" {
		return models.StepFailure("validate_business_rules", "customer_id is required"), nil
	}

	customer, err := s.customers.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}

	if !customer.Active {
		return models.StepFailure("validate_business_rules", fmt.Sprintf("customer %s is inactive", customerID)), nil
	}

	wc.Set("region", customer.Region)

	return models.StepSuccess("validate_business_rules", nil, "customer is billable"), nil
}

func (s *InvoiceSteps) ExecuteStep(ctx context.Context, step string, wc *workflow.Context) (*models.WorkflowResult, error) {
	switch step {
	case "collect_usage":
		return s.collectUsage(ctx, wc)
	case "calculate_tax":
		return s.calculateTax(ctx, wc)
	case "issue_invoice":
		return s.issueInvoice(ctx, wc)
	case "notify_customer":
		return s.notifyCustomer(ctx, wc)
	default:
		return nil, fmt.Errorf("unknown invoice step: %s", step)
	}
}

func (s *InvoiceSteps) collectUsage(ctx context.Context, wc *workflow.Context) (*models.WorkflowResult, error) {
	customerID := wc.StringParam("customer_id")

	since := time.Now().UTC().AddDate(0, -1, 0)
	if raw := wc.StringParam("period_start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return models.StepFailure("collect_usage", fmt.Sprintf("invalid period_start: %v", err)), nil
		}

		since = parsed
	}

	records, err := s.invoices.UsageRecords(ctx, customerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to collect usage records: %w", err)
	}

	subtotal := decimal.Zero
	for _, record := range records {
		subtotal = subtotal.Add(record.Quantity.Mul(record.UnitPrice))
	}

	wc.Set("subtotal", subtotal.String())

	return models.StepSuccess("collect_usage", map[string]any{
		"usage_records": len(records),
		"subtotal":      subtotal.String(),
	}, fmt.Sprintf("collected %d usage records", len(records))), nil
}

func (s *InvoiceSteps) calculateTax(ctx context.Context, wc *workflow.Context) (*models.WorkflowResult, error) {
	subtotal, err := contextDecimal(wc, "subtotal")
	if err != nil {
		return nil, err
	}

	region, _ := wc.BusinessContext["region"].(string)

	result, err := s.tax.CalculateTax(ctx, &services.TaxRequest{
		Amount:   subtotal,
		Currency: currency(wc),
		Region:   region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to calculate tax: %w", err)
	}

	wc.Set("tax", result.Tax.String())
	wc.Set("total", subtotal.Add(result.Tax).String())

	return models.StepSuccess("calculate_tax", map[string]any{
		"tax":  result.Tax.String(),
		"rate": result.Rate.String(),
	}, "tax calculated"), nil
}

func (s *InvoiceSteps) issueInvoice(ctx context.Context, wc *workflow.Context) (*models.WorkflowResult, error) {
	subtotal, err := contextDecimal(wc, "subtotal")
	if err != nil {
		return nil, err
	}

	tax, err := contextDecimal(wc, "tax")
	if err != nil {
		return nil, err
	}

	invoice := &services.Invoice{
		ID:         "inv-" + uuid.New().String()[:8],
		CustomerID: wc.StringParam("customer_id"),
		Subtotal:   subtotal,
		Tax:        tax,
		Total:      subtotal.Add(tax),
		Currency:   currency(wc),
		Status:     "issued",
		IssuedAt:   time.Now().UTC(),
	}

	if err := s.invoices.SaveInvoice(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to issue invoice: %w", err)
	}

	wc.Set("invoice_id", invoice.ID)
	wc.Set("amount", invoice.Total.InexactFloat64())

	return models.StepSuccess("issue_invoice", map[string]any{
		"invoice_id": invoice.ID,
		"total":      invoice.Total.String(),
	}, "invoice issued"), nil
}

func (s *InvoiceSteps) notifyCustomer(ctx context.Context, wc *workflow.Context) (*models.WorkflowResult, error) {
	invoiceID, _ := wc.BusinessContext["invoice_id"].(string)

	err := s.notifier.SendInvoiceNotification(ctx, wc.StringParam("customer_id"), invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to notify customer: %w", err)
	}

	return models.StepSuccess("notify_customer", nil, "invoice notification sent"), nil
}

// RollbackStep voids an issued invoice. The other steps leave no durable
// state.
func (s *InvoiceSteps) RollbackStep(ctx context.Context, step string, wc *workflow.Context) (*models.WorkflowResult, error) {
	if step != "issue_invoice" {
		return models.StepSuccess(step, nil, "nothing to roll back"), nil
	}

	invoiceID, _ := wc.BusinessContext["invoice_id"].(string)
	if invoiceID == "" {
		return models.StepSuccess(step, nil, "no invoice was issued"), nil
	}

	invoice, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice for rollback: %w", err)
	}

	invoice.Status = "voided"

	if err := s.invoices.SaveInvoice(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to void invoice: %w", err)
	}

	return models.StepSuccess(step, map[string]any{
		"invoice_id": invoiceID,
	}, "invoice voided"), nil
}

func contextDecimal(wc *workflow.Context, key string) (decimal.Decimal, error) {
	raw, _ := wc.BusinessContext[key].(string)

	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("missing or invalid %s in business context: %w", key, err)
	}

	return value, nil
}

func currency(wc *workflow.Context) string {
	if c := wc.StringParam("currency"); c != "" {
		return c
	}

	return "USD"
}
