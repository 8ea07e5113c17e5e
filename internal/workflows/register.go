// Package workflows provides the built-in billing workflow classes: customer
// onboarding, invoice generation, and payment processing.
package workflows

import (
	"context"

	"github.com/ledgerflow/ledgerflow/pkg/models"
	"github.com/ledgerflow/ledgerflow/pkg/registry"
	"github.com/ledgerflow/ledgerflow/pkg/services"
	"github.com/ledgerflow/ledgerflow/pkg/workflow"
)

const (
	ClassCustomerOnboarding = "customer_onboarding"
	ClassInvoiceGeneration  = "invoice_generation"
	ClassPaymentProcessing  = "payment_processing"
)

// RegisterAll binds the built-in workflow classes to the registry.
func RegisterAll(reg *registry.Registry) {
	reg.Register(onboardingComponent(), newOnboarding)
	reg.Register(invoiceComponent(), newInvoice)
	reg.Register(paymentComponent(), newPayment)
}

func newOnboarding(_ context.Context, params map[string]any, deps *services.Dependencies) (*workflow.Workflow, error) {
	steps := &OnboardingSteps{
		customers: deps.Customers,
		notifier:  deps.Notifier,
	}

	return workflow.New(ClassCustomerOnboarding, onboardingStepOrder, steps, baseOptions(params)...)
}

func newInvoice(_ context.Context, params map[string]any, deps *services.Dependencies) (*workflow.Workflow, error) {
	steps := &InvoiceSteps{
		customers: deps.Customers,
		invoices:  deps.Invoices,
		tax:       deps.Tax,
		notifier:  deps.Notifier,
	}

	return workflow.New(ClassInvoiceGeneration, invoiceStepOrder, steps, baseOptions(params)...)
}

func newPayment(_ context.Context, params map[string]any, deps *services.Dependencies) (*workflow.Workflow, error) {
	steps := &PaymentSteps{
		payments: deps.Payments,
		notifier: deps.Notifier,
	}

	opts := baseOptions(params)

	if threshold, ok := asThreshold(params["approval_threshold"]); ok {
		opts = append(opts, workflow.WithApproval(threshold))
	}

	return workflow.New(ClassPaymentProcessing, paymentStepOrder, steps, opts...)
}

func baseOptions(params map[string]any) []workflow.Option {
	opts := []workflow.Option{workflow.WithParameters(params)}

	if id, ok := params["workflow_id"].(string); ok && id != "" {
		opts = append(opts, workflow.WithID(id))
	}

	if tenant, ok := params["tenant_id"].(string); ok && tenant != "" {
		opts = append(opts, workflow.WithTenant(tenant))
	}

	return opts
}

func asThreshold(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func onboardingComponent() *models.RegisteredComponent {
	return &models.RegisteredComponent{
		Type:        ClassCustomerOnboarding,
		Name:        "Customer Onboarding",
		Description: "Creates a customer account, provisions services, and sends the welcome notification",
		Schema: &models.JSONSchema{
			Type:  "object",
			Title: "Customer Onboarding Configuration",
			Properties: map[string]*models.Property{
				"customer_name": {
					Type:        "string",
					Description: "Full name of the customer",
				},
				"customer_email": {
					Type:        "string",
					Format:      "email",
					Description: "Contact email for the customer",
				},
				"region": {
					Type:        "string",
					Description: "Billing region of the customer",
				},
				"plan": {
					Type:        "string",
					Description: "Service plan to provision",
					Default:     "standard",
				},
			},
			Required: []string{"customer_name", "customer_email"},
		},
	}
}

func invoiceComponent() *models.RegisteredComponent {
	return &models.RegisteredComponent{
		Type:        ClassInvoiceGeneration,
		Name:        "Invoice Generation",
		Description: "Collects rated usage, calculates tax, issues the invoice, and notifies the customer",
		Schema: &models.JSONSchema{
			Type:  "object",
			Title: "Invoice Generation Configuration",
			Properties: map[string]*models.Property{
				"customer_id": {
					Type:        "string",
					Description: "Customer to invoice",
				},
				"period_start": {
					Type:        "string",
					Format:      "date-time",
					Description: "Start of the usage period (RFC 3339); defaults to one month ago",
				},
				"currency": {
					Type:        "string",
					Description: "Invoice currency",
					Default:     "USD",
				},
			},
			Required: []string{"customer_id"},
		},
	}
}

func paymentComponent() *models.RegisteredComponent {
	return &models.RegisteredComponent{
		Type:        ClassPaymentProcessing,
		Name:        "Payment Processing",
		Description: "Charges the customer's payment method, with an approval gate above the configured amount",
		Schema: &models.JSONSchema{
			Type:  "object",
			Title: "Payment Processing Configuration",
			Properties: map[string]*models.Property{
				"customer_id": {
					Type:        "string",
					Description: "Customer to charge",
				},
				"amount": {
					Type:        "number",
					Description: "Amount to capture",
				},
				"currency": {
					Type:        "string",
					Description: "Charge currency",
					Default:     "USD",
				},
				"invoice_id": {
					Type:        "string",
					Description: "Invoice this payment settles",
				},
				"approval_threshold": {
					Type:        "number",
					Description: "Amounts at or above this value require approval before capture",
				},
			},
			Required: []string{"customer_id", "amount"},
		},
	}
}
