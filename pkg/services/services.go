// Package services declares the external collaborator interfaces concrete
// workflow steps are built against: persistence repositories, the payment
// gateway, the tax service and the notification service. The orchestration
// core never touches these directly; only step implementations do.
package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Customer is the billing view of a tenant's customer account.
type Customer struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Region   string `json:"region"`
	Active   bool   `json:"active"`
}

// Invoice is a billing document issued to a customer.
type Invoice struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
	Status     string          `json:"status"`
	IssuedAt   time.Time       `json:"issued_at"`
}

// UsageRecord is one rated usage line collected for invoicing.
type UsageRecord struct {
	CustomerID string          `json:"customer_id"`
	Service    string          `json:"service"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// ChargeRequest asks the payment gateway to capture an amount.
type ChargeRequest struct {
	CustomerID      string          `json:"customer_id"`
	PaymentMethodID string          `json:"payment_method_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Reference       string          `json:"reference"`
}

// ChargeResult is the gateway's answer to a charge.
type ChargeResult struct {
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Captured  bool            `json:"captured"`
}

// PaymentMethod is a stored instrument usable for charges.
type PaymentMethod struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Last4   string `json:"last4"`
	Default bool   `json:"default"`
}

// TaxRequest asks the tax service to compute tax for an amount in a region.
type TaxRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Region   string          `json:"region"`
}

// TaxResult carries the computed tax amount and the rate applied.
type TaxResult struct {
	Tax  decimal.Decimal `json:"tax"`
	Rate decimal.Decimal `json:"rate"`
}

type CustomerRepository interface {
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	SaveCustomer(ctx context.Context, customer *Customer) error
}

type InvoiceRepository interface {
	SaveInvoice(ctx context.Context, invoice *Invoice) error
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	UsageRecords(ctx context.Context, customerID string, since time.Time) ([]*UsageRecord, error)
}

type PaymentGateway interface {
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal) error
	PaymentMethods(ctx context.Context, customerID string) ([]*PaymentMethod, error)
}

type TaxService interface {
	CalculateTax(ctx context.Context, req *TaxRequest) (*TaxResult, error)
	TaxRate(ctx context.Context, region string) (decimal.Decimal, error)
}

type NotificationService interface {
	SendInvoiceNotification(ctx context.Context, customerID, invoiceID string) error
	SendPaymentNotification(ctx context.Context, customerID, paymentID string) error
	SendApprovalRequest(ctx context.Context, workflowID string, approvalData map[string]any) error
}

// Dependencies bundles the collaborators injected into workflow factories.
// Fields a given workflow class does not use may be nil.
type Dependencies struct {
	Customers CustomerRepository
	Invoices  InvoiceRepository
	Payments  PaymentGateway
	Tax       TaxService
	Notifier  NotificationService
}
