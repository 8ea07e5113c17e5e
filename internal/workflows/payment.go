package workflows

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ledgerflow/ledgerflow/pkg/models"
	"github.com/ledgerflow/ledgerflow/pkg/services"
	"github.com/ledgerflow/ledgerflow/pkg/workflow"
)

// PaymentSteps implements payment collection: method selection, capture, and
// confirmation. Charges at or above the approval threshold suspend the
// workflow at the capture step until an operator decides.
type PaymentSteps struct {
	workflow.Base

	payments services.PaymentGateway
	notifier services.NotificationService
}

var paymentStepOrder = []string{
	"select_payment_method",
	"charge_payment",
	"confirm_payment",
}

func (s *PaymentSteps) ValidateBusinessRules(_ context.Context, wc *workflow.Context) (*models.WorkflowResult, error) {
	if wc.StringParam("customer_id") == "" {
		return models.StepFailure("validate_business_rules", "customer_id is required"), nil
	}

	amount := wc.FloatParam("amount")
	if amount <= 0 {
		return models.StepFailure("validate_business_rules", fmt.Sprintf("amount must be positive, got %v", amount)), nil
	}

	return models.StepSuccess("validate_business_rules", nil, "payment request is well formed"), nil
}

func (s *PaymentSteps) ExecuteStep(ctx context.Context, step string, wc *workflow.Context) (*models.WorkflowResult, error) {
	switch step {
	case "select_payment_method":
		return s.selectPaymentMethod(ctx, wc)
	case "charge_payment":
		return s.chargePayment(ctx, wc)
	case "confirm_payment":
		return s.confirmPayment(ctx, wc)
	default:
		return nil, fmt.Errorf("unknown payment step: %s", step)
	}
}

func (s *PaymentSteps) selectPaymentMethod(ctx context.Context, wc *workflow.Context) (*models.WorkflowResult, error) {
	customerID := wc.StringParam("customer_id")

	methods, err := s.payments.PaymentMethods(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}

	if len(methods) == 0 {
		return models.StepFailure("select_payment_method", fmt.Sprintf("customer %s has no payment methods", customerID)), nil
	}

	selected := methods[0]

	for _, method := range methods {
		if method.Default {
			selected = method

			break
		}
	}

	wc.Set("payment_method_id", selected.ID)

	if wc.RequireApproval && wc.FloatParam("amount") >= wc.ApprovalThreshold {
		return models.StepApprovalRequired("select_payment_method",
			map[string]any{"payment_method_id": selected.ID},
			map[string]any{
				"customer_id": customerID,
				"amount":      wc.FloatParam("amount"),
				"threshold":   wc.ApprovalThreshold,
			}), nil
	}

	return models.StepSuccess("select_payment_method", map[string]any{
		"payment_method_id": selected.ID,
	}, "payment method selected"), nil
}

func (s *PaymentSteps) chargePayment(ctx context.Context, wc *workflow.Context) (*models.WorkflowResult, error) {
	methodID, _ := wc.BusinessContext["payment_method_id"].(string)
	amount := decimal.NewFromFloat(wc.FloatParam("amount"))

	result, err := s.payments.Charge(ctx, &services.ChargeRequest{
		CustomerID:      wc.StringParam("customer_id"),
		PaymentMethodID: methodID,
		Amount:          amount,
		Currency:        currency(wc),
		Reference:       wc.StringParam("invoice_id"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to charge payment: %w", err)
	}

	if !result.Captured {
		return models.StepFailure("charge_payment", fmt.Sprintf("charge %s was not captured", result.PaymentID)), nil
	}

	wc.Set("payment_id", result.PaymentID)
	wc.Set("charged_amount", result.Amount.String())

	return models.StepSuccess("charge_payment", map[string]any{
		"payment_id": result.PaymentID,
		"amount":     result.Amount.String(),
	}, "payment captured"), nil
}

func (s *PaymentSteps) confirmPayment(ctx context.Context, wc *workflow.Context) (*models.WorkflowResult, error) {
	paymentID, _ := wc.BusinessContext["payment_id"].(string)

	err := s.notifier.SendPaymentNotification(ctx, wc.StringParam("customer_id"), paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to send payment confirmation: %w", err)
	}

	return models.StepSuccess("confirm_payment", nil, "payment confirmed"), nil
}

// RollbackStep refunds a captured charge. Method selection and confirmation
// have nothing to undo.
func (s *PaymentSteps) RollbackStep(ctx context.Context, step string, wc *workflow.Context) (*models.WorkflowResult, error) {
	if step != "charge_payment" {
		return models.StepSuccess(step, nil, "nothing to roll back"), nil
	}

	paymentID, _ := wc.BusinessContext["payment_id"].(string)
	if paymentID == "" {
		return models.StepSuccess(step, nil, "no charge was captured"), nil
	}

	raw, _ := wc.BusinessContext["charged_amount"].(string)

	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, errors.New("charged amount missing from business context")
	}

	if err := s.payments.Refund(ctx, paymentID, amount); err != nil {
		return nil, fmt.Errorf("failed to refund payment %s: %w", paymentID, err)
	}

	return models.StepSuccess(step, map[string]any{
		"payment_id": paymentID,
		"refunded":   amount.String(),
	}, "payment refunded"), nil
}
