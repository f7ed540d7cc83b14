package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// subscriptionDays is how long a captured payment extends a subscription
const subscriptionDays = 30

// Plan is a subscription plan with a monthly price in minor units
type Plan struct {
	Name        string
	Amount      int64
	Description string
}

// Plans are the offered subscription tiers
var Plans = map[string]Plan{
	"basic": {
		Name:        "basic",
		Amount:      29900, // ₹299
		Description: "Basic Subscription - ₹299/month",
	},
	"premium": {
		Name:        "premium",
		Amount:      49900, // ₹499
		Description: "Premium Subscription - ₹499/month",
	},
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (defaultTimeSource) Now() time.Time { return time.Now() }

// Service creates payment links, records payments, and keeps
// subscriptions current from webhook events.
type Service struct {
	store      Store
	links      LinkCreator
	timeSource TimeSource
}

// NewService creates a new payment Service
func NewService(store Store, links LinkCreator) *Service {
	return &Service{store: store, links: links, timeSource: defaultTimeSource{}}
}

// NewServiceWithDeps creates a Service with a custom time source for testing
func NewServiceWithDeps(store Store, links LinkCreator, timeSource TimeSource) *Service {
	return &Service{store: store, links: links, timeSource: timeSource}
}

// CreateLink creates a payment link and records it, idempotently by
// provider link ID. Amount is minor units.
func (s *Service) CreateLink(ctx context.Context, phone string, amount int64, currency, description string) (*PaymentLink, error) {
	if s.links == nil {
		return nil, fmt.Errorf("payment provider not configured")
	}

	link, err := s.links.CreatePaymentLink(ctx, LinkRequest{
		Phone:       phone,
		Amount:      amount,
		Currency:    currency,
		Description: description,
	})
	if err != nil {
		return nil, fmt.Errorf("creating payment link: %w", err)
	}

	now := s.timeSource.Now()
	status := link.Status
	if status == "" {
		status = "created"
	}
	record := &Payment{
		ProviderPaymentID: link.ID,
		Phone:             phone,
		Amount:            link.Amount,
		Currency:          link.Currency,
		Status:            status,
		ReferenceID:       link.ReferenceID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.SavePayment(record); err != nil {
		// The link exists at the provider; the operator can reconcile
		slog.Error("Failed to persist payment record", "link_id", link.ID, "error", err)
	}

	return link, nil
}

// CreateSubscriptionLink creates a payment link for a subscription plan.
// Unknown plans fall back to premium.
func (s *Service) CreateSubscriptionLink(ctx context.Context, phone, planName string) (*PaymentLink, error) {
	plan, ok := Plans[strings.ToLower(planName)]
	if !ok {
		plan = Plans["premium"]
	}
	return s.CreateLink(ctx, phone, plan.Amount, "INR", plan.Description)
}

// ActivateSubscription extends a phone's subscription by the standard
// period, from the later of now and the current expiry.
func (s *Service) ActivateSubscription(phone, planName string) (*Subscription, error) {
	now := s.timeSource.Now()

	sub, err := s.store.GetSubscription(phone)
	if err != nil {
		return nil, fmt.Errorf("getting subscription: %w", err)
	}
	if sub == nil {
		sub = &Subscription{Phone: phone}
	}

	base := now
	if sub.ActiveUntil.After(now) {
		base = sub.ActiveUntil
	}
	sub.ActiveUntil = base.Add(subscriptionDays * 24 * time.Hour)
	if planName != "" {
		sub.Plan = planName
	}
	sub.UpdatedAt = now

	if err := s.store.SaveSubscription(sub); err != nil {
		return nil, fmt.Errorf("saving subscription: %w", err)
	}
	return sub, nil
}

// SubscriptionActive reports whether a phone has an active subscription
func (s *Service) SubscriptionActive(phone string) (bool, error) {
	sub, err := s.store.GetSubscription(phone)
	if err != nil {
		return false, fmt.Errorf("getting subscription: %w", err)
	}
	return sub != nil && sub.ActiveUntil.After(s.timeSource.Now()), nil
}
