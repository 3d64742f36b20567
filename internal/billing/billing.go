// Package billing gates overall app access on the organization's
// subscription: a trial window first, a paid tier after. Provider internals
// stay behind the CheckoutProvider interface.
package billing

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"kassenwerk.org/internal/ids"
)

var (
	ErrNotFound             = errors.New("billing: not found")
	ErrInvalidInput         = errors.New("billing: invalid input")
	ErrSubscriptionRequired = errors.New("billing: subscription required")
)

// SubscriptionStatus is the paid-tier state.
type SubscriptionStatus string

const (
	StatusTrialing SubscriptionStatus = "trialing"
	StatusActive   SubscriptionStatus = "active"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Subscription tracks the access gate per organization.
type Subscription struct {
	ID             string             `json:"id"`
	OrganizationID string             `json:"organization_id"`
	Status         SubscriptionStatus `json:"status"`
	TrialStartedAt time.Time          `json:"trial_started_at"`
	CustomerID     string             `json:"customer_id,omitempty"`
	SubscriptionID string             `json:"subscription_id,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// WebhookEvent is the payload the payment provider delivers on checkout
// completion.
type WebhookEvent struct {
	SessionID      string `json:"session_id"`
	CustomerID     string `json:"customer_id"`
	SubscriptionID string `json:"subscription_id"`
}

// Store describes persistence required by the billing subsystem.
type Store interface {
	CreateSubscription(ctx context.Context, s *Subscription) error
	FindByOrg(ctx context.Context, orgID string) (*Subscription, error)
	UpdateStatus(ctx context.Context, id string, status SubscriptionStatus, customerID, subscriptionID string) error
}

// CheckoutProvider generates checkout links; a pass-through to the payment
// provider, out of scope beyond this interface.
type CheckoutProvider interface {
	CheckoutURL(ctx context.Context, orgID string) (string, error)
}

// StaticCheckout hands out a fixed checkout URL with the organization id
// appended. It stands in until a real provider is configured.
type StaticCheckout struct {
	BaseURL string
}

func (c StaticCheckout) CheckoutURL(ctx context.Context, orgID string) (string, error) {
	return c.BaseURL + "?organization=" + url.QueryEscape(orgID), nil
}

var _ CheckoutProvider = StaticCheckout{}

// Service implements the subscription gate.
type Service struct {
	store    Store
	trialLen time.Duration
	now      func() time.Time
}

// NewService constructs a Service with the given trial length.
func NewService(store Store, trialDays int) *Service {
	if trialDays <= 0 {
		trialDays = 30
	}
	return &Service{store: store, trialLen: time.Duration(trialDays) * 24 * time.Hour, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// StartTrial opens the trial window for a fresh organization.
func (s *Service) StartTrial(ctx context.Context, orgID string) (*Subscription, error) {
	sub := &Subscription{
		ID:             ids.New(),
		OrganizationID: orgID,
		Status:         StatusTrialing,
		TrialStartedAt: s.now().UTC(),
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// CheckAccess is the binary gate: active always passes, trialing passes
// inside the trial window, everything else requires a subscription.
func (s *Service) CheckAccess(ctx context.Context, orgID string) error {
	sub, err := s.store.FindByOrg(ctx, orgID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrSubscriptionRequired
		}
		return err
	}
	switch sub.Status {
	case StatusActive:
		return nil
	case StatusTrialing:
		if s.now().Before(sub.TrialStartedAt.Add(s.trialLen)) {
			return nil
		}
		return ErrSubscriptionRequired
	default:
		return ErrSubscriptionRequired
	}
}

// HandleWebhook patches the subscription from a provider event.
func (s *Service) HandleWebhook(ctx context.Context, orgID string, ev WebhookEvent) error {
	if strings.TrimSpace(ev.SubscriptionID) == "" {
		return ErrInvalidInput
	}
	sub, err := s.store.FindByOrg(ctx, orgID)
	if err != nil {
		return err
	}
	return s.store.UpdateStatus(ctx, sub.ID, StatusActive, ev.CustomerID, ev.SubscriptionID)
}

// Status returns the organization's subscription.
func (s *Service) Status(ctx context.Context, orgID string) (*Subscription, error) {
	return s.store.FindByOrg(ctx, orgID)
}
