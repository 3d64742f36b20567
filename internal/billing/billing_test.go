package billing

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubStore struct {
	subs map[string]*Subscription // org id -> subscription
}

func newStubStore() *stubStore {
	return &stubStore{subs: make(map[string]*Subscription)}
}

func (s *stubStore) CreateSubscription(ctx context.Context, sub *Subscription) error {
	cp := *sub
	s.subs[sub.OrganizationID] = &cp
	return nil
}

func (s *stubStore) FindByOrg(ctx context.Context, orgID string) (*Subscription, error) {
	sub, ok := s.subs[orgID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *stubStore) UpdateStatus(ctx context.Context, id string, status SubscriptionStatus, customerID, subscriptionID string) error {
	for _, sub := range s.subs {
		if sub.ID == id {
			sub.Status = status
			sub.CustomerID = customerID
			sub.SubscriptionID = subscriptionID
			return nil
		}
	}
	return ErrNotFound
}

func TestTrialWindow(t *testing.T) {
	store := newStubStore()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := start
	svc := NewService(store, 30).WithClock(func() time.Time { return clock })
	ctx := context.Background()

	sub, err := svc.StartTrial(ctx, "org-1")
	if err != nil {
		t.Fatalf("start trial: %v", err)
	}
	if sub.Status != StatusTrialing {
		t.Fatalf("status = %q, want trialing", sub.Status)
	}

	if err := svc.CheckAccess(ctx, "org-1"); err != nil {
		t.Errorf("day 0: %v", err)
	}
	clock = start.Add(29 * 24 * time.Hour)
	if err := svc.CheckAccess(ctx, "org-1"); err != nil {
		t.Errorf("day 29: %v", err)
	}
	clock = start.Add(30 * 24 * time.Hour)
	if err := svc.CheckAccess(ctx, "org-1"); !errors.Is(err, ErrSubscriptionRequired) {
		t.Errorf("day 30: err = %v, want ErrSubscriptionRequired", err)
	}
}

func TestCheckAccessStates(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, 30)
	ctx := context.Background()

	if err := svc.CheckAccess(ctx, "org-none"); !errors.Is(err, ErrSubscriptionRequired) {
		t.Errorf("no subscription: err = %v, want ErrSubscriptionRequired", err)
	}

	store.subs["org-active"] = &Subscription{ID: "s1", OrganizationID: "org-active", Status: StatusActive}
	if err := svc.CheckAccess(ctx, "org-active"); err != nil {
		t.Errorf("active: %v", err)
	}

	store.subs["org-canceled"] = &Subscription{ID: "s2", OrganizationID: "org-canceled", Status: StatusCanceled}
	if err := svc.CheckAccess(ctx, "org-canceled"); !errors.Is(err, ErrSubscriptionRequired) {
		t.Errorf("canceled: err = %v, want ErrSubscriptionRequired", err)
	}
}

func TestHandleWebhookActivates(t *testing.T) {
	store := newStubStore()
	svc := NewService(store, 30)
	ctx := context.Background()

	if _, err := svc.StartTrial(ctx, "org-1"); err != nil {
		t.Fatalf("start trial: %v", err)
	}
	err := svc.HandleWebhook(ctx, "org-1", WebhookEvent{
		SessionID:      "cs_123",
		CustomerID:     "cus_123",
		SubscriptionID: "sub_123",
	})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	got, _ := store.FindByOrg(ctx, "org-1")
	if got.Status != StatusActive || got.SubscriptionID != "sub_123" {
		t.Fatalf("after webhook: %+v", got)
	}

	if err := svc.HandleWebhook(ctx, "org-1", WebhookEvent{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty subscription id: err = %v, want ErrInvalidInput", err)
	}
	if err := svc.HandleWebhook(ctx, "org-unknown", WebhookEvent{SubscriptionID: "sub_9"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown org: err = %v, want ErrNotFound", err)
	}
}
