package pg

import (
	"context"
	"database/sql"
	"errors"

	"kassenwerk.org/internal/billing"
)

var _ billing.Store = (*Store)(nil)

func (s *Store) CreateSubscription(ctx context.Context, sub *billing.Subscription) error {
	_, err := s.db.ExecContext(ctx, `
		insert into subscriptions (id, organization_id, status, trial_started_at, customer_id, subscription_id)
		values ($1, $2, $3, $4, $5, $6)
	`, sub.ID, sub.OrganizationID, sub.Status, sub.TrialStartedAt,
		nullStr(sub.CustomerID), nullStr(sub.SubscriptionID))
	if isUniqueViolation(err) {
		return billing.ErrInvalidInput
	}
	return err
}

func (s *Store) FindByOrg(ctx context.Context, orgID string) (*billing.Subscription, error) {
	var sub billing.Subscription
	var customerID, providerID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, status, trial_started_at, customer_id, subscription_id,
			created_at, updated_at
		from subscriptions where organization_id = $1
	`, orgID).Scan(&sub.ID, &sub.OrganizationID, &sub.Status, &sub.TrialStartedAt,
		&customerID, &providerID, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, billing.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sub.CustomerID = fromNull(customerID)
	sub.SubscriptionID = fromNull(providerID)
	return &sub, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status billing.SubscriptionStatus, customerID, subscriptionID string) error {
	res, err := s.db.ExecContext(ctx, `
		update subscriptions
		set status = $2, customer_id = $3, subscription_id = $4, updated_at = now()
		where id = $1
	`, id, status, nullStr(customerID), nullStr(subscriptionID))
	if err != nil {
		return err
	}
	return noRowsAsNotFound(res, billing.ErrNotFound)
}
