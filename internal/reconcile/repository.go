package reconcile

import (
	"context"
	"errors"
	"time"

	"creator-subscriptions/internal/domain/billing"
	"creator-subscriptions/internal/domain/earnings"
	"creator-subscriptions/internal/domain/events"
	"creator-subscriptions/internal/domain/plans"
	"creator-subscriptions/internal/domain/subscriptions"
	"creator-subscriptions/internal/domain/users"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

var _ Store = (*Repository)(nil)

// NewRepository creates a Store backed by GORM.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var forUpdate = clause.Locking{Strength: "UPDATE"}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *Repository) InTx(ctx context.Context, fn func(tx Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

func (r *Repository) GetUser(ctx context.Context, id uint) (*users.User, error) {
	var u users.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *Repository) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*users.User, error) {
	var u users.User
	if err := r.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *Repository) SetStripeCustomerID(ctx context.Context, userID uint, customerID string) error {
	return r.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ?", userID).
		Update("stripe_customer_id", customerID).Error
}

func (r *Repository) SetDefaultPaymentMethod(ctx context.Context, userID uint, paymentMethodID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&users.User{}).
		Where("id = ? AND (default_payment_method_id IS NULL OR default_payment_method_id <> ?)", userID, paymentMethodID).
		Update("default_payment_method_id", paymentMethodID)
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) FindCreatorPrice(ctx context.Context, lookupKey string) (*plans.CreatorPrice, error) {
	var p plans.CreatorPrice
	if err := r.db.WithContext(ctx).Where("lookup_key = ?", lookupKey).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *Repository) SaveCreatorPrice(ctx context.Context, price *plans.CreatorPrice) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lookup_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"stripe_price_id"}),
	}).Create(price).Error
}

func (r *Repository) FindLiveSubscription(ctx context.Context, subscriberID, creatorID uint, now time.Time) (*subscriptions.Subscription, error) {
	var sub subscriptions.Subscription
	err := r.db.WithContext(ctx).
		Where("subscriber_id = ? AND creator_id = ? AND status = ?", subscriberID, creatorID, subscriptions.StatusActive).
		Where("current_period_end IS NULL OR current_period_end > ?", now).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (r *Repository) GetSubscription(ctx context.Context, id uuid.UUID) (*subscriptions.Subscription, error) {
	var sub subscriptions.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (r *Repository) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*subscriptions.Subscription, error) {
	var sub subscriptions.Subscription
	if err := r.db.WithContext(ctx).Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (r *Repository) UpsertSubscriptionByStripeID(
	ctx context.Context,
	stripeSubscriptionID string,
	seed *subscriptions.Subscription,
	mutate func(*subscriptions.Subscription) bool,
) (*subscriptions.Subscription, error) {
	var out *subscriptions.Subscription
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub subscriptions.Subscription
		err := tx.Clauses(forUpdate).Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			seed.StripeSubscriptionID = &stripeSubscriptionID
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "stripe_subscription_id"}},
				DoNothing: true,
			}).Create(seed)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				out = seed
				return nil
			}
			// A concurrent delivery inserted first; lock its row and mutate it instead.
			err = tx.Clauses(forUpdate).Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error
		}
		if err != nil {
			return err
		}
		if mutate != nil && mutate(&sub) {
			if err := tx.Save(&sub).Error; err != nil {
				return err
			}
		}
		out = &sub
		return nil
	})
	if err != nil {
		return nil, notFound(err)
	}
	return out, nil
}

func (r *Repository) UpdateSubscription(ctx context.Context, id uuid.UUID, mutate func(*subscriptions.Subscription) bool) (*subscriptions.Subscription, error) {
	var sub subscriptions.Subscription
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate).Where("id = ?", id).First(&sub).Error; err != nil {
			return err
		}
		if mutate(&sub) {
			return tx.Save(&sub).Error
		}
		return nil
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (r *Repository) ListSubscriptionsForUser(ctx context.Context, userID uint) ([]subscriptions.Subscription, error) {
	var subs []subscriptions.Subscription
	err := r.db.WithContext(ctx).
		Where("subscriber_id = ? OR creator_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&subs).Error
	return subs, err
}

func (r *Repository) ListRecentSubscriptions(ctx context.Context, limit int) ([]subscriptions.Subscription, error) {
	var subs []subscriptions.Subscription
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&subs).Error
	return subs, err
}

func (r *Repository) CreatePaymentTransaction(ctx context.Context, txn *billing.PaymentTransaction) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_payment_intent_id"}},
		DoNothing: true,
	}).Create(txn)
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) UpdatePaymentTransaction(ctx context.Context, paymentIntentID string, mutate func(*billing.PaymentTransaction) bool) (*billing.PaymentTransaction, error) {
	var txn billing.PaymentTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate).Where("stripe_payment_intent_id = ?", paymentIntentID).First(&txn).Error; err != nil {
			return err
		}
		if mutate(&txn) {
			return tx.Save(&txn).Error
		}
		return nil
	})
	if err != nil {
		return nil, notFound(err)
	}
	return &txn, nil
}

func (r *Repository) ListPaymentTransactionsForUser(ctx context.Context, userID uint) ([]billing.PaymentTransaction, error) {
	var txns []billing.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("payer_id = ? OR recipient_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&txns).Error
	return txns, err
}

func (r *Repository) ListRecentPaymentTransactions(ctx context.Context, limit int) ([]billing.PaymentTransaction, error) {
	var txns []billing.PaymentTransaction
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&txns).Error
	return txns, err
}

func (r *Repository) InsertEarning(ctx context.Context, entry *earnings.CreatorEarning) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_payment_intent_id"}},
		DoNothing: true,
	}).Create(entry)
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) ListEarnings(ctx context.Context, creatorID uint) ([]earnings.CreatorEarning, error) {
	var entries []earnings.CreatorEarning
	err := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("payment_date DESC").
		Find(&entries).Error
	return entries, err
}

func (r *Repository) ClaimEvent(ctx context.Context, eventID, eventType string, now time.Time, lease time.Duration) (*events.ProcessedEvent, events.Claim, error) {
	db := r.db.WithContext(ctx)

	marker := &events.ProcessedEvent{StripeEventID: eventID, EventType: eventType}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_event_id"}},
		DoNothing: true,
	}).Create(marker).Error; err != nil {
		return nil, events.ClaimInFlight, err
	}

	// Check-and-set in one statement: only one delivery can move claimed_until forward.
	res := db.Model(&events.ProcessedEvent{}).
		Where("stripe_event_id = ? AND processed_at IS NULL", eventID).
		Where("claimed_until IS NULL OR claimed_until < ?", now).
		Updates(map[string]interface{}{
			"claimed_until": now.Add(lease),
			"attempts":      gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return nil, events.ClaimInFlight, res.Error
	}

	var stored events.ProcessedEvent
	if err := db.Where("stripe_event_id = ?", eventID).First(&stored).Error; err != nil {
		return nil, events.ClaimInFlight, err
	}

	switch {
	case res.RowsAffected > 0:
		return &stored, events.ClaimAcquired, nil
	case stored.Processed():
		return &stored, events.ClaimProcessed, nil
	default:
		return &stored, events.ClaimInFlight, nil
	}
}

func (r *Repository) MarkEventProcessed(ctx context.Context, id uint, now time.Time) error {
	return r.db.WithContext(ctx).Model(&events.ProcessedEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     now,
			"claimed_until":    nil,
			"processing_error": "",
		}).Error
}

func (r *Repository) ReleaseEvent(ctx context.Context, id uint, processingErr string) error {
	return r.db.WithContext(ctx).Model(&events.ProcessedEvent{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(map[string]interface{}{
			"claimed_until":    nil,
			"processing_error": processingErr,
		}).Error
}
