// Package reconciletest provides in-memory doubles for the reconcile package.
package reconciletest

import (
	"context"
	"sort"
	"sync"
	"time"

	"creator-subscriptions/internal/domain/billing"
	"creator-subscriptions/internal/domain/earnings"
	"creator-subscriptions/internal/domain/events"
	"creator-subscriptions/internal/domain/plans"
	"creator-subscriptions/internal/domain/subscriptions"
	"creator-subscriptions/internal/domain/users"
	"creator-subscriptions/internal/reconcile"

	"github.com/google/uuid"
)

type memData struct {
	users    map[uint]users.User
	prices   map[string]plans.CreatorPrice
	subs     map[uuid.UUID]subscriptions.Subscription
	txns     map[string]billing.PaymentTransaction
	earnings map[string]earnings.CreatorEarning
	events   map[string]events.ProcessedEvent
	nextID   uint
}

func (d *memData) clone() *memData {
	c := &memData{
		users:    make(map[uint]users.User, len(d.users)),
		prices:   make(map[string]plans.CreatorPrice, len(d.prices)),
		subs:     make(map[uuid.UUID]subscriptions.Subscription, len(d.subs)),
		txns:     make(map[string]billing.PaymentTransaction, len(d.txns)),
		earnings: make(map[string]earnings.CreatorEarning, len(d.earnings)),
		events:   make(map[string]events.ProcessedEvent, len(d.events)),
		nextID:   d.nextID,
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.prices {
		c.prices[k] = v
	}
	for k, v := range d.subs {
		c.subs[k] = v
	}
	for k, v := range d.txns {
		c.txns[k] = v
	}
	for k, v := range d.earnings {
		c.earnings[k] = v
	}
	for k, v := range d.events {
		c.events[k] = v
	}
	return c
}

func (d *memData) id() uint {
	d.nextID++
	return d.nextID
}

// MemoryStore is a reconcile.Store held in memory. InTx rolls back every write
// made by a failing callback. Operations can be made to fail with FailWith.
type MemoryStore struct {
	mu    *sync.Mutex
	state *memState
	held  bool
	now   func() time.Time
}

type memState struct {
	data  *memData
	fails map[string]error
}

var _ reconcile.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu: &sync.Mutex{},
		state: &memState{
			data: &memData{
				users:    map[uint]users.User{},
				prices:   map[string]plans.CreatorPrice{},
				subs:     map[uuid.UUID]subscriptions.Subscription{},
				txns:     map[string]billing.PaymentTransaction{},
				earnings: map[string]earnings.CreatorEarning{},
				events:   map[string]events.ProcessedEvent{},
			},
			fails: map[string]error{},
		},
		now: time.Now,
	}
}

func (s *MemoryStore) lock() func() {
	if s.held {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *MemoryStore) data() *memData { return s.state.data }

// FailWith makes every later call of the named Store method return err.
// A nil err clears the failure.
func (s *MemoryStore) FailWith(op string, err error) {
	defer s.lock()()
	if err == nil {
		delete(s.state.fails, op)
		return
	}
	s.state.fails[op] = err
}

func (s *MemoryStore) fail(op string) error {
	return s.state.fails[op]
}

// AddUser stores u, assigning an id when it has none, and returns the id.
func (s *MemoryStore) AddUser(u users.User) uint {
	defer s.lock()()
	if u.ID == 0 {
		u.ID = s.data().id()
	}
	if u.SubscriptionCurrency == "" {
		u.SubscriptionCurrency = "usd"
	}
	s.data().users[u.ID] = u
	return u.ID
}

func (s *MemoryStore) Subscriptions() []subscriptions.Subscription {
	defer s.lock()()
	out := make([]subscriptions.Subscription, 0, len(s.data().subs))
	for _, v := range s.data().subs {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *MemoryStore) Transactions() []billing.PaymentTransaction {
	defer s.lock()()
	out := make([]billing.PaymentTransaction, 0, len(s.data().txns))
	for _, v := range s.data().txns {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) Earnings() []earnings.CreatorEarning {
	defer s.lock()()
	out := make([]earnings.CreatorEarning, 0, len(s.data().earnings))
	for _, v := range s.data().earnings {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) Event(eventID string) (events.ProcessedEvent, bool) {
	defer s.lock()()
	ev, ok := s.data().events[eventID]
	return ev, ok
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx reconcile.Store) error) error {
	unlock := s.lock()
	defer unlock()
	if err := s.fail("InTx"); err != nil {
		return err
	}
	snapshot := s.data().clone()
	tx := &MemoryStore{mu: s.mu, state: s.state, held: true, now: s.now}
	if err := fn(tx); err != nil {
		s.state.data = snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id uint) (*users.User, error) {
	defer s.lock()()
	if err := s.fail("GetUser"); err != nil {
		return nil, err
	}
	u, ok := s.data().users[id]
	if !ok {
		return nil, reconcile.ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*users.User, error) {
	defer s.lock()()
	if err := s.fail("GetUserByStripeCustomerID"); err != nil {
		return nil, err
	}
	for _, u := range s.data().users {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			return &u, nil
		}
	}
	return nil, reconcile.ErrNotFound
}

func (s *MemoryStore) SetStripeCustomerID(ctx context.Context, userID uint, customerID string) error {
	defer s.lock()()
	if err := s.fail("SetStripeCustomerID"); err != nil {
		return err
	}
	u, ok := s.data().users[userID]
	if !ok {
		return nil
	}
	u.StripeCustomerID = &customerID
	s.data().users[userID] = u
	return nil
}

func (s *MemoryStore) SetDefaultPaymentMethod(ctx context.Context, userID uint, paymentMethodID string) (bool, error) {
	defer s.lock()()
	if err := s.fail("SetDefaultPaymentMethod"); err != nil {
		return false, err
	}
	u, ok := s.data().users[userID]
	if !ok || (u.DefaultPaymentMethodID != nil && *u.DefaultPaymentMethodID == paymentMethodID) {
		return false, nil
	}
	u.DefaultPaymentMethodID = &paymentMethodID
	s.data().users[userID] = u
	return true, nil
}

func (s *MemoryStore) FindCreatorPrice(ctx context.Context, lookupKey string) (*plans.CreatorPrice, error) {
	defer s.lock()()
	if err := s.fail("FindCreatorPrice"); err != nil {
		return nil, err
	}
	p, ok := s.data().prices[lookupKey]
	if !ok {
		return nil, reconcile.ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) SaveCreatorPrice(ctx context.Context, price *plans.CreatorPrice) error {
	defer s.lock()()
	if err := s.fail("SaveCreatorPrice"); err != nil {
		return err
	}
	if existing, ok := s.data().prices[price.LookupKey]; ok {
		existing.StripePriceID = price.StripePriceID
		s.data().prices[price.LookupKey] = existing
		return nil
	}
	price.ID = s.data().id()
	price.CreatedAt = s.now()
	s.data().prices[price.LookupKey] = *price
	return nil
}

func (s *MemoryStore) FindLiveSubscription(ctx context.Context, subscriberID, creatorID uint, now time.Time) (*subscriptions.Subscription, error) {
	defer s.lock()()
	if err := s.fail("FindLiveSubscription"); err != nil {
		return nil, err
	}
	var found *subscriptions.Subscription
	for _, sub := range s.data().subs {
		if sub.SubscriberID != subscriberID || sub.CreatorID != creatorID || !sub.IsLive(now) {
			continue
		}
		if found == nil || sub.CreatedAt.After(found.CreatedAt) {
			found = &sub
		}
	}
	if found == nil {
		return nil, reconcile.ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) GetSubscription(ctx context.Context, id uuid.UUID) (*subscriptions.Subscription, error) {
	defer s.lock()()
	if err := s.fail("GetSubscription"); err != nil {
		return nil, err
	}
	sub, ok := s.data().subs[id]
	if !ok {
		return nil, reconcile.ErrNotFound
	}
	return &sub, nil
}

func (s *MemoryStore) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*subscriptions.Subscription, error) {
	defer s.lock()()
	if err := s.fail("GetSubscriptionByStripeID"); err != nil {
		return nil, err
	}
	if sub, ok := s.byStripeID(stripeSubscriptionID); ok {
		return &sub, nil
	}
	return nil, reconcile.ErrNotFound
}

func (s *MemoryStore) byStripeID(stripeSubscriptionID string) (subscriptions.Subscription, bool) {
	for _, sub := range s.data().subs {
		if sub.RemoteID() == stripeSubscriptionID {
			return sub, true
		}
	}
	return subscriptions.Subscription{}, false
}

func (s *MemoryStore) UpsertSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string, seed *subscriptions.Subscription, mutate func(*subscriptions.Subscription) bool) (*subscriptions.Subscription, error) {
	defer s.lock()()
	if err := s.fail("UpsertSubscriptionByStripeID"); err != nil {
		return nil, err
	}
	if sub, ok := s.byStripeID(stripeSubscriptionID); ok {
		if mutate != nil && mutate(&sub) {
			sub.UpdatedAt = s.now()
			s.data().subs[sub.ID] = sub
		}
		return &sub, nil
	}

	id := stripeSubscriptionID
	seed.StripeSubscriptionID = &id
	if seed.ID == uuid.Nil {
		seed.ID = uuid.New()
	}
	if seed.Status == "" {
		seed.Status = subscriptions.StatusIncomplete
	}
	if seed.Currency == "" {
		seed.Currency = "usd"
	}
	seed.CreatedAt = s.now()
	seed.UpdatedAt = seed.CreatedAt
	s.data().subs[seed.ID] = *seed
	return seed, nil
}

func (s *MemoryStore) UpdateSubscription(ctx context.Context, id uuid.UUID, mutate func(*subscriptions.Subscription) bool) (*subscriptions.Subscription, error) {
	defer s.lock()()
	if err := s.fail("UpdateSubscription"); err != nil {
		return nil, err
	}
	sub, ok := s.data().subs[id]
	if !ok {
		return nil, reconcile.ErrNotFound
	}
	if mutate(&sub) {
		sub.UpdatedAt = s.now()
		s.data().subs[id] = sub
	}
	return &sub, nil
}

func (s *MemoryStore) ListSubscriptionsForUser(ctx context.Context, userID uint) ([]subscriptions.Subscription, error) {
	defer s.lock()()
	if err := s.fail("ListSubscriptionsForUser"); err != nil {
		return nil, err
	}
	var out []subscriptions.Subscription
	for _, sub := range s.data().subs {
		if sub.SubscriberID == userID || sub.CreatorID == userID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListRecentSubscriptions(ctx context.Context, limit int) ([]subscriptions.Subscription, error) {
	defer s.lock()()
	if err := s.fail("ListRecentSubscriptions"); err != nil {
		return nil, err
	}
	out := make([]subscriptions.Subscription, 0, len(s.data().subs))
	for _, sub := range s.data().subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreatePaymentTransaction(ctx context.Context, txn *billing.PaymentTransaction) (bool, error) {
	defer s.lock()()
	if err := s.fail("CreatePaymentTransaction"); err != nil {
		return false, err
	}
	if _, ok := s.data().txns[txn.StripePaymentIntentID]; ok {
		return false, nil
	}
	txn.ID = s.data().id()
	txn.CreatedAt = s.now()
	txn.UpdatedAt = txn.CreatedAt
	s.data().txns[txn.StripePaymentIntentID] = *txn
	return true, nil
}

func (s *MemoryStore) UpdatePaymentTransaction(ctx context.Context, paymentIntentID string, mutate func(*billing.PaymentTransaction) bool) (*billing.PaymentTransaction, error) {
	defer s.lock()()
	if err := s.fail("UpdatePaymentTransaction"); err != nil {
		return nil, err
	}
	txn, ok := s.data().txns[paymentIntentID]
	if !ok {
		return nil, reconcile.ErrNotFound
	}
	if mutate(&txn) {
		txn.UpdatedAt = s.now()
		s.data().txns[paymentIntentID] = txn
	}
	return &txn, nil
}

func (s *MemoryStore) ListPaymentTransactionsForUser(ctx context.Context, userID uint) ([]billing.PaymentTransaction, error) {
	defer s.lock()()
	if err := s.fail("ListPaymentTransactionsForUser"); err != nil {
		return nil, err
	}
	var out []billing.PaymentTransaction
	for _, t := range s.data().txns {
		if t.PayerID == userID || t.RecipientID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListRecentPaymentTransactions(ctx context.Context, limit int) ([]billing.PaymentTransaction, error) {
	defer s.lock()()
	if err := s.fail("ListRecentPaymentTransactions"); err != nil {
		return nil, err
	}
	out := make([]billing.PaymentTransaction, 0, len(s.data().txns))
	for _, t := range s.data().txns {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) InsertEarning(ctx context.Context, entry *earnings.CreatorEarning) (bool, error) {
	defer s.lock()()
	if err := s.fail("InsertEarning"); err != nil {
		return false, err
	}
	if _, ok := s.data().earnings[entry.StripePaymentIntentID]; ok {
		return false, nil
	}
	entry.ID = s.data().id()
	entry.CreatedAt = s.now()
	s.data().earnings[entry.StripePaymentIntentID] = *entry
	return true, nil
}

func (s *MemoryStore) ListEarnings(ctx context.Context, creatorID uint) ([]earnings.CreatorEarning, error) {
	defer s.lock()()
	if err := s.fail("ListEarnings"); err != nil {
		return nil, err
	}
	var out []earnings.CreatorEarning
	for _, e := range s.data().earnings {
		if e.CreatorID == creatorID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentDate.After(out[j].PaymentDate) })
	return out, nil
}

func (s *MemoryStore) ClaimEvent(ctx context.Context, eventID, eventType string, now time.Time, lease time.Duration) (*events.ProcessedEvent, events.Claim, error) {
	defer s.lock()()
	if err := s.fail("ClaimEvent"); err != nil {
		return nil, events.ClaimInFlight, err
	}
	ev, ok := s.data().events[eventID]
	if !ok {
		ev = events.ProcessedEvent{ID: s.data().id(), StripeEventID: eventID, EventType: eventType, CreatedAt: now}
	}
	switch {
	case ev.Processed():
		return &ev, events.ClaimProcessed, nil
	case ev.ClaimedUntil != nil && !ev.ClaimedUntil.Before(now):
		s.data().events[eventID] = ev
		return &ev, events.ClaimInFlight, nil
	}
	until := now.Add(lease)
	ev.ClaimedUntil = &until
	ev.Attempts++
	ev.UpdatedAt = now
	s.data().events[eventID] = ev
	return &ev, events.ClaimAcquired, nil
}

func (s *MemoryStore) MarkEventProcessed(ctx context.Context, id uint, now time.Time) error {
	defer s.lock()()
	if err := s.fail("MarkEventProcessed"); err != nil {
		return err
	}
	for k, ev := range s.data().events {
		if ev.ID == id {
			ev.ProcessedAt = &now
			ev.ClaimedUntil = nil
			ev.ProcessingError = ""
			s.data().events[k] = ev
		}
	}
	return nil
}

func (s *MemoryStore) ReleaseEvent(ctx context.Context, id uint, processingErr string) error {
	defer s.lock()()
	if err := s.fail("ReleaseEvent"); err != nil {
		return err
	}
	for k, ev := range s.data().events {
		if ev.ID == id && !ev.Processed() {
			ev.ClaimedUntil = nil
			ev.ProcessingError = processingErr
			s.data().events[k] = ev
		}
	}
	return nil
}
