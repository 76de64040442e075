package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"creator-subscriptions/internal/reconcile"

	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"
	"go.uber.org/zap"
)

// Client is the reconcile.Processor backed by the Stripe API.
type Client struct {
	api    *client.API
	appEnv string
	logger *zap.Logger
}

var _ reconcile.Processor = (*Client)(nil)

// NewClient returns a Client for secretKey. An empty key yields a client whose
// every call fails with reconcile.ErrMisconfigured.
func NewClient(secretKey, appEnv string, logger *zap.Logger) *Client {
	return NewClientWithBackends(secretKey, appEnv, nil, logger)
}

func NewClientWithBackends(secretKey, appEnv string, backends *stripe.Backends, logger *zap.Logger) *Client {
	c := &Client{appEnv: appEnv, logger: logger}
	if secretKey != "" {
		c.api = client.New(secretKey, backends)
	}
	return c
}

func (c *Client) Configured() bool { return c.api != nil }

func (c *Client) CreateCustomer(ctx context.Context, req reconcile.CustomerRequest) (string, error) {
	if c.api == nil {
		return "", reconcile.ErrMisconfigured
	}
	params := &stripe.CustomerParams{Email: stripe.String(req.Email)}
	params.Context = ctx
	params.AddMetadata("user_id", strconv.FormatUint(uint64(req.UserID), 10))
	params.AddMetadata("env", c.appEnv)

	cus, err := c.api.Customers.New(params)
	if err != nil {
		return "", classify("create customer", err)
	}
	return cus.ID, nil
}

// AttachPaymentMethod attaches the method and makes it the customer's default
// for invoices.
func (c *Client) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	if c.api == nil {
		return reconcile.ErrMisconfigured
	}
	attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	attach.Context = ctx
	if _, err := c.api.PaymentMethods.Attach(paymentMethodID, attach); err != nil {
		return classify("attach payment method", err)
	}

	update := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	update.Context = ctx
	if _, err := c.api.Customers.Update(customerID, update); err != nil {
		return classify("set default payment method", err)
	}
	return nil
}

// FindOrCreatePrice looks the price up by lookup key first so repeated
// subscriptions to the same creator price never create duplicates.
func (c *Client) FindOrCreatePrice(ctx context.Context, req reconcile.PriceRequest) (string, error) {
	if c.api == nil {
		return "", reconcile.ErrMisconfigured
	}
	list := &stripe.PriceListParams{
		LookupKeys: stripe.StringSlice([]string{req.LookupKey}),
		Active:     stripe.Bool(true),
	}
	list.Context = ctx
	it := c.api.Prices.List(list)
	for it.Next() {
		if p := it.Price(); p != nil && p.ID != "" {
			return p.ID, nil
		}
	}
	if err := it.Err(); err != nil {
		return "", classify("list prices", err)
	}

	interval := req.Interval
	if interval == "" {
		interval = "month"
	}
	params := &stripe.PriceParams{
		Currency:   stripe.String(req.Currency),
		UnitAmount: stripe.Int64(req.AmountMinor),
		LookupKey:  stripe.String(req.LookupKey),
		Recurring: &stripe.PriceRecurringParams{
			Interval: stripe.String(interval),
		},
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(req.ProductName),
			Metadata: map[string]string{
				reconcile.MetadataCreatorID: strconv.FormatUint(uint64(req.CreatorID), 10),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(reconcile.MetadataCreatorID, strconv.FormatUint(uint64(req.CreatorID), 10))
	params.SetIdempotencyKey("price-" + req.LookupKey)

	p, err := c.api.Prices.New(params)
	if err != nil {
		return "", classify("create price", err)
	}
	c.logger.Info("stripe price created",
		zap.String("price_id", p.ID),
		zap.String("lookup_key", req.LookupKey),
	)
	return p.ID, nil
}

func (c *Client) CreateSubscription(ctx context.Context, req reconcile.SubscriptionRequest) (*reconcile.RemoteSubscription, error) {
	if c.api == nil {
		return nil, reconcile.ErrMisconfigured
	}
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(req.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(req.PriceID)},
		},
		PaymentBehavior: stripe.String("allow_incomplete"),
	}
	if req.PaymentMethodID != "" {
		params.DefaultPaymentMethod = stripe.String(req.PaymentMethodID)
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.AddExpand("latest_invoice.payment_intent")
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	sub, err := c.api.Subscriptions.New(params)
	if err != nil {
		return nil, classify("create subscription", err)
	}
	return toRemoteSubscription(sub), nil
}

// CancelSubscription treats an already deleted subscription as canceled.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if c.api == nil {
		return reconcile.ErrMisconfigured
	}
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := c.api.Subscriptions.Cancel(subscriptionID, params)
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return nil
	}
	return classify("cancel subscription", err)
}

func toRemoteSubscription(sub *stripe.Subscription) *reconcile.RemoteSubscription {
	out := &reconcile.RemoteSubscription{
		ID:          sub.ID,
		Status:      NormalizeStripeStatus(string(sub.Status)),
		PeriodStart: unixTime(sub.CurrentPeriodStart),
		PeriodEnd:   unixTime(sub.CurrentPeriodEnd),
	}
	if sub.LatestInvoice == nil || sub.LatestInvoice.PaymentIntent == nil {
		return out
	}
	pi := sub.LatestInvoice.PaymentIntent
	out.PaymentIntent = &reconcile.RemotePaymentIntent{
		ID:           pi.ID,
		Status:       string(pi.Status),
		ClientSecret: pi.ClientSecret,
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
		InvoiceID:    sub.LatestInvoice.ID,
	}
	return out
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// classify maps API errors onto the reconcile error kinds. Client errors other
// than rate limiting will not succeed on retry.
func classify(op string, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("stripe %s: %w", op, err)
	}
	switch {
	case stripeErr.Type == stripe.ErrorTypeCard:
		return fmt.Errorf("stripe %s: %w: %s", op, reconcile.ErrPaymentDeclined, stripeErr.Code)
	case stripeErr.HTTPStatusCode == http.StatusUnauthorized || stripeErr.HTTPStatusCode == http.StatusForbidden:
		return fmt.Errorf("stripe %s: %w: %v", op, reconcile.ErrMisconfigured, err)
	case stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500 && stripeErr.HTTPStatusCode != http.StatusTooManyRequests:
		return fmt.Errorf("stripe %s: %w: %v", op, reconcile.ErrProcessorRejected, err)
	}
	return fmt.Errorf("stripe %s: %w", op, err)
}
