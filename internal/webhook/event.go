package webhook

// Kind is the closed set of event types the service acts on.
type Kind int

const (
	KindUnknown Kind = iota
	KindPaymentIntentSucceeded
	KindInvoicePaymentSucceeded
	KindInvoicePaymentFailed
	KindSubscriptionCreated
	KindSubscriptionUpdated
	KindSubscriptionDeleted
	KindSetupIntentSucceeded
)

var kindTypes = map[Kind]string{
	KindPaymentIntentSucceeded:  "payment_intent.succeeded",
	KindInvoicePaymentSucceeded: "invoice.payment_succeeded",
	KindInvoicePaymentFailed:    "invoice.payment_failed",
	KindSubscriptionCreated:     "customer.subscription.created",
	KindSubscriptionUpdated:     "customer.subscription.updated",
	KindSubscriptionDeleted:     "customer.subscription.deleted",
	KindSetupIntentSucceeded:    "setup_intent.succeeded",
}

var typeKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(kindTypes))
	for k, t := range kindTypes {
		m[t] = k
	}
	return m
}()

func ParseKind(eventType string) Kind {
	return typeKinds[eventType]
}

func (k Kind) String() string {
	if t, ok := kindTypes[k]; ok {
		return t
	}
	return "unknown"
}

// Kinds lists every known kind.
func Kinds() []Kind {
	return []Kind{
		KindPaymentIntentSucceeded,
		KindInvoicePaymentSucceeded,
		KindInvoicePaymentFailed,
		KindSubscriptionCreated,
		KindSubscriptionUpdated,
		KindSubscriptionDeleted,
		KindSetupIntentSucceeded,
	}
}
