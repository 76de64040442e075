package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	stripewebhook "github.com/stripe/stripe-go/v75/webhook"
)

var (
	ErrInvalidSignature = errors.New("webhook signature verification failed")
	ErrMisconfigured    = errors.New("webhook signing secret is not configured")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

// Envelope is a verified event: its id, type and the raw embedded object.
type Envelope struct {
	ID      string          `validate:"required"`
	Type    string          `validate:"required"`
	Created time.Time
	Object  json.RawMessage `validate:"required"`
}

func (e Envelope) Kind() Kind { return ParseKind(e.Type) }

// Verifier checks the processor's signature over the raw request body.
type Verifier struct {
	secret    string
	tolerance time.Duration
	validate  *validator.Validate
}

// NewVerifier returns a Verifier for secret. A zero tolerance uses the
// library default of five minutes.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = stripewebhook.DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance, validate: validator.New()}
}

func (v *Verifier) Verify(payload []byte, header string) (Envelope, error) {
	if v.secret == "" {
		return Envelope{}, ErrMisconfigured
	}

	event, err := stripewebhook.ConstructEventWithOptions(payload, header, v.secret, stripewebhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		switch {
		case errors.Is(err, stripewebhook.ErrNotSigned),
			errors.Is(err, stripewebhook.ErrInvalidHeader),
			errors.Is(err, stripewebhook.ErrNoValidSignature),
			errors.Is(err, stripewebhook.ErrTooOld):
			return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	env := Envelope{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data != nil {
		env.Object = event.Data.Raw
	}
	if err := v.validate.Struct(env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return env, nil
}
