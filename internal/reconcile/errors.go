package reconcile

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrNotTracked = errors.New("object is not tracked locally")

	ErrInvalidRequest        = errors.New("invalid subscription request")
	ErrCreatorNotAccepting   = errors.New("creator does not accept paid subscriptions")
	ErrPriceMismatch         = errors.New("requested price does not match the creator's price")
	ErrDuplicateSubscription = errors.New("subscriber already holds an active subscription to this creator")
	ErrPaymentDeclined       = errors.New("payment was declined")

	ErrMisconfigured      = errors.New("payment processor is not configured")
	ErrProcessorRejected  = errors.New("payment processor rejected the request")
	ErrCreatorUnknown     = errors.New("subscription has no creator attached yet")
	ErrSubscriptionAbsent = errors.New("subscription not persisted locally yet")

	ErrInvalidCommissionRate = errors.New("commission rate must be between 0 and 100")
	ErrInvalidAmount         = errors.New("amount must be positive")

	// ErrCompensationRequired wraps every failure where the remote subscription
	// existed but the local row could not be written.
	ErrCompensationRequired = errors.New("local persistence failed after remote subscription was created")
	ErrCompensationFailed   = errors.New("compensating cancellation of remote subscription failed")
)

// IsTransient reports whether err is worth retrying as-is: deadlines, lost
// connections and postgres contention errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected,
			pgerrcode.LockNotAvailable,
			pgerrcode.QueryCanceled,
			pgerrcode.TooManyConnections,
			pgerrcode.AdminShutdown,
			pgerrcode.CannotConnectNow:
			return true
		}
		return pgerrcode.IsConnectionException(pgErr.Code)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	if pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
