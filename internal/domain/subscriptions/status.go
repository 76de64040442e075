package subscriptions

type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusIncomplete, StatusActive, StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

// Transition returns the status a subscription in from ends up in when asked to
// move to to, and whether that is a change.
//
// canceled is terminal and incomplete is only ever an initial state, so a stale
// or reordered event can never reopen or regress a subscription.
func Transition(from, to Status) (Status, bool) {
	if !to.Valid() || from == to {
		return from, false
	}
	if from == StatusCanceled {
		return from, false
	}
	if to == StatusIncomplete && from != "" {
		return from, false
	}
	return to, true
}
