package webhook

type Disposition int

const (
	// DispositionApplied: the event's effect is stored.
	DispositionApplied Disposition = iota
	// DispositionSkipped: nothing to do, and nothing will change on redelivery.
	DispositionSkipped
	// DispositionRetryable: the effect could not be stored; the processor must redeliver.
	DispositionRetryable
)

func (d Disposition) String() string {
	switch d {
	case DispositionApplied:
		return "applied"
	case DispositionSkipped:
		return "skipped"
	case DispositionRetryable:
		return "retryable"
	}
	return "unknown"
}

type Outcome struct {
	Disposition Disposition
	Reason      string
	Err         error
}

func Applied() Outcome { return Outcome{Disposition: DispositionApplied} }

func Skipped(reason string) Outcome {
	return Outcome{Disposition: DispositionSkipped, Reason: reason}
}

func Retryable(reason string, err error) Outcome {
	return Outcome{Disposition: DispositionRetryable, Reason: reason, Err: err}
}

// Final reports whether the event can be marked processed.
func (o Outcome) Final() bool { return o.Disposition != DispositionRetryable }
