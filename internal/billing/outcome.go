package billing

import "github.com/inkpanel/panelpay/internal/journal"

// Status is the reconciliation result for one delivered event.
type Status int

const (
	// StatusProcessed: the event was admitted; any credit it carried has been
	// granted. Acknowledge to the provider.
	StatusProcessed Status = iota
	// StatusDuplicate: the event id was already admitted. Acknowledge; this
	// is the normal face of provider retries.
	StatusDuplicate
	// StatusRejected: the event is malformed and can never be valid.
	// Acknowledge so the provider stops redelivering it. No side effects.
	StatusRejected
	// StatusFailed: a transient storage failure rolled the whole unit back.
	// Respond with a server error so the provider redelivers.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusProcessed:
		return "processed"
	case StatusDuplicate:
		return "duplicate"
	case StatusRejected:
		return "rejected"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Retriable reports whether the caller should ask the provider to redeliver.
func (s Status) Retriable() bool {
	return s == StatusFailed
}

// Outcome is what Handle returns to the webhook layer. Callers switch on
// Status exhaustively; Reason is for logs and responses, never for branching.
type Outcome struct {
	Status   Status
	Reason   string
	Purchase *journal.Purchase // set only when a credit was granted
}

func processed(reason string, p *journal.Purchase) Outcome {
	return Outcome{Status: StatusProcessed, Reason: reason, Purchase: p}
}

func duplicate() Outcome {
	return Outcome{Status: StatusDuplicate, Reason: "event already processed"}
}

func rejected(reason string) Outcome {
	return Outcome{Status: StatusRejected, Reason: reason}
}

func failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}
