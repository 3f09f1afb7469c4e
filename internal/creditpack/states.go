package creditpack

import (
	"github.com/pkg/errors"
)

// ErrInvalidTransition marks a state-machine programming error.
var ErrInvalidTransition = errors.New("invalid purchase state transition")

// State is one step of a per-candidate purchase attempt.
type State string

const (
	StateBuilt                 State = "built"
	StateSigned                State = "signed"
	StateQuoteRequested        State = "quote_requested"
	StateQuoted                State = "quoted"
	StateRejected              State = "rejected"
	StateResponseSubmitted     State = "response_submitted"
	StatePurchased             State = "purchased"
	StateTerminated            State = "terminated"
	StatePaymentSent           State = "payment_sent"
	StateConfirmationSubmitted State = "confirmation_submitted"
	StateCompleted             State = "completed"
	StateStorageRetryNeeded    State = "storage_retry_needed"
	StateStorageRetried        State = "storage_retried"
	StateDone                  State = "done"
)

func canTransition(current, next State) bool {
	switch current {
	case StateBuilt:
		return next == StateSigned
	case StateSigned:
		return next == StateQuoteRequested
	case StateQuoteRequested:
		return next == StateQuoted || next == StateRejected
	case StateQuoted:
		return next == StateResponseSubmitted
	case StateResponseSubmitted:
		return next == StatePurchased || next == StateTerminated
	case StatePurchased:
		return next == StatePaymentSent
	case StatePaymentSent:
		return next == StateConfirmationSubmitted
	case StateConfirmationSubmitted:
		return next == StateCompleted || next == StateStorageRetryNeeded
	case StateStorageRetryNeeded:
		return next == StateStorageRetried
	case StateStorageRetried:
		return next == StateDone
	case StateCompleted:
		return next == StateDone
	default:
		return false
	}
}

// machine tracks one candidate attempt. Attempts on subsequent candidates
// start fresh from StateSigned: the signed request is reused, everything
// after it is per-node.
type machine struct {
	state State
}

func newMachine(initial State) *machine {
	return &machine{state: initial}
}

func (m *machine) to(next State) error {
	if !canTransition(m.state, next) {
		return errors.Wrapf(ErrInvalidTransition, "from %s to %s", m.state, next)
	}
	m.state = next
	return nil
}
