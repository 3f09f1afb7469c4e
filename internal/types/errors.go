package types

import (
	"fmt"

	"github.com/pkg/errors"
)

// Protocol error taxonomy. The state machines branch on these with
// errors.Is; everything else is treated as a transport-level failure.
var (
	// ErrEconomicRejection is a price or capacity refusal from a supernode.
	// Never retried against the same node.
	ErrEconomicRejection = errors.New("supernode rejected the request on economic grounds")

	// ErrProtocolTermination is a node-side abort after tentative agreement.
	ErrProtocolTermination = errors.New("supernode terminated the negotiation")

	// ErrIntegrityFailure marks a message that failed hash, signature or
	// freshness validation. The response is untrustworthy and the node is
	// abandoned.
	ErrIntegrityFailure = errors.New("message failed integrity validation")

	// ErrTransportFailure covers network errors and timeouts.
	ErrTransportFailure = errors.New("transport failure")

	// ErrInsufficientFunds is a local balance precondition failure. Fatal
	// to the attempt, never retried.
	ErrInsufficientFunds = errors.New("insufficient funds on tracking address")
)

// ExhaustionError is returned when every ranked candidate has been tried
// and none completed the protocol.
type ExhaustionError struct {
	Stage    string
	Attempts int
}

func (e *ExhaustionError) Error() string {
	return fmt.Sprintf("exhausted all candidate supernodes at stage %q after %d attempts", e.Stage, e.Attempts)
}
