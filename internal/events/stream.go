package events

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Stage identifies a protocol step that publishes progress events.
type Stage string

const (
	StageRequestSigned        Stage = "request_signed"
	StageQuoteRequested       Stage = "quote_requested"
	StageQuoteReceived        Stage = "quote_received"
	StageQuoteRejected        Stage = "quote_rejected"
	StageResponseSubmitted    Stage = "response_submitted"
	StagePurchaseAgreed       Stage = "purchase_agreed"
	StageTerminated           Stage = "terminated"
	StagePaymentSent          Stage = "payment_sent"
	StageConfirmationSent     Stage = "confirmation_submitted"
	StageStatusChecked        Stage = "status_checked"
	StageStorageRetried       Stage = "storage_retried"
	StageCompleted            Stage = "completed"
	StageCandidateAbandoned   Stage = "candidate_abandoned"
	StageCapabilityDiscovered Stage = "capability_discovered"
	StageUsageRequested       Stage = "usage_requested"
	StageResultPolling        Stage = "result_polling"
	StageResultReceived       Stage = "result_received"
	StageAuditStarted         Stage = "audit_started"
)

// Event is one protocol progress notification. Events replace callback
// narration: formatting is the subscriber's concern.
type Event struct {
	Stage     Stage
	Supernode string
	Attempt   int
	Message   string
	At        time.Time
}

// Stream is a bounded, non-blocking event channel owned by a single
// protocol run. Publishing never blocks the protocol: if the subscriber
// lags, events are dropped and counted.
type Stream struct {
	ch      chan Event
	dropped int
}

// NewStream creates a stream with the given buffer size.
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 64
	}
	return &Stream{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Publish emits an event without blocking.
func (s *Stream) Publish(ev Event) {
	if s == nil {
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped++
		log.Debug().Str("stage", string(ev.Stage)).Msg("event stream full, dropping event")
	}
}

// Close closes the stream. Call once, after the protocol run finishes.
func (s *Stream) Close() {
	if s != nil {
		close(s.ch)
	}
}

// Dropped returns how many events were discarded due to a slow subscriber.
func (s *Stream) Dropped() int {
	if s == nil {
		return 0
	}
	return s.dropped
}
