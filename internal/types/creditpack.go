package types

// Credit pack purchase protocol messages.
//
// Field-name conventions carry protocol meaning: every message has exactly
// one integrity hash (json name prefixed "sha3_256_hash_of_", declared
// last among hash fields) and exactly one signature over it (json name
// containing "_signature_on_"). Earlier hash fields are echoes of prior
// messages and are covered by the hash. The consensus package relies on
// declaration order to identify the message's own hash and signature.

// CreditPackPurchaseRequest opens a purchase negotiation. Immutable after
// signing.
type CreditPackPurchaseRequest struct {
	ID                      string   `json:"id"`
	RequesterPastelID       string   `json:"requester_pastelid"`
	RequestedInitialCredits int64    `json:"requested_initial_credits_in_credit_pack"`
	AuthorizedPastelIDs     []string `json:"list_of_authorized_pastelids_allowed_to_use_credit_pack"`
	TrackingAddress         string   `json:"credit_usage_tracking_psl_address"`
	RequestTimestamp        string   `json:"request_timestamp_utc_iso_string"`
	RequestBlockHeight      int64    `json:"request_pastel_block_height"`
	MessageVersion          string   `json:"credit_purchase_request_message_version_string"`
	Hash                    string   `json:"sha3_256_hash_of_credit_pack_purchase_request_fields"`
	RequesterSignature      string   `json:"requester_pastelid_signature_on_request_hash"`
}

// PreliminaryPriceQuote is the supernode's first-step answer when it is
// willing to sell.
type PreliminaryPriceQuote struct {
	RespondingSupernodePastelID string  `json:"responding_supernode_pastelid"`
	RequestHash                 string  `json:"sha3_256_hash_of_credit_pack_purchase_request_fields"`
	QuotedPricePerCredit        float64 `json:"preliminary_quoted_price_per_credit_in_psl"`
	QuotedTotalCost             float64 `json:"preliminary_total_cost_of_credit_pack_in_psl"`
	QuoteTimestamp              string  `json:"preliminary_price_quote_timestamp_utc_iso_string"`
	QuoteBlockHeight            int64   `json:"preliminary_price_quote_pastel_block_height"`
	Hash                        string  `json:"sha3_256_hash_of_preliminary_price_quote_fields"`
	SupernodeSignature          string  `json:"responding_supernode_pastelid_signature_on_quote_hash"`
}

// RejectionResponse is the supernode's first-step answer when it refuses
// to sell. Mutually exclusive with PreliminaryPriceQuote.
type RejectionResponse struct {
	RespondingSupernodePastelID string `json:"responding_supernode_pastelid"`
	RequestHash                 string `json:"sha3_256_hash_of_credit_pack_purchase_request_fields"`
	RejectionReason             string `json:"rejection_reason_string"`
	RejectionTimestamp          string `json:"rejection_timestamp_utc_iso_string"`
	RejectionBlockHeight        int64  `json:"rejection_pastel_block_height"`
	Hash                        string `json:"sha3_256_hash_of_rejection_response_fields"`
	SupernodeSignature          string `json:"responding_supernode_pastelid_signature_on_rejection_hash"`
}

// PriceQuoteResponse is the requester's accept/reject decision on a
// preliminary quote. Agreed is computed from the acceptance bound check,
// never set directly by callers.
type PriceQuoteResponse struct {
	RequesterPastelID   string `json:"requester_pastelid"`
	RequestHash         string `json:"sha3_256_hash_of_credit_pack_purchase_request_fields"`
	QuoteHash           string `json:"sha3_256_hash_of_preliminary_price_quote_fields"`
	Agreed              bool   `json:"agree_with_preliminary_price_quote"`
	ResponseTimestamp   string `json:"price_quote_response_timestamp_utc_iso_string"`
	ResponseBlockHeight int64  `json:"price_quote_response_pastel_block_height"`
	Hash                string `json:"sha3_256_hash_of_price_quote_response_fields"`
	RequesterSignature  string `json:"requester_pastelid_signature_on_response_hash"`
}

// PurchaseResponse is the supernode's second-step answer committing to the
// sale, including the quorum that co-signed the terms.
type PurchaseResponse struct {
	RespondingSupernodePastelID string            `json:"responding_supernode_pastelid"`
	RequestHash                 string            `json:"sha3_256_hash_of_credit_pack_purchase_request_fields"`
	ProposedTotalCost           float64           `json:"proposed_total_cost_of_credit_pack_in_psl"`
	AgreeingSupernodes          []string          `json:"list_of_potentially_agreeing_supernodes"`
	AgreeingSignatures          map[string]string `json:"agreeing_supernodes_signatures_dict"`
	ResponseTimestamp           string            `json:"purchase_response_timestamp_utc_iso_string"`
	ResponseBlockHeight         int64             `json:"purchase_response_pastel_block_height"`
	Hash                        string            `json:"sha3_256_hash_of_purchase_response_fields"`
	SupernodeSignature          string            `json:"responding_supernode_pastelid_signature_on_purchase_response_hash"`
}

// TerminationNotice is the supernode's second-step abort. Mutually
// exclusive with PurchaseResponse.
type TerminationNotice struct {
	RespondingSupernodePastelID string `json:"responding_supernode_pastelid"`
	RequestHash                 string `json:"sha3_256_hash_of_credit_pack_purchase_request_fields"`
	TerminationReason           string `json:"termination_reason_string"`
	TerminationTimestamp        string `json:"termination_timestamp_utc_iso_string"`
	TerminationBlockHeight      int64  `json:"termination_pastel_block_height"`
	Hash                        string `json:"sha3_256_hash_of_termination_notice_fields"`
	SupernodeSignature          string `json:"responding_supernode_pastelid_signature_on_termination_hash"`
}

// PurchaseConfirmation links the negotiated terms to the burn payment.
// Created only after the payment has been broadcast.
type PurchaseConfirmation struct {
	RequesterPastelID       string `json:"requester_pastelid"`
	RequestHash             string `json:"sha3_256_hash_of_credit_pack_purchase_request_fields"`
	ResponseHash            string `json:"sha3_256_hash_of_purchase_response_fields"`
	BurnTxID                string `json:"txid_of_credit_purchase_burn_transaction"`
	ConfirmationTimestamp   string `json:"confirmation_timestamp_utc_iso_string"`
	ConfirmationBlockHeight int64  `json:"confirmation_pastel_block_height"`
	Hash                    string `json:"sha3_256_hash_of_purchase_confirmation_fields"`
	RequesterSignature      string `json:"requester_pastelid_signature_on_confirmation_hash"`
}

// ConfirmationResponse is the supernode's registration outcome for a
// submitted confirmation.
type ConfirmationResponse struct {
	RespondingSupernodePastelID string `json:"responding_supernode_pastelid"`
	RequestHash                 string `json:"sha3_256_hash_of_credit_pack_purchase_request_fields"`
	Outcome                     string `json:"credit_pack_confirmation_outcome_string"`
	RegistrationTxID            string `json:"pastel_api_credit_pack_ticket_registration_txid"`
	ResponseTimestamp           string `json:"confirmation_response_timestamp_utc_iso_string"`
	ResponseBlockHeight         int64  `json:"confirmation_response_pastel_block_height"`
	Hash                        string `json:"sha3_256_hash_of_confirmation_response_fields"`
	SupernodeSignature          string `json:"responding_supernode_pastelid_signature_on_confirmation_response_hash"`
}

// Purchase registration status values.
const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusCompleted = "completed"
	PurchaseStatusFailed    = "failed"
)

// StatusCheck asks whether a submitted confirmation was durably registered.
type StatusCheck struct {
	RequesterPastelID  string `json:"requester_pastelid"`
	RequestHash        string `json:"sha3_256_hash_of_credit_pack_purchase_request_fields"`
	CheckTimestamp     string `json:"status_check_timestamp_utc_iso_string"`
	Hash               string `json:"sha3_256_hash_of_status_check_fields"`
	RequesterSignature string `json:"requester_pastelid_signature_on_status_check_hash"`
}

// PurchaseStatus is a supernode's answer to a StatusCheck.
type PurchaseStatus struct {
	RespondingSupernodePastelID string `json:"responding_supernode_pastelid"`
	RequestHash                 string `json:"sha3_256_hash_of_credit_pack_purchase_request_fields"`
	Status                      string `json:"credit_pack_purchase_status"`
	RegistrationTxID            string `json:"pastel_api_credit_pack_ticket_registration_txid"`
	StatusTimestamp             string `json:"status_timestamp_utc_iso_string"`
	StatusBlockHeight           int64  `json:"status_pastel_block_height"`
	Hash                        string `json:"sha3_256_hash_of_purchase_status_fields"`
	SupernodeSignature          string `json:"responding_supernode_pastelid_signature_on_status_hash"`
}

// StorageRetryRequest asks an agreeing supernode to register a confirmation
// the originating node failed to store.
type StorageRetryRequest struct {
	RequesterPastelID   string `json:"requester_pastelid"`
	RequestHash         string `json:"sha3_256_hash_of_credit_pack_purchase_request_fields"`
	ResponseHash        string `json:"sha3_256_hash_of_purchase_response_fields"`
	BurnTxID            string `json:"txid_of_credit_purchase_burn_transaction"`
	RetryTimestamp      string `json:"storage_retry_timestamp_utc_iso_string"`
	RetryBlockHeight    int64  `json:"storage_retry_pastel_block_height"`
	Hash                string `json:"sha3_256_hash_of_storage_retry_request_fields"`
	RequesterSignature  string `json:"requester_pastelid_signature_on_storage_retry_hash"`
}

// StorageRetryResponse is the outcome of a storage retry.
type StorageRetryResponse struct {
	RespondingSupernodePastelID string `json:"responding_supernode_pastelid"`
	RequestHash                 string `json:"sha3_256_hash_of_credit_pack_purchase_request_fields"`
	Outcome                     string `json:"storage_retry_outcome_string"`
	RegistrationTxID            string `json:"pastel_api_credit_pack_ticket_registration_txid"`
	ResponseTimestamp           string `json:"storage_retry_response_timestamp_utc_iso_string"`
	Hash                        string `json:"sha3_256_hash_of_storage_retry_response_fields"`
	SupernodeSignature          string `json:"responding_supernode_pastelid_signature_on_storage_retry_response_hash"`
}
