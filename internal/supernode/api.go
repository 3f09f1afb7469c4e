package supernode

import (
	"context"

	"github.com/pastelnetwork/go-inference-client/internal/types"
)

// PingResponse is a supernode's answer to a liveness probe.
type PingResponse struct {
	Status           string  `json:"status"`
	PerformanceRatio float64 `json:"performance_ratio"`
}

// QuoteOutcome is the first negotiation step's union result: exactly one
// of Quote or Rejection is set.
type QuoteOutcome struct {
	Quote     *types.PreliminaryPriceQuote
	Rejection *types.RejectionResponse
}

// PurchaseOutcome is the second negotiation step's union result: exactly
// one of Response or Termination is set.
type PurchaseOutcome struct {
	Response    *types.PurchaseResponse
	Termination *types.TerminationNotice
}

// API is the per-supernode client surface consumed by the protocol state
// machines. The production implementation speaks JSON over HTTP with
// challenge authentication; tests substitute fakes.
type API interface {
	// Ping is the lightweight reachability and performance probe.
	Ping(ctx context.Context) (*PingResponse, error)

	// GetModelMenu fetches the node's capability menu.
	GetModelMenu(ctx context.Context) (*types.ModelMenu, error)

	// RequestCreditPackQuote opens a purchase negotiation.
	RequestCreditPackQuote(ctx context.Context, req *types.CreditPackPurchaseRequest) (*QuoteOutcome, error)

	// SubmitPriceQuoteResponse submits the accept/reject decision.
	SubmitPriceQuoteResponse(ctx context.Context, resp *types.PriceQuoteResponse) (*PurchaseOutcome, error)

	// ConfirmCreditPurchase submits the post-payment confirmation.
	ConfirmCreditPurchase(ctx context.Context, conf *types.PurchaseConfirmation) (*types.ConfirmationResponse, error)

	// CheckPurchaseStatus queries registration status of a confirmation.
	CheckPurchaseStatus(ctx context.Context, check *types.StatusCheck) (*types.PurchaseStatus, error)

	// SubmitStorageRetry asks an agreeing node to store the confirmation
	// after the originating node failed to.
	SubmitStorageRetry(ctx context.Context, req *types.StorageRetryRequest) (*types.StorageRetryResponse, error)

	// AnnounceStorageRetryCompletion and AnnouncePurchaseCompletion are
	// best-effort, fire-and-forget notifications.
	AnnounceStorageRetryCompletion(ctx context.Context, conf *types.PurchaseConfirmation) error
	AnnouncePurchaseCompletion(ctx context.Context, conf *types.PurchaseConfirmation) error

	// MakeInferenceRequest submits an inference usage request.
	MakeInferenceRequest(ctx context.Context, req *types.InferenceAPIUsageRequest) (*types.InferenceAPIUsageResponse, error)

	// ConfirmInference notifies the node that the tracking payment was sent.
	ConfirmInference(ctx context.Context, conf *types.InferenceConfirmation) error

	// CheckInferenceResultsReady reports whether results are available.
	CheckInferenceResultsReady(ctx context.Context, inferenceRequestID string) (bool, error)

	// RetrieveInferenceOutput fetches the completed job's output.
	RetrieveInferenceOutput(ctx context.Context, inferenceRequestID, inferenceResponseID string) (*types.InferenceOutputResult, error)

	// AuditInferenceResponse and AuditInferenceResult fetch another node's
	// copy of a response/result for consensus checking.
	AuditInferenceResponse(ctx context.Context, inferenceResponseID string) (*types.InferenceAPIUsageResponse, error)
	AuditInferenceResult(ctx context.Context, inferenceResponseID string) (*types.InferenceOutputResult, error)
}

// Factory builds an API client for one supernode record.
type Factory func(node types.Supernode) API
