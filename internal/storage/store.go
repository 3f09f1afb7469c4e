package storage

import (
	"context"

	"github.com/pkg/errors"
)

// Record kinds persisted by the protocol components. Keys within a kind
// are message hashes or request ids.
const (
	KindPurchaseRequest      = "credit_pack_purchase_request"
	KindPriceQuote           = "preliminary_price_quote"
	KindPurchaseResponse     = "credit_pack_purchase_response"
	KindPurchaseConfirmation = "credit_pack_purchase_confirmation"
	KindConfirmationResponse = "credit_pack_confirmation_response"
	KindStorageRetry         = "credit_pack_storage_retry"
	KindInferenceRequest     = "inference_api_usage_request"
	KindInferenceResponse    = "inference_api_usage_response"
	KindInferenceResult      = "inference_output_result"
)

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("record not found")

// Store persists protocol artifacts keyed by entity kind. Every
// intermediate message is written as soon as it exists so a purchase can
// be resumed after a late failure without losing a broadcast payment.
type Store interface {
	Put(ctx context.Context, kind, key string, record any) error
	Get(ctx context.Context, kind, key string, out any) error
	All(ctx context.Context, kind string) ([][]byte, error)
}
