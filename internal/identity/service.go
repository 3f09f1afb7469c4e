package identity

import "context"

// Service signs and verifies protocol messages on behalf of a PastelID.
// Implementations may hold keys locally or proxy to an external wallet.
type Service interface {
	// Sign produces a signature over message for the given PastelID.
	Sign(ctx context.Context, pastelID string, message string) (string, error)

	// Verify checks a signature over message against the given PastelID.
	Verify(ctx context.Context, pastelID string, message string, signature string) (bool, error)
}
