package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pastelnetwork/go-inference-client/internal/types"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	req := &types.CreditPackPurchaseRequest{
		ID:                "id-1",
		RequesterPastelID: "jXalice",
		Hash:              "hash-1",
	}
	require.NoError(t, s.Put(ctx, KindPurchaseRequest, req.Hash, req))

	var got types.CreditPackPurchaseRequest
	require.NoError(t, s.Get(ctx, KindPurchaseRequest, "hash-1", &got))
	assert.Equal(t, "jXalice", got.RequesterPastelID)
}

func TestMemoryStoreNotFound(t *testing.T) {
	s := NewMemoryStore()
	var out types.CreditPackPurchaseRequest
	err := s.Get(context.Background(), KindPurchaseRequest, "missing", &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreKindsAreIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, KindPurchaseRequest, "k", map[string]string{"a": "1"}))

	var out map[string]string
	err := s.Get(ctx, KindPriceQuote, "k", &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreAll(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, KindPriceQuote, "a", map[string]int{"n": 1}))
	require.NoError(t, s.Put(ctx, KindPriceQuote, "b", map[string]int{"n": 2}))

	records, err := s.All(ctx, KindPriceQuote)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	empty, err := s.All(ctx, KindStorageRetry)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStoreOverwrite(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, KindPriceQuote, "k", map[string]int{"n": 1}))
	require.NoError(t, s.Put(ctx, KindPriceQuote, "k", map[string]int{"n": 2}))

	var out map[string]int
	require.NoError(t, s.Get(ctx, KindPriceQuote, "k", &out))
	assert.Equal(t, 2, out["n"])
}
