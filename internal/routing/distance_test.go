package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pastelnetwork/go-inference-client/internal/supernode"
	"github.com/pastelnetwork/go-inference-client/internal/types"
)

func TestDistanceSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"jXa1b2c3", "jXd4e5f6"},
		{"jXalpha", "jXbeta"},
		{"", "jXanything"},
	}
	for _, pair := range pairs {
		assert.Equal(t, 0, Distance(pair[0], pair[1]).Cmp(Distance(pair[1], pair[0])))
	}
}

func TestDistanceZeroIffEqual(t *testing.T) {
	assert.Equal(t, 0, Distance("jXself", "jXself").Sign())
	assert.Equal(t, 1, Distance("jXself", "jXother").Sign())
}

func TestClosestNSortedSubset(t *testing.T) {
	candidates := []types.Supernode{
		{PastelID: "jXnode1", Status: types.SupernodeStatusEnabled},
		{PastelID: "jXnode2", Status: types.SupernodeStatusEnabled},
		{PastelID: "jXnode3", Status: types.SupernodeStatusEnabled},
		{PastelID: "jXnode4", Status: types.SupernodeStatusEnabled},
	}

	ranked := ClosestN("jXrequester", candidates, 3)
	require.Len(t, ranked, 3)
	for i := 1; i < len(ranked); i++ {
		assert.LessOrEqual(t, ranked[i-1].Distance.Cmp(ranked[i].Distance), 0,
			"output must be sorted ascending by distance")
	}
	seen := make(map[string]bool)
	for _, c := range candidates {
		seen[c.PastelID] = true
	}
	for _, r := range ranked {
		assert.True(t, seen[r.PastelID], "ranked output must be a subset of the input")
	}
}

func TestClosestNSkipsCandidatesWithoutIdentity(t *testing.T) {
	candidates := []types.Supernode{
		{PastelID: ""},
		{PastelID: "jXnode1"},
	}
	ranked := ClosestN("jXrequester", candidates, 10)
	require.Len(t, ranked, 1)
	assert.Equal(t, "jXnode1", ranked[0].PastelID)
}

type probeStub struct {
	supernode.API
	err error
}

func (p probeStub) Ping(context.Context) (*supernode.PingResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &supernode.PingResponse{Status: "ok", PerformanceRatio: 1}, nil
}

func TestClosestOneRequiresLiveness(t *testing.T) {
	candidates := []types.Supernode{{PastelID: "jXnode1"}, {PastelID: "jXnode2"}}
	closest := ClosestN("jXrequester", candidates, 1)[0]

	alive := NewRouter(func(types.Supernode) supernode.API { return probeStub{} })
	got, err := alive.ClosestOne(context.Background(), "jXrequester", candidates)
	require.NoError(t, err)
	assert.Equal(t, closest.PastelID, got.PastelID)

	dead := NewRouter(func(types.Supernode) supernode.API {
		return probeStub{err: types.ErrTransportFailure}
	})
	_, err = dead.ClosestOne(context.Background(), "jXrequester", candidates)
	assert.ErrorIs(t, err, ErrNoneFound, "a dead closest node must not be silently substituted")
}

func TestClosestOneEmptyCandidates(t *testing.T) {
	r := NewRouter(func(types.Supernode) supernode.API { return probeStub{} })
	_, err := r.ClosestOne(context.Background(), "jXrequester", nil)
	assert.ErrorIs(t, err, ErrNoneFound)
}
