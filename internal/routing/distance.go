package routing

import (
	"context"
	"math/big"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/sha3"

	"github.com/pastelnetwork/go-inference-client/internal/supernode"
	"github.com/pastelnetwork/go-inference-client/internal/types"
)

// ErrNoneFound is returned when no candidate satisfies the selection
// criteria.
var ErrNoneFound = errors.New("no suitable supernode found")

// Distance is the XOR metric between two identities: the SHA3-256 digests
// of both ids interpreted as 256-bit unsigned integers, XORed. It is
// deterministic, symmetric and zero iff the ids are equal.
func Distance(idA, idB string) *big.Int {
	da := sha3.Sum256([]byte(idA))
	db := sha3.Sum256([]byte(idB))
	ia := new(big.Int).SetBytes(da[:])
	ib := new(big.Int).SetBytes(db[:])
	return ia.Xor(ia, ib)
}

// Ranked is a supernode annotated with its distance from the requester.
// The underlying record is never mutated.
type Ranked struct {
	types.Supernode
	Distance *big.Int
}

// ClosestN sorts candidates ascending by distance from self and returns
// the first n. The sort is stable, so equidistant candidates keep their
// input order. Candidates with an empty identity are excluded rather than
// failing the whole ranking.
func ClosestN(self string, candidates []types.Supernode, n int) []Ranked {
	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		if c.PastelID == "" {
			log.Debug().Str("endpoint", c.Endpoint).Msg("skipping candidate without identity")
			continue
		}
		ranked = append(ranked, Ranked{Supernode: c, Distance: Distance(self, c.PastelID)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distance.Cmp(ranked[j].Distance) < 0
	})
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Router selects supernodes by distance, gating single-node selection on a
// liveness probe.
type Router struct {
	factory supernode.Factory
}

// NewRouter creates a router.
func NewRouter(factory supernode.Factory) *Router {
	return &Router{factory: factory}
}

// ClosestOne returns the closest candidate to self that answers a liveness
// probe within the context deadline. A dead closest node is not silently
// substituted: ErrNoneFound is returned instead.
func (r *Router) ClosestOne(ctx context.Context, self string, candidates []types.Supernode) (*Ranked, error) {
	ranked := ClosestN(self, candidates, 1)
	if len(ranked) == 0 {
		return nil, ErrNoneFound
	}
	chosen := ranked[0]
	if _, err := r.factory(chosen.Supernode).Ping(ctx); err != nil {
		log.Debug().
			Str("supernode", chosen.PastelID).
			Err(err).
			Msg("closest supernode failed liveness probe")
		return nil, errors.Wrapf(ErrNoneFound, "closest supernode %s is unreachable", chosen.PastelID)
	}
	return &chosen, nil
}
