package creditpack

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pastelnetwork/go-inference-client/internal/config"
	"github.com/pastelnetwork/go-inference-client/internal/consensus"
	"github.com/pastelnetwork/go-inference-client/internal/routing"
	"github.com/pastelnetwork/go-inference-client/internal/storage"
	"github.com/pastelnetwork/go-inference-client/internal/supernode"
	"github.com/pastelnetwork/go-inference-client/internal/types"
	"github.com/pastelnetwork/go-inference-client/internal/util"
)

type stubIdentity struct{}

func (stubIdentity) Sign(_ context.Context, pastelID, message string) (string, error) {
	return "sig:" + pastelID + ":" + message, nil
}

func (stubIdentity) Verify(_ context.Context, pastelID, message, signature string) (bool, error) {
	return signature == "sig:"+pastelID+":"+message, nil
}

type payment struct {
	from   string
	to     string
	amount float64
}

type fakeLedger struct {
	mu       sync.Mutex
	height   int64
	balance  float64
	fair     float64
	nodes    []types.Supernode
	payments []payment
}

func (l *fakeLedger) CurrentBlockHeight(context.Context) (int64, error) { return l.height, nil }

func (l *fakeLedger) AddressBalance(context.Context, string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance, nil
}

func (l *fakeLedger) BroadcastPayment(_ context.Context, from, to string, amount float64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.payments = append(l.payments, payment{from: from, to: to, amount: amount})
	return fmt.Sprintf("burn-txid-%d", len(l.payments)), nil
}

func (l *fakeLedger) MasternodeList(context.Context) ([]types.Supernode, error) {
	return l.nodes, nil
}

func (l *fakeLedger) EstimateCreditPrice(context.Context, int64) (float64, error) {
	return l.fair, nil
}

// fakeSeller scripts one supernode's side of the negotiation. Responses
// are properly hashed and signed so they survive validation.
type fakeSeller struct {
	supernode.API

	id     string
	ids    stubIdentity
	height int64

	reject         bool
	terminate      bool
	pricePerCredit float64
	agreeing       []string
	emptyConfirm   bool
	statusErr      bool
	statusSeq      []string
	announceErr    bool

	mu              sync.Mutex
	quoteCalls      int
	statusCalls     int
	retryCalls      int
	announceCalls   int
	completionCalls int
}

func (s *fakeSeller) seal(msg any, setHash func(string), setSig func(string)) {
	hash, _ := consensus.ComputeHash(msg)
	setHash(hash)
	sig, _ := s.ids.Sign(context.Background(), s.id, hash)
	setSig(sig)
}

func (s *fakeSeller) Ping(context.Context) (*supernode.PingResponse, error) {
	return &supernode.PingResponse{Status: "ok", PerformanceRatio: 1}, nil
}

func (s *fakeSeller) RequestCreditPackQuote(_ context.Context, req *types.CreditPackPurchaseRequest) (*supernode.QuoteOutcome, error) {
	s.mu.Lock()
	s.quoteCalls++
	s.mu.Unlock()

	if s.reject {
		rej := &types.RejectionResponse{
			RespondingSupernodePastelID: s.id,
			RequestHash:                 req.Hash,
			RejectionReason:             "not selling today",
			RejectionTimestamp:          util.UTCTimestamp(time.Now()),
			RejectionBlockHeight:        s.height,
		}
		s.seal(rej, func(h string) { rej.Hash = h }, func(sig string) { rej.SupernodeSignature = sig })
		return &supernode.QuoteOutcome{Rejection: rej}, nil
	}

	quote := &types.PreliminaryPriceQuote{
		RespondingSupernodePastelID: s.id,
		RequestHash:                 req.Hash,
		QuotedPricePerCredit:        s.pricePerCredit,
		QuotedTotalCost:             s.pricePerCredit * float64(req.RequestedInitialCredits),
		QuoteTimestamp:              util.UTCTimestamp(time.Now()),
		QuoteBlockHeight:            s.height,
	}
	s.seal(quote, func(h string) { quote.Hash = h }, func(sig string) { quote.SupernodeSignature = sig })
	return &supernode.QuoteOutcome{Quote: quote}, nil
}

func (s *fakeSeller) SubmitPriceQuoteResponse(_ context.Context, resp *types.PriceQuoteResponse) (*supernode.PurchaseOutcome, error) {
	if !resp.Agreed {
		return &supernode.PurchaseOutcome{}, nil
	}
	if s.terminate {
		term := &types.TerminationNotice{
			RespondingSupernodePastelID: s.id,
			RequestHash:                 resp.RequestHash,
			TerminationReason:           "quorum unavailable",
			TerminationTimestamp:        util.UTCTimestamp(time.Now()),
			TerminationBlockHeight:      s.height,
		}
		s.seal(term, func(h string) { term.Hash = h }, func(sig string) { term.SupernodeSignature = sig })
		return &supernode.PurchaseOutcome{Termination: term}, nil
	}

	sigs := make(map[string]string, len(s.agreeing))
	for _, id := range s.agreeing {
		sigs[id] = "cosig-" + id
	}
	pr := &types.PurchaseResponse{
		RespondingSupernodePastelID: s.id,
		RequestHash:                 resp.RequestHash,
		ProposedTotalCost:           s.pricePerCredit * 100,
		AgreeingSupernodes:          s.agreeing,
		AgreeingSignatures:          sigs,
		ResponseTimestamp:           util.UTCTimestamp(time.Now()),
		ResponseBlockHeight:         s.height,
	}
	s.seal(pr, func(h string) { pr.Hash = h }, func(sig string) { pr.SupernodeSignature = sig })
	return &supernode.PurchaseOutcome{Response: pr}, nil
}

func (s *fakeSeller) ConfirmCreditPurchase(_ context.Context, conf *types.PurchaseConfirmation) (*types.ConfirmationResponse, error) {
	if s.emptyConfirm {
		return &types.ConfirmationResponse{}, nil
	}
	cr := &types.ConfirmationResponse{
		RespondingSupernodePastelID: s.id,
		RequestHash:                 conf.RequestHash,
		Outcome:                     "success",
		RegistrationTxID:            "reg-" + s.id,
		ResponseTimestamp:           util.UTCTimestamp(time.Now()),
		ResponseBlockHeight:         s.height,
	}
	s.seal(cr, func(h string) { cr.Hash = h }, func(sig string) { cr.SupernodeSignature = sig })
	return cr, nil
}

func (s *fakeSeller) CheckPurchaseStatus(_ context.Context, check *types.StatusCheck) (*types.PurchaseStatus, error) {
	s.mu.Lock()
	s.statusCalls++
	status := types.PurchaseStatusPending
	if len(s.statusSeq) > 0 {
		status, s.statusSeq = s.statusSeq[0], s.statusSeq[1:]
	}
	s.mu.Unlock()

	if s.statusErr {
		return nil, errors.Wrap(types.ErrTransportFailure, "status endpoint down")
	}

	ps := &types.PurchaseStatus{
		RespondingSupernodePastelID: s.id,
		RequestHash:                 check.RequestHash,
		Status:                      status,
		StatusTimestamp:             util.UTCTimestamp(time.Now()),
		StatusBlockHeight:           s.height,
	}
	if status == types.PurchaseStatusCompleted {
		ps.RegistrationTxID = "reg-txid-" + s.id
	}
	s.seal(ps, func(h string) { ps.Hash = h }, func(sig string) { ps.SupernodeSignature = sig })
	return ps, nil
}

func (s *fakeSeller) SubmitStorageRetry(_ context.Context, req *types.StorageRetryRequest) (*types.StorageRetryResponse, error) {
	s.mu.Lock()
	s.retryCalls++
	s.mu.Unlock()

	rr := &types.StorageRetryResponse{
		RespondingSupernodePastelID: s.id,
		RequestHash:                 req.RequestHash,
		Outcome:                     "success",
		RegistrationTxID:            "retry-reg-" + s.id,
		ResponseTimestamp:           util.UTCTimestamp(time.Now()),
	}
	s.seal(rr, func(h string) { rr.Hash = h }, func(sig string) { rr.SupernodeSignature = sig })
	return rr, nil
}

func (s *fakeSeller) AnnounceStorageRetryCompletion(context.Context, *types.PurchaseConfirmation) error {
	s.mu.Lock()
	s.announceCalls++
	s.mu.Unlock()
	if s.announceErr {
		return errors.Wrap(types.ErrTransportFailure, "announcement refused")
	}
	return nil
}

func (s *fakeSeller) AnnouncePurchaseCompletion(context.Context, *types.PurchaseConfirmation) error {
	s.mu.Lock()
	s.completionCalls++
	s.mu.Unlock()
	if s.announceErr {
		return errors.Wrap(types.ErrTransportFailure, "announcement refused")
	}
	return nil
}

func (s *fakeSeller) calls() (quote, status, retry, announce int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quoteCalls, s.statusCalls, s.retryCalls, s.announceCalls
}

func (s *fakeSeller) completions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completionCalls
}

type purchaseHarness struct {
	ledger  *fakeLedger
	sellers map[string]*fakeSeller
	store   *storage.MemoryStore
	proto   *Protocol
}

const (
	testBuyer       = "jXbuyer"
	testTrackingPSL = "PtrackingAddr1"
	testBurn        = "PtestBurnAddr1"
)

func newPurchaseHarness(nodeIDs ...string) *purchaseHarness {
	const tip = 500000

	h := &purchaseHarness{
		ledger:  &fakeLedger{height: tip, balance: 100000, fair: 0.95},
		sellers: make(map[string]*fakeSeller, len(nodeIDs)),
		store:   storage.NewMemoryStore(),
	}
	for _, id := range nodeIDs {
		h.ledger.nodes = append(h.ledger.nodes, types.Supernode{
			PastelID: id,
			Endpoint: id + ".test:8080",
			Status:   types.SupernodeStatusEnabled,
		})
		h.sellers[id] = &fakeSeller{id: id, height: tip, pricePerCredit: 0.95}
	}
	factory := func(node types.Supernode) supernode.API { return h.sellers[node.PastelID] }

	validation := config.Validation{TimestampTolerance: 2 * time.Minute, BlockHeightTolerance: 2}
	validator := consensus.NewValidator(validation, stubIdentity{}, h.ledger, time2.DefaultClock)
	health := routing.NewHealthFilter(config.Routing{
		MinPerformanceRatio: 0.75,
		HealthCacheTTL:      time.Minute,
		ProbeTimeout:        time.Second,
		MaxFilteredNodes:    24,
		ProbesPerSecond:     1000,
	}, factory, time2.DefaultClock, nil)

	cfg := config.Purchase{
		MaxCandidates:        12,
		MaxPriceDeviation:    0.05,
		PaymentDecimalPlaces: 5,
		BurnAddress:          testBurn,
		TransportRetries:     0,
		RequestTimeout:       time.Second,
		StatusPollInterval:   time.Millisecond,
		StatusPollAttempts:   2,
	}
	h.proto = NewProtocol(cfg, stubIdentity{}, h.ledger, h.store, factory, validator, health, time2.DefaultClock, nil)
	return h
}

// rankedIDs reproduces the candidate order the protocol will walk.
func (h *purchaseHarness) rankedIDs() []string {
	ranked := routing.ClosestN(testBuyer, h.ledger.nodes, -1)
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.PastelID
	}
	return ids
}

func testPurchaseParams() PurchaseParams {
	return PurchaseParams{
		RequesterPastelID:   testBuyer,
		RequestedCredits:    100,
		AuthorizedPastelIDs: []string{testBuyer},
		TrackingAddress:     testTrackingPSL,
		MaxPerCreditPrice:   1.0,
	}
}

func TestPurchaseFallsBackPastRejectingCandidates(t *testing.T) {
	h := newPurchaseHarness("jXnodeA", "jXnodeB", "jXnodeC")
	order := h.rankedIDs()
	h.sellers[order[0]].reject = true
	h.sellers[order[1]].reject = true
	h.sellers[order[2]].statusSeq = []string{types.PurchaseStatusCompleted}

	result, err := h.proto.Purchase(context.Background(), testPurchaseParams(), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.CandidatesTried)
	assert.Equal(t, order[2], result.SupernodePastelID)
	assert.Equal(t, "reg-txid-"+order[2], result.RegistrationTxID)
	assert.Nil(t, result.StorageRetry, "a completed status must not trigger a storage retry")

	// Exactly one burn payment, to the burn address, for the quoted total.
	require.Len(t, h.ledger.payments, 1)
	assert.Equal(t, testBurn, h.ledger.payments[0].to)
	assert.Equal(t, testTrackingPSL, h.ledger.payments[0].from)
	assert.Equal(t, 95.0, h.ledger.payments[0].amount)

	// The confirmation was persisted before submission.
	var stored types.PurchaseConfirmation
	require.NoError(t, h.store.Get(context.Background(), storage.KindPurchaseConfirmation, result.Confirmation.Hash, &stored))
	assert.Equal(t, result.Confirmation.BurnTxID, stored.BurnTxID)

	for _, id := range order {
		quote, _, _, _ := h.sellers[id].calls()
		assert.Equal(t, 1, quote, "candidates are tried strictly sequentially")
	}
}

func TestPurchaseCompletionAnnouncedToAgreeingNodes(t *testing.T) {
	h := newPurchaseHarness("jXnodeA", "jXnodeB", "jXnodeC")
	order := h.rankedIDs()
	serving := h.sellers[order[0]]
	serving.agreeing = []string{order[0], order[1], order[2]}
	serving.statusSeq = []string{types.PurchaseStatusCompleted}
	// Announcement failures are swallowed.
	h.sellers[order[1]].announceErr = true

	result, err := h.proto.Purchase(context.Background(), testPurchaseParams(), nil)
	require.NoError(t, err)
	assert.Nil(t, result.StorageRetry)

	assert.Equal(t, 0, serving.completions(), "the serving node is not announced to")
	assert.Equal(t, 1, h.sellers[order[1]].completions())
	assert.Equal(t, 1, h.sellers[order[2]].completions())
	for _, id := range order {
		_, _, retries, _ := h.sellers[id].calls()
		assert.Equal(t, 0, retries, "a completed purchase never triggers a storage retry")
	}
}

func TestPurchaseStorageRetryTargetsClosestAgreeingNode(t *testing.T) {
	h := newPurchaseHarness("jXnodeA", "jXnodeB", "jXnodeC")
	order := h.rankedIDs()
	seller := h.sellers[order[0]]
	agreeing := []string{order[1], order[2]}
	seller.agreeing = agreeing
	// Registration never completes on the originating node.
	seller.statusSeq = nil

	// Completion announcements are allowed to fail.
	agreeOrder := h.rankedIDsOf(agreeing)
	target, other := h.sellers[agreeOrder[0]], h.sellers[agreeOrder[1]]
	other.announceErr = true

	result, err := h.proto.Purchase(context.Background(), testPurchaseParams(), nil)
	require.NoError(t, err)

	require.NotNil(t, result.StorageRetry)
	assert.Equal(t, "retry-reg-"+target.id, result.RegistrationTxID)
	assert.Equal(t, types.PurchaseStatusPending, result.Status.Status)

	_, _, targetRetries, _ := target.calls()
	assert.Equal(t, 1, targetRetries, "exactly one retry, against the closest agreeing node")
	_, _, otherRetries, otherAnnounces := other.calls()
	assert.Equal(t, 0, otherRetries)
	assert.Equal(t, 1, otherAnnounces, "remaining agreeing nodes get a best-effort announcement")

	_, statusPolls, _, _ := seller.calls()
	assert.Equal(t, 2, statusPolls, "the poll budget is bounded")
}

// rankedIDsOf orders a subset of node ids by distance from the buyer.
func (h *purchaseHarness) rankedIDsOf(ids []string) []string {
	subset := make([]types.Supernode, 0, len(ids))
	for _, n := range h.ledger.nodes {
		for _, id := range ids {
			if n.PastelID == id {
				subset = append(subset, n)
			}
		}
	}
	ranked := routing.ClosestN(testBuyer, subset, -1)
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.PastelID
	}
	return out
}

func TestPurchaseTerminationFallsToNextCandidate(t *testing.T) {
	h := newPurchaseHarness("jXnodeA", "jXnodeB")
	order := h.rankedIDs()
	h.sellers[order[0]].terminate = true
	h.sellers[order[1]].statusSeq = []string{types.PurchaseStatusCompleted}

	result, err := h.proto.Purchase(context.Background(), testPurchaseParams(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.CandidatesTried)
	assert.Equal(t, order[1], result.SupernodePastelID)
	require.Len(t, h.ledger.payments, 1, "a terminated negotiation must not produce a payment")
}

func TestPurchaseStatusFallbackToOtherCandidates(t *testing.T) {
	h := newPurchaseHarness("jXnodeA", "jXnodeB")
	order := h.rankedIDs()
	seller := h.sellers[order[0]]
	seller.statusErr = true
	h.sellers[order[1]].statusSeq = []string{types.PurchaseStatusCompleted}

	result, err := h.proto.Purchase(context.Background(), testPurchaseParams(), nil)
	require.NoError(t, err)

	require.NotNil(t, result.Status)
	assert.Equal(t, types.PurchaseStatusCompleted, result.Status.Status)
	assert.Equal(t, order[1], result.Status.RespondingSupernodePastelID)
	assert.Nil(t, result.StorageRetry)
}

func TestPurchaseExhaustsAllCandidates(t *testing.T) {
	h := newPurchaseHarness("jXnodeA", "jXnodeB", "jXnodeC")
	for _, s := range h.sellers {
		s.reject = true
	}

	_, err := h.proto.Purchase(context.Background(), testPurchaseParams(), nil)
	var exhausted *types.ExhaustionError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Empty(t, h.ledger.payments)
}

func TestPurchaseInsufficientFundsIsFatal(t *testing.T) {
	h := newPurchaseHarness("jXnodeA")
	h.ledger.balance = 10

	_, err := h.proto.Purchase(context.Background(), testPurchaseParams(), nil)
	require.ErrorIs(t, err, types.ErrInsufficientFunds)

	quote, _, _, _ := h.sellers["jXnodeA"].calls()
	assert.Equal(t, 0, quote, "the balance precondition runs before any network call")
}

func TestPurchaseRequiresACeiling(t *testing.T) {
	h := newPurchaseHarness("jXnodeA")
	params := testPurchaseParams()
	params.MaxPerCreditPrice = 0

	_, err := h.proto.Purchase(context.Background(), params, nil)
	require.Error(t, err)
	assert.Empty(t, h.ledger.payments)
}

func TestPurchaseDeclinesOverpricedQuote(t *testing.T) {
	h := newPurchaseHarness("jXnodeA", "jXnodeB")
	order := h.rankedIDs()
	// First candidate quotes above the fair-price deviation bound.
	h.sellers[order[0]].pricePerCredit = 0.999
	h.sellers[order[1]].statusSeq = []string{types.PurchaseStatusCompleted}

	result, err := h.proto.Purchase(context.Background(), testPurchaseParams(), nil)
	require.NoError(t, err)

	assert.Equal(t, order[1], result.SupernodePastelID)
	require.Len(t, h.ledger.payments, 1)
	assert.Equal(t, 95.0, h.ledger.payments[0].amount)
}
