package creditpack

import (
	"context"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/pastelnetwork/go-inference-client/internal/config"
	"github.com/pastelnetwork/go-inference-client/internal/consensus"
	"github.com/pastelnetwork/go-inference-client/internal/events"
	"github.com/pastelnetwork/go-inference-client/internal/identity"
	"github.com/pastelnetwork/go-inference-client/internal/ledger"
	"github.com/pastelnetwork/go-inference-client/internal/metrics"
	"github.com/pastelnetwork/go-inference-client/internal/routing"
	"github.com/pastelnetwork/go-inference-client/internal/storage"
	"github.com/pastelnetwork/go-inference-client/internal/supernode"
	"github.com/pastelnetwork/go-inference-client/internal/types"
	"github.com/pastelnetwork/go-inference-client/internal/util"
)

const messageVersion = "1.0"

// PurchaseParams describes one credit pack purchase.
type PurchaseParams struct {
	RequesterPastelID   string
	RequestedCredits    int64
	AuthorizedPastelIDs []string
	TrackingAddress     string

	// Optional ceilings; zero values fall back to the configured defaults,
	// and a missing ceiling is derived from its counterpart.
	MaxPerCreditPrice float64
	MaxTotalPrice     float64
}

// PurchaseResult is the fully-populated outcome of a successful purchase.
type PurchaseResult struct {
	Request              *types.CreditPackPurchaseRequest
	Response             *types.PurchaseResponse
	Confirmation         *types.PurchaseConfirmation
	ConfirmationResponse *types.ConfirmationResponse
	Status               *types.PurchaseStatus
	StorageRetry         *types.StorageRetryResponse
	RegistrationTxID     string
	SupernodePastelID    string
	CandidatesTried      int
}

// Protocol drives the credit pack purchase negotiation. Candidates are
// tried strictly sequentially: each attempt broadcasts economic state (a
// burn payment), so attempts must never run concurrently.
type Protocol struct {
	cfg       config.Purchase
	identity  identity.Service
	ledger    ledger.Service
	store     storage.Store
	factory   supernode.Factory
	validator *consensus.Validator
	health    *routing.HealthFilter
	clock     time2.Clock
	metrics   *metrics.Service
}

// NewProtocol creates the purchase protocol. metrics may be nil.
func NewProtocol(
	cfg config.Purchase,
	ids identity.Service,
	lgr ledger.Service,
	store storage.Store,
	factory supernode.Factory,
	validator *consensus.Validator,
	health *routing.HealthFilter,
	clock time2.Clock,
	m *metrics.Service,
) *Protocol {
	return &Protocol{
		cfg:       cfg,
		identity:  ids,
		ledger:    lgr,
		store:     store,
		factory:   factory,
		validator: validator,
		health:    health,
		clock:     clock,
		metrics:   m,
	}
}

// Purchase executes the full negotiation against the ranked candidate
// list. It returns a fully-populated result or a fatal error naming the
// failed stage; partial progress is persisted through the store so a
// broadcast payment is never silently lost.
func (p *Protocol) Purchase(ctx context.Context, params PurchaseParams, stream *events.Stream) (*PurchaseResult, error) {
	bounds := PriceBounds{
		MaxPerCredit: params.MaxPerCreditPrice,
		MaxTotal:     params.MaxTotalPrice,
		MaxDeviation: p.cfg.MaxPriceDeviation,
	}
	if bounds.MaxPerCredit == 0 {
		bounds.MaxPerCredit = p.cfg.MaxPerCreditPrice
	}
	if bounds.MaxTotal == 0 {
		bounds.MaxTotal = p.cfg.MaxTotalPrice
	}
	bounds = bounds.Resolve(params.RequestedCredits)
	if bounds.MaxPerCredit == 0 && bounds.MaxTotal == 0 {
		return nil, errors.New("no price ceiling configured for purchase")
	}

	balance, err := p.ledger.AddressBalance(ctx, params.TrackingAddress)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query tracking address balance")
	}
	if balance < bounds.MaxTotal {
		return nil, errors.Wrapf(types.ErrInsufficientFunds,
			"tracking address holds %.5f PSL, purchase ceiling is %.5f PSL", balance, bounds.MaxTotal)
	}

	height, err := p.ledger.CurrentBlockHeight(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch current block height")
	}
	bounds.FairEstimate, err = p.ledger.EstimateCreditPrice(ctx, height)
	if err != nil {
		return nil, errors.Wrap(err, "failed to estimate fair credit price")
	}

	req, err := p.buildRequest(ctx, params, height)
	if err != nil {
		return nil, err
	}
	stream.Publish(events.Event{Stage: events.StageRequestSigned, At: p.clock.Now()})

	nodes, err := p.ledger.MasternodeList(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch masternode list")
	}
	live := p.health.FilterLive(ctx, nodes)
	ranked := routing.ClosestN(params.RequesterPastelID, live, p.cfg.MaxCandidates)
	if len(ranked) == 0 {
		return nil, &types.ExhaustionError{Stage: string(StateQuoteRequested), Attempts: 0}
	}

	var attempts int
	for _, cand := range ranked {
		attempts++
		result, err := p.attempt(ctx, cand, ranked, nodes, req, bounds, params, stream)
		if err == nil {
			result.CandidatesTried = attempts
			p.countOutcome("success")
			return result, nil
		}
		if errors.Is(err, types.ErrInsufficientFunds) || ctx.Err() != nil {
			p.countOutcome("fatal")
			return nil, err
		}
		p.countFailure(err)
		log.Warn().
			Str("supernode", cand.PastelID).
			Int("attempt", attempts).
			Err(err).
			Msg("abandoning purchase candidate")
		stream.Publish(events.Event{
			Stage:     events.StageCandidateAbandoned,
			Supernode: cand.PastelID,
			Attempt:   attempts,
			Message:   err.Error(),
			At:        p.clock.Now(),
		})
	}

	p.countOutcome("exhausted")
	return nil, &types.ExhaustionError{Stage: string(StateQuoteRequested), Attempts: attempts}
}

func (p *Protocol) buildRequest(ctx context.Context, params PurchaseParams, height int64) (*types.CreditPackPurchaseRequest, error) {
	req := &types.CreditPackPurchaseRequest{
		ID:                      uuid.NewString(),
		RequesterPastelID:       params.RequesterPastelID,
		RequestedInitialCredits: params.RequestedCredits,
		AuthorizedPastelIDs:     params.AuthorizedPastelIDs,
		TrackingAddress:         params.TrackingAddress,
		RequestTimestamp:        util.UTCTimestamp(p.clock.Now()),
		RequestBlockHeight:      height,
		MessageVersion:          messageVersion,
	}
	hash, sig, err := p.hashAndSign(ctx, params.RequesterPastelID, req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign purchase request")
	}
	req.Hash, req.RequesterSignature = hash, sig
	if err := p.store.Put(ctx, storage.KindPurchaseRequest, req.Hash, req); err != nil {
		return nil, errors.Wrap(err, "failed to persist purchase request")
	}
	return req, nil
}

// attempt runs the full remaining step sequence against one candidate.
// Any returned error abandons the candidate; the caller decides whether it
// is fatal to the whole purchase.
func (p *Protocol) attempt(
	ctx context.Context,
	cand routing.Ranked,
	ranked []routing.Ranked,
	nodes []types.Supernode,
	req *types.CreditPackPurchaseRequest,
	bounds PriceBounds,
	params PurchaseParams,
	stream *events.Stream,
) (*PurchaseResult, error) {
	sm := newMachine(StateSigned)
	client := p.factory(cand.Supernode)

	if err := sm.to(StateQuoteRequested); err != nil {
		return nil, err
	}
	stream.Publish(events.Event{Stage: events.StageQuoteRequested, Supernode: cand.PastelID, At: p.clock.Now()})

	var outcome *supernode.QuoteOutcome
	err := p.withTransportRetries(ctx, func(callCtx context.Context) error {
		var e error
		outcome, e = client.RequestCreditPackQuote(callCtx, req)
		return e
	})
	if err != nil {
		return nil, err
	}
	if outcome.Rejection != nil {
		if err := sm.to(StateRejected); err != nil {
			return nil, err
		}
		stream.Publish(events.Event{Stage: events.StageQuoteRejected, Supernode: cand.PastelID, At: p.clock.Now()})
		return nil, errors.Wrapf(types.ErrEconomicRejection, "supernode %s: %s",
			cand.PastelID, outcome.Rejection.RejectionReason)
	}

	quote := outcome.Quote
	if err := sm.to(StateQuoted); err != nil {
		return nil, err
	}
	if err := p.validator.ValidateMessage(ctx, quote); err != nil {
		return nil, err
	}
	if quote.RequestHash != req.Hash {
		return nil, errors.Wrap(types.ErrIntegrityFailure, "price quote echoes a different request hash")
	}
	if err := p.store.Put(ctx, storage.KindPriceQuote, quote.Hash, quote); err != nil {
		return nil, errors.Wrap(err, "failed to persist price quote")
	}
	stream.Publish(events.Event{Stage: events.StageQuoteReceived, Supernode: cand.PastelID, At: p.clock.Now()})

	agreed := AcceptQuote(quote.QuotedPricePerCredit, quote.QuotedTotalCost, bounds)
	quoteResp := &types.PriceQuoteResponse{
		RequesterPastelID:   params.RequesterPastelID,
		RequestHash:         req.Hash,
		QuoteHash:           quote.Hash,
		Agreed:              agreed,
		ResponseTimestamp:   util.UTCTimestamp(p.clock.Now()),
		ResponseBlockHeight: quote.QuoteBlockHeight,
	}
	hash, sig, err := p.hashAndSign(ctx, params.RequesterPastelID, quoteResp)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign price quote response")
	}
	quoteResp.Hash, quoteResp.RequesterSignature = hash, sig

	if !agreed {
		// Decline politely so the node can release the reservation, then
		// abandon the candidate.
		if _, err := client.SubmitPriceQuoteResponse(ctx, quoteResp); err != nil {
			log.Debug().Str("supernode", cand.PastelID).Err(err).Msg("failed to deliver quote decline")
		}
		return nil, errors.Wrapf(types.ErrEconomicRejection,
			"quote from %s outside acceptance bounds: %.5f PSL per credit, %.5f PSL total",
			cand.PastelID, quote.QuotedPricePerCredit, quote.QuotedTotalCost)
	}

	if err := sm.to(StateResponseSubmitted); err != nil {
		return nil, err
	}
	stream.Publish(events.Event{Stage: events.StageResponseSubmitted, Supernode: cand.PastelID, At: p.clock.Now()})

	var purchase *supernode.PurchaseOutcome
	err = p.withTransportRetries(ctx, func(callCtx context.Context) error {
		var e error
		purchase, e = client.SubmitPriceQuoteResponse(callCtx, quoteResp)
		return e
	})
	if err != nil {
		return nil, err
	}
	if purchase.Termination != nil {
		if err := sm.to(StateTerminated); err != nil {
			return nil, err
		}
		stream.Publish(events.Event{Stage: events.StageTerminated, Supernode: cand.PastelID, At: p.clock.Now()})
		return nil, errors.Wrapf(types.ErrProtocolTermination, "supernode %s: %s",
			cand.PastelID, purchase.Termination.TerminationReason)
	}

	resp := purchase.Response
	if err := sm.to(StatePurchased); err != nil {
		return nil, err
	}
	if err := p.validator.ValidateMessage(ctx, resp); err != nil {
		return nil, err
	}
	if resp.RequestHash != req.Hash {
		return nil, errors.Wrap(types.ErrIntegrityFailure, "purchase response echoes a different request hash")
	}
	if err := p.store.Put(ctx, storage.KindPurchaseResponse, resp.Hash, resp); err != nil {
		return nil, errors.Wrap(err, "failed to persist purchase response")
	}
	stream.Publish(events.Event{Stage: events.StagePurchaseAgreed, Supernode: cand.PastelID, At: p.clock.Now()})

	result, err := p.payAndConfirm(ctx, sm, client, cand, ranked, nodes, req, resp, params, stream)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Protocol) payAndConfirm(
	ctx context.Context,
	sm *machine,
	client supernode.API,
	cand routing.Ranked,
	ranked []routing.Ranked,
	nodes []types.Supernode,
	req *types.CreditPackPurchaseRequest,
	resp *types.PurchaseResponse,
	params PurchaseParams,
	stream *events.Stream,
) (*PurchaseResult, error) {
	amount := util.RoundTo(resp.ProposedTotalCost, p.cfg.PaymentDecimalPlaces)

	balance, err := p.ledger.AddressBalance(ctx, params.TrackingAddress)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query tracking address balance")
	}
	if balance < amount {
		return nil, errors.Wrapf(types.ErrInsufficientFunds,
			"tracking address holds %.5f PSL, purchase costs %.5f PSL", balance, amount)
	}

	txid, err := p.ledger.BroadcastPayment(ctx, params.TrackingAddress, p.cfg.BurnAddress, amount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to broadcast burn payment")
	}
	if err := sm.to(StatePaymentSent); err != nil {
		return nil, err
	}
	stream.Publish(events.Event{Stage: events.StagePaymentSent, Supernode: cand.PastelID, Message: txid, At: p.clock.Now()})

	height, err := p.ledger.CurrentBlockHeight(ctx)
	if err != nil {
		height = req.RequestBlockHeight
	}
	conf := &types.PurchaseConfirmation{
		RequesterPastelID:       params.RequesterPastelID,
		RequestHash:             req.Hash,
		ResponseHash:            resp.Hash,
		BurnTxID:                txid,
		ConfirmationTimestamp:   util.UTCTimestamp(p.clock.Now()),
		ConfirmationBlockHeight: height,
	}
	hash, sig, err := p.hashAndSign(ctx, params.RequesterPastelID, conf)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign purchase confirmation")
	}
	conf.Hash, conf.RequesterSignature = hash, sig
	// Persist before submission: the payment is already on chain and must
	// survive any later failure.
	if err := p.store.Put(ctx, storage.KindPurchaseConfirmation, conf.Hash, conf); err != nil {
		return nil, errors.Wrap(err, "failed to persist purchase confirmation")
	}

	var confResp *types.ConfirmationResponse
	err = p.withTransportRetries(ctx, func(callCtx context.Context) error {
		var e error
		confResp, e = client.ConfirmCreditPurchase(callCtx, conf)
		return e
	})
	if err != nil {
		return nil, err
	}
	if confResp == nil || confResp.Outcome == "" {
		return nil, errors.Wrapf(types.ErrProtocolTermination,
			"supernode %s returned an empty confirmation response", cand.PastelID)
	}
	if err := p.validator.ValidateMessage(ctx, confResp); err != nil {
		return nil, err
	}
	if err := sm.to(StateConfirmationSubmitted); err != nil {
		return nil, err
	}
	if err := p.store.Put(ctx, storage.KindConfirmationResponse, confResp.Hash, confResp); err != nil {
		return nil, errors.Wrap(err, "failed to persist confirmation response")
	}
	stream.Publish(events.Event{Stage: events.StageConfirmationSent, Supernode: cand.PastelID, At: p.clock.Now()})

	result := &PurchaseResult{
		Request:              req,
		Response:             resp,
		Confirmation:         conf,
		ConfirmationResponse: confResp,
		RegistrationTxID:     confResp.RegistrationTxID,
		SupernodePastelID:    cand.PastelID,
	}

	status := p.pollStatus(ctx, client, cand, ranked, req, params, stream)
	result.Status = status
	if status != nil && status.Status == types.PurchaseStatusCompleted {
		if err := sm.to(StateCompleted); err != nil {
			return nil, err
		}
		if status.RegistrationTxID != "" {
			result.RegistrationTxID = status.RegistrationTxID
		}
		p.announceCompletion(ctx, resp, conf, cand.PastelID, nodes)
		stream.Publish(events.Event{Stage: events.StageCompleted, Supernode: cand.PastelID, At: p.clock.Now()})
		return result, sm.to(StateDone)
	}

	if err := sm.to(StateStorageRetryNeeded); err != nil {
		return nil, err
	}
	retryResp := p.storageRetry(ctx, resp, conf, req, nodes, params, stream)
	result.StorageRetry = retryResp
	if retryResp != nil && retryResp.RegistrationTxID != "" {
		result.RegistrationTxID = retryResp.RegistrationTxID
	}
	if err := sm.to(StateStorageRetried); err != nil {
		return nil, err
	}
	return result, sm.to(StateDone)
}

// pollStatus polls the originating node; if its status query fails, each
// other ranked candidate is asked once until one answers.
func (p *Protocol) pollStatus(
	ctx context.Context,
	client supernode.API,
	cand routing.Ranked,
	ranked []routing.Ranked,
	req *types.CreditPackPurchaseRequest,
	params PurchaseParams,
	stream *events.Stream,
) *types.PurchaseStatus {
	var last *types.PurchaseStatus
	failed := false
	for i := 0; i < p.cfg.StatusPollAttempts; i++ {
		if i > 0 {
			if err := util.SleepContext(ctx, p.clock, p.cfg.StatusPollInterval); err != nil {
				return last
			}
		}
		status, err := p.checkStatusOn(ctx, client, req, params)
		if err != nil {
			log.Debug().Str("supernode", cand.PastelID).Err(err).Msg("status poll failed on originating node")
			failed = true
			break
		}
		last = status
		stream.Publish(events.Event{Stage: events.StageStatusChecked, Supernode: cand.PastelID, Message: status.Status, At: p.clock.Now()})
		if status.Status == types.PurchaseStatusCompleted {
			return status
		}
	}

	if failed {
		for _, other := range ranked {
			if other.PastelID == cand.PastelID {
				continue
			}
			status, err := p.checkStatusOn(ctx, p.factory(other.Supernode), req, params)
			if err != nil {
				continue
			}
			stream.Publish(events.Event{Stage: events.StageStatusChecked, Supernode: other.PastelID, Message: status.Status, At: p.clock.Now()})
			return status
		}
	}
	return last
}

func (p *Protocol) checkStatusOn(ctx context.Context, client supernode.API, req *types.CreditPackPurchaseRequest, params PurchaseParams) (*types.PurchaseStatus, error) {
	check := &types.StatusCheck{
		RequesterPastelID: params.RequesterPastelID,
		RequestHash:       req.Hash,
		CheckTimestamp:    util.UTCTimestamp(p.clock.Now()),
	}
	hash, sig, err := p.hashAndSign(ctx, params.RequesterPastelID, check)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign status check")
	}
	check.Hash, check.RequesterSignature = hash, sig

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()
	status, err := client.CheckPurchaseStatus(callCtx, check)
	if err != nil {
		return nil, err
	}
	if err := p.validator.ValidateMessage(ctx, status); err != nil {
		return nil, err
	}
	if status.RequestHash != req.Hash {
		return nil, errors.Wrap(types.ErrIntegrityFailure, "status echoes a different request hash")
	}
	return status, nil
}

// announceCompletion tells every agreeing node other than the serving one
// that the purchase completed. Fire-and-forget: failures are swallowed.
func (p *Protocol) announceCompletion(
	ctx context.Context,
	resp *types.PurchaseResponse,
	conf *types.PurchaseConfirmation,
	servingPastelID string,
	nodes []types.Supernode,
) {
	byID := make(map[string]types.Supernode, len(nodes))
	for _, n := range nodes {
		byID[n.PastelID] = n
	}
	var wg sync.WaitGroup
	for _, id := range resp.AgreeingSupernodes {
		node, ok := byID[id]
		if !ok || id == servingPastelID {
			continue
		}
		wg.Add(1)
		go func(node types.Supernode) {
			defer wg.Done()
			announceCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
			defer cancel()
			if err := p.factory(node).AnnouncePurchaseCompletion(announceCtx, conf); err != nil {
				log.Debug().Str("supernode", node.PastelID).Err(err).Msg("purchase completion announcement failed")
			}
		}(node)
	}
	wg.Wait()
}

// storageRetry targets the agreeing node closest to the requester, then
// best-effort-announces completion to every remaining agreeing node. The
// announcements are fire-and-forget: failures are swallowed and logged.
func (p *Protocol) storageRetry(
	ctx context.Context,
	resp *types.PurchaseResponse,
	conf *types.PurchaseConfirmation,
	req *types.CreditPackPurchaseRequest,
	nodes []types.Supernode,
	params PurchaseParams,
	stream *events.Stream,
) *types.StorageRetryResponse {
	byID := make(map[string]types.Supernode, len(nodes))
	for _, n := range nodes {
		byID[n.PastelID] = n
	}
	agreeing := make([]types.Supernode, 0, len(resp.AgreeingSupernodes))
	for _, id := range resp.AgreeingSupernodes {
		if node, ok := byID[id]; ok {
			agreeing = append(agreeing, node)
		}
	}
	ranked := routing.ClosestN(params.RequesterPastelID, agreeing, -1)
	if len(ranked) == 0 {
		log.Warn().Msg("no agreeing supernodes resolvable for storage retry")
		return nil
	}
	target := ranked[0]

	retryReq := &types.StorageRetryRequest{
		RequesterPastelID: params.RequesterPastelID,
		RequestHash:       req.Hash,
		ResponseHash:      resp.Hash,
		BurnTxID:          conf.BurnTxID,
		RetryTimestamp:    util.UTCTimestamp(p.clock.Now()),
		RetryBlockHeight:  conf.ConfirmationBlockHeight,
	}
	hash, sig, err := p.hashAndSign(ctx, params.RequesterPastelID, retryReq)
	if err != nil {
		log.Warn().Err(err).Msg("failed to sign storage retry request")
		return nil
	}
	retryReq.Hash, retryReq.RequesterSignature = hash, sig

	var retryResp *types.StorageRetryResponse
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	retryResp, err = p.factory(target.Supernode).SubmitStorageRetry(callCtx, retryReq)
	cancel()
	if err != nil {
		log.Warn().Str("supernode", target.PastelID).Err(err).Msg("storage retry failed")
		retryResp = nil
	} else {
		if err := p.store.Put(ctx, storage.KindStorageRetry, retryReq.Hash, retryResp); err != nil {
			log.Warn().Err(err).Msg("failed to persist storage retry response")
		}
		stream.Publish(events.Event{Stage: events.StageStorageRetried, Supernode: target.PastelID, At: p.clock.Now()})
	}

	// Announcements run regardless of the retry outcome.
	var wg sync.WaitGroup
	for _, other := range ranked[1:] {
		wg.Add(1)
		go func(node types.Supernode) {
			defer wg.Done()
			announceCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
			defer cancel()
			if err := p.factory(node).AnnounceStorageRetryCompletion(announceCtx, conf); err != nil {
				log.Debug().Str("supernode", node.PastelID).Err(err).Msg("completion announcement failed")
			}
		}(other.Supernode)
	}
	wg.Wait()

	return retryResp
}

func (p *Protocol) hashAndSign(ctx context.Context, pastelID string, msg any) (string, string, error) {
	hash, err := consensus.ComputeHash(msg)
	if err != nil {
		return "", "", err
	}
	sig, err := p.identity.Sign(ctx, pastelID, hash)
	if err != nil {
		return "", "", err
	}
	return hash, sig, nil
}

// withTransportRetries retries fn on transport failures a bounded number
// of times. Every other error taxonomy passes straight through.
func (p *Protocol) withTransportRetries(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= p.cfg.TransportRetries; attempt++ {
		if attempt > 0 {
			if serr := util.SleepContext(ctx, p.clock, time.Second); serr != nil {
				return errors.Wrap(types.ErrTransportFailure, serr.Error())
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
		err = fn(callCtx)
		cancel()
		if err == nil || !errors.Is(err, types.ErrTransportFailure) {
			return err
		}
	}
	return err
}

func (p *Protocol) countOutcome(outcome string) {
	if p.metrics != nil {
		p.metrics.PurchasesTotal.WithLabelValues(outcome).Inc()
	}
}

func (p *Protocol) countFailure(err error) {
	if p.metrics == nil {
		return
	}
	reason := "transport"
	switch {
	case errors.Is(err, types.ErrEconomicRejection):
		reason = "rejected"
	case errors.Is(err, types.ErrProtocolTermination):
		reason = "terminated"
	case errors.Is(err, types.ErrIntegrityFailure):
		reason = "integrity"
	}
	p.metrics.CandidateFailures.WithLabelValues(reason).Inc()
}
