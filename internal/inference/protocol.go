package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"

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

// RequestParams describes one inference job scoped to a purchased credit
// pack.
type RequestParams struct {
	RequesterPastelID    string
	CreditPackTicketTxID string
	TrackingAddress      string
	ModelName            string
	InferenceType        string
	ModelParameters      map[string]any
	InputData            []byte

	// MaxCostInCredits caps the accepted quote; zero means no ceiling.
	MaxCostInCredits float64
}

// Result is the fully-populated outcome of a successful inference job.
type Result struct {
	Request           *types.InferenceAPIUsageRequest
	Response          *types.InferenceAPIUsageResponse
	Output            *types.InferenceOutputResult
	Decoded           *DecodedOutput
	Audit             *AuditReport
	SupernodePastelID string
	CandidatesTried   int
	PollAttempts      int
}

// Protocol drives the inference request lifecycle: capability discovery,
// usage request, tracking payment, result polling and the optional
// consensus audit. Like the purchase protocol, candidates are tried
// strictly sequentially because each attempt broadcasts a payment.
type Protocol struct {
	cfg       config.Inference
	identity  identity.Service
	ledger    ledger.Service
	store     storage.Store
	factory   supernode.Factory
	validator *consensus.Validator
	health    *routing.HealthFilter
	clock     time2.Clock
	metrics   *metrics.Service
}

// NewProtocol creates the inference protocol. metrics may be nil.
func NewProtocol(
	cfg config.Inference,
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

// Request runs the full inference lifecycle. Capable candidates are tried
// in latency order up to the attempt bound; exhausting them is fatal and
// the error reports how many were tried.
func (p *Protocol) Request(ctx context.Context, params RequestParams, stream *events.Stream) (*Result, error) {
	nodes, err := p.ledger.MasternodeList(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch masternode list")
	}
	live := p.health.FilterLive(ctx, nodes)

	candidates := p.discoverCapable(ctx, live, params)
	stream.Publish(events.Event{
		Stage:   events.StageCapabilityDiscovered,
		Message: params.ModelName,
		Attempt: len(candidates),
		At:      p.clock.Now(),
	})
	if len(candidates) == 0 {
		p.countOutcome("no_capable_nodes")
		return nil, &types.ExhaustionError{Stage: "capability_discovery", Attempts: 0}
	}

	tries := len(candidates)
	if tries > p.cfg.MaxAttempts {
		tries = p.cfg.MaxAttempts
	}

	var attempts int
	for _, cand := range candidates[:tries] {
		attempts++
		result, err := p.attempt(ctx, cand, live, params, stream)
		if err == nil {
			result.CandidatesTried = attempts
			p.countOutcome("success")
			return result, nil
		}
		if errors.Is(err, types.ErrInsufficientFunds) || ctx.Err() != nil {
			p.countOutcome("fatal")
			return nil, err
		}
		log.Warn().
			Str("supernode", cand.Node.PastelID).
			Int("attempt", attempts).
			Err(err).
			Msg("abandoning inference candidate")
	}

	p.countOutcome("exhausted")
	return nil, &types.ExhaustionError{Stage: "inference_request", Attempts: attempts}
}

func (p *Protocol) attempt(ctx context.Context, cand Candidate, live []types.Supernode, params RequestParams, stream *events.Stream) (*Result, error) {
	client := p.factory(cand.Node)

	req, err := p.buildRequest(ctx, params)
	if err != nil {
		return nil, err
	}
	stream.Publish(events.Event{Stage: events.StageUsageRequested, Supernode: cand.Node.PastelID, At: p.clock.Now()})

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	resp, err := client.MakeInferenceRequest(callCtx, req)
	cancel()
	if err != nil {
		return nil, err
	}
	if err := p.validator.ValidateMessage(ctx, resp); err != nil {
		return nil, err
	}
	if resp.RequestHash != req.Hash || resp.InferenceRequestID != req.InferenceRequestID {
		return nil, errors.Wrap(types.ErrIntegrityFailure, "usage response does not match the submitted request")
	}
	if err := p.store.Put(ctx, storage.KindInferenceResponse, resp.InferenceResponseID, resp); err != nil {
		return nil, errors.Wrap(err, "failed to persist usage response")
	}

	if params.MaxCostInCredits > 0 && resp.ProposedCostInCredits > params.MaxCostInCredits {
		return nil, errors.Wrapf(types.ErrEconomicRejection,
			"quoted cost %.4f credits exceeds ceiling %.4f", resp.ProposedCostInCredits, params.MaxCostInCredits)
	}

	balance, err := p.ledger.AddressBalance(ctx, params.TrackingAddress)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query tracking address balance")
	}
	if balance < resp.TrackingAmount {
		return nil, errors.Wrapf(types.ErrInsufficientFunds,
			"tracking address holds %.5f PSL, job requires %.5f PSL", balance, resp.TrackingAmount)
	}

	txid, err := p.ledger.BroadcastPayment(ctx, params.TrackingAddress, resp.TrackingAddress, resp.TrackingAmount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to broadcast tracking payment")
	}
	stream.Publish(events.Event{Stage: events.StagePaymentSent, Supernode: cand.Node.PastelID, Message: txid, At: p.clock.Now()})

	conf := &types.InferenceConfirmation{
		InferenceRequestID:    req.InferenceRequestID,
		RequesterPastelID:     params.RequesterPastelID,
		RequestHash:           req.Hash,
		ConfirmationTxID:      txid,
		ConfirmationTimestamp: util.UTCTimestamp(p.clock.Now()),
	}
	hash, sig, err := p.hashAndSign(ctx, params.RequesterPastelID, conf)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign inference confirmation")
	}
	conf.Hash, conf.RequesterSignature = hash, sig

	callCtx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
	err = client.ConfirmInference(callCtx, conf)
	cancel()
	if err != nil {
		return nil, err
	}

	pollAttempts, err := p.pollUntilReady(ctx, client, req.InferenceRequestID, stream)
	if err != nil {
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.ResultPollAttempts.Observe(float64(pollAttempts))
	}

	callCtx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
	output, err := client.RetrieveInferenceOutput(callCtx, req.InferenceRequestID, resp.InferenceResponseID)
	cancel()
	if err != nil {
		return nil, err
	}
	if err := p.validator.ValidateMessage(ctx, output); err != nil {
		return nil, err
	}
	if output.InferenceRequestID != req.InferenceRequestID {
		return nil, errors.Wrap(types.ErrIntegrityFailure, "output result references a different request")
	}
	if err := p.store.Put(ctx, storage.KindInferenceResult, output.InferenceResultID, output); err != nil {
		return nil, errors.Wrap(err, "failed to persist output result")
	}

	decoded, err := DecodeOutput(output, params.InferenceType)
	if err != nil {
		return nil, errors.Wrap(types.ErrIntegrityFailure, err.Error())
	}
	stream.Publish(events.Event{Stage: events.StageResultReceived, Supernode: cand.Node.PastelID, At: p.clock.Now()})

	result := &Result{
		Request:           req,
		Response:          resp,
		Output:            output,
		Decoded:           decoded,
		SupernodePastelID: cand.Node.PastelID,
		PollAttempts:      pollAttempts,
	}

	if p.cfg.AuditEnabled {
		stream.Publish(events.Event{Stage: events.StageAuditStarted, At: p.clock.Now()})
		report, err := p.audit(ctx, cand.Node, live, resp, output, params)
		if err != nil {
			log.Warn().Err(err).Msg("consensus audit failed")
		} else {
			result.Audit = report
		}
	}
	return result, nil
}

func (p *Protocol) buildRequest(ctx context.Context, params RequestParams) (*types.InferenceAPIUsageRequest, error) {
	paramsJSON, err := json.Marshal(params.ModelParameters)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode model parameters")
	}
	height, err := p.ledger.CurrentBlockHeight(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch current block height")
	}

	req := &types.InferenceAPIUsageRequest{
		InferenceRequestID:     uuid.NewString(),
		RequesterPastelID:      params.RequesterPastelID,
		CreditPackTicketTxID:   params.CreditPackTicketTxID,
		ModelCanonicalName:     params.ModelName,
		ModelInferenceType:     params.InferenceType,
		ModelParametersJSONB64: base64.StdEncoding.EncodeToString(paramsJSON),
		InputDataB64:           base64.StdEncoding.EncodeToString(params.InputData),
		RequestTimestamp:       util.UTCTimestamp(p.clock.Now()),
		RequestBlockHeight:     height,
	}
	hash, sig, err := p.hashAndSign(ctx, params.RequesterPastelID, req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign usage request")
	}
	req.Hash, req.RequesterSignature = hash, sig
	if err := p.store.Put(ctx, storage.KindInferenceRequest, req.InferenceRequestID, req); err != nil {
		return nil, errors.Wrap(err, "failed to persist usage request")
	}
	return req, nil
}

// pollUntilReady polls availability with exponential backoff until the
// node reports results or the attempt bound is hit. Returns the number of
// polls made.
func (p *Protocol) pollUntilReady(ctx context.Context, client supernode.API, inferenceRequestID string, stream *events.Stream) (int, error) {
	for attempt := 0; attempt < p.cfg.PollMaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
		ready, err := client.CheckInferenceResultsReady(callCtx, inferenceRequestID)
		cancel()
		if err != nil {
			return attempt + 1, err
		}
		if ready {
			return attempt + 1, nil
		}
		stream.Publish(events.Event{Stage: events.StageResultPolling, Attempt: attempt + 1, At: p.clock.Now()})
		wait := backoffDelay(p.cfg.PollInitialWait, p.cfg.PollGrowthFactor, attempt)
		if err := util.SleepContext(ctx, p.clock, wait); err != nil {
			return attempt + 1, errors.Wrap(types.ErrTransportFailure, err.Error())
		}
	}
	return p.cfg.PollMaxAttempts, errors.Wrapf(types.ErrTransportFailure,
		"results not available after %d polls", p.cfg.PollMaxAttempts)
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

func (p *Protocol) countOutcome(outcome string) {
	if p.metrics != nil {
		p.metrics.InferenceTotal.WithLabelValues(outcome).Inc()
	}
}
