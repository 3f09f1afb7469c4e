package inference

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/pastelnetwork/go-inference-client/internal/consensus"
	"github.com/pastelnetwork/go-inference-client/internal/routing"
	"github.com/pastelnetwork/go-inference-client/internal/types"
)

// Fields reconciled across audit copies. The audit confirms what the
// caller already holds; it never replaces it.
var (
	auditedResponseFields = []string{
		"proposed_cost_of_request_in_inference_credits",
		"credit_usage_tracking_psl_address",
		"credit_usage_tracking_amount_in_psl",
		"sha3_256_hash_of_inference_response_fields",
	}
	auditedResultFields = []string{
		"inference_result_json_base64",
		"sha3_256_hash_of_inference_result_fields",
	}
)

// AuditReport is the per-field reconciliation outcome of a consensus
// audit. Unconfirmed fields are flagged, not overwritten.
type AuditReport struct {
	QuorumSize     int
	ResponseFields map[string]consensus.FieldResult
	ResultFields   map[string]consensus.FieldResult
}

// Confirmed reports whether every reconciled field matched the caller's
// copy.
func (r *AuditReport) Confirmed() bool {
	for _, f := range r.ResponseFields {
		if !f.Confirmed {
			return false
		}
	}
	for _, f := range r.ResultFields {
		if !f.Confirmed {
			return false
		}
	}
	return true
}

// audit re-queries a quorum of nodes for their copies of the response,
// waits the configured grace period, re-queries for the result copies and
// reconciles both by per-field majority vote.
func (p *Protocol) audit(
	ctx context.Context,
	servedBy types.Supernode,
	live []types.Supernode,
	resp *types.InferenceAPIUsageResponse,
	output *types.InferenceOutputResult,
	params RequestParams,
) (*AuditReport, error) {
	pool := make([]types.Supernode, 0, len(live))
	for _, node := range live {
		if node.PastelID != servedBy.PastelID {
			pool = append(pool, node)
		}
	}
	quorum := routing.ClosestN(params.RequesterPastelID, pool, p.cfg.AuditQuorumSize)
	if len(quorum) == 0 {
		return nil, errors.New("no supernodes available for consensus audit")
	}

	responseCopies := p.collectAudits(ctx, quorum, func(ctx context.Context, node types.Supernode) (any, error) {
		return p.factory(node).AuditInferenceResponse(ctx, resp.InferenceResponseID)
	})

	if err := p.waitGracePeriod(ctx); err != nil {
		return nil, err
	}

	resultCopies := p.collectAudits(ctx, quorum, func(ctx context.Context, node types.Supernode) (any, error) {
		return p.factory(node).AuditInferenceResult(ctx, resp.InferenceResponseID)
	})

	localResp, err := consensus.FieldMap(resp)
	if err != nil {
		return nil, err
	}
	localResult, err := consensus.FieldMap(output)
	if err != nil {
		return nil, err
	}

	return &AuditReport{
		QuorumSize:     len(quorum),
		ResponseFields: consensus.Reconcile(localResp, responseCopies, auditedResponseFields),
		ResultFields:   consensus.Reconcile(localResult, resultCopies, auditedResultFields),
	}, nil
}

// collectAudits fans out one audit query per quorum node and waits for all
// to settle; failed queries are dropped from the tally.
func (p *Protocol) collectAudits(
	ctx context.Context,
	quorum []routing.Ranked,
	query func(context.Context, types.Supernode) (any, error),
) []map[string]any {
	copies := make([]map[string]any, len(quorum))
	var wg sync.WaitGroup
	for i, node := range quorum {
		wg.Add(1)
		go func(i int, node types.Supernode) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
			defer cancel()
			msg, err := query(callCtx, node)
			if err != nil {
				log.Debug().Str("supernode", node.PastelID).Err(err).Msg("audit query failed")
				return
			}
			fields, err := consensus.FieldMap(msg)
			if err != nil {
				return
			}
			copies[i] = fields
		}(i, node.Supernode)
	}
	wg.Wait()

	settled := make([]map[string]any, 0, len(copies))
	for _, c := range copies {
		if c != nil {
			settled = append(settled, c)
		}
	}
	return settled
}

func (p *Protocol) waitGracePeriod(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(p.cfg.AuditGracePeriod):
		return nil
	}
}
