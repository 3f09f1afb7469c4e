package supernode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/pastelnetwork/go-inference-client/internal/consensus"
	"github.com/pastelnetwork/go-inference-client/internal/identity"
	"github.com/pastelnetwork/go-inference-client/internal/types"
)

// Client is the JSON-over-HTTP implementation of API for one supernode.
// Every authenticated POST first requests a challenge from the node, signs
// it with the client identity and merges the challenge fields into the
// message body.
type Client struct {
	node       types.Supernode
	httpClient *http.Client
	identity   identity.Service
	pastelID   string
}

// ClientOption mutates a Client during construction.
type ClientOption func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates an HTTP client for the given supernode, authenticating
// as pastelID.
func NewClient(node types.Supernode, ids identity.Service, pastelID string, opts ...ClientOption) *Client {
	c := &Client{
		node:       node,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		identity:   ids,
		pastelID:   pastelID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFactory returns a Factory producing HTTP clients with shared options.
func NewFactory(ids identity.Service, pastelID string, opts ...ClientOption) Factory {
	return func(node types.Supernode) API {
		return NewClient(node, ids, pastelID, opts...)
	}
}

type challengeResponse struct {
	Challenge   string `json:"challenge"`
	ChallengeID string `json:"challenge_id"`
}

func (c *Client) requestChallenge(ctx context.Context) (*challengeResponse, string, error) {
	var ch challengeResponse
	path := fmt.Sprintf("/request_challenge/%s", url.PathEscape(c.pastelID))
	if err := c.getJSON(ctx, path, &ch); err != nil {
		return nil, "", err
	}
	sig, err := c.identity.Sign(ctx, c.pastelID, ch.Challenge)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to sign challenge")
	}
	return &ch, sig, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.node.URL()+path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	return c.do(req, out)
}

// postMessage merges the signed challenge into the message's field map and
// posts it. A nil out discards the response body.
func (c *Client) postMessage(ctx context.Context, path string, msg any, out any) error {
	ch, sig, err := c.requestChallenge(ctx)
	if err != nil {
		return err
	}

	body, err := consensus.FieldMap(msg)
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}
	body["challenge"] = ch.Challenge
	body["challenge_id"] = ch.ChallengeID
	body["challenge_signature"] = sig

	data, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request body")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.node.URL()+path, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(types.ErrTransportFailure, "%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return errors.Wrapf(types.ErrTransportFailure, "reading response from %s: %v", req.URL.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Debug().
			Str("supernode", c.node.PastelID).
			Str("path", req.URL.Path).
			Int("status", resp.StatusCode).
			Msg("supernode returned non-200")
		return errors.Wrapf(types.ErrTransportFailure, "%s returned status %d", req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(types.ErrTransportFailure, "malformed response from %s: %v", req.URL.Path, err)
	}
	return nil
}

// Ping implements API.
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	var out PingResponse
	if err := c.getJSON(ctx, "/liveness", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetModelMenu implements API.
func (c *Client) GetModelMenu(ctx context.Context) (*types.ModelMenu, error) {
	var out types.ModelMenu
	if err := c.getJSON(ctx, "/get_inference_model_menu", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestCreditPackQuote implements API. The union branch is detected by
// the presence of the rejection reason field.
func (c *Client) RequestCreditPackQuote(ctx context.Context, req *types.CreditPackPurchaseRequest) (*QuoteOutcome, error) {
	var raw json.RawMessage
	if err := c.postMessage(ctx, "/credit_purchase_initial_request", req, &raw); err != nil {
		return nil, err
	}
	if hasField(raw, "rejection_reason_string") {
		var rej types.RejectionResponse
		if err := json.Unmarshal(raw, &rej); err != nil {
			return nil, errors.Wrapf(types.ErrTransportFailure, "malformed rejection response: %v", err)
		}
		return &QuoteOutcome{Rejection: &rej}, nil
	}
	var quote types.PreliminaryPriceQuote
	if err := json.Unmarshal(raw, &quote); err != nil {
		return nil, errors.Wrapf(types.ErrTransportFailure, "malformed price quote: %v", err)
	}
	return &QuoteOutcome{Quote: &quote}, nil
}

// SubmitPriceQuoteResponse implements API.
func (c *Client) SubmitPriceQuoteResponse(ctx context.Context, resp *types.PriceQuoteResponse) (*PurchaseOutcome, error) {
	var raw json.RawMessage
	if err := c.postMessage(ctx, "/credit_purchase_preliminary_price_quote_response", resp, &raw); err != nil {
		return nil, err
	}
	if hasField(raw, "termination_reason_string") {
		var term types.TerminationNotice
		if err := json.Unmarshal(raw, &term); err != nil {
			return nil, errors.Wrapf(types.ErrTransportFailure, "malformed termination notice: %v", err)
		}
		return &PurchaseOutcome{Termination: &term}, nil
	}
	var purchase types.PurchaseResponse
	if err := json.Unmarshal(raw, &purchase); err != nil {
		return nil, errors.Wrapf(types.ErrTransportFailure, "malformed purchase response: %v", err)
	}
	return &PurchaseOutcome{Response: &purchase}, nil
}

// ConfirmCreditPurchase implements API.
func (c *Client) ConfirmCreditPurchase(ctx context.Context, conf *types.PurchaseConfirmation) (*types.ConfirmationResponse, error) {
	var out types.ConfirmationResponse
	if err := c.postMessage(ctx, "/confirm_credit_purchase_request", conf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckPurchaseStatus implements API.
func (c *Client) CheckPurchaseStatus(ctx context.Context, check *types.StatusCheck) (*types.PurchaseStatus, error) {
	var out types.PurchaseStatus
	if err := c.postMessage(ctx, "/check_status_of_credit_purchase_request", check, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitStorageRetry implements API.
func (c *Client) SubmitStorageRetry(ctx context.Context, req *types.StorageRetryRequest) (*types.StorageRetryResponse, error) {
	var out types.StorageRetryResponse
	if err := c.postMessage(ctx, "/credit_pack_storage_retry_request", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnnounceStorageRetryCompletion implements API.
func (c *Client) AnnounceStorageRetryCompletion(ctx context.Context, conf *types.PurchaseConfirmation) error {
	return c.postMessage(ctx, "/credit_pack_storage_retry_completion_announcement", conf, nil)
}

// AnnouncePurchaseCompletion implements API.
func (c *Client) AnnouncePurchaseCompletion(ctx context.Context, conf *types.PurchaseConfirmation) error {
	return c.postMessage(ctx, "/credit_pack_purchase_completion_announcement", conf, nil)
}

// MakeInferenceRequest implements API.
func (c *Client) MakeInferenceRequest(ctx context.Context, req *types.InferenceAPIUsageRequest) (*types.InferenceAPIUsageResponse, error) {
	var out types.InferenceAPIUsageResponse
	if err := c.postMessage(ctx, "/make_inference_api_usage_request", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmInference implements API.
func (c *Client) ConfirmInference(ctx context.Context, conf *types.InferenceConfirmation) error {
	return c.postMessage(ctx, "/confirm_inference_request", conf, nil)
}

// CheckInferenceResultsReady implements API.
func (c *Client) CheckInferenceResultsReady(ctx context.Context, inferenceRequestID string) (bool, error) {
	var ready bool
	path := fmt.Sprintf("/check_status_of_inference_request_results/%s", url.PathEscape(inferenceRequestID))
	if err := c.getJSON(ctx, path, &ready); err != nil {
		return false, err
	}
	return ready, nil
}

// RetrieveInferenceOutput implements API.
func (c *Client) RetrieveInferenceOutput(ctx context.Context, inferenceRequestID, inferenceResponseID string) (*types.InferenceOutputResult, error) {
	body := map[string]any{
		"inference_request_id":  inferenceRequestID,
		"inference_response_id": inferenceResponseID,
	}
	var out types.InferenceOutputResult
	if err := c.postMessage(ctx, "/retrieve_inference_output_results", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuditInferenceResponse implements API.
func (c *Client) AuditInferenceResponse(ctx context.Context, inferenceResponseID string) (*types.InferenceAPIUsageResponse, error) {
	body := map[string]any{"inference_response_id": inferenceResponseID}
	var out types.InferenceAPIUsageResponse
	if err := c.postMessage(ctx, "/audit_inference_request_response", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuditInferenceResult implements API.
func (c *Client) AuditInferenceResult(ctx context.Context, inferenceResponseID string) (*types.InferenceOutputResult, error) {
	body := map[string]any{"inference_response_id": inferenceResponseID}
	var out types.InferenceOutputResult
	if err := c.postMessage(ctx, "/audit_inference_request_result", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func hasField(raw json.RawMessage, field string) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	_, ok := probe[field]
	return ok
}
