package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/pastelnetwork/go-inference-client/internal/types"
	"github.com/pastelnetwork/go-inference-client/internal/util"
)

// RPCClient implements Service against a pastel node's JSON-RPC surface.
type RPCClient struct {
	url        string
	user       string
	password   string
	httpClient *http.Client

	// baseCreditPrice anchors the local fair-market estimate.
	baseCreditPrice float64
}

// NewRPCClient creates a JSON-RPC backed ledger service.
func NewRPCClient(url, user, password string, baseCreditPrice float64) *RPCClient {
	return &RPCClient{
		url:             url,
		user:            user,
		password:        password,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		baseCreditPrice: baseCreditPrice,
	}
}

type rpcRequest struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *RPCClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{ID: "go-inference-client", Method: method, Params: params})
	if err != nil {
		return errors.Wrap(err, "failed to marshal rpc request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to build rpc request")
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "rpc call %s failed", method)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return errors.Wrapf(err, "reading rpc response for %s", method)
	}
	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return errors.Wrapf(err, "malformed rpc response for %s", method)
	}
	if rpcResp.Error != nil {
		return errors.Errorf("rpc %s: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return errors.Wrapf(err, "unmarshalling rpc result for %s", method)
		}
	}
	return nil
}

// CurrentBlockHeight implements Service.
func (c *RPCClient) CurrentBlockHeight(ctx context.Context) (int64, error) {
	var height int64
	if err := c.call(ctx, "getblockcount", nil, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// AddressBalance implements Service. The node reports balances in
// patoshis (1e-5 PSL).
func (c *RPCClient) AddressBalance(ctx context.Context, address string) (float64, error) {
	var result struct {
		Balance float64 `json:"balance"`
	}
	params := []any{map[string]any{"addresses": []string{address}}}
	if err := c.call(ctx, "getaddressbalance", params, &result); err != nil {
		return 0, err
	}
	return result.Balance / 1e5, nil
}

// BroadcastPayment implements Service. Amounts are rounded to the chain's
// 5-decimal precision before broadcast.
func (c *RPCClient) BroadcastPayment(ctx context.Context, fromAddress, toAddress string, amount float64) (string, error) {
	var txid string
	params := []any{fromAddress, toAddress, util.RoundTo(amount, 5)}
	if err := c.call(ctx, "sendfromaddress", params, &txid); err != nil {
		return "", err
	}
	return txid, nil
}

type masternodeEntry struct {
	ExtKey     string `json:"extKey"`
	ExtAddress string `json:"extAddress"`
	Status     string `json:"status"`
	Rank       int    `json:"rank"`
}

// MasternodeList implements Service.
func (c *RPCClient) MasternodeList(ctx context.Context) ([]types.Supernode, error) {
	var entries map[string]masternodeEntry
	if err := c.call(ctx, "masternodelist", []any{"extra"}, &entries); err != nil {
		return nil, err
	}
	nodes := make([]types.Supernode, 0, len(entries))
	for _, e := range entries {
		nodes = append(nodes, types.Supernode{
			PastelID: e.ExtKey,
			Endpoint: e.ExtAddress,
			Status:   e.Status,
			Rank:     e.Rank,
		})
	}
	return nodes, nil
}

// EstimateCreditPrice implements Service. The estimate anchors on the
// configured base price and follows the chain's reward halving schedule;
// it is a local heuristic, deliberately independent of any quote a
// supernode returns.
func (c *RPCClient) EstimateCreditPrice(_ context.Context, blockHeight int64) (float64, error) {
	const halvingInterval = 840000
	price := c.baseCreditPrice
	for h := int64(halvingInterval); h <= blockHeight; h += halvingInterval {
		price *= 2
	}
	return util.RoundTo(price, 5), nil
}
