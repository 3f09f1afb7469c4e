package supernode

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pastelnetwork/go-inference-client/internal/types"
)

type stubIdentity struct{}

func (stubIdentity) Sign(_ context.Context, pastelID, message string) (string, error) {
	return "sig:" + pastelID + ":" + message, nil
}

func (stubIdentity) Verify(_ context.Context, pastelID, message, signature string) (bool, error) {
	return signature == "sig:"+pastelID+":"+message, nil
}

// testSupernode is an in-process supernode speaking the wire protocol,
// including challenge authentication.
type testSupernode struct {
	srv      *httptest.Server
	ids      stubIdentity
	clientID string

	mu         sync.Mutex
	seq        int
	challenges map[string]string
	lastBody   map[string]any
	reject     bool
	terminate  bool
	authFails  int
}

func newTestSupernode(clientID string) *testSupernode {
	ts := &testSupernode{
		clientID:   clientID,
		challenges: make(map[string]string),
	}

	e := echo.New()
	e.HideBanner = true

	e.GET("/request_challenge/:pastelid", func(c echo.Context) error {
		ts.mu.Lock()
		ts.seq++
		challenge := fmt.Sprintf("challenge-%d", ts.seq)
		challengeID := fmt.Sprintf("cid-%d", ts.seq)
		ts.challenges[challengeID] = challenge
		ts.mu.Unlock()
		return c.JSON(http.StatusOK, map[string]string{
			"challenge":    challenge,
			"challenge_id": challengeID,
		})
	})

	e.GET("/liveness", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"status": "ok", "performance_ratio": 0.98})
	})

	e.GET("/check_status_of_inference_request_results/:id", func(c echo.Context) error {
		return c.JSON(http.StatusOK, true)
	})

	e.POST("/credit_purchase_initial_request", func(c echo.Context) error {
		body, err := ts.authenticated(c)
		if err != nil {
			return err
		}
		ts.mu.Lock()
		ts.lastBody = body
		reject := ts.reject
		ts.mu.Unlock()
		if reject {
			return c.JSON(http.StatusOK, map[string]any{
				"responding_supernode_pastelid": "jXserver",
				"rejection_reason_string":       "out of capacity",
			})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"responding_supernode_pastelid": "jXserver",
			"sha3_256_hash_of_credit_pack_purchase_request_fields": body["sha3_256_hash_of_credit_pack_purchase_request_fields"],
			"preliminary_quoted_price_per_credit_in_psl":           0.95,
			"preliminary_total_cost_of_credit_pack_in_psl":         95.0,
		})
	})

	e.POST("/credit_purchase_preliminary_price_quote_response", func(c echo.Context) error {
		if _, err := ts.authenticated(c); err != nil {
			return err
		}
		ts.mu.Lock()
		terminate := ts.terminate
		ts.mu.Unlock()
		if terminate {
			return c.JSON(http.StatusOK, map[string]any{
				"responding_supernode_pastelid": "jXserver",
				"termination_reason_string":     "price changed",
			})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"responding_supernode_pastelid":             "jXserver",
			"proposed_total_cost_of_credit_pack_in_psl": 95.0,
			"list_of_potentially_agreeing_supernodes":   []string{"jXother"},
		})
	})

	e.POST("/credit_pack_purchase_completion_announcement", func(c echo.Context) error {
		if _, err := ts.authenticated(c); err != nil {
			return err
		}
		return c.NoContent(http.StatusOK)
	})

	ts.srv = httptest.NewServer(e)
	return ts
}

// authenticated binds the body and verifies the merged challenge fields.
func (ts *testSupernode) authenticated(c echo.Context) (map[string]any, error) {
	var body map[string]any
	if err := c.Bind(&body); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "malformed body")
	}
	challengeID, _ := body["challenge_id"].(string)
	challenge, _ := body["challenge"].(string)
	signature, _ := body["challenge_signature"].(string)

	ts.mu.Lock()
	issued, known := ts.challenges[challengeID]
	ts.mu.Unlock()

	ok, _ := ts.ids.Verify(context.Background(), ts.clientID, challenge, signature)
	if !known || issued != challenge || !ok {
		ts.mu.Lock()
		ts.authFails++
		ts.mu.Unlock()
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "challenge verification failed")
	}
	return body, nil
}

func (ts *testSupernode) setReject(v bool) {
	ts.mu.Lock()
	ts.reject = v
	ts.mu.Unlock()
}

func (ts *testSupernode) setTerminate(v bool) {
	ts.mu.Lock()
	ts.terminate = v
	ts.mu.Unlock()
}

func (ts *testSupernode) authFailures() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.authFails
}

func (ts *testSupernode) bodyField(key string) any {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.lastBody == nil {
		return nil
	}
	return ts.lastBody[key]
}

func (ts *testSupernode) node() types.Supernode {
	return types.Supernode{
		PastelID: "jXserver",
		Endpoint: strings.TrimPrefix(ts.srv.URL, "http://"),
		Status:   types.SupernodeStatusEnabled,
	}
}

func (ts *testSupernode) close() { ts.srv.Close() }

func purchaseRequest() *types.CreditPackPurchaseRequest {
	return &types.CreditPackPurchaseRequest{
		ID:                      "11111111-2222-3333-4444-555555555555",
		RequesterPastelID:       "jXclient",
		RequestedInitialCredits: 100,
		AuthorizedPastelIDs:     []string{"jXclient"},
		TrackingAddress:         "Ptracking1",
		RequestTimestamp:        "2026-08-30T12:00:00Z",
		RequestBlockHeight:      500000,
		MessageVersion:          "1.0",
		Hash:                    "deadbeef",
		RequesterSignature:      "sig:jXclient:deadbeef",
	}
}

func TestClientChallengeAuthFlow(t *testing.T) {
	ts := newTestSupernode("jXclient")
	defer ts.close()

	client := NewClient(ts.node(), stubIdentity{}, "jXclient")
	outcome, err := client.RequestCreditPackQuote(context.Background(), purchaseRequest())
	require.NoError(t, err)
	require.NotNil(t, outcome.Quote)
	assert.Nil(t, outcome.Rejection)
	assert.Equal(t, "deadbeef", outcome.Quote.RequestHash)
	assert.Equal(t, 0.95, outcome.Quote.QuotedPricePerCredit)
	assert.Zero(t, ts.authFailures())

	// The message fields travel alongside the challenge fields.
	assert.Equal(t, "jXclient", ts.bodyField("requester_pastelid"))
	assert.NotNil(t, ts.bodyField("challenge"))
	assert.NotNil(t, ts.bodyField("challenge_id"))
	assert.NotNil(t, ts.bodyField("challenge_signature"))
}

func TestClientRejectsWrongSigner(t *testing.T) {
	ts := newTestSupernode("jXclient")
	defer ts.close()

	// The client authenticates as an identity the server does not accept.
	client := NewClient(ts.node(), stubIdentity{}, "jXsomeoneElse")
	_, err := client.RequestCreditPackQuote(context.Background(), purchaseRequest())
	require.ErrorIs(t, err, types.ErrTransportFailure)
	assert.Equal(t, 1, ts.authFailures())
}

func TestClientDetectsRejectionBranch(t *testing.T) {
	ts := newTestSupernode("jXclient")
	defer ts.close()
	ts.setReject(true)

	client := NewClient(ts.node(), stubIdentity{}, "jXclient")
	outcome, err := client.RequestCreditPackQuote(context.Background(), purchaseRequest())
	require.NoError(t, err)
	require.NotNil(t, outcome.Rejection)
	assert.Nil(t, outcome.Quote)
	assert.Equal(t, "out of capacity", outcome.Rejection.RejectionReason)
}

func TestClientDetectsTerminationBranch(t *testing.T) {
	ts := newTestSupernode("jXclient")
	defer ts.close()

	client := NewClient(ts.node(), stubIdentity{}, "jXclient")
	resp := &types.PriceQuoteResponse{RequesterPastelID: "jXclient", Agreed: true}

	outcome, err := client.SubmitPriceQuoteResponse(context.Background(), resp)
	require.NoError(t, err)
	require.NotNil(t, outcome.Response)
	assert.Equal(t, []string{"jXother"}, outcome.Response.AgreeingSupernodes)

	ts.setTerminate(true)
	outcome, err = client.SubmitPriceQuoteResponse(context.Background(), resp)
	require.NoError(t, err)
	require.NotNil(t, outcome.Termination)
	assert.Nil(t, outcome.Response)
	assert.Equal(t, "price changed", outcome.Termination.TerminationReason)
}

func TestClientPing(t *testing.T) {
	ts := newTestSupernode("jXclient")
	defer ts.close()

	client := NewClient(ts.node(), stubIdentity{}, "jXclient")
	ping, err := client.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", ping.Status)
	assert.Equal(t, 0.98, ping.PerformanceRatio)
}

func TestClientResultsReadyProbe(t *testing.T) {
	ts := newTestSupernode("jXclient")
	defer ts.close()

	client := NewClient(ts.node(), stubIdentity{}, "jXclient")
	ready, err := client.CheckInferenceResultsReady(context.Background(), "req-1")
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestClientFireAndForgetAnnouncement(t *testing.T) {
	ts := newTestSupernode("jXclient")
	defer ts.close()

	client := NewClient(ts.node(), stubIdentity{}, "jXclient")
	err := client.AnnouncePurchaseCompletion(context.Background(), &types.PurchaseConfirmation{
		RequesterPastelID: "jXclient",
	})
	assert.NoError(t, err)
}

func TestClientTransportErrorTaxonomy(t *testing.T) {
	ts := newTestSupernode("jXclient")
	node := ts.node()
	ts.close()

	client := NewClient(node, stubIdentity{}, "jXclient")
	_, err := client.Ping(context.Background())
	require.ErrorIs(t, err, types.ErrTransportFailure)

	_, err = client.RequestCreditPackQuote(context.Background(), purchaseRequest())
	require.ErrorIs(t, err, types.ErrTransportFailure)
}
