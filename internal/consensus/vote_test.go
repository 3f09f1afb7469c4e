package consensus

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMajorityValue(t *testing.T) {
	value, count := MajorityValue([]string{"a", "a", "b"})
	assert.Equal(t, "a", value)
	assert.Equal(t, 2, count)

	// Ties resolve to the value seen first.
	value, count = MajorityValue([]string{"b", "a", "a", "b"})
	assert.Equal(t, "b", value)
	assert.Equal(t, 2, count)

	value, count = MajorityValue(nil)
	assert.Equal(t, "", value)
	assert.Equal(t, 0, count)
}

func TestReconcileConfirmsMatchingMajority(t *testing.T) {
	local := map[string]any{
		"credit_pack_purchase_status": "completed",
		"proposed_total_cost_of_credit_pack_in_psl": json.Number("95.5"),
	}
	audits := []map[string]any{
		{"credit_pack_purchase_status": "completed", "proposed_total_cost_of_credit_pack_in_psl": json.Number("95.5")},
		{"credit_pack_purchase_status": "completed", "proposed_total_cost_of_credit_pack_in_psl": json.Number("95.5")},
		{"credit_pack_purchase_status": "pending", "proposed_total_cost_of_credit_pack_in_psl": json.Number("99.9")},
	}

	results := Reconcile(local, audits, []string{
		"credit_pack_purchase_status",
		"proposed_total_cost_of_credit_pack_in_psl",
	})

	status := results["credit_pack_purchase_status"]
	assert.Equal(t, "completed", status.Value)
	assert.Equal(t, 2, status.Count)
	assert.True(t, status.Confirmed)

	cost := results["proposed_total_cost_of_credit_pack_in_psl"]
	assert.Equal(t, "95.5", cost.Value)
	assert.True(t, cost.Confirmed)
}

func TestReconcileFlagsDivergentLocalValue(t *testing.T) {
	local := map[string]any{"credit_pack_purchase_status": "completed"}
	audits := []map[string]any{
		{"credit_pack_purchase_status": "failed"},
		{"credit_pack_purchase_status": "failed"},
	}

	results := Reconcile(local, audits, []string{"credit_pack_purchase_status"})
	status := results["credit_pack_purchase_status"]
	assert.Equal(t, "failed", status.Value)
	assert.False(t, status.Confirmed, "a divergent majority is flagged, never adopted")
}

func TestReconcileWithNoAudits(t *testing.T) {
	local := map[string]any{"credit_pack_purchase_status": "completed"}
	results := Reconcile(local, nil, []string{"credit_pack_purchase_status"})
	assert.False(t, results["credit_pack_purchase_status"].Confirmed)
}
