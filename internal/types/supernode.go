package types

import "fmt"

// Supernode status values as reported by the masternode list.
const (
	SupernodeStatusEnabled    = "ENABLED"
	SupernodeStatusPreEnabled = "PRE_ENABLED"
)

// Supernode is one entry of the masternode list fetched from the ledger.
// Records are immutable per fetch; routing annotates copies, it never
// mutates the record itself.
type Supernode struct {
	PastelID    string  `json:"supernode_pastelid"`
	Endpoint    string  `json:"endpoint"`
	Status      string  `json:"status"`
	Rank        int     `json:"rank"`
	UptimeRatio float64 `json:"uptime_ratio"`
}

// URL returns the base URL of the supernode's inference API.
func (s Supernode) URL() string {
	return fmt.Sprintf("http://%s", s.Endpoint)
}

// Usable reports whether the node is in a state that accepts requests.
func (s Supernode) Usable() bool {
	return s.Status == SupernodeStatusEnabled || s.Status == SupernodeStatusPreEnabled
}
