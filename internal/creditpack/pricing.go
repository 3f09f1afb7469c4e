package creditpack

import "math"

// PriceBounds are the requester's economic limits on a quote. When only
// one of MaxPerCredit/MaxTotal is set, the other is derived from the
// requested credit count before the check.
type PriceBounds struct {
	MaxPerCredit float64
	MaxTotal     float64
	FairEstimate float64
	MaxDeviation float64
}

// Resolve fills a missing ceiling from its counterpart. Both bounds zero
// is a caller error surfaced by the protocol before any network call.
func (b PriceBounds) Resolve(requestedCredits int64) PriceBounds {
	if b.MaxTotal == 0 && b.MaxPerCredit > 0 {
		b.MaxTotal = b.MaxPerCredit * float64(requestedCredits)
	}
	if b.MaxPerCredit == 0 && b.MaxTotal > 0 && requestedCredits > 0 {
		b.MaxPerCredit = b.MaxTotal / float64(requestedCredits)
	}
	return b
}

// AcceptQuote applies the acceptance bound check: the quoted per-credit
// price and total must be at or under their ceilings, and the per-credit
// price must be within MaxDeviation of the fair-market estimate. All
// bounds are inclusive.
func AcceptQuote(quotedPerCredit, quotedTotal float64, b PriceBounds) bool {
	if quotedPerCredit > b.MaxPerCredit || quotedTotal > b.MaxTotal {
		return false
	}
	if b.FairEstimate <= 0 {
		return false
	}
	deviation := math.Abs(quotedPerCredit-b.FairEstimate) / b.FairEstimate
	return deviation <= b.MaxDeviation
}
