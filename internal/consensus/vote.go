package consensus

// Majority-vote reconciliation of audit responses. Each tracked field is
// tallied independently over the canonical encoding of its value; ties
// resolve to the value seen first, so the result is deterministic for a
// fixed response order.

// FieldResult is the reconciliation outcome for one field.
type FieldResult struct {
	// Value is the majority value among the audit responses.
	Value string
	// Count is how many responses carried the majority value.
	Count int
	// Confirmed is true only when the majority value equals the value the
	// caller already holds. An unconfirmed field is flagged, never
	// overwritten.
	Confirmed bool
}

// MajorityValue returns the most frequent value, first-seen order breaking
// ties. An empty input returns "" with count 0.
func MajorityValue(values []string) (string, int) {
	counts := make(map[string]int, len(values))
	order := make([]string, 0, len(values))
	for _, v := range values {
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}
	best, bestCount := "", 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best, bestCount
}

// Reconcile tallies the tracked fields across audit copies of a message
// and compares each majority value against the copy the caller originally
// accepted.
func Reconcile(local map[string]any, audits []map[string]any, fields []string) map[string]FieldResult {
	results := make(map[string]FieldResult, len(fields))
	for _, field := range fields {
		values := make([]string, 0, len(audits))
		for _, audit := range audits {
			if raw, ok := audit[field]; ok {
				values = append(values, CanonicalValue(raw))
			}
		}
		majority, count := MajorityValue(values)
		localValue := ""
		if raw, ok := local[field]; ok {
			localValue = CanonicalValue(raw)
		}
		results[field] = FieldResult{
			Value:     majority,
			Count:     count,
			Confirmed: count > 0 && majority == localValue,
		}
	}
	return results
}
