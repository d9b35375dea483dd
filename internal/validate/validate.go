// Package validate decides which canonical rows are billable. Rules run in a
// fixed order and stop at the first failure, so the reported reason is
// always the first rule a row broke.
package validate

import "github.com/atlas-utilities/billing-cli/internal/model"

// DefaultPlaceholderCU is the sheet's reserved value for a row whose CU code
// could not be matched against the billing catalog. Such rows are never
// billable as-is.
const DefaultPlaceholderCU = "NO CU MATCH FOUND"

// Validator applies the acceptance rules. It is pure: no side effects, no
// clock, no store.
type Validator struct {
	placeholderCU string
}

// New returns a Validator that treats placeholderCU as the "no match found"
// reserved value. An empty string falls back to DefaultPlaceholderCU.
func New(placeholderCU string) *Validator {
	if placeholderCU == "" {
		placeholderCU = DefaultPlaceholderCU
	}
	return &Validator{placeholderCU: placeholderCU}
}

// Check reports whether a row is billable. On rejection the returned reason
// names the first rule the row failed:
//
//	1. work request present        -> MissingWorkRequest
//	2. logged date parseable       -> MissingOrInvalidDate
//	3. completion flag set         -> NotCompleted
//	4. price parses and is > 0     -> NonPositivePrice
//	5. CU code real, not reserved  -> PlaceholderCU
func (v *Validator) Check(row model.CanonicalRow) (bool, model.RejectReason) {
	if row.WorkRequest == "" {
		return false, model.RejectMissingWorkRequest
	}
	if !row.HasParseableDate() {
		return false, model.RejectMissingOrInvalidDate
	}
	if !row.Completed {
		return false, model.RejectNotCompleted
	}
	if !row.PriceParsed || !row.TotalPrice.Positive() {
		return false, model.RejectNonPositivePrice
	}
	if row.CUCode == "" || row.CUCode == v.placeholderCU {
		return false, model.RejectPlaceholderCU
	}
	return true, ""
}

// Partition splits rows into the billable sequence (arrival order preserved)
// and the rejects with their reasons.
func (v *Validator) Partition(rows []model.CanonicalRow) ([]model.CanonicalRow, []model.RejectedRow) {
	accepted := make([]model.CanonicalRow, 0, len(rows))
	var rejected []model.RejectedRow
	for _, row := range rows {
		if ok, reason := v.Check(row); !ok {
			rejected = append(rejected, model.RejectedRow{Row: row, Reason: reason})
			continue
		}
		accepted = append(accepted, row)
	}
	return accepted, rejected
}
