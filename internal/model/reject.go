package model

// RejectReason identifies the first validation rule a row failed. The rules
// run in a fixed order, so a row missing both its work request and its date
// is always reported as MissingWorkRequest.
type RejectReason string

const (
	RejectMissingWorkRequest   RejectReason = "missing_work_request"
	RejectMissingOrInvalidDate RejectReason = "missing_or_invalid_date"
	RejectNotCompleted         RejectReason = "not_completed"
	RejectNonPositivePrice     RejectReason = "non_positive_price"
	RejectPlaceholderCU        RejectReason = "placeholder_cu"
)

// RejectReasons lists every reason in rule order, for stable report output.
var RejectReasons = []RejectReason{
	RejectMissingWorkRequest,
	RejectMissingOrInvalidDate,
	RejectNotCompleted,
	RejectNonPositivePrice,
	RejectPlaceholderCU,
}

// RejectedRow pairs a row that failed validation with the rule it broke.
type RejectedRow struct {
	Row    CanonicalRow `json:"row"`
	Reason RejectReason `json:"reason"`
}
