package model

import (
	"time"

	"github.com/atlas-utilities/billing-cli/internal/money"
)

// RawRow is one sheet row as delivered by the ingest layer: source column
// name -> raw cell text. Rows are transient; nothing downstream of the
// normalizer sees them.
type RawRow map[string]string

// Canonical column names. The normalizer rewrites every known synonym onto
// one of these; columns it does not recognize pass through under their
// source name and end up in CanonicalRow.Extra.
const (
	ColWorkRequest      = "Work Request #"
	ColLoggedDate       = "Logged Date"
	ColCompleted        = "Completed"
	ColTotalPrice       = "Units Total Price"
	ColQuantity         = "Quantity"
	ColUnitOfMeasure    = "Unit of Measure"
	ColForeman          = "Foreman"
	ColHelperForeman    = "Helper Foreman"
	ColHelperCompleted  = "Helper Completed"
	ColHelperDepartment = "Helper Department #"
	ColHelperJob        = "Helper Job #"
	ColCUCode           = "CU"
	ColPoleID           = "Pole #"
	ColDescription      = "Description"
)

// CanonicalRow is a RawRow rewritten into the fixed billing schema. Raw text
// is kept next to each parsed value so validation failures and audit output
// can quote what the sheet actually said.
type CanonicalRow struct {
	Index int `json:"index"` // arrival order within the source sheet

	WorkRequest string `json:"work_request"`

	LoggedDateRaw string    `json:"logged_date_raw,omitempty"`
	LoggedDate    time.Time `json:"logged_date"` // zero when absent or unparseable

	Completed bool `json:"completed"`

	TotalPriceRaw string      `json:"total_price_raw,omitempty"`
	TotalPrice    money.Cents `json:"total_price_cents"`
	PriceParsed   bool        `json:"price_parsed"`

	QuantityRaw    string  `json:"quantity_raw,omitempty"`
	Quantity       float64 `json:"quantity"`
	QuantityParsed bool    `json:"quantity_parsed"`

	UnitOfMeasure string `json:"unit_of_measure,omitempty"`
	CUCode        string `json:"cu_code,omitempty"`
	PoleID        string `json:"pole_id,omitempty"`

	Foreman          string `json:"foreman,omitempty"`
	HelperForeman    string `json:"helper_foreman,omitempty"`
	HelperCompleted  bool   `json:"helper_completed,omitempty"`
	HelperDepartment string `json:"helper_department,omitempty"`
	HelperJob        string `json:"helper_job,omitempty"`

	// Extra holds descriptive columns that have no canonical slot. They ride
	// along for rendering but never influence fingerprints.
	Extra map[string]string `json:"extra,omitempty"`
}

// HasParseableDate reports whether the logged date survived parsing.
func (r CanonicalRow) HasParseableDate() bool {
	return !r.LoggedDate.IsZero()
}
