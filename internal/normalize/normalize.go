package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/atlas-utilities/billing-cli/internal/model"
	"github.com/atlas-utilities/billing-cli/internal/money"
)

// dateLayouts are the logged-date formats seen across sheet exports. Go's
// non-padded layouts also accept zero-padded input, so "1/2/2006" covers
// "01/02/2006".
var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"1/2/06",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// checkboxTrue holds the cell values that count as a checked box, lowercased.
// Field sheets mark checkboxes with anything from TRUE to a bare "x".
var checkboxTrue = map[string]bool{
	"true":    true,
	"yes":     true,
	"y":       true,
	"x":       true,
	"1":       true,
	"checked": true,
}

// structColumns are the canonical names that land in a fixed CanonicalRow
// field rather than in Extra.
var structColumns = []string{
	model.ColWorkRequest,
	model.ColLoggedDate,
	model.ColCompleted,
	model.ColTotalPrice,
	model.ColQuantity,
	model.ColUnitOfMeasure,
	model.ColForeman,
	model.ColHelperForeman,
	model.ColHelperCompleted,
	model.ColHelperDepartment,
	model.ColHelperJob,
	model.ColCUCode,
	model.ColPoleID,
}

// Normalizer rewrites raw rows into CanonicalRow. It is total: a row missing
// every required column still normalizes, producing zero values the
// validator then rejects.
type Normalizer struct {
	table *Table
	// claimed marks every spelling consumed by a fixed struct field, so the
	// Extra passthrough does not duplicate them.
	claimed map[string]bool
}

// New returns a Normalizer over the built-in synonym table.
func New() *Normalizer { return NewWithTable(DefaultTable()) }

// NewWithTable returns a Normalizer over a custom table, typically one
// loaded with LoadTable.
func NewWithTable(t *Table) *Normalizer {
	n := &Normalizer{table: t, claimed: make(map[string]bool)}
	for _, canon := range structColumns {
		for _, src := range t.Sources(canon) {
			n.claimed[src] = true
		}
	}
	return n
}

// Normalize rewrites one raw row. index is the row's arrival position in the
// source sheet and is carried through grouping so packet row order stays
// reproducible.
//
// When several source columns land on the same canonical field, the
// canonical spelling wins, then synonyms in table order; the first non-empty
// cell is taken.
func (n *Normalizer) Normalize(raw model.RawRow, index int) model.CanonicalRow {
	cells := make(map[string]string, len(raw))
	for name, val := range raw {
		name = strings.TrimSpace(name)
		val = strings.TrimSpace(val)
		if cur, ok := cells[name]; !ok || cur == "" {
			cells[name] = val
		}
	}

	row := model.CanonicalRow{Index: index}
	row.WorkRequest = n.cell(cells, model.ColWorkRequest)
	row.Foreman = n.cell(cells, model.ColForeman)
	row.HelperForeman = n.cell(cells, model.ColHelperForeman)
	row.HelperDepartment = n.cell(cells, model.ColHelperDepartment)
	row.HelperJob = n.cell(cells, model.ColHelperJob)
	row.CUCode = n.cell(cells, model.ColCUCode)
	row.PoleID = n.cell(cells, model.ColPoleID)
	row.UnitOfMeasure = n.cell(cells, model.ColUnitOfMeasure)

	row.LoggedDateRaw = n.cell(cells, model.ColLoggedDate)
	row.LoggedDate = parseDate(row.LoggedDateRaw)

	row.Completed = parseCheckbox(n.cell(cells, model.ColCompleted))
	row.HelperCompleted = parseCheckbox(n.cell(cells, model.ColHelperCompleted))

	row.TotalPriceRaw = n.cell(cells, model.ColTotalPrice)
	if cents, err := money.Parse(row.TotalPriceRaw); err == nil {
		row.TotalPrice = cents
		row.PriceParsed = true
	}

	row.QuantityRaw = n.cell(cells, model.ColQuantity)
	if qty, ok := parseQuantity(row.QuantityRaw); ok {
		row.Quantity = qty
		row.QuantityParsed = true
	}

	for name, val := range cells {
		if n.claimed[name] {
			continue
		}
		if row.Extra == nil {
			row.Extra = make(map[string]string)
		}
		if canon, ok := n.table.Canonical(name); ok {
			row.Extra[canon] = val
		} else {
			row.Extra[name] = val
		}
	}
	return row
}

// cell returns the first non-empty value among the canonical column and its
// synonyms.
func (n *Normalizer) cell(cells map[string]string, canon string) string {
	for _, name := range n.table.Sources(canon) {
		if v, ok := cells[name]; ok && v != "" {
			return v
		}
	}
	return ""
}

// parseDate tries each known layout and truncates the result to a bare UTC
// date. Grouping and fingerprinting must never see a time-of-day or a zone.
func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}

func parseCheckbox(raw string) bool {
	return checkboxTrue[strings.ToLower(raw)]
}

func parseQuantity(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
