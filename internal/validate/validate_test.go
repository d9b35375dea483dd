package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/atlas-utilities/billing-cli/internal/model"
)

// billable returns a row that passes every rule; tests then break one rule
// at a time.
func billable() model.CanonicalRow {
	return model.CanonicalRow{
		WorkRequest: "WR-1042",
		LoggedDate:  time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		Completed:   true,
		TotalPrice:  125000,
		PriceParsed: true,
		CUCode:      "CU-800",
	}
}

func TestCheck_AcceptsBillableRow(t *testing.T) {
	t.Parallel()

	ok, reason := New("").Check(billable())
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestCheck_RejectReasons(t *testing.T) {
	t.Parallel()
	v := New("")

	cases := []struct {
		name   string
		mutate func(*model.CanonicalRow)
		want   model.RejectReason
	}{
		{"missing work request", func(r *model.CanonicalRow) { r.WorkRequest = "" }, model.RejectMissingWorkRequest},
		{"unparseable date", func(r *model.CanonicalRow) { r.LoggedDate = time.Time{} }, model.RejectMissingOrInvalidDate},
		{"not completed", func(r *model.CanonicalRow) { r.Completed = false }, model.RejectNotCompleted},
		{"zero price", func(r *model.CanonicalRow) { r.TotalPrice = 0 }, model.RejectNonPositivePrice},
		{"negative price", func(r *model.CanonicalRow) { r.TotalPrice = -500 }, model.RejectNonPositivePrice},
		{"unparseable price", func(r *model.CanonicalRow) { r.PriceParsed = false }, model.RejectNonPositivePrice},
		{"missing CU", func(r *model.CanonicalRow) { r.CUCode = "" }, model.RejectPlaceholderCU},
		{"placeholder CU", func(r *model.CanonicalRow) { r.CUCode = DefaultPlaceholderCU }, model.RejectPlaceholderCU},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			row := billable()
			tc.mutate(&row)
			ok, reason := v.Check(row)
			assert.False(t, ok)
			assert.Equal(t, tc.want, reason)
		})
	}
}

func TestCheck_FirstViolatedRuleWins(t *testing.T) {
	t.Parallel()

	// Breaks every rule at once; the report must name rule 1.
	row := model.CanonicalRow{}
	ok, reason := New("").Check(row)
	assert.False(t, ok)
	assert.Equal(t, model.RejectMissingWorkRequest, reason)

	// Same row with a work request moves the report to rule 2.
	row.WorkRequest = "WR-1"
	_, reason = New("").Check(row)
	assert.Equal(t, model.RejectMissingOrInvalidDate, reason)
}

func TestCheck_CustomPlaceholder(t *testing.T) {
	t.Parallel()
	v := New("UNMATCHED")

	row := billable()
	row.CUCode = "UNMATCHED"
	ok, reason := v.Check(row)
	assert.False(t, ok)
	assert.Equal(t, model.RejectPlaceholderCU, reason)

	// The default placeholder is just an ordinary CU under a custom one.
	row.CUCode = DefaultPlaceholderCU
	ok, _ = v.Check(row)
	assert.True(t, ok)
}

func TestPartition_PreservesArrivalOrder(t *testing.T) {
	t.Parallel()

	a, b, c := billable(), billable(), billable()
	a.Index, b.Index, c.Index = 0, 1, 2
	b.Completed = false

	accepted, rejected := New("").Partition([]model.CanonicalRow{a, b, c})

	assert.Len(t, accepted, 2)
	assert.Equal(t, 0, accepted[0].Index)
	assert.Equal(t, 2, accepted[1].Index)
	assert.Len(t, rejected, 1)
	assert.Equal(t, 1, rejected[0].Row.Index)
	assert.Equal(t, model.RejectNotCompleted, rejected[0].Reason)
}
