// Package grouping buckets billable rows into packets: one packet per
// (work request, week-ending date, kind). A work request whose rows span two
// weeks yields two packets; weeks never merge.
package grouping

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-utilities/billing-cli/internal/model"
)

// WeekEnding rounds a date forward to the next occurrence of the configured
// week-ending weekday. A row logged on that weekday already is its own
// week-ending date.
func WeekEnding(d time.Time, weekday time.Weekday) time.Time {
	days := (int(weekday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, days)
}

// Group assigns every row to its packet, appending in arrival order. Helper
// candidates (non-empty helper foreman plus a checked helper-completion box)
// split into a helper packet only when both the helper department and helper
// job ids are present; otherwise the row is billed through the primary
// packet and the fallback is reported, never dropped.
func Group(rows []model.CanonicalRow, weekday time.Weekday) (map[model.PacketKey]*model.Packet, []model.HelperFallback) {
	log := zap.L().With(zap.String("component", "grouping"))

	packets := make(map[model.PacketKey]*model.Packet)
	var fallbacks []model.HelperFallback

	for _, row := range rows {
		week := WeekEnding(row.LoggedDate, weekday).Format("2006-01-02")

		kind := model.PacketKindPrimary
		if row.HelperForeman != "" && row.HelperCompleted {
			if missing := missingHelperField(row); missing != "" {
				fb := model.HelperFallback{
					RowIndex:      row.Index,
					WorkRequest:   row.WorkRequest,
					HelperForeman: row.HelperForeman,
					MissingField:  missing,
				}
				fallbacks = append(fallbacks, fb)
				log.Warn("helper split fell back to primary packet",
					zap.Int("row", row.Index),
					zap.String("work_request", row.WorkRequest),
					zap.String("helper_foreman", row.HelperForeman),
					zap.String("missing", missing))
			} else {
				kind = model.HelperKind(row.HelperForeman)
			}
		}

		key := model.PacketKey{WorkRequest: row.WorkRequest, WeekEnding: week, Kind: kind}
		p, ok := packets[key]
		if !ok {
			p = &model.Packet{Key: key}
			packets[key] = p
		}
		p.Append(row)
	}
	return packets, fallbacks
}

func missingHelperField(row model.CanonicalRow) string {
	switch {
	case row.HelperDepartment == "" && row.HelperJob == "":
		return model.ColHelperDepartment + ", " + model.ColHelperJob
	case row.HelperDepartment == "":
		return model.ColHelperDepartment
	case row.HelperJob == "":
		return model.ColHelperJob
	}
	return ""
}

// SortKeys orders packet keys for stable output: work request, then week,
// then the primary packet ahead of its helper splits.
func SortKeys(packets map[model.PacketKey]*model.Packet) []model.PacketKey {
	keys := make([]model.PacketKey, 0, len(packets))
	for k := range packets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.WorkRequest != b.WorkRequest {
			return a.WorkRequest < b.WorkRequest
		}
		if a.WeekEnding != b.WeekEnding {
			return a.WeekEnding < b.WeekEnding
		}
		if ap, bp := a.Kind == model.PacketKindPrimary, b.Kind == model.PacketKindPrimary; ap != bp {
			return ap
		}
		return a.Kind < b.Kind
	})
	return keys
}
