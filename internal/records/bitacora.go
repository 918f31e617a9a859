package records

import (
	"github.com/shopspring/decimal"
)

// BitacoraSeparator joins raw_text of entries merged into the same day.
const BitacoraSeparator = "\n\n---\n\n"

// MergeBitacora folds next into existing, the entry already stored for
// the same date. Sets are unioned (case-sensitive, first occurrence
// order), counts summed, the emergency flag OR-ed, and highlights
// appended in order without deduplication. created_at is kept.
func MergeBitacora(existing, next BitacoraEntry, now int64) BitacoraEntry {
	out := existing
	switch {
	case existing.RawText == "":
		out.RawText = next.RawText
	case next.RawText != "":
		out.RawText = existing.RawText + BitacoraSeparator + next.RawText
	}
	out.Tags = union(existing.Tags, next.Tags)
	out.ClientsMentioned = union(existing.ClientsMentioned, next.ClientsMentioned)
	out.Locations = union(existing.Locations, next.Locations)
	out.Equipment = union(existing.Equipment, next.Equipment)
	out.Highlights = append(append([]string{}, existing.Highlights...), next.Highlights...)
	out.JobsCount = existing.JobsCount + next.JobsCount
	out.HoursEstimated = decimal.NewFromFloat(existing.HoursEstimated).
		Add(decimal.NewFromFloat(next.HoursEstimated)).InexactFloat64()
	out.HadEmergency = existing.HadEmergency || next.HadEmergency
	out.UpdatedAt = now
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if s == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// Dedupe removes duplicates and empty strings, keeping first occurrence order.
func Dedupe(list []string) []string {
	return union(list, nil)
}
