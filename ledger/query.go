package ledger

import (
	"context"
	"strings"
)

// Filters narrows a search. All fields are optional and logically ANDed;
// string fields match as case-insensitive substrings, RequestType matches
// exactly, From/To are inclusive unix-second bounds (zero means unset).
type Filters struct {
	RequestID   string
	RequesterID string
	OwnerID     string
	RequestType string
	LicenceKey  string
	From        int64
	To          int64
	IsActive    *bool
}

// SearchResult carries both the matches and the pre-filter record count,
// so a caller can tell "no matches" apart from "no data".
type SearchResult struct {
	Matched      []Record `json:"matched"`
	TotalScanned int      `json:"total_scanned"`
}

// List fetches the full record set by walking count + id-by-index + get.
// The backend has no native enumeration call, so this is deliberately a
// linear scan. A single record failing to load is logged and skipped; only
// a failure to obtain the count fails the whole scan.
func (l *Ledger) List(ctx context.Context) ([]Record, error) {
	n, err := l.Count(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, n)
	for i := int64(0); i < n; i++ {
		id, err := l.IDByIndex(ctx, i)
		if err != nil {
			l.log.Warn("skipping unreadable ledger slot", "index", i, "error", err)
			continue
		}
		rec, err := l.Get(ctx, id)
		if err != nil {
			l.log.Warn("skipping unreadable ledger record", "approval_id", id, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Search runs the linear scan and applies the filters record by record,
// short-circuiting on the first failed predicate. No index is built;
// target volumes are small and optimizing this is an explicit non-goal.
func (l *Ledger) Search(ctx context.Context, f Filters) (SearchResult, error) {
	records, err := l.List(ctx)
	if err != nil {
		return SearchResult{}, err
	}

	res := SearchResult{
		Matched:      make([]Record, 0, len(records)),
		TotalScanned: len(records),
	}
	for _, rec := range records {
		if f.matches(rec) {
			res.Matched = append(res.Matched, rec)
		}
	}
	return res, nil
}

func (f Filters) matches(rec Record) bool {
	if f.RequestID != "" && !containsFold(rec.RequestID, f.RequestID) {
		return false
	}
	if f.RequesterID != "" && !containsFold(rec.RequesterID, f.RequesterID) {
		return false
	}
	if f.OwnerID != "" && !containsFold(rec.OwnerID, f.OwnerID) {
		return false
	}
	if f.RequestType != "" && rec.RequestType != f.RequestType {
		return false
	}
	if f.LicenceKey != "" && !containsFold(rec.LicenceKey, f.LicenceKey) {
		return false
	}
	if f.From != 0 && rec.Timestamp < f.From {
		return false
	}
	if f.To != 0 && rec.Timestamp > f.To {
		return false
	}
	if f.IsActive != nil && rec.IsActive != *f.IsActive {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
