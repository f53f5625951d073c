// Package churn turns a table of precomputed per-user churn scores into risk
// tiers for the dashboard. It is intentionally dependency-free: it imports
// nothing from internal/ and can be tested without any data source.
package churn

import (
	"sort"
	"strconv"
)

// ─── COLUMNS ──────────────────────────────────────────────────────────────────

// Input column names. The first three are required.
const (
	ColUserID           = "user_id"
	ColChurnProbability = "churn_probability"
	ColChurnBucket      = "churn_bucket"
	ColPhoneNumber      = "phone_number"
)

// Display column names, matching the operator-facing table headers.
const (
	HeaderUserID     = "User Id"
	HeaderChurnProb  = "Churn Prob"
	HeaderRiskBucket = "Risk Bucket"
	HeaderUserCount  = "No. of Users"
)

// ─── TYPES ────────────────────────────────────────────────────────────────────

// RiskLabel is the operator-facing risk tier.
type RiskLabel string

const (
	LabelLow    RiskLabel = "Low"
	LabelMedium RiskLabel = "Medium"
	LabelHigh   RiskLabel = "High"
	LabelAtRisk RiskLabel = "At Risk"
)

// labelOrder fixes the tie-break order for bucket counts.
var labelOrder = map[RiskLabel]int{
	LabelLow:    0,
	LabelMedium: 1,
	LabelHigh:   2,
	LabelAtRisk: 3,
}

// bucketLabels maps the raw percentile bucket codes to labels.
var bucketLabels = map[string]RiskLabel{
	"<40":   LabelLow,
	"40-80": LabelMedium,
	"80-99": LabelHigh,
	">99":   LabelAtRisk,
}

// LabelFor returns the label for a raw bucket code. Unmapped codes return the
// empty label and false.
func LabelFor(bucket string) (RiskLabel, bool) {
	l, ok := bucketLabels[bucket]
	return l, ok
}

// Table is a raw input table. Every row has len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Field is one extra feature column carried through from the input.
type Field struct {
	Name  string
	Value string
}

// Record is one classified user.
type Record struct {
	UserID           string
	ChurnProbability float64 // rounded to 2 decimals
	Bucket           string  // raw churn_bucket code
	Label            RiskLabel
	PhoneNumber      string // empty when the input has no phone_number column
	Extra            []Field
}

// DisplayProbability formats the rounded probability without trailing zeros.
func (r Record) DisplayProbability() string {
	return strconv.FormatFloat(r.ChurnProbability, 'f', -1, 64)
}

// BucketCount is one row of the summary-by-bucket table.
type BucketCount struct {
	Label RiskLabel
	Users int
}

// Classification is the deduplicated output of Classify.
type Classification struct {
	Records      []Record
	ExtraColumns []string
}

// BucketCounts returns user counts per label, sorted by count descending.
// Records with an unmapped bucket are not counted.
func (c Classification) BucketCounts() []BucketCount {
	counts := make(map[RiskLabel]int)
	for _, r := range c.Records {
		if r.Label == "" {
			continue
		}
		counts[r.Label]++
	}

	out := make([]BucketCount, 0, len(counts))
	for l, n := range counts {
		out = append(out, BucketCount{Label: l, Users: n})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Users != out[b].Users {
			return out[a].Users > out[b].Users
		}
		return labelOrder[out[a].Label] < labelOrder[out[b].Label]
	})
	return out
}

// HighRisk returns the At Risk records in input order.
func (c Classification) HighRisk() HighRiskTable {
	t := HighRiskTable{ExtraColumns: c.ExtraColumns}
	for _, r := range c.Records {
		if r.Label == LabelAtRisk {
			t.Records = append(t.Records, r)
		}
	}
	return t
}

// HighRiskTable is the At Risk cohort.
type HighRiskTable struct {
	Records      []Record
	ExtraColumns []string
}

// Len returns the number of records.
func (t HighRiskTable) Len() int { return len(t.Records) }

// Find returns the record for userID.
func (t HighRiskTable) Find(userID string) (Record, bool) {
	for _, r := range t.Records {
		if r.UserID == userID {
			return r, true
		}
	}
	return Record{}, false
}

// SortedByProbability returns a copy ordered by churn probability descending.
// Equal probabilities keep their input order.
func (t HighRiskTable) SortedByProbability() HighRiskTable {
	out := HighRiskTable{
		Records:      make([]Record, len(t.Records)),
		ExtraColumns: t.ExtraColumns,
	}
	copy(out.Records, t.Records)
	sort.SliceStable(out.Records, func(a, b int) bool {
		return out.Records[a].ChurnProbability > out.Records[b].ChurnProbability
	})
	return out
}

// Header returns the column names of the tabular form used for the LLM prompt.
func (t HighRiskTable) Header() []string {
	h := []string{HeaderUserID, HeaderChurnProb, ColChurnBucket, HeaderRiskBucket}
	return append(h, t.ExtraColumns...)
}

// Cells returns row i aligned with Header.
func (t HighRiskTable) Cells(i int) []string {
	r := t.Records[i]
	cells := make([]string, 0, 4+len(r.Extra))
	cells = append(cells, r.UserID, r.DisplayProbability(), r.Bucket, string(r.Label))
	for _, f := range r.Extra {
		cells = append(cells, f.Value)
	}
	return cells
}

// Rows returns every row aligned with Header.
func (t HighRiskTable) Rows() [][]string {
	rows := make([][]string, len(t.Records))
	for i := range t.Records {
		rows[i] = t.Cells(i)
	}
	return rows
}
