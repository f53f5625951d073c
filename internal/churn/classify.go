package churn

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ─── ERRORS ──────────────────────────────────────────────────────────────────

// DataFormatError reports an input table that does not match the expected
// schema. Either Missing lists absent required columns, or Row/Column name the
// first cell that could not be parsed.
type DataFormatError struct {
	Missing []string
	Row     int // 1-indexed data row; 0 when not applicable
	Column  string
	Value   string
}

func (e *DataFormatError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("churn: input is missing required columns: %s", strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("churn: row %d: invalid %s value %q", e.Row, e.Column, e.Value)
}

var requiredColumns = []string{ColUserID, ColChurnProbability, ColChurnBucket}

// ─── CORE FUNCTIONS ───────────────────────────────────────────────────────────

// RoundProbability rounds to 2 decimal places.
func RoundProbability(p float64) float64 {
	return math.Round(p*100) / 100
}

// Classify validates the input schema, maps bucket codes to labels, rounds
// probabilities and drops repeated user ids (first occurrence wins). Output
// keeps input order.
//
// Columns other than the required ones and phone_number are carried through
// as extra features, in input order.
func Classify(t Table) (Classification, error) {
	index := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		index[strings.TrimSpace(c)] = i
	}

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return Classification{}, &DataFormatError{Missing: missing}
	}

	userIdx := index[ColUserID]
	probIdx := index[ColChurnProbability]
	bucketIdx := index[ColChurnBucket]
	phoneIdx, hasPhone := index[ColPhoneNumber]

	var extraIdx []int
	var extraCols []string
	for i, c := range t.Columns {
		name := strings.TrimSpace(c)
		switch name {
		case ColUserID, ColChurnProbability, ColChurnBucket, ColPhoneNumber:
			continue
		}
		extraIdx = append(extraIdx, i)
		extraCols = append(extraCols, name)
	}

	seen := make(map[string]struct{}, len(t.Rows))
	records := make([]Record, 0, len(t.Rows))

	for n, row := range t.Rows {
		cell := func(i int) string {
			if i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}

		userID := cell(userIdx)
		if _, dup := seen[userID]; dup {
			continue
		}

		raw := cell(probIdx)
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(p) || math.IsInf(p, 0) {
			return Classification{}, &DataFormatError{Row: n + 1, Column: ColChurnProbability, Value: raw}
		}

		bucket := cell(bucketIdx)
		label, _ := LabelFor(bucket)

		rec := Record{
			UserID:           userID,
			ChurnProbability: RoundProbability(p),
			Bucket:           bucket,
			Label:            label,
		}
		if hasPhone {
			rec.PhoneNumber = cell(phoneIdx)
		}
		if len(extraIdx) > 0 {
			rec.Extra = make([]Field, len(extraIdx))
			for j, i := range extraIdx {
				rec.Extra[j] = Field{Name: extraCols[j], Value: cell(i)}
			}
		}

		seen[userID] = struct{}{}
		records = append(records, rec)
	}

	return Classification{Records: records, ExtraColumns: extraCols}, nil
}
