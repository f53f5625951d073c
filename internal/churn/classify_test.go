package churn_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nyashahama/churn-actions-dashboard/internal/churn"
)

// ─── HELPERS ─────────────────────────────────────────────────────────────────

func table(rows ...[]string) churn.Table {
	return churn.Table{
		Columns: []string{"user_id", "churn_probability", "churn_bucket", "orders"},
		Rows:    rows,
	}
}

// ─── Classify — labels ────────────────────────────────────────────────────────

func TestClassify_MapsEveryKnownBucket(t *testing.T) {
	tests := []struct {
		bucket string
		want   churn.RiskLabel
	}{
		{"<40", churn.LabelLow},
		{"40-80", churn.LabelMedium},
		{"80-99", churn.LabelHigh},
		{">99", churn.LabelAtRisk},
	}
	for _, tt := range tests {
		t.Run(tt.bucket, func(t *testing.T) {
			c, err := churn.Classify(table([]string{"1", "0.5", tt.bucket, "3"}))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := c.Records[0].Label; got != tt.want {
				t.Errorf("got label %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_UnmappedBucketHasEmptyLabel(t *testing.T) {
	c, err := churn.Classify(table([]string{"1", "0.5", "99-100", "3"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Records[0].Label != "" {
		t.Errorf("expected empty label, got %q", c.Records[0].Label)
	}
	if n := len(c.BucketCounts()); n != 0 {
		t.Errorf("unmapped labels should not be counted, got %d buckets", n)
	}
}

// ─── Classify — rounding ──────────────────────────────────────────────────────

func TestClassify_RoundsProbabilityToTwoDecimals(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"0.123", 0.12},
		{"0.125", 0.13},
		{"0.999", 1},
		{"0.5", 0.5},
		{"0.42", 0.42},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			c, err := churn.Classify(table([]string{"1", tt.raw, ">99", "3"}))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := c.Records[0].ChurnProbability
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if again := churn.RoundProbability(got); again != got {
				t.Errorf("rounding is not idempotent: %v → %v", got, again)
			}
		})
	}
}

func TestRecord_DisplayProbability(t *testing.T) {
	r := churn.Record{ChurnProbability: 0.5}
	if got := r.DisplayProbability(); got != "0.5" {
		t.Errorf("got %q, want %q", got, "0.5")
	}
}

// ─── Classify — deduplication ─────────────────────────────────────────────────

func TestClassify_DuplicateUserKeepsFirstOccurrence(t *testing.T) {
	c, err := churn.Classify(table(
		[]string{"42", "0.991", ">99", "1"},
		[]string{"7", "0.2", "<40", "5"},
		[]string{"42", "0.1", "<40", "9"},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(c.Records))
	}
	first := c.Records[0]
	if first.UserID != "42" || first.Label != churn.LabelAtRisk || first.ChurnProbability != 0.99 {
		t.Errorf("first occurrence not kept: %+v", first)
	}
	if c.Records[1].UserID != "7" {
		t.Errorf("input order not kept: %+v", c.Records)
	}
}

func TestClassify_DuplicateAtRiskUserYieldsOneRecord(t *testing.T) {
	c, err := churn.Classify(table(
		[]string{"42", "0.995", ">99", "1"},
		[]string{"42", "0.996", ">99", "1"},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hr := c.HighRisk()
	if hr.Len() != 1 || hr.Records[0].UserID != "42" {
		t.Fatalf("expected exactly one At Risk record for user 42, got %+v", hr.Records)
	}
}

func TestClassify_OneRecordPerDistinctUser(t *testing.T) {
	var rows [][]string
	for i := 0; i < 50; i++ {
		rows = append(rows, []string{fmt.Sprint(i % 17), "0.5", ">99", "1"})
	}
	c, err := churn.Classify(table(rows...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Records) != 17 {
		t.Errorf("expected 17 distinct users, got %d", len(c.Records))
	}
}

// ─── Classify — schema validation ────────────────────────────────────────────

func TestClassify_MissingColumnsReturnsDataFormatError(t *testing.T) {
	_, err := churn.Classify(churn.Table{
		Columns: []string{"user_id", "score"},
		Rows:    [][]string{{"1", "0.4"}},
	})

	var dfe *churn.DataFormatError
	if !errors.As(err, &dfe) {
		t.Fatalf("expected DataFormatError, got %v", err)
	}
	if len(dfe.Missing) != 2 || dfe.Missing[0] != "churn_probability" || dfe.Missing[1] != "churn_bucket" {
		t.Errorf("unexpected missing columns: %v", dfe.Missing)
	}
}

func TestClassify_NonNumericProbabilityReturnsDataFormatError(t *testing.T) {
	_, err := churn.Classify(table(
		[]string{"1", "0.3", "<40", "1"},
		[]string{"2", "high", ">99", "1"},
	))

	var dfe *churn.DataFormatError
	if !errors.As(err, &dfe) {
		t.Fatalf("expected DataFormatError, got %v", err)
	}
	if dfe.Row != 2 || dfe.Value != "high" {
		t.Errorf("unexpected error detail: %+v", dfe)
	}
}

func TestClassify_NonFiniteProbabilityReturnsDataFormatError(t *testing.T) {
	for _, v := range []string{"NaN", "Inf", "-Inf", "+Infinity"} {
		_, err := churn.Classify(table(
			[]string{"1", "0.3", "<40", "1"},
			[]string{"2", v, ">99", "1"},
		))

		var dfe *churn.DataFormatError
		if !errors.As(err, &dfe) {
			t.Fatalf("%s: expected DataFormatError, got %v", v, err)
		}
		if dfe.Row != 2 || dfe.Column != churn.ColChurnProbability || dfe.Value != v {
			t.Errorf("%s: unexpected error detail: %+v", v, dfe)
		}
	}
}

// ─── Classify — extra columns ─────────────────────────────────────────────────

func TestClassify_CarriesPhoneAndExtraColumns(t *testing.T) {
	c, err := churn.Classify(churn.Table{
		Columns: []string{"user_id", "recency", "churn_probability", "phone_number", "churn_bucket", "sum_revenue"},
		Rows:    [][]string{{"9", "40", "0.997", "+15550001", ">99", "120.5"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := c.ExtraColumns; len(got) != 2 || got[0] != "recency" || got[1] != "sum_revenue" {
		t.Errorf("unexpected extra columns: %v", got)
	}
	r := c.Records[0]
	if r.PhoneNumber != "+15550001" {
		t.Errorf("phone: got %q", r.PhoneNumber)
	}

	hr := c.HighRisk()
	wantHeader := []string{"User Id", "Churn Prob", "churn_bucket", "Risk Bucket", "recency", "sum_revenue"}
	gotHeader := hr.Header()
	if fmt.Sprint(gotHeader) != fmt.Sprint(wantHeader) {
		t.Errorf("header: got %v, want %v", gotHeader, wantHeader)
	}
	wantCells := []string{"9", "1", ">99", "At Risk", "40", "120.5"}
	if got := hr.Cells(0); fmt.Sprint(got) != fmt.Sprint(wantCells) {
		t.Errorf("cells: got %v, want %v", got, wantCells)
	}
}

// ─── Aggregates ───────────────────────────────────────────────────────────────

func TestBucketCounts_SortedByCountThenLabel(t *testing.T) {
	c, err := churn.Classify(table(
		[]string{"1", "0.1", "<40", "1"},
		[]string{"2", "0.1", "<40", "1"},
		[]string{"3", "0.5", "40-80", "1"},
		[]string{"4", "0.99", ">99", "1"},
		[]string{"5", "0.9", "80-99", "1"},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := c.BucketCounts()
	want := []churn.BucketCount{
		{Label: churn.LabelLow, Users: 2},
		{Label: churn.LabelMedium, Users: 1},
		{Label: churn.LabelHigh, Users: 1},
		{Label: churn.LabelAtRisk, Users: 1},
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestHighRisk_SortedByProbabilityIsStableAndDescending(t *testing.T) {
	c, err := churn.Classify(table(
		[]string{"a", "0.991", ">99", "1"},
		[]string{"b", "0.999", ">99", "1"},
		[]string{"c", "0.2", "<40", "1"},
		[]string{"d", "0.991", ">99", "1"},
	))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hr := c.HighRisk()
	if hr.Len() != 3 {
		t.Fatalf("expected 3 At Risk records, got %d", hr.Len())
	}
	sorted := hr.SortedByProbability()
	var ids []string
	for _, r := range sorted.Records {
		ids = append(ids, r.UserID)
	}
	if fmt.Sprint(ids) != "[b a d]" {
		t.Errorf("got order %v, want [b a d]", ids)
	}
	// The original table is untouched.
	if hr.Records[0].UserID != "a" {
		t.Error("SortedByProbability mutated the receiver")
	}
}

func TestHighRisk_FindByUserID(t *testing.T) {
	c, _ := churn.Classify(table([]string{"7", "0.995", ">99", "1"}))
	if _, ok := c.HighRisk().Find("7"); !ok {
		t.Error("expected to find user 7")
	}
	if _, ok := c.HighRisk().Find("8"); ok {
		t.Error("did not expect to find user 8")
	}
}
