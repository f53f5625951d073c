package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/nyashahama/churn-actions-dashboard/internal/churn"
)

// PostgresSource reads churn scores from a table shaped like:
//
//	CREATE TABLE churn_probability (
//	    user_id           TEXT PRIMARY KEY,
//	    churn_probability DOUBLE PRECISION NOT NULL,
//	    churn_bucket      TEXT NOT NULL,
//	    phone_number      TEXT,
//	    features          JSONB
//	);
//
// Keys of the features object become extra columns, sorted by name, so the
// summarizer sees the same shape a wide CSV export would give it.
type PostgresSource struct {
	pool  *sql.DB
	table string
}

// NewPostgresSource wraps an open pool. The pool must already be verified
// (see OpenPostgres).
func NewPostgresSource(pool *sql.DB, table string) *PostgresSource {
	return &PostgresSource{pool: pool, table: table}
}

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("dataset: open postgres: %w", err)
	}

	pool.SetMaxOpenConns(5)
	pool.SetMaxIdleConns(2)
	pool.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("dataset: ping postgres: %w", err)
	}
	return pool, nil
}

type pgRow struct {
	userID   string
	prob     float64
	bucket   string
	phone    sql.NullString
	features map[string]any
}

// Load runs one SELECT over the whole table. Row order is whatever Postgres
// returns, so duplicate user ids resolve against that order.
func (s *PostgresSource) Load(ctx context.Context) (churn.Table, error) {
	query := fmt.Sprintf(
		`SELECT user_id::text, churn_probability, churn_bucket, phone_number, features FROM %s`,
		pq.QuoteIdentifier(s.table),
	)

	rows, err := s.pool.QueryContext(ctx, query)
	if err != nil {
		return churn.Table{}, fmt.Errorf("dataset: query %s: %w", s.table, err)
	}
	defer rows.Close()

	var scanned []pgRow
	keys := make(map[string]struct{})

	for rows.Next() {
		var (
			r   pgRow
			raw pqtype.NullRawMessage
		)
		if err := rows.Scan(&r.userID, &r.prob, &r.bucket, &r.phone, &raw); err != nil {
			return churn.Table{}, fmt.Errorf("dataset: scan row: %w", err)
		}
		if raw.Valid && len(raw.RawMessage) > 0 {
			if err := json.Unmarshal(raw.RawMessage, &r.features); err != nil {
				return churn.Table{}, fmt.Errorf("dataset: user %s: decode features: %w", r.userID, err)
			}
			for k := range r.features {
				keys[k] = struct{}{}
			}
		}
		scanned = append(scanned, r)
	}
	if err := rows.Err(); err != nil {
		return churn.Table{}, fmt.Errorf("dataset: iterate rows: %w", err)
	}

	featureCols := make([]string, 0, len(keys))
	for k := range keys {
		featureCols = append(featureCols, k)
	}
	sort.Strings(featureCols)

	t := churn.Table{
		Columns: append([]string{
			churn.ColUserID,
			churn.ColChurnProbability,
			churn.ColChurnBucket,
			churn.ColPhoneNumber,
		}, featureCols...),
		Rows: make([][]string, len(scanned)),
	}
	for i, r := range scanned {
		row := make([]string, 0, len(t.Columns))
		row = append(row,
			r.userID,
			strconv.FormatFloat(r.prob, 'f', -1, 64),
			r.bucket,
			r.phone.String,
		)
		for _, k := range featureCols {
			row = append(row, featureString(r.features[k]))
		}
		t.Rows[i] = row
	}
	return t, nil
}

// featureString renders a decoded JSON value as a table cell.
func featureString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
