package storage

import (
	"NetSpectraIDS/internal/config"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// LabelSummary aggregates stored detections of one session and label.
type LabelSummary struct {
	SessionID     string    `json:"session_id"`
	Label         string    `json:"label"`
	Count         uint64    `json:"count"`
	AvgConfidence float64   `json:"avg_confidence"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}

// HistoryFilter narrows a summary query. Zero fields are ignored.
type HistoryFilter struct {
	SessionID string
	Since     time.Time
	Until     time.Time
}

// Querier reads detection history.
type Querier interface {
	LabelSummaries(ctx context.Context, filter HistoryFilter) ([]LabelSummary, error)
	Close() error
}

type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(ctx context.Context, cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

func buildSummaryQuery(filter HistoryFilter) (string, []interface{}) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			SessionID,
			Label,
			count() AS Count,
			avg(Confidence) AS AvgConfidence,
			min(Timestamp) AS FirstSeen,
			max(Timestamp) AS LastSeen
		FROM detections`)

	var whereClauses []string
	args := []interface{}{}
	if filter.SessionID != "" {
		whereClauses = append(whereClauses, "SessionID = ?")
		args = append(args, filter.SessionID)
	}
	if !filter.Since.IsZero() {
		whereClauses = append(whereClauses, "Timestamp >= ?")
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		whereClauses = append(whereClauses, "Timestamp <= ?")
		args = append(args, filter.Until)
	}
	if len(whereClauses) > 0 {
		queryBuilder.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}
	queryBuilder.WriteString(" GROUP BY SessionID, Label ORDER BY SessionID, Label")
	return queryBuilder.String(), args
}

// LabelSummaries counts stored detections per session and label.
func (q *clickhouseQuerier) LabelSummaries(ctx context.Context, filter HistoryFilter) ([]LabelSummary, error) {
	query, args := buildSummaryQuery(filter)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var summaries []LabelSummary
	for rows.Next() {
		var s LabelSummary
		if err := rows.Scan(&s.SessionID, &s.Label, &s.Count, &s.AvgConfidence, &s.FirstSeen, &s.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (q *clickhouseQuerier) Close() error { return q.conn.Close() }
