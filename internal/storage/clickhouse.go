package storage

import (
	"NetSpectraIDS/internal/config"
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS detections (
    Timestamp         DateTime64(3),
    SessionID         String,
    SrcIP             String,
    DstIP             String,
    SrcPort           UInt16,
    DstPort           UInt16,
    Protocol          UInt8,
    Service           String,
    Flag              String,
    SrcBytes          Int64,
    DstBytes          Int64,
    Status            String,
    Label             String,
    Confidence        Float64,
    AttackProbability Float64,
    ErrorMessage      String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (SessionID, Timestamp);
`

func connect(ctx context.Context, cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}
