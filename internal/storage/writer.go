package storage

import (
	"NetSpectraIDS/internal/config"
	"NetSpectraIDS/internal/model"
	"NetSpectraIDS/internal/probe"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// inserter persists one batch of detection events.
type inserter interface {
	Insert(ctx context.Context, events []probe.DetectionEvent) error
	Close() error
}

type clickhouseInserter struct {
	conn driver.Conn
}

func (c *clickhouseInserter) Insert(ctx context.Context, events []probe.DetectionEvent) error {
	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO detections")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, ev := range events {
		err := batch.Append(
			ev.Timestamp,
			ev.SessionID,
			ev.SrcIP.String(),
			ev.DstIP.String(),
			ev.SrcPort,
			ev.DstPort,
			ev.Protocol,
			ev.Service,
			ev.Flag,
			ev.SrcBytes,
			ev.DstBytes,
			ev.Status,
			ev.Label,
			ev.Confidence,
			ev.AttackProbability,
			ev.ErrorMessage,
		)
		if err != nil {
			return fmt.Errorf("failed to append detection to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func (c *clickhouseInserter) Close() error { return c.conn.Close() }

// Writer batches detections into the ClickHouse detections table. It
// implements model.DetectionSink; a batch is sent when it reaches the
// configured size or when the flush interval elapses.
type Writer struct {
	events    chan probe.DetectionEvent
	inserter  inserter
	batchSize int
	interval  time.Duration
	done      chan struct{}

	dropped     atomic.Uint64
	dropLimiter *rate.Limiter

	mu     sync.RWMutex
	closed bool
}

// NewClickHouseWriter connects to ClickHouse, ensures the table exists and
// starts the batching loop.
func NewClickHouseWriter(ctx context.Context, cfg config.ClickHouseConfig) (*Writer, error) {
	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Exec(ctx, createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("Connected to ClickHouse and ensured detections table exists")
	return newWriter(&clickhouseInserter{conn: conn}, cfg.BatchSize, cfg.FlushInterval), nil
}

func newWriter(ins inserter, batchSize int, interval time.Duration) *Writer {
	if batchSize <= 0 {
		batchSize = 500
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	w := &Writer{
		events:      make(chan probe.DetectionEvent, batchSize*4),
		inserter:    ins,
		batchSize:   batchSize,
		interval:    interval,
		done:        make(chan struct{}),
		dropLimiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
	go w.loop()
	return w
}

// Write queues det for the next batch, dropping it if the queue is full.
func (w *Writer) Write(det *model.Detection) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.events <- probe.NewDetectionEvent(det):
	default:
		n := w.dropped.Add(1)
		if w.dropLimiter.Allow() {
			log.Warn().Uint64("dropped", n).Msg("ClickHouse writer queue full, dropping detections")
		}
	}
}

// Dropped returns how many detections were discarded because the queue was full.
func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

func (w *Writer) loop() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	batch := make([]probe.DetectionEvent, 0, w.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := w.inserter.Insert(ctx, batch); err != nil {
			log.Error().Err(err).Int("detections", len(batch)).Msg("Failed to write detections to ClickHouse")
		} else {
			log.Debug().Int("detections", len(batch)).Msg("Wrote detections to ClickHouse")
		}
		batch = make([]probe.DetectionEvent, 0, w.batchSize)
	}

	for {
		select {
		case ev, ok := <-w.events:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close flushes pending detections and closes the connection.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.events)
	w.mu.Unlock()

	<-w.done
	if err := w.inserter.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close ClickHouse connection")
	}
}
