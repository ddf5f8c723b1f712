package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"restaurant-api/internal/util"
)

var ErrAuditBufferFull = errors.New("audit buffer full, event dropped")

// BatchWriter is satisfied by client.ClickHouseClient.
type BatchWriter interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	BatchInsert(ctx context.Context, query string, rows [][]interface{}) error
}

type AuditConfig struct {
	Table         string
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// AuditSink buffers events and writes them to ClickHouse in batches from
// Run. Publish never blocks; a full buffer drops the event.
type AuditSink struct {
	writer BatchWriter
	cfg    AuditConfig
	queue  chan Event
	logger *zap.Logger
}

func NewAuditSink(writer BatchWriter, cfg AuditConfig, logger *zap.Logger) *AuditSink {
	if cfg.Table == "" {
		cfg.Table = "audit_events"
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	return &AuditSink{
		writer: writer,
		cfg:    cfg,
		queue:  make(chan Event, cfg.BufferSize),
		logger: logger,
	}
}

// EnsureTable creates the audit table if needed.
func (s *AuditSink) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		event_id String,
		event_type LowCardinality(String),
		phone String,
		occurred_at DateTime64(3, 'UTC'),
		attributes Map(String, String)
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(occurred_at)
	ORDER BY (event_type, occurred_at)`, s.cfg.Table)
	if err := s.writer.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}
	return nil
}

func (s *AuditSink) Publish(_ context.Context, event Event) error {
	select {
	case s.queue <- event:
		return nil
	default:
		return ErrAuditBufferFull
	}
}

// Run drains the buffer until ctx is done, then flushes what is left.
func (s *AuditSink) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, s.cfg.BatchSize)
	for {
		select {
		case ev := <-s.queue:
			batch = append(batch, ev)
			if len(batch) >= s.cfg.BatchSize {
				batch = s.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = s.flush(ctx, batch)
		case <-ctx.Done():
			for {
				select {
				case ev := <-s.queue:
					batch = append(batch, ev)
				default:
					flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					s.flush(flushCtx, batch)
					cancel()
					return nil
				}
			}
		}
	}
}

func (s *AuditSink) flush(ctx context.Context, batch []Event) []Event {
	if len(batch) == 0 {
		return batch
	}

	rows := make([][]interface{}, len(batch))
	for i, ev := range batch {
		attrs := ev.Attributes
		if attrs == nil {
			attrs = map[string]string{}
		}
		rows[i] = []interface{}{ev.ID, ev.Type, util.MaskPhone(ev.Phone), ev.OccurredAt, attrs}
	}

	query := fmt.Sprintf("INSERT INTO %s (event_id, event_type, phone, occurred_at, attributes)", s.cfg.Table)
	if err := s.writer.BatchInsert(ctx, query, rows); err != nil {
		s.logger.Error("Failed to write audit batch",
			util.Int("events", len(batch)),
			util.ErrorField(err),
		)
	}
	return batch[:0]
}
