// Package outbox persists and delivers activity events to Kafka.
package outbox

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// Dispatcher drains the outbox table and delivers events to Kafka. Claimed
// events stay locked for the duration of the batch; a delivery failure rolls
// the claim back so the batch is retried on the next poll.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	pollInterval     time.Duration
	batchSize        int
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, pollInterval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		pool:             pool,
		producer:         producer,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("outbox dispatcher error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

type claimedEvent struct {
	ID           int64
	EventType    string
	Topic        string
	PartitionKey string
	Payload      []byte
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var backlog int64
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE published_at IS NULL`).Scan(&backlog); err != nil {
		return err
	}
	backlogGauge.Set(float64(backlog))

	const claim = `SELECT event_id, event_type, topic, partition_key, payload
        FROM outbox
        WHERE published_at IS NULL
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, claim, d.batchSize)
	if err != nil {
		return err
	}

	var events []claimedEvent
	for rows.Next() {
		var ev claimedEvent
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Topic, &ev.PartitionKey, &ev.Payload); err != nil {
			rows.Close()
			return err
		}
		events = append(events, ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if len(events) == 0 {
		return tx.Commit(ctx)
	}
	defer batchDuration.Observe(time.Since(start).Seconds())

	if err := d.deliver(ctx, events); err != nil {
		failedCounter.Inc()
		log.Printf("outbox: delivery failure, batch will retry: %v", err)
		// Rolling back releases the claim without marking anything published.
		return nil
	}

	ids := make([]int64, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	if _, err := tx.Exec(ctx, `UPDATE outbox SET published_at = now() WHERE event_id = ANY($1)`, ids); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	deliveredCounter.Add(float64(len(events)))
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, events []claimedEvent) error {
	byTopic := make(map[string][]kafka.Message)
	for _, ev := range events {
		byTopic[ev.Topic] = append(byTopic[ev.Topic], kafka.Message{
			Key:   []byte(ev.PartitionKey),
			Value: ev.Payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.EventType)},
			},
		})
	}

	for topic, msgs := range byTopic {
		if err := d.producer.WriteMessages(ctx, topic, msgs...); err != nil {
			return err
		}
	}
	return nil
}
