//go:build integration

package outbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
)

type stubWrite struct {
	topic    string
	messages []kafka.Message
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []stubWrite
}

func (p *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.writes = append(p.writes, stubWrite{topic: topic, messages: msgs})
	return nil
}

func TestDispatcherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	userID := uuid.NewString()
	seedOutbox(t, ctx, pool, userID, "activity.started")

	producer := &stubProducer{}
	dispatcher := NewDispatcher(pool, producer, 10*time.Millisecond, 5)

	beforeDelivered := testutil.ToFloat64(deliveredCounter)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, TopicActivityEvents, producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)
	require.Equal(t, []byte(userID), producer.writes[0].messages[0].Key)

	afterDelivered := testutil.ToFloat64(deliveredCounter)
	require.InDelta(t, beforeDelivered+1, afterDelivered, 0.0001)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDispatcherBatchesEventsPerTopic(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	userID := uuid.NewString()
	seedOutbox(t, ctx, pool, userID, "activity.started")
	seedOutbox(t, ctx, pool, userID, "activity.finished")

	producer := &stubProducer{}
	dispatcher := NewDispatcher(pool, producer, 10*time.Millisecond, 5)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1, "events for one topic should go out in a single write")
	require.Len(t, producer.writes[0].messages, 2)
}

func TestDispatcherRetriesFailedBatch(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	seedOutbox(t, ctx, pool, uuid.NewString(), "activity.started")

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(pool, producer, 10*time.Millisecond, 5)

	beforeFailed := testutil.ToFloat64(failedCounter)

	require.NoError(t, dispatcher.processBatch(ctx))

	afterFailed := testutil.ToFloat64(failedCounter)
	require.InDelta(t, beforeFailed+1, afterFailed, 0.0001)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 0, published, "a failed batch must stay unpublished")

	// Once the broker recovers the same event goes out.
	producer.err = nil
	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, producer.writes, 1)

	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("timetrack"),
		postgrescontainer.WithUsername("timetrack"),
		postgrescontainer.WithPassword("timetrack"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	deadline := time.Now().Add(30 * time.Second)
	for {
		if err := pool.Ping(ctx); err == nil {
			break
		} else if time.Now().After(deadline) {
			t.Fatalf("database never became ready: %v", err)
		}
		time.Sleep(time.Second)
	}

	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	migration := filepath.Join(filepath.Dir(file), "../../db/postgres/migrations/0001_init.up.sql")
	contents, err := os.ReadFile(migration)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(contents))
	require.NoError(t, err)

	return pool
}

func seedOutbox(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userID, eventType string) {
	t.Helper()
	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ('activity', $1, $2, $3, $4, '{}', $5)`
	aggregateID := uuid.NewString()
	_, err := pool.Exec(ctx, stmt, aggregateID, eventType, TopicActivityEvents, userID,
		fmt.Sprintf("%s:%s", aggregateID, eventType))
	require.NoError(t, err)
}
