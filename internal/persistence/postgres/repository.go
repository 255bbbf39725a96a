// Package postgres implements the remote data contract on top of PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/timetrack/internal/observability"
	"example.com/timetrack/internal/outbox"
	"example.com/timetrack/internal/remote"
)

// pendingGuardConstraint is the partial unique index that keeps at most one
// unfinished activity per user. Violations surface as the dedicated
// "already tracking" code instead of a generic unique violation.
const pendingGuardConstraint = "one_pending_activity_per_user"

type tableSpec struct {
	columns []string
	// ordered newest-first for reads; also the tie-break column for
	// single-row lookups.
	orderBy string
}

func (t tableSpec) hasColumn(name string) bool {
	for _, col := range t.columns {
		if col == name {
			return true
		}
	}
	return false
}

var tables = map[string]tableSpec{
	"activities": {
		columns: []string{"id", "user_id", "description", "category_id", "tags", "started_at", "finished_at", "created_at"},
		orderBy: "created_at DESC",
	},
	"categories": {
		columns: []string{"id", "user_id", "name", "created_at"},
		orderBy: "created_at DESC",
	},
}

// Repository provides Postgres-backed persistence for the tracked
// collections and records outbox events for activity mutations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns all rows matching filter, newest first.
func (r *Repository) Get(ctx context.Context, collection string, filter remote.Filter) ([]remote.Row, error) {
	spec, query, args, err := selectQuery(collection, filter, false)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []remote.Row
	for rows.Next() {
		row, err := scanRow(rows, spec)
		if err != nil {
			return nil, translate(err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// GetSingle returns the row matching filter, nil when none does. If several
// rows match, the most recently created one wins.
func (r *Repository) GetSingle(ctx context.Context, collection string, filter remote.Filter) (remote.Row, error) {
	spec, query, args, err := selectQuery(collection, filter, true)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, translate(rows.Err())
	}
	row, err := scanRow(rows, spec)
	if err != nil {
		return nil, translate(err)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return row, nil
}

// Insert stores row and returns it as persisted. Inserts into the
// activities collection record an activity.started outbox event in the same
// transaction.
func (r *Repository) Insert(ctx context.Context, collection string, row remote.Row) (remote.Row, error) {
	spec, ok := tables[collection]
	if !ok {
		return nil, unknownCollection(collection)
	}

	cols := sortedKeys(row)
	args := make([]any, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	for i, col := range cols {
		if !spec.hasColumn(col) {
			return nil, unknownColumn(collection, col)
		}
		args = append(args, row[col])
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		collection, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(spec.columns, ", "))

	return r.mutate(ctx, collection, query, args, func(inserted remote.Row) (string, any) {
		if collection != "activities" {
			return "", nil
		}
		return "activity.started", outbox.ActivityStarted{
			ActivityID:  asString(inserted["id"]),
			UserID:      asString(inserted["user_id"]),
			Description: asString(inserted["description"]),
			StartedAt:   asTime(inserted["started_at"]),
		}
	})
}

// Update applies updates to the row matching filter and returns the updated
// row, nil when nothing matched. Activity updates record an outbox event:
// activity.finished when the update sets finished_at, activity.updated
// otherwise.
func (r *Repository) Update(ctx context.Context, collection string, updates remote.Row, filter remote.Filter) (remote.Row, error) {
	spec, ok := tables[collection]
	if !ok {
		return nil, unknownCollection(collection)
	}
	if len(updates) == 0 {
		return nil, &remote.Error{Code: remote.CodeNotNullViolation, Message: "empty update"}
	}

	var (
		sets []string
		args []any
	)
	for _, col := range sortedKeys(updates) {
		if !spec.hasColumn(col) {
			return nil, unknownColumn(collection, col)
		}
		args = append(args, updates[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	where, args, err := whereClause(spec, collection, filter, args)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("UPDATE %s SET %s%s RETURNING %s",
		collection, strings.Join(sets, ", "), where, strings.Join(spec.columns, ", "))

	finishing := false
	if v, ok := updates["finished_at"]; ok && v != nil {
		finishing = true
	}

	return r.mutate(ctx, collection, query, args, func(updated remote.Row) (string, any) {
		if collection != "activities" {
			return "", nil
		}
		if finishing {
			return "activity.finished", outbox.ActivityFinished{
				ActivityID: asString(updated["id"]),
				UserID:     asString(updated["user_id"]),
				FinishedAt: asTime(updated["finished_at"]),
			}
		}
		return "activity.updated", outbox.ActivityUpdated{
			ActivityID: asString(updated["id"]),
			UserID:     asString(updated["user_id"]),
			OccurredAt: time.Now().UTC(),
		}
	})
}

// Delete removes the row matching filter and returns it, nil when nothing
// matched. Activity deletions record an activity.deleted outbox event.
func (r *Repository) Delete(ctx context.Context, collection string, filter remote.Filter) (remote.Row, error) {
	spec, ok := tables[collection]
	if !ok {
		return nil, unknownCollection(collection)
	}

	where, args, err := whereClause(spec, collection, filter, nil)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("DELETE FROM %s%s RETURNING %s", collection, where, strings.Join(spec.columns, ", "))

	return r.mutate(ctx, collection, query, args, func(deleted remote.Row) (string, any) {
		if collection != "activities" {
			return "", nil
		}
		return "activity.deleted", outbox.ActivityDeleted{
			ActivityID: asString(deleted["id"]),
			UserID:     asString(deleted["user_id"]),
			OccurredAt: time.Now().UTC(),
		}
	})
}

// mutate runs a single-row mutation plus its outbox event inside one
// transaction. eventFn returning an empty type means no event is recorded.
func (r *Repository) mutate(ctx context.Context, collection, query string, args []any, eventFn func(remote.Row) (string, any)) (remote.Row, error) {
	spec := tables[collection]

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, translate(err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}

	var result remote.Row
	if rows.Next() {
		result, err = scanRow(rows, spec)
		if err != nil {
			rows.Close()
			return nil, translate(err)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}

	if result == nil {
		// Nothing matched; commit the empty transaction.
		if err := tx.Commit(ctx); err != nil {
			return nil, translate(err)
		}
		return nil, nil
	}

	if eventType, payload := eventFn(result); eventType != "" {
		if err := insertOutbox(ctx, tx, result, eventType, payload); err != nil {
			return nil, translate(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, translate(err)
	}

	recordWatermarks(collection, result)
	return result, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, row remote.Row, eventType string, payload any) error {
	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	body, err := outbox.MarshalPayload(payload)
	if err != nil {
		return err
	}

	dedupeKey := fmt.Sprintf("%s:%s", asString(row["id"]), eventType)
	if eventType == "activity.updated" {
		// Plain field edits can repeat; make each one its own event.
		dedupeKey = fmt.Sprintf("%s:%d", dedupeKey, time.Now().UnixNano())
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		"activity",
		asString(row["id"]),
		eventType,
		meta.Topic,
		meta.PartitionKeyFn(row),
		body,
		dedupeKey,
	)
	return err
}

func recordWatermarks(collection string, row remote.Row) {
	if collection != "activities" {
		return
	}
	observability.RecordActivityStarted(asTime(row["started_at"]))
	if v := row["finished_at"]; v != nil {
		observability.RecordActivityFinished(asTime(v))
	}
}

func selectQuery(collection string, filter remote.Filter, single bool) (tableSpec, string, []any, error) {
	spec, ok := tables[collection]
	if !ok {
		return tableSpec{}, "", nil, unknownCollection(collection)
	}

	where, args, err := whereClause(spec, collection, filter, nil)
	if err != nil {
		return tableSpec{}, "", nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s", strings.Join(spec.columns, ", "), collection, where, spec.orderBy)
	if single {
		query += " LIMIT 1"
	}
	return spec, query, args, nil
}

// whereClause renders the equality filter, appending to args. A nil filter
// value becomes IS NULL so that "finished_at: nil" matches open activities.
func whereClause(spec tableSpec, collection string, filter remote.Filter, args []any) (string, []any, error) {
	if len(filter) == 0 {
		return "", args, nil
	}

	var conds []string
	for _, col := range sortedKeys(filter) {
		if !spec.hasColumn(col) {
			return "", nil, unknownColumn(collection, col)
		}
		if filter[col] == nil {
			conds = append(conds, col+" IS NULL")
			continue
		}
		args = append(args, filter[col])
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func scanRow(rows pgx.Rows, spec tableSpec) (remote.Row, error) {
	values, err := rows.Values()
	if err != nil {
		return nil, err
	}
	row := make(remote.Row, len(spec.columns))
	for i, col := range spec.columns {
		row[col] = normalize(values[i])
	}
	return row, nil
}

// normalize converts driver-level values into the plain Go types rows carry.
func normalize(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	default:
		return v
	}
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asTime(v any) time.Time {
	t, _ := v.(time.Time)
	return t
}

func unknownCollection(collection string) error {
	return &remote.Error{Code: "42P01", Message: fmt.Sprintf("unknown collection %q", collection)}
}

func unknownColumn(collection, column string) error {
	return &remote.Error{Code: "42703", Message: fmt.Sprintf("unknown column %q in %q", column, collection)}
}

// translate maps driver errors into the typed remote error contract.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := pgErr.Code
		if code == remote.CodeUniqueViolation && pgErr.ConstraintName == pendingGuardConstraint {
			code = remote.CodeAlreadyTracking
		}
		return &remote.Error{Code: code, Message: pgErr.Message, Details: pgErr.Detail}
	}
	return err
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	PartitionKeyFn func(remote.Row) string
}

var eventCatalog = map[string]EventMetadata{
	"activity.started": {
		Topic:          outbox.TopicActivityEvents,
		PartitionKeyFn: func(row remote.Row) string { return asString(row["user_id"]) },
	},
	"activity.finished": {
		Topic:          outbox.TopicActivityEvents,
		PartitionKeyFn: func(row remote.Row) string { return asString(row["user_id"]) },
	},
	"activity.updated": {
		Topic:          outbox.TopicActivityEvents,
		PartitionKeyFn: func(row remote.Row) string { return asString(row["user_id"]) },
	},
	"activity.deleted": {
		Topic:          outbox.TopicActivityEvents,
		PartitionKeyFn: func(row remote.Row) string { return asString(row["user_id"]) },
	},
}
