package writequeue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "github.com/ohartl/knowbase/internal/errors"
	"github.com/ohartl/knowbase/internal/models"
)

// Resolution is the user's choice for a conflicted record.
type Resolution string

const (
	// ResolutionKeepLocal re-queues the local mutation, discarding the
	// server snapshot.
	ResolutionKeepLocal Resolution = "keep_local"

	// ResolutionKeepServer accepts the server state and drops the
	// local mutation.
	ResolutionKeepServer Resolution = "keep_server"
)

// Gate reports whether replay is currently allowed. Normally backed by
// the connectivity monitor's network availability.
type Gate func() bool

// Options configures a Queue.
type Options struct {
	// MaxPendingWrites bounds the queue; Enqueue fails fast beyond it.
	MaxPendingWrites int

	// MaxAttempts caps automatic retries of transient failures. Once
	// exhausted the record stays failed until retried manually.
	MaxAttempts int
}

// Queue is the durable write-behind queue over the pending_writes
// table. All feature stores funnel mutations through it instead of
// writing remote state directly.
type Queue struct {
	db       *sql.DB
	executor Executor
	gate     Gate
	opts     Options

	now func() time.Time
	log *logrus.Logger
}

// New creates a Queue over an already-migrated database.
func New(db *sql.DB, executor Executor, gate Gate, opts Options, log *logrus.Logger) *Queue {
	if opts.MaxPendingWrites <= 0 {
		opts.MaxPendingWrites = 500
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &Queue{
		db:       db,
		executor: executor,
		gate:     gate,
		opts:     opts,
		now:      time.Now,
		log:      log,
	}
}

// Enqueue persists a new pending mutation. Fails with ErrQueueFull when
// the queue is at capacity; no record is created in that case.
func (q *Queue) Enqueue(op models.OperationType, entityType models.EntityType, entityID string, payload []byte) (*models.PendingWrite, error) {
	now := q.now().UnixMilli()

	write := &models.PendingWrite{
		ID:         models.UUID(uuid.New().String()),
		Operation:  op,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    json.RawMessage(payload),
		CreatedAt:  now,
		UpdatedAt:  now,
		Status:     models.WriteStatusPending,
	}

	tx, err := q.db.Begin()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to begin enqueue", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM pending_writes").Scan(&count); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to count pending writes", err)
	}
	if count >= q.opts.MaxPendingWrites {
		return nil, apperrors.New(apperrors.ErrQueueFull,
			fmt.Sprintf("pending writes at capacity (%d)", q.opts.MaxPendingWrites))
	}

	query := `
	INSERT INTO pending_writes (id, operation, entity_type, entity_id, payload,
		created_at, updated_at, attempts, status, next_retry_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, 0)`
	_, err = tx.Exec(query, write.ID, string(write.Operation), string(write.EntityType),
		nullable(write.EntityID), []byte(write.Payload), write.CreatedAt, write.UpdatedAt,
		string(write.Status))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to persist pending write", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to commit enqueue", err)
	}

	if q.log != nil {
		q.log.WithFields(logrus.Fields{
			"id":          write.ID,
			"operation":   write.Operation,
			"entity_type": write.EntityType,
			"entity_id":   write.EntityID,
		}).Debug("enqueued pending write")
	}

	return write, nil
}

// PendingCount returns the number of records currently in the queue,
// regardless of status.
func (q *Queue) PendingCount() (int, error) {
	var count int
	err := q.db.QueryRow("SELECT COUNT(*) FROM pending_writes").Scan(&count)
	return count, err
}

// ProcessQueue drains the queue in enqueue order. A no-op while replay
// is gated off (network unavailable); use ProcessQueueNow for a manual
// retry that bypasses the gate.
func (q *Queue) ProcessQueue(ctx context.Context) error {
	if q.gate != nil && !q.gate() {
		return nil
	}
	return q.drain(ctx)
}

// ProcessQueueNow drains the queue regardless of the gate.
func (q *Queue) ProcessQueueNow(ctx context.Context) error {
	return q.drain(ctx)
}

func (q *Queue) drain(ctx context.Context) error {
	now := q.now().UnixMilli()

	// Crash recovery: records left in_flight by an interrupted run were
	// never confirmed, so they go back to pending. Successful ones were
	// deleted atomically with execution and cannot reappear here.
	if _, err := q.db.Exec(
		"UPDATE pending_writes SET status = ?, updated_at = ? WHERE status = ?",
		string(models.WriteStatusPending), now, string(models.WriteStatusInFlight)); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to recover in-flight writes", err)
	}

	// Transient failures re-enter the queue once their backoff window
	// has elapsed, until attempts run out. Conflicts never auto-retry.
	if _, err := q.db.Exec(`
		UPDATE pending_writes SET status = ?, updated_at = ?
		WHERE status = ? AND conflict_reason IS NULL
		  AND attempts < ? AND next_retry_at <= ?`,
		string(models.WriteStatusPending), now,
		string(models.WriteStatusFailed), q.opts.MaxAttempts, now); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to re-queue transient failures", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		write, ok, err := q.claimNext()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		q.executeOne(ctx, write)
	}
}

// claimNext marks the oldest ready pending record in_flight and
// returns it.
func (q *Queue) claimNext() (*models.PendingWrite, bool, error) {
	now := q.now().UnixMilli()

	write, err := q.scanOne(q.db.QueryRow(`
		SELECT id, operation, entity_type, entity_id, payload, created_at, updated_at,
		       attempts, status, next_retry_at, last_error, conflict_reason, server_snapshot
		FROM pending_writes
		WHERE status = ? AND next_retry_at <= ?
		ORDER BY created_at, rowid
		LIMIT 1`, string(models.WriteStatusPending), now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrDatabase, "failed to read next pending write", err)
	}

	res, err := q.db.Exec(
		"UPDATE pending_writes SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(models.WriteStatusInFlight), now, write.ID, string(models.WriteStatusPending))
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.ErrDatabase, "failed to claim pending write", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		// Claimed by a concurrent drain; let that drain own it.
		return nil, false, nil
	}

	write.Status = models.WriteStatusInFlight
	return write, true, nil
}

// executeOne runs one claimed record through the executor and applies
// the resulting state transition.
func (q *Queue) executeOne(ctx context.Context, write *models.PendingWrite) {
	err := q.executor.Execute(ctx, write)
	now := q.now().UnixMilli()

	if err == nil {
		// Deleting the record is the single atomic commit of success;
		// a re-drain can never see it again.
		if _, delErr := q.db.Exec("DELETE FROM pending_writes WHERE id = ?", write.ID); delErr != nil && q.log != nil {
			q.log.WithField("id", write.ID).WithError(delErr).Error("failed to delete completed write")
		}
		if q.log != nil {
			q.log.WithFields(logrus.Fields{
				"id":        write.ID,
				"operation": write.Operation,
			}).Debug("replayed pending write")
		}
		return
	}

	attempts := write.Attempts + 1

	var conflict *ConflictError
	if errors.As(err, &conflict) {
		_, updErr := q.db.Exec(`
			UPDATE pending_writes
			SET status = ?, attempts = ?, updated_at = ?, last_error = ?,
			    conflict_reason = ?, server_snapshot = ?
			WHERE id = ?`,
			string(models.WriteStatusFailed), attempts, now, err.Error(),
			conflict.Reason, conflict.ServerSnapshot, write.ID)
		if updErr != nil && q.log != nil {
			q.log.WithField("id", write.ID).WithError(updErr).Error("failed to park conflicted write")
		}
		if q.log != nil {
			q.log.WithFields(logrus.Fields{
				"id":     write.ID,
				"reason": conflict.Reason,
			}).Warn("pending write conflicted, awaiting resolution")
		}
		return
	}

	backoff := calculateBackoff(attempts)
	_, updErr := q.db.Exec(`
		UPDATE pending_writes
		SET status = ?, attempts = ?, updated_at = ?, last_error = ?, next_retry_at = ?
		WHERE id = ?`,
		string(models.WriteStatusFailed), attempts, now, err.Error(),
		now+backoff.Milliseconds(), write.ID)
	if updErr != nil && q.log != nil {
		q.log.WithField("id", write.ID).WithError(updErr).Error("failed to record write failure")
	}
	if q.log != nil {
		q.log.WithFields(logrus.Fields{
			"id":       write.ID,
			"attempts": attempts,
			"backoff":  backoff.String(),
		}).WithError(err).Warn("pending write failed")
	}
}

// calculateBackoff doubles per attempt from a 30s base, capped at
// 30 minutes.
func calculateBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 10 {
		attempts = 10
	}
	backoff := time.Duration(1<<uint(attempts-1)) * 30 * time.Second
	if max := 30 * time.Minute; backoff > max {
		backoff = max
	}
	return backoff
}

// FetchPendingWrites returns every record in the queue in enqueue
// order.
func (q *Queue) FetchPendingWrites() ([]models.PendingWrite, error) {
	rows, err := q.db.Query(`
		SELECT id, operation, entity_type, entity_id, payload, created_at, updated_at,
		       attempts, status, next_retry_at, last_error, conflict_reason, server_snapshot
		FROM pending_writes
		ORDER BY created_at, rowid`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to fetch pending writes", err)
	}
	defer rows.Close()

	var writes []models.PendingWrite
	for rows.Next() {
		write, err := q.scanOne(rows)
		if err != nil {
			return nil, err
		}
		writes = append(writes, *write)
	}
	return writes, rows.Err()
}

// FetchConflicts returns the records parked on a conflict, oldest
// first.
func (q *Queue) FetchConflicts() ([]models.PendingWrite, error) {
	all, err := q.FetchPendingWrites()
	if err != nil {
		return nil, err
	}

	var conflicts []models.PendingWrite
	for _, w := range all {
		if w.InConflict() {
			conflicts = append(conflicts, w)
		}
	}
	return conflicts, nil
}

// ResolveConflict applies the user's choice to a conflicted record.
// keepLocal resets it to pending with a clean slate; keepServer deletes
// it.
func (q *Queue) ResolveConflict(id models.UUID, resolution Resolution) error {
	switch resolution {
	case ResolutionKeepLocal:
		res, err := q.db.Exec(`
			UPDATE pending_writes
			SET status = ?, attempts = 0, next_retry_at = 0, updated_at = ?,
			    last_error = NULL, conflict_reason = NULL, server_snapshot = NULL
			WHERE id = ? AND conflict_reason IS NOT NULL`,
			string(models.WriteStatusPending), q.now().UnixMilli(), id)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrDatabase, "failed to re-queue conflicted write", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return apperrors.New(apperrors.ErrWriteNotFound, fmt.Sprintf("no conflicted write %s", id))
		}
	case ResolutionKeepServer:
		res, err := q.db.Exec(
			"DELETE FROM pending_writes WHERE id = ? AND conflict_reason IS NOT NULL", id)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrDatabase, "failed to drop conflicted write", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return apperrors.New(apperrors.ErrWriteNotFound, fmt.Sprintf("no conflicted write %s", id))
		}
	default:
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown resolution %q", resolution))
	}

	if q.log != nil {
		q.log.WithFields(logrus.Fields{
			"id":         id,
			"resolution": resolution,
		}).Info("resolved write conflict")
	}
	return nil
}

// RetryFailed resets all non-conflict failed records to pending with a
// fresh attempt budget. Used for an explicit user-initiated retry.
func (q *Queue) RetryFailed() (int, error) {
	res, err := q.db.Exec(`
		UPDATE pending_writes
		SET status = ?, attempts = 0, next_retry_at = 0, last_error = NULL, updated_at = ?
		WHERE status = ? AND conflict_reason IS NULL`,
		string(models.WriteStatusPending), q.now().UnixMilli(),
		string(models.WriteStatusFailed))
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to reset failed writes", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PruneOldestWrites discards the oldest records beyond keeping,
// recovering from an overflowed queue without losing the most recent
// intent. Returns how many were dropped.
func (q *Queue) PruneOldestWrites(keeping int) (int, error) {
	if keeping < 0 {
		keeping = 0
	}

	res, err := q.db.Exec(`
		DELETE FROM pending_writes
		WHERE id NOT IN (
			SELECT id FROM pending_writes
			ORDER BY created_at DESC, rowid DESC
			LIMIT ?
		)`, keeping)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to prune pending writes", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 && q.log != nil {
		q.log.WithFields(logrus.Fields{
			"dropped": n,
			"keeping": keeping,
		}).Warn("pruned oldest pending writes")
	}
	return int(n), nil
}

// Stats returns per-status record counts.
func (q *Queue) Stats() (map[models.WriteStatus]int, error) {
	rows, err := q.db.Query("SELECT status, COUNT(*) FROM pending_writes GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[models.WriteStatus]int{
		models.WriteStatusPending:  0,
		models.WriteStatusInFlight: 0,
		models.WriteStatusFailed:   0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[models.WriteStatus(status)] = count
	}
	return stats, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (q *Queue) scanOne(row rowScanner) (*models.PendingWrite, error) {
	var w models.PendingWrite
	var entityID, lastError, conflictReason sql.NullString
	var payload, snapshot []byte

	err := row.Scan(&w.ID, &w.Operation, &w.EntityType, &entityID, &payload,
		&w.CreatedAt, &w.UpdatedAt, &w.Attempts, &w.Status, &w.NextRetryAt,
		&lastError, &conflictReason, &snapshot)
	if err != nil {
		return nil, err
	}

	w.Payload = json.RawMessage(payload)
	if entityID.Valid {
		w.EntityID = entityID.String
	}
	if lastError.Valid {
		w.LastError = lastError.String
	}
	if conflictReason.Valid {
		w.ConflictReason = conflictReason.String
	}
	if snapshot != nil {
		w.ServerSnapshot = json.RawMessage(snapshot)
	}
	return &w, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
