package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Task is one queued unit of work: a GET against the task server. Tasks
// inserted inside an entity transaction become visible only when that
// transaction commits, which is what makes child-task enqueue atomic with the
// entity write.
type Task struct {
	ID       int64
	Queue    string
	URL      string
	Status   string
	Attempts int
}

// Task statuses.
const (
	TaskPending = "pending"
	TaskRunning = "running"
	TaskDone    = "done"
	TaskFailed  = "failed"
)

// EnqueueTask adds a task transactionally.
func (t *Tx) EnqueueTask(queue, url string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO tasks (queue, url, created) VALUES (?, ?, ?)`, queue, url, t.now())
	if err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", url, err)
	}
	return nil
}

// EnqueueTask adds a task outside any caller transaction; best effort
// fire-and-forget for non-transactional handlers.
func (s *Store) EnqueueTask(ctx context.Context, queue, url string) error {
	return s.RunInTransaction(ctx, func(tx *Tx) error {
		return tx.EnqueueTask(queue, url)
	})
}

// ClaimTask atomically takes the oldest runnable task off a queue, returning
// nil when the queue is empty.
func (s *Store) ClaimTask(ctx context.Context, queue string) (*Task, error) {
	var task *Task
	err := s.RunInTransaction(ctx, func(tx *Tx) error {
		row := tx.tx.QueryRowContext(ctx, `
			SELECT id, queue, url, status, attempts FROM tasks
			WHERE queue = ? AND status = ? AND (not_before IS NULL OR not_before <= ?)
			ORDER BY id LIMIT 1`, queue, TaskPending, s.Now().UTC())

		var claimed Task
		err := row.Scan(&claimed.ID, &claimed.Queue, &claimed.URL, &claimed.Status, &claimed.Attempts)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to claim task: %w", err)
		}
		if _, err := tx.tx.ExecContext(ctx,
			`UPDATE tasks SET status = ?, attempts = attempts + 1 WHERE id = ?`, TaskRunning, claimed.ID); err != nil {
			return fmt.Errorf("failed to mark task running: %w", err)
		}
		claimed.Status = TaskRunning
		claimed.Attempts++
		task = &claimed
		return nil
	})
	return task, err
}

// CompleteTask removes a finished task.
func (s *Store) CompleteTask(ctx context.Context, id int64) error {
	return s.RunInTransaction(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to complete task %d: %w", id, err)
		}
		return nil
	})
}

// RetryTask reschedules a task after a transient failure.
func (s *Store) RetryTask(ctx context.Context, id int64, backoff time.Duration) error {
	return s.RunInTransaction(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx,
			`UPDATE tasks SET status = ?, not_before = ? WHERE id = ?`,
			TaskPending, s.Now().UTC().Add(backoff), id); err != nil {
			return fmt.Errorf("failed to retry task %d: %w", id, err)
		}
		return nil
	})
}

// FailTask marks a task permanently failed. Failed tasks stay in the table
// for operator inspection but are never dispatched again.
func (s *Store) FailTask(ctx context.Context, id int64) error {
	return s.RunInTransaction(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx,
			`UPDATE tasks SET status = ? WHERE id = ?`, TaskFailed, id); err != nil {
			return fmt.Errorf("failed to fail task %d: %w", id, err)
		}
		return nil
	})
}

// PendingTasks counts the tasks still queued or running on a queue. The
// update-all sweep refuses to start while its queue is non-empty.
func (s *Store) PendingTasks(ctx context.Context, queue string) (int, error) {
	var count int
	err := s.RunInTransaction(ctx, func(tx *Tx) error {
		row := tx.tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM tasks WHERE queue = ? AND status IN (?, ?)`,
			queue, TaskPending, TaskRunning)
		return row.Scan(&count)
	})
	return count, err
}

// QueuedTasks lists pending and running tasks on a queue in dispatch order.
// Tests and the inspection endpoints use it.
func (s *Store) QueuedTasks(ctx context.Context, queue string) ([]*Task, error) {
	var tasks []*Task
	err := s.RunInTransaction(ctx, func(tx *Tx) error {
		rows, err := tx.tx.QueryContext(ctx, `
			SELECT id, queue, url, status, attempts FROM tasks
			WHERE queue = ? AND status IN (?, ?) ORDER BY id`, queue, TaskPending, TaskRunning)
		if err != nil {
			return fmt.Errorf("failed to list tasks: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var task Task
			if err := rows.Scan(&task.ID, &task.Queue, &task.URL, &task.Status, &task.Attempts); err != nil {
				return err
			}
			tasks = append(tasks, &task)
		}
		return rows.Err()
	})
	return tasks, err
}
