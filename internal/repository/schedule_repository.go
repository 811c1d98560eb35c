package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/drivingschool-api/internal/models"
)

const scheduleColumns = `id, branch_id, start_date::text AS start_date, start_time::text AS start_time, end_time::text AS end_time, slots, is_theoretical, group_id`

// ScheduleRepository owns the schedules table and its seat counters.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// FindByIDs loads schedules without locking. Missing ids are simply absent.
func (r *ScheduleRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ANY($1) ORDER BY start_date, start_time`
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find schedules: %w", err)
	}
	return schedules, nil
}

// ListBookable returns a branch's schedules on or after from.
func (r *ScheduleRepository) ListBookable(ctx context.Context, branchID string, theoretical bool, from string) ([]models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE branch_id = $1 AND is_theoretical = $2 AND start_date >= $3 ORDER BY start_date, start_time`
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, branchID, theoretical, from); err != nil {
		return nil, fmt.Errorf("list bookable schedules: %w", err)
	}
	return schedules, nil
}

// FindByID reads a schedule without locking it.
func (r *ScheduleRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`
	var schedule models.Schedule
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &schedule, query, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// LockForUpdate reads the schedule holding its row lock until the enclosing
// transaction ends. Returns sql.ErrNoRows for an unknown id.
func (r *ScheduleRepository) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1 FOR UPDATE`
	var schedule models.Schedule
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &schedule, query, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// LockMany locks the given rows in one statement. Locks are taken in id
// order, matching LockGroup. Unknown ids are simply absent from the result.
func (r *ScheduleRepository) LockMany(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	var schedules []models.Schedule
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &schedules, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("lock schedules: %w", err)
	}
	return schedules, nil
}

// LockGroup locks every day of a paired session in id order.
func (r *ScheduleRepository) LockGroup(ctx context.Context, exec sqlx.ExtContext, groupID string) ([]models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE group_id = $1 ORDER BY id FOR UPDATE`
	var schedules []models.Schedule
	if err := sqlx.SelectContext(ctx, pick(r.db, exec), &schedules, query, groupID); err != nil {
		return nil, fmt.Errorf("lock schedule group %s: %w", groupID, err)
	}
	return schedules, nil
}

// DecrementSeat takes one seat from the schedule, or from every day of its
// group. The caller must hold the row lock and have checked slots > 0.
func (r *ScheduleRepository) DecrementSeat(ctx context.Context, exec sqlx.ExtContext, schedule models.Schedule) error {
	query, arg := `UPDATE schedules SET slots = slots - 1 WHERE id = $1`, schedule.ID
	if schedule.Grouped() {
		query, arg = `UPDATE schedules SET slots = slots - 1 WHERE group_id = $1`, *schedule.GroupID
	}
	res, err := pick(r.db, exec).ExecContext(ctx, query, arg)
	if err != nil {
		return fmt.Errorf("decrement seat for schedule %s: %w", schedule.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement seat rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("decrement seat for schedule %s: %w", schedule.ID, sql.ErrNoRows)
	}
	return nil
}

// DeleteCascade removes the schedule, the enrollments booked on it directly
// and any day links pointing at it. exec should be a transaction. Returns the
// number of enrollments removed, or sql.ErrNoRows when the schedule is unknown.
func (r *ScheduleRepository) DeleteCascade(ctx context.Context, exec sqlx.ExtContext, id string) (int64, error) {
	target := pick(r.db, exec)

	var locked string
	if err := sqlx.GetContext(ctx, target, &locked, `SELECT id FROM schedules WHERE id = $1 FOR UPDATE`, id); err != nil {
		return 0, err
	}

	res, err := target.ExecContext(ctx, `DELETE FROM enrollments WHERE schedule_id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete schedule enrollments: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete schedule enrollments rows affected: %w", err)
	}

	if _, err := target.ExecContext(ctx, `DELETE FROM enrollment_schedules WHERE schedule_id = $1`, id); err != nil {
		return 0, fmt.Errorf("delete schedule links: %w", err)
	}
	if _, err := target.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id); err != nil {
		return 0, fmt.Errorf("delete schedule: %w", err)
	}
	return removed, nil
}
