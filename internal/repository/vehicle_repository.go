package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/drivingschool-api/internal/models"
)

// VehicleRepository reads fleet totals and the vehicle bookings competing for them.
type VehicleRepository struct {
	db *sqlx.DB
}

// NewVehicleRepository constructs the repository.
func NewVehicleRepository(db *sqlx.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// TotalUnits sums the fleet rows of the class; 0 when none exist.
func (r *VehicleRepository) TotalUnits(ctx context.Context, exec sqlx.ExtContext, class models.VehicleClass) (int, error) {
	const query = `SELECT COALESCE(SUM(total_units), 0) FROM vehicle_units WHERE branch_id = $1 AND vehicle_category = $2 AND vehicle_type = $3`
	var total int
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &total, query, class.BranchID, class.Category, class.Type); err != nil {
		return 0, fmt.Errorf("sum vehicle units: %w", err)
	}
	return total, nil
}

// LockClassDay takes a transaction-scoped advisory lock for the class on day.
// It is released automatically at commit or rollback.
func (r *VehicleRepository) LockClassDay(ctx context.Context, exec sqlx.ExtContext, class models.VehicleClass, day time.Time) error {
	const query = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`
	if _, err := pick(r.db, exec).ExecContext(ctx, query, class.LockKey(day)); err != nil {
		return fmt.Errorf("advisory lock %s: %w", class.LockKey(day), err)
	}
	return nil
}

// BookedWindows lists the windows held by active enrollments of the class on
// day, through either day links or the legacy single schedule reference.
// Overlap is decided by the caller.
func (r *VehicleRepository) BookedWindows(ctx context.Context, exec sqlx.ExtContext, class models.VehicleClass, day time.Time) ([]models.BookedWindow, error) {
	const query = `SELECT e.id AS enrollment_id, s.start_time::text AS start_time, s.end_time::text AS end_time
FROM enrollments e
JOIN enrollment_schedules l ON l.enrollment_id = e.id
JOIN schedules s ON s.id = l.schedule_id
WHERE e.vehicle_category = $1 AND e.vehicle_type = $2 AND e.status = ANY($3) AND s.branch_id = $4 AND s.start_date = $5
UNION
SELECT e.id AS enrollment_id, s.start_time::text AS start_time, s.end_time::text AS end_time
FROM enrollments e
JOIN schedules s ON s.id = e.schedule_id
WHERE e.vehicle_category = $1 AND e.vehicle_type = $2 AND e.status = ANY($3) AND s.branch_id = $4 AND s.start_date = $5`

	statuses := make([]string, len(models.ActiveEnrollmentStatuses))
	for i, s := range models.ActiveEnrollmentStatuses {
		statuses[i] = string(s)
	}

	var windows []models.BookedWindow
	err := sqlx.SelectContext(ctx, pick(r.db, exec), &windows, query,
		class.Category, class.Type, pq.Array(statuses), class.BranchID, day.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("list booked vehicle windows: %w", err)
	}
	return windows, nil
}
