package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/drivingschool-api/internal/models"
)

const enrollmentColumns = `id, student_id, course_id, schedule_id, address, contact_number, gcash_reference_number, proof_image,
birthday::text AS birthday, age, nationality, civil_status, gender, is_pregnant, is_pwd, payment_type, payment_status,
amount_paid, status, vehicle_category, vehicle_type, instructor_id, created_at, updated_at`

// EnrollmentRepository handles persistence of enrollments and their day links.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns sql.ErrNoRows when the enrollment does not exist.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Create inserts the enrollment, assigning id and timestamps when empty.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now

	const query = `INSERT INTO enrollments (id, student_id, course_id, schedule_id, address, contact_number, gcash_reference_number,
proof_image, birthday, age, nationality, civil_status, gender, is_pregnant, is_pwd, payment_type, payment_status, amount_paid,
status, vehicle_category, vehicle_type, created_at, updated_at)
VALUES (:id, :student_id, :course_id, :schedule_id, :address, :contact_number, :gcash_reference_number,
:proof_image, :birthday, :age, :nationality, :civil_status, :gender, :is_pregnant, :is_pwd, :payment_type, :payment_status, :amount_paid,
:status, :vehicle_category, :vehicle_type, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, pick(r.db, exec), query, enrollment); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

// CreateLinks inserts the day links of a multi-day booking.
func (r *EnrollmentRepository) CreateLinks(ctx context.Context, exec sqlx.ExtContext, links []models.EnrollmentScheduleLink) error {
	const query = `INSERT INTO enrollment_schedules (enrollment_id, schedule_id, day_number) VALUES ($1, $2, $3)`
	target := pick(r.db, exec)
	for _, link := range links {
		if _, err := target.ExecContext(ctx, query, link.EnrollmentID, link.ScheduleID, link.DayNumber); err != nil {
			return fmt.Errorf("insert enrollment day %d: %w", link.DayNumber, err)
		}
	}
	return nil
}

// ExistsForStudent reports whether the student already holds a non-failed
// enrollment on any of the schedules, directly or through a day link.
func (r *EnrollmentRepository) ExistsForStudent(ctx context.Context, exec sqlx.ExtContext, studentID string, scheduleIDs []string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM enrollments e WHERE e.student_id = $1 AND e.status <> $3 AND (e.schedule_id = ANY($2)
OR EXISTS (SELECT 1 FROM enrollment_schedules l WHERE l.enrollment_id = e.id AND l.schedule_id = ANY($2))))`
	var exists bool
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &exists, query, studentID, pq.Array(scheduleIDs), models.EnrollmentStatusFailed); err != nil {
		return false, fmt.Errorf("check existing booking: %w", err)
	}
	return exists, nil
}

// UpdateStatus moves the enrollment from one status to another. It reports
// false when the row is not in the expected status anymore.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) (bool, error) {
	const query = `UPDATE enrollments SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update enrollment status rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListRoster returns everyone booked on the schedule, directly or by day link.
func (r *EnrollmentRepository) ListRoster(ctx context.Context, scheduleID string) ([]models.RosterEntry, error) {
	const query = `SELECT e.id AS enrollment_id, e.student_id, COALESCE(u.full_name, '') AS student_name, e.contact_number,
c.name AS course_name, NULL::int AS day_number, e.status, e.payment_status, e.amount_paid
FROM enrollments e JOIN courses c ON c.id = e.course_id LEFT JOIN users u ON u.id = e.student_id
WHERE e.schedule_id = $1
UNION ALL
SELECT e.id AS enrollment_id, e.student_id, COALESCE(u.full_name, '') AS student_name, e.contact_number,
c.name AS course_name, l.day_number, e.status, e.payment_status, e.amount_paid
FROM enrollment_schedules l JOIN enrollments e ON e.id = l.enrollment_id JOIN courses c ON c.id = e.course_id
LEFT JOIN users u ON u.id = e.student_id
WHERE l.schedule_id = $1
ORDER BY student_name, enrollment_id`
	var entries []models.RosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, scheduleID); err != nil {
		return nil, fmt.Errorf("list schedule roster: %w", err)
	}
	return entries, nil
}
