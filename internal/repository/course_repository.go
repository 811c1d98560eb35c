package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/drivingschool-api/internal/models"
)

// CourseRepository reads the course catalog.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns sql.ErrNoRows when the course does not exist.
func (r *CourseRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error) {
	const query = `SELECT id, name, price, branch_id, vehicle_category, vehicle_type, modality FROM courses WHERE id = $1`
	var course models.Course
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}
