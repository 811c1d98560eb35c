package dto

import (
	"time"

	"github.com/noah-isme/drivingschool-api/internal/models"
)

// EnrollRequest is the multipart booking form. Selection is filled by the
// handler from schedule_id / schedule_ids before the service sees it.
type EnrollRequest struct {
	CourseID             string `form:"course_id" json:"course_id" validate:"required"`
	ScheduleID           string `form:"schedule_id" json:"schedule_id,omitempty"`
	ScheduleIDs          string `form:"schedule_ids" json:"schedule_ids,omitempty"`
	Address              string `form:"address" json:"address" validate:"required,max=500"`
	ContactNumber        string `form:"contact_number" json:"contact_number" validate:"required,max=32"`
	GCashReferenceNumber string `form:"gcash_reference_number" json:"gcash_reference_number" validate:"required,max=64"`
	Birthday             string `form:"birthday" json:"birthday" validate:"required,datetime=2006-01-02"`
	Age                  int    `form:"age" json:"age" validate:"required,min=1,max=120"`
	Nationality          string `form:"nationality" json:"nationality" validate:"required"`
	CivilStatus          string `form:"civil_status" json:"civil_status" validate:"required"`
	Gender               string `form:"gender" json:"gender" validate:"required"`
	IsPregnant           bool   `form:"is_pregnant" json:"is_pregnant"`
	IsPWD                bool   `form:"is_pwd" json:"is_pwd"`
	PaymentType          string `form:"payment_type" json:"payment_type" validate:"required,oneof=full partial"`
	AmountPaid           string `form:"amount_paid" json:"amount_paid" validate:"required,numeric"`
	VehicleCategory      string `form:"vehicle_category" json:"vehicle_category,omitempty"`
	VehicleType          string `form:"vehicle_type" json:"vehicle_type,omitempty"`

	Selection ScheduleSelection `form:"-" json:"-" validate:"-"`
}

// EnrollResult is returned after a booking commits.
type EnrollResult struct {
	Message        string             `json:"message"`
	Enrollment     *models.Enrollment `json:"enrollment"`
	SchedulesCount *int               `json:"schedules_count,omitempty"`
}

// UpdateEnrollmentStatusRequest moves an enrollment along its lifecycle.
type UpdateEnrollmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved active ongoing passed completed failed"`
}

// ProofLink is a short-lived download URL for a payment proof.
type ProofLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
