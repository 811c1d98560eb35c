package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EnrollmentStatus is the lifecycle of a booking.
type EnrollmentStatus string

const (
	EnrollmentStatusPending   EnrollmentStatus = "pending"
	EnrollmentStatusApproved  EnrollmentStatus = "approved"
	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusOngoing   EnrollmentStatus = "ongoing"
	EnrollmentStatusPassed    EnrollmentStatus = "passed"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusFailed    EnrollmentStatus = "failed"
)

// ActiveEnrollmentStatuses hold a vehicle unit for their booked windows.
var ActiveEnrollmentStatuses = []EnrollmentStatus{
	EnrollmentStatusPending,
	EnrollmentStatusApproved,
	EnrollmentStatusActive,
	EnrollmentStatusOngoing,
}

var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentStatusPending:  {EnrollmentStatusApproved, EnrollmentStatusFailed},
	EnrollmentStatusApproved: {EnrollmentStatusActive, EnrollmentStatusOngoing, EnrollmentStatusPassed, EnrollmentStatusCompleted, EnrollmentStatusFailed},
	EnrollmentStatusActive:   {EnrollmentStatusOngoing, EnrollmentStatusPassed, EnrollmentStatusCompleted, EnrollmentStatusFailed},
	EnrollmentStatusOngoing:  {EnrollmentStatusPassed, EnrollmentStatusCompleted, EnrollmentStatusFailed},
}

// CanTransition reports whether staff may move an enrollment from s to next.
func (s EnrollmentStatus) CanTransition(next EnrollmentStatus) bool {
	for _, allowed := range enrollmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentType is what the applicant chose to pay up front.
type PaymentType string

const (
	PaymentTypeFull    PaymentType = "full"
	PaymentTypePartial PaymentType = "partial"
)

// PaymentStatus is recorded from the payment type at booking time.
type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusPartial PaymentStatus = "partial"
)

// Enrollment is a student's booking of a course.
type Enrollment struct {
	ID                   string           `db:"id" json:"id"`
	StudentID            string           `db:"student_id" json:"student_id"`
	CourseID             string           `db:"course_id" json:"course_id"`
	ScheduleID           *string          `db:"schedule_id" json:"schedule_id,omitempty"`
	Address              string           `db:"address" json:"address"`
	ContactNumber        string           `db:"contact_number" json:"contact_number"`
	GCashReferenceNumber string           `db:"gcash_reference_number" json:"gcash_reference_number"`
	ProofImage           string           `db:"proof_image" json:"proof_image"`
	Birthday             string           `db:"birthday" json:"birthday"`
	Age                  int              `db:"age" json:"age"`
	Nationality          string           `db:"nationality" json:"nationality"`
	CivilStatus          string           `db:"civil_status" json:"civil_status"`
	Gender               string           `db:"gender" json:"gender"`
	IsPregnant           bool             `db:"is_pregnant" json:"is_pregnant"`
	IsPWD                bool             `db:"is_pwd" json:"is_pwd"`
	PaymentType          PaymentType      `db:"payment_type" json:"payment_type"`
	PaymentStatus        PaymentStatus    `db:"payment_status" json:"payment_status"`
	AmountPaid           decimal.Decimal  `db:"amount_paid" json:"amount_paid"`
	Status               EnrollmentStatus `db:"status" json:"status"`
	VehicleCategory      *string          `db:"vehicle_category" json:"vehicle_category,omitempty"`
	VehicleType          *string          `db:"vehicle_type" json:"vehicle_type,omitempty"`
	InstructorID         *string          `db:"instructor_id" json:"instructor_id,omitempty"`
	CreatedAt            time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentScheduleLink is one day of a multi-day booking.
type EnrollmentScheduleLink struct {
	EnrollmentID string `db:"enrollment_id" json:"enrollment_id"`
	ScheduleID   string `db:"schedule_id" json:"schedule_id"`
	DayNumber    int    `db:"day_number" json:"day_number"`
}

// RosterEntry is one enrollment row of a schedule roster export.
type RosterEntry struct {
	EnrollmentID  string           `db:"enrollment_id"`
	StudentID     string           `db:"student_id"`
	StudentName   string           `db:"student_name"`
	ContactNumber string           `db:"contact_number"`
	CourseName    string           `db:"course_name"`
	DayNumber     *int             `db:"day_number"`
	Status        EnrollmentStatus `db:"status"`
	PaymentStatus PaymentStatus    `db:"payment_status"`
	AmountPaid    decimal.Decimal  `db:"amount_paid"`
}
