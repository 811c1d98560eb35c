package dto

// CheckVehicleAvailabilityRequest pre-checks capacity for a tentative selection.
type CheckVehicleAvailabilityRequest struct {
	VehicleCategory string   `json:"vehicle_category" validate:"required"`
	VehicleType     string   `json:"vehicle_type" validate:"required"`
	ScheduleIDs     []string `json:"schedule_ids" validate:"required,min=1,dive,required"`
}

// VehicleAvailabilityResponse reports the tightest schedule of the selection.
type VehicleAvailabilityResponse struct {
	Available       bool `json:"available"`
	AvailableUnits  int  `json:"available_units"`
	TotalUnits      int  `json:"total_units"`
	CurrentBookings int  `json:"current_bookings"`
}

// DeleteScheduleResult reports what a cascade delete removed.
type DeleteScheduleResult struct {
	ScheduleID         string `json:"schedule_id"`
	EnrollmentsDeleted int64  `json:"enrollments_deleted"`
}
