package models

import (
	"fmt"
	"time"
)

// VehicleClass identifies a shared fleet: branch x category x type.
type VehicleClass struct {
	BranchID string `json:"branch_id"`
	Category string `json:"vehicle_category"`
	Type     string `json:"vehicle_type"`
}

// LockKey is the advisory lock key serializing bookings of this class on day.
func (v VehicleClass) LockKey(day time.Time) string {
	return fmt.Sprintf("vehicle:%s:%s:%s:%s", v.BranchID, v.Category, v.Type, day.Format(DateLayout))
}

// VehicleUnitPool is one fleet row; several rows of a class are summed.
type VehicleUnitPool struct {
	ID         string `db:"id" json:"id"`
	BranchID   string `db:"branch_id" json:"branch_id"`
	Category   string `db:"vehicle_category" json:"vehicle_category"`
	Type       string `db:"vehicle_type" json:"vehicle_type"`
	TotalUnits int    `db:"total_units" json:"total_units"`
}

// BookedWindow is one active enrollment occupying a vehicle during a window.
type BookedWindow struct {
	EnrollmentID string `db:"enrollment_id"`
	StartTime    string `db:"start_time"`
	EndTime      string `db:"end_time"`
}

// VehicleAvailability is the ledger's answer for one class, day and window.
type VehicleAvailability struct {
	TotalUnits     int `json:"total_units"`
	Booked         int `json:"current_bookings"`
	AvailableUnits int `json:"available_units"`
}
