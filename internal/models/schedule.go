package models

import (
	"fmt"
	"time"
)

// Schedule is a bookable session with a remaining-seat counter.
type Schedule struct {
	ID            string  `db:"id" json:"schedule_id"`
	BranchID      string  `db:"branch_id" json:"branch_id"`
	StartDate     string  `db:"start_date" json:"start_date"`
	StartTime     string  `db:"start_time" json:"start_time"`
	EndTime       string  `db:"end_time" json:"end_time"`
	Slots         int     `db:"slots" json:"slots"`
	IsTheoretical bool    `db:"is_theoretical" json:"is_theoretical"`
	GroupID       *string `db:"group_id" json:"group_id,omitempty"`
}

// Grouped reports whether the schedule is one day of a paired session.
func (s Schedule) Grouped() bool {
	return s.GroupID != nil && *s.GroupID != ""
}

// Day parses StartDate. Drivers may hand back a full timestamp; only the date
// part is used.
func (s Schedule) Day() (time.Time, error) {
	raw := s.StartDate
	if len(raw) > len(DateLayout) {
		raw = raw[:len(DateLayout)]
	}
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule %s: invalid start_date %q", s.ID, s.StartDate)
	}
	return d, nil
}

// Window parses the schedule's time bounds.
func (s Schedule) Window() (TimeWindow, error) {
	w, err := ParseTimeWindow(s.StartTime, s.EndTime)
	if err != nil {
		return TimeWindow{}, fmt.Errorf("schedule %s: %w", s.ID, err)
	}
	return w, nil
}

// Label names the schedule by date and time in user-facing messages.
func (s Schedule) Label() string {
	date := s.StartDate
	if len(date) > len(DateLayout) {
		date = date[:len(DateLayout)]
	}
	return fmt.Sprintf("%s %s-%s", date, trimSeconds(s.StartTime), trimSeconds(s.EndTime))
}

func trimSeconds(t string) string {
	if len(t) == len("15:04:05") {
		return t[:5]
	}
	return t
}

// ScheduleAvailability annotates a listed schedule with vehicle capacity.
type ScheduleAvailability struct {
	Schedule
	AvailableVehicles *int `json:"available_vehicles,omitempty"`
	TotalVehicles     *int `json:"total_vehicles,omitempty"`
}
