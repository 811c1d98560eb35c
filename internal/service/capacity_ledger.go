package service

import (
	"context"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/drivingschool-api/internal/models"
)

type vehicleLedgerStore interface {
	TotalUnits(ctx context.Context, exec sqlx.ExtContext, class models.VehicleClass) (int, error)
	BookedWindows(ctx context.Context, exec sqlx.ExtContext, class models.VehicleClass, day time.Time) ([]models.BookedWindow, error)
	LockClassDay(ctx context.Context, exec sqlx.ExtContext, class models.VehicleClass, day time.Time) error
}

// CapacityLedger derives free vehicle units for a class, day and window from
// the fleet total and the windows held by active enrollments. Listing and
// booking both go through it so they can never disagree on overlap.
type CapacityLedger struct {
	store  vehicleLedgerStore
	logger *zap.Logger
}

// NewCapacityLedger builds the ledger.
func NewCapacityLedger(store vehicleLedgerStore, logger *zap.Logger) *CapacityLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityLedger{store: store, logger: logger}
}

// TotalUnits returns the fleet size of the class.
func (l *CapacityLedger) TotalUnits(ctx context.Context, exec sqlx.ExtContext, class models.VehicleClass) (int, error) {
	return l.store.TotalUnits(ctx, exec, class)
}

// BookedWindows returns the windows held on day by active enrollments of class.
func (l *CapacityLedger) BookedWindows(ctx context.Context, exec sqlx.ExtContext, class models.VehicleClass, day time.Time) ([]models.BookedWindow, error) {
	return l.store.BookedWindows(ctx, exec, class, day)
}

// Availability answers how many units of class are free during window on day.
func (l *CapacityLedger) Availability(ctx context.Context, exec sqlx.ExtContext, class models.VehicleClass, day time.Time, window models.TimeWindow) (models.VehicleAvailability, error) {
	total, err := l.store.TotalUnits(ctx, exec, class)
	if err != nil {
		return models.VehicleAvailability{}, err
	}
	if total <= 0 {
		return models.VehicleAvailability{}, nil
	}
	booked, err := l.store.BookedWindows(ctx, exec, class, day)
	if err != nil {
		return models.VehicleAvailability{}, err
	}
	return l.Evaluate(total, booked, window), nil
}

// Evaluate counts distinct enrollments holding a window that overlaps window
// and subtracts them from total, never going below zero. A stored window that
// cannot be parsed is counted as overlapping.
func (l *CapacityLedger) Evaluate(total int, booked []models.BookedWindow, window models.TimeWindow) models.VehicleAvailability {
	if total <= 0 {
		return models.VehicleAvailability{}
	}
	holders := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		w, err := models.ParseTimeWindow(b.StartTime, b.EndTime)
		if err != nil {
			l.logger.Warn("unparseable booked window counted as conflict",
				zap.String("enrollment_id", b.EnrollmentID), zap.String("start", b.StartTime), zap.String("end", b.EndTime))
			holders[b.EnrollmentID] = struct{}{}
			continue
		}
		if w.Overlaps(window) {
			holders[b.EnrollmentID] = struct{}{}
		}
	}
	available := total - len(holders)
	if available < 0 {
		available = 0
	}
	return models.VehicleAvailability{TotalUnits: total, Booked: len(holders), AvailableUnits: available}
}

// LockDays serializes bookings of class on every given day. Days are locked
// once each in ascending order.
func (l *CapacityLedger) LockDays(ctx context.Context, exec sqlx.ExtContext, class models.VehicleClass, days []time.Time) error {
	for _, day := range distinctDays(days) {
		if err := l.store.LockClassDay(ctx, exec, class, day); err != nil {
			return err
		}
	}
	return nil
}

// Annotate attaches vehicle availability to each schedule, reading the booked
// windows of each distinct day once.
func (l *CapacityLedger) Annotate(ctx context.Context, class models.VehicleClass, schedules []models.Schedule) ([]models.ScheduleAvailability, error) {
	out := make([]models.ScheduleAvailability, len(schedules))
	if len(schedules) == 0 {
		return out, nil
	}
	total, err := l.store.TotalUnits(ctx, nil, class)
	if err != nil {
		return nil, err
	}

	byDay := map[string][]models.BookedWindow{}
	for i, sched := range schedules {
		out[i] = models.ScheduleAvailability{Schedule: sched}
		day, err := sched.Day()
		if err != nil {
			return nil, err
		}
		window, err := sched.Window()
		if err != nil {
			return nil, err
		}
		key := day.Format(models.DateLayout)
		booked, ok := byDay[key]
		if !ok && total > 0 {
			if booked, err = l.store.BookedWindows(ctx, nil, class, day); err != nil {
				return nil, err
			}
			byDay[key] = booked
		}
		avail := l.Evaluate(total, booked, window)
		available, fleet := avail.AvailableUnits, total
		out[i].AvailableVehicles = &available
		out[i].TotalVehicles = &fleet
	}
	return out, nil
}

func distinctDays(days []time.Time) []time.Time {
	seen := make(map[string]time.Time, len(days))
	for _, d := range days {
		seen[d.Format(models.DateLayout)] = d
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]time.Time, len(keys))
	for i, k := range keys {
		out[i] = seen[k]
	}
	return out
}
