package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/drivingschool-api/internal/dto"
	"github.com/noah-isme/drivingschool-api/internal/models"
	appErrors "github.com/noah-isme/drivingschool-api/pkg/errors"
	"github.com/noah-isme/drivingschool-api/pkg/export"
	"github.com/noah-isme/drivingschool-api/pkg/logger"
)

type scheduleCatalog interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Schedule, error)
	ListBookable(ctx context.Context, branchID string, theoretical bool, from string) ([]models.Schedule, error)
	DeleteCascade(ctx context.Context, exec sqlx.ExtContext, id string) (int64, error)
}

type rosterReader interface {
	ListRoster(ctx context.Context, scheduleID string) ([]models.RosterEntry, error)
}

type listingCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	InvalidateAvailability(ctx context.Context)
}

// RosterExport is a rendered roster file.
type RosterExport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ScheduleService serves availability listings and staff schedule operations.
type ScheduleService struct {
	tx        transactor
	courses   bookingCourseReader
	schedules scheduleCatalog
	rosters   rosterReader
	ledger    *CapacityLedger
	cache     listingCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// ScheduleServiceDeps groups the collaborators of ScheduleService.
type ScheduleServiceDeps struct {
	Tx        transactor
	Courses   bookingCourseReader
	Schedules scheduleCatalog
	Rosters   rosterReader
	Ledger    *CapacityLedger
	Cache     listingCache
	CacheTTL  time.Duration
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewScheduleService wires the service. Cache is optional.
func NewScheduleService(deps ScheduleServiceDeps) *ScheduleService {
	if deps.Validator == nil {
		deps.Validator = NewValidator()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ScheduleService{
		tx:        deps.Tx,
		courses:   deps.Courses,
		schedules: deps.Schedules,
		rosters:   deps.Rosters,
		ledger:    deps.Ledger,
		cache:     deps.Cache,
		cacheTTL:  deps.CacheTTL,
		validator: deps.Validator,
		logger:    deps.Logger,
		now:       time.Now,
	}
}

// ListWithAvailability lists the course branch's upcoming schedules. Practical
// courses get each schedule annotated with free and total vehicle units.
func (s *ScheduleService) ListWithAvailability(ctx context.Context, courseID string) ([]models.ScheduleAvailability, error) {
	if courseID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course_id is required")
	}
	today := s.now().UTC().Format(models.DateLayout)
	key := availabilityCachePrefix + courseID + ":" + today

	var cached []models.ScheduleAvailability
	if s.cache != nil && s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	course, err := s.courses.FindByID(ctx, nil, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Internal(err, "failed to load course")
	}

	out := []models.ScheduleAvailability{}
	if course.Modality != models.ModalityOnlineTheoretical {
		practical := course.Modality == models.ModalityPractical
		schedules, err := s.schedules.ListBookable(ctx, course.BranchID, !practical, today)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to list schedules")
		}

		class, hasClass := course.VehicleClass()
		if practical && hasClass {
			if out, err = s.ledger.Annotate(ctx, class, schedules); err != nil {
				return nil, appErrors.Internal(err, "failed to compute vehicle availability")
			}
		} else {
			for _, sched := range schedules {
				out = append(out, models.ScheduleAvailability{Schedule: sched})
			}
		}
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, out, s.cacheTTL)
	}
	return out, nil
}

// CheckVehicleAvailability reports the tightest of the selected schedules:
// the fewest free units and the most concurrent bookings.
func (s *ScheduleService) CheckVehicleAvailability(ctx context.Context, req dto.CheckVehicleAvailabilityRequest) (*dto.VehicleAvailabilityResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validationMessage(err))
	}

	ids := uniqueStrings(req.ScheduleIDs)
	schedules, err := s.schedules.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load schedules")
	}
	found := make(map[string]bool, len(schedules))
	for _, sched := range schedules {
		found[sched.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule %s not found", id))
		}
	}

	var tightest *models.VehicleAvailability
	maxBooked := 0
	for _, sched := range schedules {
		day, err := sched.Day()
		if err != nil {
			return nil, appErrors.Internal(err, "invalid schedule date")
		}
		window, err := sched.Window()
		if err != nil {
			return nil, appErrors.Internal(err, "invalid schedule time")
		}
		class := models.VehicleClass{BranchID: sched.BranchID, Category: req.VehicleCategory, Type: req.VehicleType}
		avail, err := s.ledger.Availability(ctx, nil, class, day, window)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to compute vehicle availability")
		}
		if tightest == nil || avail.AvailableUnits < tightest.AvailableUnits {
			a := avail
			tightest = &a
		}
		if avail.Booked > maxBooked {
			maxBooked = avail.Booked
		}
	}

	return &dto.VehicleAvailabilityResponse{
		Available:       tightest.AvailableUnits > 0,
		AvailableUnits:  tightest.AvailableUnits,
		TotalUnits:      tightest.TotalUnits,
		CurrentBookings: maxBooked,
	}, nil
}

// Delete removes a schedule and the enrollments booked on it. Admins only.
func (s *ScheduleService) Delete(ctx context.Context, id string, claims *models.JWTClaims) (*dto.DeleteScheduleResult, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can delete schedules")
	}

	var removed int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		var err error
		removed, err = s.schedules.DeleteCascade(ctx, exec, id)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Internal(err, "failed to delete schedule")
	}

	if s.cache != nil {
		s.cache.InvalidateAvailability(ctx)
	}
	logger.FromContext(ctx, s.logger).Warn("schedule deleted",
		zap.String("schedule_id", id), zap.Int64("enrollments_deleted", removed), zap.String("by", claims.UserID))
	return &dto.DeleteScheduleResult{ScheduleID: id, EnrollmentsDeleted: removed}, nil
}

// ExportRoster renders everyone booked on the schedule as CSV or PDF.
func (s *ScheduleService) ExportRoster(ctx context.Context, id, format string) (*RosterExport, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf")
	}

	found, err := s.schedules.FindByIDs(ctx, []string{id})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load schedule")
	}
	if len(found) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
	}
	sched := found[0]

	entries, err := s.rosters.ListRoster(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load roster")
	}

	table := export.Table{
		Title:    "Schedule roster",
		Subtitle: fmt.Sprintf("%s (%d seats left)", sched.Label(), sched.Slots),
		Columns:  []string{"Student", "Contact", "Course", "Day", "Status", "Payment", "Amount paid"},
	}
	for _, e := range entries {
		day := ""
		if e.DayNumber != nil {
			day = strconv.Itoa(*e.DayNumber)
		}
		name := e.StudentName
		if name == "" {
			name = e.StudentID
		}
		table.Rows = append(table.Rows, []string{
			name, e.ContactNumber, e.CourseName, day, string(e.Status), string(e.PaymentStatus), e.AmountPaid.StringFixed(2),
		})
	}

	body, err := export.Render(table, f)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render roster")
	}
	return &RosterExport{
		Filename:    fmt.Sprintf("roster-%s.%s", id, f),
		ContentType: f.ContentType(),
		Body:        body,
	}, nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
