package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/drivingschool-api/internal/dto"
	"github.com/noah-isme/drivingschool-api/internal/models"
	"github.com/noah-isme/drivingschool-api/pkg/database"
	appErrors "github.com/noah-isme/drivingschool-api/pkg/errors"
	"github.com/noah-isme/drivingschool-api/pkg/events"
	"github.com/noah-isme/drivingschool-api/pkg/logger"
	"github.com/noah-isme/drivingschool-api/pkg/storage"
)

var (
	pwdRate          = decimal.RequireFromString("0.8")
	partialRate      = decimal.RequireFromString("0.5")
	paymentTolerance = decimal.RequireFromString("0.01")
)

type transactor interface {
	WithinTx(ctx context.Context, fn database.TxFunc) error
}

type bookingCourseReader interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error)
}

type bookingScheduleStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error)
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error)
	LockMany(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Schedule, error)
	LockGroup(ctx context.Context, exec sqlx.ExtContext, groupID string) ([]models.Schedule, error)
	DecrementSeat(ctx context.Context, exec sqlx.ExtContext, schedule models.Schedule) error
}

type bookingEnrollmentStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	CreateLinks(ctx context.Context, exec sqlx.ExtContext, links []models.EnrollmentScheduleLink) error
	ExistsForStudent(ctx context.Context, exec sqlx.ExtContext, studentID string, scheduleIDs []string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	UpdateStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) (bool, error)
}

type proofStorage interface {
	Save(r io.Reader) (string, error)
	Delete(name string) error
}

type bookingNotifier interface {
	EnrollmentCreated(ctx context.Context, evt events.EnrollmentCreated)
}

type availabilityCache interface {
	InvalidateAvailability(ctx context.Context)
}

type bookingMetrics interface {
	RecordEnrollment(modality string)
	RecordRejection(reason string)
	ObserveBooking(duration time.Duration)
	ObserveDBQuery(operation string, duration time.Duration)
}

// ProofUpload is the payment-proof file attached to a booking.
type ProofUpload struct {
	Reader   io.Reader
	Size     int64
	Filename string
}

// EnrollmentService books courses and manages the enrollment lifecycle.
type EnrollmentService struct {
	tx          transactor
	courses     bookingCourseReader
	schedules   bookingScheduleStore
	enrollments bookingEnrollmentStore
	ledger      *CapacityLedger
	proofs      proofStorage
	cache       availabilityCache
	notifier    bookingNotifier
	metrics     bookingMetrics
	validator   *validator.Validate
	logger      *zap.Logger
}

// EnrollmentServiceDeps groups the collaborators of EnrollmentService.
type EnrollmentServiceDeps struct {
	Tx          transactor
	Courses     bookingCourseReader
	Schedules   bookingScheduleStore
	Enrollments bookingEnrollmentStore
	Ledger      *CapacityLedger
	Proofs      proofStorage
	Cache       availabilityCache
	Notifier    bookingNotifier
	Metrics     bookingMetrics
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewEnrollmentService wires the service. Cache, Notifier and Metrics are optional.
func NewEnrollmentService(deps EnrollmentServiceDeps) *EnrollmentService {
	if deps.Validator == nil {
		deps.Validator = NewValidator()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = (*MetricsService)(nil)
	}
	return &EnrollmentService{
		tx:          deps.Tx,
		courses:     deps.Courses,
		schedules:   deps.Schedules,
		enrollments: deps.Enrollments,
		ledger:      deps.Ledger,
		proofs:      deps.Proofs,
		cache:       deps.Cache,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		validator:   deps.Validator,
		logger:      deps.Logger,
	}
}

// ExpectedPayment applies the PWD discount and the partial-payment share to price.
func ExpectedPayment(price decimal.Decimal, pwd bool, paymentType models.PaymentType) decimal.Decimal {
	expected := price
	if pwd {
		expected = expected.Mul(pwdRate)
	}
	if paymentType == models.PaymentTypePartial {
		expected = expected.Mul(partialRate)
	}
	return expected
}

// PaymentMatches reports whether paid is within one cent of expected.
func PaymentMatches(paid, expected decimal.Decimal) bool {
	return paid.Sub(expected).Abs().LessThanOrEqual(paymentTolerance)
}

// Enroll validates the request, stores the payment proof and books the course
// in one transaction. Either every row is written or none is; a failed
// booking also removes the stored proof.
func (s *EnrollmentService) Enroll(ctx context.Context, req dto.EnrollRequest, proof ProofUpload, claims *models.JWTClaims) (*dto.EnrollResult, error) {
	if claims == nil || claims.UserID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	log := logger.FromContext(ctx, s.logger).With(zap.String("student_id", claims.UserID), zap.String("course_id", req.CourseID))

	if err := s.validator.Struct(req); err != nil {
		s.metrics.RecordRejection(RejectValidation)
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validationMessage(err))
	}
	if proof.Reader == nil || proof.Size <= 0 {
		s.metrics.RecordRejection(RejectValidation)
		return nil, appErrors.Clone(appErrors.ErrValidation, "proof_image is required")
	}
	paid, err := decimal.NewFromString(req.AmountPaid)
	if err != nil || paid.IsNegative() {
		s.metrics.RecordRejection(RejectValidation)
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount_paid must be a non-negative number")
	}

	proofName, err := s.proofs.Save(proof.Reader)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) || errors.Is(err, storage.ErrFileTooLarge) {
			s.metrics.RecordRejection(RejectValidation)
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "proof_image must be a JPEG, PNG, WebP or PDF within the size limit")
		}
		s.metrics.RecordRejection(RejectInternal)
		return nil, appErrors.Internal(err, "failed to store payment proof")
	}

	booking := &bookingAttempt{
		req:   req,
		paid:  paid,
		proof: proofName,
		claim: claims,
	}

	start := time.Now()
	err = s.tx.WithinTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		return s.book(ctx, exec, booking)
	})
	s.metrics.ObserveBooking(time.Since(start))
	if err != nil {
		if delErr := s.proofs.Delete(proofName); delErr != nil {
			log.Warn("failed to remove proof of rejected booking", zap.String("proof", proofName), zap.Error(delErr))
		}
		appErr := classifyBookingError(err)
		s.metrics.RecordRejection(rejectionReason(appErr))
		if appErr.Status >= 500 {
			log.Error("booking transaction failed", zap.Error(err))
		} else {
			log.Info("booking rejected", zap.String("code", appErr.Code), zap.String("reason", appErr.Message))
		}
		return nil, appErr
	}

	s.afterCommit(ctx, booking)
	log.Info("enrollment created",
		zap.String("enrollment_id", booking.enrollment.ID),
		zap.String("modality", string(booking.course.Modality)),
		zap.Strings("schedule_ids", booking.scheduleIDs))

	result := &dto.EnrollResult{
		Message:    "Enrollment submitted successfully",
		Enrollment: booking.enrollment,
	}
	if booking.linked {
		count := len(booking.scheduleIDs)
		result.SchedulesCount = &count
	}
	return result, nil
}

// bookingAttempt carries one request through the transaction.
type bookingAttempt struct {
	req   dto.EnrollRequest
	paid  decimal.Decimal
	proof string
	claim *models.JWTClaims

	course      *models.Course
	enrollment  *models.Enrollment
	scheduleIDs []string
	linked      bool
}

func (s *EnrollmentService) book(ctx context.Context, exec sqlx.ExtContext, b *bookingAttempt) error {
	start := time.Now()
	course, err := s.courses.FindByID(ctx, exec, b.req.CourseID)
	s.metrics.ObserveDBQuery("find_course", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Internal(err, "failed to load course")
	}
	b.course = course

	paymentType := models.PaymentType(b.req.PaymentType)
	expected := ExpectedPayment(course.Price, b.req.IsPWD, paymentType)
	if !PaymentMatches(b.paid, expected) {
		return appErrors.Clone(appErrors.ErrPaymentMismatch,
			fmt.Sprintf("amount paid %s does not match expected amount %s", b.paid.String(), expected.StringFixed(2)))
	}

	b.enrollment = s.newEnrollment(b, paymentType)
	sel := b.req.Selection

	switch course.Modality {
	case models.ModalityOnlineTheoretical:
		return s.enrollments.Create(ctx, exec, b.enrollment)

	case models.ModalityPractical:
		if sel.Kind == dto.SelectionNone {
			return appErrors.Clone(appErrors.ErrValidation, "practical courses require schedule_ids")
		}
		class, ok := course.VehicleClass()
		if !ok {
			return appErrors.Clone(appErrors.ErrCapacityExhausted, "course has no vehicle category and type configured")
		}
		return s.bookDays(ctx, exec, b, sel.ScheduleIDs, &class)

	case models.ModalityClassroomTheoretical:
		switch sel.Kind {
		case dto.SelectionMulti:
			return s.bookDays(ctx, exec, b, sel.ScheduleIDs, nil)
		case dto.SelectionSingle:
			return s.bookGroupedSeat(ctx, exec, b, sel.Single())
		case dto.SelectionNone:
			return appErrors.Clone(appErrors.ErrValidation, "schedule_id or schedule_ids is required for classroom courses")
		}
	}
	return appErrors.Internal(fmt.Errorf("modality %q with selection %s", course.Modality, sel.Kind), "unsupported booking combination")
}

func (s *EnrollmentService) newEnrollment(b *bookingAttempt, paymentType models.PaymentType) *models.Enrollment {
	status := models.PaymentStatusPaid
	if paymentType == models.PaymentTypePartial {
		status = models.PaymentStatusPartial
	}
	return &models.Enrollment{
		StudentID:            b.claim.UserID,
		CourseID:             b.course.ID,
		Address:              b.req.Address,
		ContactNumber:        b.req.ContactNumber,
		GCashReferenceNumber: b.req.GCashReferenceNumber,
		ProofImage:           b.proof,
		Birthday:             b.req.Birthday,
		Age:                  b.req.Age,
		Nationality:          b.req.Nationality,
		CivilStatus:          b.req.CivilStatus,
		Gender:               b.req.Gender,
		IsPregnant:           b.req.IsPregnant,
		IsPWD:                b.req.IsPWD,
		PaymentType:          paymentType,
		PaymentStatus:        status,
		AmountPaid:           b.paid,
		Status:               models.EnrollmentStatusPending,
	}
}

// bookDays books one schedule per day. Row locks are taken in id order, then
// (for practical courses) the vehicle class is locked per day in date order,
// then every day is checked in request order. Writes start only after every
// check passed.
func (s *EnrollmentService) bookDays(ctx context.Context, exec sqlx.ExtContext, b *bookingAttempt, ids []string, class *models.VehicleClass) error {
	total := 0
	if class != nil {
		var err error
		if total, err = s.ledger.TotalUnits(ctx, exec, *class); err != nil {
			return appErrors.Internal(err, "failed to read vehicle fleet")
		}
		if total <= 0 {
			return appErrors.Clone(appErrors.ErrCapacityExhausted,
				fmt.Sprintf("no %s %s vehicles are available at this branch", class.Type, class.Category))
		}
	}

	start := time.Now()
	locked, err := s.lockSchedules(ctx, exec, ids)
	s.metrics.ObserveDBQuery("lock_schedules", time.Since(start))
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.checkSession(b.course, locked[id], class != nil); err != nil {
			return err
		}
	}

	days := make(map[string]time.Time, len(ids))
	windows := make(map[string]models.TimeWindow, len(ids))
	for _, id := range ids {
		sched := locked[id]
		day, err := sched.Day()
		if err != nil {
			return appErrors.Internal(err, "invalid schedule date")
		}
		window, err := sched.Window()
		if err != nil {
			return appErrors.Internal(err, "invalid schedule time")
		}
		days[id], windows[id] = day, window
	}

	if class != nil {
		lockDays := make([]time.Time, 0, len(days))
		for _, d := range days {
			lockDays = append(lockDays, d)
		}
		start := time.Now()
		err := s.ledger.LockDays(ctx, exec, *class, lockDays)
		s.metrics.ObserveDBQuery("advisory_lock", time.Since(start))
		if err != nil {
			return appErrors.Internal(err, "failed to lock vehicle class")
		}
	}

	// Earlier days of this same request hold a vehicle too.
	claimed := map[string][]models.BookedWindow{}
	booked := map[string][]models.BookedWindow{}
	for _, id := range ids {
		sched := locked[id]
		if sched.Slots <= 0 {
			return appErrors.Clone(appErrors.ErrCapacityExhausted,
				fmt.Sprintf("no slots left for schedule on %s", sched.Label()))
		}
		if class == nil {
			continue
		}
		dayKey := days[id].Format(models.DateLayout)
		existing, ok := booked[dayKey]
		if !ok {
			start := time.Now()
			existing, err = s.ledger.BookedWindows(ctx, exec, *class, days[id])
			s.metrics.ObserveDBQuery("booked_windows", time.Since(start))
			if err != nil {
				return appErrors.Internal(err, "failed to read vehicle bookings")
			}
			booked[dayKey] = existing
		}
		all := append(append([]models.BookedWindow{}, existing...), claimed[dayKey]...)
		if avail := s.ledger.Evaluate(total, all, windows[id]); avail.AvailableUnits <= 0 {
			return appErrors.Clone(appErrors.ErrCapacityExhausted,
				fmt.Sprintf("no vehicles available on %s", sched.Label()))
		}
		claimed[dayKey] = append(claimed[dayKey], models.BookedWindow{
			EnrollmentID: "this-request", StartTime: sched.StartTime, EndTime: sched.EndTime,
		})
	}

	if class != nil {
		category, vehicleType := class.Category, class.Type
		b.enrollment.VehicleCategory = &category
		b.enrollment.VehicleType = &vehicleType
	}
	if err := s.enrollments.Create(ctx, exec, b.enrollment); err != nil {
		return appErrors.Internal(err, "failed to create enrollment")
	}

	links := make([]models.EnrollmentScheduleLink, len(ids))
	for i, id := range ids {
		links[i] = models.EnrollmentScheduleLink{EnrollmentID: b.enrollment.ID, ScheduleID: id, DayNumber: i + 1}
	}
	if err := s.enrollments.CreateLinks(ctx, exec, links); err != nil {
		return appErrors.Internal(err, "failed to link schedules")
	}
	for _, id := range ids {
		// Day links reserve exactly the listed rows, never the whole group.
		day := *locked[id]
		day.GroupID = nil
		if err := s.schedules.DecrementSeat(ctx, exec, day); err != nil {
			return appErrors.Internal(err, "failed to reserve seat")
		}
	}

	b.scheduleIDs = ids
	b.linked = true
	return nil
}

// lockSchedules locks every requested row in one statement. The database
// orders the locks by id, the same order LockGroup uses.
func (s *EnrollmentService) lockSchedules(ctx context.Context, exec sqlx.ExtContext, ids []string) (map[string]*models.Schedule, error) {
	rows, err := s.schedules.LockMany(ctx, exec, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to lock schedules")
	}
	locked := make(map[string]*models.Schedule, len(rows))
	for i := range rows {
		locked[rows[i].ID] = &rows[i]
	}
	for _, id := range ids {
		if locked[id] == nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule %s not found", id))
		}
	}
	return locked, nil
}

// checkSession rejects a schedule from another branch or of the wrong kind.
// The fleet a booking is checked against belongs to the course's branch.
func (s *EnrollmentService) checkSession(course *models.Course, sched *models.Schedule, practical bool) error {
	if sched.BranchID != course.BranchID {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("schedule %s belongs to another branch", sched.ID))
	}
	if sched.IsTheoretical == practical {
		kind := "practical"
		if !practical {
			kind = "classroom"
		}
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("schedule %s is not a %s session", sched.ID, kind))
	}
	return nil
}

// bookGroupedSeat is the legacy single-schedule path. A schedule paired with
// other days through group_id reserves a seat on every day of the group. The
// whole group is locked in id order, so two students picking different days
// of one pair cannot deadlock.
func (s *EnrollmentService) bookGroupedSeat(ctx context.Context, exec sqlx.ExtContext, b *bookingAttempt, id string) error {
	notFound := appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule %s not found", id))

	unlocked, err := s.schedules.FindByID(ctx, exec, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound
		}
		return appErrors.Internal(err, "failed to load schedule")
	}

	if err := s.checkSession(b.course, unlocked, false); err != nil {
		return err
	}

	var (
		sched   *models.Schedule
		members []models.Schedule
	)
	start := time.Now()
	if unlocked.Grouped() {
		if members, err = s.schedules.LockGroup(ctx, exec, *unlocked.GroupID); err != nil {
			return appErrors.Internal(err, "failed to lock schedule group")
		}
		for i := range members {
			if members[i].ID == id {
				sched = &members[i]
			}
		}
		if sched == nil {
			return notFound
		}
	} else {
		if sched, err = s.schedules.LockForUpdate(ctx, exec, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return notFound
			}
			return appErrors.Internal(err, "failed to lock schedule")
		}
		members = []models.Schedule{*sched}
	}
	s.metrics.ObserveDBQuery("lock_group", time.Since(start))

	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.Slots <= 0 {
			return appErrors.Clone(appErrors.ErrCapacityExhausted,
				fmt.Sprintf("no slots left for schedule on %s", m.Label()))
		}
		ids = append(ids, m.ID)
	}

	exists, err := s.enrollments.ExistsForStudent(ctx, exec, b.claim.UserID, ids)
	if err != nil {
		return appErrors.Internal(err, "failed to check existing bookings")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrDuplicateBooking, "you are already enrolled in this schedule")
	}

	b.enrollment.ScheduleID = &sched.ID
	if err := s.enrollments.Create(ctx, exec, b.enrollment); err != nil {
		return appErrors.Internal(err, "failed to create enrollment")
	}
	if err := s.schedules.DecrementSeat(ctx, exec, *sched); err != nil {
		return appErrors.Internal(err, "failed to reserve seat")
	}
	b.scheduleIDs = []string{sched.ID}
	return nil
}

func (s *EnrollmentService) afterCommit(ctx context.Context, b *bookingAttempt) {
	s.metrics.RecordEnrollment(string(b.course.Modality))
	if s.cache != nil && len(b.scheduleIDs) > 0 {
		s.cache.InvalidateAvailability(ctx)
	}
	if s.notifier != nil {
		s.notifier.EnrollmentCreated(ctx, events.EnrollmentCreated{
			EnrollmentID:  b.enrollment.ID,
			StudentID:     b.enrollment.StudentID,
			CourseID:      b.enrollment.CourseID,
			Modality:      string(b.course.Modality),
			ScheduleIDs:   b.scheduleIDs,
			PaymentStatus: string(b.enrollment.PaymentStatus),
			AmountPaid:    b.enrollment.AmountPaid.StringFixed(2),
			OccurredAt:    time.Now().UTC(),
		})
	}
}

// Get returns a single enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Internal(err, "failed to load enrollment")
	}
	return enrollment, nil
}

// UpdateStatus moves an enrollment along its lifecycle.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, id string, req dto.UpdateEnrollmentStatusRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, validationMessage(err))
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := models.EnrollmentStatus(req.Status)
	if !current.Status.CanTransition(next) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move enrollment from %s to %s", current.Status, next))
	}
	updated, err := s.enrollments.UpdateStatus(ctx, id, current.Status, next)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to update enrollment status")
	}
	if !updated {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment status changed, reload and retry")
	}

	if s.cache != nil {
		s.cache.InvalidateAvailability(ctx)
	}
	logger.FromContext(ctx, s.logger).Info("enrollment status updated",
		zap.String("enrollment_id", id), zap.String("from", string(current.Status)), zap.String("to", string(next)))

	current.Status = next
	current.UpdatedAt = time.Now().UTC()
	return current, nil
}

func classifyBookingError(err error) *appErrors.Error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Internal(err, "failed to complete enrollment")
}

func rejectionReason(err *appErrors.Error) string {
	switch err.Code {
	case appErrors.ErrPaymentMismatch.Code:
		return RejectPayment
	case appErrors.ErrNotFound.Code:
		return RejectNotFound
	case appErrors.ErrCapacityExhausted.Code:
		return RejectCapacity
	case appErrors.ErrDuplicateBooking.Code:
		return RejectDuplicate
	case appErrors.ErrValidation.Code:
		return RejectValidation
	default:
		return RejectInternal
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
	}
	return "invalid request payload"
}
