package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/drivingschool-api/internal/dto"
	"github.com/noah-isme/drivingschool-api/internal/models"
	"github.com/noah-isme/drivingschool-api/pkg/database"
	"github.com/noah-isme/drivingschool-api/pkg/events"
)

// fakeWorld is an in-memory stand-in for the booking tables. Transactions
// run concurrently: schedule rows and vehicle class days are guarded by
// per-key locks held until the transaction ends, like FOR UPDATE and
// pg_advisory_xact_lock, and a failed transaction replays its undo journal.
// A service that locks in inconsistent order deadlocks here too.
type fakeWorld struct {
	mu sync.Mutex

	courses     map[string]models.Course
	schedules   map[string]models.Schedule
	enrollments map[string]models.Enrollment
	links       []models.EnrollmentScheduleLink
	fleet       map[models.VehicleClass]int
	locks       map[string]*sync.Mutex
	lockedDays  []string
	seq         int

	savedProofs   []string
	deletedProofs []string
	invalidations int
	notified      []events.EnrollmentCreated
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		courses:     map[string]models.Course{},
		schedules:   map[string]models.Schedule{},
		enrollments: map[string]models.Enrollment{},
		fleet:       map[models.VehicleClass]int{},
		locks:       map[string]*sync.Mutex{},
	}
}

type fakeTxKey struct{}

type fakeTx struct {
	holds map[string]bool
	held  []*sync.Mutex
	undo  []func()
}

func txFrom(ctx context.Context) *fakeTx {
	tx, _ := ctx.Value(fakeTxKey{}).(*fakeTx)
	return tx
}

func (w *fakeWorld) WithinTx(ctx context.Context, fn database.TxFunc) error {
	tx := &fakeTx{holds: map[string]bool{}}
	defer func() {
		for i := len(tx.held) - 1; i >= 0; i-- {
			tx.held[i].Unlock()
		}
	}()

	if err := fn(context.WithValue(ctx, fakeTxKey{}, tx), nil); err != nil {
		w.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		w.mu.Unlock()
		return err
	}
	return nil
}

// lock blocks until the transaction in ctx holds key. Must be called without w.mu.
func (w *fakeWorld) lock(ctx context.Context, key string) {
	tx := txFrom(ctx)
	if tx == nil || tx.holds[key] {
		return
	}
	w.mu.Lock()
	m, ok := w.locks[key]
	if !ok {
		m = &sync.Mutex{}
		w.locks[key] = m
	}
	w.mu.Unlock()

	m.Lock()
	tx.holds[key] = true
	tx.held = append(tx.held, m)
}

// onRollback journals fn for the transaction in ctx. Callers hold w.mu, and
// fn runs with w.mu held.
func (w *fakeWorld) onRollback(ctx context.Context, fn func()) {
	if tx := txFrom(ctx); tx != nil {
		tx.undo = append(tx.undo, fn)
	}
}

func (w *fakeWorld) addCourse(c models.Course) {
	w.courses[c.ID] = c
}

func (w *fakeWorld) addSchedule(s models.Schedule) {
	if s.BranchID == "" {
		s.BranchID = "branch-1"
	}
	w.schedules[s.ID] = s
}

func (w *fakeWorld) slots(id string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.schedules[id].Slots
}

func (w *fakeWorld) enrollmentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.enrollments)
}

func (w *fakeWorld) linksOf(enrollmentID string) []models.EnrollmentScheduleLink {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.EnrollmentScheduleLink
	for _, l := range w.links {
		if l.EnrollmentID == enrollmentID {
			out = append(out, l)
		}
	}
	return out
}

type fakeCourses struct{ w *fakeWorld }

func (f fakeCourses) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Course, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	c, ok := f.w.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

type fakeSchedules struct{ w *fakeWorld }

func (f fakeSchedules) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	s, ok := f.w.schedules[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (f fakeSchedules) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Schedule, error) {
	f.w.lock(ctx, "schedule:"+id)
	return f.FindByID(ctx, exec, id)
}

// LockMany locks rows in id order, as ORDER BY id FOR UPDATE does.
func (f fakeSchedules) LockMany(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.Schedule, error) {
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)
	var out []models.Schedule
	for _, id := range ordered {
		f.w.lock(ctx, "schedule:"+id)
		if s, err := f.FindByID(ctx, exec, id); err == nil {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f fakeSchedules) LockGroup(ctx context.Context, exec sqlx.ExtContext, groupID string) ([]models.Schedule, error) {
	f.w.mu.Lock()
	var ids []string
	for id, s := range f.w.schedules {
		if s.GroupID != nil && *s.GroupID == groupID {
			ids = append(ids, id)
		}
	}
	f.w.mu.Unlock()
	return f.LockMany(ctx, exec, ids)
}

func (f fakeSchedules) DecrementSeat(ctx context.Context, exec sqlx.ExtContext, schedule models.Schedule) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var touched []string
	for id, s := range f.w.schedules {
		match := id == schedule.ID
		if schedule.Grouped() {
			match = s.GroupID != nil && *s.GroupID == *schedule.GroupID
		}
		if match {
			s.Slots--
			f.w.schedules[id] = s
			touched = append(touched, id)
		}
	}
	if len(touched) == 0 {
		return sql.ErrNoRows
	}
	f.w.onRollback(ctx, func() {
		for _, id := range touched {
			s := f.w.schedules[id]
			s.Slots++
			f.w.schedules[id] = s
		}
	})
	return nil
}

func (f fakeSchedules) FindByIDs(ctx context.Context, ids []string) ([]models.Schedule, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []models.Schedule
	for _, id := range ids {
		if s, ok := f.w.schedules[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f fakeSchedules) ListBookable(ctx context.Context, branchID string, theoretical bool, from string) ([]models.Schedule, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []models.Schedule
	for _, s := range f.w.schedules {
		if s.BranchID == branchID && s.IsTheoretical == theoretical && s.StartDate >= from {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate != out[j].StartDate {
			return out[i].StartDate < out[j].StartDate
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (f fakeSchedules) DeleteCascade(ctx context.Context, exec sqlx.ExtContext, id string) (int64, error) {
	f.w.lock(ctx, "schedule:"+id)
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	sched, ok := f.w.schedules[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	var gone []models.Enrollment
	for eid, e := range f.w.enrollments {
		if e.ScheduleID != nil && *e.ScheduleID == id {
			delete(f.w.enrollments, eid)
			gone = append(gone, e)
		}
	}
	var kept, cut []models.EnrollmentScheduleLink
	for _, l := range f.w.links {
		if l.ScheduleID != id {
			kept = append(kept, l)
		} else {
			cut = append(cut, l)
		}
	}
	f.w.links = kept
	delete(f.w.schedules, id)
	f.w.onRollback(ctx, func() {
		f.w.schedules[id] = sched
		for _, e := range gone {
			f.w.enrollments[e.ID] = e
		}
		f.w.links = append(f.w.links, cut...)
	})
	return int64(len(gone)), nil
}

type fakeEnrollments struct{ w *fakeWorld }

func (f fakeEnrollments) Create(ctx context.Context, exec sqlx.ExtContext, e *models.Enrollment) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	f.w.seq++
	e.ID = fmt.Sprintf("enr-%d", f.w.seq)
	e.CreatedAt = time.Now().UTC()
	e.UpdatedAt = e.CreatedAt
	f.w.enrollments[e.ID] = *e
	id := e.ID
	f.w.onRollback(ctx, func() { delete(f.w.enrollments, id) })
	return nil
}

func (f fakeEnrollments) CreateLinks(ctx context.Context, exec sqlx.ExtContext, links []models.EnrollmentScheduleLink) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	f.w.links = append(f.w.links, links...)
	f.w.onRollback(ctx, func() {
		kept := f.w.links[:0]
		for _, l := range f.w.links {
			if len(links) == 0 || l.EnrollmentID != links[0].EnrollmentID {
				kept = append(kept, l)
			}
		}
		f.w.links = kept
	})
	return nil
}

func (f fakeEnrollments) ExistsForStudent(ctx context.Context, exec sqlx.ExtContext, studentID string, scheduleIDs []string) (bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	wanted := map[string]bool{}
	for _, id := range scheduleIDs {
		wanted[id] = true
	}
	for _, e := range f.w.enrollments {
		if e.StudentID != studentID || e.Status == models.EnrollmentStatusFailed {
			continue
		}
		if e.ScheduleID != nil && wanted[*e.ScheduleID] {
			return true, nil
		}
		for _, l := range f.w.links {
			if l.EnrollmentID == e.ID && wanted[l.ScheduleID] {
				return true, nil
			}
		}
	}
	return false, nil
}

func (f fakeEnrollments) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	e, ok := f.w.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (f fakeEnrollments) UpdateStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) (bool, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	e, ok := f.w.enrollments[id]
	if !ok || e.Status != from {
		return false, nil
	}
	e.Status = to
	f.w.enrollments[id] = e
	return true, nil
}

func (f fakeEnrollments) ListRoster(ctx context.Context, scheduleID string) ([]models.RosterEntry, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var out []models.RosterEntry
	for _, e := range f.w.enrollments {
		if e.ScheduleID != nil && *e.ScheduleID == scheduleID {
			out = append(out, rosterEntry(e, nil))
		}
	}
	for _, l := range f.w.links {
		if l.ScheduleID == scheduleID {
			day := l.DayNumber
			out = append(out, rosterEntry(f.w.enrollments[l.EnrollmentID], &day))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnrollmentID < out[j].EnrollmentID })
	return out, nil
}

func rosterEntry(e models.Enrollment, day *int) models.RosterEntry {
	return models.RosterEntry{
		EnrollmentID:  e.ID,
		StudentID:     e.StudentID,
		ContactNumber: e.ContactNumber,
		DayNumber:     day,
		Status:        e.Status,
		PaymentStatus: e.PaymentStatus,
		AmountPaid:    e.AmountPaid,
	}
}

func (f fakeEnrollments) setStatus(id string, status models.EnrollmentStatus) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	e := f.w.enrollments[id]
	e.Status = status
	f.w.enrollments[id] = e
}

type fakeVehicles struct{ w *fakeWorld }

func (f fakeVehicles) TotalUnits(ctx context.Context, exec sqlx.ExtContext, class models.VehicleClass) (int, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	return f.w.fleet[class], nil
}

func (f fakeVehicles) BookedWindows(ctx context.Context, exec sqlx.ExtContext, class models.VehicleClass, day time.Time) ([]models.BookedWindow, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	date := day.Format(models.DateLayout)
	active := map[models.EnrollmentStatus]bool{}
	for _, s := range models.ActiveEnrollmentStatuses {
		active[s] = true
	}
	seen := map[string]bool{}
	var out []models.BookedWindow
	add := func(e models.Enrollment, scheduleID string) {
		s, ok := f.w.schedules[scheduleID]
		if !ok || s.BranchID != class.BranchID || s.StartDate != date {
			return
		}
		key := e.ID + "|" + s.StartTime + "|" + s.EndTime
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, models.BookedWindow{EnrollmentID: e.ID, StartTime: s.StartTime, EndTime: s.EndTime})
	}
	for _, e := range f.w.enrollments {
		if !active[e.Status] || e.VehicleCategory == nil || e.VehicleType == nil ||
			*e.VehicleCategory != class.Category || *e.VehicleType != class.Type {
			continue
		}
		if e.ScheduleID != nil {
			add(e, *e.ScheduleID)
		}
		for _, l := range f.w.links {
			if l.EnrollmentID == e.ID {
				add(e, l.ScheduleID)
			}
		}
	}
	return out, nil
}

func (f fakeVehicles) LockClassDay(ctx context.Context, exec sqlx.ExtContext, class models.VehicleClass, day time.Time) error {
	f.w.lock(ctx, class.LockKey(day))
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	f.w.lockedDays = append(f.w.lockedDays, class.LockKey(day))
	return nil
}

type fakeProofs struct{ w *fakeWorld }

func (f fakeProofs) Save(r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	name := fmt.Sprintf("proof-%d.png", len(f.w.savedProofs)+1)
	f.w.savedProofs = append(f.w.savedProofs, name)
	return name, nil
}

func (f fakeProofs) Delete(name string) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	f.w.deletedProofs = append(f.w.deletedProofs, name)
	return nil
}

type fakeAvailabilityCache struct{ w *fakeWorld }

func (f fakeAvailabilityCache) InvalidateAvailability(ctx context.Context) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	f.w.invalidations++
}

type fakeNotifier struct{ w *fakeWorld }

func (f fakeNotifier) EnrollmentCreated(ctx context.Context, evt events.EnrollmentCreated) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	f.w.notified = append(f.w.notified, evt)
}

func newBookingService(w *fakeWorld) *EnrollmentService {
	return NewEnrollmentService(EnrollmentServiceDeps{
		Tx:          w,
		Courses:     fakeCourses{w},
		Schedules:   fakeSchedules{w},
		Enrollments: fakeEnrollments{w},
		Ledger:      NewCapacityLedger(fakeVehicles{w}, nil),
		Proofs:      fakeProofs{w},
		Cache:       fakeAvailabilityCache{w},
		Notifier:    fakeNotifier{w},
	})
}

func strRef(s string) *string { return &s }

var testClass = models.VehicleClass{BranchID: "branch-1", Category: "car", Type: "manual"}

func practicalCourse(id string, price string) models.Course {
	return models.Course{
		ID:              id,
		Name:            "Practical Driving Course",
		Price:           decimal.RequireFromString(price),
		BranchID:        testClass.BranchID,
		VehicleCategory: strRef(testClass.Category),
		VehicleType:     strRef(testClass.Type),
		Modality:        models.ModalityPractical,
	}
}

func enrollRequest(courseID, amount string, sel dto.ScheduleSelection) dto.EnrollRequest {
	return dto.EnrollRequest{
		CourseID:             courseID,
		Address:              "12 Rizal Street, Quezon City",
		ContactNumber:        "09171234567",
		GCashReferenceNumber: "GC-0001",
		Birthday:             "2000-01-02",
		Age:                  25,
		Nationality:          "Filipino",
		CivilStatus:          "single",
		Gender:               "female",
		PaymentType:          "full",
		AmountPaid:           amount,
		Selection:            sel,
	}
}

func multi(ids ...string) dto.ScheduleSelection {
	return dto.ScheduleSelection{Kind: dto.SelectionMulti, ScheduleIDs: ids}
}

func single(id string) dto.ScheduleSelection {
	return dto.ScheduleSelection{Kind: dto.SelectionSingle, ScheduleIDs: []string{id}}
}

func proofUpload() ProofUpload {
	return ProofUpload{Reader: strings.NewReader("\x89PNG proof"), Size: 10, Filename: "proof.png"}
}

func student(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent}
}
