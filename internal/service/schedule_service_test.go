package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/drivingschool-api/internal/dto"
	"github.com/noah-isme/drivingschool-api/internal/models"
	appErrors "github.com/noah-isme/drivingschool-api/pkg/errors"
)

type memoryListingCache struct {
	entries     map[string][]models.ScheduleAvailability
	sets        int
	invalidated int
}

func (m *memoryListingCache) Get(ctx context.Context, key string, dest interface{}) bool {
	v, ok := m.entries[key]
	if !ok {
		return false
	}
	*(dest.(*[]models.ScheduleAvailability)) = v
	return true
}

func (m *memoryListingCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if m.entries == nil {
		m.entries = map[string][]models.ScheduleAvailability{}
	}
	m.entries[key] = value.([]models.ScheduleAvailability)
	m.sets++
}

func (m *memoryListingCache) InvalidateAvailability(ctx context.Context) {
	m.entries = nil
	m.invalidated++
}

func newScheduleService(w *fakeWorld, cache listingCache) *ScheduleService {
	svc := NewScheduleService(ScheduleServiceDeps{
		Tx:        w,
		Courses:   fakeCourses{w},
		Schedules: fakeSchedules{w},
		Rosters:   fakeEnrollments{w},
		Ledger:    NewCapacityLedger(fakeVehicles{w}, nil),
		Cache:     cache,
	})
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestListWithAvailabilityPractical(t *testing.T) {
	w := newFakeWorld()
	w.addCourse(practicalCourse("prac", "2000"))
	w.fleet[testClass] = 2
	w.addSchedule(models.Schedule{ID: "past", StartDate: "2025-02-20", StartTime: "08:00", EndTime: "10:00", Slots: 5})
	w.addSchedule(models.Schedule{ID: "a", StartDate: "2025-03-04", StartTime: "08:00", EndTime: "10:00", Slots: 5})
	w.addSchedule(models.Schedule{ID: "b", StartDate: "2025-03-04", StartTime: "10:00", EndTime: "12:00", Slots: 5})
	w.addSchedule(models.Schedule{ID: "lecture", StartDate: "2025-03-04", StartTime: "08:00", EndTime: "17:00", Slots: 30, IsTheoretical: true})

	booking := newBookingService(w)
	_, err := booking.Enroll(context.Background(), enrollRequest("prac", "2000", multi("a")), proofUpload(), student("stu-1"))
	require.NoError(t, err)

	cache := &memoryListingCache{}
	svc := newScheduleService(w, cache)

	list, err := svc.ListWithAvailability(context.Background(), "prac")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, 1, *list[0].AvailableVehicles)
	assert.Equal(t, 2, *list[0].TotalVehicles)
	assert.Equal(t, "b", list[1].ID)
	assert.Equal(t, 2, *list[1].AvailableVehicles)
	assert.Equal(t, 1, cache.sets)

	// Served from cache on the second call.
	w.fleet[testClass] = 0
	again, err := svc.ListWithAvailability(context.Background(), "prac")
	require.NoError(t, err)
	assert.Equal(t, list, again)
	assert.Equal(t, 1, cache.sets)
}

func TestListWithAvailabilityClassroomAndOnline(t *testing.T) {
	w := newFakeWorld()
	w.addCourse(models.Course{ID: "class", Price: decimal.RequireFromString("1500"), BranchID: "branch-1", Modality: models.ModalityClassroomTheoretical})
	w.addCourse(models.Course{ID: "online", Price: decimal.RequireFromString("500"), BranchID: "branch-1", Modality: models.ModalityOnlineTheoretical})
	w.addSchedule(models.Schedule{ID: "lecture", StartDate: "2025-03-04", StartTime: "08:00", EndTime: "17:00", Slots: 30, IsTheoretical: true})
	w.addSchedule(models.Schedule{ID: "drive", StartDate: "2025-03-04", StartTime: "08:00", EndTime: "10:00", Slots: 5})
	svc := newScheduleService(w, nil)

	list, err := svc.ListWithAvailability(context.Background(), "class")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "lecture", list[0].ID)
	assert.Nil(t, list[0].AvailableVehicles)

	list, err = svc.ListWithAvailability(context.Background(), "online")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.ListWithAvailability(context.Background(), "ghost")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	_, err = svc.ListWithAvailability(context.Background(), "")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestCheckVehicleAvailabilityReportsTightestSchedule(t *testing.T) {
	w := newFakeWorld()
	w.addCourse(practicalCourse("prac", "2000"))
	w.fleet[testClass] = 3
	w.addSchedule(models.Schedule{ID: "busy", StartDate: "2025-03-04", StartTime: "08:00", EndTime: "10:00", Slots: 5})
	w.addSchedule(models.Schedule{ID: "quiet", StartDate: "2025-03-05", StartTime: "08:00", EndTime: "10:00", Slots: 5})

	booking := newBookingService(w)
	for _, id := range []string{"stu-1", "stu-2"} {
		_, err := booking.Enroll(context.Background(), enrollRequest("prac", "2000", multi("busy")), proofUpload(), student(id))
		require.NoError(t, err)
	}

	svc := newScheduleService(w, nil)
	resp, err := svc.CheckVehicleAvailability(context.Background(), dto.CheckVehicleAvailabilityRequest{
		VehicleCategory: "car",
		VehicleType:     "manual",
		ScheduleIDs:     []string{"quiet", "busy", "busy"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Available)
	assert.Equal(t, 1, resp.AvailableUnits)
	assert.Equal(t, 3, resp.TotalUnits)
	assert.Equal(t, 2, resp.CurrentBookings)

	_, err = svc.CheckVehicleAvailability(context.Background(), dto.CheckVehicleAvailabilityRequest{
		VehicleCategory: "car", VehicleType: "manual", ScheduleIDs: []string{"ghost"},
	})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.CheckVehicleAvailability(context.Background(), dto.CheckVehicleAvailabilityRequest{VehicleCategory: "car"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestCheckVehicleAvailabilityWithoutFleet(t *testing.T) {
	w := newFakeWorld()
	w.addSchedule(models.Schedule{ID: "a", StartDate: "2025-03-04", StartTime: "08:00", EndTime: "10:00", Slots: 5})
	svc := newScheduleService(w, nil)

	resp, err := svc.CheckVehicleAvailability(context.Background(), dto.CheckVehicleAvailabilityRequest{
		VehicleCategory: "motorcycle", VehicleType: "automatic", ScheduleIDs: []string{"a"},
	})
	require.NoError(t, err)
	assert.False(t, resp.Available)
	assert.Zero(t, resp.TotalUnits)
}

func TestDeleteScheduleCascades(t *testing.T) {
	w := newFakeWorld()
	w.addCourse(models.Course{ID: "class", Price: decimal.RequireFromString("1500"), BranchID: "branch-1", Modality: models.ModalityClassroomTheoretical})
	w.addSchedule(models.Schedule{ID: "lecture", StartDate: "2025-03-04", StartTime: "08:00", EndTime: "17:00", Slots: 30, IsTheoretical: true})
	w.addSchedule(models.Schedule{ID: "other", StartDate: "2025-03-05", StartTime: "08:00", EndTime: "17:00", Slots: 30, IsTheoretical: true})

	booking := newBookingService(w)
	ctx := context.Background()
	_, err := booking.Enroll(ctx, enrollRequest("class", "1500", single("lecture")), proofUpload(), student("stu-1"))
	require.NoError(t, err)
	linked, err := booking.Enroll(ctx, enrollRequest("class", "1500", multi("lecture", "other")), proofUpload(), student("stu-2"))
	require.NoError(t, err)

	cache := &memoryListingCache{}
	svc := newScheduleService(w, cache)

	_, err = svc.Delete(ctx, "lecture", &models.JWTClaims{UserID: "staff-1", Role: models.RoleStaff})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	assert.Equal(t, 2, w.enrollmentCount())

	res, err := svc.Delete(ctx, "lecture", &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.EnrollmentsDeleted)
	assert.Equal(t, 1, w.enrollmentCount())
	links := w.linksOf(linked.Enrollment.ID)
	require.Len(t, links, 1)
	assert.Equal(t, "other", links[0].ScheduleID)
	assert.Equal(t, 1, cache.invalidated)

	_, err = svc.Delete(ctx, "lecture", &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Delete(ctx, "other", nil)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestExportRoster(t *testing.T) {
	w := newFakeWorld()
	w.addCourse(models.Course{ID: "class", Price: decimal.RequireFromString("1500"), BranchID: "branch-1", Modality: models.ModalityClassroomTheoretical})
	w.addSchedule(models.Schedule{ID: "lecture", StartDate: "2025-03-04", StartTime: "08:00:00", EndTime: "17:00:00", Slots: 30, IsTheoretical: true})

	booking := newBookingService(w)
	_, err := booking.Enroll(context.Background(), enrollRequest("class", "1500", multi("lecture")), proofUpload(), student("stu-1"))
	require.NoError(t, err)

	svc := newScheduleService(w, nil)
	out, err := svc.ExportRoster(context.Background(), "lecture", "csv")
	require.NoError(t, err)
	assert.Equal(t, "roster-lecture.csv", out.Filename)
	assert.Equal(t, "text/csv", out.ContentType)
	body := string(out.Body)
	assert.True(t, strings.HasPrefix(body, "Student,Contact,Course,Day,Status,Payment,Amount paid"))
	assert.Contains(t, body, "stu-1,09171234567,,1,pending,paid,1500.00")

	pdf, err := svc.ExportRoster(context.Background(), "lecture", "pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf.Body), "%PDF"))

	_, err = svc.ExportRoster(context.Background(), "lecture", "xlsx")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	_, err = svc.ExportRoster(context.Background(), "ghost", "csv")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
