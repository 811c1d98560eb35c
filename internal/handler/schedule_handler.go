package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/drivingschool-api/internal/dto"
	"github.com/noah-isme/drivingschool-api/internal/models"
	"github.com/noah-isme/drivingschool-api/internal/service"
	appErrors "github.com/noah-isme/drivingschool-api/pkg/errors"
	"github.com/noah-isme/drivingschool-api/pkg/response"
)

type scheduleService interface {
	ListWithAvailability(ctx context.Context, courseID string) ([]models.ScheduleAvailability, error)
	CheckVehicleAvailability(ctx context.Context, req dto.CheckVehicleAvailabilityRequest) (*dto.VehicleAvailabilityResponse, error)
	Delete(ctx context.Context, id string, claims *models.JWTClaims) (*dto.DeleteScheduleResult, error)
	ExportRoster(ctx context.Context, id, format string) (*service.RosterExport, error)
}

// ScheduleHandler exposes schedule listing and staff schedule operations.
type ScheduleHandler struct {
	schedules scheduleService
}

// NewScheduleHandler constructs ScheduleHandler.
func NewScheduleHandler(schedules scheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules}
}

// ListWithAvailability godoc
// @Summary List bookable schedules for a course
// @Description Practical courses include free and total vehicle units per schedule.
// @Tags Schedules
// @Produce json
// @Param course_id query string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /api/schedules/with-availability [get]
func (h *ScheduleHandler) ListWithAvailability(c *gin.Context) {
	schedules, err := h.schedules.ListWithAvailability(c.Request.Context(), c.Query("course_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, map[string]interface{}{"total": len(schedules)})
}

// CheckVehicleAvailability godoc
// @Summary Check vehicle availability for selected schedules
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body dto.CheckVehicleAvailabilityRequest true "Vehicle class and schedules"
// @Success 200 {object} response.Envelope
// @Router /api/vehicles/check-availability [post]
func (h *ScheduleHandler) CheckVehicleAvailability(c *gin.Context) {
	var req dto.CheckVehicleAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	result, err := h.schedules.CheckVehicleAvailability(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Delete godoc
// @Summary Delete a schedule and the enrollments booked on it
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /api/schedules/{id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	claims, ok := actor(c)
	if !ok {
		return
	}
	result, err := h.schedules.Delete(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// ExportRoster godoc
// @Summary Export a schedule roster
// @Tags Schedules
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Schedule ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /api/schedules/{id}/roster [get]
func (h *ScheduleHandler) ExportRoster(c *gin.Context) {
	out, err := h.schedules.ExportRoster(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	c.Data(http.StatusOK, out.ContentType, out.Body)
}
