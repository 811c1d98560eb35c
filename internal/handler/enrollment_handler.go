package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/drivingschool-api/internal/dto"
	"github.com/noah-isme/drivingschool-api/internal/models"
	"github.com/noah-isme/drivingschool-api/internal/service"
	appErrors "github.com/noah-isme/drivingschool-api/pkg/errors"
	"github.com/noah-isme/drivingschool-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, req dto.EnrollRequest, proof service.ProofUpload, claims *models.JWTClaims) (*dto.EnrollResult, error)
	Get(ctx context.Context, id string) (*models.Enrollment, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateEnrollmentStatusRequest) (*models.Enrollment, error)
}

type proofService interface {
	Link(ctx context.Context, enrollmentID string) (*dto.ProofLink, error)
	Open(ctx context.Context, token string) (*os.File, error)
}

// EnrollmentHandler exposes booking endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
	proofs      proofService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService, proofs proofService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, proofs: proofs}
}

// Enroll godoc
// @Summary Book a course
// @Description Multipart form. Practical and multi-day classroom courses send schedule_ids as a JSON array; legacy classroom bookings send schedule_id.
// @Tags Enrollments
// @Accept multipart/form-data
// @Produce json
// @Param course_id formData string true "Course ID"
// @Param schedule_id formData string false "Single schedule (legacy classroom booking)"
// @Param schedule_ids formData string false "JSON array of schedule ids, one per day"
// @Param payment_type formData string true "full or partial"
// @Param amount_paid formData string true "Amount paid"
// @Param is_pwd formData bool false "PWD discount"
// @Param proof_image formData file true "Payment proof"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /enroll [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req dto.EnrollRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment form"))
		return
	}
	selection, err := dto.ParseScheduleSelection(req.ScheduleID, req.ScheduleIDs)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error()))
		return
	}
	req.Selection = selection

	var proof service.ProofUpload
	header, err := c.FormFile("proof_image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "proof_image could not be read"))
		return
	default:
		file, err := header.Open()
		if err != nil {
			response.Error(c, appErrors.Internal(err, "failed to read upload"))
			return
		}
		defer closeUpload(file)
		proof = service.ProofUpload{Reader: file, Size: header.Size, Filename: header.Filename}
	}

	claims, ok := actor(c)
	if !ok {
		return
	}
	result, err := h.enrollments.Enroll(c.Request.Context(), req, proof, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

func closeUpload(f multipart.File) {
	_ = f.Close()
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /api/enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	enrollment, err := h.enrollments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment)
}

// UpdateStatus godoc
// @Summary Move an enrollment along its lifecycle
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.UpdateEnrollmentStatusRequest true "New status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /api/enrollments/{id}/status [patch]
func (h *EnrollmentHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateEnrollmentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment)
}

// ProofURL godoc
// @Summary Signed download link for the payment proof
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /api/enrollments/{id}/proof-url [get]
func (h *EnrollmentHandler) ProofURL(c *gin.Context) {
	link, err := h.proofs.Link(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link)
}

// DownloadProof godoc
// @Summary Download a payment proof through a signed link
// @Tags Enrollments
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /api/proofs/{token} [get]
func (h *EnrollmentHandler) DownloadProof(c *gin.Context) {
	f, err := h.proofs.Open(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read payment proof"))
		return
	}
	c.Header("Cache-Control", "private, no-store")
	http.ServeContent(c.Writer, c.Request, filepath.Base(f.Name()), info.ModTime(), f)
}
