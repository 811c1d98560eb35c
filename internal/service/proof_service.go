package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/drivingschool-api/internal/dto"
	"github.com/noah-isme/drivingschool-api/internal/models"
	appErrors "github.com/noah-isme/drivingschool-api/pkg/errors"
	"github.com/noah-isme/drivingschool-api/pkg/storage"
)

type proofEnrollmentReader interface {
	Get(ctx context.Context, id string) (*models.Enrollment, error)
}

type proofLinkSigner interface {
	Sign(owner, file string) (string, time.Time, error)
	Verify(token string) (owner, file string, err error)
}

type proofFileOpener interface {
	Open(name string) (*os.File, error)
}

// ProofService issues and redeems signed download links for payment proofs.
type ProofService struct {
	enrollments proofEnrollmentReader
	signer      proofLinkSigner
	files       proofFileOpener
	basePath    string
	logger      *zap.Logger
}

// NewProofService builds the service. basePath is the public route prefix the
// token is appended to, e.g. "/api/proofs".
func NewProofService(enrollments proofEnrollmentReader, signer proofLinkSigner, files proofFileOpener, basePath string, logger *zap.Logger) *ProofService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProofService{
		enrollments: enrollments,
		signer:      signer,
		files:       files,
		basePath:    strings.TrimRight(basePath, "/"),
		logger:      logger,
	}
}

// Link returns a signed URL for the enrollment's proof.
func (s *ProofService) Link(ctx context.Context, enrollmentID string) (*dto.ProofLink, error) {
	enrollment, err := s.enrollments.Get(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.ProofImage == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment has no payment proof")
	}
	token, expires, err := s.signer.Sign(enrollment.ID, enrollment.ProofImage)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign proof link")
	}
	return &dto.ProofLink{URL: s.basePath + "/" + token, ExpiresAt: expires}, nil
}

// Open redeems a token and opens the referenced file. The caller closes it.
func (s *ProofService) Open(ctx context.Context, token string) (*os.File, error) {
	owner, file, err := s.signer.Verify(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	f, err := s.files.Open(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment proof not found")
		}
		return nil, appErrors.Internal(err, "failed to open payment proof")
	}
	s.logger.Info("payment proof downloaded", zap.String("enrollment_id", owner))
	return f, nil
}
