package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academy-api/internal/dto"
	"github.com/noah-isme/academy-api/internal/models"
	appErrors "github.com/noah-isme/academy-api/pkg/errors"
	"github.com/noah-isme/academy-api/pkg/export"
)

// Export formats supported for the enrollment report.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type enrollmentLister interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	MaxRows int
}

// ExportResult is a rendered report ready to stream.
type ExportResult struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
	Truncated   bool
}

// ExportService renders the staff enrollment report.
type ExportService struct {
	enrollments enrollmentLister
	csv         csvRenderer
	pdf         pdfRenderer
	logger      *zap.Logger
	cfg         ExportConfig
	now         func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(enrollments enrollmentLister, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 1000
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{enrollments: enrollments, csv: csv, pdf: pdf, logger: logger, cfg: cfg, now: time.Now}
}

// Enrollments renders the filtered enrollment list as CSV or PDF.
func (s *ExportService) Enrollments(ctx context.Context, query dto.EnrollmentListQuery, format string) (*ExportResult, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.WithFields("invalid export request", appErrors.FieldError{Field: "format", Message: "must be one of: csv pdf"})
	}

	filter := query.Filter()
	filter.Page = 1
	filter.PageSize = s.cfg.MaxRows
	items, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments for export")
	}

	dataset := buildEnrollmentDataset(items)
	generatedAt := s.now().UTC()
	result := &ExportResult{Rows: len(items), Truncated: total > len(items)}

	switch format {
	case ExportFormatPDF:
		result.Body, err = s.pdf.Render(dataset, fmt.Sprintf("Enrollment Report %s", generatedAt.Format("2006-01-02")))
		result.ContentType = "application/pdf"
	default:
		result.Body, err = s.csv.Render(dataset)
		result.ContentType = "text/csv"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	result.Filename = fmt.Sprintf("enrollments_%s.%s", generatedAt.Format("20060102_150405"), format)

	if result.Truncated {
		s.logger.Warn("enrollment export truncated", zap.Int("rows", len(items)), zap.Int("total", total))
	}
	return result, nil
}

func buildEnrollmentDataset(items []models.EnrollmentDetail) export.Dataset {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			item.ID,
			item.StudentName,
			item.StudentEmail,
			item.CourseTitle,
			string(item.Status),
			yesNo(item.IsPaid),
			yesNo(item.PaymentVerified),
			formatReportTime(item.PaymentVerifiedAt),
			item.EnrolledAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Dataset{
		Headers: []string{"Enrollment ID", "Student", "Email", "Course", "Status", "Paid", "Verified", "Verified At", "Enrolled At"},
		Rows:    rows,
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
