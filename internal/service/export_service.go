package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
	"github.com/noah-isme/sma-exam-engine/pkg/export"
	"github.com/noah-isme/sma-exam-engine/pkg/storage"
)

// ExportFormat is a rendered report-card export format.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string       `json:"-"`
	Token        string       `json:"token"`
	URL          string       `json:"url"`
	Format       ExportFormat `json:"format"`
	Rows         int          `json:"rows"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// ExportService renders report-card listings and stores them behind signed download tokens.
type ExportService struct {
	storage fileStorage
	csv     datasetRenderer
	pdf     datasetRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService. Nil renderers fall back to the pkg/export defaults.
func NewExportService(store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv, pdf datasetRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{storage: store, csv: csv, pdf: pdf, signer: signer, logger: logger, cfg: cfg}
}

// RenderReportCards writes the cards as a CSV or PDF file and returns a signed download link.
func (s *ExportService) RenderReportCards(_ context.Context, ref string, title string, cards []models.ReportCardRow, format ExportFormat) (*ExportResult, error) {
	var renderer datasetRenderer
	switch format {
	case ExportCSV:
		renderer = s.csv
	case ExportPDF:
		renderer = s.pdf
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	dataset := reportCardDataset(title, cards)
	if err := dataset.Validate(); err != nil {
		return nil, appErrors.Internal(err, "invalid export dataset")
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render export")
	}

	filename := fmt.Sprintf("report_cards_%s_%s.%s", sanitizeFilename(ref), time.Now().UTC().Format("20060102_150405"), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to store export")
	}
	token, grant, err := s.signer.Issue(sanitizeFilename(ref), relPath)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign export")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("report cards exported", zap.String("ref", ref), zap.String("format", string(format)), zap.Int("rows", len(cards)))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/report-cards/download/%s", prefix, token),
		Format:       format,
		Rows:         len(cards),
		ExpiresAt:    grant.ExpiresAt,
	}, nil
}

// Open verifies a download token and returns the stored file.
func (s *ExportService) Open(token string) (*os.File, string, error) {
	grant, err := s.signer.Verify(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired download token")
	}
	file, err := s.storage.Open(grant.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, "", appErrors.Internal(err, "failed to open export")
	}
	return file, grant.Path, nil
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func reportCardDataset(title string, cards []models.ReportCardRow) export.Dataset {
	dataset := export.Dataset{
		Title:   title,
		Headers: []string{"Admission No", "Student", "Class", "Obtained", "Total", "Percentage", "Grade", "GPA", "Class Rank", "Grade Rank", "Attendance %", "Status"},
		Rows:    make([][]string, 0, len(cards)),
	}
	if len(cards) > 0 {
		dataset.Subtitle = []string{fmt.Sprintf("Generated %s", time.Now().UTC().Format("2006-01-02 15:04 MST"))}
	}
	for _, card := range cards {
		dataset.Rows = append(dataset.Rows, []string{
			card.AdmissionNumber,
			card.StudentName,
			card.ClassName,
			formatScore(card.MarksObtained),
			formatScore(card.TotalMarks),
			formatScore(card.Percentage),
			card.Grade,
			formatScore(card.GradePointAverage),
			formatRank(card.ClassRank, card.ClassSize),
			formatRank(card.GradeRank, card.GradeSize),
			formatScore(card.AttendancePercentage),
			string(card.Status),
		})
	}
	return dataset
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatRank(rank *int, size int) string {
	if rank == nil {
		return "-"
	}
	return fmt.Sprintf("%d/%d", *rank, size)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", "-", ".", "-")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
