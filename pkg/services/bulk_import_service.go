package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/clinicgrid/intake-engine/pkg/apperrors"
	"github.com/clinicgrid/intake-engine/pkg/models"
)

// ImportRowResult reports one file row's outcome. DuplicateHint carries the
// primary match candidate when detection found one, so reviewers see likely
// duplicates before opening the draft.
type ImportRowResult struct {
	Row           int                    `json:"row"`
	Name          string                 `json:"name,omitempty"`
	DraftID       *uuid.UUID             `json:"draft_id,omitempty"`
	Error         string                 `json:"error,omitempty"`
	DuplicateHint *models.MatchCandidate `json:"duplicate_hint,omitempty"`
}

// ImportReport summarizes one bulk import file.
type ImportReport struct {
	BatchID uuid.UUID         `json:"batch_id"`
	Total   int               `json:"total"`
	Created int               `json:"created"`
	Failed  int               `json:"failed"`
	Rows    []ImportRowResult `json:"rows"`
}

// BulkImportService turns CSV or YAML submission files into drafts with
// bulk_import provenance. Rows fail independently: one bad row never aborts
// the file.
type BulkImportService interface {
	Import(ctx context.Context, filename string, file io.Reader) (*ImportReport, error)
}

type bulkImportService struct {
	drafts     DraftService
	duplicates DuplicateCheckService
	maxRows    int
	logger     *zap.Logger
}

// NewBulkImportService creates a new BulkImportService. maxRows bounds how
// many rows one file may carry.
func NewBulkImportService(
	drafts DraftService,
	duplicates DuplicateCheckService,
	maxRows int,
	logger *zap.Logger,
) BulkImportService {
	return &bulkImportService{
		drafts:     drafts,
		duplicates: duplicates,
		maxRows:    maxRows,
		logger:     logger.Named("bulk-import"),
	}
}

// bulkSubmission is one file row in either format. CSV carries the flat
// clinic fields; YAML additionally nests providers, procedures and photos.
type bulkSubmission struct {
	Name        string   `yaml:"name"`
	Category    string   `yaml:"category"`
	Description string   `yaml:"description"`
	Address     string   `yaml:"address"`
	City        string   `yaml:"city"`
	State       string   `yaml:"state"`
	Zip         string   `yaml:"zip"`
	Phone       string   `yaml:"phone"`
	Email       string   `yaml:"email"`
	Website     string   `yaml:"website"`
	PlaceRef    string   `yaml:"place_ref"`
	Rating      *float64 `yaml:"rating"`
	ReviewCount *int     `yaml:"review_count"`
	SubmittedBy string   `yaml:"submitted_by"`

	Providers  []bulkProvider  `yaml:"providers"`
	Procedures []bulkProcedure `yaml:"procedures"`
	Photos     []string        `yaml:"photos"`

	parseErr string
}

type bulkProvider struct {
	Name      string `yaml:"name"`
	Specialty string `yaml:"specialty"`
	PhotoURL  string `yaml:"photo_url"`
}

type bulkProcedure struct {
	Name        string   `yaml:"name"`
	Provider    string   `yaml:"provider"`
	Category    string   `yaml:"category"`
	Description string   `yaml:"description"`
	PriceMin    *float64 `yaml:"price_min"`
	PriceMax    *float64 `yaml:"price_max"`
	DurationMin *int     `yaml:"duration_minutes"`
}

func (s *bulkImportService) Import(ctx context.Context, filename string, file io.Reader) (*ImportReport, error) {
	var rows []bulkSubmission
	var err error

	switch {
	case strings.HasSuffix(strings.ToLower(filename), ".csv"):
		rows, err = parseCSVSubmissions(file)
	case strings.HasSuffix(strings.ToLower(filename), ".yaml"),
		strings.HasSuffix(strings.ToLower(filename), ".yml"):
		rows, err = parseYAMLSubmissions(file)
	default:
		return nil, &apperrors.ValidationError{Missing: []string{"supported file extension (.csv, .yaml)"}}
	}
	if err != nil {
		return nil, err
	}

	if s.maxRows > 0 && len(rows) > s.maxRows {
		return nil, fmt.Errorf("file has %d rows, limit is %d", len(rows), s.maxRows)
	}

	report := &ImportReport{
		BatchID: uuid.New(),
		Total:   len(rows),
		Rows:    make([]ImportRowResult, 0, len(rows)),
	}

	for i, row := range rows {
		result := s.importRow(ctx, i+1, row)
		if result.Error == "" {
			report.Created++
		} else {
			report.Failed++
		}
		report.Rows = append(report.Rows, result)
	}

	s.logger.Info("Bulk import completed",
		zap.String("batch_id", report.BatchID.String()),
		zap.String("file", filename),
		zap.Int("total", report.Total),
		zap.Int("created", report.Created),
		zap.Int("failed", report.Failed))
	return report, nil
}

// importRow creates one draft. Failures are reported, never propagated, so
// the rest of the file still imports.
func (s *bulkImportService) importRow(ctx context.Context, rowNum int, row bulkSubmission) ImportRowResult {
	result := ImportRowResult{Row: rowNum, Name: row.Name}

	if row.parseErr != "" {
		result.Error = row.parseErr
		return result
	}
	if strings.TrimSpace(row.Name) == "" {
		result.Error = "name is required"
		return result
	}

	draft := row.toDraft()
	created, err := s.drafts.Create(ctx, draft)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.DraftID = &created.ID

	// Advisory only: a degraded duplicate check never fails the row.
	check, err := s.duplicates.CheckDraft(ctx, created)
	if err != nil {
		s.logger.Warn("Duplicate check degraded during import",
			zap.String("draft_id", created.ID.String()),
			zap.Error(err))
		return result
	}
	if check.HasDuplicates {
		result.DuplicateHint = &check.Matches[0]
	}
	return result
}

// toDraft converts the row to a draft with bulk_import provenance.
func (row bulkSubmission) toDraft() *models.Draft {
	draft := &models.Draft{
		Source:      models.DraftSourceBulkImport,
		Name:        strings.TrimSpace(row.Name),
		Category:    optional(row.Category),
		Description: optional(row.Description),
		Address:     optional(row.Address),
		City:        optional(row.City),
		State:       optional(row.State),
		Zip:         optional(row.Zip),
		Phone:       optional(row.Phone),
		Email:       optional(row.Email),
		Website:     optional(row.Website),
		PlaceRef:    optional(row.PlaceRef),
		Rating:      row.Rating,
		ReviewCount: row.ReviewCount,
		SubmittedBy: optional(row.SubmittedBy),
	}

	for _, p := range row.Providers {
		draft.Providers = append(draft.Providers, &models.DraftProvider{
			Name:      strings.TrimSpace(p.Name),
			Specialty: optional(p.Specialty),
			PhotoURL:  optional(p.PhotoURL),
		})
	}
	for _, p := range row.Procedures {
		draft.Procedures = append(draft.Procedures, &models.DraftProcedure{
			Name:         strings.TrimSpace(p.Name),
			ProviderName: optional(p.Provider),
			Category:     optional(p.Category),
			Description:  optional(p.Description),
			PriceMin:     p.PriceMin,
			PriceMax:     p.PriceMax,
			DurationMin:  p.DurationMin,
		})
	}
	for i, url := range row.Photos {
		draft.Photos = append(draft.Photos, &models.DraftPhoto{
			URL:          url,
			DisplayOrder: i,
		})
	}
	return draft
}

// parseCSVSubmissions reads a header-mapped CSV file. Unknown columns are
// ignored; malformed records become per-row errors.
func parseCSVSubmissions(file io.Reader) ([]bulkSubmission, error) {
	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &apperrors.ValidationError{Missing: []string{"header row"}}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := columns["name"]; !ok {
		return nil, &apperrors.ValidationError{Missing: []string{"name column"}}
	}

	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []bulkSubmission
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rows = append(rows, bulkSubmission{parseErr: err.Error()})
			continue
		}

		row := bulkSubmission{
			Name:        field(record, "name"),
			Category:    field(record, "category"),
			Description: field(record, "description"),
			Address:     field(record, "address"),
			City:        field(record, "city"),
			State:       field(record, "state"),
			Zip:         field(record, "zip"),
			Phone:       field(record, "phone"),
			Email:       field(record, "email"),
			Website:     field(record, "website"),
			PlaceRef:    field(record, "place_ref"),
			SubmittedBy: field(record, "submitted_by"),
		}
		if v := field(record, "rating"); v != "" {
			rating, err := strconv.ParseFloat(v, 64)
			if err != nil {
				row.parseErr = fmt.Sprintf("invalid rating %q", v)
			} else {
				row.Rating = &rating
			}
		}
		if v := field(record, "review_count"); v != "" && row.parseErr == "" {
			count, err := strconv.Atoi(v)
			if err != nil {
				row.parseErr = fmt.Sprintf("invalid review_count %q", v)
			} else {
				row.ReviewCount = &count
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseYAMLSubmissions reads a YAML list of submissions.
func parseYAMLSubmissions(file io.Reader) ([]bulkSubmission, error) {
	var rows []bulkSubmission
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&rows); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &apperrors.ValidationError{Missing: []string{"submissions"}}
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return rows, nil
}

func optional(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// Ensure bulkImportService implements BulkImportService at compile time.
var _ BulkImportService = (*bulkImportService)(nil)
