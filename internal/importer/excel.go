// Package importer bulk-loads manually curated grants from an Excel
// spreadsheet into the catalog through the manual-entry path.
package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/grantpipe/grant-ingestor/internal/adapters"
	"github.com/grantpipe/grant-ingestor/internal/logger"
	"github.com/grantpipe/grant-ingestor/internal/models"
	"github.com/grantpipe/grant-ingestor/internal/sync"
)

// Column indices (0-based) for the grant spreadsheet.
const (
	colExternalID  = 0 // Column A
	colTitle       = 1 // Column B
	colAgency      = 2 // Column C
	colDescription = 3 // Column D
	colCategory    = 4 // Column E
	colFunding     = 5 // Column F
	colOpenDate    = 6 // Column G
	colCloseDate   = 7 // Column H
	colStatus      = 8 // Column I
	colSourceURL   = 9 // Column J

	minRequiredColumns = 2
)

const dateLayout = "2006-01-02"

// RowError records why one spreadsheet row was rejected. Row numbers are
// 1-based Excel rows, header included.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// Result summarizes one import.
type Result struct {
	Rows    int        `json:"rows"`
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Skipped int        `json:"skipped"`
	Errors  []RowError `json:"errors,omitempty"`
}

// Importer parses grant spreadsheets and writes rows through the
// manual-entry path, so imported rows obey the same validation and
// reconciliation rules as single manual entries.
type Importer struct {
	entry *sync.ManualEntry
	log   logger.Logger
}

func NewImporter(entry *sync.ManualEntry, log logger.Logger) *Importer {
	return &Importer{
		entry: entry,
		log:   log,
	}
}

// ImportFile reads the first sheet of the workbook at path. Row 1 is the
// header. Bad rows are reported in the result and never written; good rows
// proceed regardless.
func (i *Importer) ImportFile(ctx context.Context, path string) (*Result, error) {
	workbook, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}

	result := &Result{}
	for idx, cells := range rows {
		rowNum := idx + 1
		if rowNum == 1 {
			continue // header
		}
		if isEmptyRow(cells) {
			continue
		}

		result.Rows++
		i.importRow(ctx, rowNum, cells, result)
	}

	i.log.Info("Spreadsheet import finished",
		logger.String("path", path),
		logger.Int("rows", result.Rows),
		logger.Int("created", result.Created),
		logger.Int("updated", result.Updated),
		logger.Int("skipped", result.Skipped),
		logger.Int("rejected", len(result.Errors)),
	)

	return result, nil
}

func (i *Importer) importRow(ctx context.Context, rowNum int, cells []string, result *Result) {
	input, err := parseRow(cells)
	if err != nil {
		result.Errors = append(result.Errors, RowError{Row: rowNum, Error: err.Error()})
		return
	}

	if validation := adapters.ValidateInput(input); !validation.Valid {
		result.Errors = append(result.Errors, RowError{
			Row:   rowNum,
			Error: strings.Join(validation.Errors, "; "),
		})
		return
	}

	_, action, err := i.entry.Submit(ctx, input)
	if err != nil {
		result.Errors = append(result.Errors, RowError{Row: rowNum, Error: err.Error()})
		return
	}

	switch action {
	case sync.ActionCreated:
		result.Created++
	case sync.ActionUpdated:
		result.Updated++
	default:
		result.Skipped++
	}
}

func parseRow(cells []string) (*models.ManualGrantInput, error) {
	if len(cells) < minRequiredColumns {
		return nil, fmt.Errorf("row has %d columns, need at least %d", len(cells), minRequiredColumns)
	}

	input := &models.ManualGrantInput{
		ExternalID:      cell(cells, colExternalID),
		Title:           cell(cells, colTitle),
		Agency:          cell(cells, colAgency),
		Description:     cell(cells, colDescription),
		FundingCategory: cell(cells, colCategory),
		Status:          cell(cells, colStatus),
		SourceURL:       cell(cells, colSourceURL),
	}

	if raw := cell(cells, colFunding); raw != "" {
		amount, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("estimated_funding %q is not a number", raw)
		}
		input.EstimatedFunding = &amount
	}

	var err error
	if input.OpenDate, err = parseDate(cell(cells, colOpenDate), "open_date"); err != nil {
		return nil, err
	}
	if input.CloseDate, err = parseDate(cell(cells, colCloseDate), "close_date"); err != nil {
		return nil, err
	}

	return input, nil
}

func parseDate(raw, field string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%s %q is not a YYYY-MM-DD date", field, raw)
	}
	return &t, nil
}

func cell(cells []string, idx int) string {
	if idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

func isEmptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
