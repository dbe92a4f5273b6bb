package tabular

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"escapemap/domain/core"
	"escapemap/domain/escape"
	apperrors "escapemap/internal/errors"
)

// Columns maps observation-table columns to their roles. Mutation is
// optional: when set, rows are per-mutation and collapse to one value per
// (condition, site) via the configured aggregation.
type Columns struct {
	Condition string
	Site      string
	Value     string
	Mutation  string
}

// Record is one parsed row before aggregation.
type Record struct {
	Condition string
	Site      int
	Metric    float64
	Row       int
}

// Reader loads escape observations from CSV or Excel files.
type Reader struct {
	filePath    string
	fileType    string // "xlsx" or "csv"
	columns     Columns
	aggregation escape.Aggregation
}

// NewReader creates a reader for the given file; the format follows the
// file extension.
func NewReader(filePath string, columns Columns, aggregation escape.Aggregation) *Reader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &Reader{filePath: filePath, fileType: fileType, columns: columns, aggregation: aggregation}
}

// ReadTable reads, parses, and aggregates the observation file into a table.
func (r *Reader) ReadTable(ctx context.Context) (*escape.Table, error) {
	log.Printf("[ObservationReader] Starting to read %s file: %s", r.fileType, r.filePath)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, apperrors.IngestError(fmt.Sprintf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath), err)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	case "xlsx":
		rows, err = r.readExcelRows()
	default:
		return nil, apperrors.IngestError(fmt.Sprintf("unsupported file type: %s", r.fileType), nil)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, apperrors.IngestError("observation file must have a header row and at least one data row", nil)
	}

	records, err := r.parseRows(rows)
	if err != nil {
		return nil, err
	}

	observations := toObservations(records)
	if r.columns.Mutation != "" {
		observations = Aggregate(records, r.aggregation)
	}

	table, err := escape.NewTable(observations)
	if err != nil {
		return nil, err
	}

	log.Printf("[ObservationReader] Table built (%d conditions, %d sites)",
		len(table.Conditions()), len(table.SiteUnion()))
	return table, nil
}

// readExcelRows reads Sheet1 of an Excel workbook.
func (r *Reader) readExcelRows() ([][]string, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, apperrors.IngestError("failed to open Excel file", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err != nil {
		return nil, apperrors.IngestError("failed to read Sheet1", err)
	}
	log.Printf("[ObservationReader] Excel file read in %.2fms (%d rows)",
		float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))
	return rows, nil
}

// readCSVRows reads the whole CSV file.
func (r *Reader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, apperrors.IngestError("failed to open CSV file", err)
	}
	defer file.Close()

	startTime := time.Now()
	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.IngestError("failed to read CSV file", err)
	}
	log.Printf("[ObservationReader] CSV file read in %.2fms (%d rows)",
		float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))
	return rows, nil
}

// parseRows converts raw string rows into typed records. Row numbers in
// errors are 1-based and include the header row, matching what a user sees
// in a spreadsheet.
func (r *Reader) parseRows(rows [][]string) ([]Record, error) {
	headers := make([]string, len(rows[0]))
	for i, header := range rows[0] {
		headers[i] = strings.TrimSpace(header)
	}

	condIdx, err := r.findColumn(headers, r.columns.Condition)
	if err != nil {
		return nil, err
	}
	siteIdx, err := r.findColumn(headers, r.columns.Site)
	if err != nil {
		return nil, err
	}
	valueIdx, err := r.findColumn(headers, r.columns.Value)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		rowNum := i + 1
		row := rows[i]
		if len(row) == 0 {
			continue
		}
		if len(row) <= condIdx || len(row) <= siteIdx || len(row) <= valueIdx {
			return nil, core.NewMalformedRecordError(rowNum, "row has fewer cells than the header")
		}

		condition := strings.TrimSpace(row[condIdx])
		if condition == "" {
			return nil, core.NewMalformedRecordError(rowNum, "empty condition")
		}

		site, err := strconv.Atoi(strings.TrimSpace(row[siteIdx]))
		if err != nil {
			return nil, core.NewMalformedRecordError(rowNum,
				fmt.Sprintf("site %q is not an integer", strings.TrimSpace(row[siteIdx])))
		}

		rawValue := strings.TrimSpace(row[valueIdx])
		metric, err := strconv.ParseFloat(rawValue, 64)
		if err != nil {
			return nil, core.NewMalformedRecordError(rowNum,
				fmt.Sprintf("metric %q is not numeric", rawValue))
		}
		if math.IsNaN(metric) || math.IsInf(metric, 0) {
			return nil, core.NewNonFiniteMetricError(condition, site)
		}
		if metric < 0 {
			return nil, fmt.Errorf("row %d: %w: %g for (%s, site %d)",
				rowNum, core.ErrNegativeMetric, metric, condition, site)
		}

		records = append(records, Record{Condition: condition, Site: site, Metric: metric, Row: rowNum})
	}
	return records, nil
}

func (r *Reader) findColumn(headers []string, name string) (int, error) {
	for i, h := range headers {
		if h == name {
			return i, nil
		}
	}
	return 0, apperrors.IngestError(fmt.Sprintf("required column %q not found in header", name), nil)
}

func toObservations(records []Record) []escape.Observation {
	observations := make([]escape.Observation, len(records))
	for i, rec := range records {
		observations[i] = escape.Observation{Condition: rec.Condition, Site: rec.Site, Metric: rec.Metric}
	}
	return observations
}
