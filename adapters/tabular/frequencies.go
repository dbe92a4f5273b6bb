package tabular

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"escapemap/domain/core"
	apperrors "escapemap/internal/errors"
)

// FrequencyReader adapts a per-site frequency CSV to the FrequencySource port.
type FrequencyReader struct {
	filePath string
}

// NewFrequencyReader creates a reader for a per-site frequency CSV
func NewFrequencyReader(filePath string) *FrequencyReader {
	return &FrequencyReader{filePath: filePath}
}

// ReadFrequencies loads the file fresh on every call.
func (r *FrequencyReader) ReadFrequencies(ctx context.Context) (map[int]float64, error) {
	return ReadFrequencies(r.filePath)
}

// ReadFrequencies reads a per-site mutation-frequency CSV with columns
// "site" and "frequency". Frequencies are fractions of circulating
// sequences carrying any mutation at that site; repeated sites sum.
func ReadFrequencies(path string) (map[int]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.IngestError("failed to open frequency file", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, apperrors.IngestError("failed to read frequency file", err)
	}
	if len(rows) < 2 {
		return nil, apperrors.IngestError("frequency file must have a header row and at least one data row", nil)
	}

	siteIdx, freqIdx := -1, -1
	for i, header := range rows[0] {
		switch strings.TrimSpace(header) {
		case "site":
			siteIdx = i
		case "frequency":
			freqIdx = i
		}
	}
	if siteIdx < 0 || freqIdx < 0 {
		return nil, apperrors.IngestError(`frequency file needs "site" and "frequency" columns`, nil)
	}

	frequencies := make(map[int]float64)
	for i := 1; i < len(rows); i++ {
		rowNum := i + 1
		row := rows[i]
		if len(row) <= siteIdx || len(row) <= freqIdx {
			return nil, core.NewMalformedRecordError(rowNum, "row has fewer cells than the header")
		}
		site, err := strconv.Atoi(strings.TrimSpace(row[siteIdx]))
		if err != nil {
			return nil, core.NewMalformedRecordError(rowNum,
				fmt.Sprintf("site %q is not an integer", strings.TrimSpace(row[siteIdx])))
		}
		freq, err := strconv.ParseFloat(strings.TrimSpace(row[freqIdx]), 64)
		if err != nil {
			return nil, core.NewMalformedRecordError(rowNum,
				fmt.Sprintf("frequency %q is not numeric", strings.TrimSpace(row[freqIdx])))
		}
		frequencies[site] += freq
	}

	log.Printf("[FrequencyReader] Loaded %d sites from %s", len(frequencies), path)
	return frequencies, nil
}
