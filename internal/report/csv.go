package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"escapemap/domain/escape"
	"escapemap/internal/embed"
)

// WriteMatrixCSV writes a square matrix with condition names on both axes.
// The first header cell is the literal word "condition" so the file opens
// cleanly in spreadsheet tools.
func WriteMatrixCSV(w io.Writer, matrix escape.Matrix) error {
	cw := csv.NewWriter(w)

	header := append([]string{"condition"}, matrix.Conditions...)
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, name := range matrix.Conditions {
		row := make([]string, 0, len(matrix.Conditions)+1)
		row = append(row, name)
		for j := range matrix.Conditions {
			row = append(row, formatValue(matrix.Cells[i][j]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteEmbeddingCSV writes 2D map coordinates, one condition per row.
func WriteEmbeddingCSV(w io.Writer, result *embed.Result) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"condition", "x", "y"}); err != nil {
		return err
	}
	for _, p := range result.Points {
		row := []string{p.Condition, formatValue(p.X), formatValue(p.Y)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
