package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"escapemap/domain/core"
	"escapemap/domain/run"
	apperrors "escapemap/internal/errors"
)

// Writer lays out the human-readable side of a run on disk, next to the
// JSON artifacts: CSV matrices and coordinates plus Markdown and HTML
// reports, grouped per analysis group.
type Writer struct {
	dir string
}

// NewWriter creates a report writer rooted at the given directory
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// WriteGroup writes one group's files under dir/<run-id>/<group>/ and
// returns the paths it created.
func (w *Writer) WriteGroup(runID core.RunID, data GroupData) ([]string, error) {
	groupDir := filepath.Join(w.dir, runID.String(), sanitizeName(data.Group))
	if err := os.MkdirAll(groupDir, 0755); err != nil {
		return nil, apperrors.StoreError("failed to create group directory", err)
	}

	var written []string
	save := func(name string, content []byte) error {
		path := filepath.Join(groupDir, name)
		if err := os.WriteFile(path, content, 0644); err != nil {
			return apperrors.StoreError("failed to write "+name, err)
		}
		written = append(written, path)
		return nil
	}

	var buf bytes.Buffer
	if err := WriteMatrixCSV(&buf, data.Similarity.Matrix); err != nil {
		return nil, apperrors.StoreError("failed to render similarity CSV", err)
	}
	if err := save("similarity.csv", buf.Bytes()); err != nil {
		return nil, err
	}

	buf.Reset()
	if err := WriteMatrixCSV(&buf, data.Dissimilarity.Matrix); err != nil {
		return nil, apperrors.StoreError("failed to render dissimilarity CSV", err)
	}
	if err := save("dissimilarity.csv", buf.Bytes()); err != nil {
		return nil, err
	}

	if data.Embedding != nil {
		buf.Reset()
		if err := WriteEmbeddingCSV(&buf, data.Embedding); err != nil {
			return nil, apperrors.StoreError("failed to render embedding CSV", err)
		}
		if err := save("embedding.csv", buf.Bytes()); err != nil {
			return nil, err
		}
	}

	md := GroupMarkdown(data)
	if err := save("report.md", md); err != nil {
		return nil, err
	}
	if err := save("report.html", HTML(data.Group, md)); err != nil {
		return nil, err
	}

	return written, nil
}

// WriteRun writes the run-level summary under dir/<run-id>/ and returns
// the paths it created.
func (w *Writer) WriteRun(manifest *run.Manifest) ([]string, error) {
	runDir := filepath.Join(w.dir, manifest.RunID.String())
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, apperrors.StoreError("failed to create run directory", err)
	}

	md := RunMarkdown(manifest)
	mdPath := filepath.Join(runDir, "report.md")
	if err := os.WriteFile(mdPath, md, 0644); err != nil {
		return nil, apperrors.StoreError("failed to write report.md", err)
	}

	htmlPath := filepath.Join(runDir, "report.html")
	if err := os.WriteFile(htmlPath, HTML("Run "+manifest.RunID.String(), md), 0644); err != nil {
		return nil, apperrors.StoreError("failed to write report.html", err)
	}

	return []string{mdPath, htmlPath}, nil
}

// sanitizeName keeps group-derived path segments safe for the filesystem
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '-'
		}
	}, name)
}
