package report

import (
	"fmt"
	"strings"

	"escapemap/adapters/stats/epitope"
	"escapemap/adapters/stats/frequency"
	"escapemap/domain/escape"
	"escapemap/domain/run"
	"escapemap/internal/embed"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// GroupData collects everything one analysis group produced, ready for
// rendering. Matrices arrive already relabeled to display names.
type GroupData struct {
	Group         string
	Exponent      float64
	Seed          int64
	Similarity    escape.SimilarityMatrix
	Dissimilarity escape.DissimilarityMatrix
	Embedding     *embed.Result
	Comparisons   []frequency.Comparison
	Overlaps      []epitope.Overlap
}

// GroupMarkdown renders one group's results as a Markdown document.
func GroupMarkdown(data GroupData) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# Escape profile analysis: %s\n\n", data.Group)

	b.WriteString("## Parameters\n\n")
	b.WriteString("| Parameter | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Dissimilarity method | %s |\n", data.Dissimilarity.Method)
	fmt.Fprintf(&b, "| Escape exponent | %g |\n", data.Exponent)
	fmt.Fprintf(&b, "| Embedding seed | %d |\n", data.Seed)
	b.WriteString("\n")

	b.WriteString("## Similarity\n\n")
	writeMatrixTable(&b, data.Similarity.Matrix)

	fmt.Fprintf(&b, "## Dissimilarity (%s)\n\n", data.Dissimilarity.Method)
	writeMatrixTable(&b, data.Dissimilarity.Matrix)

	if data.Embedding != nil {
		b.WriteString("## Map coordinates\n\n")
		b.WriteString("| Condition | X | Y |\n|---|---|---|\n")
		for _, p := range data.Embedding.Points {
			fmt.Fprintf(&b, "| %s | %.4f | %.4f |\n", p.Condition, p.X, p.Y)
		}
		fmt.Fprintf(&b, "\nStress %.6g after %d iterations.\n\n",
			data.Embedding.Stress, data.Embedding.Iterations)
	}

	if len(data.Comparisons) > 0 {
		b.WriteString("## Mutation frequency comparison\n\n")
		b.WriteString("| Condition | n | Spearman rho | p | Pearson r | p | Top site |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, c := range data.Comparisons {
			fmt.Fprintf(&b, "| %s | %d | %.3f | %.3g | %.3f | %.3g | %d |\n",
				c.Condition, c.SampleSize, c.SpearmanRho, c.SpearmanP,
				c.PearsonR, c.PearsonP, c.TopSite)
		}
		b.WriteString("\n")
		for _, c := range data.Comparisons {
			fmt.Fprintf(&b, "- %s\n", c.Description)
		}
		b.WriteString("\n")
	}

	if len(data.Overlaps) > 0 {
		b.WriteString("## Epitope overlap\n\n")
		b.WriteString("| Condition | Epitope | Inside fraction | Fold enrichment | Top-site Jaccard |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, o := range data.Overlaps {
			fmt.Fprintf(&b, "| %s | %s | %.3f | %.2f | %.3f |\n",
				o.Condition, o.Epitope, o.InsideFraction, o.FoldEnrichment, o.TopSiteJaccard)
		}
		b.WriteString("\n")
	}

	return []byte(b.String())
}

// RunMarkdown renders the run manifest as a Markdown summary.
func RunMarkdown(manifest *run.Manifest) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run %s\n\n", manifest.RunID)
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Created | %s |\n", manifest.CreatedAt)
	fmt.Fprintf(&b, "| Table fingerprint | `%s` |\n", manifest.TableFingerprint)
	fmt.Fprintf(&b, "| Config hash | `%s` |\n", manifest.ConfigHash)
	fmt.Fprintf(&b, "| Code version | %s |\n", manifest.CodeVersion)
	fmt.Fprintf(&b, "| Run fingerprint | `%s` |\n", manifest.Fingerprint.Fingerprint)
	b.WriteString("\n## Groups\n\n")
	b.WriteString("| Group | Status | Seed | Artifacts | Error |\n|---|---|---|---|---|\n")
	for _, g := range manifest.Groups {
		seed := ""
		if g.Seed != nil {
			seed = fmt.Sprintf("%d", *g.Seed)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %s |\n",
			g.Group, g.Status, seed, len(g.Artifacts), g.Error)
	}
	b.WriteString("\n")

	return []byte(b.String())
}

// HTML renders a Markdown document as a complete standalone HTML page.
func HTML(title string, md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse(md)

	renderer := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.Render(doc, renderer)
}

func writeMatrixTable(b *strings.Builder, matrix escape.Matrix) {
	b.WriteString("| |")
	for _, name := range matrix.Conditions {
		fmt.Fprintf(b, " %s |", name)
	}
	b.WriteString("\n|---|")
	for range matrix.Conditions {
		b.WriteString("---|")
	}
	b.WriteString("\n")
	for i, name := range matrix.Conditions {
		fmt.Fprintf(b, "| %s |", name)
		for j := range matrix.Conditions {
			fmt.Fprintf(b, " %.4f |", matrix.Cells[i][j])
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}
