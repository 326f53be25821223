// internal/reporting/csv_reporter.go
package reporting

import (
	"io"
	"strings"

	"github.com/xkilldash9x/cadrefs/api/schemas"
)

// CSVReporter writes one `"parent","child"` line per edge, without a header.
type CSVReporter struct {
	writer  io.WriteCloser
	quoting QuoteMode
}

// NewCSVReporter creates a CSVReporter that takes ownership of writer.
func NewCSVReporter(writer io.WriteCloser, quoting QuoteMode) *CSVReporter {
	if quoting == "" {
		quoting = QuoteEscape
	}
	return &CSVReporter{writer: writer, quoting: quoting}
}

// Write renders all edges and writes them in a single call.
func (r *CSVReporter) Write(edges []schemas.DependencyEdge) error {
	if _, err := io.WriteString(r.writer, RenderCSV(edges, r.quoting)); err != nil {
		return writeFailed(err)
	}
	return nil
}

// Close closes the underlying writer.
func (r *CSVReporter) Close() error {
	return r.writer.Close()
}

// RenderCSV renders edges as quoted, comma-delimited lines terminated by "\n".
func RenderCSV(edges []schemas.DependencyEdge, quoting QuoteMode) string {
	var sb strings.Builder
	for _, e := range edges {
		sb.WriteString(quoteField(e.Parent, quoting))
		sb.WriteByte(',')
		sb.WriteString(quoteField(e.Child, quoting))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func quoteField(s string, quoting QuoteMode) string {
	if quoting != QuoteLegacy {
		s = strings.ReplaceAll(s, `"`, `""`)
	}
	return `"` + s + `"`
}
