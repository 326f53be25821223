// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xkilldash9x/cadrefs/api/schemas"
)

// Supported report formats.
const (
	FormatCSV     = "csv"
	FormatJSON    = "json"
	FormatGraphML = "graphml"
)

// QuoteMode controls how double quotes inside paths are written to CSV.
type QuoteMode string

const (
	// QuoteEscape doubles embedded quotes (RFC 4180).
	QuoteEscape QuoteMode = "escape"
	// QuoteLegacy writes paths verbatim between quotes, embedded quotes included.
	QuoteLegacy QuoteMode = "legacy"
)

// Options tune the rendering of a report.
type Options struct {
	Quoting     QuoteMode
	ToolVersion string
}

// Reporter writes a complete edge list to an output.
type Reporter interface {
	// Write renders the full edge list. It is called once per report.
	Write(edges []schemas.DependencyEdge) error
	// Close finalizes the report and closes any underlying file handle.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// IsStdout reports whether outputPath designates standard output. Only "-"
// does; any other value, including "stdout", is a file path.
func IsStdout(outputPath string) bool {
	return outputPath == "-"
}

// ValidateFormat checks format and quoting without touching the filesystem.
func ValidateFormat(format string, quoting QuoteMode) error {
	switch strings.ToLower(format) {
	case FormatCSV, FormatJSON, FormatGraphML:
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
	switch quoting {
	case "", QuoteEscape, QuoteLegacy:
		return nil
	default:
		return fmt.Errorf("unsupported quoting mode: %s", quoting)
	}
}

// New creates a reporter for format writing to outputPath. The file is created
// (and truncated) immediately; failures wrap schemas.ErrReportWriteFailed.
func New(format, outputPath string, opts Options) (Reporter, error) {
	if err := ValidateFormat(format, opts.Quoting); err != nil {
		return nil, err
	}
	if outputPath == "" {
		return nil, fmt.Errorf("%w: output path is empty", schemas.ErrReportWriteFailed)
	}
	if opts.Quoting == "" {
		opts.Quoting = QuoteEscape
	}

	var writer io.WriteCloser
	if IsStdout(outputPath) {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create output file %s: %w", schemas.ErrReportWriteFailed, outputPath, err)
		}
		writer = f
	}

	switch strings.ToLower(format) {
	case FormatJSON:
		return NewJSONReporter(writer, opts.ToolVersion), nil
	case FormatGraphML:
		return NewGraphMLReporter(writer), nil
	default:
		return NewCSVReporter(writer, opts.Quoting), nil
	}
}

// writeFailed wraps an I/O error in the report-write sentinel.
func writeFailed(err error) error {
	return fmt.Errorf("%w: %w", schemas.ErrReportWriteFailed, err)
}
