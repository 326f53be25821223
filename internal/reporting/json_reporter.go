// internal/reporting/json_reporter.go
package reporting

import (
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/cadrefs/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ToolName identifies the generator in structured reports.
const ToolName = "cadrefs"

// jsonDocument is the top-level shape of a JSON report. It carries no
// timestamps so repeated scans of an unchanged tree are byte-identical.
type jsonDocument struct {
	Tool      string                   `json:"tool"`
	Version   string                   `json:"version,omitempty"`
	EdgeCount int                      `json:"edge_count"`
	Edges     []schemas.DependencyEdge `json:"edges"`
}

// JSONReporter writes the edge list as a single indented JSON document.
type JSONReporter struct {
	writer  io.WriteCloser
	version string
}

// NewJSONReporter creates a JSONReporter that takes ownership of writer.
func NewJSONReporter(writer io.WriteCloser, toolVersion string) *JSONReporter {
	return &JSONReporter{writer: writer, version: toolVersion}
}

// Write encodes the edges.
func (r *JSONReporter) Write(edges []schemas.DependencyEdge) error {
	if edges == nil {
		edges = []schemas.DependencyEdge{}
	}
	doc := jsonDocument{
		Tool:      ToolName,
		Version:   r.version,
		EdgeCount: len(edges),
		Edges:     edges,
	}
	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return writeFailed(err)
	}
	return nil
}

// Close closes the underlying writer.
func (r *JSONReporter) Close() error {
	return r.writer.Close()
}
