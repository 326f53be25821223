// File: internal/collector/collector.go
package collector

import (
	"github.com/xkilldash9x/cadrefs/api/schemas"
)

// Collect turns the reference records of one parent into dependency edges.
// Virtual records are dropped; everything else is kept verbatim and in order.
func Collect(parent string, records []schemas.ReferenceRecord) []schemas.DependencyEdge {
	edges := make([]schemas.DependencyEdge, 0, len(records))
	for _, rec := range records {
		if rec.IsVirtual {
			continue
		}
		edges = append(edges, schemas.DependencyEdge{Parent: parent, Child: rec.Path})
	}
	return edges
}

// Report is the ordered edge list of one scan. It only ever grows.
type Report struct {
	edges []schemas.DependencyEdge
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{edges: make([]schemas.DependencyEdge, 0)}
}

// Append adds edges to the end of the report.
func (r *Report) Append(edges ...schemas.DependencyEdge) {
	r.edges = append(r.edges, edges...)
}

// Edges returns a copy of the accumulated edges in encounter order.
func (r *Report) Edges() []schemas.DependencyEdge {
	out := make([]schemas.DependencyEdge, len(r.edges))
	copy(out, r.edges)
	return out
}

// Len is the number of edges collected so far.
func (r *Report) Len() int {
	return len(r.edges)
}
