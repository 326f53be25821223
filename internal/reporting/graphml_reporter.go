// internal/reporting/graphml_reporter.go
package reporting

import (
	"fmt"
	"io"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/cadrefs/api/schemas"
)

const graphMLNamespace = "http://graphml.graphdrawing.org/xmlns"

// GraphMLReporter writes the edge list as a directed GraphML graph so it can be
// opened in graph tools (yEd, Gephi). Every distinct path becomes one node, in
// first-seen order; every edge is kept, duplicates included.
type GraphMLReporter struct {
	writer io.WriteCloser
}

// NewGraphMLReporter creates a GraphMLReporter that takes ownership of writer.
func NewGraphMLReporter(writer io.WriteCloser) *GraphMLReporter {
	return &GraphMLReporter{writer: writer}
}

// Write builds the document and writes it out.
func (r *GraphMLReporter) Write(edges []schemas.DependencyEdge) error {
	doc := BuildGraphML(edges)
	if _, err := doc.WriteTo(r.writer); err != nil {
		return writeFailed(err)
	}
	return nil
}

// Close closes the underlying writer.
func (r *GraphMLReporter) Close() error {
	return r.writer.Close()
}

// BuildGraphML converts edges into a GraphML document.
func BuildGraphML(edges []schemas.DependencyEdge) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("graphml")
	root.CreateAttr("xmlns", graphMLNamespace)

	key := root.CreateElement("key")
	key.CreateAttr("id", "path")
	key.CreateAttr("for", "node")
	key.CreateAttr("attr.name", "path")
	key.CreateAttr("attr.type", "string")

	graph := root.CreateElement("graph")
	graph.CreateAttr("id", "references")
	graph.CreateAttr("edgedefault", "directed")

	ids := make(map[string]string)
	nodeID := func(path string) string {
		if id, ok := ids[path]; ok {
			return id
		}
		id := fmt.Sprintf("n%d", len(ids))
		ids[path] = id
		node := graph.CreateElement("node")
		node.CreateAttr("id", id)
		data := node.CreateElement("data")
		data.CreateAttr("key", "path")
		data.SetText(path)
		return id
	}

	// Nodes are created lazily, so edges are appended after all nodes.
	type pair struct{ source, target string }
	pairs := make([]pair, 0, len(edges))
	for _, e := range edges {
		pairs = append(pairs, pair{source: nodeID(e.Parent), target: nodeID(e.Child)})
	}
	for i, p := range pairs {
		edge := graph.CreateElement("edge")
		edge.CreateAttr("id", fmt.Sprintf("e%d", i))
		edge.CreateAttr("source", p.source)
		edge.CreateAttr("target", p.target)
	}

	doc.Indent(2)
	return doc
}
