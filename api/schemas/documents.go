package schemas

// -- Document Schemas --

// DocumentKind is the CAD file category inferred from a file's extension. It
// tells the document engine how to interpret the file.
type DocumentKind string

const (
	KindPart     DocumentKind = "part"
	KindAssembly DocumentKind = "assembly"
	KindDrawing  DocumentKind = "drawing"
	KindUnknown  DocumentKind = "unknown"
)

// Known reports whether the kind is one the document engine can open.
func (k DocumentKind) Known() bool {
	switch k {
	case KindPart, KindAssembly, KindDrawing:
		return true
	default:
		return false
	}
}

// ScanTarget is a discovered file together with its classified kind.
type ScanTarget struct {
	Path string       `json:"path"`
	Kind DocumentKind `json:"kind"`
}

// ReferenceRecord is one direct dependency of a parent document as reported by
// the engine. Virtual records have no backing file of their own.
type ReferenceRecord struct {
	Path      string `json:"path"`
	IsVirtual bool   `json:"is_virtual"`
}

// DependencyEdge is a confirmed, non-virtual direct reference from Parent to Child.
type DependencyEdge struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}
