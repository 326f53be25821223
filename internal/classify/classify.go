// File: internal/classify/classify.go
package classify

import (
	"strings"

	"github.com/xkilldash9x/cadrefs/api/schemas"
)

// suffixes maps lowercased file suffixes to the document kind the engine
// expects. The match is on the suffix alone, with or without a dot before it.
var suffixes = []struct {
	suffix string
	kind   schemas.DocumentKind
}{
	{"sldprt", schemas.KindPart},
	{"sldasm", schemas.KindAssembly},
	{"slddrw", schemas.KindDrawing},
}

// Classify maps a file path to its document kind by extension, ignoring case.
// It never fails; anything unrecognized is schemas.KindUnknown.
func Classify(path string) schemas.DocumentKind {
	lower := strings.ToLower(path)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s.suffix) {
			return s.kind
		}
	}
	return schemas.KindUnknown
}

// Target classifies path and wraps the result in a ScanTarget.
func Target(path string) schemas.ScanTarget {
	return schemas.ScanTarget{Path: path, Kind: Classify(path)}
}
