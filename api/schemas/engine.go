package schemas

import (
	"context"
	"strings"
	"time"
)

// -- Document Engine Interfaces --

// DocumentEngine is the licensed CAD document-inspection service. The core
// pipeline never reaches it through global state; a single engine value is
// injected and handles are obtained from it explicitly.
//
//go:generate mockery --name DocumentEngine --output ../../internal/mocks --outpkg mocks
type DocumentEngine interface {
	// ObtainHandle activates the engine with the given license key. Failures
	// wrap ErrEngineUnavailable.
	ObtainHandle(ctx context.Context, licenseKey string) (EngineHandle, error)
	// SupportsConcurrentHandles reports whether several handles may be used
	// from different goroutines at the same time.
	SupportsConcurrentHandles() bool
}

// EngineHandle is an activated session against the document engine. A handle
// must only have one document open at a time.
//
//go:generate mockery --name EngineHandle --output ../../internal/mocks --outpkg mocks
type EngineHandle interface {
	// OpenDocument opens path for inspection. A non-nil error means the request
	// never reached the engine; a status other than OpenStatusOK means the
	// engine refused the document.
	OpenDocument(ctx context.Context, path string, kind DocumentKind, readOnly bool) (DocumentHandle, OpenStatus, error)
	// QueryExternalReferences returns the direct external references of an open
	// document. A nil slice means the engine reported no reference table.
	QueryExternalReferences(ctx context.Context, doc DocumentHandle, opts SearchOptions) ([]ExternalReference, error)
	// CloseDocument releases the engine's per-document resources.
	CloseDocument(ctx context.Context, doc DocumentHandle) error
	// Release gives the handle back to the engine.
	Release() error
}

// DocumentHandle identifies an open document within one EngineHandle.
type DocumentHandle struct {
	ID   string       `json:"id"`
	Path string       `json:"path"`
	Kind DocumentKind `json:"kind"`
}

// SearchOptions controls how the engine locates referenced files.
type SearchOptions struct {
	// SearchPaths are extra folders the engine searches for referenced files.
	SearchPaths []string `json:"search_paths,omitempty" yaml:"search_paths,omitempty"`
	// Filters is the engine-specific search filter bit mask. Zero keeps the
	// engine default.
	Filters int `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// ExternalReference is a raw entry of a document's external reference table.
type ExternalReference struct {
	Path      string    `json:"path" yaml:"path"`
	IsVirtual bool      `json:"virtual" yaml:"virtual"`
	Broken    bool      `json:"broken,omitempty" yaml:"broken,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
}

// OpenStatus is the engine's verdict on an OpenDocument request.
type OpenStatus int

const (
	OpenStatusOK OpenStatus = iota
	OpenStatusFailed
	OpenStatusFileNotFound
	OpenStatusFileReadOnly
	OpenStatusNotCADFile
	OpenStatusFutureVersion
	OpenStatusLicenseRejected
)

var openStatusNames = map[OpenStatus]string{
	OpenStatusOK:              "ok",
	OpenStatusFailed:          "failed",
	OpenStatusFileNotFound:    "file_not_found",
	OpenStatusFileReadOnly:    "file_read_only",
	OpenStatusNotCADFile:      "not_cad_file",
	OpenStatusFutureVersion:   "future_version",
	OpenStatusLicenseRejected: "license_rejected",
}

func (s OpenStatus) String() string {
	if name, ok := openStatusNames[s]; ok {
		return name
	}
	return "failed"
}

// ParseOpenStatus maps a status name back to its value. Unrecognized names
// are reported as OpenStatusFailed. An empty name means OK.
func ParseOpenStatus(name string) OpenStatus {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return OpenStatusOK
	}
	for status, n := range openStatusNames {
		if n == name {
			return status
		}
	}
	return OpenStatusFailed
}
