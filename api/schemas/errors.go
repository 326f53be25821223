package schemas

import (
	"errors"
	"fmt"
)

// -- Error Taxonomy --

var (
	// ErrEngineUnavailable means the document engine could not be activated. Fatal.
	ErrEngineUnavailable = errors.New("document engine unavailable")
	// ErrUnknownDocumentKind means a file's extension is not a known CAD type. Recoverable.
	ErrUnknownDocumentKind = errors.New("unknown document kind")
	// ErrDocumentOpenFailed means the engine refused to open a classified file. Recoverable.
	ErrDocumentOpenFailed = errors.New("document open failed")
	// ErrReferenceQueryFailed means an open document's reference table could not be read. Recoverable.
	ErrReferenceQueryFailed = errors.New("reference query failed")
	// ErrReportWriteFailed means the output report could not be written. Fatal.
	ErrReportWriteFailed = errors.New("report write failed")
	// ErrPartialScan is returned in strict mode when any file failed.
	ErrPartialScan = errors.New("scan completed with per-file failures")
)

// DocumentError describes a per-file failure. It unwraps to one of the
// sentinel errors above so callers can use errors.Is.
type DocumentError struct {
	Path   string
	Status OpenStatus
	Kind   error
	Cause  error
}

func (e *DocumentError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%v: %s", e.Kind, e.Path)
	if e.Status != OpenStatusOK {
		msg += fmt.Sprintf(" (status %s)", e.Status)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel kind and the underlying cause.
func (e *DocumentError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := []error{e.Kind}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}
