package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/cadrefs/api/schemas"
)

// Fixture is a canned reference table that stands in for the CAD engine.
//
//	license_key: demo
//	root: /cad
//	documents:
//	  b.sldasm:
//	    references:
//	      - path: a.sldprt
//	      - path: env.sldprt
//	        virtual: true
//	  corrupt.sldprt:
//	    open_status: future_version
//
// A document listed without a references key has no reference table. Paths
// that are not listed fail to open with file_not_found.
type Fixture struct {
	LicenseKey string                     `yaml:"license_key"`
	Root       string                     `yaml:"root"`
	Documents  map[string]FixtureDocument `yaml:"documents"`
}

// FixtureDocument is one entry of a Fixture.
type FixtureDocument struct {
	OpenStatus string                      `yaml:"open_status"`
	References []schemas.ExternalReference `yaml:"references"`
}

// FixtureEngine serves OpenDocument and QueryExternalReferences from a Fixture.
type FixtureEngine struct {
	licenseKey string
	documents  map[string]FixtureDocument
}

// LoadFixture reads and parses a fixture file.
func LoadFixture(path string) (*FixtureEngine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	eng, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	return eng, nil
}

// ParseFixture builds a FixtureEngine from YAML.
func ParseFixture(data []byte) (*FixtureEngine, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return NewFixtureEngine(f), nil
}

// NewFixtureEngine resolves relative paths in f against f.Root.
func NewFixtureEngine(f Fixture) *FixtureEngine {
	docs := make(map[string]FixtureDocument, len(f.Documents))
	for path, doc := range f.Documents {
		if doc.References != nil {
			refs := make([]schemas.ExternalReference, len(doc.References))
			for i, ref := range doc.References {
				ref.Path = f.resolve(ref.Path)
				refs[i] = ref
			}
			doc.References = refs
		}
		docs[f.resolve(path)] = doc
	}
	return &FixtureEngine{licenseKey: f.LicenseKey, documents: docs}
}

func (f Fixture) resolve(path string) string {
	if f.Root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(f.Root, path)
	}
	return filepath.Clean(path)
}

// ObtainHandle checks licenseKey against the fixture's key, if it has one.
func (e *FixtureEngine) ObtainHandle(_ context.Context, licenseKey string) (schemas.EngineHandle, error) {
	if e.licenseKey != "" && licenseKey != e.licenseKey {
		return nil, fmt.Errorf("%w: license key rejected", schemas.ErrEngineUnavailable)
	}
	return &fixtureHandle{engine: e}, nil
}

// SupportsConcurrentHandles is true; the table is read-only.
func (e *FixtureEngine) SupportsConcurrentHandles() bool { return true }

type fixtureHandle struct {
	engine *FixtureEngine

	mu       sync.Mutex
	seq      int
	open     *schemas.DocumentHandle
	released bool
}

func (h *fixtureHandle) OpenDocument(ctx context.Context, path string, kind schemas.DocumentKind, _ bool) (schemas.DocumentHandle, schemas.OpenStatus, error) {
	if err := ctx.Err(); err != nil {
		return schemas.DocumentHandle{}, schemas.OpenStatusFailed, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return schemas.DocumentHandle{}, schemas.OpenStatusFailed, errHandleReleased
	}
	if h.open != nil {
		return schemas.DocumentHandle{}, schemas.OpenStatusFailed, fmt.Errorf("document %s is still open", h.open.Path)
	}

	doc, ok := h.engine.documents[filepath.Clean(path)]
	if !ok {
		return schemas.DocumentHandle{}, schemas.OpenStatusFileNotFound, nil
	}
	if status := schemas.ParseOpenStatus(doc.OpenStatus); status != schemas.OpenStatusOK {
		return schemas.DocumentHandle{}, status, nil
	}

	h.seq++
	handle := schemas.DocumentHandle{ID: strconv.Itoa(h.seq), Path: path, Kind: kind}
	h.open = &handle
	return handle, schemas.OpenStatusOK, nil
}

func (h *fixtureHandle) QueryExternalReferences(ctx context.Context, doc schemas.DocumentHandle, _ schemas.SearchOptions) ([]schemas.ExternalReference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.open == nil || h.open.ID != doc.ID {
		return nil, fmt.Errorf("document %q is not open", doc.ID)
	}

	refs := h.engine.documents[filepath.Clean(doc.Path)].References
	if refs == nil {
		return nil, nil
	}
	out := make([]schemas.ExternalReference, len(refs))
	copy(out, refs)
	return out, nil
}

func (h *fixtureHandle) CloseDocument(_ context.Context, doc schemas.DocumentHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.open == nil || h.open.ID != doc.ID {
		return fmt.Errorf("document %q is not open", doc.ID)
	}
	h.open = nil
	return nil
}

func (h *fixtureHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.released = true
	h.open = nil
	return nil
}
