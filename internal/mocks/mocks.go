// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/cadrefs/api/schemas"
)

// -- Document Engine Mock --

// MockDocumentEngine mocks the schemas.DocumentEngine interface.
type MockDocumentEngine struct {
	mock.Mock
}

func (m *MockDocumentEngine) ObtainHandle(ctx context.Context, licenseKey string) (schemas.EngineHandle, error) {
	args := m.Called(ctx, licenseKey)
	var handle schemas.EngineHandle
	if h := args.Get(0); h != nil {
		handle = h.(schemas.EngineHandle)
	}
	return handle, args.Error(1)
}

func (m *MockDocumentEngine) SupportsConcurrentHandles() bool {
	args := m.Called()
	return args.Bool(0)
}

// -- Engine Handle Mock --

// MockEngineHandle mocks the schemas.EngineHandle interface.
type MockEngineHandle struct {
	mock.Mock
}

func (m *MockEngineHandle) OpenDocument(ctx context.Context, path string, kind schemas.DocumentKind, readOnly bool) (schemas.DocumentHandle, schemas.OpenStatus, error) {
	args := m.Called(ctx, path, kind, readOnly)
	return args.Get(0).(schemas.DocumentHandle), args.Get(1).(schemas.OpenStatus), args.Error(2)
}

func (m *MockEngineHandle) QueryExternalReferences(ctx context.Context, doc schemas.DocumentHandle, opts schemas.SearchOptions) ([]schemas.ExternalReference, error) {
	args := m.Called(ctx, doc, opts)
	var refs []schemas.ExternalReference
	if r := args.Get(0); r != nil {
		refs = r.([]schemas.ExternalReference)
	}
	return refs, args.Error(1)
}

func (m *MockEngineHandle) CloseDocument(ctx context.Context, doc schemas.DocumentHandle) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockEngineHandle) Release() error {
	args := m.Called()
	return args.Error(0)
}
