package engine

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/cadrefs/api/schemas"
)

// Throttle limits OpenDocument calls across every handle of eng to perSecond.
// A non-positive rate returns eng unchanged.
func Throttle(eng schemas.DocumentEngine, perSecond float64) schemas.DocumentEngine {
	if perSecond <= 0 {
		return eng
	}
	return &throttledEngine{
		DocumentEngine: eng,
		limiter:        rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

type throttledEngine struct {
	schemas.DocumentEngine
	limiter *rate.Limiter
}

func (e *throttledEngine) ObtainHandle(ctx context.Context, licenseKey string) (schemas.EngineHandle, error) {
	h, err := e.DocumentEngine.ObtainHandle(ctx, licenseKey)
	if err != nil {
		return nil, err
	}
	return &throttledHandle{EngineHandle: h, limiter: e.limiter}, nil
}

type throttledHandle struct {
	schemas.EngineHandle
	limiter *rate.Limiter
}

func (h *throttledHandle) OpenDocument(ctx context.Context, path string, kind schemas.DocumentKind, readOnly bool) (schemas.DocumentHandle, schemas.OpenStatus, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return schemas.DocumentHandle{}, schemas.OpenStatusFailed, err
	}
	return h.EngineHandle.OpenDocument(ctx, path, kind, readOnly)
}
