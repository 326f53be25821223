// Package engine provides the DocumentEngine implementations the scanner can
// run against: a helper process that bridges to the licensed CAD engine, and a
// YAML fixture for dry runs.
package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cadrefs/api/schemas"
	"github.com/xkilldash9x/cadrefs/internal/config"
)

// New builds the engine selected by cfg, wrapped in an open throttle when
// cfg.MaxOpenRate is set.
func New(cfg config.EngineConfig, logger *zap.Logger) (schemas.DocumentEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		eng schemas.DocumentEngine
		err error
	)
	switch cfg.Type {
	case config.EngineHelper:
		eng = NewHelperEngine(HelperConfig{
			Path:           cfg.HelperPath,
			Args:           cfg.HelperArgs,
			StartupTimeout: cfg.StartupTimeout,
		}, logger)
	case config.EngineFixture:
		eng, err = LoadFixture(cfg.FixturePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", schemas.ErrEngineUnavailable, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown engine type %q", schemas.ErrEngineUnavailable, cfg.Type)
	}

	if cfg.MaxOpenRate > 0 {
		logger.Debug("Throttling document opens", zap.Float64("per_second", cfg.MaxOpenRate))
	}
	return Throttle(eng, cfg.MaxOpenRate), nil
}
