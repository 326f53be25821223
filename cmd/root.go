package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cadrefs/api/schemas"
	"github.com/xkilldash9x/cadrefs/internal/config"
	"github.com/xkilldash9x/cadrefs/internal/observability"
)

type contextKey string

const configKey contextKey = "cadrefs.config"

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"format":      "report.format",
	"quoting":     "report.quoting",
	"concurrency": "scan.concurrency",
	"engine":      "engine.type",
	"fixture":     "engine.fixture_path",
	"strict":      "scan.fail_on_error",
}

// Execute builds the root command and runs it with ctx. Errors are logged
// here; callers only map them to an exit status.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return nil
	}

	logger := observability.GetLogger()
	switch {
	case errors.Is(err, context.Canceled):
		logger.Error("Scan interrupted; no report written", zap.Error(err))
	case errors.Is(err, schemas.ErrPartialScan):
		logger.Error("Scan finished with failures", zap.Error(err))
	default:
		logger.Error("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// NewRootCommand returns a fresh root command. Every call gets its own viper
// instance, so commands built in tests never share state.
func NewRootCommand() *cobra.Command {
	var cfgFile string
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "cadrefs [flags] <base-dir> <out-file> <license-key>",
		Short: "cadrefs writes the external-reference graph of a CAD file tree.",
		Long: `cadrefs walks <base-dir>, opens every part, assembly and drawing through the
CAD engine and writes one "parent","child" line per external reference to <out-file>.
Use "-" as <out-file> to write the report to stdout.`,
		Version: Version,
		Args:    cobra.ExactArgs(3),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Arguments are valid at this point; further errors are not usage errors.
			cmd.SilenceUsage = true

			config.SetDefaults(v)
			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				observability.InitializeLogger(fallbackLoggerConfig())
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(fallbackLoggerConfig())
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting cadrefs", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			_, err = runScan(cmd.Context(), observability.GetLogger(), cfg, args, defaultScanDeps())
			return err
		},
	}

	cmd.SilenceErrors = true
	cmd.SetVersionTemplate(`{{printf "cadrefs %s\n" .Version}}`)

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./cadrefs.yaml)")
	cmd.Flags().StringP("format", "f", "csv", "report format: csv, json or graphml")
	cmd.Flags().String("quoting", "escape", "CSV quote handling: escape or legacy")
	cmd.Flags().IntP("concurrency", "j", 1, "number of engine handles used in parallel")
	cmd.Flags().String("engine", config.EngineHelper, "document engine: helper or fixture")
	cmd.Flags().String("fixture", "", "YAML fixture used by the fixture engine")
	cmd.Flags().Bool("strict", false, "exit with status 2 when any file fails")

	cmd.AddCommand(newReportCmd())
	return cmd
}

// initializeConfig reads the config file and environment and binds the flags.
// Precedence is flag, env, file, default.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("cadrefs")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CADREFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit --config must exist; the default file is optional.
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %q: %w", name, err)
		}
	}
	return nil
}

func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

func fallbackLoggerConfig() config.LoggerConfig {
	return config.LoggerConfig{Level: "info", Format: "console", ServiceName: "cadrefs"}
}
