package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llmedged/internal/config"
	"llmedged/internal/engine"
	"llmedged/internal/httpapi"
	"llmedged/internal/lifecycle"
	"llmedged/internal/registry"
	"llmedged/pkg/types"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type flags struct {
	configPath        string
	addr              string
	modelsDir         string
	registryFile      string
	contextSize       int
	memoryFloorMB     int64
	preferPerformance bool
	logLevel          string
}

func rootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "llmedged",
		Short:         "On-device model lifecycle and generation daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", os.Getenv("LLMEDGED_CONFIG"), "Path to config file (yaml/json/toml)")
	root.PersistentFlags().StringVar(&f.addr, "addr", "", "HTTP listen address, e.g. :8080")
	root.PersistentFlags().StringVar(&f.modelsDir, "models-dir", "", "Directory to scan for model weight files")
	root.PersistentFlags().StringVar(&f.registryFile, "registry", "", "Explicit model registry file (overrides --models-dir)")
	root.PersistentFlags().IntVar(&f.contextSize, "context-size", 0, "Context window for text models")
	root.PersistentFlags().Int64Var(&f.memoryFloorMB, "memory-floor-mb", 0, "Available-memory floor for proactive eviction (MB)")
	root.PersistentFlags().BoolVar(&f.preferPerformance, "prefer-performance", false, "Keep hot models resident and relax load staging")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "Log level: debug|info|warn|error")

	root.AddCommand(serveCmd(f), modelsCmd(f), sanityCmd())
	return root
}

// loadConfig merges the optional config file with command-line overrides and
// fills remaining defaults.
func loadConfig(f *flags) (config.Config, error) {
	var cfg config.Config
	if f.configPath != "" {
		var err error
		cfg, err = config.Load(f.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	if f.addr != "" {
		cfg.Addr = f.addr
	}
	if f.modelsDir != "" {
		cfg.ModelsDir = f.modelsDir
	}
	if f.registryFile != "" {
		cfg.RegistryFile = f.registryFile
	}
	if f.contextSize != 0 {
		cfg.ContextSize = f.contextSize
	}
	if f.memoryFloorMB != 0 {
		cfg.MemoryFloorMB = f.memoryFloorMB
	}
	if f.preferPerformance {
		cfg.PreferPerformance = true
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8080"
		if v := os.Getenv("LLMEDGED_ADDR"); v != "" {
			cfg.Addr = v
		}
	}
	if cfg.ModelsDir == "" && cfg.RegistryFile == "" {
		cfg.ModelsDir = "~/models"
	}
	return cfg, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func loadRegistry(cfg config.Config) ([]types.Model, error) {
	if cfg.RegistryFile != "" {
		return registry.LoadFile(cfg.RegistryFile)
	}
	return registry.LoadDir(cfg.ModelsDir)
}

func buildManager(cfg config.Config, log zerolog.Logger, models []types.Model) *lifecycle.Manager {
	budgets := make(map[types.Family]lifecycle.FamilyBudget, len(cfg.Budgets))
	for _, b := range cfg.Budgets {
		budgets[types.Family(b.Family)] = lifecycle.FamilyBudget{
			MaxCount: b.MaxCount,
			MaxBytes: b.MaxMB << 20,
		}
	}
	return lifecycle.NewManager(lifecycle.ManagerConfig{
		Engine:              engine.NewNativeEngine(),
		Registry:            models,
		Budgets:             budgets,
		MemoryFloorBytes:    cfg.MemoryFloorMB << 20,
		CrossFamilyEviction: cfg.CrossFamilyEviction,
		PreferPerformance:   cfg.PreferPerformance,
		ContextSize:         cfg.ContextSize,
		Logger:              &log,
	})
}

func serveCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)

			models, err := loadRegistry(cfg)
			if err != nil {
				return fmt.Errorf("load registry: %w", err)
			}
			log.Info().Int("models", len(models)).Str("addr", cfg.Addr).
				Bool("native", engine.NativeBuilt()).Msg("starting")

			mgr := buildManager(cfg, log, models)

			httpapi.SetLogger(log)
			if cfg.MaxBodyMB > 0 {
				httpapi.SetMaxBodyBytes(cfg.MaxBodyMB << 20)
			}
			httpapi.SetGenerateTimeoutSeconds(cfg.GenerateTimeoutSec)
			httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)

			baseCtx, stopBase := context.WithCancel(context.Background())
			defer stopBase()
			httpapi.SetBaseContext(baseCtx)

			srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(mgr)}
			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// Graceful shutdown (Ctrl+C / SIGTERM)
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-stop:
			}
			log.Info().Msg("shutting down")
			stopBase() // cancels in-flight generations

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Warn().Err(err).Msg("graceful shutdown error")
			}
			if err := mgr.UnloadAll(ctx); err != nil {
				log.Warn().Err(err).Msg("unload at shutdown")
			}
			return nil
		},
	}
}

func modelsCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Print the model registry as JSON and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			models, err := loadRegistry(cfg)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(types.ModelsResponse{Models: models})
		},
	}
}

func sanityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sanity",
		Short: "Report build capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "native engine built: %v\n", engine.NativeBuilt())
			return nil
		},
	}
}
