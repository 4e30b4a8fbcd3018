package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/FairForge/metavault/internal/config"
	"github.com/FairForge/metavault/internal/folder"
	"github.com/FairForge/metavault/internal/logging"
	"github.com/FairForge/metavault/internal/metrics"
	"github.com/FairForge/metavault/internal/tagging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is the state shared by every command once the root pre-run has
// loaded configuration.
type app struct {
	configPath string
	logLevel   string

	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "metavault",
		Short:         "Keep JSON sidecars of an asset folder up to date",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(
		classifyCommand(a),
		reconcileCommand(a),
		watchCommand(a),
		thumbsCommand(a),
		searchCommand(a),
		verifyCommand(a),
		serveTagsCommand(a),
		tagsCommand(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.metrics = metrics.New()
	return nil
}

// openFolder opens the configured folder. dir, when set, replaces the
// configured local path.
func (a *app) openFolder(ctx context.Context, dir string) (folder.Folder, error) {
	if dir != "" || a.cfg.Folder.Kind == config.FolderLocal {
		if dir == "" {
			dir = a.cfg.Folder.Path
		}
		return folder.NewLocal(dir, a.logger)
	}
	return folder.NewS3(ctx, a.cfg.S3Options(), a.logger)
}

// newTagger builds the tag service the reconciler calls. It returns nil
// for the "none" provider.
func newTagger(cfg config.TaggingConfig, m *metrics.Metrics) (tagging.Service, error) {
	if cfg.Provider == config.ProviderNone {
		return nil, nil
	}

	var s tagging.Service
	if cfg.Provider == config.ProviderRemote {
		s = tagging.NewClient(cfg.Endpoint, cfg.UseImagga, cfg.Timeout)
	} else {
		var err error
		if s, err = newProvider(cfg.Provider, cfg); err != nil {
			return nil, err
		}
	}
	return tagging.Instrumented(s, cfg.Provider, m), nil
}

// newProvider builds a tagging backend that talks to a vision API
// directly, rate limited when configured.
func newProvider(name string, cfg config.TaggingConfig) (tagging.Service, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	var s tagging.Service
	switch name {
	case config.ProviderGoogle:
		if cfg.GoogleAPIKey == "" {
			return nil, fmt.Errorf("%s: %w", name, tagging.ErrNoCredentials)
		}
		s = tagging.NewGoogleVision(cfg.GoogleAPIKey, httpClient)
	case config.ProviderImagga:
		if cfg.ImaggaAPIKey == "" || cfg.ImaggaAPISecret == "" {
			return nil, fmt.Errorf("%s: %w", name, tagging.ErrNoCredentials)
		}
		s = tagging.NewImagga(cfg.ImaggaAPIKey, cfg.ImaggaAPISecret, httpClient)
	case config.ProviderDummy:
		return tagging.NewDummy(uint64(time.Now().UnixNano())), nil
	default:
		return nil, fmt.Errorf("unknown tag provider %q", name)
	}

	if cfg.RatePerSecond > 0 {
		s = tagging.NewLimited(s, cfg.RatePerSecond, cfg.Burst)
	}
	return s, nil
}
