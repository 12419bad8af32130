package tui

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whisper-im/whisper/internal/config"
	"github.com/whisper-im/whisper/internal/httpapi"
	"github.com/whisper-im/whisper/internal/logging"
	"github.com/whisper-im/whisper/internal/session"
	"github.com/whisper-im/whisper/internal/transport"
)

// Execute runs the whisper client command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	var (
		configFile string
		serverURL  string
		token      string
		logLevel   string
		logFormat  string
		theme      string
	)

	cmd := &cobra.Command{
		Use:           "whisper",
		Short:         "Whisper messaging client",
		Long:          "Terminal client for the Whisper messaging server: live conversation list, open chat, read receipts.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader()
			if configFile != "" {
				loader.SetConfigFile(configFile)
			}
			// CLI flags win over file and environment.
			if serverURL != "" {
				loader.Set("server.base_url", serverURL)
			}
			if token != "" {
				loader.Set("server.token", token)
			}
			if logLevel != "" {
				loader.Set("logging.level", logLevel)
			}
			if logFormat != "" {
				loader.Set("logging.format", logFormat)
			}
			if theme != "" {
				loader.Set("tui.theme", theme)
			}

			cfg, err := loader.Load()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "config file path")
	cmd.Flags().StringVar(&serverURL, "server", "", "server base URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "log format: json|console")
	cmd.Flags().StringVar(&theme, "theme", "", "theme: default|high-contrast")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	logger := logging.Component("whisper")

	if cfg.Server.Token == "" {
		return fmt.Errorf("no token configured (set WHISPER_SERVER_TOKEN or --token)")
	}

	sess := session.New(cfg.Server.Token)
	api := httpapi.NewClient(cfg.Server.BaseURL, sess,
		httpapi.WithTimeout(cfg.Server.RequestTimeout))

	establishCtx, cancel := context.WithTimeout(ctx, cfg.Server.RequestTimeout)
	defer cancel()
	if err := sess.Establish(establishCtx, api); err != nil {
		return fmt.Errorf("establish session: %w", err)
	}
	if user, err := sess.User(); err == nil {
		logger.Info().Str("phone", sess.Phone()).Str("user", user.DisplayName()).Msg("session established")
	}

	tr := transport.NewWSTransport(transport.WSConfig{
		URL:              cfg.Server.EffectiveWSURL(),
		Tokens:           sess,
		ReconnectInitial: cfg.Sync.ReconnectInitial,
		ReconnectMax:     cfg.Sync.ReconnectMax,
		DialTimeout:      cfg.Server.RequestTimeout,
		SubscribeBuffer:  cfg.Sync.SubscribeBuffer,
	})
	connectCtx, cancelConnect := context.WithTimeout(ctx, cfg.Server.RequestTimeout)
	defer cancelConnect()
	if err := tr.Connect(connectCtx); err != nil {
		return fmt.Errorf("connect push transport: %w", err)
	}
	defer func() {
		if err := tr.Disconnect(); err != nil {
			logger.Warn().Err(err).Msg("disconnect failed")
		}
		sess.Teardown()
	}()

	return Run(Config{
		Session:        sess,
		API:            api,
		Transport:      tr,
		SweepInterval:  cfg.Sync.ReadSweepInterval,
		PollInterval:   cfg.Sync.ListPollInterval,
		Theme:          cfg.TUI.Theme,
		ShowTimestamps: cfg.TUI.ShowTimestamps,
	})
}
