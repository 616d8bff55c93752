package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-flux/pkg/config"
	"github.com/ekaya-inc/ekaya-flux/pkg/logging"
	"github.com/ekaya-inc/ekaya-flux/pkg/server"
)

func newServeCmd(configPath *string, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, *configPath, version)
		},
	}
}

func runServe(cmd *cobra.Command, configPath, version string) error {
	cfg, err := config.LoadFile(configPath, version)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("addr", cfg.Addr()),
		zap.Bool("tls", cfg.TLSEnabled()),
		zap.Duration("session_ttl", cfg.Session.TTL),
		zap.Strings("cors_origins", cfg.CORS.AllowedOrigins),
	)

	return server.New(cfg, logger).Run(cmd.Context())
}
