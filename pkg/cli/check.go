package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-flux/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-flux/pkg/adapters/datasource/influx"
	"github.com/ekaya-inc/ekaya-flux/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-flux/pkg/config"
	"github.com/ekaya-inc/ekaya-flux/pkg/logging"
	"github.com/ekaya-inc/ekaya-flux/pkg/services"
	"github.com/ekaya-inc/ekaya-flux/pkg/session"
)

const tokenEnvVar = "INFLUX_TOKEN"

func newCheckCmd(configPath *string, version string) *cobra.Command {
	var url, org, token string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe an InfluxDB instance with the same test the connect endpoint runs",
		Long: "check runs the connect-time probe against an InfluxDB instance and prints the " +
			"classified result. The token may be given with --token or the " + tokenEnvVar + " variable.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				token = os.Getenv(tokenEnvVar)
			}
			cfg, err := config.LoadFile(*configPath, version)
			if err != nil {
				return err
			}
			return runCheck(cmd, cfg, services.ConnectRequest{URL: url, Token: token, Organization: org})
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "InfluxDB base URL")
	cmd.Flags().StringVar(&org, "org", "", "InfluxDB organization")
	cmd.Flags().StringVar(&token, "token", "", "InfluxDB API token (default $"+tokenEnvVar+")")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("org")

	return cmd
}

func runCheck(cmd *cobra.Command, cfg *config.Config, req services.ConnectRequest) error {
	logger, err := logging.NewLogger(false, "error")
	if err != nil {
		return err
	}

	clients := datasource.NewClientCache(influx.NewFactory(influx.Options{
		RequestTimeout:    cfg.Influx.RequestTimeout,
		ResolveDockerHost: cfg.Influx.ResolveDockerHost,
		AppName:           "ekaya-flux-check/" + cfg.Version,
		Logger:            logger,
	}), logger)
	defer func() { _ = clients.Close() }()

	proxy := services.NewQueryProxy(clients, services.QueryProxyConfig{
		DefaultRowLimit: cfg.Influx.DefaultRowLimit,
		MaxRowLimit:     cfg.Influx.MaxRowLimit,
	}, logger)
	sessions := session.NewStore(session.Config{}, logger)
	defer func() { _ = sessions.Close() }()

	gateway := services.NewAuthGateway(proxy, sessions, services.AuthGatewayConfig{
		MinTokenLength: cfg.Influx.MinTokenLength,
	}, logger)

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Influx.RequestTimeout)
	defer cancel()

	if _, err := gateway.Connect(ctx, req); err != nil {
		if u, ok := apperrors.AsUpstream(err); ok {
			logger.Debug("probe failed", zap.String("error", logging.SanitizeError(u.Err)))
			return fmt.Errorf("%s: %s", u.Category, u.Message)
		}
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "OK: connected to %s (org %s)\n",
		logging.SanitizeURL(req.URL), req.Organization)
	return err
}
