// Package influx implements datasource.Client on top of influxdb-client-go.
package influx

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-flux/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-flux/pkg/config"
	"github.com/ekaya-inc/ekaya-flux/pkg/logging"
)

const DefaultRequestTimeout = 30 * time.Second

// Options configure every client built by NewFactory.
type Options struct {
	RequestTimeout    time.Duration
	ResolveDockerHost bool
	AppName           string
	Logger            *zap.Logger
}

// NewFactory returns a datasource.ClientFactory producing InfluxDB clients.
// Building a client does not contact the server.
func NewFactory(opts Options) datasource.ClientFactory {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.AppName == "" {
		opts.AppName = "ekaya-flux"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.Named("influx")

	return func(cfg datasource.ClientConfig) datasource.Client {
		serverURL := cfg.URL
		if opts.ResolveDockerHost {
			serverURL = config.ResolveURLForDocker(serverURL)
		}

		seconds := uint(opts.RequestTimeout / time.Second)
		if seconds == 0 {
			seconds = 1
		}
		clientOpts := influxdb2.DefaultOptions().
			SetHTTPRequestTimeout(seconds).
			SetApplicationName(opts.AppName)

		c := influxdb2.NewClientWithOptions(serverURL, cfg.Token, clientOpts)

		logger.Debug("influx client built",
			zap.String("url", logging.SanitizeURL(serverURL)),
			zap.String("org", cfg.Organization),
		)

		return &client{
			inner:    c,
			queryAPI: c.QueryAPI(cfg.Organization),
		}
	}
}

type client struct {
	inner    influxdb2.Client
	queryAPI api.QueryAPI
}

var _ datasource.Client = (*client)(nil)

func (c *client) Query(ctx context.Context, flux string) (datasource.RowStream, error) {
	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, err
	}
	return &rowStream{result: result}, nil
}

func (c *client) Close() {
	c.inner.Close()
}

// rowStream adapts api.QueryTableResult. Columns are refreshed whenever the
// result moves to a new table, since Flux tables may differ in shape.
type rowStream struct {
	result  *api.QueryTableResult
	columns []string
	closed  bool
}

var _ datasource.RowStream = (*rowStream)(nil)

func (s *rowStream) Next() bool {
	if s.closed {
		return false
	}
	if !s.result.Next() {
		return false
	}
	if s.columns == nil || s.result.TableChanged() {
		meta := s.result.TableMetadata()
		cols := meta.Columns()
		s.columns = make([]string, len(cols))
		for i, col := range cols {
			s.columns[i] = col.Name()
		}
	}
	return true
}

func (s *rowStream) Columns() []string {
	return s.columns
}

func (s *rowStream) Values() map[string]any {
	rec := s.result.Record()
	if rec == nil {
		return nil
	}
	return rec.Values()
}

func (s *rowStream) Err() error {
	return s.result.Err()
}

func (s *rowStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.result.Close()
}
