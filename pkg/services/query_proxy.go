package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-flux/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-flux/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-flux/pkg/logging"
	"github.com/ekaya-inc/ekaya-flux/pkg/models"
)

const (
	DefaultRowLimit = 100
	DefaultMaxRows  = 10000

	probeQuery   = `buckets() |> limit(n:1)`
	bucketsQuery = `buckets()`
	// schemaLookback bounds field and tag key discovery.
	schemaLookback = "-7d"
)

// ClientProvider hands out the shared client for an endpoint and organization.
// *datasource.ClientCache satisfies it.
type ClientProvider interface {
	GetOrCreate(url, org, token string) datasource.Client
}

var _ ClientProvider = (*datasource.ClientCache)(nil)

// QueryProxy runs Flux against the InfluxDB instance named by a caller's credentials.
type QueryProxy interface {
	// TestConnection runs a minimal probe query. A row or a clean empty result
	// both count as success; failures are classified *apperrors.UpstreamError.
	TestConnection(ctx context.Context, creds models.Credentials) error

	// Execute runs query with a row limit appended unless it already has one.
	// limit <= 0 selects the default. No partial result is returned on error.
	Execute(ctx context.Context, creds models.Credentials, query string, limit int) (*models.QueryResult, error)

	// ListBuckets returns the organization's buckets.
	ListBuckets(ctx context.Context, creds models.Credentials) ([]models.Bucket, error)

	// ListMeasurements returns the distinct measurement names in bucket.
	ListMeasurements(ctx context.Context, creds models.Credentials, bucket string) ([]string, error)

	// ListFieldKeys returns the distinct field keys of measurement seen in the last 7 days.
	ListFieldKeys(ctx context.Context, creds models.Credentials, bucket, measurement string) ([]string, error)

	// ListTagKeys returns the distinct tag keys of measurement seen in the last 7 days.
	ListTagKeys(ctx context.Context, creds models.Credentials, bucket, measurement string) ([]string, error)
}

// QueryProxyConfig holds row limit settings.
type QueryProxyConfig struct {
	DefaultRowLimit int
	MaxRowLimit     int
}

type queryProxy struct {
	clients      ClientProvider
	defaultLimit int
	maxLimit     int
	now          func() time.Time
	logger       *zap.Logger
}

var _ QueryProxy = (*queryProxy)(nil)

// NewQueryProxy creates a QueryProxy that obtains clients from clients.
func NewQueryProxy(clients ClientProvider, cfg QueryProxyConfig, logger *zap.Logger) QueryProxy {
	if cfg.DefaultRowLimit <= 0 {
		cfg.DefaultRowLimit = DefaultRowLimit
	}
	if cfg.MaxRowLimit <= 0 {
		cfg.MaxRowLimit = DefaultMaxRows
	}
	if cfg.MaxRowLimit < cfg.DefaultRowLimit {
		cfg.MaxRowLimit = cfg.DefaultRowLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &queryProxy{
		clients:      clients,
		defaultLimit: cfg.DefaultRowLimit,
		maxLimit:     cfg.MaxRowLimit,
		now:          time.Now,
		logger:       logger.Named("query-proxy"),
	}
}

func (p *queryProxy) client(creds models.Credentials) datasource.Client {
	return p.clients.GetOrCreate(creds.URL, creds.Organization, creds.Token)
}

func (p *queryProxy) TestConnection(ctx context.Context, creds models.Credentials) error {
	stream, err := p.client(creds).Query(ctx, probeQuery)
	if err != nil {
		return p.fail("connection test failed", creds, probeQuery, err)
	}
	defer stream.Close()

	// One row is enough; a clean end of stream also proves access.
	stream.Next()
	if err := stream.Err(); err != nil {
		return p.fail("connection test failed", creds, probeQuery, err)
	}

	p.logger.Info("connection test succeeded", zap.Object("credentials", creds))
	return nil
}

func (p *queryProxy) Execute(ctx context.Context, creds models.Credentials, query string, limit int) (*models.QueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperrors.NewValidationError("Query is required")
	}

	startedAt := p.now()
	flux := ApplyRowLimit(query, p.effectiveLimit(limit))

	stream, err := p.client(creds).Query(ctx, flux)
	if err != nil {
		return nil, p.fail("query execution failed", creds, flux, err)
	}
	defer stream.Close()

	var columns []string
	rows := make([]map[string]any, 0)
	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return nil, p.fail("query execution cancelled", creds, flux, err)
		}
		if columns == nil {
			columns = append([]string(nil), stream.Columns()...)
		}
		values := stream.Values()
		row := make(map[string]any, len(columns))
		for _, col := range columns {
			row[col] = values[col]
		}
		rows = append(rows, row)
	}
	if err := stream.Err(); err != nil {
		return nil, p.fail("query execution failed", creds, flux, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, p.fail("query execution cancelled", creds, flux, err)
	}
	if columns == nil {
		columns = []string{}
	}

	p.logger.Info("query executed",
		zap.Object("credentials", creds),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", p.now().Sub(startedAt)),
	)

	return &models.QueryResult{
		Columns:       columns,
		Rows:          rows,
		TotalRows:     len(rows),
		Query:         flux,
		ExecutionTime: startedAt.UnixMilli(),
	}, nil
}

func (p *queryProxy) ListBuckets(ctx context.Context, creds models.Credentials) ([]models.Bucket, error) {
	stream, err := p.client(creds).Query(ctx, bucketsQuery)
	if err != nil {
		return nil, p.fail("list buckets failed", creds, bucketsQuery, err)
	}
	defer stream.Close()

	buckets := make([]models.Bucket, 0)
	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return nil, p.fail("list buckets cancelled", creds, bucketsQuery, err)
		}
		values := stream.Values()
		id, idOK := values["id"].(string)
		name, nameOK := values["name"].(string)
		if !idOK || !nameOK || id == "" || name == "" {
			continue
		}
		buckets = append(buckets, models.Bucket{ID: id, Name: name})
	}
	if err := stream.Err(); err != nil {
		return nil, p.fail("list buckets failed", creds, bucketsQuery, err)
	}

	p.logger.Debug("listed buckets", zap.Object("credentials", creds), zap.Int("count", len(buckets)))
	return buckets, nil
}

func (p *queryProxy) ListMeasurements(ctx context.Context, creds models.Credentials, bucket string) ([]string, error) {
	if bucket == "" {
		return nil, apperrors.NewValidationError("Bucket name is required")
	}
	flux := fmt.Sprintf("import \"influxdata/influxdb/schema\"\n\nschema.measurements(bucket: %s)", FluxString(bucket))
	return p.collectNames(ctx, creds, flux, "list measurements")
}

func (p *queryProxy) ListFieldKeys(ctx context.Context, creds models.Credentials, bucket, measurement string) ([]string, error) {
	if bucket == "" || measurement == "" {
		return nil, apperrors.NewValidationError("Bucket name and measurement are required")
	}
	return p.collectNames(ctx, creds, schemaKeysQuery("fieldKeys", bucket, measurement), "list field keys")
}

func (p *queryProxy) ListTagKeys(ctx context.Context, creds models.Credentials, bucket, measurement string) ([]string, error) {
	if bucket == "" || measurement == "" {
		return nil, apperrors.NewValidationError("Bucket name and measurement are required")
	}
	return p.collectNames(ctx, creds, schemaKeysQuery("tagKeys", bucket, measurement), "list tag keys")
}

func schemaKeysQuery(fn, bucket, measurement string) string {
	return fmt.Sprintf("import \"influxdata/influxdb/schema\"\n\nschema.%s(\n  bucket: %s,\n  predicate: (r) => r._measurement == %s,\n  start: %s\n)",
		fn, FluxString(bucket), FluxString(measurement), schemaLookback)
}

// collectNames gathers the distinct non-empty _value strings of a single-column result, sorted.
func (p *queryProxy) collectNames(ctx context.Context, creds models.Credentials, flux, op string) ([]string, error) {
	stream, err := p.client(creds).Query(ctx, flux)
	if err != nil {
		return nil, p.fail(op+" failed", creds, flux, err)
	}
	defer stream.Close()

	seen := make(map[string]struct{})
	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return nil, p.fail(op+" cancelled", creds, flux, err)
		}
		if name, ok := stream.Values()["_value"].(string); ok && name != "" {
			seen[name] = struct{}{}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, p.fail(op+" failed", creds, flux, err)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (p *queryProxy) effectiveLimit(limit int) int {
	if limit <= 0 {
		return p.defaultLimit
	}
	if limit > p.maxLimit {
		return p.maxLimit
	}
	return limit
}

// fail logs an upstream failure and converts it into a classified UpstreamError.
func (p *queryProxy) fail(msg string, creds models.Credentials, flux string, err error) error {
	uerr := upstreamError(err)
	p.logger.Warn(msg,
		zap.Object("credentials", creds),
		zap.String("category", uerr.Category),
		zap.String("query", logging.SanitizeQuery(flux)),
		zap.String("error", logging.SanitizeError(err)),
	)
	return uerr
}

// ApplyRowLimit appends a limit clause for n rows unless query already contains one.
func ApplyRowLimit(query string, n int) string {
	if strings.Contains(query, "|> limit(") {
		return query
	}
	return query + " |> limit(n: " + strconv.Itoa(n) + ")"
}

// FluxString quotes s as a Flux string literal.
func FluxString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '$':
			b.WriteString(`\$`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
