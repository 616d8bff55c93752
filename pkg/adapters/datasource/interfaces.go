package datasource

import "context"

// ClientConfig identifies one upstream InfluxDB endpoint and the credentials
// used to open a client against it.
type ClientConfig struct {
	URL          string
	Organization string
	Token        string
}

// Client is an open handle to an InfluxDB organization.
// Handles are shared by every caller of the same URL and organization, so
// implementations must be safe for concurrent use.
type Client interface {
	// Query starts a Flux query and returns a lazy stream over its rows.
	// The caller must Close the stream.
	Query(ctx context.Context, flux string) (RowStream, error)

	// Close releases the underlying HTTP resources.
	Close()
}

// RowStream is a finite, non-restartable cursor over query results.
// Rows are only read from the network as Next is called.
type RowStream interface {
	// Next advances to the next row. It returns false at the end of the
	// stream or on error; check Err afterwards.
	Next() bool

	// Columns returns the column labels of the current row, in order.
	Columns() []string

	// Values returns the current row keyed by column label.
	Values() map[string]any

	// Err returns the error that stopped iteration, if any.
	Err() error

	// Close stops reading and releases the connection. Safe to call more than once.
	Close() error
}

// ClientFactory builds a new Client. It must not perform network I/O.
type ClientFactory func(cfg ClientConfig) Client
