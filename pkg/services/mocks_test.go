package services

import (
	"context"
	"sync"

	"github.com/ekaya-inc/ekaya-flux/pkg/adapters/datasource"
)

// fakeRow is one row of a fakeStream; Columns may change between rows to
// model a new Flux table.
type fakeRow struct {
	Columns []string
	Values  map[string]any
}

type fakeStream struct {
	rows    []fakeRow
	pos     int
	err     error // returned by Err once rows are exhausted
	onNext  func(i int)
	closed  bool
	started bool
}

func (s *fakeStream) Next() bool {
	if s.closed {
		return false
	}
	if s.started {
		s.pos++
	}
	s.started = true
	if s.onNext != nil {
		s.onNext(s.pos)
	}
	return s.pos < len(s.rows)
}

func (s *fakeStream) Columns() []string      { return s.rows[s.pos].Columns }
func (s *fakeStream) Values() map[string]any { return s.rows[s.pos].Values }

func (s *fakeStream) Err() error {
	if s.pos >= len(s.rows) {
		return s.err
	}
	return nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// fakeClient replays a canned stream or error and records every query it receives.
type fakeClient struct {
	mu       sync.Mutex
	queries  []string
	stream   func() *fakeStream
	queryErr error
	streams  []*fakeStream
	closed   bool
}

func (c *fakeClient) Query(ctx context.Context, flux string) (datasource.RowStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, flux)
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	s := &fakeStream{}
	if c.stream != nil {
		s = c.stream()
	}
	c.streams = append(c.streams, s)
	return s, nil
}

func (c *fakeClient) Close() { c.closed = true }

func (c *fakeClient) lastQuery() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queries) == 0 {
		return ""
	}
	return c.queries[len(c.queries)-1]
}

// fakeProvider returns the same client for every key and records the lookups.
type fakeProvider struct {
	client *fakeClient
	calls  []string
}

func (p *fakeProvider) GetOrCreate(url, org, token string) datasource.Client {
	p.calls = append(p.calls, url+"|"+org+"|"+token)
	return p.client
}

func rowsOf(columns []string, values ...map[string]any) []fakeRow {
	out := make([]fakeRow, len(values))
	for i, v := range values {
		out[i] = fakeRow{Columns: columns, Values: v}
	}
	return out
}
