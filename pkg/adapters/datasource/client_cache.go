package datasource

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-flux/pkg/logging"
)

// ErrCacheClosed is returned by clients handed out after the cache was closed.
var ErrCacheClosed = errors.New("client cache is closed")

// clientKey is the cache identity of a client. The token is deliberately not
// part of it: URL and organization together name a connection.
type clientKey struct {
	url string
	org string
}

// ClientCache holds exactly one Client per (URL, organization) for the life of
// the process or until Clear.
type ClientCache struct {
	mu      sync.RWMutex
	clients map[clientKey]Client
	factory ClientFactory
	stopped bool
	logger  *zap.Logger
}

// NewClientCache creates an empty cache that builds clients with factory.
func NewClientCache(factory ClientFactory, logger *zap.Logger) *ClientCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientCache{
		clients: make(map[clientKey]Client),
		factory: factory,
		logger:  logger.Named("client-cache"),
	}
}

// GetOrCreate returns the cached client for url and org, creating it with
// token on first use. Later calls with a different token get the existing
// client unchanged. After Close nothing is built or cached; the returned
// client fails every query with ErrCacheClosed.
func (c *ClientCache) GetOrCreate(url, org, token string) Client {
	key := clientKey{url: url, org: org}

	// Fast path
	c.mu.RLock()
	client, exists := c.clients[key]
	c.mu.RUnlock()
	if exists {
		return client
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have created it)
	if client, exists := c.clients[key]; exists {
		return client
	}
	if c.stopped {
		return closedClient{}
	}

	client = c.factory(ClientConfig{URL: url, Organization: org, Token: token})
	c.clients[key] = client

	c.logger.Info("created influx client",
		zap.String("url", logging.SanitizeURL(url)),
		zap.String("org", org),
		zap.Int("cached", len(c.clients)),
	)
	return client
}

// Clear closes and drops every cached client.
func (c *ClientCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *ClientCache) clearLocked() {
	for _, client := range c.clients {
		client.Close()
	}
	n := len(c.clients)
	c.clients = make(map[clientKey]Client)
	if n > 0 {
		c.logger.Info("cleared influx clients", zap.Int("count", n))
	}
}

// Count returns the number of cached clients.
func (c *ClientCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.clients)
}

// Close clears the cache. This method is idempotent and safe to call multiple times.
func (c *ClientCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}
	c.stopped = true
	c.clearLocked()
	c.logger.Info("client cache closed")
	return nil
}

// Stats returns statistics about the cache. Safe to call concurrently.
func (c *ClientCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{
		TotalClients:      len(c.clients),
		ClientsByEndpoint: make(map[string]int),
	}
	for key := range c.clients {
		stats.ClientsByEndpoint[logging.SanitizeURL(key.url)]++
	}
	return stats
}

// CacheStats contains statistics about the client cache state.
type CacheStats struct {
	TotalClients      int            `json:"total_clients"`
	ClientsByEndpoint map[string]int `json:"clients_by_endpoint"`
}

type closedClient struct{}

func (closedClient) Query(context.Context, string) (RowStream, error) {
	return nil, ErrCacheClosed
}

func (closedClient) Close() {}
