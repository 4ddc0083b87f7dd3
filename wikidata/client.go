// Package wikidata reads the administrative hierarchy and the schools of
// Bulgaria from the Wikidata SPARQL endpoint and stores them as dimension rows.
package wikidata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/data-for-good-bg/semantic-schools/fetch"
)

// Binding is one result row, variable name to value.
type Binding map[string]string

type sparqlResponse struct {
	Results struct {
		Bindings []map[string]struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
}

// Client runs SPARQL queries through a cache.
type Client struct {
	endpoint string
	http     *fetch.Client
	cache    Cache
	logger   *slog.Logger
}

// NewClient creates a client. A nil cache disables caching.
func NewClient(endpoint string, http *fetch.Client, cache Cache, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{endpoint: endpoint, http: http, cache: cache, logger: logger}
}

// Query returns the flattened bindings of query.
func (c *Client) Query(ctx context.Context, query string) ([]Binding, error) {
	key := CacheKey(query)
	if c.cache != nil {
		data, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("Read query cache", "key", key, "error", err)
		}
		if ok {
			c.logger.Debug("Query cache hit", "key", key)
			return flatten(data)
		}
	}

	c.logger.Debug("Running SPARQL query", "endpoint", c.endpoint, "query", query)
	u := c.endpoint + "?" + url.Values{"query": {query}, "format": {"json"}}.Encode()
	data, err := c.http.Get(ctx, u, http.Header{"Accept": {"application/sparql-results+json"}})
	if err != nil {
		return nil, fmt.Errorf("sparql query: %w", err)
	}

	bindings, err := flatten(data)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Set(ctx, key, data); err != nil {
			c.logger.Warn("Write query cache", "key", key, "error", err)
		}
	}
	return bindings, nil
}

func flatten(data []byte) ([]Binding, error) {
	var resp sparqlResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode sparql response: %w", err)
	}
	out := make([]Binding, 0, len(resp.Results.Bindings))
	for _, item := range resp.Results.Bindings {
		b := make(Binding, len(item))
		for name, v := range item {
			b[name] = v.Value
		}
		out = append(out, b)
	}
	return out, nil
}
