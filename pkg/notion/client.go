// Package notion reads client databases from the Notion API.
package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultRequestsPerSecond is the average rate Notion allows an integration.
const DefaultRequestsPerSecond = 3

// Client is the slice of the Notion API the registry loader calls.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// Option configures a client built by NewClient.
type Option func(*apiClient)

// WithRequestsPerSecond changes the request rate. Zero or less turns
// throttling off.
func WithRequestsPerSecond(rps float64) Option {
	return func(c *apiClient) {
		c.limiter = nil
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

type apiClient struct {
	api     *notionapi.Client
	limiter *rate.Limiter
}

// NewClient returns a throttled Client authenticated with an integration
// token.
func NewClient(token string, opts ...Option) Client {
	c := &apiClient{api: notionapi.NewClient(notionapi.Token(token))}
	WithRequestsPerSecond(DefaultRequestsPerSecond)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *apiClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "notion: wait to query %s", dbID)
		}
	}
	resp, err := c.api.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	return resp, eris.Wrapf(err, "notion: query %s", dbID)
}
