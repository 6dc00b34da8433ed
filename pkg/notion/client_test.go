package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/doc-intake/pkg/notion/mocks"
)

var _ Client = (*mocks.MockClient)(nil)

func TestNewClient_DefaultRate(t *testing.T) {
	c := NewClient("secret_test").(*apiClient)
	require.NotNil(t, c.limiter)
	assert.InDelta(t, DefaultRequestsPerSecond, float64(c.limiter.Limit()), 0.001)
	assert.Equal(t, 1, c.limiter.Burst())
}

func TestWithRequestsPerSecond(t *testing.T) {
	c := NewClient("secret_test", WithRequestsPerSecond(10)).(*apiClient)
	require.NotNil(t, c.limiter)
	assert.InDelta(t, 10, float64(c.limiter.Limit()), 0.001)

	c = NewClient("secret_test", WithRequestsPerSecond(0)).(*apiClient)
	assert.Nil(t, c.limiter)
}

func TestQueryDatabase_WaitCanceled(t *testing.T) {
	c := NewClient("secret_test", WithRequestsPerSecond(0.001)).(*apiClient)
	require.True(t, c.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := c.QueryDatabase(ctx, "db-clients", &notionapi.DatabaseQueryRequest{})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Contains(t, err.Error(), "notion: wait to query db-clients")
}
