package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// maxPageSize is the largest page the query endpoint returns.
const maxPageSize = 100

// EachPage calls fn for every row of a database, following the pagination
// cursor. An error from fn stops the walk and is returned unchanged.
func EachPage(ctx context.Context, c Client, dbID string, fn func(notionapi.Page) error) error {
	req := &notionapi.DatabaseQueryRequest{PageSize: maxPageSize}
	for batch := 1; ; batch++ {
		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return eris.Wrapf(err, "notion: fetch batch %d", batch)
		}
		for _, p := range resp.Results {
			if err := fn(p); err != nil {
				return err
			}
		}
		if !resp.HasMore || resp.NextCursor == "" {
			return nil
		}
		req = &notionapi.DatabaseQueryRequest{PageSize: maxPageSize, StartCursor: resp.NextCursor}
	}
}
