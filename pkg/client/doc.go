// Package client is a Go client for the colsearch HTTP API.
//
//	c, err := client.New("http://localhost:8080", client.WithAPIKey(os.Getenv("COLSEARCH_API_KEY")))
//	if err != nil {
//		return err
//	}
//	results, err := c.Search(ctx, "barack obama", 3)
//
// Service errors are returned as *APIError. Use errors.Is with the exported
// sentinels to branch on the error kind:
//
//	if errors.Is(err, client.ErrBackendUnavailable) {
//		// the index is still loading, retry later
//	}
package client
