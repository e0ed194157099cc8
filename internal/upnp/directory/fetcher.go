package directory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxDescriptionSize bounds the size of a fetched description.
const maxDescriptionSize = 1 << 20

// Fetcher retrieves a device description.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// HTTPFetcher fetches descriptions with HTTP GET.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher whose requests time out after timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch implements Fetcher. Any status other than 200 is ErrFetch.
func (f *HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s answered %d", ErrFetch, location, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptionSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrFetch, location, err)
	}
	return body, nil
}
