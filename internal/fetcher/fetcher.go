package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/rotisserie/eris"
)

// Fetcher downloads remote data over HTTP.
type Fetcher interface {
	// Download issues a GET and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)

	// PostForm submits form values and returns the response body.
	PostForm(ctx context.Context, url string, form url.Values) (io.ReadCloser, error)
}

// StatusError reports a non-retryable, non-200 response.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status %d from %s: %s", e.Code, e.URL, e.Body)
	}
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// IsClientError reports whether err carries a 4xx StatusError.
func IsClientError(err error) bool {
	var se *StatusError
	if !eris.As(err, &se) {
		return false
	}
	return se.Code >= 400 && se.Code < 500
}
