package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

var httpClient = &http.Client{Timeout: 5 * time.Second}

// HTTPReachable waits until url answers with a non-5xx status.
func HTTPReachable(ctx context.Context, url string, b Backoff) (int, error) {
	var status int
	err := b.do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		status = resp.StatusCode
		if status >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("GET %s: status %d", url, status))
		}
		return nil
	})
	return status, err
}
