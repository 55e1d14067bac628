package polymarket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// maxGetAttempts bounds how many times one GET is tried against a flaky
// upstream before the failure is surfaced to the caller.
const maxGetAttempts = 3

// retryBaseDelay is the first backoff step; it doubles on every retry.
var retryBaseDelay = 250 * time.Millisecond

// doGet sends an unauthenticated GET request and retries transient upstream
// failures (transport errors, 5xx, 429) with exponential backoff. Permanent
// failures such as 404 return immediately.
func doGet(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	var lastErr error
	delay := retryBaseDelay

	for attempt := 0; attempt < maxGetAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}

		body, err := getOnce(ctx, client, url)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("after %d attempts: %w", maxGetAttempts, lastErr)
}

func getOnce(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// retryable reports whether one failed attempt is worth repeating.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrUpstreamUnavailable) ||
		errors.Is(err, domain.ErrRateLimited)
}
