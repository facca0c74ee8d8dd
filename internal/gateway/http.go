package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/gradesworld/paycore/internal/domain"
)

const defaultTimeout = 30 * time.Second

// apiClient wraps outbound provider calls with a bounded timeout and a
// per-provider rate limiter, so a slow or angry gateway can neither stall
// callers indefinitely nor be hammered by retries.
type apiClient struct {
	http    *http.Client
	limiter *rate.Limiter
}

func newAPIClient(timeout time.Duration) *apiClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &apiClient{
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// doJSON sends a JSON request and decodes a JSON response into out (when
// out is non-nil and the body is non-empty). Network errors and timeouts
// come back as domain.ErrGatewayUnavailable; HTTP status handling is the
// caller's job.
func (c *apiClient) doJSON(ctx context.Context, method, rawURL string, headers map[string]string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req, out)
}

// doForm sends an application/x-www-form-urlencoded request (Stripe's wire
// format) and decodes a JSON response.
func (c *apiClient) doForm(ctx context.Context, method, rawURL string, headers map[string]string, form url.Values, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out any) (int, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection failures are retryable by contract; no
		// local state may have changed.
		return 0, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read body: %v", domain.ErrGatewayUnavailable, err)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
		}
	}
	return resp.StatusCode, nil
}

// classifyCheckoutStatus maps a provider HTTP status to the checkout error
// taxonomy: auth failures are retryable-after-reconfiguration and grouped
// with unavailability, other 4xx means the provider rejected the
// amount/currency, anything else non-2xx is retryable.
func classifyCheckoutStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: provider returned %d", domain.ErrGatewayUnavailable, status)
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: provider returned %d", domain.ErrInvalidAmount, status)
	default:
		return fmt.Errorf("%w: provider returned %d", domain.ErrGatewayUnavailable, status)
	}
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

// classifyPayoutStatus is the payout analogue: 4xx is a permanent
// rejection, everything else non-2xx retryable.
func classifyPayoutStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: provider returned %d", domain.ErrPayoutRejected, status)
	default:
		return fmt.Errorf("%w: provider returned %d", domain.ErrGatewayUnavailable, status)
	}
}
