package validation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gallery_style/core"
)

type ConnectivityResult struct {
	Reachable  bool
	StatusCode int
	Message    string
	Latency    time.Duration
	Error      error
}

// ConnectivityChecker checks HTTP servers with a HEAD request. Any response,
// whatever its status, counts as reachable.
type ConnectivityChecker struct {
	timeout time.Duration
	client  *http.Client
}

func NewConnectivityChecker(client *http.Client) *ConnectivityChecker {
	if client == nil {
		client = &http.Client{}
	}
	return &ConnectivityChecker{timeout: 10 * time.Second, client: client}
}

func (c *ConnectivityChecker) WithTimeout(timeout time.Duration) *ConnectivityChecker {
	c.timeout = timeout
	return c
}

func (c *ConnectivityChecker) CheckServerConnectivity(ctx context.Context, serverURL string) ConnectivityResult {
	if err := core.ValidateURL("server URL", serverURL); err != nil {
		return ConnectivityResult{Message: "Invalid URL format", Error: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, serverURL, nil)
	if err != nil {
		return ConnectivityResult{Message: "Failed to create request", Error: err}
	}

	startTime := time.Now()
	resp, err := c.client.Do(req)
	latency := time.Since(startTime)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ConnectivityResult{
				Message: "Connection timed out",
				Latency: latency,
				Error:   fmt.Errorf("%s: no response after %v", serverURL, c.timeout),
			}
		}
		return ConnectivityResult{Message: "Connection failed", Latency: latency, Error: err}
	}
	defer resp.Body.Close()

	return ConnectivityResult{
		Reachable:  true,
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("Server reachable (status: %d)", resp.StatusCode),
		Latency:    latency,
	}
}
