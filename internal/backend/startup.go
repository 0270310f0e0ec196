package backend

import (
	"context"
	"log/slog"
)

// EnsureReachable probes the backend once at start-up and reports whether it
// answered. An unreachable backend is logged, not returned as an error.
func EnsureReachable(ctx context.Context, c *Client) bool {
	if !c.IsRunning(ctx) {
		slog.Warn("tutoring backend is not reachable; requests will fail until it starts", "url", c.baseURL)
		return false
	}
	slog.Info("tutoring backend reachable", "url", c.baseURL)
	return true
}
