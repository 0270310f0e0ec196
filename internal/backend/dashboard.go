package backend

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Dashboard is the combined learning overview shown by `wisestar status`.
type Dashboard struct {
	Statistics *Statistics `json:"statistics"`
	Memory     *Memory     `json:"memory"`
}

// Dashboard fetches statistics and the unfiltered memory report concurrently.
// Either failure cancels the other request.
func (c *Client) Dashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s, err := c.Statistics(gCtx)
		if err != nil {
			return fmt.Errorf("fetching statistics: %w", err)
		}
		d.Statistics = s
		return nil
	})
	g.Go(func() error {
		m, err := c.Memory(gCtx, MemoryFilter{})
		if err != nil {
			return fmt.Errorf("fetching memory: %w", err)
		}
		d.Memory = m
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}
