package resilience

import (
	"context"
	"io"
)

// cancelOnClose releases the call context once the caller has finished with
// the response body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
