package quotes

import (
	"context"
	"time"

	"github.com/nkiryanov/stockgate/internal/models"
)

// Stream polls current quote every interval and passes it to send until ctx is done or send fails
// First quote is fetched right away. Failed polls are logged and skipped.
// Quote timestamp is the poll time, not the upstream trade time.
func (c *Client) Stream(ctx context.Context, symbol string, interval time.Duration, send func(models.Quote) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		quote, err := c.Current(ctx, symbol)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			c.logger.Warn("Failed to poll quote", "symbol", symbol, "error", err)
		default:
			quote.Timestamp = time.Now().UTC()
			if err := send(quote); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
