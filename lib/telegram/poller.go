package telegram

import (
	"context"
	"log/slog"
	"time"
)

// Handler consumes updates one at a time, in arrival order.
type Handler interface {
	HandleUpdate(ctx context.Context, update Update)
}

type Poller struct {
	client  *Client
	handler Handler
	timeout time.Duration
	backoff time.Duration
}

func NewPoller(client *Client, handler Handler) *Poller {
	return &Poller{
		client:  client,
		handler: handler,
		timeout: time.Second * 50,
		backoff: time.Second * 3,
	}
}

// Run long-polls getUpdates until ctx is cancelled. Failed polls back
// off for a few seconds instead of spinning against a broken network.
func (p *Poller) Run(ctx context.Context) {
	var offset int64
	for ctx.Err() == nil {
		updates, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.WarnContext(ctx, "poll updates", "err", err)
			select {
			case <-time.After(p.backoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			p.handler.HandleUpdate(ctx, update)
		}
	}
}
