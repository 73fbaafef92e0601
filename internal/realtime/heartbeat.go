package realtime

import (
	"context"
	"log/slog"
)

// Ping is the liveness payload. The server does not acknowledge it.
type Ping struct {
	TS int64 `json:"ts"`
}

// armHeartbeatLocked schedules the next ping for connection gen.
func (c *Client) armHeartbeatLocked(gen uint64) {
	if c.cfg.HeartbeatInterval <= 0 {
		return
	}

	c.heartbeat = c.clock.AfterFunc(c.cfg.HeartbeatInterval, func() {
		c.heartbeatFired(gen)
	})
}

func (c *Client) heartbeatFired(gen uint64) {
	c.mu.Lock()

	if gen != c.gen || c.state != StateOpen {
		c.mu.Unlock()
		return
	}

	c.armHeartbeatLocked(gen)
	c.mu.Unlock()

	ping := Ping{TS: c.clock.Now().UnixMilli()}
	if err := c.Send(context.Background(), TypePing, ping); err != nil {
		c.logger.Debug("heartbeat not sent", slog.String("error", err.Error()))
	}
}
