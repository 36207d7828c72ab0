package redis

import (
	"context"
	"encoding/json"
	"time"
)

// RunCompleted is published after a snapshot or monthly run finishes.
type RunCompleted struct {
	Job        string    `json:"job"`
	RunID      string    `json:"run_id,omitempty"`
	Month      string    `json:"month,omitempty"`
	OK         int       `json:"ok"`
	Failed     int       `json:"failed"`
	Events     int       `json:"events"`
	FinishedAt time.Time `json:"finished_at"`
}

// RunsChannel is where RunCompleted messages go.
func (c *Client) RunsChannel() string {
	return c.Key("runs", "completed")
}

// PublishRun sends msg on RunsChannel. Best effort.
func (c *Client) PublishRun(ctx context.Context, msg RunCompleted) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.Publish(ctx, c.RunsChannel(), b)
}

// ParseRunCompleted decodes a payload received on RunsChannel.
func ParseRunCompleted(payload string) (RunCompleted, error) {
	var msg RunCompleted
	err := json.Unmarshal([]byte(payload), &msg)
	return msg, err
}

// WatchRuns delivers RunCompleted messages to fn until ctx ends.
func (c *Client) WatchRuns(ctx context.Context, fn func(RunCompleted)) error {
	sub := c.Subscribe(ctx, c.RunsChannel())
	defer func() { _ = sub.Close() }()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			msg, err := ParseRunCompleted(m.Payload)
			if err != nil {
				continue
			}
			fn(msg)
		}
	}
}
