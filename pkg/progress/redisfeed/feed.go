package redisfeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	gterrors "github.com/vnykmshr/gotask/pkg/common/errors"
	"github.com/vnykmshr/gotask/pkg/common/validation"
	"github.com/vnykmshr/gotask/pkg/scheduling/scheduler"
)

// Config holds configuration for a progress feed.
type Config struct {
	// Redis client used for publishing and subscribing.
	Redis redis.UniversalClient

	// Channel is the pub/sub channel messages are published on.
	Channel string

	// InstanceID identifies this process in published messages.
	InstanceID string

	// Timeout bounds each publish. Defaults to 500ms.
	Timeout time.Duration

	// Fallback receives payloads that could not be published. When nil a
	// failed publish is returned as the OnProgress error, which cancels
	// the task.
	Fallback scheduler.ProgressReceiver

	// Logger defaults to discarding.
	Logger *slog.Logger
}

// Message is the JSON document published for each progress payload.
type Message struct {
	ID       string          `json:"id"`
	Instance string          `json:"instance"`
	Task     string          `json:"task"`
	Seq      uint64          `json:"seq"`
	Payload  json.RawMessage `json:"payload"`
	SentAt   time.Time       `json:"sent_at"`
}

// Feed is a scheduler.ProgressReceiver that publishes every payload to a
// Redis channel.
type Feed struct {
	config Config
	logger *slog.Logger

	seq       atomic.Uint64
	published atomic.Int64
	failed    atomic.Int64
	closed    atomic.Bool
}

// New creates a feed publishing on config.Channel.
func New(config Config) (*Feed, error) {
	if config.Redis == nil {
		return nil, validation.ValidateNotNil("redisfeed", "Redis", nil)
	}
	if err := validation.ValidateNotEmpty("redisfeed", "Channel", config.Channel); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("redisfeed", "Timeout", config.Timeout); err != nil {
		return nil, err
	}

	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Timeout == 0 {
		config.Timeout = 500 * time.Millisecond
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Feed{
		config: config,
		logger: logger.With("channel", config.Channel),
	}, nil
}

// OnProgress implements scheduler.ProgressReceiver.
func (f *Feed) OnProgress(t *scheduler.Task, p scheduler.Progress) error {
	if f.closed.Load() {
		return gterrors.NewOperationError("redisfeed", "publish", gterrors.ErrClosed)
	}

	msg, err := f.encode(t, p)
	if err != nil {
		return gterrors.NewOperationError("redisfeed", "encode", err).WithContext(t.ID())
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.config.Timeout)
	defer cancel()

	if err := f.config.Redis.Publish(ctx, f.config.Channel, msg).Err(); err != nil {
		f.failed.Add(1)
		if f.config.Fallback != nil {
			f.logger.Warn("progress publish failed, using fallback", "task", t.ID(), "error", err)
			return f.config.Fallback.OnProgress(t, p)
		}
		return gterrors.NewOperationError("redisfeed", "publish", err).WithContext(f.config.Channel)
	}

	f.published.Add(1)
	return nil
}

func (f *Feed) encode(t *scheduler.Task, p scheduler.Progress) ([]byte, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{
		ID:       uuid.NewString(),
		Instance: f.config.InstanceID,
		Task:     t.ID(),
		Seq:      f.seq.Add(1),
		Payload:  payload,
		SentAt:   time.Now().UTC(),
	})
}

// Subscribe streams decoded messages from the feed's channel until ctx is
// done. Messages that fail to decode are dropped.
func (f *Feed) Subscribe(ctx context.Context) (<-chan Message, error) {
	sub := f.config.Redis.Subscribe(ctx, f.config.Channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, gterrors.NewOperationError("redisfeed", "subscribe", err).WithContext(f.config.Channel)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()

		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					f.logger.Debug("dropping undecodable progress message", "error", err)
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Published returns the number of payloads published.
func (f *Feed) Published() int64 { return f.published.Load() }

// Failed returns the number of publishes that failed.
func (f *Feed) Failed() int64 { return f.failed.Load() }

// Close stops the feed from publishing. It does not close the Redis client.
func (f *Feed) Close() error {
	f.closed.Store(true)
	return nil
}
