package ratelimit

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// GlobalScope is the scope shared by every caller of the global window.
const GlobalScope = "global"

// Window describes one class of fixed time buckets and the ceiling applied to each.
type Window struct {
	// Name labels the window in logs and metrics.
	Name string
	// KeyPrefix is prepended to scope and bucket index to build the counter key.
	KeyPrefix string
	// Length is the size of a bucket.
	Length time.Duration
	// Ceiling is the number of slots granted per bucket and scope.
	Ceiling int64
	// TTL is how long the store keeps a bucket counter; slightly over Length.
	TTL time.Duration
	// MaxWait bounds how long an acquisition may block on this window.
	MaxWait time.Duration
}

// Bucket returns the index of the bucket containing t.
func (w Window) Bucket(t time.Time) int64 {
	return t.UnixNano() / int64(w.Length)
}

// Key returns the counter key for scope in the bucket containing t.
func (w Window) Key(scope string, t time.Time) string {
	return w.KeyPrefix + scope + ":" + strconv.FormatInt(w.Bucket(t), 10)
}

// NextBoundary returns the start of the bucket following the one containing t.
func (w Window) NextBoundary(t time.Time) time.Time {
	return time.Unix(0, (w.Bucket(t)+1)*int64(w.Length))
}

func (w Window) validate() error {
	switch {
	case w.Length <= 0:
		return errors.New("length must be positive")
	case w.Ceiling <= 0:
		return errors.New("ceiling must be positive")
	case w.TTL < w.Length:
		return fmt.Errorf("ttl %s shorter than length %s", w.TTL, w.Length)
	case w.MaxWait < 0:
		return errors.New("max wait must not be negative")
	}

	return nil
}

// Config holds both windows applied by a Limiter.
type Config struct {
	Global   Window
	PerScope Window
	// PollInterval is the fixed sleep between global claim attempts.
	PollInterval time.Duration
}

// DefaultConfig returns the Telegram Bot API limits: 30 messages per second
// overall and 20 messages per minute per chat.
func DefaultConfig() Config {
	return Config{
		Global: Window{
			Name:      "global",
			KeyPrefix: "telegram:rate:",
			Length:    time.Second,
			Ceiling:   30,
			TTL:       2 * time.Second,
			MaxWait:   2 * time.Second,
		},
		PerScope: Window{
			Name:      "chat",
			KeyPrefix: "telegram:rate:chat:",
			Length:    time.Minute,
			Ceiling:   20,
			TTL:       2 * time.Minute,
			MaxWait:   65 * time.Second,
		},
		PollInterval: 50 * time.Millisecond,
	}
}

// Validate checks that both windows are usable.
func (c Config) Validate() error {
	if err := c.Global.validate(); err != nil {
		return fmt.Errorf("global window: %w", err)
	}

	if err := c.PerScope.validate(); err != nil {
		return fmt.Errorf("per-scope window: %w", err)
	}

	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}

	return nil
}
