package container

import (
	"strings"
	"time"

	"github.com/serroba/tg-dispatch/internal/ratelimit"
)

// Options configures both binaries. The server reads them through humacli
// flags and SERVICE_* variables, the worker from the environment.
type Options struct {
	Port                  int    `default:"8888"           help:"Port to listen on"                                    short:"p"`
	RedisAddr             string `default:"localhost:6379" help:"Redis server address"                                 short:"r"`
	DatabaseURL           string `default:""               help:"Postgres DSN for the delivery log, disabled if empty"`
	LogFormat             string `default:"json"           help:"Log format: json or console"`
	BotToken              string `default:""               help:"Telegram bot token"`
	GlobalLimitPerSecond  int    `default:"30"             help:"Messages per second across all chats"`
	ChatLimitPerMinute    int    `default:"20"             help:"Messages per minute to a single chat"`
	ChatIDs               string `default:""               help:"Comma separated chat ids for test batches"`
	Workers               int    `default:"4"              help:"Concurrent send workers"                              short:"w"`
	MetricsPort           int    `default:"9090"           help:"Worker metrics port"`
	IngressLimitPerMinute int    `default:"60"             help:"Enqueue requests per minute per client"`
	AtomicClaim           bool   `default:"false"          help:"Claim rate limit slots with a single Lua script"`
}

// ChatIDList splits ChatIDs, dropping blanks.
func (o *Options) ChatIDList() []string {
	var ids []string

	for id := range strings.SplitSeq(o.ChatIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	return ids
}

// RateLimitConfig returns the limiter configuration with the configured
// ceilings applied to the default windows. Non-positive ceilings keep the
// defaults.
func (o *Options) RateLimitConfig() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()

	if o.GlobalLimitPerSecond > 0 {
		cfg.Global.Ceiling = int64(o.GlobalLimitPerSecond)
	}

	if o.ChatLimitPerMinute > 0 {
		cfg.PerScope.Ceiling = int64(o.ChatLimitPerMinute)
	}

	return cfg
}

const (
	consumerGroupName = "telegram-senders"
	batchIDLength     = 21
	redisDialTimeout  = 2 * time.Second
)
