package kafka

import (
	"strings"
	"time"

	"github.com/mohammed-shakir/geoquery/internal/core/config"
)

type Config struct {
	Enabled bool

	Brokers []string
	Topic   string
	GroupID string

	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	// InitialOldest replays retained events on first join. Off by default:
	// the registry is loaded at startup, so only newer revisions matter.
	InitialOldest bool
}

func NewConfig(c config.CatalogSyncCfg) Config {
	return Config{
		Enabled:          c.Enabled,
		Brokers:          split(c.Brokers),
		Topic:            c.Topic,
		GroupID:          c.GroupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
	}
}

func split(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
