// Package nexusagentd runs one bot agent instance: it terminates platform
// webhook deliveries over HTTP, normalizes and evaluates them, and signs and
// multicasts the resulting action proposal to the owner's selected
// consensus nodes.
package nexusagentd

import (
	"encoding/json"
	"fmt"
	"os"

	"nexuschain/nexus/agent"
	"nexuschain/nexus/platform"
	"nexuschain/nexus/ruleengine"
)

// Config is the daemon's full runtime configuration, loaded from a JSON
// file at startup. A process runs exactly one bot/platform pair, matching
// the single-process-per-instance concurrency model.
type Config struct {
	ListenAddr    string                  `json:"listen_addr"`
	KeyPath       string                  `json:"key_path"`
	SequencerPath string                  `json:"sequencer_path"`
	Platform      platform.Platform       `json:"platform"`
	BotIDHash     [32]byte                `json:"bot_id_hash"`
	Group         ruleengine.GroupConfig  `json:"group"`
	Nodes         []agent.ActiveNode      `json:"nodes"`
	NodeEndpoints map[string]string       `json:"node_endpoints"` // node id -> base URL
	QuorumSize    int                     `json:"quorum_size"`
	QueueCapacity int                     `json:"queue_capacity"`
	Workers       int                     `json:"workers"`
	WebhookRateLimitPerMinute int         `json:"webhook_rate_limit_per_minute"`
}

// LoadConfig reads and validates a Config from a JSON file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("nexusagentd: read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("nexusagentd: parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.QuorumSize == 0 {
		c.QuorumSize = 3
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = 256
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.WebhookRateLimitPerMinute == 0 {
		c.WebhookRateLimitPerMinute = 120
	}
}

func (c Config) validate() error {
	if c.KeyPath == "" {
		return fmt.Errorf("nexusagentd: key_path is required")
	}
	if c.SequencerPath == "" {
		return fmt.Errorf("nexusagentd: sequencer_path is required")
	}
	switch c.Platform {
	case platform.Telegram, platform.Discord, platform.Slack:
	default:
		return fmt.Errorf("nexusagentd: unknown platform %q", c.Platform)
	}
	return nil
}
