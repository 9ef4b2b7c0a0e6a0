package app

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/viper"

	"talkwire/internal/policy"
)

// defaultChannel names the policy scope when the file does not set one.
const defaultChannel = "talk"

// LoadPolicy reads a channel policy from a YAML (or JSON/TOML) file.
func LoadPolicy(path string) (policy.ChannelConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return policy.ChannelConfig{}, fmt.Errorf("app: read policy file: %w", err)
	}

	var cfg policy.ChannelConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return policy.ChannelConfig{}, fmt.Errorf("app: decode policy file: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = defaultChannel
	}
	return cfg, nil
}

// PolicyProvider re-reads the policy file on every call so allow-list
// edits take effect between messages. A read or parse failure falls back
// to the last good configuration.
type PolicyProvider struct {
	path string
	log  *slog.Logger

	mu   sync.Mutex
	last policy.ChannelConfig
}

// NewPolicyProvider loads the file once up front so a broken file fails
// at startup, not mid-conversation. An empty path yields a permissive-
// pairing default: DMs gated by pairing, groups disabled.
func NewPolicyProvider(path string, log *slog.Logger) (*PolicyProvider, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &PolicyProvider{path: path, log: log}

	if path == "" {
		p.last = policy.ChannelConfig{
			Channel:     defaultChannel,
			DMEnabled:   true,
			DMPolicy:    policy.DMPairing,
			GroupPolicy: policy.GroupDisabled,
		}
		return p, nil
	}

	cfg, err := LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	p.last = cfg
	return p, nil
}

// Get returns the current channel policy.
func (p *PolicyProvider) Get() policy.ChannelConfig {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.path == "" {
		return p.last
	}
	cfg, err := LoadPolicy(p.path)
	if err != nil {
		p.log.Warn("policy.reload.fail", "err", err)
		return p.last
	}
	p.last = cfg
	return cfg
}
