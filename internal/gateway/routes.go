package gateway

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Route maps a path prefix to an upstream base URL.
type Route struct {
	Prefix   string `yaml:"prefix"`
	Upstream string `yaml:"upstream"`
	Name     string `yaml:"name"`
}

// BreakerConfig tunes the per-upstream circuit breakers.
type BreakerConfig struct {
	FailMax      int           `yaml:"fail_max"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// Config is the gateway's YAML route table.
type Config struct {
	Routes         []Route       `yaml:"routes"`
	Breaker        BreakerConfig `yaml:"breaker"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

// LoadConfig reads and validates a route table from a YAML file. Routes are
// sorted longest-prefix first so matching can scan in order.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse route config: %w", err)
	}

	if len(cfg.Routes) == 0 {
		return nil, fmt.Errorf("route config %s declares no routes", path)
	}
	for i, r := range cfg.Routes {
		if !strings.HasPrefix(r.Prefix, "/") {
			return nil, fmt.Errorf("route %d: prefix %q must start with /", i, r.Prefix)
		}
		if r.Upstream == "" {
			return nil, fmt.Errorf("route %d: missing upstream", i)
		}
		if r.Name == "" {
			return nil, fmt.Errorf("route %d: missing name", i)
		}
	}

	if cfg.Breaker.FailMax == 0 {
		cfg.Breaker.FailMax = 5
	}
	if cfg.Breaker.ResetTimeout == 0 {
		cfg.Breaker.ResetTimeout = 30 * time.Second
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}

	sort.SliceStable(cfg.Routes, func(i, j int) bool {
		return len(cfg.Routes[i].Prefix) > len(cfg.Routes[j].Prefix)
	})
	return &cfg, nil
}

// Match returns the route with the longest prefix matching path, or nil.
func (c *Config) Match(path string) *Route {
	for i := range c.Routes {
		if strings.HasPrefix(path, c.Routes[i].Prefix) {
			return &c.Routes[i]
		}
	}
	return nil
}
