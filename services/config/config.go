// Package config publishes boot configuration as retained config/<key>
// messages. Sources are an embedded YAML profile and an optional YAML file
// whose top-level keys replace the profile's.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"i2cbroker-go/bus"
	"i2cbroker-go/types"
)

const (
	serviceName  = "config"
	configPrefix = "config"
)

// EmbeddedConfigLookup allows overriding how profiles are resolved.
var EmbeddedConfigLookup = func(profile string) ([]byte, bool) {
	b, ok := embeddedConfigs[profile]
	return b, ok
}

// Profiles lists the embedded profile names.
func Profiles() []string {
	out := make([]string, 0, len(embeddedConfigs))
	for k := range embeddedConfigs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type Options struct {
	Profile string // embedded profile; may be empty when File is set
	File    string // optional YAML file
	Log     zerolog.Logger
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
	opt  Options
}

func NewConfigService(opt Options) *ConfigService {
	return &ConfigService{Name: serviceName, opt: opt}
}

// Load resolves the profile and file into per-key payloads. Known keys are
// decoded into their typed form; the rest stay generic.
func (s *ConfigService) Load() (map[string]any, error) {
	if s.opt.Profile == "" && s.opt.File == "" {
		return nil, errors.New("no config profile or file")
	}
	nodes := map[string]yaml.Node{}
	if s.opt.Profile != "" {
		raw, ok := EmbeddedConfigLookup(s.opt.Profile)
		if !ok || len(raw) == 0 {
			return nil, errors.New("no embedded config for profile: " + s.opt.Profile)
		}
		if err := mergeYAML(nodes, raw); err != nil {
			return nil, fmt.Errorf("profile %s: %w", s.opt.Profile, err)
		}
	}
	if s.opt.File != "" {
		raw, err := os.ReadFile(s.opt.File)
		if err != nil {
			return nil, err
		}
		if err := mergeYAML(nodes, raw); err != nil {
			return nil, fmt.Errorf("%s: %w", s.opt.File, err)
		}
	}

	out := make(map[string]any, len(nodes))
	for k, n := range nodes {
		v, err := decodeKey(k, &n)
		if err != nil {
			return nil, fmt.Errorf("config/%s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func mergeYAML(into map[string]yaml.Node, raw []byte) error {
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return errors.New("config is not a YAML mapping")
	}
	for k, n := range doc {
		into[k] = n
	}
	return nil
}

func decodeKey(key string, n *yaml.Node) (any, error) {
	switch key {
	case "i2c":
		var v types.I2CSetup
		err := n.Decode(&v)
		return v, err
	case "heartbeat":
		var v types.HeartbeatConfig
		err := n.Decode(&v)
		return v, err
	default:
		var v any
		err := n.Decode(&v)
		return v, err
	}
}

// publishConfig publishes every key as a retained message.
func (s *ConfigService) publishConfig(conn *bus.Connection) error {
	m, err := s.Load()
	if err != nil {
		return err
	}
	for k, v := range m {
		conn.Publish(conn.NewMessage(bus.T(configPrefix, k), v, true))
		s.opt.Log.Debug().Str("key", k).Msg("config published")
	}
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(conn); err != nil {
			s.opt.Log.Error().Err(err).Str("profile", s.opt.Profile).Str("file", s.opt.File).Msg("config load failed")
		}
	}()
}
