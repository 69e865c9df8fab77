// Package config defines the mirror's configuration file.
//
// Keys use snake_case so existing config.json files keep working unchanged.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crystaldolphin/tgmirror/internal/routing"
	"github.com/crystaldolphin/tgmirror/internal/shared/timeutil"
)

// TokenEnv supplies the bot token when the file does not.
const TokenEnv = "TGMIRROR_BOT_TOKEN"

var (
	ErrNoToken    = errors.New("bot_token is not set")
	ErrNoMappings = errors.New("no usable mappings configured")
)

// Config is the root configuration object.
type Config struct {
	// Opaque client settings, kept for compatibility with existing files.
	APIID       int    `json:"api_id" yaml:"api_id"`
	APIHash     string `json:"api_hash" yaml:"api_hash"`
	SessionName string `json:"session_name" yaml:"session_name"`

	BotToken    string `json:"bot_token" yaml:"bot_token"`
	APIEndpoint string `json:"api_endpoint,omitempty" yaml:"api_endpoint,omitempty"`

	MappingEntries []MappingConfig `json:"mappings,omitempty" yaml:"mappings,omitempty"`
	// Legacy form: every source in SourceIDs goes to DestinationID.
	SourceIDs     RawList      `json:"source_ids,omitempty" yaml:"source_ids,omitempty"`
	DestinationID *routing.Raw `json:"destination_id,omitempty" yaml:"destination_id,omitempty"`

	DelaySeconds float64  `json:"delay_seconds" yaml:"delay_seconds"`
	EnableLogs   bool     `json:"enable_logs" yaml:"enable_logs"`
	Keywords     []string `json:"keywords" yaml:"keywords"`

	LookupTimeoutSeconds   float64 `json:"lookup_timeout_seconds" yaml:"lookup_timeout_seconds"`
	RetryDelaySeconds      float64 `json:"retry_delay_seconds" yaml:"retry_delay_seconds"`
	RateLimitMarginSeconds float64 `json:"rate_limit_margin_seconds" yaml:"rate_limit_margin_seconds"`
	PollTimeoutSeconds     int     `json:"poll_timeout_seconds" yaml:"poll_timeout_seconds"`
	StatsSchedule          string  `json:"stats_schedule" yaml:"stats_schedule"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		SessionName:            "mirror_session",
		DelaySeconds:           2.0,
		EnableLogs:             true,
		Keywords:               []string{},
		LookupTimeoutSeconds:   10,
		RetryDelaySeconds:      5,
		RateLimitMarginSeconds: 5,
		PollTimeoutSeconds:     30,
		StatsSchedule:          "@every 10m",
	}
}

// ExampleConfig is the starting point written by `tgmirror init`.
func ExampleConfig() Config {
	cfg := DefaultConfig()
	cfg.MappingEntries = []MappingConfig{
		{
			Source:       routing.RawString("@source_channel"),
			Destinations: RawList{routing.RawInt(-1001234567890), routing.RawString("@mirror_channel")},
		},
	}
	return cfg
}

// Mappings returns the usable mapping entries in file order. The legacy
// source_ids/destination_id form is consulted only when "mappings" is absent.
// Entries without a source or any destination are skipped.
func (c *Config) Mappings() []routing.Mapping {
	var out []routing.Mapping
	if c.MappingEntries != nil {
		for _, e := range c.MappingEntries {
			dests := e.Destinations.nonZero()
			if e.Source.IsZero() || len(dests) == 0 {
				continue
			}
			out = append(out, routing.Mapping{Source: e.Source, Destinations: dests})
		}
		return out
	}

	if c.DestinationID == nil || c.DestinationID.IsZero() {
		return nil
	}
	for _, src := range c.SourceIDs {
		if src.IsZero() {
			continue
		}
		out = append(out, routing.Mapping{Source: src, Destinations: []routing.Raw{*c.DestinationID}})
	}
	return out
}

// Validate reports configuration errors that must stop startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return fmt.Errorf("%w (set it in the config file or %s)", ErrNoToken, TokenEnv)
	}
	if len(c.Mappings()) == 0 {
		return ErrNoMappings
	}
	if c.PollTimeoutSeconds < 0 {
		return fmt.Errorf("poll_timeout_seconds must not be negative, got %d", c.PollTimeoutSeconds)
	}
	return nil
}

func (c *Config) Delay() time.Duration { return timeutil.Seconds(c.DelaySeconds) }

func (c *Config) LookupTimeout() time.Duration { return timeutil.Seconds(c.LookupTimeoutSeconds) }

func (c *Config) RetryDelay() time.Duration { return timeutil.Seconds(c.RetryDelaySeconds) }

func (c *Config) RateLimitMargin() time.Duration { return timeutil.Seconds(c.RateLimitMarginSeconds) }

// ---- Mapping entries -------------------------------------------------------

// MappingConfig is one entry of "mappings". The source may be written as
// "source" or "source_id"; the destination as "destination" or
// "destination_id", either a single identifier or a list.
type MappingConfig struct {
	Source       routing.Raw `json:"source" yaml:"source"`
	Destinations RawList     `json:"destination" yaml:"destination"`
}

type mappingAux struct {
	Source        routing.Raw `json:"source" yaml:"source"`
	SourceID      routing.Raw `json:"source_id" yaml:"source_id"`
	Destination   RawList     `json:"destination" yaml:"destination"`
	DestinationID RawList     `json:"destination_id" yaml:"destination_id"`
}

// apply prefers the "_id" keys when both spellings are present.
func (a mappingAux) apply(m *MappingConfig) {
	m.Source = a.SourceID
	if m.Source.IsZero() {
		m.Source = a.Source
	}
	m.Destinations = a.DestinationID
	if len(a.DestinationID.nonZero()) == 0 {
		m.Destinations = a.Destination
	}
}

func (m *MappingConfig) UnmarshalJSON(data []byte) error {
	var aux mappingAux
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("mapping entry: %w", err)
	}
	aux.apply(m)
	return nil
}

func (m *MappingConfig) UnmarshalYAML(node *yaml.Node) error {
	var aux mappingAux
	if err := node.Decode(&aux); err != nil {
		return fmt.Errorf("mapping entry: %w", err)
	}
	aux.apply(m)
	return nil
}

// RawList is a list of identifiers that also accepts a single scalar.
type RawList []routing.Raw

func (l *RawList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var items []routing.Raw
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var one routing.Raw
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*l = RawList{one}
	return nil
}

func (l *RawList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var items []routing.Raw
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil
		}
		var one routing.Raw
		if err := node.Decode(&one); err != nil {
			return err
		}
		*l = RawList{one}
	default:
		return fmt.Errorf("line %d: expected an identifier or a list of identifiers", node.Line)
	}
	return nil
}

func (l RawList) nonZero() []routing.Raw {
	out := make([]routing.Raw, 0, len(l))
	for _, r := range l {
		if !r.IsZero() {
			out = append(out, r)
		}
	}
	return out
}
