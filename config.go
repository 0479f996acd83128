package usm

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// Config is the engine configuration, read from TOML or YAML.
type Config struct {
	Engine EngineConfig `toml:"engine" yaml:"engine"`
	Log    LogConfig    `toml:"log" yaml:"log"`
	Users  []UserConfig `toml:"users" yaml:"users"`
}

type EngineConfig struct {
	// ID is hex, optionally 0x-prefixed, or text:<enterprise>:<text>.
	ID string `toml:"id" yaml:"id"`
	// Boots is used when BootsFile is empty.
	Boots     uint32 `toml:"boots" yaml:"boots"`
	BootsFile string `toml:"boots_file" yaml:"boots_file"`
	// TimeWindow in seconds.
	TimeWindow int `toml:"time_window" yaml:"time_window"`
}

type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

type UserConfig struct {
	Name string `toml:"name" yaml:"name"`
	// EngineID binds the user to one engine; empty matches any engine.
	EngineID     string `toml:"engine_id" yaml:"engine_id"`
	AuthProtocol string `toml:"auth_protocol" yaml:"auth_protocol"`
	AuthPassword string `toml:"auth_password" yaml:"auth_password"`
	PrivProtocol string `toml:"priv_protocol" yaml:"priv_protocol"`
	PrivPassword string `toml:"priv_password" yaml:"priv_password"`
}

func DefaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			Boots:      1,
			TimeWindow: int(DefaultTimeWindow / time.Second),
		},
		Log: LogConfig{Level: "info"},
	}
}

// applyDefaults fills settings whose zero value is not meaningful. Boots is
// left alone: zero is a valid boot count.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Engine.TimeWindow == 0 {
		c.Engine.TimeWindow = def.Engine.TimeWindow
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// LoadConfig reads path as YAML when it ends in .yml or .yaml and as TOML
// otherwise, then validates the result.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		f, err := os.Open(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "open configuration file")
		}
		defer f.Close()
		cfg = DefaultConfig()
		if err := yaml.NewDecoder(f, yaml.Strict()).Decode(&cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse configuration file %s", path)
		}
	default:
		tree, err := toml.LoadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "load configuration file %s", path)
		}
		if err := tree.Unmarshal(&cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse configuration file %s", path)
		}
		if !tree.Has("engine.boots") {
			cfg.Engine.Boots = DefaultConfig().Engine.Boots
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) TimeWindow() time.Duration {
	if c.Engine.TimeWindow <= 0 {
		return DefaultTimeWindow
	}
	return time.Duration(c.Engine.TimeWindow) * time.Second
}

func (c Config) Validate() error {
	if _, err := ParseEngineID(c.Engine.ID); err != nil {
		return errors.Wrap(err, "engine.id")
	}
	if c.Engine.TimeWindow < 0 {
		return errors.Errorf("engine.time_window must not be negative, got %d", c.Engine.TimeWindow)
	}
	_, err := c.UserEntries()
	return err
}

// UserEntries converts the configured users to user table entries.
func (c Config) UserEntries() ([]USMUserEntry, error) {
	entries := make([]USMUserEntry, 0, len(c.Users))
	seen := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		entry, err := u.entry()
		if err != nil {
			return nil, errors.Wrapf(err, "users[%d]", i)
		}
		if err := entry.validate(); err != nil {
			return nil, errors.Wrapf(err, "users[%d]", i)
		}
		key := GenerateUSMUserKey(entry.EngineID, entry.Name)
		if seen[key] {
			return nil, errors.Errorf("users[%d]: duplicate user %s", i, entry.Name)
		}
		seen[key] = true
		entries = append(entries, entry)
	}
	return entries, nil
}

func (u UserConfig) entry() (USMUserEntry, error) {
	auth, err := ParseAuthProtocol(u.AuthProtocol)
	if err != nil {
		return USMUserEntry{}, err
	}
	priv, err := ParsePrivProtocol(u.PrivProtocol)
	if err != nil {
		return USMUserEntry{}, err
	}
	var engineID EngineID
	if u.EngineID != "" {
		if engineID, err = ParseEngineID(u.EngineID); err != nil {
			return USMUserEntry{}, err
		}
	}
	return USMUserEntry{
		Name:         u.Name,
		EngineID:     engineID,
		AuthProtocol: auth,
		AuthPassword: u.AuthPassword,
		PrivProtocol: priv,
		PrivPassword: u.PrivPassword,
	}, nil
}
