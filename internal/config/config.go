// Package config loads connectsphere settings from a TOML file with
// CONNECTSPHERE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rudransh-shrivastava/connectsphere/internal/session"
	"github.com/rudransh-shrivastava/connectsphere/internal/store"
	"github.com/rudransh-shrivastava/connectsphere/internal/transport/webrtc"
)

const (
	DefaultSignalingURL = "ws://localhost:8080/ws"
	DefaultListenAddr   = ":8080"
	DefaultMDNSService  = "_connectsphere._tcp"
	DefaultStorePath    = "connectsphere.sqlite3"
	envPrefix           = "CONNECTSPHERE_"
)

type Config struct {
	LogLevel    string
	AutoConnect bool
	Signaling   SignalingConfig
	STUNServers []string
	Session     session.Config
	Store       StoreConfig
}

type SignalingConfig struct {
	URL string
	// Listen is the address `serve` binds.
	Listen string
	// RedisAddr, when set, relays signals between service instances.
	RedisAddr   string
	MDNS        bool
	MDNSService string
}

type StoreConfig struct {
	Backend string
	Path    string
}

type fileConfig struct {
	LogLevel    string          `toml:"log_level"`
	AutoConnect bool            `toml:"auto_connect"`
	Signaling   signalingConfig `toml:"signaling"`
	WebRTC      webrtcConfig    `toml:"webrtc"`
	Session     sessionConfig   `toml:"session"`
	Store       storeConfig     `toml:"store"`
}

type signalingConfig struct {
	URL         string `toml:"url"`
	Listen      string `toml:"listen"`
	RedisAddr   string `toml:"redis_addr"`
	MDNS        bool   `toml:"mdns"`
	MDNSService string `toml:"mdns_service"`
}

type webrtcConfig struct {
	STUNServers []string `toml:"stun_servers"`
}

type sessionConfig struct {
	MaxRetries       int     `toml:"max_retries"`
	BaseDelay        string  `toml:"base_delay"`
	Backoff          string  `toml:"backoff"`
	Multiplier       float64 `toml:"multiplier"`
	MaxDelay         string  `toml:"max_delay"`
	OpenTimeout      string  `toml:"open_timeout"`
	ConfirmTimeout   string  `toml:"confirm_timeout"`
	MaxMessageLength int     `toml:"max_message_length"`
	InboundPolicy    string  `toml:"inbound_policy"`
}

type storeConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Signaling: SignalingConfig{
			URL:         DefaultSignalingURL,
			Listen:      DefaultListenAddr,
			MDNSService: DefaultMDNSService,
		},
		STUNServers: append([]string(nil), webrtc.DefaultSTUNServers...),
		Session:     session.DefaultConfig(),
		Store: StoreConfig{
			Backend: store.BackendSQLite,
			Path:    DefaultStorePath,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config parse failed (%s): unknown key %s", path, undecoded[0])
	}

	if meta.IsDefined("log_level") {
		c.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("auto_connect") {
		c.AutoConnect = raw.AutoConnect
	}

	if meta.IsDefined("signaling", "url") {
		c.Signaling.URL = strings.TrimSpace(raw.Signaling.URL)
	}
	if meta.IsDefined("signaling", "listen") {
		c.Signaling.Listen = strings.TrimSpace(raw.Signaling.Listen)
	}
	if meta.IsDefined("signaling", "redis_addr") {
		c.Signaling.RedisAddr = strings.TrimSpace(raw.Signaling.RedisAddr)
	}
	if meta.IsDefined("signaling", "mdns") {
		c.Signaling.MDNS = raw.Signaling.MDNS
	}
	if meta.IsDefined("signaling", "mdns_service") {
		c.Signaling.MDNSService = strings.TrimSpace(raw.Signaling.MDNSService)
	}

	if meta.IsDefined("webrtc", "stun_servers") {
		c.STUNServers = normalizeList(raw.WebRTC.STUNServers)
	}

	s := raw.Session
	if meta.IsDefined("session", "max_retries") {
		c.Session.MaxRetries = s.MaxRetries
	}
	if meta.IsDefined("session", "backoff") {
		c.Session.Strategy = session.Strategy(strings.TrimSpace(s.Backoff))
	}
	if meta.IsDefined("session", "multiplier") {
		c.Session.Multiplier = s.Multiplier
	}
	if meta.IsDefined("session", "max_message_length") {
		c.Session.MaxMessageLength = s.MaxMessageLength
	}
	if meta.IsDefined("session", "inbound_policy") {
		c.Session.InboundPolicy = session.InboundPolicy(strings.TrimSpace(s.InboundPolicy))
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"base_delay", s.BaseDelay, &c.Session.BaseDelay},
		{"max_delay", s.MaxDelay, &c.Session.MaxDelay},
		{"open_timeout", s.OpenTimeout, &c.Session.OpenTimeout},
		{"confirm_timeout", s.ConfirmTimeout, &c.Session.ConfirmTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined("session", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse session.%s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("store", "backend") {
		c.Store.Backend = strings.TrimSpace(raw.Store.Backend)
	}
	if meta.IsDefined("store", "path") {
		c.Store.Path = strings.TrimSpace(raw.Store.Path)
	}
	return nil
}

func (c *Config) loadEnv() error {
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := lookup("SIGNALING_URL"); ok {
		c.Signaling.URL = v
	}
	if v, ok := lookup("LISTEN"); ok {
		c.Signaling.Listen = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok {
		c.Signaling.RedisAddr = v
	}
	if v, ok := lookup("STUN_SERVERS"); ok {
		c.STUNServers = normalizeList(strings.Split(v, ","))
	}
	if v, ok := lookup("STORE_BACKEND"); ok {
		c.Store.Backend = v
	}
	if v, ok := lookup("STORE_PATH"); ok {
		c.Store.Path = v
	}
	if v, ok := lookup("AUTO_CONNECT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %sAUTO_CONNECT: %w", envPrefix, err)
		}
		c.AutoConnect = b
	}
	if v, ok := lookup("MDNS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %sMDNS: %w", envPrefix, err)
		}
		c.Signaling.MDNS = b
	}
	if v, ok := lookup("MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sMAX_RETRIES: %w", envPrefix, err)
		}
		c.Session.MaxRetries = n
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Signaling.URL) == "" {
		errs = append(errs, errors.New("signaling url is required"))
	}
	if strings.TrimSpace(c.Signaling.Listen) == "" {
		errs = append(errs, errors.New("signaling listen address is required"))
	}
	if c.Signaling.MDNS && strings.TrimSpace(c.Signaling.MDNSService) == "" {
		errs = append(errs, errors.New("mdns service name is required when mdns is enabled"))
	}
	switch c.Store.Backend {
	case store.BackendSQLite, store.BackendBolt:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, errors.New("store path is required"))
	}
	if err := c.Session.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("session: %w", err))
	}
	return errors.Join(errs...)
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
