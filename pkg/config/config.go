// pkg/config/config.go
package config

import (
	"fmt"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v3"

	"softphone/pkg/engine"
)

// Config represents the main configuration for the softphone
type Config struct {
	LogLevel            string            `yaml:"log_level"`
	LogFile             string            `yaml:"log_file"`
	ShutdownWaitSeconds int               `yaml:"shutdown_wait_seconds"`
	Endpoint            EndpointConfig    `yaml:"endpoint"`
	Media               MediaConfig       `yaml:"media"`
	Transports          []TransportConfig `yaml:"transports"`
	Accounts            []AccountConfig   `yaml:"accounts"`
	Metrics             MetricsConfig     `yaml:"metrics"`
}

// EndpointConfig represents engine endpoint configuration
type EndpointConfig struct {
	MaxCalls       int      `yaml:"max_calls"`
	UserAgent      string   `yaml:"user_agent"`
	Nameservers    []string `yaml:"nameservers"`
	STUNServer     string   `yaml:"stun_server"`
	EngineLogLevel int      `yaml:"engine_log_level"`
}

// MediaConfig represents engine media configuration
type MediaConfig struct {
	ClockRate int  `yaml:"clock_rate"`
	PTime     int  `yaml:"ptime"`
	Quality   int  `yaml:"quality"`
	NoVAD     bool `yaml:"no_vad"`
	EnableICE bool `yaml:"enable_ice"`
}

// TransportConfig represents a single SIP transport configuration
type TransportConfig struct {
	Type       string `yaml:"type"`
	Port       int    `yaml:"port"`
	BoundAddr  string `yaml:"bound_addr"`
	PublicAddr string `yaml:"public_addr"`
}

// AccountConfig represents a single account configuration. Either the
// full form (id, registrar_uri, proxies, credentials) or the short form
// (domain, username, password) may be used; the short form synthesizes
// the rest the way a typical registrar deployment expects.
type AccountConfig struct {
	// Short form
	Domain   string `yaml:"domain"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Full form
	ID           string             `yaml:"id"`
	RegistrarURI string             `yaml:"registrar_uri"`
	Proxies      []string           `yaml:"proxies"`
	Credentials  []CredentialConfig `yaml:"credentials"`

	RegTimeoutSeconds int           `yaml:"reg_timeout_seconds"`
	KAIntervalSeconds int           `yaml:"ka_interval_seconds"`
	Default           bool          `yaml:"default"`
	Buddies           []BuddyConfig `yaml:"buddies"`
}

// CredentialConfig represents one authentication credential
type CredentialConfig struct {
	Realm    string `yaml:"realm"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// BuddyConfig represents a presence buddy configuration
type BuddyConfig struct {
	URI       string `yaml:"uri"`
	Subscribe bool   `yaml:"subscribe"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BindAddr string `yaml:"bind_addr"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	if config.ShutdownWaitSeconds <= 0 {
		config.ShutdownWaitSeconds = 30
	}

	// Endpoint defaults
	if config.Endpoint.MaxCalls <= 0 {
		config.Endpoint.MaxCalls = 4
	}

	if config.Endpoint.UserAgent == "" {
		config.Endpoint.UserAgent = "softphone"
	}

	// Media defaults
	if config.Media.ClockRate <= 0 {
		config.Media.ClockRate = 16000
	}

	if config.Media.Quality <= 0 {
		config.Media.Quality = 6
	}

	// At least one transport so the endpoint is reachable
	if len(config.Transports) == 0 {
		config.Transports = []TransportConfig{{Type: "udp", Port: 5060}}
	}

	for i := range config.Transports {
		if config.Transports[i].Type == "" {
			config.Transports[i].Type = "udp"
		}
		if config.Transports[i].Port <= 0 {
			config.Transports[i].Port = 5060
		}
	}

	// Account defaults and validation
	for i := range config.Accounts {
		acc := &config.Accounts[i]
		if acc.ID == "" && (acc.Domain == "" || acc.Username == "") {
			return nil, fmt.Errorf("account %d: either id or domain+username is required", i)
		}
		if acc.RegTimeoutSeconds <= 0 {
			acc.RegTimeoutSeconds = 300
		}
		if acc.KAIntervalSeconds < 0 {
			acc.KAIntervalSeconds = 0
		} else if acc.KAIntervalSeconds == 0 {
			acc.KAIntervalSeconds = 15
		}
	}

	if config.Metrics.Enabled && config.Metrics.BindAddr == "" {
		config.Metrics.BindAddr = ":9100"
	}

	return &config, nil
}

// GetShutdownWait returns the shutdown wait as a duration
func (c *Config) GetShutdownWait() time.Duration {
	return time.Duration(c.ShutdownWaitSeconds) * time.Second
}

// ToEndpointConfig converts the endpoint section to an engine config
func (c *Config) ToEndpointConfig() *engine.EndpointConfig {
	cfg := engine.DefaultEndpointConfig()
	cfg.MaxCalls = c.Endpoint.MaxCalls
	cfg.UserAgent = c.Endpoint.UserAgent
	cfg.Nameserver = c.Endpoint.Nameservers
	cfg.STUNServer = c.Endpoint.STUNServer
	return cfg
}

// ToMediaConfig converts the media section to an engine config
func (c *Config) ToMediaConfig() *engine.MediaConfig {
	cfg := engine.DefaultMediaConfig()
	cfg.ClockRate = c.Media.ClockRate
	if c.Media.PTime > 0 {
		cfg.PTime = c.Media.PTime
	}
	cfg.Quality = c.Media.Quality
	cfg.NoVAD = c.Media.NoVAD
	cfg.EnableICE = c.Media.EnableICE
	return cfg
}

// TransportSpec pairs a transport type with its engine config
type TransportSpec struct {
	Type engine.TransportType
	Cfg  *engine.TransportConfig
}

// ToTransportConfigs converts the transports section to engine configs
func (c *Config) ToTransportConfigs() []TransportSpec {
	out := make([]TransportSpec, 0, len(c.Transports))
	for _, tp := range c.Transports {
		typ := engine.TransportUDP
		switch tp.Type {
		case "tcp":
			typ = engine.TransportTCP
		case "tls":
			typ = engine.TransportTLS
		case "ws":
			typ = engine.TransportWS
		}
		out = append(out, TransportSpec{typ, &engine.TransportConfig{
			Port:       tp.Port,
			BoundAddr:  tp.BoundAddr,
			PublicAddr: tp.PublicAddr,
		}})
	}
	return out
}

// ToAccountConfig converts one account entry to an engine config. The
// short form expands to the conventional registrar setup: the registrar
// at the domain, an outbound proxy with loose routing, and a wildcard
// realm credential.
func (a *AccountConfig) ToAccountConfig() *engine.AccountConfig {
	cfg := engine.DefaultAccountConfig()
	cfg.RegTimeout = time.Duration(a.RegTimeoutSeconds) * time.Second
	cfg.KAInterval = time.Duration(a.KAIntervalSeconds) * time.Second

	if a.ID != "" {
		cfg.ID = a.ID
		cfg.RegistrarURI = a.RegistrarURI
		cfg.Proxy = a.Proxies
		for _, cred := range a.Credentials {
			cfg.Credentials = append(cfg.Credentials, engine.AuthCredential{
				Scheme:   "digest",
				Realm:    cred.Realm,
				Username: cred.Username,
				Password: cred.Password,
			})
		}
		return cfg
	}

	typical := engine.TypicalAccountConfig(a.Domain, a.Username, a.Password)
	typical.RegTimeout = cfg.RegTimeout
	typical.KAInterval = cfg.KAInterval
	return typical
}
