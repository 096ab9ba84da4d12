// MIT License
//
// Copyright (c) 2026 Kolin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRedirectPort  = 8080
	DefaultDashboardPort = 3000
	DefaultDatabasePath  = "logs.db"
	DefaultMaxBodySize   = 10 * 1024 * 1024
)

// Config is the full runtime configuration of one redirector instance
type Config struct {
	RedirectURL   string `yaml:"redirect_url"`
	RedirectPort  int    `yaml:"redirect_port"`
	DashboardPort int    `yaml:"dashboard_port"`
	Campaign      string `yaml:"campaign"`
	DashboardAuth string `yaml:"dashboard_auth"`
	StoreBody     bool   `yaml:"store_body"`
	MaxBodySize   int64  `yaml:"max_body_size"`
	DatabasePath  string `yaml:"database_path"`
	Tunnel        bool   `yaml:"tunnel"`
	TunnelURL     string `yaml:"tunnel_url"`
	Host          string `yaml:"host"`
	LogLevel      string `yaml:"log_level"`

	GeoIPCityDB    string `yaml:"geoip_city_db"`
	GeoIPCountryDB string `yaml:"geoip_country_db"`
}

// DefaultTemplate is written by the config command as a starting point
const DefaultTemplate = `# Redirector configuration
#
# Every incoming request on the redirect port is answered with an immediate
# 302 to redirect_url and logged under the campaign name.

# Where visitors are sent (required)
redirect_url: "https://example.com"

# Port answering public traffic
redirect_port: 8080

# Port serving the dashboard API
dashboard_port: 3000

# Campaign name grouping this run's logs. Leave empty to auto-generate
# one from the current timestamp.
campaign: ""

# Protect the dashboard API with basic auth ("user:password"), empty = open
dashboard_auth: ""

# Capture request bodies (POST/PUT/PATCH) up to max_body_size bytes
store_body: false
max_body_size: 10485760

# SQLite database file, shared by every instance reporting to one dashboard
database_path: "logs.db"

# Mark requests arriving through a public tunnel
tunnel: false
tunnel_url: ""

# Bind address, empty = all interfaces
host: ""

# trace, debug, info, warn or error
log_level: "info"

# Optional MaxMind databases for geo annotation
geoip_city_db: ""
geoip_country_db: ""
`

// Default returns a config with every field at its documented default
func Default() *Config {
	return &Config{
		RedirectPort:  DefaultRedirectPort,
		DashboardPort: DefaultDashboardPort,
		MaxBodySize:   DefaultMaxBodySize,
		DatabasePath:  DefaultDatabasePath,
		LogLevel:      "info",
	}
}

// Load reads a YAML config file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Normalize fills derived fields. An empty campaign gets a timestamped name
// so logs from an unnamed run still group together.
func (c *Config) Normalize() {
	if c.Campaign == "" {
		c.Campaign = "campaign-" + time.Now().UTC().Format("20060102-1504")
	}
	if c.RedirectPort == 0 {
		c.RedirectPort = DefaultRedirectPort
	}
	if c.DashboardPort == 0 {
		c.DashboardPort = DefaultDashboardPort
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	if c.DatabasePath == "" {
		c.DatabasePath = DefaultDatabasePath
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate rejects configs that cannot serve
func (c *Config) Validate() error {
	if c.RedirectURL == "" {
		return fmt.Errorf("redirect_url is required")
	}
	parsed, err := url.Parse(c.RedirectURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("redirect_url must be an absolute http(s) URL, got %q", c.RedirectURL)
	}

	if c.RedirectPort < 1 || c.RedirectPort > 65535 {
		return fmt.Errorf("redirect_port %d out of range", c.RedirectPort)
	}
	if c.DashboardPort < 1 || c.DashboardPort > 65535 {
		return fmt.Errorf("dashboard_port %d out of range", c.DashboardPort)
	}
	if c.RedirectPort == c.DashboardPort {
		return fmt.Errorf("redirect_port and dashboard_port must differ, both are %d", c.RedirectPort)
	}

	if c.DashboardAuth != "" && !strings.Contains(c.DashboardAuth, ":") {
		return fmt.Errorf("dashboard_auth must be \"user:password\"")
	}

	return nil
}

// AuthUser returns the basic-auth user, empty when auth is disabled
func (c *Config) AuthUser() string {
	user, _, _ := strings.Cut(c.DashboardAuth, ":")
	return user
}

// AuthPassword returns the basic-auth password, empty when auth is disabled
func (c *Config) AuthPassword() string {
	_, password, _ := strings.Cut(c.DashboardAuth, ":")
	return password
}

// AuthEnabled reports whether the dashboard API requires credentials
func (c *Config) AuthEnabled() bool {
	return c.DashboardAuth != ""
}

// WriteTemplate writes the commented default config, refusing to overwrite
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return os.WriteFile(path, []byte(DefaultTemplate), 0644)
}
