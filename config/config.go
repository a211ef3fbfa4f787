// Package config provides YAML configuration parsing for pollwatch.
//
// This package enables running pollwatch as a standalone binary with a
// configuration file, as an alternative to the programmatic API.
//
// Example configuration:
//
//	port: 8080
//	wait_time: 2s
//	max_tries: 30
//
//	redis:
//	  addr: localhost:6379
//	  ttl: 24h
//
//	targets:
//	  - id: file-42
//	    url: https://tdp.example.gov/v1/data_files/42/summary/
//	    headers:
//	      Authorization: Bearer ${TDP_TOKEN}
//	    success: status:Pending
//
//	grids:
//	  - id: quarterly
//	    url_template: "https://tdp.example.gov/v1/stts/{{.stt}}/{{.quarter}}/status"
//	    dimensions:
//	      stt: [AK, AL]
//	      quarter: [Q1, Q2]
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort     = 8080
	defaultWaitTime = 2 * time.Second
	defaultMaxTries = 30

	// minWaitTime keeps configured sessions from hammering the status API.
	minWaitTime = 500 * time.Millisecond
)

// Config is the root configuration structure for pollwatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP API port. Defaults to 8080.
	Port int `yaml:"port"`

	// WaitTime is the default time between attempts. Defaults to 2s.
	WaitTime Duration `yaml:"wait_time"`

	// MaxTries is the default attempt budget per session. Defaults to 30.
	MaxTries int `yaml:"max_tries"`

	// MaxConcurrency caps probe calls in flight across all sessions.
	// Zero means unlimited.
	MaxConcurrency int `yaml:"max_concurrency"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// Redis configures the session record store. Records are kept in
	// memory when Addr is empty.
	Redis RedisConfig `yaml:"redis"`

	// Targets defines individual status resources to poll at startup.
	Targets []TargetConfig `yaml:"targets"`

	// Grids defines target grids that expand via cartesian product.
	Grids []GridConfig `yaml:"grids"`
}

// RedisConfig locates the Redis instance holding session records.
type RedisConfig struct {
	// Addr is host:port, or "dev" to run an embedded in-memory server.
	Addr string `yaml:"addr"`

	// TTL expires stored records. Zero keeps them forever.
	TTL Duration `yaml:"ttl"`
}

// TargetConfig defines a single status resource.
type TargetConfig struct {
	// ID is the request id the target is polled under.
	ID string `yaml:"id"`

	// URL is the status resource URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Method is the HTTP method (GET, HEAD, POST). Defaults to GET.
	Method string `yaml:"method"`

	// Timeout is the per-attempt request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Headers are custom HTTP headers sent with each request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Labels are metadata key-value pairs stored with the session record.
	Labels map[string]string `yaml:"labels"`

	// Success decides when the job behind the resource is finished.
	Success SuccessConfig `yaml:"success"`

	// WaitTime overrides the global wait_time.
	WaitTime Duration `yaml:"wait_time"`

	// MaxTries overrides the global max_tries.
	MaxTries int `yaml:"max_tries"`
}

// GridConfig defines a target grid that expands via cartesian product.
//
// For example, with dimensions {stt: [AK, AL], quarter: [Q1, Q2]}, the grid
// expands to 4 targets with ids <id>/Q1/AK, <id>/Q1/AL, <id>/Q2/AK and
// <id>/Q2/AL (values in sorted key order).
type GridConfig struct {
	// ID is the base request id for generated targets.
	ID string `yaml:"id"`

	// URLTemplate is a Go template for generating target URLs.
	// Dimension keys are available as template variables: {{.stt}}
	// Supports environment variable substitution in the template.
	URLTemplate string `yaml:"url_template"`

	// Dimensions maps dimension names to their possible values.
	Dimensions map[string][]string `yaml:"dimensions"`

	Method   string            `yaml:"method"`
	Timeout  Duration          `yaml:"timeout"`
	Headers  map[string]string `yaml:"headers"`
	Labels   map[string]string `yaml:"labels"`
	Success  SuccessConfig     `yaml:"success"`
	WaitTime Duration          `yaml:"wait_time"`
	MaxTries int               `yaml:"max_tries"`
}

// SuccessConfig specifies when a status response means the job finished.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	success: default
//	success: http
//	success: status:Pending,Queued
//	success: json:summary.status=Accepted,Rejected
//	success: json:summary.status!=Pending
//	success: contains:"complete"
//	success: regex:"state":\s*"done"
//
// Structured object:
//
//	success:
//	  type: json
//	  path: summary.status
//	  values: [Pending]
//	  negate: true
type SuccessConfig struct {
	// Type is one of "default", "http", "status", "json", "contains", "regex".
	Type string

	// Path is the JSON field path (for type: json).
	Path string

	// Values are matched against the field (json) or are the pending
	// statuses (status).
	Values []string

	// Negate makes a json check succeed when the field is NOT one of Values.
	Negate bool

	// Text is the substring to search for (for type: contains).
	Text string

	// Pattern is the regular expression to search for (for type: regex).
	Pattern string
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for SuccessConfig.
func (s *SuccessConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var str string
		if err := node.Decode(&str); err != nil {
			return err
		}
		return s.parseShorthand(str)

	case yaml.MappingNode:
		// temporary struct to avoid infinite recursion
		var raw struct {
			Type    string   `yaml:"type"`
			Path    string   `yaml:"path"`
			Values  []string `yaml:"values"`
			Negate  bool     `yaml:"negate"`
			Text    string   `yaml:"text"`
			Pattern string   `yaml:"pattern"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		*s = SuccessConfig(raw)
		return nil
	}

	return fmt.Errorf("success must be a string or object, got %v", node.Kind)
}

// parseShorthand parses success shorthand syntax.
//
// Supported formats:
//   - "default" → the summary status leaves Pending
//   - "http" → any 2xx status code
//   - "status:v1,v2" → the summary status is none of the values
//   - "json:path=v1,v2" → the field is one of the values
//   - "json:path!=v1,v2" → the field is present and none of the values
//   - "contains:text" → the body contains text
//   - "regex:pattern" → the body matches pattern
func (s *SuccessConfig) parseShorthand(str string) error {
	str = strings.TrimSpace(str)
	if str == "" {
		return nil
	}

	idx := strings.Index(str, ":")
	if idx == -1 {
		switch str {
		case "default", "http":
			s.Type = str
			return nil
		}
		return fmt.Errorf("unknown success check %q (expected 'default', 'http', 'status:...', 'json:path=...', 'contains:text' or 'regex:pattern')", str)
	}

	s.Type = str[:idx]
	value := str[idx+1:]

	switch s.Type {
	case "status":
		s.Values = splitValues(value)
	case "json":
		if i := strings.Index(value, "!="); i != -1 {
			s.Path, s.Negate = value[:i], true
			s.Values = splitValues(value[i+2:])
		} else if i := strings.Index(value, "="); i != -1 {
			s.Path = value[:i]
			s.Values = splitValues(value[i+1:])
		} else {
			return fmt.Errorf("json success check %q needs path=values or path!=values", str)
		}
	case "contains":
		s.Text = value
	case "regex":
		s.Pattern = value
	default:
		return fmt.Errorf("unknown success check type %q", s.Type)
	}
	return nil
}

// ParseSuccess parses a success check in shorthand syntax and validates it.
func ParseSuccess(s string) (SuccessConfig, error) {
	var sc SuccessConfig
	if err := sc.parseShorthand(s); err != nil {
		return SuccessConfig{}, err
	}
	if err := validateSuccess(&sc, "success"); err != nil {
		return SuccessConfig{}, err
	}
	return sc, nil
}

func splitValues(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		varName := sub[1]
		hasDefault := sub[2] != ""

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return sub[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in URL, URLTemplate, Header values and
// the Redis address. Defaults are applied for Port, WaitTime, MaxTries and
// LogLevel.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.WaitTime == 0 {
		cfg.WaitTime = Duration(defaultWaitTime)
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = defaultMaxTries
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.WaitTime.Duration() < minWaitTime {
		return fmt.Errorf("wait_time must be at least %s, got %s", minWaitTime, c.WaitTime.Duration())
	}
	if c.MaxTries < 1 {
		return fmt.Errorf("max_tries must be at least 1, got %d", c.MaxTries)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency cannot be negative, got %d", c.MaxConcurrency)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}

	addr, err := expandEnvVars(c.Redis.Addr)
	if err != nil {
		return fmt.Errorf("redis.addr: %w", err)
	}
	c.Redis.Addr = addr
	if c.Redis.TTL.Duration() < 0 {
		return fmt.Errorf("redis.ttl cannot be negative, got %s", c.Redis.TTL.Duration())
	}

	seen := make(map[string]int, len(c.Targets))
	for i := range c.Targets {
		t := &c.Targets[i]

		if t.ID == "" {
			return fmt.Errorf("targets[%d]: id is required", i)
		}
		ctx := fmt.Sprintf("targets[%d] (%s)", i, t.ID)
		if prev, dup := seen[t.ID]; dup {
			return fmt.Errorf("%s: duplicate id, already used by targets[%d]", ctx, prev)
		}
		seen[t.ID] = i

		if t.URL == "" {
			return fmt.Errorf("%s: url is required", ctx)
		}
		expanded, err := expandEnvVars(t.URL)
		if err != nil {
			return fmt.Errorf("%s: url: %w", ctx, err)
		}
		t.URL = expanded
		if err := validateURL(t.URL); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}

		if err := expandHeaders(t.Headers, ctx); err != nil {
			return err
		}
		if err := validateShared(ctx, t.Method, t.Timeout, t.WaitTime, t.MaxTries); err != nil {
			return err
		}
		if err := validateSuccess(&t.Success, ctx); err != nil {
			return err
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]

		if strings.TrimSpace(g.ID) == "" {
			return fmt.Errorf("grids[%d]: id is required", i)
		}
		ctx := fmt.Sprintf("grids[%d] (%s)", i, g.ID)

		if g.URLTemplate == "" {
			return fmt.Errorf("%s: url_template is required", ctx)
		}
		expanded, err := expandEnvVars(g.URLTemplate)
		if err != nil {
			return fmt.Errorf("%s: url_template: %w", ctx, err)
		}
		g.URLTemplate = expanded

		// fail fast before expansion tries to use an invalid template
		if _, err := template.New("").Parse(g.URLTemplate); err != nil {
			return fmt.Errorf("%s: invalid url_template: %w", ctx, err)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("%s: at least one dimension is required", ctx)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("%s: dimension %q has no values", ctx, dimName)
			}
			dimSeen := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := dimSeen[v]; exists {
					return fmt.Errorf("%s: dimension %q has duplicate value %q", ctx, dimName, v)
				}
				dimSeen[v] = struct{}{}
			}
		}

		if err := expandHeaders(g.Headers, ctx); err != nil {
			return err
		}
		if err := validateShared(ctx, g.Method, g.Timeout, g.WaitTime, g.MaxTries); err != nil {
			return err
		}
		if err := validateSuccess(&g.Success, ctx); err != nil {
			return err
		}
	}

	return nil
}

func validateURL(raw string) error {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return fmt.Errorf("url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	return nil
}

func expandHeaders(headers map[string]string, ctx string) error {
	for k, v := range headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("%s: headers[%s]: %w", ctx, k, err)
		}
		headers[k] = expanded
	}
	return nil
}

// validateShared checks the settings targets and grids have in common.
func validateShared(ctx, method string, timeout, waitTime Duration, maxTries int) error {
	if method != "" && method != "GET" && method != "HEAD" && method != "POST" {
		return fmt.Errorf("%s: method must be GET, HEAD, or POST", ctx)
	}

	if timeout != 0 && timeout.Duration() < time.Second {
		return fmt.Errorf("%s: timeout must be at least 1s if specified, got %s", ctx, timeout.Duration())
	}

	if waitTime != 0 && waitTime.Duration() < minWaitTime {
		return fmt.Errorf("%s: wait_time must be at least %s if specified, got %s", ctx, minWaitTime, waitTime.Duration())
	}

	if maxTries < 0 {
		return fmt.Errorf("%s: max_tries cannot be negative, got %d", ctx, maxTries)
	}
	return nil
}

// validateSuccess validates a success configuration.
func validateSuccess(s *SuccessConfig, ctx string) error {
	switch s.Type {
	case "", "default", "http":
	case "status":
		if len(s.Values) == 0 {
			return fmt.Errorf("%s: success type 'status' requires pending values", ctx)
		}
	case "json":
		if s.Path == "" {
			return fmt.Errorf("%s: success type 'json' requires a path", ctx)
		}
		if len(s.Values) == 0 {
			return fmt.Errorf("%s: success type 'json' requires values", ctx)
		}
	case "contains":
		if s.Text == "" {
			return fmt.Errorf("%s: success type 'contains' requires text", ctx)
		}
	case "regex":
		if s.Pattern == "" {
			return fmt.Errorf("%s: success type 'regex' requires a pattern", ctx)
		}
		if _, err := regexp.Compile(s.Pattern); err != nil {
			return fmt.Errorf("%s: invalid success pattern: %w", ctx, err)
		}
	default:
		return fmt.Errorf("%s: unknown success type %q", ctx, s.Type)
	}
	return nil
}
