// Package config loads tsgdraft settings from tsgdraft.yml and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/tsgdraft/internal/agentapi"
	"github.com/dusk-indust/tsgdraft/internal/orchestrator"
)

// Environment variables that override file settings.
const (
	EnvEndpoint   = "TSGDRAFT_ENDPOINT"
	EnvAPIKey     = "TSGDRAFT_API_KEY"
	EnvVerbose    = "TSGDRAFT_VERBOSE"
	EnvDiagnostic = "TSGDRAFT_DIAGNOSTIC"
)

// FileNames are the config files Load looks for, in order.
var FileNames = []string{"tsgdraft.yml", "tsgdraft.yaml"}

// Config holds settings loaded from tsgdraft.yml.
type Config struct {
	Endpoint       string        `yaml:"endpoint,omitempty"`
	APIKey         string        `yaml:"apiKey,omitempty"`
	Agents         Agents        `yaml:"agents"`
	Retry          Retry         `yaml:"retry"`
	Timeouts       Timeouts      `yaml:"timeouts"`
	Keepalive      time.Duration `yaml:"keepalive,omitempty"`
	ProgressBuffer int           `yaml:"progressBuffer,omitempty"`
	Diagnostic     bool          `yaml:"diagnostic,omitempty"`
	Verbose        bool          `yaml:"verbose,omitempty"`
	ListenAddr     string        `yaml:"listenAddr,omitempty"`
}

// Agents names the deployed agent for each stage.
type Agents struct {
	Researcher agentapi.AgentRef `yaml:"researcher"`
	Writer     agentapi.AgentRef `yaml:"writer"`
	Reviewer   agentapi.AgentRef `yaml:"reviewer"`
}

// Retry bounds per-stage retries.
type Retry struct {
	ResearchMaxRetries  int           `yaml:"researchMaxRetries"`
	WriteMaxRetries     int           `yaml:"writeMaxRetries"`
	ReviewMaxRetries    int           `yaml:"reviewMaxRetries"`
	StructureMaxRetries int           `yaml:"structureMaxRetries"`
	RateLimitBackoff    time.Duration `yaml:"rateLimitBackoff"`
}

// Timeouts bound waits on the agent service.
type Timeouts struct {
	StreamIdle time.Duration `yaml:"streamIdle"`
	ToolCall   time.Duration `yaml:"toolCall"`
	Connect    time.Duration `yaml:"connect"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Agents: Agents{
			Researcher: agentapi.AgentRef{Name: "tsg-researcher"},
			Writer:     agentapi.AgentRef{Name: "tsg-writer"},
			Reviewer:   agentapi.AgentRef{Name: "tsg-reviewer"},
		},
		Retry: Retry{
			ResearchMaxRetries:  3,
			WriteMaxRetries:     2,
			ReviewMaxRetries:    2,
			StructureMaxRetries: 2,
			RateLimitBackoff:    30 * time.Second,
		},
		Timeouts: Timeouts{
			StreamIdle: 120 * time.Second,
			ToolCall:   90 * time.Second,
			Connect:    60 * time.Second,
		},
		Keepalive:      orchestrator.DefaultKeepalive,
		ProgressBuffer: orchestrator.DefaultProgressBuffer,
		ListenAddr:     ":5000",
	}
}

// Load reads tsgdraft.yml or tsgdraft.yaml from dir and applies environment
// overrides. A missing file yields the defaults, not an error.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return LoadFile(path)
	}
	cfg := Default()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads an explicit config file and applies environment overrides.
// Keys absent from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvEndpoint); v != "" {
		c.Endpoint = v
	}
	if v := getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	for _, b := range []struct {
		key string
		dst *bool
	}{
		{EnvVerbose, &c.Verbose},
		{EnvDiagnostic, &c.Diagnostic},
	} {
		v := getenv(b.key)
		if v == "" {
			continue
		}
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", b.key, v, err)
		}
		*b.dst = on
	}
	return nil
}

// Validate reports settings that would make every run fail.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Endpoint) == "" {
		errs = append(errs, fmt.Errorf("endpoint is required (set it in %s or %s)", FileNames[0], EnvEndpoint))
	}
	for _, a := range []struct {
		role string
		ref  agentapi.AgentRef
	}{
		{"researcher", c.Agents.Researcher},
		{"writer", c.Agents.Writer},
		{"reviewer", c.Agents.Reviewer},
	} {
		if strings.TrimSpace(a.ref.Name) == "" {
			errs = append(errs, fmt.Errorf("agents.%s.name is required", a.role))
		}
	}
	for _, r := range []struct {
		key string
		n   int
	}{
		{"retry.researchMaxRetries", c.Retry.ResearchMaxRetries},
		{"retry.writeMaxRetries", c.Retry.WriteMaxRetries},
		{"retry.reviewMaxRetries", c.Retry.ReviewMaxRetries},
		{"retry.structureMaxRetries", c.Retry.StructureMaxRetries},
	} {
		if r.n < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", r.key))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Orchestrator converts the settings into pipeline configuration.
func (c *Config) Orchestrator() orchestrator.Config {
	policy := func(n int) orchestrator.Policy {
		return orchestrator.Policy{MaxRetries: n, RateLimitBackoff: c.Retry.RateLimitBackoff}
	}
	return orchestrator.Config{
		Agents: orchestrator.AgentSet{
			Researcher: c.Agents.Researcher,
			Writer:     c.Agents.Writer,
			Reviewer:   c.Agents.Reviewer,
		},
		Research:         policy(c.Retry.ResearchMaxRetries),
		Write:            policy(c.Retry.WriteMaxRetries),
		Review:           policy(c.Retry.ReviewMaxRetries),
		StructureRetries: c.Retry.StructureMaxRetries,
		Timeouts: orchestrator.Timeouts{
			StreamIdle: c.Timeouts.StreamIdle,
			ToolCall:   c.Timeouts.ToolCall,
		},
		Diagnostic: c.Diagnostic,
	}
}
