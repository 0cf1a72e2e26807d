package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"swarmcore/internal/logging"
)

// Config holds all swarmcore configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Bus          BusConfig          `yaml:"bus"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Reservation  ReservationConfig  `yaml:"reservation"`
	Worktree     WorktreeConfig     `yaml:"worktree"`
	Policy       PolicyConfig       `yaml:"policy"`

	Logging LoggingConfig `yaml:"logging"`
}

// OrchestratorConfig controls DAG scheduling and the review gate.
type OrchestratorConfig struct {
	MaxConcurrentSubtasks int    `yaml:"max_concurrent_subtasks"`
	HeartbeatInterval     string `yaml:"heartbeat_interval"`
	SubtaskTimeout        string `yaml:"subtask_timeout"`
	MaxRetries            int    `yaml:"max_retries"`
	JobTTL                string `yaml:"job_ttl"` // jobs older than this are swept
}

// BusConfig controls the message bus.
type BusConfig struct {
	Backend        string `yaml:"backend"` // "memory" or "sqlite"
	DatabasePath   string `yaml:"database_path"`
	MaxInboxLimit  int    `yaml:"max_inbox_limit"`
	DeliveryTimeout string `yaml:"delivery_timeout"`
}

// RateLimitConfig controls sliding-window rate limiting.
type RateLimitConfig struct {
	Backend         string `yaml:"backend"` // "memory", "sqlite", or "redis"
	RedisAddr       string `yaml:"redis_addr"`
	WindowSize      string `yaml:"window_size"`
	MaxRequests     int    `yaml:"max_requests"`
	CircuitTimeout  string `yaml:"circuit_timeout"`
	FallbackToLocal bool   `yaml:"fallback_to_local"`
}

// ReservationConfig controls the file reservation registry.
type ReservationConfig struct {
	DefaultLeaseTTL string `yaml:"default_lease_ttl"`
	SweepInterval   string `yaml:"sweep_interval"`
}

// WorktreeConfig controls git worktree lifecycle.
type WorktreeConfig struct {
	BaseDir          string `yaml:"base_dir"`
	ConventionDir    string `yaml:"convention_dir"` // not read by internal/worktree, whose watcher uses .swarm/worktrees
	CleanupOnFailure bool   `yaml:"cleanup_on_failure"`
}

// PolicyConfig controls mandate consensus and pattern maturity scoring.
type PolicyConfig struct {
	HalfLifeDays        float64 `yaml:"half_life_days"`
	MinOccurrencesMature int    `yaml:"min_occurrences_mature"`
	ConsensusThreshold   float64 `yaml:"consensus_threshold"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "swarmcore",
		Version: "0.1.0",

		Orchestrator: OrchestratorConfig{
			MaxConcurrentSubtasks: 4,
			HeartbeatInterval:     "10s",
			SubtaskTimeout:        "10m",
			MaxRetries:            2,
			JobTTL:                "168h", // 7 days
		},

		Bus: BusConfig{
			Backend:         "memory",
			DatabasePath:    "data/swarmbus.db",
			MaxInboxLimit:   50,
			DeliveryTimeout: "30s",
		},

		RateLimit: RateLimitConfig{
			Backend:         "memory",
			RedisAddr:       "localhost:6379",
			WindowSize:      "60s",
			MaxRequests:     100,
			CircuitTimeout:  "5s",
			FallbackToLocal: true,
		},

		Reservation: ReservationConfig{
			DefaultLeaseTTL: "30m",
			SweepInterval:   "1m",
		},

		Worktree: WorktreeConfig{
			BaseDir:          ".swarm/worktrees",
			ConventionDir:    ".swarm/conventions",
			CleanupOnFailure: true,
		},

		Policy: PolicyConfig{
			HalfLifeDays:         90,
			MinOccurrencesMature: 3,
			ConsensusThreshold:   0.6,
		},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			DebugMode: false,
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults
// when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	logging.BootDebug("Loading config from: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("Config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		logging.BootError("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logging.BootError("Failed to parse config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Boot("Config loaded: orchestrator max_concurrent=%d rate_limit backend=%s",
		cfg.Orchestrator.MaxConcurrentSubtasks, cfg.RateLimit.Backend)

	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies OPENCODE_RATE_LIMIT_* environment overrides.
// These take precedence over file-based configuration so operators can
// retune the rate limiter without redeploying config.
func (c *Config) applyEnvOverrides() {
	if backend := os.Getenv("OPENCODE_RATE_LIMIT_BACKEND"); backend != "" {
		c.RateLimit.Backend = backend
	}
	if addr := os.Getenv("OPENCODE_RATE_LIMIT_REDIS_ADDR"); addr != "" {
		c.RateLimit.RedisAddr = addr
	}
	if window := os.Getenv("OPENCODE_RATE_LIMIT_WINDOW_SIZE"); window != "" {
		c.RateLimit.WindowSize = window
	}
	if maxReq := os.Getenv("OPENCODE_RATE_LIMIT_MAX_REQUESTS"); maxReq != "" {
		if n, err := strconv.Atoi(maxReq); err == nil {
			c.RateLimit.MaxRequests = n
		} else {
			logging.BootWarn("invalid OPENCODE_RATE_LIMIT_MAX_REQUESTS=%q: %v", maxReq, err)
		}
	}
	if timeout := os.Getenv("OPENCODE_RATE_LIMIT_CIRCUIT_TIMEOUT"); timeout != "" {
		c.RateLimit.CircuitTimeout = timeout
	}
	if fallback := os.Getenv("OPENCODE_RATE_LIMIT_FALLBACK_TO_LOCAL"); fallback != "" {
		if b, err := strconv.ParseBool(fallback); err == nil {
			c.RateLimit.FallbackToLocal = b
		} else {
			logging.BootWarn("invalid OPENCODE_RATE_LIMIT_FALLBACK_TO_LOCAL=%q: %v", fallback, err)
		}
	}
}

// GetHeartbeatInterval returns the orchestrator heartbeat interval as a duration.
func (c *Config) GetHeartbeatInterval() time.Duration {
	return parseDurationOr(c.Orchestrator.HeartbeatInterval, 10*time.Second)
}

// GetSubtaskTimeout returns the per-subtask timeout as a duration.
func (c *Config) GetSubtaskTimeout() time.Duration {
	return parseDurationOr(c.Orchestrator.SubtaskTimeout, 10*time.Minute)
}

// GetJobTTL returns the job sweep TTL as a duration.
func (c *Config) GetJobTTL() time.Duration {
	return parseDurationOr(c.Orchestrator.JobTTL, 168*time.Hour)
}

// GetRateLimitWindow returns the rate limit sliding window size as a duration.
func (c *Config) GetRateLimitWindow() time.Duration {
	return parseDurationOr(c.RateLimit.WindowSize, 60*time.Second)
}

// GetCircuitTimeout returns the rate limiter circuit breaker timeout as a duration.
func (c *Config) GetCircuitTimeout() time.Duration {
	return parseDurationOr(c.RateLimit.CircuitTimeout, 5*time.Second)
}

// GetDefaultLeaseTTL returns the default reservation lease TTL as a duration.
func (c *Config) GetDefaultLeaseTTL() time.Duration {
	return parseDurationOr(c.Reservation.DefaultLeaseTTL, 30*time.Minute)
}

// GetReservationSweepInterval returns the reservation sweep interval as a duration.
func (c *Config) GetReservationSweepInterval() time.Duration {
	return parseDurationOr(c.Reservation.SweepInterval, time.Minute)
}

// GetDeliveryTimeout returns the bus delivery timeout as a duration.
func (c *Config) GetDeliveryTimeout() time.Duration {
	return parseDurationOr(c.Bus.DeliveryTimeout, 30*time.Second)
}

// GetHalfLife returns the policy decay half-life as a duration.
func (c *Config) GetHalfLife() time.Duration {
	return time.Duration(c.Policy.HalfLifeDays * 24 * float64(time.Hour))
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Orchestrator.MaxConcurrentSubtasks < 1 {
		return fmt.Errorf("orchestrator.max_concurrent_subtasks must be >= 1")
	}
	if c.Bus.MaxInboxLimit < 1 {
		return fmt.Errorf("bus.max_inbox_limit must be >= 1")
	}
	validBackends := map[string]bool{"memory": true, "sqlite": true, "redis": true}
	if !validBackends[c.RateLimit.Backend] {
		return fmt.Errorf("invalid rate_limit backend: %s (valid: memory, sqlite, redis)", c.RateLimit.Backend)
	}
	if c.Policy.HalfLifeDays <= 0 {
		return fmt.Errorf("policy.half_life_days must be > 0")
	}
	return nil
}
