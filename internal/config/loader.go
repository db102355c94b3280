package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/AgentFoundry/internal/domain/model"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "agentfoundry.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "FOUNDRY_PORT")
	setString(&cfg.Server.CORSOrigin, "FOUNDRY_CORS_ORIGIN")
	setBool(&cfg.Server.AuthEnabled, "FOUNDRY_AUTH_ENABLED")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "FOUNDRY_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "FOUNDRY_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "FOUNDRY_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "FOUNDRY_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "FOUNDRY_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.LedgerBucket, "FOUNDRY_LEDGER_BUCKET")
	setString(&cfg.Logging.Level, "FOUNDRY_LOG_LEVEL")
	setString(&cfg.Logging.Service, "FOUNDRY_LOG_SERVICE")
	setBool(&cfg.Telemetry.Enabled, "FOUNDRY_OTEL_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "FOUNDRY_OTLP_ENDPOINT")
	setString(&cfg.Factory.RepoPath, "FOUNDRY_REPO_PATH")
	setString(&cfg.Factory.BaseBranch, "FOUNDRY_BASE_BRANCH")
	setString(&cfg.Factory.BranchNamespace, "FOUNDRY_BRANCH_NAMESPACE")
	setDuration(&cfg.Factory.SessionTimeout, "FOUNDRY_SESSION_TIMEOUT")
	setInt(&cfg.Factory.CollabLogMax, "FOUNDRY_COLLAB_LOG_MAX")
	setFloat64(&cfg.Factory.ForkConfidence, "FOUNDRY_FORK_CONFIDENCE")
	setInt(&cfg.Factory.AuditParallelism, "FOUNDRY_AUDIT_PARALLELISM")
	setInt(&cfg.Git.MaxConcurrent, "FOUNDRY_GIT_MAX_CONCURRENT")
	setDuration(&cfg.Gate.DefaultTimeout, "FOUNDRY_GATE_TIMEOUT")
	setInt(&cfg.Discipline.MaxChangedLines, "FOUNDRY_MAX_CHANGED_LINES")
	setInt(&cfg.Discipline.MaxChangedFiles, "FOUNDRY_MAX_CHANGED_FILES")
	setDuration(&cfg.Discipline.MinCommitInterval, "FOUNDRY_MIN_COMMIT_INTERVAL")
	setDuration(&cfg.Discipline.MaxCommitInterval, "FOUNDRY_MAX_COMMIT_INTERVAL")
	setString(&cfg.Models.DefaultModel, "FOUNDRY_DEFAULT_MODEL")
	setDuration(&cfg.Models.ProbeInterval, "FOUNDRY_PROBE_INTERVAL")
	setInt64(&cfg.Cache.MaxSizeMB, "FOUNDRY_CACHE_SIZE_MB")
	setInt(&cfg.Breaker.MaxFailures, "FOUNDRY_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "FOUNDRY_BREAKER_TIMEOUT")
	setString(&cfg.Ledger.Backend, "FOUNDRY_LEDGER_BACKEND")
	setString(&cfg.Ledger.Dir, "FOUNDRY_LEDGER_DIR")
}

// validate checks cross-field invariants after all sources are merged.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server port must not be empty")
	}
	if cfg.Factory.BranchNamespace == "" {
		return errors.New("branch namespace must not be empty")
	}
	if cfg.Factory.SessionTimeout <= 0 {
		return errors.New("session timeout must be positive")
	}
	if cfg.Factory.ForkConfidence < 0 || cfg.Factory.ForkConfidence > 1 {
		return errors.New("fork confidence must be in [0,1]")
	}
	if cfg.Models.DefaultModel == "" {
		return errors.New("default model must not be empty")
	}
	for i := range cfg.Models.Options {
		if err := cfg.Models.Options[i].Validate(); err != nil {
			return fmt.Errorf("model %d: %w", i, err)
		}
	}
	if !hasModel(cfg.Models.Options, cfg.Models.DefaultModel) {
		return fmt.Errorf("default model %q is not in the model catalog", cfg.Models.DefaultModel)
	}
	for i := range cfg.Gate.Nags {
		if err := cfg.Gate.Nags[i].Validate(); err != nil {
			return fmt.Errorf("nag %d: %w", i, err)
		}
	}
	switch cfg.Ledger.Backend {
	case "nats", "file":
	default:
		return fmt.Errorf("ledger backend must be nats or file, got %q", cfg.Ledger.Backend)
	}
	if cfg.Ledger.Backend == "file" && cfg.Ledger.Dir == "" {
		return errors.New("ledger dir must not be empty with the file backend")
	}
	return nil
}

func hasModel(options []model.Option, id string) bool {
	for i := range options {
		if options[i].ID == id {
			return true
		}
	}
	return false
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
