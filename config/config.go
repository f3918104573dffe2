// Package config builds saga transactions from YAML or JSON definitions.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	saga "github.com/goliatone/go-saga"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Step executors.
const (
	ExecutorInline    = "inline"
	ExecutorGoroutine = "goroutine"
	ExecutorQueue     = "queue"
)

// TransactionConfig describes one transaction.
type TransactionConfig struct {
	Name             string          `json:"name" yaml:"name"`
	Mode             string          `json:"mode,omitempty" yaml:"mode,omitempty"`
	LogExecutionTime bool            `json:"log_execution_time,omitempty" yaml:"log_execution_time,omitempty"`
	Store            StoreConfig     `json:"store,omitempty" yaml:"store,omitempty"`
	Steps            []StepConfig    `json:"steps" yaml:"steps"`
	Recovery         *RecoveryConfig `json:"recovery,omitempty" yaml:"recovery,omitempty"`
}

// StoreConfig selects the session store. An empty driver disables persistence.
type StoreConfig struct {
	Driver    string        `json:"driver,omitempty" yaml:"driver,omitempty"`
	DSN       string        `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Table     string        `json:"table,omitempty" yaml:"table,omitempty"`
	KeyPrefix string        `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
	TTL       time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	Retry     *RetryConfig  `json:"retry,omitempty" yaml:"retry,omitempty"`
}

// RetryConfig retries failed persistence calls with exponential backoff.
type RetryConfig struct {
	Retries int           `json:"retries" yaml:"retries"`
	Base    time.Duration `json:"base,omitempty" yaml:"base,omitempty"`
	Factor  float64       `json:"factor,omitempty" yaml:"factor,omitempty"`
	Max     time.Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// StepConfig binds a step id to a registered handler.
type StepConfig struct {
	ID          string   `json:"id" yaml:"id"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Handler     string   `json:"handler" yaml:"handler"`
	Settings    []string `json:"settings,omitempty" yaml:"settings,omitempty"`
	Executor    string   `json:"executor,omitempty" yaml:"executor,omitempty"`
}

// RecoveryConfig schedules recovery sweeps.
type RecoveryConfig struct {
	Schedule string `json:"schedule" yaml:"schedule"`
	Mode     string `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// Parse reads JSON or YAML into a TransactionConfig and validates it.
func Parse(data []byte) (TransactionConfig, error) {
	var cfg TransactionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		// yaml can handle JSON too, so a single attempt is fine
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Load parses the file at path.
func Load(path string) (TransactionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TransactionConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate performs structural validation.
func (c TransactionConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if _, err := saga.ParseRunMode(c.Mode); err != nil {
		return fmt.Errorf("transaction %s: %w", c.Name, err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("transaction %s store: %w", c.Name, err)
	}
	if len(c.Steps) == 0 {
		return fmt.Errorf("transaction %s requires steps", c.Name)
	}
	seen := make(map[string]struct{}, len(c.Steps))
	for idx, step := range c.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("transaction %s step[%d]: %w", c.Name, idx, err)
		}
		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("transaction %s step[%d]: duplicate id %s", c.Name, idx, step.ID)
		}
		seen[step.ID] = struct{}{}
	}
	if c.Recovery != nil {
		if err := c.Recovery.Validate(); err != nil {
			return fmt.Errorf("transaction %s recovery: %w", c.Name, err)
		}
		if c.Store.Driver == "" {
			return fmt.Errorf("transaction %s recovery requires a store", c.Name)
		}
	}
	return nil
}

// Validate checks the store driver and its required fields.
func (s StoreConfig) Validate() error {
	if s.Retry != nil && (s.Retry.Retries < 0 || s.Retry.Base < 0 || s.Retry.Max < 0) {
		return fmt.Errorf("store retry values must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case "", DriverMemory:
		return nil
	case DriverSQLite, DriverRedis:
		if strings.TrimSpace(s.DSN) == "" {
			return fmt.Errorf("driver %s requires dsn", s.Driver)
		}
		return nil
	default:
		return fmt.Errorf("unknown driver %q", s.Driver)
	}
}

// Validate checks required step fields, settings and executor.
func (s StepConfig) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(s.Handler) == "" {
		return fmt.Errorf("step %s requires handler", s.ID)
	}
	if _, err := saga.ParseStepSettings(s.Settings); err != nil {
		return fmt.Errorf("step %s: %w", s.ID, err)
	}
	switch strings.ToLower(strings.TrimSpace(s.Executor)) {
	case "", ExecutorInline, ExecutorGoroutine, ExecutorQueue:
	default:
		return fmt.Errorf("step %s: unknown executor %q", s.ID, s.Executor)
	}
	return nil
}

// Validate checks the schedule and that the mode recovers a session.
func (r RecoveryConfig) Validate() error {
	if strings.TrimSpace(r.Schedule) == "" {
		return fmt.Errorf("schedule is required")
	}
	mode, err := r.RunMode()
	if err != nil {
		return err
	}
	if mode != saga.ModeRecoverAndContinue && mode != saga.ModeRecoverAndUndoAndRun {
		return fmt.Errorf("mode %s does not recover a session", mode)
	}
	return nil
}

// RunMode resolves the recovery mode, defaulting to recover_and_continue.
func (r RecoveryConfig) RunMode() (saga.RunMode, error) {
	if strings.TrimSpace(r.Mode) == "" {
		return saga.ModeRecoverAndContinue, nil
	}
	return saga.ParseRunMode(r.Mode)
}
