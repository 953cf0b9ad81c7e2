package qpe

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
)

// SolverConfig holds the secant search parameters.
type SolverConfig struct {
	InitialEstimate float64 `mapstructure:"x0" yaml:"x0"`
	SecondEstimate  float64 `mapstructure:"x1" yaml:"x1"`
	MaxIterations   int     `mapstructure:"max-iterations" yaml:"max-iterations"`
	Tolerance       float64 `mapstructure:"tolerance" yaml:"tolerance"`
}

func NewSolverConfig() SolverConfig {
	return SolverConfig{
		InitialEstimate: 1,
		SecondEstimate:  1.2,
		MaxIterations:   200,
		Tolerance:       1e-9,
	}
}

func (c SolverConfig) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max-iterations must be at least 1, got %d", ErrInvalidConfig, c.MaxIterations)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("%w: tolerance must not be negative, got %v", ErrInvalidConfig, c.Tolerance)
	}
	if c.InitialEstimate == c.SecondEstimate {
		return fmt.Errorf("%w: seed estimates must differ, both are %v", ErrInvalidConfig, c.InitialEstimate)
	}
	return nil
}

/*
Config drives a sweep: which qubit counts to solve for, how each circuit is
simulated, and how the pool runs the jobs.
*/
type Config struct {
	SolverConfig `mapstructure:",squash" yaml:",inline"`

	MinQubits int    `mapstructure:"min-qubits" yaml:"min-qubits"`
	MaxQubits int    `mapstructure:"max-qubits" yaml:"max-qubits"`
	Shots     int    `mapstructure:"shots" yaml:"shots"`
	Backend   string `mapstructure:"backend" yaml:"backend"`
	Seed      uint64 `mapstructure:"seed" yaml:"seed"`

	Workers           int           `mapstructure:"workers" yaml:"workers"`
	SchedulingTimeout time.Duration `mapstructure:"scheduling-timeout" yaml:"scheduling-timeout"`
	Retries           int           `mapstructure:"retries" yaml:"retries"`
	RetryBackoff      time.Duration `mapstructure:"retry-backoff" yaml:"retry-backoff"`
	BreakerFailures   int           `mapstructure:"breaker-failures" yaml:"breaker-failures"`
	BreakerReset      time.Duration `mapstructure:"breaker-reset" yaml:"breaker-reset"`
}

func NewConfig() *Config {
	return &Config{
		SolverConfig:      NewSolverConfig(),
		MinQubits:         5,
		MaxQubits:         19,
		Shots:             5000,
		Backend:           BackendStateVector,
		Workers:           1,
		SchedulingTimeout: 10 * time.Second,
		Retries:           3,
		BreakerFailures:   5,
		BreakerReset:      30 * time.Second,
	}
}

func (c *Config) Validate() error {
	if err := c.SolverConfig.Validate(); err != nil {
		return err
	}

	switch {
	case c.MinQubits < 1:
		return fmt.Errorf("%w: min-qubits must be at least 1, got %d", ErrInvalidConfig, c.MinQubits)
	case c.MaxQubits < c.MinQubits:
		return fmt.Errorf("%w: max-qubits %d is below min-qubits %d", ErrInvalidConfig, c.MaxQubits, c.MinQubits)
	case c.MaxQubits+1 > MaxQubits:
		return fmt.Errorf("%w: max-qubits %d needs %d simulated qubits, limit is %d", ErrInvalidConfig, c.MaxQubits, c.MaxQubits+1, MaxQubits)
	case c.Shots < 1:
		return fmt.Errorf("%w: shots must be at least 1, got %d", ErrInvalidConfig, c.Shots)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	case c.Retries < 1:
		return fmt.Errorf("%w: retries counts attempts and must be at least 1, got %d", ErrInvalidConfig, c.Retries)
	case c.BreakerFailures < 1:
		return fmt.Errorf("%w: breaker-failures must be at least 1, got %d", ErrInvalidConfig, c.BreakerFailures)
	}

	if _, err := NewBackend(c.Backend, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// Qubits lists the sweep in ascending order.
func (c *Config) Qubits() []int {
	qubits := make([]int, 0, c.MaxQubits-c.MinQubits+1)
	for n := c.MinQubits; n <= c.MaxQubits; n++ {
		qubits = append(qubits, n)
	}
	return qubits
}
