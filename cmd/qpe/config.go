package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/theapemachine/qpe"
)

const envPrefix = "QPE"

// bindFlags registers the sweep flags, defaulted from qpe.NewConfig.
func bindFlags(flags *pflag.FlagSet) {
	defaults := qpe.NewConfig()

	flags.Int("min-qubits", defaults.MinQubits, "smallest number of precision qubits in the sweep")
	flags.Int("max-qubits", defaults.MaxQubits, "largest number of precision qubits in the sweep")
	flags.Int("shots", defaults.Shots, "simulated shots per circuit evaluation")
	flags.String("backend", defaults.Backend, fmt.Sprintf("simulation backend (%s)", strings.Join(qpe.Backends(), ", ")))
	flags.Uint64("seed", defaults.Seed, "base random seed; 0 picks one and reports it")
	flags.Int("workers", defaults.Workers, "qubit counts solved concurrently")
	flags.Int("max-iterations", defaults.MaxIterations, "secant iteration cap per qubit count")
	flags.Float64("tolerance", defaults.Tolerance, "absolute convergence tolerance; 0 demands exact repeats")
	flags.Float64("x0", defaults.InitialEstimate, "first seed estimate of pi")
	flags.Float64("x1", defaults.SecondEstimate, "second seed estimate of pi")
	flags.Int("retries", defaults.Retries, "attempts per qubit count before it is reported as failed")
	flags.Duration("retry-backoff", defaults.RetryBackoff, "initial delay between attempts")
	flags.Int("breaker-failures", defaults.BreakerFailures, "consecutive backend failures that open the breaker")
	flags.Duration("breaker-reset", defaults.BreakerReset, "how long an open breaker rejects calls")
	flags.Duration("scheduling-timeout", defaults.SchedulingTimeout, "how long to wait for a queue slot")
}

/*
loadConfig layers defaults, an optional YAML file, QPE_* environment
variables and explicitly set flags, in increasing priority.
*/
func loadConfig(v *viper.Viper, flags *pflag.FlagSet, file string) (*qpe.Config, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	config := qpe.NewConfig()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}
