package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/theapemachine/qpe"
	"github.com/theapemachine/qpe/internal/report"
)

func newLogger(verbose bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "qpe",
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func newRootCmd() *cobra.Command {
	var (
		configFile string
		format     string
		verbose    bool
	)

	v := viper.New()

	cmd := &cobra.Command{
		Use:   "qpe",
		Short: "Estimate pi with a simulated phase-estimation circuit",
		Long: `qpe searches for the fixed point f(x) = x of a simulated phase-estimation
circuit whose inverse Fourier transform uses x in place of pi. The search is
a classical secant iteration, repeated for every qubit count in the sweep.

Every flag may also be set in a YAML file (--config) or through QPE_*
environment variables, e.g. QPE_MAX_QUBITS=12.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(verbose)

			if !slices.Contains(report.Formats(), format) {
				return fmt.Errorf("unknown report format %q (have %v)", format, report.Formats())
			}

			config, err := loadConfig(v, cmd.Flags(), configFile)
			if err != nil {
				logger.Error("invalid configuration", "err", err)
				return err
			}

			runner := qpe.NewRunner(config, qpe.WithProgress(func(step qpe.Step) {
				logger.Debug("secant step",
					"qubits", step.Qubits,
					"iteration", step.Iteration,
					"estimate", step.Estimate,
					"measured", step.Measured,
				)
			}))

			logger.Info("starting sweep",
				"qubits", fmt.Sprintf("%d..%d", config.MinQubits, config.MaxQubits),
				"backend", config.Backend,
				"shots", config.Shots,
				"workers", config.Workers,
				"seed", runner.Seed(),
			)

			result, err := runner.Run(cmd.Context())
			if err != nil {
				logger.Error("sweep aborted", "err", err)
				return err
			}

			logger.Info("sweep finished",
				"run", result.RunID,
				"converged", result.Converged(),
				"of", len(result.Results),
				"elapsed", result.FinishedAt.Sub(result.StartedAt),
			)

			return report.Write(format, cmd.OutOrStdout(), result)
		},
	}

	flags := cmd.Flags()
	bindFlags(flags)

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every secant step")
	flags.StringVarP(&format, "format", "o", "text", "output format ("+strings.Join(report.Formats(), ", ")+")")

	cmd.AddCommand(newCircuitCmd())

	return cmd
}
