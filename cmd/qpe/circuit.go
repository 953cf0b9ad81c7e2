package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"
	"github.com/theapemachine/qpe"
)

func newCircuitCmd() *cobra.Command {
	var (
		qubits   int
		estimate float64
	)

	cmd := &cobra.Command{
		Use:   "circuit",
		Short: "Print the phase-estimation circuit for one qubit count as OpenQASM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if qubits < 1 || qubits+1 > qpe.MaxQubits {
				return fmt.Errorf("%w: qubits must be in 1..%d, got %d", qpe.ErrInvalidConfig, qpe.MaxQubits-1, qubits)
			}

			circuit := qpe.PhaseEstimation(qubits, estimate)
			if err := circuit.Validate(); err != nil {
				return err
			}

			_, err := fmt.Fprint(cmd.OutOrStdout(), circuit.QASM())
			return err
		},
	}

	cmd.Flags().IntVarP(&qubits, "qubits", "n", 5, "precision qubits")
	cmd.Flags().Float64Var(&estimate, "estimate", math.Pi, "value used in place of pi")

	return cmd
}
