package qpe

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrInvalidCircuit = errors.New("invalid circuit")
)

// GateKind names an operation in a circuit.
type GateKind string

const (
	GateH       GateKind = "h"
	GateX       GateKind = "x"
	GateCU1     GateKind = "cu1"
	GateSwap    GateKind = "swap"
	GateBarrier GateKind = "barrier"
	GateMeasure GateKind = "measure"
)

/*
Gate is a single operation placed on a circuit. Qubits holds the operands in
order (control before target for cu1). Param is the rotation angle for cu1,
Clbit the destination bit for measure.
*/
type Gate struct {
	Kind   GateKind
	Qubits []int
	Param  float64
	Clbit  int
}

/*
Circuit is a flat, ordered gate list over a quantum and a classical register.
It is only a description; a Backend decides how to execute it.
*/
type Circuit struct {
	NumQubits int
	NumClbits int
	Gates     []Gate
}

// NewCircuit creates an empty circuit.
func NewCircuit(qubits, clbits int) *Circuit {
	return &Circuit{
		NumQubits: qubits,
		NumClbits: clbits,
		Gates:     make([]Gate, 0),
	}
}

func (c *Circuit) H(qubits ...int) *Circuit {
	for _, q := range qubits {
		c.Gates = append(c.Gates, Gate{Kind: GateH, Qubits: []int{q}})
	}
	return c
}

func (c *Circuit) X(qubits ...int) *Circuit {
	for _, q := range qubits {
		c.Gates = append(c.Gates, Gate{Kind: GateX, Qubits: []int{q}})
	}
	return c
}

// CU1 applies a controlled phase of theta to the |11⟩ component.
func (c *Circuit) CU1(theta float64, control, target int) *Circuit {
	c.Gates = append(c.Gates, Gate{Kind: GateCU1, Qubits: []int{control, target}, Param: theta})
	return c
}

func (c *Circuit) Swap(a, b int) *Circuit {
	c.Gates = append(c.Gates, Gate{Kind: GateSwap, Qubits: []int{a, b}})
	return c
}

func (c *Circuit) Barrier() *Circuit {
	c.Gates = append(c.Gates, Gate{Kind: GateBarrier})
	return c
}

func (c *Circuit) Measure(qubit, clbit int) *Circuit {
	c.Gates = append(c.Gates, Gate{Kind: GateMeasure, Qubits: []int{qubit}, Clbit: clbit})
	return c
}

/*
Validate checks operand ranges and arity, and that no gate touches a qubit
after it has been measured. Backends only support terminal measurement.
*/
func (c *Circuit) Validate() error {
	if c.NumQubits < 1 {
		return fmt.Errorf("%w: circuit needs at least one qubit", ErrInvalidCircuit)
	}

	measured := make(map[int]bool)

	for i, g := range c.Gates {
		want := 0

		switch g.Kind {
		case GateH, GateX, GateMeasure:
			want = 1
		case GateCU1, GateSwap:
			want = 2
		case GateBarrier:
			continue
		default:
			return fmt.Errorf("%w: gate %d has unknown kind %q", ErrInvalidCircuit, i, g.Kind)
		}

		if len(g.Qubits) != want {
			return fmt.Errorf("%w: gate %d (%s) takes %d qubits, got %d", ErrInvalidCircuit, i, g.Kind, want, len(g.Qubits))
		}

		for _, q := range g.Qubits {
			if q < 0 || q >= c.NumQubits {
				return fmt.Errorf("%w: gate %d (%s) qubit %d out of range", ErrInvalidCircuit, i, g.Kind, q)
			}
			if measured[q] {
				return fmt.Errorf("%w: gate %d (%s) acts on measured qubit %d", ErrInvalidCircuit, i, g.Kind, q)
			}
		}

		if want == 2 && g.Qubits[0] == g.Qubits[1] {
			return fmt.Errorf("%w: gate %d (%s) repeats qubit %d", ErrInvalidCircuit, i, g.Kind, g.Qubits[0])
		}

		if g.Kind == GateMeasure {
			if g.Clbit < 0 || g.Clbit >= c.NumClbits {
				return fmt.Errorf("%w: gate %d clbit %d out of range", ErrInvalidCircuit, i, g.Clbit)
			}
			measured[g.Qubits[0]] = true
		}
	}

	return nil
}

// QASM renders the circuit as OpenQASM 2.0.
func (c *Circuit) QASM() string {
	var b strings.Builder

	b.WriteString("OPENQASM 2.0;\n")
	b.WriteString("include \"qelib1.inc\";\n")
	fmt.Fprintf(&b, "qreg q[%d];\n", c.NumQubits)
	if c.NumClbits > 0 {
		fmt.Fprintf(&b, "creg c[%d];\n", c.NumClbits)
	}

	for _, g := range c.Gates {
		switch g.Kind {
		case GateBarrier:
			fmt.Fprintf(&b, "barrier q;\n")
		case GateMeasure:
			fmt.Fprintf(&b, "measure q[%d] -> c[%d];\n", g.Qubits[0], g.Clbit)
		case GateCU1:
			fmt.Fprintf(&b, "cu1(%.17g) q[%d],q[%d];\n", g.Param, g.Qubits[0], g.Qubits[1])
		default:
			refs := make([]string, len(g.Qubits))
			for i, q := range g.Qubits {
				refs[i] = fmt.Sprintf("q[%d]", q)
			}
			fmt.Fprintf(&b, "%s %s;\n", g.Kind, strings.Join(refs, ","))
		}
	}

	return b.String()
}

/*
PhaseEstimation builds the estimation circuit for n precision qubits. The
target qubit n is prepared in |1⟩ and picks up an eigenphase of one radian
through the controlled powers. The inverse Fourier transform is built with
estimate standing in for π, so measuring the register returns a value that
only reproduces estimate when estimate is π.
*/
func PhaseEstimation(n int, estimate float64) *Circuit {
	c := NewCircuit(n+1, n)

	for q := 0; q < n; q++ {
		c.H(q)
	}
	c.X(n)

	for q := 0; q < n; q++ {
		c.CU1(math.Ldexp(1, n-q-1), q, n)
	}
	c.Barrier()

	for q := 0; q < n; q++ {
		if float64(q) < float64(n-1)/2 {
			c.Swap(q, n-1-q)
		}
	}

	for target := n - 1; target >= 0; target-- {
		for control := n - 1; control > target; control-- {
			k := target - control - 1
			c.CU1(-2*estimate*math.Ldexp(1, k), control, target)
		}
		c.H(target)
		c.Barrier()
	}

	for q := 0; q < n; q++ {
		c.Measure(q, q)
	}

	return c
}
