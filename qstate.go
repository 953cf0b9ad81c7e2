package qpe

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"sort"
)

// MaxQubits bounds the dense register; 2^24 amplitudes is 256MiB.
const MaxQubits = 24

var (
	ErrTooManyQubits = errors.New("too many qubits for statevector simulation")
)

/*
QuantumState is a dense statevector over NumQubits qubits. Basis index i
holds qubit q in bit q of i, so qubit 0 is the least significant.
*/
type QuantumState struct {
	NumQubits int
	Vector    []complex128
}

// NewQuantumState returns the register prepared in |0…0⟩.
func NewQuantumState(numQubits int) (*QuantumState, error) {
	if numQubits < 1 {
		return nil, fmt.Errorf("%w: register needs at least one qubit", ErrInvalidCircuit)
	}
	if numQubits > MaxQubits {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrTooManyQubits, numQubits, MaxQubits)
	}

	vector := make([]complex128, 1<<numQubits)
	vector[0] = 1

	return &QuantumState{
		NumQubits: numQubits,
		Vector:    vector,
	}, nil
}

// Apply executes one unitary gate. Barriers are no-ops, measurements are
// handled by the caller.
func (qs *QuantumState) Apply(g Gate) error {
	switch g.Kind {
	case GateH:
		qs.ApplyHadamard(g.Qubits[0])
	case GateX:
		qs.ApplyX(g.Qubits[0])
	case GateCU1:
		qs.ApplyCU1(g.Param, g.Qubits[0], g.Qubits[1])
	case GateSwap:
		qs.ApplySwap(g.Qubits[0], g.Qubits[1])
	case GateBarrier, GateMeasure:
	default:
		return fmt.Errorf("%w: unsupported gate %q", ErrInvalidCircuit, g.Kind)
	}
	return nil
}

func (qs *QuantumState) ApplyHadamard(q int) {
	// H = 1/√2 * [1  1]
	//           [1 -1]
	h := complex(1/math.Sqrt2, 0)
	bit := 1 << q

	for i := range qs.Vector {
		if i&bit != 0 {
			continue
		}
		j := i | bit
		alpha, beta := qs.Vector[i], qs.Vector[j]
		qs.Vector[i] = h * (alpha + beta)
		qs.Vector[j] = h * (alpha - beta)
	}
}

func (qs *QuantumState) ApplyX(q int) {
	bit := 1 << q

	for i := range qs.Vector {
		if i&bit == 0 {
			j := i | bit
			qs.Vector[i], qs.Vector[j] = qs.Vector[j], qs.Vector[i]
		}
	}
}

// ApplyCU1 is diagonal, so it scales the |11⟩ amplitudes in place.
func (qs *QuantumState) ApplyCU1(theta float64, control, target int) {
	mask := (1 << control) | (1 << target)
	phase := cmplx.Exp(complex(0, theta))

	for i := range qs.Vector {
		if i&mask == mask {
			qs.Vector[i] *= phase
		}
	}
}

func (qs *QuantumState) ApplySwap(a, b int) {
	bitA, bitB := 1<<a, 1<<b

	for i := range qs.Vector {
		if i&bitA != 0 && i&bitB == 0 {
			j := (i &^ bitA) | bitB
			qs.Vector[i], qs.Vector[j] = qs.Vector[j], qs.Vector[i]
		}
	}
}

/*
Distribution marginalizes |amplitude|² onto the classical register. wiring
maps clbit to the qubit measured into it; outcome o has clbit c in bit c.
*/
func (qs *QuantumState) Distribution(wiring map[int]int, clbits int) []float64 {
	probs := make([]float64, 1<<clbits)

	for i, amplitude := range qs.Vector {
		p := real(amplitude)*real(amplitude) + imag(amplitude)*imag(amplitude)
		if p == 0 {
			continue
		}

		outcome := 0
		for c, q := range wiring {
			if i&(1<<q) != 0 {
				outcome |= 1 << c
			}
		}
		probs[outcome] += p
	}

	return probs
}

/*
Sample draws shots outcomes from probs. The cumulative table is normalized so
rounding drift in the statevector cannot push draws past the last outcome.
*/
func Sample(probs []float64, shots int, rng *rand.Rand) map[int]int {
	cumulative := make([]float64, len(probs))
	total := 0.0
	for i, p := range probs {
		total += p
		cumulative[i] = total
	}

	counts := make(map[int]int)
	if total == 0 {
		return counts
	}

	for i := range cumulative {
		cumulative[i] /= total
	}

	for s := 0; s < shots; s++ {
		r := rng.Float64()
		idx := sort.SearchFloat64s(cumulative, r)
		// r == 0 can land on a leading zero-probability outcome.
		for idx < len(probs)-1 && probs[idx] == 0 {
			idx++
		}
		if idx >= len(probs) {
			idx = len(probs) - 1
		}
		counts[idx]++
	}

	return counts
}
