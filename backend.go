package qpe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
)

var (
	ErrUnknownBackend = errors.New("unknown backend")
	ErrInvalidShots   = errors.New("shots must be positive")
)

const (
	BackendStateVector = "statevector"
	BackendIdeal       = "ideal"
)

// Backend executes a circuit and reports how often each outcome was seen.
type Backend interface {
	// Name returns the backend name
	Name() string

	// Run executes circuit for the given number of shots.
	Run(ctx context.Context, circuit *Circuit, shots int) (Counts, error)
}

/*
Counts maps a classical bit-string to the number of shots that produced it.
Keys are written most significant clbit first: c[n-1] … c[0].
*/
type Counts map[string]int

/*
MostFrequent returns the outcome with the highest count. Ties go to the
lexicographically smallest bit-string so the choice does not depend on map
iteration order.
*/
func (c Counts) MostFrequent() (string, int) {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best, bestCount := "", -1
	for _, k := range keys {
		if c[k] > bestCount {
			best, bestCount = k, c[k]
		}
	}

	if bestCount < 0 {
		return "", 0
	}
	return best, bestCount
}

// Shots sums all counts.
func (c Counts) Shots() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// FormatOutcome writes outcome as a width-bit string, most significant first.
func FormatOutcome(outcome, width int) string {
	var b strings.Builder
	b.Grow(width)
	for bit := width - 1; bit >= 0; bit-- {
		if outcome&(1<<bit) != 0 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

/*
StateVectorBackend simulates a circuit on a dense QuantumState. With sampling
enabled it draws every shot from a seeded PCG stream; otherwise it reports the
expected count of every outcome, which removes shot noise entirely.
*/
type StateVectorBackend struct {
	mu       sync.Mutex
	rng      *rand.Rand
	sampling bool
}

// NewStateVectorBackend returns a sampling backend seeded with seed.
func NewStateVectorBackend(seed uint64) *StateVectorBackend {
	return &StateVectorBackend{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		sampling: true,
	}
}

// NewIdealBackend returns a backend without shot noise.
func NewIdealBackend() *StateVectorBackend {
	return &StateVectorBackend{}
}

func (b *StateVectorBackend) Name() string {
	if b.sampling {
		return BackendStateVector
	}
	return BackendIdeal
}

func (b *StateVectorBackend) Run(ctx context.Context, circuit *Circuit, shots int) (Counts, error) {
	if shots < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShots, shots)
	}

	if err := circuit.Validate(); err != nil {
		return nil, err
	}

	state, err := NewQuantumState(circuit.NumQubits)
	if err != nil {
		return nil, err
	}

	wiring := make(map[int]int)

	for _, g := range circuit.Gates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if g.Kind == GateMeasure {
			wiring[g.Clbit] = g.Qubits[0]
			continue
		}

		if err := state.Apply(g); err != nil {
			return nil, err
		}
	}

	probs := state.Distribution(wiring, circuit.NumClbits)
	counts := make(Counts)

	if !b.sampling {
		for outcome, p := range probs {
			if n := int(math.Round(p * float64(shots))); n > 0 {
				counts[FormatOutcome(outcome, circuit.NumClbits)] = n
			}
		}
		return counts, nil
	}

	b.mu.Lock()
	drawn := Sample(probs, shots, b.rng)
	b.mu.Unlock()

	for outcome, n := range drawn {
		counts[FormatOutcome(outcome, circuit.NumClbits)] = n
	}

	return counts, nil
}

// NewBackend creates a backend by name.
func NewBackend(name string, seed uint64) (Backend, error) {
	switch normalizeBackend(name) {
	case BackendStateVector:
		return NewStateVectorBackend(seed), nil
	case BackendIdeal:
		return NewIdealBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// Sampling reports whether the named backend draws shots at random.
func Sampling(name string) bool {
	return normalizeBackend(name) == BackendStateVector
}

func normalizeBackend(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return BackendStateVector
	}
	return name
}

// Backends lists the names NewBackend accepts.
func Backends() []string {
	return []string{BackendStateVector, BackendIdeal}
}
