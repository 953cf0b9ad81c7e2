package qpe

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCounts(t *testing.T) {
	Convey("Given a counts histogram", t, func() {
		counts := Counts{"011": 40, "110": 40, "000": 5}

		Convey("Ties should go to the smallest bit-string", func() {
			outcome, n := counts.MostFrequent()
			So(outcome, ShouldEqual, "011")
			So(n, ShouldEqual, 40)
		})

		Convey("Shots should sum the histogram", func() {
			So(counts.Shots(), ShouldEqual, 85)
		})

		Convey("An empty histogram has no outcome", func() {
			outcome, n := Counts{}.MostFrequent()
			So(outcome, ShouldBeEmpty)
			So(n, ShouldEqual, 0)
		})
	})

	Convey("FormatOutcome writes the most significant bit first", t, func() {
		So(FormatOutcome(1, 3), ShouldEqual, "001")
		So(FormatOutcome(6, 3), ShouldEqual, "110")
		So(FormatOutcome(0, 0), ShouldEqual, "")
	})
}

func TestStateVectorBackend(t *testing.T) {
	Convey("Given the backends", t, func() {
		ctx := context.Background()
		// X on qubit 0, H on qubit 1: outcomes 01 and 11 with equal weight.
		circuit := NewCircuit(2, 2).X(0).H(1).Measure(0, 0).Measure(1, 1)

		Convey("The ideal backend should report expected counts", func() {
			counts, err := NewIdealBackend().Run(ctx, circuit, 1000)
			So(err, ShouldBeNil)
			So(counts, ShouldResemble, Counts{"01": 500, "11": 500})
		})

		Convey("The sampling backend should be reproducible per seed", func() {
			a, err := NewStateVectorBackend(42).Run(ctx, circuit, 1000)
			So(err, ShouldBeNil)
			b, err := NewStateVectorBackend(42).Run(ctx, circuit, 1000)
			So(err, ShouldBeNil)

			So(a, ShouldResemble, b)
			So(a.Shots(), ShouldEqual, 1000)
			So(a["00"]+a["10"], ShouldEqual, 0)
		})

		Convey("Invalid input should be rejected", func() {
			_, err := NewIdealBackend().Run(ctx, circuit, 0)
			So(errors.Is(err, ErrInvalidShots), ShouldBeTrue)

			_, err = NewIdealBackend().Run(ctx, NewCircuit(2, 0).H(5), 10)
			So(errors.Is(err, ErrInvalidCircuit), ShouldBeTrue)

			_, err = NewIdealBackend().Run(ctx, NewCircuit(MaxQubits+1, 0), 10)
			So(errors.Is(err, ErrTooManyQubits), ShouldBeTrue)
		})

		Convey("A cancelled context should stop the run", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := NewStateVectorBackend(1).Run(cancelled, circuit, 10)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})
}

func TestNewBackend(t *testing.T) {
	Convey("Given backend names", t, func() {
		for _, name := range Backends() {
			backend, err := NewBackend(name, 1)
			So(err, ShouldBeNil)
			So(backend.Name(), ShouldEqual, name)
		}

		backend, err := NewBackend(" StateVector ", 1)
		So(err, ShouldBeNil)
		So(backend.Name(), ShouldEqual, BackendStateVector)

		_, err = NewBackend("aer", 1)
		So(errors.Is(err, ErrUnknownBackend), ShouldBeTrue)
	})
}
