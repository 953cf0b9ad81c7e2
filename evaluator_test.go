package qpe

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMeasuredValue(t *testing.T) {
	Convey("Given counts from a 3-qubit register", t, func() {
		Convey("The bit-string should be read reversed", func() {
			// "100" reversed is "001": v = 1, so 2^2 / 1.
			v, err := MeasuredValue(3, Counts{"100": 9, "010": 1})
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 4)

			// "011" reversed is "110": v = 6.
			v, err = MeasuredValue(3, Counts{"011": 9})
			So(err, ShouldBeNil)
			So(v, ShouldAlmostEqual, 4.0/6.0, 1e-15)
		})

		Convey("An all-zero winner is degenerate", func() {
			_, err := MeasuredValue(3, Counts{"000": 9, "100": 1})
			So(errors.Is(err, ErrDegenerateOutcome), ShouldBeTrue)
		})

		Convey("No counts is an error", func() {
			_, err := MeasuredValue(3, Counts{})
			So(errors.Is(err, ErrNoCounts), ShouldBeTrue)
		})

		Convey("Garbage outcomes are an error", func() {
			_, err := MeasuredValue(3, Counts{"1x1": 3})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestPhaseEvaluator(t *testing.T) {
	Convey("Given the ideal backend", t, func() {
		ctx := context.Background()
		eval := NewPhaseEvaluator(NewIdealBackend(), 5000)

		Convey("Evaluating at pi should land on the nearest representable value", func() {
			v, err := eval.Evaluate(ctx, 5, 3.141592653589793)
			So(err, ShouldBeNil)
			So(v, ShouldAlmostEqual, 3.2, 1e-12)

			v, err = eval.Evaluate(ctx, 10, 3.141592653589793)
			So(err, ShouldBeNil)
			So(v, ShouldAlmostEqual, 3.1411042944785277, 1e-12)
		})

		Convey("A poor estimate of pi should read differently with enough qubits", func() {
			v, err := eval.Evaluate(ctx, 10, 1)
			So(err, ShouldBeNil)
			So(v, ShouldAlmostEqual, 3.065868263473054, 1e-12)
		})
	})

	Convey("Given a failing backend", t, func() {
		eval := NewPhaseEvaluator(&flakyBackend{err: errors.New("boom")}, 10)

		_, err := eval.Evaluate(context.Background(), 3, 1)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "backend flaky")
	})

	Convey("EvaluatorFunc should adapt a plain function", t, func() {
		var eval Evaluator = EvaluatorFunc(func(ctx context.Context, n int, x float64) (float64, error) {
			return float64(n) + x, nil
		})

		v, err := eval.Evaluate(context.Background(), 2, 0.5)
		So(err, ShouldBeNil)
		So(v, ShouldEqual, 2.5)
	})
}
