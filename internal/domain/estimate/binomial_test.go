package estimate_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/minocc/internal/domain/estimate"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSurvival(t *testing.T) {
	Convey("Given Binomial(10, 0.5)", t, func() {
		Convey("Then the tail matches the closed form", func() {
			// P(X > 8) = (C(10,9) + C(10,10)) / 1024
			So(estimate.Survival(10, 0.5, 8), ShouldAlmostEqual, 11.0/1024, 1e-12)
			So(estimate.Survival(10, 0.5, 9), ShouldAlmostEqual, 1.0/1024, 1e-12)
		})

		Convey("Then the bounds are exact", func() {
			So(estimate.Survival(10, 0.5, 10), ShouldEqual, 0)
			So(estimate.Survival(10, 0.5, -1), ShouldEqual, 1)
			So(estimate.Survival(10, 0, 0), ShouldEqual, 0)
			So(estimate.Survival(10, 1, 9), ShouldEqual, 1)
		})
	})
}

func TestInverseSurvival(t *testing.T) {
	Convey("Given Binomial(10, 0.5)", t, func() {
		Convey("Then it returns the smallest k whose tail is within q", func() {
			So(estimate.InverseSurvival(10, 0.5, 0.011), ShouldEqual, 8)
			So(estimate.InverseSurvival(10, 0.5, 0.01), ShouldEqual, 9)
			So(estimate.InverseSurvival(10, 0.5, 0.5), ShouldEqual, 5)
		})

		Convey("Then degenerate targets clamp", func() {
			So(estimate.InverseSurvival(10, 0.5, 1), ShouldEqual, 0)
			So(estimate.InverseSurvival(10, 0.5, math.Inf(1)), ShouldEqual, 0)
			So(estimate.InverseSurvival(10, 0.5, 0), ShouldEqual, 10)
			So(estimate.InverseSurvival(10, 0.5, -0.1), ShouldEqual, 10)
			So(estimate.InverseSurvival(10, 0.5, math.NaN()), ShouldEqual, 10)
		})

		Convey("Then an empty trial count is always 0", func() {
			So(estimate.InverseSurvival(0, 0.5, 0.01), ShouldEqual, 0)
		})
	})

	Convey("Given the worked example's size-2 step", t, func() {
		So(estimate.InverseSurvival(20000, 2.25e-4, 0.05/144), ShouldEqual, 13)
	})
}

func TestPatternSpace(t *testing.T) {
	Convey("Given a window of 4 and 4 active neurons", t, func() {
		Convey("Then lags times subsets are counted", func() {
			s, err := estimate.PatternSpace(4, 2, 4)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, 144)

			s, err = estimate.PatternSpace(4, 3, 4)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, 96)
		})

		Convey("Then a window too short for the size is rejected", func() {
			_, err := estimate.PatternSpace(4, 4, 4)
			So(errors.Is(err, estimate.ErrInvalidConfiguration), ShouldBeTrue)
		})

		Convey("Then more spikes than neurons leaves no patterns", func() {
			s, err := estimate.PatternSpace(10, 5, 4)
			So(err, ShouldBeNil)
			So(s, ShouldEqual, 0)
		})
	})

	Convey("Given 30 neurons and a window of 10", t, func() {
		s, err := estimate.PatternSpace(10, 2, 30)
		So(err, ShouldBeNil)
		So(s, ShouldEqual, 313200)
	})
}

func TestExpectedOccurrences(t *testing.T) {
	Convey("The expectation is n*p", t, func() {
		So(estimate.ExpectedOccurrences(20000, 2.25e-4), ShouldAlmostEqual, 4.5, 1e-9)
	})
}
