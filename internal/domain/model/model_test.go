package model_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/okian/minocc/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func validParams() model.Params {
	return model.Params{
		AbsMinSpikes:      2,
		AbsMinOccurrences: 3,
		WindowLength:      4,
		PercentilePoisson: 95,
		PercentileRates:   50,
		BinWidth:          5 * time.Millisecond,
		Unit:              model.UnitMillisecond,
	}
}

func TestKey(t *testing.T) {
	Convey("Given a context key", t, func() {
		k := model.Key{Session: "i140703-001", Epoch: "movement", TrialType: "PGHF"}

		Convey("Then it renders its context label and full name", func() {
			So(k.Context(), ShouldEqual, "movement_PGHF")
			So(k.String(), ShouldEqual, "i140703-001/movement_PGHF")
		})
	})

	Convey("Given session, epoch and trial type lists", t, func() {
		keys := model.Keys([]string{"s1", "s2"}, []string{"start", "movement"}, []string{"PGHF", "PGLF"})

		Convey("Then keys enumerate session -> epoch -> trial type", func() {
			So(keys, ShouldHaveLength, 8)
			So(keys[0], ShouldResemble, model.Key{Session: "s1", Epoch: "start", TrialType: "PGHF"})
			So(keys[1], ShouldResemble, model.Key{Session: "s1", Epoch: "start", TrialType: "PGLF"})
			So(keys[2], ShouldResemble, model.Key{Session: "s1", Epoch: "movement", TrialType: "PGHF"})
			So(keys[4].Session, ShouldEqual, "s2")
		})
	})
}

func TestUnit(t *testing.T) {
	Convey("Given unit names", t, func() {
		Convey("When parsing known units", func() {
			for in, want := range map[string]model.Unit{"s": model.UnitSecond, "MS": model.UnitMillisecond, "microseconds": model.UnitMicrosecond} {
				u, err := model.ParseUnit(in)
				So(err, ShouldBeNil)
				So(u, ShouldEqual, want)
			}
		})

		Convey("When parsing an unknown unit", func() {
			_, err := model.ParseUnit("fortnight")
			So(errors.Is(err, model.ErrInvalidConfiguration), ShouldBeTrue)
		})

		Convey("Then durations are expressed in the unit", func() {
			So(model.UnitMillisecond.Express(5*time.Millisecond), ShouldAlmostEqual, 5.0)
			So(model.UnitSecond.Express(5*time.Millisecond), ShouldAlmostEqual, 0.005)
			So(model.UnitMicrosecond.Express(5*time.Millisecond), ShouldAlmostEqual, 5000.0)
		})
	})
}

func TestParamsValidate(t *testing.T) {
	Convey("Given estimation parameters", t, func() {
		Convey("When all values are in range", func() {
			So(validParams().Validate(), ShouldBeNil)
		})

		cases := map[string]func(p *model.Params){
			"abs_min_spikes below 1":     func(p *model.Params) { p.AbsMinSpikes = 0 },
			"abs_min_spikes over cutoff": func(p *model.Params) { p.AbsMinSpikes = 11 },
			"negative abs_min_occ":       func(p *model.Params) { p.AbsMinOccurrences = -1 },
			"zero window":                func(p *model.Params) { p.WindowLength = 0 },
			"poisson percentile > 100":   func(p *model.Params) { p.PercentilePoisson = 100.5 },
			"rate percentile < 0":        func(p *model.Params) { p.PercentileRates = -1 },
			"zero bin width":             func(p *model.Params) { p.BinWidth = 0 },
			"unknown unit":               func(p *model.Params) { p.Unit = "h" },
		}
		for name, mutate := range cases {
			Convey("When "+name, func() {
				p := validParams()
				mutate(&p)
				So(errors.Is(p.Validate(), model.ErrInvalidConfiguration), ShouldBeTrue)
			})
		}
	})
}

func TestParamsNormalize(t *testing.T) {
	Convey("Given parameters with a spelled-out unit", t, func() {
		p := validParams()
		p.Unit = "Milliseconds"

		Convey("Then Normalize rewrites it to the canonical unit", func() {
			got, err := p.Normalize()
			So(err, ShouldBeNil)
			So(got.Unit, ShouldEqual, model.UnitMillisecond)
			So(got.Unit.Express(got.BinWidth), ShouldAlmostEqual, 5.0)
		})

		Convey("Then invalid parameters are still rejected", func() {
			p.Unit = "h"
			_, err := p.Normalize()
			So(errors.Is(err, model.ErrInvalidConfiguration), ShouldBeTrue)
		})
	})
}

func TestCatalogue(t *testing.T) {
	Convey("Given an empty catalogue", t, func() {
		c := model.NewCatalogue()
		k := model.Key{Session: "s1", Epoch: "movement", TrialType: "PGHF"}
		two := 2
		jobs := []model.JobRecord{
			{MinPatternSize: 2, MaxPatternSize: &two, OccurrenceThreshold: 13, Phase: model.PhaseGrowing},
			{MinPatternSize: 10, OccurrenceThreshold: 3, Phase: model.PhaseMerged},
		}

		Convey("When a context is added", func() {
			next, err := c.With(k, jobs)
			So(err, ShouldBeNil)

			Convey("Then the original catalogue is unchanged", func() {
				So(c.Len(), ShouldEqual, 0)
				So(next.Len(), ShouldEqual, 2)
				So(next.ContextCount(), ShouldEqual, 1)
			})

			Convey("Then jobs are retrievable by index", func() {
				j, ok := next.Job("s1", "movement_PGHF", 1)
				So(ok, ShouldBeTrue)
				So(j.Unbounded(), ShouldBeTrue)
				_, ok = next.Job("s1", "movement_PGHF", 2)
				So(ok, ShouldBeFalse)
			})

			Convey("Then mutating returned jobs does not leak into the catalogue", func() {
				got, _ := next.Jobs("s1", "movement_PGHF")
				got[0].OccurrenceThreshold = 99
				again, _ := next.Jobs("s1", "movement_PGHF")
				So(again[0].OccurrenceThreshold, ShouldEqual, 13)
			})

			Convey("Then adding the same key again fails", func() {
				_, err := next.With(k, jobs)
				So(errors.Is(err, model.ErrDuplicateContext), ShouldBeTrue)
			})

			Convey("Then it marshals as session -> context -> index", func() {
				raw, err := json.Marshal(next)
				So(err, ShouldBeNil)
				var decoded map[string]map[string]map[string]map[string]any
				So(json.Unmarshal(raw, &decoded), ShouldBeNil)
				So(decoded["s1"]["movement_PGHF"]["0"]["min_occ"], ShouldEqual, 13.0)
				So(decoded["s1"]["movement_PGHF"]["1"]["max_spikes"], ShouldBeNil)
			})
		})

		Convey("When several sessions are added", func() {
			c, _ = c.With(model.Key{Session: "b", Epoch: "e", TrialType: "t"}, jobs)
			c, _ = c.With(model.Key{Session: "a", Epoch: "e", TrialType: "t"}, jobs)

			Convey("Then sessions and keys come back sorted", func() {
				So(c.Sessions(), ShouldResemble, []string{"a", "b"})
				So(c.Keys()[0].Session, ShouldEqual, "a")
			})
		})
	})
}
