package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/minocc/internal/app"
	"github.com/okian/minocc/internal/adapters/repository"
	"github.com/okian/minocc/internal/adapters/source"
	"github.com/okian/minocc/internal/adapters/sqldb"
	"github.com/okian/minocc/internal/domain/estimate"
	"github.com/okian/minocc/internal/domain/model"
	"github.com/okian/minocc/internal/domain/types"
	"github.com/okian/minocc/pkg/logger"
)

func init() {
	if err := logger.InitWith(logger.Options{Level: "error"}); err != nil {
		panic(err)
	}
}

func workedParams() model.Params {
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

// rates [0, 2, 2, 4, 6] per second over 100 seconds
func workedCounts() model.Counts {
	return model.Counts{PerNeuron: []int{0, 200, 200, 400, 600}, Duration: 100 * time.Second}
}

var (
	sessions   = []string{"s1", "s2"}
	epochs     = []string{"ep1", "ep2"}
	trialTypes = []string{"PGHF"}
	silentKey  = model.Key{Session: "s2", Epoch: "ep2", TrialType: "PGHF"}
)

// newSource fills every context with the worked counts except silentKey,
// whose neurons never fire.
func newSource() *source.Memory {
	src := source.NewMemory()
	for _, key := range model.Keys(sessions, epochs, trialTypes) {
		if key == silentKey {
			src.Put(key, model.Counts{PerNeuron: []int{0, 0, 0}, Duration: 100 * time.Second})
			continue
		}
		src.Put(key, workedCounts())
	}
	return src
}

func startService(opts ...service.Option) *service.Service {
	opts = append([]service.Option{service.WithDefaultContexts(sessions, epochs, trialTypes)}, opts...)
	svc := service.New(workedParams(), newSource(), opts...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc
}

func TestService_New(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		svc := service.New(workedParams(), newSource(), service.WithWorkerCount(2))

		Convey("Then runs are refused", func() {
			_, err := svc.Run(context.Background(), types.RunRequest{})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("Then stats report it as stopped", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["workerCount"], ShouldEqual, 2)
		})
	})

	Convey("Given invalid estimation parameters", t, func() {
		p := workedParams()
		p.PercentileRates = 120
		svc := service.New(p, newSource())

		Convey("Then Start fails with a configuration error", func() {
			err := svc.Start(context.Background())
			So(errors.Is(err, model.ErrInvalidConfiguration), ShouldBeTrue)
		})
	})
}

func TestService_StopIsFinal(t *testing.T) {
	Convey("Given a service that ran once and was stopped", t, func() {
		svc := startService(service.WithWorkerCount(2))
		_, err := svc.Run(context.Background(), types.RunRequest{})
		So(err, ShouldBeNil)
		svc.Stop()

		Convey("Then it refuses to start again", func() {
			So(errors.Is(svc.Start(context.Background()), service.ErrStopped), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("Then runs are refused instead of failing mid-way", func() {
			_, err := svc.Run(context.Background(), types.RunRequest{})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}

func TestService_NormalizesUnit(t *testing.T) {
	Convey("Given parameters with a spelled-out unit", t, func() {
		p := workedParams()
		p.Unit = "milliseconds"
		svc := service.New(p, newSource(), service.WithDefaultContexts(sessions, epochs, trialTypes))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		Convey("Then runs record and report the canonical unit", func() {
			run, err := svc.Run(context.Background(), types.RunRequest{Sessions: []string{"s1"}})
			So(err, ShouldBeNil)
			So(run.Params.Unit, ShouldEqual, model.UnitMillisecond)
			So(svc.Params().Unit, ShouldEqual, model.UnitMillisecond)

			jobs, ok := run.Catalogue.Jobs("s1", "ep1_PGHF")
			So(ok, ShouldBeTrue)
			So(jobs[0].BinWidth, ShouldAlmostEqual, 5.0)
		})
	})
}

func TestService_Run(t *testing.T) {
	Convey("Given a started service with four workers", t, func() {
		svc := startService(service.WithWorkerCount(4))
		defer svc.Stop()
		ctx := context.Background()

		Convey("When a run covers the configured contexts", func() {
			run, err := svc.Run(ctx, types.RunRequest{})

			Convey("Then every estimable context is in the catalogue", func() {
				So(err, ShouldBeNil)
				So(run.ID, ShouldNotBeEmpty)
				So(run.Catalogue.ContextCount(), ShouldEqual, 3)
				So(run.Catalogue.Len(), ShouldEqual, 27)

				job, ok := run.Catalogue.Job("s1", "ep1_PGHF", 0)
				So(ok, ShouldBeTrue)
				So(job.OccurrenceThreshold, ShouldEqual, 13)
				So(job.MinPatternSize, ShouldEqual, 2)
			})

			Convey("Then the silent context is recorded as a failure", func() {
				So(run.Failed(), ShouldBeTrue)
				So(run.Failures, ShouldHaveLength, 1)
				So(run.Failures[0].Key, ShouldResemble, silentKey)
				_, ok := run.Catalogue.Jobs("s2", "ep2_PGHF")
				So(ok, ShouldBeFalse)
			})

			Convey("Then the run is stored as the latest one", func() {
				latest, err := svc.LatestRun(ctx)
				So(err, ShouldBeNil)
				So(latest.ID, ShouldEqual, run.ID)

				byID, err := svc.RunByID(ctx, run.ID)
				So(err, ShouldBeNil)
				So(byID.Catalogue.Table(), ShouldResemble, run.Catalogue.Table())

				runs, err := svc.ListRuns(ctx, 0)
				So(err, ShouldBeNil)
				So(runs, ShouldHaveLength, 1)
			})

			Convey("Then catalogue lookups read the latest run", func() {
				table, err := svc.SessionCatalogue(ctx, "s1")
				So(err, ShouldBeNil)
				So(table, ShouldHaveLength, 2)

				jobs, err := svc.ContextJobs(ctx, "s1", "ep2_PGHF")
				So(err, ShouldBeNil)
				So(jobs, ShouldHaveLength, 9)

				_, err = svc.SessionCatalogue(ctx, "s9")
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
				_, err = svc.ContextJobs(ctx, "s2", "ep2_PGHF")
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a request narrows the contexts", func() {
			run, err := svc.Run(ctx, types.RunRequest{Sessions: []string{"s1"}, Epochs: []string{"ep1"}})

			Convey("Then only those contexts are estimated", func() {
				So(err, ShouldBeNil)
				So(run.Catalogue.Keys(), ShouldResemble, []model.Key{{Session: "s1", Epoch: "ep1", TrialType: "PGHF"}})
				So(run.Failed(), ShouldBeFalse)
			})
		})

		Convey("When a request names a context the source does not have", func() {
			run, err := svc.Run(ctx, types.RunRequest{Sessions: []string{"s3"}, Epochs: []string{"ep1"}})

			Convey("Then it is reported as a failure", func() {
				So(err, ShouldBeNil)
				So(run.Failures, ShouldHaveLength, 1)
				So(run.Failures[0].Error, ShouldContainSubstring, "not found")
			})
		})

		Convey("When a request repeats a context", func() {
			run, err := svc.Run(ctx, types.RunRequest{Sessions: []string{"s1", "s1"}, Epochs: []string{"ep1"}})

			Convey("Then it is estimated once", func() {
				So(err, ShouldBeNil)
				So(run.Catalogue.ContextCount(), ShouldEqual, 1)
				So(run.Failed(), ShouldBeFalse)
			})
		})

		Convey("When the selection is empty", func() {
			empty := service.New(workedParams(), newSource())
			So(empty.Start(ctx), ShouldBeNil)
			defer empty.Stop()
			_, err := empty.Run(ctx, types.RunRequest{})

			Convey("Then the run is refused", func() {
				So(errors.Is(err, service.ErrNoContexts), ShouldBeTrue)
			})
		})

		Convey("When the caller's context is already cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := svc.Run(cancelled, types.RunRequest{})

			Convey("Then the run is aborted and not stored", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				_, err := svc.LatestRun(ctx)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_FailFast(t *testing.T) {
	Convey("Given a fail-fast service", t, func() {
		svc := startService(service.WithWorkerCount(1), service.WithFailFast(true))
		defer svc.Stop()
		ctx := context.Background()

		Convey("When a context cannot be estimated", func() {
			_, err := svc.Run(ctx, types.RunRequest{})

			Convey("Then the run fails with that context's error", func() {
				So(errors.Is(err, model.ErrInvalidRateDistribution), ShouldBeTrue)
				key, ok := estimate.KeyOf(err)
				So(ok, ShouldBeTrue)
				So(key, ShouldResemble, silentKey)
			})

			Convey("Then nothing is stored", func() {
				_, err := svc.LatestRun(ctx)
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestService_ParallelMatchesSequential(t *testing.T) {
	Convey("Given the same contexts estimated with one and with eight workers", t, func() {
		ctx := context.Background()

		one := startService(service.WithWorkerCount(1))
		defer one.Stop()
		eight := startService(service.WithWorkerCount(8))
		defer eight.Stop()

		seq, err := one.Run(ctx, types.RunRequest{})
		So(err, ShouldBeNil)
		par, err := eight.Run(ctx, types.RunRequest{})
		So(err, ShouldBeNil)

		Convey("Then both catalogues are identical", func() {
			So(par.Catalogue.Table(), ShouldResemble, seq.Catalogue.Table())
			So(par.Failures, ShouldResemble, seq.Failures)
		})

		Convey("Then they match the synchronous estimator", func() {
			est, err := estimate.New(workedParams())
			So(err, ShouldBeNil)
			cat, err := est.Estimate(ctx, newSource(), seq.Catalogue.Keys())
			So(err, ShouldBeNil)
			So(seq.Catalogue.Table(), ShouldResemble, cat.Table())
		})
	})
}

func TestService_SQLStore(t *testing.T) {
	Convey("Given a service persisting to SQLite", t, func() {
		ctx := context.Background()
		store, err := repository.OpenSQL(ctx, sqldb.DriverSQLite, filepath.Join(t.TempDir(), "runs.db"))
		So(err, ShouldBeNil)

		svc := startService(service.WithStore(store), service.WithWorkerCount(2))
		defer svc.Stop()

		run, err := svc.Run(ctx, types.RunRequest{})
		So(err, ShouldBeNil)

		Convey("Then the stored run reads back unchanged", func() {
			latest, err := svc.LatestRun(ctx)
			So(err, ShouldBeNil)
			So(latest.ID, ShouldEqual, run.ID)
			So(latest.Catalogue.Table(), ShouldResemble, run.Catalogue.Table())
			So(latest.Failures, ShouldResemble, run.Failures)
			So(latest.Params, ShouldResemble, run.Params)
		})

		Convey("Then stats report the stored run", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["storedRuns"], ShouldEqual, 1)
			So(stats["activeRuns"], ShouldEqual, 0)
		})
	})
}
