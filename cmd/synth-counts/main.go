// Command synth-counts writes Poisson spike counts for a grid of contexts
// into a counts directory or a SQL spike_counts table, so minocc can be run
// without recorded data.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/minocc/internal/adapters/source"
	"github.com/okian/minocc/internal/adapters/sqldb"
	"github.com/okian/minocc/internal/domain/model"
	"github.com/okian/minocc/internal/synth"
	"github.com/okian/minocc/pkg/logger"
)

const defaultTimeout = 10 * time.Minute

func main() {
	def := synth.DefaultConfig()
	var (
		sessions   = flag.String("sessions", "i140703-001", "Comma-separated sessions")
		epochs     = flag.String("epochs", "start,cue1,earlydelay,latedelay,movement,hold", "Comma-separated epochs")
		trialTypes = flag.String("trialtypes", "PGHF,PGLF,SGHF,SGLF", "Comma-separated trial types")
		neurons    = flag.Int("neurons", def.Neurons, "Neurons per context")
		minRate    = flag.Float64("min-rate", def.MinRate, "Lowest firing rate in Hz")
		maxRate    = flag.Float64("max-rate", def.MaxRate, "Highest firing rate in Hz")
		silent     = flag.Float64("silent", def.SilentFraction, "Fraction of neurons that never fire")
		duration   = flag.Duration("duration", def.Duration, "Observed duration per context")
		seed       = flag.Uint64("seed", def.Seed, "Random seed")
		kind       = flag.String("kind", source.KindDir, "Destination: dir or sql")
		path       = flag.String("path", "./data", "Counts directory (dir)")
		compress   = flag.Bool("compress", false, "Write xz-compressed counts files (dir)")
		driver     = flag.String("driver", sqldb.DriverSQLite, "SQL driver (sql)")
		dsn        = flag.String("dsn", "", "SQL connection string (sql)")
		verbose    = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	if err := logger.InitWith(logger.Options{Writer: os.Stderr, Level: level}); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get().Named("synth-counts")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, defaultTimeout)
	defer cancelTimeout()

	cfg := synth.Config{
		Neurons:        *neurons,
		MinRate:        *minRate,
		MaxRate:        *maxRate,
		SilentFraction: *silent,
		Duration:       *duration,
		Seed:           *seed,
	}
	keys := model.Keys(split(*sessions), split(*epochs), split(*trialTypes))

	put, closeFn, err := destination(ctx, *kind, *path, *compress, *driver, *dsn)
	if err != nil {
		log.Error(ctx, "open destination failed", logger.Error(err))
		os.Exit(1)
	}
	defer closeFn()

	start := time.Now()
	if err := synth.Populate(keys, cfg, put); err != nil {
		log.Error(ctx, "populate failed", logger.Error(err))
		closeFn()
		os.Exit(1)
	}
	log.Info(ctx, "counts written",
		logger.Int("contexts", len(keys)),
		logger.String("kind", *kind),
		logger.Duration("elapsed", time.Since(start)),
	)
}

// destination returns the writer for kind together with its cleanup.
func destination(ctx context.Context, kind, path string, compress bool, driver, dsn string) (synth.Putter, func(), error) {
	switch kind {
	case source.KindDir:
		write := source.WriteFile
		if compress {
			write = source.WriteCompressedFile
		}
		put := func(key model.Key, c model.Counts) error { return write(path, key, c) }
		return put, func() {}, nil
	case source.KindSQL:
		db, err := sqldb.Open(ctx, driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		src := source.NewSQL(db, source.WithOwnedDB())
		put := func(key model.Key, c model.Counts) error { return src.Put(ctx, key, c) }
		return put, func() { _ = src.Close() }, nil
	default:
		return nil, nil, source.ErrUnknownKind
	}
}

func split(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
