// Package synth generates Poisson spike counts for exercising the estimator
// without recorded data.
package synth

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/okian/minocc/internal/domain/model"
)

// Config describes the population drawn for every context.
type Config struct {
	Neurons        int
	MinRate        float64 // spikes per second
	MaxRate        float64
	SilentFraction float64 // share of neurons that never fire
	Duration       time.Duration
	Seed           uint64
}

// DefaultConfig is a 40-neuron population firing between 1 and 40 Hz for
// 100 seconds.
func DefaultConfig() Config {
	return Config{
		Neurons:        40,
		MinRate:        1,
		MaxRate:        40,
		SilentFraction: 0.1,
		Duration:       100 * time.Second,
		Seed:           1,
	}
}

// Validate reports settings that cannot produce counts.
func (c Config) Validate() error {
	switch {
	case c.Neurons < 1:
		return fmt.Errorf("neurons must be >= 1, got %d", c.Neurons)
	case c.MinRate < 0 || c.MaxRate < c.MinRate:
		return fmt.Errorf("rates must satisfy 0 <= min <= max, got [%v, %v]", c.MinRate, c.MaxRate)
	case c.SilentFraction < 0 || c.SilentFraction > 1:
		return fmt.Errorf("silent fraction must be within [0, 1], got %v", c.SilentFraction)
	case c.Duration <= 0:
		return fmt.Errorf("duration must be positive, got %s", c.Duration)
	}
	return nil
}

// Counts draws the spike counts of key. The same key, config and seed always
// yield the same counts.
func Counts(key model.Key, c Config) (model.Counts, error) {
	if err := c.Validate(); err != nil {
		return model.Counts{}, err
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(key.String()))
	rng := rand.New(rand.NewPCG(c.Seed, h.Sum64()))

	silent := int(float64(c.Neurons) * c.SilentFraction)
	seconds := c.Duration.Seconds()
	out := model.Counts{PerNeuron: make([]int, c.Neurons), Duration: c.Duration}
	for i := silent; i < c.Neurons; i++ {
		rate := c.MinRate + rng.Float64()*(c.MaxRate-c.MinRate)
		if rate == 0 {
			continue
		}
		p := distuv.Poisson{Lambda: rate * seconds, Src: rng}
		out.PerNeuron[i] = int(p.Rand())
	}
	return out, nil
}

// Putter stores the counts of one context.
type Putter func(key model.Key, c model.Counts) error

// Populate draws counts for every key and hands them to put.
func Populate(keys []model.Key, c Config, put Putter) error {
	for _, key := range keys {
		counts, err := Counts(key, c)
		if err != nil {
			return err
		}
		if err := put(key, counts); err != nil {
			return fmt.Errorf("store %s: %w", key, err)
		}
	}
	return nil
}
