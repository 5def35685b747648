package dedupe

// Option applies a configuration option to the in-memory claims registry.
type Option func(*inMemoryClaims)

// WithMaxRuns sets how many runs keep their claims before the oldest is
// evicted. A value <= 0 keeps every run until it is forgotten.
func WithMaxRuns(n int) Option {
	return func(c *inMemoryClaims) {
		c.maxRuns = n
	}
}
