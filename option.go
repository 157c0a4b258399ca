package pagedb

// DefaultDegree is the minimum degree used for new databases when
// WithDegree is not given.
const DefaultDegree = 3

// Options configures database behavior.
type Options struct {
	degree        int  // Minimum degree t of a new tree.
	degreeSet     bool // Whether degree was given explicitly.
	pageCacheSize int  // Node pages cached across transactions. 0 disables.
	logger        Logger
}

// defaultOptions returns safe default configuration.
func defaultOptions() Options {
	return Options{
		degree: DefaultDegree,
		logger: DiscardLogger{},
	}
}

// Option configures database options using the functional options pattern.
type Option func(*Options)

// WithDegree sets the minimum degree t: every non-root node holds between
// t-1 and 2t-1 keys. The degree is fixed when the database is created;
// reopening with a different value fails with ErrDegreeMismatch.
func WithDegree(t int) Option {
	return func(opts *Options) {
		opts.degree = t
		opts.degreeSet = true
	}
}

// WithLogger sets the logger. *slog.Logger satisfies Logger; see package
// logger for zap and logrus adapters.
func WithLogger(l Logger) Option {
	return func(opts *Options) {
		if l != nil {
			opts.logger = l
		}
	}
}

// WithPageCacheSize keeps up to n clean node pages in memory across
// transactions. Loads served from it do not count as node reads.
func WithPageCacheSize(n int) Option {
	return func(opts *Options) {
		opts.pageCacheSize = n
	}
}
