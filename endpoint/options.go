package endpoint

import (
	"maps"
	"time"

	"go.uber.org/zap"
)

// Options is the configuration snapshot owned by a client. It is fully
// resolved by NewOptions and never changes afterwards, so it is safe to share
// among concurrent calls.
type Options struct {
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	rateLimit  float64
	burst      int
	codec      string
	params     map[string]string
	logger     *zap.Logger
}

// An Option sets one field of Options during construction.
type Option func(*Options)

// Defaults used by NewOptions.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetryDelay = 50 * time.Millisecond
	DefaultCodec      = "json"
)

// NewOptions resolves opts over the defaults.
func NewOptions(opts ...Option) *Options {
	o := &Options{
		timeout:    DefaultTimeout,
		retryDelay: DefaultRetryDelay,
		codec:      DefaultCodec,
		params:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// WithTimeout bounds each call. Zero disables the bound.
func WithTimeout(d time.Duration) Option { return func(o *Options) { o.timeout = d } }

// WithRetry allows up to n further attempts after a closed session, waiting
// base, 2*base, 4*base... between them.
func WithRetry(n int, base time.Duration) Option {
	return func(o *Options) { o.maxRetries, o.retryDelay = n, base }
}

// WithRateLimit admits r calls per second with the given burst.
func WithRateLimit(r float64, burst int) Option {
	return func(o *Options) { o.rateLimit, o.burst = r, burst }
}

// WithCodec names the wire codec ("json", "binary", "msgpack").
func WithCodec(name string) Option { return func(o *Options) { o.codec = name } }

// WithParam sets a transport-specific parameter.
func WithParam(key, value string) Option { return func(o *Options) { o.params[key] = value } }

// WithLogger sets the logger used by components built from these options.
func WithLogger(l *zap.Logger) Option { return func(o *Options) { o.logger = l } }

func (o *Options) Timeout() time.Duration { return o.timeout }

// Retry returns the retry budget and base backoff delay.
func (o *Options) Retry() (int, time.Duration) { return o.maxRetries, o.retryDelay }

// RateLimit returns the call rate and burst; a zero rate means unlimited.
func (o *Options) RateLimit() (float64, int) { return o.rateLimit, o.burst }

func (o *Options) Codec() string { return o.codec }

func (o *Options) Logger() *zap.Logger { return o.logger }

// Param returns a transport-specific parameter.
func (o *Options) Param(key string) (string, bool) {
	v, ok := o.params[key]
	return v, ok
}

// Params returns a copy of all transport-specific parameters.
func (o *Options) Params() map[string]string { return maps.Clone(o.params) }
