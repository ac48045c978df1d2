package arm

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-servobus/bus"
	"github.com/arloliu/go-servobus/logger"
)

// Reply timeout limits.
const (
	MinReplyTimeout = 10 * time.Millisecond
	MaxReplyTimeout = 60 * time.Second
)

// Config holds the settings of a Controller.
type Config struct {
	replyTimeout time.Duration
	muxOpts      []bus.Option

	logger logger.Logger
}

func newConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		replyTimeout: DefaultReplyTimeout,
		logger:       logger.GetLogger(),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// ReplyTimeout returns the bound of each wait for a reply.
func (cfg *Config) ReplyTimeout() time.Duration { return cfg.replyTimeout }

// Option is a functional option for configuring a Controller.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithReplyTimeout sets how long each exchange waits for its terminal reply.
// A motion command must finish within it. Range [MinReplyTimeout, MaxReplyTimeout].
func WithReplyTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinReplyTimeout || d > MaxReplyTimeout {
			return fmt.Errorf("arm: reply timeout %v out of range [%v, %v]", d, MinReplyTimeout, MaxReplyTimeout)
		}
		cfg.replyTimeout = d

		return nil
	})
}

// WithLogger sets the logger of the controller and, unless overridden with
// WithMuxOptions, of its bus.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("arm: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithMuxOptions passes options to the underlying bus.Mux.
func WithMuxOptions(opts ...bus.Option) Option {
	return optFunc(func(cfg *Config) error {
		cfg.muxOpts = append(cfg.muxOpts, opts...)
		return nil
	})
}
