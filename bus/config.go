package bus

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-servobus/logger"
)

const (
	// DefaultBroadcastCapacity is the per-subscriber buffer of received frames.
	DefaultBroadcastCapacity = 16
	// DefaultCollectorCapacity is the buffer of frames queued for sending. With
	// capacity 1 a sender blocks until the previous frame has been picked up.
	DefaultCollectorCapacity = 1

	MaxQueueCapacity = 4096
)

// Config holds the settings of a Mux.
type Config struct {
	broadcastCapacity int
	collectorCapacity int

	logger logger.Logger
}

func newConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		broadcastCapacity: DefaultBroadcastCapacity,
		collectorCapacity: DefaultCollectorCapacity,
		logger:            logger.GetLogger(),
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

// BroadcastCapacity returns the per-subscriber receive buffer size.
func (cfg *Config) BroadcastCapacity() int { return cfg.broadcastCapacity }

// CollectorCapacity returns the send queue size.
func (cfg *Config) CollectorCapacity() int { return cfg.collectorCapacity }

// Logger returns the configured logger.
func (cfg *Config) Logger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a Mux.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithBroadcastCapacity sets how many received frames each subscriber may
// buffer before it is marked lagged. Range [1, MaxQueueCapacity].
func WithBroadcastCapacity(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxQueueCapacity {
			return fmt.Errorf("bus: broadcast capacity %d out of range [1, %d]", n, MaxQueueCapacity)
		}
		cfg.broadcastCapacity = n

		return nil
	})
}

// WithCollectorCapacity sets the size of the shared send queue. Range [1, MaxQueueCapacity].
func WithCollectorCapacity(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxQueueCapacity {
			return fmt.Errorf("bus: collector capacity %d out of range [1, %d]", n, MaxQueueCapacity)
		}
		cfg.collectorCapacity = n

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("bus: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
