package runtime

import (
	"errors"
	"log/slog"

	"github.com/tjfontaine/openapi-gateway/internal/config"
	"github.com/tjfontaine/openapi-gateway/internal/controller"
	"github.com/tjfontaine/openapi-gateway/internal/metrics"
)

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway) error

// WithConfig sets the gateway configuration. Defaults to config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(g *Gateway) error {
		if cfg == nil {
			return errors.New("config must not be nil")
		}
		g.cfg = cfg
		return nil
	}
}

// WithRegistry sets the controller registry operations are resolved against.
func WithRegistry(registry *controller.Registry) Option {
	return func(g *Gateway) error {
		if registry == nil {
			return errors.New("registry must not be nil")
		}
		g.registry = registry
		return nil
	}
}

// WithControllers registers controllers by key on the gateway's registry.
// Keys follow controller.Registry: "controller.operationId", "operationId"
// or "METHOD /template". Pass it after WithRegistry when both are used.
func WithControllers(controllers map[string]controller.Func) Option {
	return func(g *Gateway) error {
		for key, fn := range controllers {
			if key == "" || fn == nil {
				return errors.New("controller key and func are required")
			}
			g.registry.Register(key, fn)
		}
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		g.logger = logger
		return nil
	}
}

// WithVersion sets the value of the X-Server-Version response header.
func WithVersion(version string) Option {
	return func(g *Gateway) error {
		g.version = version
		return nil
	}
}

// WithMetrics sets the collectors requests are recorded in.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) error {
		g.metrics = m
		return nil
	}
}
