package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace is the metric namespace used when none is configured.
const DefaultNamespace = "gotask"

// Config holds configuration for metrics collection.
type Config struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// Registry is the Prometheus registerer to use. There is no package level
	// default; a nil Registry with Enabled set creates a private registry.
	Registry prometheus.Registerer

	// Namespace overrides the default "gotask" namespace for metrics.
	Namespace string
}

// Build returns the Registry described by c, or nil when metrics are disabled.
func (c Config) Build() *Registry {
	if !c.Enabled {
		return nil
	}
	reg := c.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return NewRegistryWithNamespace(reg, c.Namespace)
}
