// Package metrics contains the Prometheus implementations of the Metrics
// interfaces defined across the sanitizer.
package metrics

import (
	"fmt"

	"github.com/AdguardTeam/golibs/container"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace and subsystem names of the sanitizer metrics.
const (
	namespace = "bridgesan"

	subsystemApplication = "app"
	subsystemSanitizer   = "sanitizer"
	subsystemSecrets     = "secrets"
	subsystemSink        = "sink"
)

// SetUpGauge signals that the sanitizer has been started.
func SetUpGauge(
	reg prometheus.Registerer,
	version string,
	buildtime string,
	branch string,
	revision string,
	goversion string,
) (err error) {
	upGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "up",
		Namespace: namespace,
		Subsystem: subsystemApplication,
		Help: `A metric with a constant '1' value labeled by ` +
			`version and goversion from which the program was built.`,
		ConstLabels: prometheus.Labels{
			"version":   version,
			"buildtime": buildtime,
			"branch":    branch,
			"revision":  revision,
			"goversion": goversion,
		},
	})

	err = reg.Register(upGauge)
	if err != nil {
		return fmt.Errorf("registering metrics %q: %w", "up", err)
	}

	upGauge.Set(1)

	return nil
}

// register registers all collectors, annotating errors with their names.
func register(
	reg prometheus.Registerer,
	collectors container.KeyValues[string, prometheus.Collector],
) (err error) {
	var errs []error
	for _, c := range collectors {
		err = reg.Register(c.Value)
		if err != nil {
			errs = append(errs, fmt.Errorf("registering metrics %q: %w", c.Key, err))
		}
	}

	return errors.Join(errs...)
}
