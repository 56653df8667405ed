package check_teamspeak3

import (
	"fmt"
	"strconv"

	"github.com/consol-monitoring/check_teamspeak3/pkg/convert"
	"github.com/mackerelio/checkers"
	"github.com/prometheus/client_golang/prometheus"
)

const metricNamespace = "teamspeak3"

var unitSuffixes = map[string]string{
	"s":  "_seconds",
	"ms": "_milliseconds",
	"%":  "_percent",
}

// buildRegistry converts a check result into prometheus gauges.
func buildRegistry(cfg *Config, result *CheckResult) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{
		"host":        cfg.Host,
		"port":        strconv.Itoa(cfg.Port),
		"virtualport": strconv.Itoa(cfg.VirtualPort),
	}

	state := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   metricNamespace,
		Name:        "check_state",
		Help:        "state of the last check run: 0 ok, 1 warning, 2 critical, 3 unknown",
		ConstLabels: labels,
	})
	state.Set(float64(result.State))
	if err := registry.Register(state); err != nil {
		return nil, fmt.Errorf("registering check state failed: %w", err)
	}

	if result.State == checkers.UNKNOWN {
		return registry, nil
	}

	for _, metric := range result.Metrics {
		value, err := convert.Float64E(metric.Value)
		if err != nil {
			log.Debugf("skipping metric %s: %s", metric.Name, err.Error())

			continue
		}
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricNamespace,
			Name:        metric.Name + unitSuffixes[metric.Unit],
			Help:        fmt.Sprintf("%s as reported by the ServerQuery interface", metric.Name),
			ConstLabels: labels,
		})
		gauge.Set(value)
		if err := registry.Register(gauge); err != nil {
			return nil, fmt.Errorf("registering metric %s failed: %w", metric.Name, err)
		}
	}

	return registry, nil
}

// writeTextfile writes the result for the node_exporter textfile collector.
func writeTextfile(cfg *Config, result *CheckResult) error {
	registry, err := buildRegistry(cfg, result)
	if err != nil {
		return err
	}

	if err := prometheus.WriteToTextfile(cfg.PrometheusTextfile, registry); err != nil {
		return fmt.Errorf("writing textfile %s failed: %w", cfg.PrometheusTextfile, err)
	}
	log.Debugf("metrics written to %s", cfg.PrometheusTextfile)

	return nil
}
