package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const meterName = "github.com/hanko-field/storefront"

// Meter returns the storefront meter from the global provider.
func Meter() metric.Meter {
	return otel.GetMeterProvider().Meter(meterName)
}

// Int64Counter registers a counter on the storefront meter. Registration failures are logged and a
// no-op counter is returned so callers never hold a nil instrument.
func Int64Counter(logger *zap.Logger, name, description string) metric.Int64Counter {
	counter, err := Meter().Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		if logger != nil {
			logger.Warn("observability: unable to register counter", zap.String("metric", name), zap.Error(err))
		}
		return noop.Int64Counter{}
	}
	return counter
}
