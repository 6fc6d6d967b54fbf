package analytics

import (
	"context"
	"fmt"
	"os"

	"washday/api/metrics"
	"washday/api/tagmanager"
)

// EnvLoader builds the dispatcher from the environment and a tag-manager
// bridge over global. The bridge's readiness wait starts on its first use.
// tagOpts follow the measurement id read from GTAG_MEASUREMENT_ID.
func EnvLoader(global tagmanager.Global, m *metrics.Metrics, pagePath func() string, tagOpts ...tagmanager.Option) Loader {
	return func(ctx context.Context) (Backends, error) {
		opts := []DispatcherOption{WithMetrics(m)}
		if pagePath != nil {
			opts = append(opts, WithPagePath(pagePath))
		}
		d, err := NewDispatcherFromEnv(opts...)
		if err != nil {
			return Backends{}, fmt.Errorf("failed to initialize dispatcher: %w", err)
		}
		bridgeOpts := append([]tagmanager.Option{tagmanager.WithMeasurementID(os.Getenv("GTAG_MEASUREMENT_ID"))}, tagOpts...)
		bridge := tagmanager.New(global, bridgeOpts...)
		return Backends{Sender: d, TagManager: bridge}, nil
	}
}
