package telemetry

import (
	"context"
	"testing"
)

func TestTargetsFromEnv(t *testing.T) {
	for _, tc := range []struct {
		name      string
		stdout    string
		endpoint  string
		metricsEP string
		want      exportTargets
	}{
		{
			name: "nothing configured falls back to stdout",
			want: exportTargets{stdout: true},
		},
		{
			name:     "collector only",
			endpoint: "otel:4317",
			want:     exportTargets{traceEndpoint: "otel:4317", metricEndpoint: "otel:4317"},
		},
		{
			name:      "metrics endpoint overrides the shared one",
			endpoint:  "otel:4317",
			metricsEP: "metrics:4317",
			want:      exportTargets{traceEndpoint: "otel:4317", metricEndpoint: "metrics:4317"},
		},
		{
			name:     "stdout alongside a collector",
			stdout:   "true",
			endpoint: "otel:4317",
			want:     exportTargets{stdout: true, traceEndpoint: "otel:4317", metricEndpoint: "otel:4317"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("GOV_OTEL_STDOUT", tc.stdout)
			t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", tc.endpoint)
			t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", tc.metricsEP)

			if got := targetsFromEnv(); got != tc.want {
				t.Errorf("targets = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	t.Setenv("GOV_OTEL_ENABLED", "")

	if Enabled() {
		t.Fatal("telemetry should be off without GOV_OTEL_ENABLED=true")
	}
	if err := Init(context.Background(), "govern-test", "dev"); err != nil {
		t.Fatalf("Init disabled: %v", err)
	}
	// No providers were installed, so there is nothing to flush.
	Shutdown(context.Background())

	if Tracer("") == nil || Meter("") == nil {
		t.Error("noop tracer and meter should still be usable")
	}
}
