package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/vnmchuo/costs-service/config"
	"go.opentelemetry.io/otel"
)

func TestSetup_None(t *testing.T) {
	before := otel.GetTracerProvider()
	shutdown, err := Setup(context.Background(), Options{ServiceName: "costs-service", Exporter: "none"})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("Expected global tracer provider to be left alone")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Unexpected shutdown error: %v", err)
	}
}

func TestSetup_Stdout(t *testing.T) {
	shutdown, err := Setup(context.Background(), Options{ServiceName: "costs-service", Exporter: "stdout", SampleRatio: 0.5})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "costs.test")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Unexpected shutdown error: %v", err)
	}
}

func TestSetup_UnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), Options{Exporter: "zipkin"})
	if err == nil || !strings.Contains(err.Error(), "unknown trace exporter") {
		t.Errorf("Expected unknown exporter error, got %v", err)
	}
}

func TestSampler(t *testing.T) {
	if got := sampler(1).Description(); !strings.Contains(got, "AlwaysOnSampler") {
		t.Errorf("Expected always-on root sampler, got %s", got)
	}
	if got := sampler(0.25).Description(); !strings.Contains(got, "TraceIDRatioBased{0.25}") {
		t.Errorf("Expected ratio sampler, got %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig("costs-service", &config.Config{
		OTELExporterType:     "otlp",
		OTELExporterEndpoint: "collector:4317",
		OTELSampleRatio:      0.1,
	})
	if opts.Exporter != "otlp" || opts.Endpoint != "collector:4317" || opts.SampleRatio != 0.1 {
		t.Errorf("Unexpected options: %+v", opts)
	}
}
