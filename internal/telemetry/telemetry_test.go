package telemetry

import (
	"context"
	"testing"
)

func TestSetupDisabledWithoutEndpoint(t *testing.T) {
	t.Setenv("MOLFT_OTEL_ENDPOINT", "")
	shutdown, err := Setup(context.Background())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupExplicitlyDisabled(t *testing.T) {
	t.Setenv("MOLFT_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("MOLFT_OTEL_ENABLED", "FALSE")
	shutdown, err := Setup(context.Background())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInjectEnvWithoutSpanAddsNothing(t *testing.T) {
	env := map[string]string{}
	InjectEnv(context.Background(), env)
	if len(env) != 0 {
		t.Fatalf("env = %v, want empty without an active span", env)
	}
}
