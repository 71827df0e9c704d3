package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "disabled skips checks", modify: func(c *Config) { c.Endpoint = "" }},
		{name: "enabled local insecure", modify: func(c *Config) { c.Enabled = true; c.Insecure = true }},
		{name: "enabled ipv6 loopback", modify: func(c *Config) { c.Enabled = true; c.Insecure = true; c.Endpoint = "[::1]:4317" }},
		{name: "remote insecure", modify: func(c *Config) { c.Enabled = true; c.Insecure = true; c.Endpoint = "otel.example.com:4317" }, wantErr: "only allowed to a local endpoint"},
		{name: "remote tls", modify: func(c *Config) { c.Enabled = true; c.Endpoint = "https://otel.example.com" }},
		{name: "bad protocol", modify: func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, wantErr: "protocol"},
		{name: "bad sample rate", modify: func(c *Config) { c.Enabled = true; c.SampleRate = 2 }, wantErr: "sample_rate"},
		{name: "missing endpoint", modify: func(c *Config) { c.Enabled = true; c.Endpoint = "" }, wantErr: "endpoint is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "purchasebot", cfg.ServiceName)
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.Equal(t, 5*time.Second, cfg.ShutdownWait)
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	assert.False(t, tel.Enabled())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))

	degraded, _ := tel.Degraded()
	assert.False(t, degraded)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Protocol = "carrier-pigeon"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Enabled())
}

func TestTestTelemetry(t *testing.T) {
	tel := NewTestTelemetry()
	ctx := context.Background()

	_, span := tel.Tracer("test").Start(ctx, "extraction.run")
	span.SetAttributes(attribute.String("channel", "lab-orders"))
	span.End()

	tel.AssertSpanExists(t, "extraction.run")
	tel.AssertSpanAttribute(t, "extraction.run", "channel", "lab-orders")

	counter, err := tel.Meter("test").Int64Counter("records")
	require.NoError(t, err)
	counter.Add(ctx, 2, metric.WithAttributes(attribute.String("format", "heuristic")))
	counter.Add(ctx, 3, metric.WithAttributes(attribute.String("format", "direct_command")))

	assert.Equal(t, int64(5), tel.CounterValue(t, "records"))
	assert.Equal(t, int64(2), tel.CounterValue(t, "records", attribute.String("format", "heuristic")))
}

func TestNew_LogExport(t *testing.T) {
	for _, protocol := range []string{ProtocolGRPC, ProtocolHTTP} {
		t.Run(protocol, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			cfg.Logs = true
			cfg.Protocol = protocol
			cfg.Insecure = true
			cfg.ShutdownWait = 100 * time.Millisecond

			tel, err := New(context.Background(), cfg)
			require.NoError(t, err)
			assert.NotNil(t, tel.LoggerProvider())
			_ = tel.Shutdown(context.Background())
		})
	}

	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Insecure = true
	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, tel.LoggerProvider(), "log export is opt-in")
	_ = tel.Shutdown(context.Background())
}

func TestTelemetry_SetLoggerProvider(t *testing.T) {
	var nilTel *Telemetry
	assert.Nil(t, nilTel.LoggerProvider())
	nilTel.SetLoggerProvider(NewTestTelemetry().LoggerProvider())

	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, tel.LoggerProvider())

	test := NewTestTelemetry()
	tel.SetLoggerProvider(test.LoggerProvider())
	require.NotNil(t, tel.LoggerProvider())

	var rec log.Record
	rec.SetBody(log.StringValue("requests saved"))
	tel.LoggerProvider().Logger("test").Emit(context.Background(), rec)

	assert.Equal(t, []string{"requests saved"}, test.LogRecorder.Messages())
	assert.NoError(t, tel.Shutdown(context.Background()))
}
