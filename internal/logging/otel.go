package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// newCore tees the local encoder output and the OTEL bridge, then applies
// sampling.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	var cores []zapcore.Core

	if cfg.Output.Stdout || cfg.Output.Writer != nil {
		encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		var ws zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
		if cfg.Output.Writer != nil {
			ws = zapcore.AddSync(cfg.Output.Writer)
		}
		cores = append(cores, zapcore.NewCore(encoder, ws, cfg.Level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		// The bridge bypasses zap encoders, so scrub before handing off.
		scrubber, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zapcore.EncoderConfig{}), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create otel redaction: %w", err)
		}
		cores = append(cores, &redactingCore{
			LevelEnabler: cfg.Level,
			next:         otelzap.NewCore("purchasebot", otelzap.WithLoggerProvider(otelProvider)),
			enc:          scrubber,
		})
	}

	switch len(cores) {
	case 0:
		return nil, fmt.Errorf("at least one output must be enabled and available")
	case 1:
		return newSampledCore(cores[0], cfg.Sampling), nil
	default:
		return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
	}
}

// redactingCore applies the redaction rules to entries bound for a core
// that does its own encoding.
type redactingCore struct {
	zapcore.LevelEnabler
	next zapcore.Core
	enc  *RedactingEncoder
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{LevelEnabler: c.LevelEnabler, next: c.next.With(c.scrub(fields)), enc: c.enc}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) && c.next.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = c.enc.scrub(ent.Message)
	return c.next.Write(ent, c.scrub(fields))
}

func (c *redactingCore) Sync() error { return c.next.Sync() }

func (c *redactingCore) scrub(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = c.enc.scrubField(f)
	}
	return out
}
