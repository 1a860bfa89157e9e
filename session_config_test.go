package flircapture

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func validConfig(t *testing.T) SessionConfig {
	return SessionConfig{
		TotalDurationSeconds: 120,
		IntervalSeconds:      30,
		OutputDirectory:      t.TempDir(),
		SerialCaptureEnabled: true,
		SerialPort:           "/dev/ttyUSB0",
	}
}

func TestValidate(t *testing.T) {
	limits := DefaultLimits()

	t.Run("accepts a valid config", func(t *testing.T) {
		if err := Validate(validConfig(t), limits); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}
	})

	t.Run("accepts the bounds themselves", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.TotalDurationSeconds = 60
		cfg.IntervalSeconds = 5
		if err := Validate(cfg, limits); err != nil {
			t.Errorf("expected lower bounds accepted, got %v", err)
		}

		cfg.TotalDurationSeconds = 7200
		cfg.IntervalSeconds = 600
		if err := Validate(cfg, limits); err != nil {
			t.Errorf("expected upper bounds accepted, got %v", err)
		}
	})

	t.Run("serial port not needed when serial capture is off", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.SerialCaptureEnabled = false
		cfg.SerialPort = nil
		if err := Validate(cfg, limits); err != nil {
			t.Errorf("expected config without serial port accepted, got %v", err)
		}
	})

	cases := []struct {
		name   string
		mutate func(cfg *SessionConfig)
		kind   ConfigErrorKind
		target error
	}{
		{"missing directory", func(c *SessionConfig) { c.OutputDirectory = filepath.Join(c.OutputDirectory, "nope") }, InvalidDirectory, ErrInvalidDirectory},
		{"empty directory", func(c *SessionConfig) { c.OutputDirectory = "" }, InvalidDirectory, ErrInvalidDirectory},
		{"total too short", func(c *SessionConfig) { c.TotalDurationSeconds = 30 }, TotalDurationOutOfRange, ErrTotalDurationOutOfRange},
		{"total too long", func(c *SessionConfig) { c.TotalDurationSeconds = 7201 }, TotalDurationOutOfRange, ErrTotalDurationOutOfRange},
		{"interval too long", func(c *SessionConfig) { c.IntervalSeconds = 601 }, IntervalOutOfRange, ErrIntervalOutOfRange},
		{"interval too short", func(c *SessionConfig) { c.IntervalSeconds = 4 }, IntervalOutOfRange, ErrIntervalOutOfRange},
		{"interval above total", func(c *SessionConfig) { c.TotalDurationSeconds = 100; c.IntervalSeconds = 101 }, IntervalExceedsTotal, ErrIntervalExceedsTotal},
		{"nil serial port", func(c *SessionConfig) { c.SerialPort = nil }, MissingSerialPort, ErrMissingSerialPort},
		{"empty serial port", func(c *SessionConfig) { c.SerialPort = "" }, MissingSerialPort, ErrMissingSerialPort},
		{"numeric serial port", func(c *SessionConfig) { c.SerialPort = 3.0 }, InvalidSerialPortType, ErrInvalidSerialPortType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(&cfg)

			err := Validate(cfg, limits)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if cfgErr.Kind != tc.kind {
				t.Errorf("expected kind %s, got %s", tc.kind, cfgErr.Kind)
			}
			if !errors.Is(err, tc.target) {
				t.Errorf("expected errors.Is(%v), got %v", tc.target, err)
			}
		})
	}
}

func TestValidate_CheckOrder(t *testing.T) {
	limits := DefaultLimits()

	t.Run("directory is checked before durations", func(t *testing.T) {
		cfg := SessionConfig{
			TotalDurationSeconds: 30,
			IntervalSeconds:      601,
			OutputDirectory:      filepath.Join(t.TempDir(), "missing"),
			SerialCaptureEnabled: true,
			SerialPort:           42,
		}
		if err := Validate(cfg, limits); !errors.Is(err, ErrInvalidDirectory) {
			t.Errorf("expected ErrInvalidDirectory, got %v", err)
		}
	})

	t.Run("total is checked before interval", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.TotalDurationSeconds = 50
		cfg.IntervalSeconds = 100
		if err := Validate(cfg, limits); !errors.Is(err, ErrTotalDurationOutOfRange) {
			t.Errorf("expected ErrTotalDurationOutOfRange, got %v", err)
		}
	})

	t.Run("ordering is checked before serial port", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.TotalDurationSeconds = 60
		cfg.IntervalSeconds = 100
		cfg.SerialPort = nil
		if err := Validate(cfg, limits); !errors.Is(err, ErrIntervalExceedsTotal) {
			t.Errorf("expected ErrIntervalExceedsTotal, got %v", err)
		}
	})
}

func TestValidate_Idempotent(t *testing.T) {
	limits := DefaultLimits()
	cfg := validConfig(t)
	cfg.IntervalSeconds = 601

	first := Validate(cfg, limits)
	second := Validate(cfg, limits)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical errors, got %v and %v", first, second)
	}

	cfg = validConfig(t)
	for i := 0; i < 2; i++ {
		if err := Validate(cfg, limits); err != nil {
			t.Errorf("pass %d: expected valid config, got %v", i, err)
		}
	}
}

func TestConfigErrorKindString(t *testing.T) {
	if s := IntervalExceedsTotal.String(); s != "interval_exceeds_total" {
		t.Errorf("expected interval_exceeds_total, got %s", s)
	}
	if s := ConfigErrorKind(99).String(); s != "config_error(99)" {
		t.Errorf("expected config_error(99), got %s", s)
	}
}
