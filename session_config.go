package flircapture

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Limits holds the bounds and device constants a session is checked and run against.
type Limits struct {
	MinTotalDurationSec int
	MaxTotalDurationSec int
	MinIntervalSec      int
	MaxIntervalSec      int

	SerialBaud        int
	SerialReadTimeout time.Duration
}

// DefaultLimits returns the limits for a Boson core paired with the thermal calibrator.
func DefaultLimits() Limits {
	return Limits{
		MinTotalDurationSec: 60,
		MaxTotalDurationSec: 7200,
		MinIntervalSec:      5,
		MaxIntervalSec:      600,
		SerialBaud:          19200,
		SerialReadTimeout:   120 * time.Second,
	}
}

// SessionConfig describes one interval capture session.
type SessionConfig struct {
	TotalDurationSeconds int
	IntervalSeconds      int
	OutputDirectory      string
	SerialCaptureEnabled bool
	// SerialPort arrives untyped from DoCommand payloads; it must hold a
	// non-empty string when serial capture is enabled.
	SerialPort any
	PlotSeries bool
}

// serialPort returns the configured port name. Only meaningful after Validate.
func (c SessionConfig) serialPort() string {
	s, _ := c.SerialPort.(string)
	return s
}

// ConfigErrorKind identifies which session parameter check failed.
type ConfigErrorKind int

const (
	InvalidDirectory ConfigErrorKind = iota
	TotalDurationOutOfRange
	IntervalOutOfRange
	IntervalExceedsTotal
	MissingSerialPort
	InvalidSerialPortType
)

func (k ConfigErrorKind) String() string {
	switch k {
	case InvalidDirectory:
		return "invalid_directory"
	case TotalDurationOutOfRange:
		return "total_duration_out_of_range"
	case IntervalOutOfRange:
		return "interval_out_of_range"
	case IntervalExceedsTotal:
		return "interval_exceeds_total"
	case MissingSerialPort:
		return "missing_serial_port"
	case InvalidSerialPortType:
		return "invalid_serial_port_type"
	default:
		return fmt.Sprintf("config_error(%d)", int(k))
	}
}

var (
	ErrInvalidDirectory        = errors.New("invalid output directory")
	ErrTotalDurationOutOfRange = errors.New("total duration out of range")
	ErrIntervalOutOfRange      = errors.New("interval out of range")
	ErrIntervalExceedsTotal    = errors.New("interval exceeds total duration")
	ErrMissingSerialPort       = errors.New("serial port is required")
	ErrInvalidSerialPortType   = errors.New("serial port must be a string")
)

var configKindErrors = map[ConfigErrorKind]error{
	InvalidDirectory:        ErrInvalidDirectory,
	TotalDurationOutOfRange: ErrTotalDurationOutOfRange,
	IntervalOutOfRange:      ErrIntervalOutOfRange,
	IntervalExceedsTotal:    ErrIntervalExceedsTotal,
	MissingSerialPort:       ErrMissingSerialPort,
	InvalidSerialPortType:   ErrInvalidSerialPortType,
}

// ConfigError is returned by Validate for the first failed check.
type ConfigError struct {
	Kind    ConfigErrorKind
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// Unwrap lets errors.Is match the sentinel for the error's kind.
func (e *ConfigError) Unwrap() error {
	return configKindErrors[e.Kind]
}

func configErrorf(kind ConfigErrorKind, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validate checks cfg against limits and stops at the first violation.
// It never touches the filesystem beyond a stat of the output directory.
func Validate(cfg SessionConfig, limits Limits) error {
	info, err := os.Stat(cfg.OutputDirectory)
	if err != nil || !info.IsDir() {
		return configErrorf(InvalidDirectory, "invalid directory %q: enter a valid working directory", cfg.OutputDirectory)
	}

	if cfg.TotalDurationSeconds < limits.MinTotalDurationSec || cfg.TotalDurationSeconds > limits.MaxTotalDurationSec {
		return configErrorf(TotalDurationOutOfRange,
			"invalid total run time %ds: must be between %d and %d seconds",
			cfg.TotalDurationSeconds, limits.MinTotalDurationSec, limits.MaxTotalDurationSec)
	}

	if cfg.IntervalSeconds < limits.MinIntervalSec || cfg.IntervalSeconds > limits.MaxIntervalSec {
		return configErrorf(IntervalOutOfRange,
			"invalid interval time %ds: must be between %d and %d seconds",
			cfg.IntervalSeconds, limits.MinIntervalSec, limits.MaxIntervalSec)
	}

	if cfg.IntervalSeconds > cfg.TotalDurationSeconds {
		return configErrorf(IntervalExceedsTotal,
			"interval time %ds cannot be greater than total time %ds", cfg.IntervalSeconds, cfg.TotalDurationSeconds)
	}

	if cfg.SerialCaptureEnabled {
		if cfg.SerialPort == nil || cfg.SerialPort == "" {
			return configErrorf(MissingSerialPort, "serial capture enabled but no serial port given")
		}
		if _, ok := cfg.SerialPort.(string); !ok {
			return configErrorf(InvalidSerialPortType, "serial port must be a string, got %T", cfg.SerialPort)
		}
	}

	return nil
}
