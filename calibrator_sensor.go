package flircapture

import (
	"context"
	"fmt"
	"time"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

var CalibratorSensor = resource.NewModel("viamdemo", "flir-interval-capture", "calibrator-sensor")

func init() {
	resource.RegisterComponent(sensor.API, CalibratorSensor,
		resource.Registration[sensor.Sensor, *CalibratorSensorConfig]{
			Constructor: newCalibratorSensor,
		},
	)
}

type CalibratorSensorConfig struct {
	SerialPort     string `json:"serial_port"`                // REQUIRED: tty of the thermal calibrator
	BaudRate       int    `json:"baud_rate,omitempty"`        // default: 19200
	ReadTimeoutSec int    `json:"read_timeout_sec,omitempty"` // default: 120
}

func (cfg *CalibratorSensorConfig) Validate(path string) ([]string, []string, error) {
	if cfg.SerialPort == "" {
		return nil, nil, fmt.Errorf("%s: serial_port is required", path)
	}
	if cfg.BaudRate < 0 || cfg.ReadTimeoutSec < 0 {
		return nil, nil, fmt.Errorf("%s: baud_rate and read_timeout_sec must not be negative", path)
	}
	return nil, nil, nil
}

// calibratorSensor takes one telemetry line per Readings call. An empty line
// is an error here, unlike inside a capture session.
type calibratorSensor struct {
	resource.AlwaysRebuild

	name    resource.Name
	logger  logging.Logger
	open    SerialOpener
	port    string
	baud    int
	timeout time.Duration
}

func newCalibratorSensor(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*CalibratorSensorConfig](rawConf)
	if err != nil {
		return nil, err
	}

	limits := DefaultLimits()
	baud := conf.BaudRate
	if baud <= 0 {
		baud = limits.SerialBaud
	}
	timeout := limits.SerialReadTimeout
	if conf.ReadTimeoutSec > 0 {
		timeout = time.Duration(conf.ReadTimeoutSec) * time.Second
	}

	logger.Infof("calibrator-sensor on %s at %d baud (timeout %v)", conf.SerialPort, baud, timeout)
	return &calibratorSensor{
		name:    rawConf.ResourceName(),
		logger:  logger,
		open:    OpenSerialDevice,
		port:    conf.SerialPort,
		baud:    baud,
		timeout: timeout,
	}, nil
}

func (s *calibratorSensor) Name() resource.Name {
	return s.name
}

func (s *calibratorSensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	table, err := ReadTelemetryOnce(ctx, s.open, s.port, s.baud, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("reading calibrator on %s: %w", s.port, err)
	}

	readings := make(map[string]interface{}, len(table.Columns)+1)
	row := table.Rows[0]
	for i, col := range table.Columns {
		readings[col] = row[i]
	}
	readings["row_count"] = len(table.Rows)
	return readings, nil
}

func (s *calibratorSensor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return nil, fmt.Errorf("DoCommand not supported on calibrator-sensor")
}

func (s *calibratorSensor) Close(context.Context) error {
	return nil
}
