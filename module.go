package flircapture

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/components/sensor"
	toggleswitch "go.viam.com/rdk/components/switch"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"
)

var Controller = resource.NewModel("viamdemo", "flir-interval-capture", "capture-controller")

// ErrSessionRunning is returned when a session is requested while one is in progress.
var ErrSessionRunning = errors.New("a capture session is already running")

// ErrControllerClosed is returned for session requests after Close.
var ErrControllerClosed = errors.New("capture controller is closed")

const (
	defaultTotalDurationSec = 120
	defaultIntervalSec      = 30
	defaultFocalTempKey     = "fpa_temp"
)

func init() {
	resource.RegisterService(generic.API, Controller,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newCaptureController,
		},
	)
}

type Config struct {
	Camera           string `json:"camera"`                      // REQUIRED unless use_mock_camera
	UseMockCamera    bool   `json:"use_mock_camera,omitempty"`   // simulated Boson frames and FPA temperature
	FocalTempSensor  string `json:"focal_temp_sensor,omitempty"` // defaults to asking the camera via DoCommand
	FocalTempKey     string `json:"focal_temp_key,omitempty"`    // default: fpa_temp
	OutputDirectory  string `json:"output_directory,omitempty"`  // default: working directory
	TotalDurationSec int    `json:"total_duration_sec,omitempty"`
	IntervalSec      int    `json:"interval_sec,omitempty"`
	SerialCapture    *bool  `json:"serial_capture,omitempty"` // default: true
	SerialPort       string `json:"serial_port,omitempty"`
	CompletionSwitch string `json:"completion_switch,omitempty"`
	PlotSeries       bool   `json:"plot_series,omitempty"`
}

func (cfg *Config) Validate(path string) ([]string, []string, error) {
	var deps []string
	if cfg.Camera == "" {
		if !cfg.UseMockCamera {
			return nil, nil, fmt.Errorf("%s: camera is required", path)
		}
	} else if !cfg.UseMockCamera {
		deps = append(deps, cfg.Camera)
	}
	if cfg.FocalTempSensor != "" && !cfg.UseMockCamera {
		deps = append(deps, cfg.FocalTempSensor)
	}
	if cfg.CompletionSwitch != "" {
		deps = append(deps, cfg.CompletionSwitch)
	}
	return deps, nil, nil
}

type captureController struct {
	resource.AlwaysRebuild

	name    resource.Name
	logger  logging.Logger
	cfg     *Config
	limits  Limits
	session *Session

	cancelCtx  context.Context
	cancelFunc func()

	mu          sync.Mutex
	running     bool
	active      SessionConfig
	done        chan struct{}
	lastSummary *SessionSummary
	lastErr     error
}

func newCaptureController(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}

	return NewController(ctx, deps, rawConf.ResourceName(), conf, logger)
}

func NewController(ctx context.Context, deps resource.Dependencies, name resource.Name, conf *Config, logger logging.Logger) (resource.Resource, error) {
	sessionDeps := SessionDeps{}

	if conf.UseMockCamera {
		sessionDeps.Camera = newMockBoson().Open
		logger.Infof("capture-controller using mock Boson camera (use_mock_camera=true)")
	} else {
		cam, err := camera.FromDependencies(deps, conf.Camera)
		if err != nil {
			return nil, fmt.Errorf("getting camera: %w", err)
		}

		key := conf.FocalTempKey
		if key == "" {
			key = defaultFocalTempKey
		}

		var temp focalTempReader
		if conf.FocalTempSensor != "" {
			s, err := sensor.FromDependencies(deps, conf.FocalTempSensor)
			if err != nil {
				return nil, fmt.Errorf("getting focal_temp_sensor: %w", err)
			}
			temp = newSensorTempReader(s, key)
			logger.Infof("reading focal plane temperature from sensor %q (key: %q)", conf.FocalTempSensor, key)
		} else {
			temp = newCameraTempReader(cam, key)
			logger.Infof("reading focal plane temperature from camera %q (key: %q)", conf.Camera, key)
		}
		sessionDeps.Camera = newViamCameraOpener(cam, temp)
	}

	notifiers := multiNotifier{logNotifier{logger: logger}}
	if conf.CompletionSwitch != "" {
		sw, err := toggleswitch.FromDependencies(deps, conf.CompletionSwitch)
		if err != nil {
			return nil, fmt.Errorf("getting completion_switch: %w", err)
		}
		notifiers = append(notifiers, switchNotifier{sw: sw, position: 1})
	}
	sessionDeps.Notifier = notifiers

	return newController(name, conf, logger, sessionDeps), nil
}

func newController(name resource.Name, conf *Config, logger logging.Logger, sessionDeps SessionDeps) *captureController {
	limits := DefaultLimits()
	cancelCtx, cancelFunc := context.WithCancel(context.Background())

	return &captureController{
		name:       name,
		logger:     logger,
		cfg:        conf,
		limits:     limits,
		session:    NewSession(logger, limits, sessionDeps),
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}
}

func (c *captureController) Name() resource.Name {
	return c.name
}

func (c *captureController) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	command, ok := cmd["command"].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'command' field")
	}

	switch command {
	case "start":
		return c.handleStart(cmd)
	case "run":
		return c.handleRun(ctx, cmd)
	case "status":
		return c.GetState(), nil
	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

// sessionConfig merges per-command overrides onto the configured defaults.
// serial_port is passed through untyped so Validate can reject non-strings.
func (c *captureController) sessionConfig(cmd map[string]interface{}) (SessionConfig, error) {
	sc := SessionConfig{
		TotalDurationSeconds: c.cfg.TotalDurationSec,
		IntervalSeconds:      c.cfg.IntervalSec,
		OutputDirectory:      c.cfg.OutputDirectory,
		SerialCaptureEnabled: true,
		SerialPort:           c.cfg.SerialPort,
		PlotSeries:           c.cfg.PlotSeries,
	}
	if sc.TotalDurationSeconds <= 0 {
		sc.TotalDurationSeconds = defaultTotalDurationSec
	}
	if sc.IntervalSeconds <= 0 {
		sc.IntervalSeconds = defaultIntervalSec
	}
	if c.cfg.SerialCapture != nil {
		sc.SerialCaptureEnabled = *c.cfg.SerialCapture
	}

	var err error
	if v, ok := cmd["total_duration_sec"]; ok {
		if sc.TotalDurationSeconds, err = intArg("total_duration_sec", v); err != nil {
			return SessionConfig{}, err
		}
	}
	if v, ok := cmd["interval_sec"]; ok {
		if sc.IntervalSeconds, err = intArg("interval_sec", v); err != nil {
			return SessionConfig{}, err
		}
	}
	if v, ok := cmd["output_directory"]; ok {
		dir, ok := v.(string)
		if !ok {
			return SessionConfig{}, fmt.Errorf("output_directory must be a string, got %T", v)
		}
		sc.OutputDirectory = dir
	}
	if v, ok := cmd["serial_capture"]; ok {
		enabled, ok := v.(bool)
		if !ok {
			return SessionConfig{}, fmt.Errorf("serial_capture must be a bool, got %T", v)
		}
		sc.SerialCaptureEnabled = enabled
	}
	if v, ok := cmd["serial_port"]; ok {
		sc.SerialPort = v
	}

	if sc.OutputDirectory == "" {
		wd, err := os.Getwd()
		if err != nil {
			return SessionConfig{}, fmt.Errorf("resolving working directory: %w", err)
		}
		sc.OutputDirectory = wd
	}
	return sc, nil
}

func intArg(key string, v interface{}) (int, error) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return 0, fmt.Errorf("%s must be a whole number of seconds, got %v", key, n)
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, fmt.Errorf("%s is out of range, got %d", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}

// begin claims the controller for one session after validating its config.
func (c *captureController) begin(cmd map[string]interface{}) (SessionConfig, chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancelCtx.Err() != nil {
		return SessionConfig{}, nil, ErrControllerClosed
	}
	if c.running {
		return SessionConfig{}, nil, ErrSessionRunning
	}

	sc, err := c.sessionConfig(cmd)
	if err != nil {
		return SessionConfig{}, nil, err
	}
	if err := Validate(sc, c.limits); err != nil {
		return SessionConfig{}, nil, err
	}

	c.running = true
	c.active = sc
	c.done = make(chan struct{})
	c.lastSummary = nil
	c.lastErr = nil
	return sc, c.done, nil
}

func (c *captureController) finish(done chan struct{}, summary SessionSummary, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running = false
	if err != nil {
		c.lastErr = err
	} else {
		c.lastSummary = &summary
	}
	close(done)
}

func (c *captureController) handleStart(cmd map[string]interface{}) (map[string]interface{}, error) {
	sc, done, err := c.begin(cmd)
	if err != nil {
		return nil, err
	}

	go func() {
		summary, err := c.session.Run(c.cancelCtx, sc)
		c.finish(done, summary, err)
	}()

	c.logger.Infof("capture session started (%ds total, %ds interval)", sc.TotalDurationSeconds, sc.IntervalSeconds)
	return map[string]interface{}{
		"status":             "started",
		"total_duration_sec": sc.TotalDurationSeconds,
		"interval_sec":       sc.IntervalSeconds,
		"serial_capture":     sc.SerialCaptureEnabled,
	}, nil
}

func (c *captureController) handleRun(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	sc, done, err := c.begin(cmd)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.cancelCtx, cancel)
	defer stop()

	summary, err := c.session.Run(runCtx, sc)
	c.finish(done, summary, err)
	if err != nil {
		return nil, err
	}
	return summaryMap(summary), nil
}

func summaryMap(s SessionSummary) map[string]interface{} {
	return map[string]interface{}{
		"status":         "completed",
		"image_count":    s.ImageCount,
		"sample_count":   s.SampleCount,
		"wall_clock_sec": s.ElapsedWallClockSeconds,
		"output_path":    s.OutputPath,
		"early_stop":     s.EarlyStop,
	}
}

// GetState reports the running or most recent session.
func (c *captureController) GetState() map[string]interface{} {
	progress := c.session.Progress()

	c.mu.Lock()
	running := c.running
	active := c.active
	summary := c.lastSummary
	lastErr := c.lastErr
	c.mu.Unlock()

	state := map[string]interface{}{
		"state":          string(progress.State),
		"session_folder": progress.Folder,
		"sample_count":   progress.SampleCount,
		"elapsed_sec":    progress.ElapsedSeconds,
		"should_sync":    running,
	}
	if active.TotalDurationSeconds > 0 {
		state["total_duration_sec"] = active.TotalDurationSeconds
		state["interval_sec"] = active.IntervalSeconds
	}
	if summary != nil {
		state["output_path"] = summary.OutputPath
		state["image_count"] = summary.ImageCount
		state["wall_clock_sec"] = summary.ElapsedWallClockSeconds
		state["early_stop"] = summary.EarlyStop
	}
	if lastErr != nil {
		state["last_error"] = lastErr.Error()
	}
	return state
}

func (c *captureController) Close(context.Context) error {
	c.cancelFunc()

	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}
