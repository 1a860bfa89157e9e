package flircapture

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

var SessionSensor = resource.NewModel("viamdemo", "flir-interval-capture", "session-sensor")

func init() {
	resource.RegisterComponent(sensor.API, SessionSensor,
		resource.Registration[sensor.Sensor, *SessionSensorConfig]{
			Constructor: newSessionSensor,
		},
	)
}

type SessionSensorConfig struct {
	Controller string `json:"controller"`
}

func (cfg *SessionSensorConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Controller == "" {
		return nil, nil, fmt.Errorf("%s: controller is required", path)
	}
	// Full resource name so the controller resolves as a generic service dependency
	dep := resource.NewName(resource.APINamespaceRDK.WithServiceType("generic"), cfg.Controller)
	return []string{dep.String()}, nil, nil
}

type stateProvider interface {
	GetState() map[string]interface{}
}

// sessionSensor mirrors the capture controller's state so data capture can
// record it, adding the capture plan and how far through it the session is.
type sessionSensor struct {
	resource.AlwaysRebuild

	name       resource.Name
	logger     logging.Logger
	controller stateProvider
}

func newSessionSensor(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*SessionSensorConfig](rawConf)
	if err != nil {
		return nil, err
	}

	controllerName := resource.NewName(resource.APINamespaceRDK.WithServiceType("generic"), conf.Controller)
	ctrl, ok := deps[controllerName]
	if !ok {
		return nil, fmt.Errorf("controller %q not found in dependencies", conf.Controller)
	}

	provider, ok := ctrl.(stateProvider)
	if !ok {
		return nil, fmt.Errorf("controller %q does not implement GetState", conf.Controller)
	}

	return &sessionSensor{
		name:       rawConf.ResourceName(),
		logger:     logger,
		controller: provider,
	}, nil
}

func (s *sessionSensor) Name() resource.Name {
	return s.name
}

func (s *sessionSensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	state := s.controller.GetState()
	readings := lo.Assign(state)

	total, _ := state["total_duration_sec"].(int)
	interval, _ := state["interval_sec"].(int)
	if total <= 0 || interval <= 0 {
		return readings, nil
	}

	// captures land on 0, interval, ... up to and including total
	planned := total/interval + 1
	elapsed, _ := state["elapsed_sec"].(int)
	samples, _ := state["sample_count"].(int)
	progress := min(100, 100*float64(elapsed)/float64(total))
	if state["state"] == string(StateCompleted) {
		progress = 100
	}

	readings["planned_captures"] = planned
	readings["remaining_captures"] = max(0, planned-samples)
	readings["progress_pct"] = progress
	return readings, nil
}

func (s *sessionSensor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	return nil, fmt.Errorf("DoCommand not supported on session-sensor")
}

func (s *sessionSensor) Close(context.Context) error {
	return nil
}
