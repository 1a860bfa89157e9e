package main

import (
	"flircapture"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"
)

func main() {
	module.ModularMain(
		resource.APIModel{generic.API, flircapture.Controller},
		resource.APIModel{sensor.API, flircapture.SessionSensor},
		resource.APIModel{sensor.API, flircapture.CalibratorSensor},
	)
}
