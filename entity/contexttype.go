package entity

import (
	"github.com/tsinghua-fib-lab/carsim-go/clock"
	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
)

type ITaskContext interface {
	Clock() *clock.Clock
	World() IPhysicsWorld
	VehicleManager() IVehicleManager
	RuntimeConfig() *config.RuntimeConfig
}
