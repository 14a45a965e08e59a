package entity

import (
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
)

// Manager依赖倒置

// entity/vehicle/manager.go的依赖倒置
type IVehicleManager interface {
	// 初始化：载入车型预设并生成初始车辆
	Init(presets map[string]config.VehicleConfig, spawns []config.SpawnConfig)
	// 注册到Sidecar
	Register(sidecar *syncer.Sidecar)

	// 输入车身ID，查找车辆，如果不存在则panic
	Get(id BodyID) IVehicle
	// 输入车身ID，查找车辆，如果不存在则返回error
	GetOrError(id BodyID) (IVehicle, error)

	Prepare()          // 准备阶段：车辆增删、停车位检测
	Update(dt float64) // 更新阶段：计算并写入所有车身的外力
}
