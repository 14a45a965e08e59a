package vehicle

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tsinghua-fib-lab/carsim-go/entity"
	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
	"github.com/tsinghua-fib-lab/carsim-go/utils/container"
)

// Vehicle 车辆
// 功能：一个车身刚体与其轮胎集合，保存车型参数副本、控制器绑定与驾驶意图
type Vehicle struct {
	id     entity.BodyID
	name   string
	preset string
	cfg    config.VehicleConfig

	controller    entity.ControllerID
	hasController bool

	spawnPosition mgl64.Vec3
	spawnRotation mgl64.Quat

	tires   []container.Handle
	towing  []*Vehicle // 被本车牵引的车辆
	tractor *Vehicle   // 牵引本车的车辆

	intent    Intent
	resetHeld bool // 上一步是否按住复位
	inParking bool
}

func (v *Vehicle) ID() entity.BodyID            { return v.id }
func (v *Vehicle) Name() string                 { return v.name }
func (v *Vehicle) Preset() string               { return v.preset }
func (v *Vehicle) Config() config.VehicleConfig { return v.cfg }
func (v *Vehicle) Drivable() bool               { return true }
func (v *Vehicle) Authority() bool              { return v.cfg.Authority }
func (v *Vehicle) InParkingSpot() bool          { return v.inParking }
func (v *Vehicle) Intent() Intent               { return v.intent }

func (v *Vehicle) Controller() (entity.ControllerID, bool) {
	return v.controller, v.hasController
}

func (v *Vehicle) String() string {
	return fmt.Sprintf("Vehicle(%v %s/%s)", v.id, v.name, v.preset)
}

// tireCount 轮胎数量，侧向力按此均分车身质量
func (v *Vehicle) tireCount() int {
	return len(v.tires)
}

// spawnPose 生成时的位姿
func spawnPose(spawn config.SpawnConfig) (mgl64.Vec3, mgl64.Quat) {
	return spawn.Position.Vec3(), mgl64.QuatRotate(spawn.Yaw, axisUp)
}

// ConfigPatch 实时调参，只修改非nil字段
type ConfigPatch struct {
	Height, Width, Length *float64

	SpringOffset, SpringPower, Shock *float64

	MaxSpeed, MaxForce, TurnRadius *float64

	GripStrength, CorneringGain, SteerResponse *float64
}

// apply 写入车型副本
// 返回：车身尺寸是否改变（需要重建碰撞盒与轮胎布局）
func (p ConfigPatch) apply(c *config.VehicleConfig) (resized bool, err error) {
	set := func(dst *float64, src *float64, name string, positive bool) {
		if src == nil || err != nil {
			return
		}
		if math.IsNaN(*src) || math.IsInf(*src, 0) || *src < 0 || (positive && *src == 0) {
			err = fmt.Errorf("invalid %s: %v", name, *src)
			return
		}
		*dst = *src
	}
	next := *c
	set(&next.Height, p.Height, "height", true)
	set(&next.Width, p.Width, "width", true)
	set(&next.Length, p.Length, "length", true)
	set(&next.SpringOffset, p.SpringOffset, "spring_offset", false)
	set(&next.SpringPower, p.SpringPower, "spring_power", false)
	set(&next.Shock, p.Shock, "shock", false)
	set(&next.MaxSpeed, p.MaxSpeed, "max_speed", false)
	set(&next.MaxForce, p.MaxForce, "max_force", false)
	set(&next.TurnRadius, p.TurnRadius, "turn_radius", false)
	set(&next.GripStrength, p.GripStrength, "grip_strength", false)
	set(&next.CorneringGain, p.CorneringGain, "cornering_gain", false)
	set(&next.SteerResponse, p.SteerResponse, "steer_response", false)
	if err != nil {
		return false, err
	}
	next = normalize(next)
	resized = next.HalfExtents() != c.HalfExtents()
	*c = next
	return resized, nil
}
